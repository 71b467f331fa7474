package devices

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/hearken/internal/audiocore/sources/malgo"
)

func TestPrintDevices(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, printDevices(&buf, []malgo.DeviceInfo{
		{Index: 0, Name: "USB Audio", ID: ":1,0", Default: true},
		{Index: 2, Name: "HDA Intel PCH", ID: ":0,0"},
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"INDEX", "NAME", "ID", "DEFAULT"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"0", "USB", "Audio", ":1,0", "*"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"2", "HDA", "Intel", "PCH", ":0,0"}, strings.Fields(lines[2]))

	buf.Reset()
	require.NoError(t, printDevices(&buf, nil))
	assert.Equal(t, "no capture devices found\n", buf.String())
}
