package buildinfo

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextGetters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ctx     *Context
		version string
		date    string
		node    string
	}{
		{"nil context", nil, UnknownValue, UnknownValue, UnknownValue},
		{"empty values", NewContext("", "", ""), UnknownValue, UnknownValue, UnknownValue},
		{"populated", NewContext("v1.2.0", "2026-10-01", "garage"), "v1.2.0", "2026-10-01", "garage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.version, tt.ctx.GetVersion())
			assert.Equal(t, tt.date, tt.ctx.GetBuildDate())
			assert.Equal(t, tt.node, tt.ctx.GetNodeID())
		})
	}
}

func TestCurrentFallsBackToHostname(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "garage", Current("garage").NodeID)
	assert.NotEmpty(t, Current("").GetNodeID())
}

func TestString(t *testing.T) {
	t.Parallel()

	s := NewContext("v1.2.0", "2026-10-01", "garage").String()
	assert.Contains(t, s, "v1.2.0")
	assert.Contains(t, s, "built 2026-10-01")
	assert.Contains(t, s, runtime.GOOS+"/"+runtime.GOARCH)
}
