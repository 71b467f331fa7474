package malgo

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/gen2brain/malgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func s16(b []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(b[i*2:]))
}

func TestToS16Formats(t *testing.T) {
	t.Parallel()

	t.Run("s16 copies", func(t *testing.T) {
		t.Parallel()
		in := []byte{0x01, 0x02, 0x03, 0x04}
		out, err := toS16(in, malgo.FormatS16)
		require.NoError(t, err)
		assert.Equal(t, in, out)
		in[0] = 0xff
		assert.Equal(t, byte(0x01), out[0])
	})

	t.Run("u8", func(t *testing.T) {
		t.Parallel()
		out, err := toS16([]byte{0, 128, 255}, malgo.FormatU8)
		require.NoError(t, err)
		assert.Equal(t, int16(-32768), s16(out, 0))
		assert.Equal(t, int16(0), s16(out, 1))
		assert.Equal(t, int16(32512), s16(out, 2))
	})

	t.Run("s24 negative", func(t *testing.T) {
		t.Parallel()
		// -256 in 24 bits becomes -1 after dropping the low byte
		out, err := toS16([]byte{0x00, 0xff, 0xff}, malgo.FormatS24)
		require.NoError(t, err)
		assert.Equal(t, int16(-1), s16(out, 0))
	})

	t.Run("f32 clips", func(t *testing.T) {
		t.Parallel()
		in := make([]byte, 12)
		binary.LittleEndian.PutUint32(in[0:], math.Float32bits(0.5))
		binary.LittleEndian.PutUint32(in[4:], math.Float32bits(2))
		binary.LittleEndian.PutUint32(in[8:], math.Float32bits(-2))
		out, err := toS16(in, malgo.FormatF32)
		require.NoError(t, err)
		assert.Equal(t, int16(16384), s16(out, 0))
		assert.Equal(t, int16(32767), s16(out, 1))
		assert.Equal(t, int16(-32767), s16(out, 2))
	})

	t.Run("unknown", func(t *testing.T) {
		t.Parallel()
		_, err := toS16([]byte{0, 0}, malgo.FormatUnknown)
		assert.Error(t, err)
	})
}

func TestMatchDevice(t *testing.T) {
	t.Parallel()

	devices := []DeviceInfo{
		{Index: 0, Name: "HDA Intel PCH", ID: ":0,0"},
		{Index: 2, Name: "USB Audio Device", ID: ":1,0", Default: true},
	}

	assert.Equal(t, 2, matchDevice(devices, ""))
	assert.Equal(t, 2, matchDevice(devices, "sysdefault"))
	assert.Equal(t, 0, matchDevice(devices, "HDA Intel PCH"))
	assert.Equal(t, 2, matchDevice(devices, ":1,0"))
	assert.Equal(t, 2, matchDevice(devices, "USB"))
	assert.Equal(t, -1, matchDevice(devices, "bluetooth"))
	assert.Equal(t, -1, matchDevice(nil, ""))
}

func TestDecodeID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ":1,0", decodeID("3a312c30"))
	assert.Equal(t, "not-hex", decodeID("not-hex"))
}

func TestStopWithoutStart(t *testing.T) {
	t.Parallel()

	s := New(Config{Device: "sysdefault"})
	assert.NoError(t, s.Stop())
	assert.False(t, s.IsActive())
	assert.Equal(t, 16000, s.Format().SampleRate)
}

func TestBackendFor(t *testing.T) {
	t.Parallel()

	b, err := backendFor("null")
	require.NoError(t, err)
	assert.Equal(t, malgo.BackendNull, b)

	_, err = backendFor("oss4")
	assert.Error(t, err)
}
