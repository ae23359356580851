package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToneStartsAtZeroAndIsBounded(t *testing.T) {
	tone := NewTone(440, 8000)
	assert.Equal(t, 8000, tone.SampleRate())
	assert.Equal(t, 1, tone.Channels())

	buf := make([]int16, 160)
	n, err := tone.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 160, n)
	assert.Equal(t, int16(0), buf[0])

	var peak int16
	for _, s := range buf {
		if s > peak {
			peak = s
		}
		assert.LessOrEqual(t, s, int16(16384))
		assert.GreaterOrEqual(t, s, int16(-16384))
	}
	assert.Greater(t, peak, int16(10000))
}

func TestToneIsContinuousAcrossReads(t *testing.T) {
	whole := make([]int16, 320)
	_, err := NewTone(440, 8000).Read(whole)
	require.NoError(t, err)

	split := NewTone(440, 8000)
	first := make([]int16, 160)
	second := make([]int16, 160)
	_, err = split.Read(first)
	require.NoError(t, err)
	_, err = split.Read(second)
	require.NoError(t, err)

	assert.Equal(t, whole, append(first, second...))
}

func TestOpenFileRejectsUnknownExtension(t *testing.T) {
	_, err := OpenFile("voice.wav", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "voice.wav")
}

func TestOpenFileMissing(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"missing.mp3", "missing.FLAC"} {
		_, err := OpenFile(filepath.Join(dir, name), false)
		assert.Error(t, err, name)
	}
}

func TestOpenFileGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.flac")
	require.NoError(t, os.WriteFile(path, []byte("not a flac stream"), 0o644))

	_, err := OpenFile(path, false)
	assert.Error(t, err)
}

func TestScaleTo16(t *testing.T) {
	tests := []struct {
		name     string
		sample   int32
		bitDepth int
		want     int16
	}{
		{"16-bit passes through", -1234, 16, -1234},
		{"24-bit max", 8388607, 24, 32767},
		{"24-bit min", -8388608, 24, -32768},
		{"8-bit widened", 127, 8, 127 << 8},
		{"20-bit", 1 << 19 >> 1, 20, 1 << 14},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scaleTo16(tt.sample, tt.bitDepth))
		})
	}
}
