// ABOUTME: Tests for the 8-bit logarithmic codec
// ABOUTME: Pins bit-exact vectors shared with existing clients
package mulaw

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeVectors(t *testing.T) {
	tests := []struct {
		name     string
		input    byte
		expected int16
	}{
		{"silence code", 0xFF, 32},
		{"negative silence code", 0x7F, -32},
		{"smallest step", 0xEF, 64},
		{"mid exponent", 0xC0, 7936},
		{"saturates positive", 0x80, 32767},
		{"saturates negative", 0x00, -32768},
		{"near silence", 0xFB, 288},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Decode(tt.input))
		})
	}
}

func TestEncodeVectors(t *testing.T) {
	tests := []struct {
		name     string
		input    int16
		expected byte
	}{
		{"zero", 0, Silence},
		{"small positive", 32, 0xFB},
		{"positive", 1000, 0xCE},
		{"negative", -1000, 0x4E},
		{"loud positive", 8000, 0xA0},
		{"loud negative", -8000, 0x20},
		{"at clip", Clip, 0x80},
		{"max", math.MaxInt16, 0x80},
		{"min", math.MinInt16, 0x00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Encode(tt.input))
		})
	}
}

func TestDecodeAllBytesInRange(t *testing.T) {
	for b := 0; b <= 255; b++ {
		s := Decode(byte(b))
		assert.GreaterOrEqual(t, int(s), math.MinInt16)
		assert.LessOrEqual(t, int(s), math.MaxInt16)
	}
}

func TestEncodeClampsMagnitude(t *testing.T) {
	clipped := Encode(Clip)
	for s := Clip + 1; s <= math.MaxInt16; s++ {
		require.Equal(t, clipped, Encode(int16(s)), "sample %d", s)
	}

	negClipped := Encode(-Clip)
	for s := -Clip - 1; s >= math.MinInt16; s-- {
		require.Equal(t, negClipped, Encode(int16(s)), "sample %d", s)
	}
}

func TestEncodeEverySample(t *testing.T) {
	for s := math.MinInt16; s <= math.MaxInt16; s++ {
		b := Encode(int16(s))
		if s < 0 {
			assert.Zero(t, b&0x80, "negative sample %d must clear the inverted sign bit", s)
		}
	}
}

func TestSilenceRoundTrip(t *testing.T) {
	got := Decode(Encode(0))
	assert.InDelta(t, 0, got, 64, "silence must stay near silence")
}

func TestSignSymmetry(t *testing.T) {
	for b := 0; b < 0x80; b++ {
		pos := Decode(byte(b) | 0x80)
		neg := Decode(byte(b))
		if pos == math.MaxInt16 {
			assert.Equal(t, int16(math.MinInt16), neg)
			continue
		}
		assert.Equal(t, -pos, neg, "code %#x", b)
	}
}

func TestFrameHelpers(t *testing.T) {
	src := []int16{0, 1000, -1000, 8000}
	encoded := make([]byte, len(src))
	require.Equal(t, len(src), EncodeFrame(encoded, src))
	assert.Equal(t, []byte{0xFF, 0xCE, 0x4E, 0xA0}, encoded)

	decoded := make([]int16, 2)
	require.Equal(t, 2, DecodeFrame(decoded, encoded))
	assert.Equal(t, []int16{32, 768}, decoded)
}

func TestClamp16(t *testing.T) {
	assert.Equal(t, int16(math.MaxInt16), Clamp16(40000))
	assert.Equal(t, int16(math.MinInt16), Clamp16(-40000))
	assert.Equal(t, int16(-12), Clamp16(-12))
}
