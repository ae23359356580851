package resample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResamplerSameRateIsIdentity(t *testing.T) {
	r := New(8000, 8000, 1)
	in := []int16{1, 2, 3, 4, 5, 6, 7, 8}
	out := make([]int16, 16)

	n := r.Resample(in, out)
	// The final frame is held back until the next chunk arrives.
	require.Equal(t, 7, n)
	assert.Equal(t, in[:7], out[:n])

	n = r.Resample([]int16{9, 10}, out)
	assert.Equal(t, []int16{8, 9}, out[:n])
}

func TestResamplerDownsample(t *testing.T) {
	r := New(48000, 8000, 1)
	in := make([]int16, 960)
	for i := range in {
		in[i] = int16(i)
	}
	out := make([]int16, r.OutputSamplesNeeded(len(in))+1)

	n := r.Resample(in, out)
	require.Equal(t, 160, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, int16(i*6), out[i])
	}
}

func TestResamplerUpsampleInterpolates(t *testing.T) {
	r := New(4000, 8000, 1)
	out := make([]int16, 8)

	n := r.Resample([]int16{0, 100, 200}, out)
	assert.Equal(t, []int16{0, 50, 100, 150}, out[:n])
}

func TestResamplerChunkBoundaryIsSeamless(t *testing.T) {
	in := make([]int16, 441*4)
	for i := range in {
		in[i] = int16(i % 1000)
	}

	whole := New(44100, 8000, 1)
	wholeOut := make([]int16, 1000)
	nw := whole.Resample(in, wholeOut)

	chunked := New(44100, 8000, 1)
	var chunkedOut []int16
	buf := make([]int16, 200)
	for off := 0; off < len(in); off += 441 {
		n := chunked.Resample(in[off:off+441], buf)
		chunkedOut = append(chunkedOut, buf[:n]...)
	}

	require.Len(t, chunkedOut, nw)
	for i := range chunkedOut {
		assert.InDelta(t, wholeOut[i], chunkedOut[i], 1, "sample %d", i)
	}
}

func TestResamplerStereo(t *testing.T) {
	r := New(16000, 8000, 2)
	in := []int16{0, 10, 1, 11, 2, 12, 3, 13, 4, 14}
	out := make([]int16, 10)

	n := r.Resample(in, out)
	assert.Equal(t, []int16{0, 10, 2, 12}, out[:n])
}

func TestResamplerReset(t *testing.T) {
	r := New(8000, 8000, 1)
	out := make([]int16, 4)
	r.Resample([]int16{5, 6, 7}, out)

	r.Reset()
	n := r.Resample([]int16{1, 2}, out)
	assert.Equal(t, []int16{1}, out[:n])
}

func TestResamplerEmptyInput(t *testing.T) {
	r := New(44100, 8000, 2)
	assert.Equal(t, 0, r.Resample(nil, make([]int16, 10)))
}

func TestInputSamplesNeeded(t *testing.T) {
	r := New(48000, 8000, 2)
	assert.Equal(t, 1920, r.InputSamplesNeeded(320))
}

func TestDownmix(t *testing.T) {
	tests := []struct {
		name     string
		src      []int16
		channels int
		want     []int16
	}{
		{"mono copies", []int16{1, -2, 3}, 1, []int16{1, -2, 3}},
		{"stereo averages", []int16{100, 300, -100, -300, 32767, 32767}, 2, []int16{200, -200, 32767}},
		{"odd tail ignored", []int16{2, 4, 6}, 2, []int16{3}},
		{"three channels", []int16{3, 6, 9}, 3, []int16{6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := make([]int16, len(tt.src))
			n := Downmix(dst, tt.src, tt.channels)
			assert.Equal(t, tt.want, dst[:n])
		})
	}
}
