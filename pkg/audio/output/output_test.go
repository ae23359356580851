// ABOUTME: Audio output tests
// ABOUTME: Covers sample serialization and volume without an audio device
package output

import (
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOtoImplementsOutput(t *testing.T) {
	var _ Output = (*Oto)(nil)
}

func TestWriteBeforeOpen(t *testing.T) {
	assert.ErrorIs(t, NewOto().Write([]int16{1, 2}), ErrNotOpen)
}

func TestVolumeClamped(t *testing.T) {
	o := NewOto()
	assert.Equal(t, 100, o.Volume())

	o.SetVolume(150)
	assert.Equal(t, 100, o.Volume())
	o.SetVolume(-5)
	assert.Equal(t, 0, o.Volume())

	o.SetMuted(true)
	assert.True(t, o.Muted())
}

func TestEncodeLE(t *testing.T) {
	out := encodeLE(nil, []int16{1, -1, 0x1234}, 1.0)
	assert.Equal(t, []byte{0x01, 0x00, 0xFF, 0xFF, 0x34, 0x12}, out)
}

func TestEncodeLEAppliesVolume(t *testing.T) {
	out := encodeLE(nil, []int16{1000, -1000}, volumeMultiplier(50, false))
	assert.Equal(t, []byte{0xF4, 0x01, 0x0C, 0xFE}, out)

	out = encodeLE(out, []int16{1000, -1000}, volumeMultiplier(100, true))
	assert.Equal(t, []byte{0, 0, 0, 0}, out)
}

func TestEncodeLEReusesBuffer(t *testing.T) {
	buf := make([]byte, 16)
	out := encodeLE(buf, []int16{7}, 1.0)
	assert.Len(t, out, 2)
	assert.Same(t, &buf[0], &out[0])
}

func TestConcurrentWritesKeepFramesIntact(t *testing.T) {
	const writers, perWriter, frame = 8, 50, 100

	r, w := io.Pipe()
	o := NewOto()
	o.pipeWriter = w
	o.ready = true

	var wg sync.WaitGroup
	for k := 1; k <= writers; k++ {
		samples := make([]int16, frame)
		for i := range samples {
			samples[i] = int16(0x0101 * k)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				assert.NoError(t, o.Write(samples))
			}
		}()
	}

	got := make([]byte, 2*frame)
	for n := 0; n < writers*perWriter; n++ {
		_, err := io.ReadFull(r, got)
		require.NoError(t, err)
		for i := range got {
			require.Equal(t, got[0], got[i], "frame %d mixes writers at byte %d", n, i)
		}
	}
	wg.Wait()

	require.NoError(t, o.Close())
	assert.ErrorIs(t, o.Write([]int16{1}), ErrNotOpen)
}
