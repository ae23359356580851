// ABOUTME: Turns a voice source into fixed-size compressed bridge frames
// ABOUTME: Downmixes, resamples to the bridge rate and mu-law encodes
package app

import (
	"errors"
	"io"

	"github.com/linksphere/confbridge/internal/bridge"
	"github.com/linksphere/confbridge/pkg/audio/mulaw"
	"github.com/linksphere/confbridge/pkg/audio/resample"
	"github.com/linksphere/confbridge/pkg/audio/source"
)

// readChunkMs is how much source audio is pulled per read.
const readChunkMs = 20

type framer struct {
	src       source.Source
	channels  int
	resampler *resample.Resampler

	in      []int16
	mono    []int16
	out     []int16
	pending []int16
	eof     bool
}

func newFramer(src source.Source) *framer {
	channels := max(1, src.Channels())
	rate := src.SampleRate()

	frames := max(1, rate*readChunkMs/1000)
	r := resample.New(rate, bridge.SampleRate, 1)
	return &framer{
		src:       src,
		channels:  channels,
		resampler: r,
		in:        make([]int16, frames*channels),
		mono:      make([]int16, frames),
		out:       make([]int16, r.OutputSamplesNeeded(frames)+1),
	}
}

// next fills dst with one encoded frame. It returns io.EOF once the
// source is exhausted and fewer than len(dst) samples remain.
func (f *framer) next(dst []byte) error {
	for len(f.pending) < len(dst) {
		if f.eof {
			return io.EOF
		}
		if err := f.fill(); err != nil {
			return err
		}
	}

	n := mulaw.EncodeFrame(dst, f.pending)
	f.pending = f.pending[n:]
	return nil
}

func (f *framer) fill() error {
	n, err := f.src.Read(f.in)
	if errors.Is(err, io.EOF) {
		f.eof = true
	} else if err != nil {
		return err
	}

	m := resample.Downmix(f.mono, f.in[:n-n%f.channels], f.channels)
	k := f.resampler.Resample(f.mono[:m], f.out)
	f.pending = append(f.pending, f.out[:k]...)
	return nil
}
