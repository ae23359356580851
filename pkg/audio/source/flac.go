// ABOUTME: FLAC file source backed by mewkiz/flac
// ABOUTME: Frames are interleaved and scaled to 16 bits
package source

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mewkiz/flac"
)

// FLAC reads PCM from a FLAC file.
type FLAC struct {
	file       *os.File
	stream     *flac.Stream
	sampleRate int
	channels   int
	bitDepth   int
	loop       bool

	// pending holds interleaved samples of the last frame not yet returned.
	pending []int16
}

// OpenFLAC opens path for decoding.
func OpenFLAC(path string, loop bool) (*FLAC, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file: %w", err)
	}

	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	info := stream.Info
	return &FLAC{
		file:       f,
		stream:     stream,
		sampleRate: int(info.SampleRate),
		channels:   int(info.NChannels),
		bitDepth:   int(info.BitsPerSample),
		loop:       loop,
	}, nil
}

func (s *FLAC) Read(samples []int16) (int, error) {
	read := 0
	for read < len(samples) {
		if len(s.pending) == 0 {
			if err := s.nextFrame(); err != nil {
				if errors.Is(err, io.EOF) && read > 0 {
					return read, nil
				}
				return read, err
			}
			continue
		}
		n := copy(samples[read:], s.pending)
		s.pending = s.pending[n:]
		read += n
	}
	return read, nil
}

func (s *FLAC) nextFrame() error {
	frame, err := s.stream.ParseNext()
	if errors.Is(err, io.EOF) {
		if !s.loop {
			return io.EOF
		}
		if _, err := s.file.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("failed to seek to start: %w", err)
		}
		stream, err := flac.New(s.file)
		if err != nil {
			return fmt.Errorf("failed to create new stream: %w", err)
		}
		s.stream = stream
		frame, err = s.stream.ParseNext()
		if err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	n := int(frame.BlockSize)
	out := make([]int16, 0, n*s.channels)
	for i := 0; i < n; i++ {
		for ch := 0; ch < s.channels; ch++ {
			out = append(out, scaleTo16(frame.Subframes[ch].Samples[i], s.bitDepth))
		}
	}
	s.pending = out
	return nil
}

// scaleTo16 rescales a sample of the given bit depth into 16 bits.
func scaleTo16(sample int32, bitDepth int) int16 {
	switch {
	case bitDepth > 16:
		return int16(sample >> (bitDepth - 16))
	case bitDepth < 16:
		return int16(sample << (16 - bitDepth))
	default:
		return int16(sample)
	}
}

func (s *FLAC) SampleRate() int { return s.sampleRate }
func (s *FLAC) Channels() int   { return s.channels }
func (s *FLAC) Close() error    { return s.file.Close() }
