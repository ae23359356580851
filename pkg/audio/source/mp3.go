// ABOUTME: MP3 file source backed by go-mp3
// ABOUTME: The decoder always yields 16-bit little-endian stereo
package source

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hajimehoshi/go-mp3"
)

// MP3 reads PCM from an MP3 file.
type MP3 struct {
	file       *os.File
	decoder    *mp3.Decoder
	sampleRate int
	loop       bool
	buf        []byte
}

// OpenMP3 opens path for decoding.
func OpenMP3(path string, loop bool) (*MP3, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	return &MP3{
		file:       f,
		decoder:    decoder,
		sampleRate: decoder.SampleRate(),
		loop:       loop,
	}, nil
}

func (s *MP3) Read(samples []int16) (int, error) {
	need := len(samples) * 2
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	buf := s.buf[:need]

	n, err := io.ReadFull(s.decoder, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, err
	}

	count := n / 2
	for i := 0; i < count; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}

	if err != nil {
		if !s.loop {
			if count == 0 {
				return 0, io.EOF
			}
			return count, nil
		}
		if err := s.rewind(); err != nil {
			return count, err
		}
	}
	return count, nil
}

func (s *MP3) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to start: %w", err)
	}
	decoder, err := mp3.NewDecoder(s.file)
	if err != nil {
		return fmt.Errorf("failed to create new decoder: %w", err)
	}
	s.decoder = decoder
	return nil
}

func (s *MP3) SampleRate() int { return s.sampleRate }
func (s *MP3) Channels() int   { return 2 }
func (s *MP3) Close() error    { return s.file.Close() }
