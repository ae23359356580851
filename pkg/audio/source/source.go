// ABOUTME: Voice sources feeding a conference client
// ABOUTME: Interleaved 16-bit PCM from a test tone or an audio file
package source

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Source produces interleaved 16-bit PCM.
type Source interface {
	// Read fills samples and returns how many were written. It returns
	// io.EOF once a non-looping source is exhausted.
	Read(samples []int16) (int, error)
	SampleRate() int
	Channels() int
	Close() error
}

// OpenFile opens an MP3 or FLAC file by extension. A looping source
// starts over at the end of the file instead of returning io.EOF.
func OpenFile(path string, loop bool) (Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return OpenMP3(path, loop)
	case ".flac":
		return OpenFLAC(path, loop)
	default:
		return nil, fmt.Errorf("unsupported audio file %q: want .mp3 or .flac", filepath.Base(path))
	}
}
