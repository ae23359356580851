// ABOUTME: Sine tone generator used as a stand-in voice
// ABOUTME: Produces an endless mono tone at any sample rate
package source

import (
	"math"
	"sync"
)

// Tone generates a sine wave at half of full scale.
type Tone struct {
	mu          sync.Mutex
	sampleIndex uint64
	frequency   float64
	sampleRate  int
}

// NewTone creates a mono tone of frequency Hz sampled at sampleRate.
func NewTone(frequency float64, sampleRate int) *Tone {
	return &Tone{
		frequency:  frequency,
		sampleRate: sampleRate,
	}
}

func (s *Tone) Read(samples []int16) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range samples {
		t := float64(s.sampleIndex+uint64(i)) / float64(s.sampleRate)
		samples[i] = int16(math.Sin(2*math.Pi*s.frequency*t) * 32767.0 * 0.5)
	}
	s.sampleIndex += uint64(len(samples))
	return len(samples), nil
}

func (s *Tone) SampleRate() int { return s.sampleRate }
func (s *Tone) Channels() int   { return 1 }
func (s *Tone) Close() error    { return nil }
