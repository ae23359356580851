// ABOUTME: Oto-based audio output implementation
// ABOUTME: Streams 16-bit PCM into a persistent oto player with software volume
package output

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"

	"github.com/linksphere/confbridge/internal/logger"
)

// ErrNotOpen is returned by Write before Open succeeds.
var ErrNotOpen = errors.New("output not initialized")

// Oto output implementation using oto library
type Oto struct {
	mu         sync.Mutex
	otoCtx     *oto.Context
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	sampleRate int
	channels   int
	volume     int
	muted      bool
	ready      bool

	// writeMu serializes Write so buf is never shared by two pipe writes.
	// Close takes only mu and can still unblock a writer stuck in the pipe.
	writeMu sync.Mutex
	buf     []byte
	log        *zap.Logger
}

// NewOto creates a new Oto output
func NewOto() *Oto {
	return &Oto{
		volume: 100,
		log:    logger.Named("output"),
	}
}

// Open initializes the output device. oto allows one context per process,
// so a second Open keeps the first format.
func (o *Oto) Open(sampleRate, channels int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.otoCtx != nil {
		if o.sampleRate != sampleRate || o.channels != channels {
			o.log.Warn("format change ignored, oto cannot be reinitialized",
				zap.Int("rate", o.sampleRate), zap.Int("channels", o.channels),
				zap.Int("requested_rate", sampleRate), zap.Int("requested_channels", channels))
		}
		return nil
	}

	ctx, readyChan, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	o.otoCtx = ctx
	o.sampleRate = sampleRate
	o.channels = channels

	// The persistent player drains the pipe for the lifetime of the output.
	o.pipeReader, o.pipeWriter = io.Pipe()
	o.player = o.otoCtx.NewPlayer(o.pipeReader)
	o.player.Play()
	o.ready = true

	o.log.Info("audio output initialized", zap.Int("rate", sampleRate), zap.Int("channels", channels))
	return nil
}

// Write outputs audio samples (blocks until written)
func (o *Oto) Write(samples []int16) error {
	o.writeMu.Lock()
	defer o.writeMu.Unlock()

	o.mu.Lock()
	if !o.ready {
		o.mu.Unlock()
		return ErrNotOpen
	}
	o.buf = encodeLE(o.buf, samples, volumeMultiplier(o.volume, o.muted))
	out, w := o.buf, o.pipeWriter
	o.mu.Unlock()

	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("pipe write failed: %w", err)
	}
	return nil
}

// Close releases output resources
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.pipeWriter != nil {
		o.pipeWriter.Close()
		o.pipeWriter = nil
	}
	if o.player != nil {
		o.player.Close()
		o.player = nil
	}
	if o.pipeReader != nil {
		o.pipeReader.Close()
		o.pipeReader = nil
	}
	if o.otoCtx != nil {
		if err := o.otoCtx.Suspend(); err != nil {
			o.log.Debug("suspend oto context", zap.Error(err))
		}
	}
	o.ready = false
	return nil
}

// SetVolume sets the volume (0-100)
func (o *Oto) SetVolume(volume int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.volume = max(0, min(100, volume))
}

// SetMuted sets mute state
func (o *Oto) SetMuted(muted bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.muted = muted
}

// Volume returns the current volume.
func (o *Oto) Volume() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volume
}

// Muted returns the mute state.
func (o *Oto) Muted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.muted
}

// encodeLE scales samples and serializes them little-endian into dst,
// growing it as needed.
func encodeLE(dst []byte, samples []int16, multiplier float64) []byte {
	need := len(samples) * 2
	if cap(dst) < need {
		dst = make([]byte, need)
	}
	dst = dst[:need]

	for i, s := range samples {
		scaled := int32(float64(s) * multiplier)
		scaled = max(-32768, min(32767, scaled))
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(int16(scaled)))
	}
	return dst
}

func volumeMultiplier(volume int, muted bool) float64 {
	if muted {
		return 0.0
	}
	return float64(volume) / 100.0
}
