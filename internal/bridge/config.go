// ABOUTME: Mixing engine configuration and derived frame geometry
// ABOUTME: Audio format is fixed to 8 kHz mono 8-bit companded samples
package bridge

import (
	"errors"
	"fmt"
	"time"
)

const (
	// SampleRate is the only supported rate in Hz.
	SampleRate = 8000

	// BitsPerSample is the width of one companded sample.
	BitsPerSample = 8

	// BytesPerSample follows from BitsPerSample.
	BytesPerSample = BitsPerSample / 8

	DefaultInboundCapacity  = 16384
	DefaultOutboundCapacity = 16384
	DefaultMixInterval      = 20 * time.Millisecond
)

// ErrInvalidConfig is wrapped by every Config validation failure.
var ErrInvalidConfig = errors.New("bridge: invalid config")

// Config is fixed at engine construction.
type Config struct {
	InboundCapacity  int
	OutboundCapacity int
	MixInterval      time.Duration

	// DeliveryPoll bounds how long an idle delivery loop waits before
	// re-checking its outbound ring. Zero means MixInterval/2.
	DeliveryPoll time.Duration
}

// DefaultConfig returns 16 KiB rings and a 20 ms tick.
func DefaultConfig() Config {
	return Config{
		InboundCapacity:  DefaultInboundCapacity,
		OutboundCapacity: DefaultOutboundCapacity,
		MixInterval:      DefaultMixInterval,
	}
}

// FrameBytes is the number of bytes mixed per channel per tick.
func (c Config) FrameBytes() int {
	ms := int(c.MixInterval / time.Millisecond)
	return SampleRate * ms / 1000 * BytesPerSample
}

// PollInterval resolves the delivery poll interval.
func (c Config) PollInterval() time.Duration {
	if c.DeliveryPoll > 0 {
		return c.DeliveryPoll
	}
	return c.MixInterval / 2
}

// Validate checks that the tick yields a whole, non-empty frame that fits
// in both rings.
func (c Config) Validate() error {
	if c.MixInterval < time.Millisecond {
		return fmt.Errorf("%w: mix interval %v is below 1ms", ErrInvalidConfig, c.MixInterval)
	}
	if c.MixInterval%time.Millisecond != 0 {
		return fmt.Errorf("%w: mix interval %v is not a whole number of milliseconds", ErrInvalidConfig, c.MixInterval)
	}
	frame := c.FrameBytes()
	if frame <= 0 {
		return fmt.Errorf("%w: mix interval %v yields an empty frame", ErrInvalidConfig, c.MixInterval)
	}
	if c.InboundCapacity < frame {
		return fmt.Errorf("%w: inbound capacity %d is smaller than a %d byte frame", ErrInvalidConfig, c.InboundCapacity, frame)
	}
	if c.OutboundCapacity < frame {
		return fmt.Errorf("%w: outbound capacity %d is smaller than a %d byte frame", ErrInvalidConfig, c.OutboundCapacity, frame)
	}
	if c.DeliveryPoll < 0 {
		return fmt.Errorf("%w: negative delivery poll interval", ErrInvalidConfig)
	}
	return nil
}
