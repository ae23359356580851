// ABOUTME: Delivery loop draining a channel's outbound ring to its transport
// ABOUTME: Wakes on mixer notification or a poll timer, whichever comes first
package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/linksphere/confbridge/internal/metrics"
)

// Transport sends one mixed payload to a client.
type Transport interface {
	Send(p []byte) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(p []byte) error

// Send calls f(p).
func (f TransportFunc) Send(p []byte) error {
	return f(p)
}

// DeliveryLoop forwards a channel's mixed audio to its transport in the
// order it was mixed, draining everything available on each wakeup.
type DeliveryLoop struct {
	Channel      *Channel
	Transport    Transport
	PollInterval time.Duration

	Metrics *metrics.Bridge
	Log     *zap.Logger
}

// NewDeliveryLoop builds a loop for ch using the engine's poll interval
// and instrumentation.
func (e *Engine) NewDeliveryLoop(ch *Channel, t Transport) *DeliveryLoop {
	return &DeliveryLoop{
		Channel:      ch,
		Transport:    t,
		PollInterval: e.cfg.PollInterval(),
		Metrics:      e.metrics,
		Log:          e.log.Named("delivery"),
	}
}

// Run delivers until ctx is done, the channel is evicted or a send fails.
// Only a send failure yields a non-nil error.
func (d *DeliveryLoop) Run(ctx context.Context) error {
	if d.Channel == nil || d.Transport == nil {
		return errors.New("bridge: delivery loop needs a channel and a transport")
	}
	poll := d.PollInterval
	if poll <= 0 {
		poll = DefaultMixInterval / 2
	}
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		if data := d.Channel.ReadOutboundAll(); len(data) > 0 {
			if err := d.Transport.Send(data); err != nil {
				d.Metrics.DeliveryFailed()
				log.Warn("delivery stopped",
					zap.String("channel", d.Channel.ID()),
					zap.Error(err))
				return fmt.Errorf("deliver to %s: %w", d.Channel.ID(), err)
			}
			d.Metrics.Delivered(len(data))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-d.Channel.Done():
			return nil
		case <-d.Channel.notify:
		case <-ticker.C:
		}
	}
}
