// ABOUTME: Mixing engine: channel registry and the periodic mix tick
// ABOUTME: Every channel receives the sum of all other channels' audio
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/linksphere/confbridge/internal/logger"
	"github.com/linksphere/confbridge/internal/metrics"
	"github.com/linksphere/confbridge/pkg/audio/mulaw"
)

// ErrUnknownChannel reports audio submitted for an id with no channel. The
// audio is discarded and the registry is untouched.
var ErrUnknownChannel = errors.New("bridge: no channel for id")

// Engine owns the channel registry and mixes one frame per tick.
//
// The registry lock is held exclusively for a whole tick, so channels
// admitted or evicted concurrently take effect between ticks and never
// in the middle of one.
type Engine struct {
	cfg        Config
	frameBytes int

	channels map[string]*Channel
	mu       sync.RWMutex

	// Mixer scratch, reused across ticks.
	acc   []int32
	mixed []byte

	metrics *metrics.Bridge
	log     *zap.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithMetrics records engine activity on m.
func WithMetrics(m *metrics.Bridge) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger replaces the engine's logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// NewEngine validates cfg and returns an engine with no channels.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	frame := cfg.FrameBytes()
	e := &Engine{
		cfg:        cfg,
		frameBytes: frame,
		channels:   make(map[string]*Channel),
		acc:        make([]int32, frame),
		mixed:      make([]byte, frame),
		log:        logger.Named("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() Config {
	return e.cfg
}

// FrameBytes is the per-channel frame size mixed on every tick.
func (e *Engine) FrameBytes() int {
	return e.frameBytes
}

// Admit registers a fresh channel for id. An existing channel under the
// same id is closed and replaced.
func (e *Engine) Admit(id string) *Channel {
	ch := newChannel(id, e.cfg)

	e.mu.Lock()
	old, replaced := e.channels[id]
	e.channels[id] = ch
	n := len(e.channels)
	e.mu.Unlock()

	if replaced {
		old.close()
		e.log.Info("channel replaced", zap.String("channel", id))
	} else {
		e.log.Info("channel admitted", zap.String("channel", id), zap.Int("channels", n))
	}
	e.metrics.SetChannels(n)
	return ch
}

// Evict removes and closes the channel for id. It reports whether a
// channel was registered.
func (e *Engine) Evict(id string) bool {
	e.mu.Lock()
	ch, ok := e.channels[id]
	if ok {
		delete(e.channels, id)
	}
	n := len(e.channels)
	e.mu.Unlock()

	if !ok {
		return false
	}
	ch.close()
	e.metrics.SetChannels(n)
	e.log.Info("channel evicted", zap.String("channel", id), zap.Int("channels", n))
	return true
}

// EvictChannel evicts ch only if it is still the channel registered under
// its id, leaving a newer replacement alone.
func (e *Engine) EvictChannel(ch *Channel) bool {
	e.mu.Lock()
	cur, ok := e.channels[ch.id]
	if !ok || cur != ch {
		e.mu.Unlock()
		ch.close()
		return false
	}
	delete(e.channels, ch.id)
	n := len(e.channels)
	e.mu.Unlock()

	ch.close()
	e.metrics.SetChannels(n)
	e.log.Info("channel evicted", zap.String("channel", ch.id), zap.Int("channels", n))
	return true
}

// Submit writes compressed audio to id's inbound ring and returns the
// number of bytes accepted. Unknown ids accept nothing and report
// ErrUnknownChannel.
func (e *Engine) Submit(id string, p []byte) (int, error) {
	e.mu.RLock()
	ch, ok := e.channels[id]
	e.mu.RUnlock()
	if !ok {
		return 0, ErrUnknownChannel
	}

	n := ch.WriteInbound(p)
	e.metrics.Inbound(n, len(p)-n)
	return n, nil
}

// Channel looks up a registered channel.
func (e *Engine) Channel(id string) (*Channel, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ch, ok := e.channels[id]
	return ch, ok
}

// Len returns the number of registered channels.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.channels)
}

// Snapshot returns per-channel stats ordered by id.
func (e *Engine) Snapshot() []ChannelStats {
	e.mu.RLock()
	out := make([]ChannelStats, 0, len(e.channels))
	for _, ch := range e.channels {
		out = append(out, ch.stats())
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close evicts every channel, ending their delivery loops.
func (e *Engine) Close() {
	e.mu.Lock()
	chans := e.channels
	e.channels = make(map[string]*Channel)
	e.mu.Unlock()

	for _, ch := range chans {
		ch.close()
	}
	e.metrics.SetChannels(0)
}

// Run ticks every MixInterval until ctx is done. Ticks that fall behind
// are dropped rather than queued.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("mixing engine starting",
		zap.Duration("interval", e.cfg.MixInterval),
		zap.Int("frame_bytes", e.frameBytes))

	ticker := time.NewTicker(e.cfg.MixInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.Tick()
		case <-ctx.Done():
			e.log.Info("mixing engine stopping")
			return nil
		}
	}
}

// Tick mixes one frame for every registered channel.
//
// Pass one decodes up to one frame from each inbound ring without
// consuming it and sums every channel into the accumulator. Pass two
// writes, for each channel, the accumulator minus that channel's own
// contribution to its outbound ring. Pass three consumes exactly what
// pass one read. A channel whose inbound ring is short contributes zeros
// for the missing positions.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.channels) == 0 {
		return
	}
	start := time.Now()

	clear(e.acc)
	for _, ch := range e.channels {
		ch.faulted = false
		e.guard(ch, "accumulate", func() {
			ch.avail = ch.inbound.Peek(ch.frame)
			mulaw.DecodeFrame(ch.pcm, ch.frame[:ch.avail])
			clear(ch.pcm[ch.avail:])
			for i, s := range ch.pcm[:ch.avail] {
				e.acc[i] += int32(s)
			}
		})
	}

	for _, ch := range e.channels {
		if ch.faulted {
			continue
		}
		e.guard(ch, "mix", func() {
			for i := range e.mixed {
				e.mixed[i] = mulaw.Encode(mulaw.Clamp16(e.acc[i] - int32(ch.pcm[i])))
			}
			e.metrics.Overwritten(ch.outbound.Overwrite(e.mixed))
			ch.signal()
		})
	}

	for _, ch := range e.channels {
		if ch.faulted {
			continue
		}
		e.guard(ch, "advance", func() {
			ch.inbound.Discard(ch.avail)
		})
	}

	e.metrics.ObserveTick(time.Since(start))
}

// guard runs fn for one channel and contains any panic to that channel
// for the rest of the tick.
func (e *Engine) guard(ch *Channel, stage string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			ch.faulted = true
			e.metrics.ChannelPanicked()
			e.log.Error("channel fault during tick",
				zap.String("channel", ch.id),
				zap.String("stage", stage),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	fn()
}
