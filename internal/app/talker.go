// ABOUTME: Conference participant: streams a voice source and plays the mix
// ABOUTME: Waits for admission, then sends one frame per mix interval
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/linksphere/confbridge/internal/bridge"
	"github.com/linksphere/confbridge/internal/client"
	"github.com/linksphere/confbridge/internal/discovery"
	"github.com/linksphere/confbridge/internal/logger"
	"github.com/linksphere/confbridge/pkg/audio/mulaw"
	"github.com/linksphere/confbridge/pkg/audio/output"
	"github.com/linksphere/confbridge/pkg/audio/source"
	"github.com/linksphere/confbridge/pkg/protocol"
)

const defaultDiscoveryTimeout = 10 * time.Second

// ErrConnectionClosed is returned by Run when the bridge hangs up.
var ErrConnectionClosed = errors.New("bridge closed the connection")

// Config holds talker configuration
type Config struct {
	// ServerAddr is host:port; empty browses mDNS for a bridge.
	ServerAddr string
	TLS        bool
	ID         string
	// Source is the voice to send. Nil sends a 440 Hz tone.
	Source source.Source
	// Output plays the received mix. Nil discards it.
	Output output.Output

	DiscoveryTimeout time.Duration
}

// Stats counts frames moved by a talker.
type Stats struct {
	Sent     uint64
	Received uint64
}

// Talker is one conference participant.
type Talker struct {
	config Config
	src    source.Source
	client *client.Client

	mu        sync.Mutex
	streaming bool
	format    protocol.AudioFormat
	// formatChanged wakes the sender when admission starts or stops.
	formatChanged chan struct{}

	sent     atomic.Uint64
	received atomic.Uint64

	log *zap.Logger
}

// New creates a talker.
func New(config Config) *Talker {
	src := config.Source
	if src == nil {
		src = source.NewTone(440, bridge.SampleRate)
	}
	if config.DiscoveryTimeout <= 0 {
		config.DiscoveryTimeout = defaultDiscoveryTimeout
	}
	return &Talker{
		config:        config,
		src:           src,
		formatChanged: make(chan struct{}, 1),
		log:           logger.Named("talker"),
	}
}

// Stats returns frame counters.
func (t *Talker) Stats() Stats {
	return Stats{Sent: t.sent.Load(), Received: t.received.Load()}
}

// Run connects, streams until ctx is done or the bridge disconnects, and
// closes the source and output.
func (t *Talker) Run(ctx context.Context) error {
	defer t.src.Close()
	if t.config.Output != nil {
		defer t.config.Output.Close()
	}

	addr, useTLS, err := t.resolve(ctx)
	if err != nil {
		return err
	}

	t.client = client.NewClient(client.Config{ServerAddr: addr, ID: t.config.ID, TLS: useTLS})
	if err := t.client.Connect(ctx); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer t.client.Close()
	t.log.Info("connected to bridge", zap.String("addr", addr), zap.String("id", t.config.ID))

	if t.config.Output != nil {
		if err := t.config.Output.Open(bridge.SampleRate, 1); err != nil {
			return fmt.Errorf("open audio output: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return t.handleControls(gctx) })
	g.Go(func() error { return t.handleAudio(gctx) })
	g.Go(func() error { return t.sendLoop(gctx) })
	g.Go(func() error {
		select {
		case <-t.client.Done():
			return ErrConnectionClosed
		case <-gctx.Done():
			return nil
		}
	})

	err = g.Wait()
	stats := t.Stats()
	t.log.Info("talker stopped", zap.Uint64("sent", stats.Sent), zap.Uint64("received", stats.Received))
	return err
}

func (t *Talker) resolve(ctx context.Context) (string, bool, error) {
	if t.config.ServerAddr != "" {
		return t.config.ServerAddr, t.config.TLS, nil
	}

	t.log.Info("browsing for a bridge", zap.Duration("timeout", t.config.DiscoveryTimeout))
	lctx, cancel := context.WithTimeout(ctx, t.config.DiscoveryTimeout)
	defer cancel()
	info, err := discovery.Lookup(lctx)
	if err != nil {
		return "", false, err
	}
	t.log.Info("discovered bridge", zap.String("name", info.Name), zap.String("addr", info.Addr()))
	return info.Addr(), info.TLS, nil
}

func (t *Talker) handleControls(ctx context.Context) error {
	for {
		select {
		case msg := <-t.client.Control:
			t.handleControl(msg)
		case <-ctx.Done():
			return nil
		}
	}
}

func (t *Talker) handleControl(msg protocol.Control) {
	switch msg.Type {
	case protocol.TypeAudioStart:
		format := protocol.AudioFormat{
			Codec:      protocol.CodecMulaw,
			SampleRate: bridge.SampleRate,
			Channels:   1,
			FrameBytes: bridge.DefaultConfig().FrameBytes(),
			IntervalMs: int(bridge.DefaultMixInterval.Milliseconds()),
		}
		if msg.Format != nil {
			format = *msg.Format
		}
		if format.Codec != protocol.CodecMulaw || format.SampleRate != bridge.SampleRate ||
			format.FrameBytes <= 0 || format.IntervalMs <= 0 {
			t.log.Error("unsupported audio format", zap.Any("format", format))
			return
		}
		t.log.Info("admitted to the conference",
			zap.Int("frame_bytes", format.FrameBytes), zap.Int("interval_ms", format.IntervalMs))
		t.setStreaming(true, format)

	case protocol.TypeAudioStop:
		t.log.Info("removed from the conference")
		t.setStreaming(false, protocol.AudioFormat{})

	case protocol.TypeError:
		t.log.Warn("bridge error", zap.String("msg", msg.Msg))

	default:
		t.log.Info("message", zap.String("type", msg.Type), zap.String("from", msg.From))
	}
}

func (t *Talker) setStreaming(on bool, format protocol.AudioFormat) {
	t.mu.Lock()
	t.streaming = on
	t.format = format
	t.mu.Unlock()

	select {
	case t.formatChanged <- struct{}{}:
	default:
	}
}

func (t *Talker) currentFormat() (protocol.AudioFormat, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.format, t.streaming
}

// sendLoop sends one frame per interval while admitted.
func (t *Talker) sendLoop(ctx context.Context) error {
	f := newFramer(t.src)
	var (
		ticker *time.Ticker
		tick   <-chan time.Time
		frame  []byte
	)
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-t.formatChanged:
			if ticker != nil {
				ticker.Stop()
				ticker, tick = nil, nil
			}
			format, on := t.currentFormat()
			if !on {
				continue
			}
			frame = make([]byte, format.FrameBytes)
			ticker = time.NewTicker(time.Duration(format.IntervalMs) * time.Millisecond)
			tick = ticker.C

		case <-tick:
			if err := f.next(frame); err != nil {
				if errors.Is(err, io.EOF) {
					t.log.Info("voice source finished")
					ticker.Stop()
					ticker, tick = nil, nil
					continue
				}
				return fmt.Errorf("read voice source: %w", err)
			}
			if err := t.client.SendAudio(frame); err != nil {
				return fmt.Errorf("%w: send audio: %w", ErrConnectionClosed, err)
			}
			t.sent.Add(1)
		}
	}
}

// handleAudio decodes the received mix and plays it.
func (t *Talker) handleAudio(ctx context.Context) error {
	var pcm []int16
	for {
		select {
		case data := <-t.client.Audio:
			t.received.Add(1)
			if t.config.Output == nil {
				continue
			}
			if cap(pcm) < len(data) {
				pcm = make([]int16, len(data))
			}
			pcm = pcm[:len(data)]
			mulaw.DecodeFrame(pcm, data)
			if err := t.config.Output.Write(pcm); err != nil {
				return fmt.Errorf("play mix: %w", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
