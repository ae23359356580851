// ABOUTME: Per-client audio channel: inbound and outbound rings
// ABOUTME: Written by ingress, mixed by the engine, drained by delivery
package bridge

import (
	"sync"
	"time"

	"github.com/linksphere/confbridge/pkg/audio/ring"
)

// Channel is one party's audio state. The inbound ring holds compressed
// audio received from the client; the outbound ring holds the personalized
// mix waiting to be sent back.
//
// WriteInbound, the engine tick and ReadOutboundAll may run concurrently,
// each from its own goroutine.
type Channel struct {
	id       string
	admitted time.Time

	inbound  *ring.Ring
	outbound *ring.Ring

	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// Tick scratch, touched only by the engine while it holds its lock.
	frame   []byte
	pcm     []int16
	avail   int
	faulted bool
}

func newChannel(id string, cfg Config) *Channel {
	frame := cfg.FrameBytes()
	return &Channel{
		id:       id,
		admitted: time.Now(),
		inbound:  ring.New(cfg.InboundCapacity),
		outbound: ring.New(cfg.OutboundCapacity),
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		frame:    make([]byte, frame),
		pcm:      make([]int16, frame),
	}
}

// ID returns the client identity the channel was admitted under.
func (c *Channel) ID() string {
	return c.id
}

// WriteInbound appends compressed audio from the client. Bytes beyond the
// free space are dropped and a full ring ignores the call. It returns the
// number of bytes accepted.
func (c *Channel) WriteInbound(p []byte) int {
	return c.inbound.Write(p)
}

// AvailableInbound returns inbound bytes not yet mixed.
func (c *Channel) AvailableInbound() int {
	return c.inbound.Len()
}

// AvailableOutbound returns mixed bytes not yet delivered.
func (c *Channel) AvailableOutbound() int {
	return c.outbound.Len()
}

// ReadOutboundAll drains every available mixed byte in order. It returns an
// empty slice when nothing is pending and never blocks.
func (c *Channel) ReadOutboundAll() []byte {
	return c.outbound.ReadAll()
}

// TotalWrittenInbound counts bytes ever accepted into the inbound ring.
func (c *Channel) TotalWrittenInbound() uint64 {
	return c.inbound.TotalWritten()
}

// TotalWrittenOutbound counts mixed bytes ever written to the outbound ring.
func (c *Channel) TotalWrittenOutbound() uint64 {
	return c.outbound.TotalWritten()
}

// Done is closed once the channel has been evicted.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Closed reports whether the channel has been evicted.
func (c *Channel) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Channel) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// signal wakes the delivery loop without blocking.
func (c *Channel) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// ChannelStats is a point-in-time view of one channel.
type ChannelStats struct {
	ID                string
	Admitted          time.Time
	InboundAvailable  int
	OutboundAvailable int
	InboundFree       int
	InboundTotal      uint64
	OutboundTotal     uint64

	// Ring cursor positions.
	InboundRead   int
	InboundWrite  int
	OutboundRead  int
	OutboundWrite int
}

func (c *Channel) stats() ChannelStats {
	s := ChannelStats{
		ID:                c.id,
		Admitted:          c.admitted,
		InboundAvailable:  c.inbound.Len(),
		OutboundAvailable: c.outbound.Len(),
		InboundFree:       c.inbound.Free(),
		InboundTotal:      c.inbound.TotalWritten(),
		OutboundTotal:     c.outbound.TotalWritten(),
	}
	s.InboundRead, s.InboundWrite = c.inbound.Cursors()
	s.OutboundRead, s.OutboundWrite = c.outbound.Cursors()
	return s
}
