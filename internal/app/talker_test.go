package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linksphere/confbridge/internal/bridge"
	"github.com/linksphere/confbridge/internal/server"
	"github.com/linksphere/confbridge/pkg/audio/mulaw"
	"github.com/linksphere/confbridge/pkg/audio/source"
	"github.com/linksphere/confbridge/pkg/protocol"
)

const waitFor = 3 * time.Second

// constSource yields a fixed value on every channel, optionally for a
// limited number of samples.
type constSource struct {
	value    int16
	rate     int
	channels int
	limit    int
	closed   bool
}

func (s *constSource) Read(samples []int16) (int, error) {
	n := len(samples)
	if s.limit >= 0 {
		if s.limit == 0 {
			return 0, io.EOF
		}
		n = min(n, s.limit)
		s.limit -= n
	}
	for i := range samples[:n] {
		samples[i] = s.value
	}
	return n, nil
}

func (s *constSource) SampleRate() int { return s.rate }
func (s *constSource) Channels() int   { return s.channels }

func (s *constSource) Close() error {
	s.closed = true
	return nil
}

type failingSource struct{ constSource }

func (s *failingSource) Read([]int16) (int, error) { return 0, errors.New("device unplugged") }

type recordingOutput struct {
	mu     sync.Mutex
	opened bool
	closed bool
	writes [][]int16
}

func (o *recordingOutput) Open(sampleRate, channels int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = sampleRate == bridge.SampleRate && channels == 1
	return nil
}

func (o *recordingOutput) Write(samples []int16) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes = append(o.writes, append([]int16(nil), samples...))
	return nil
}

func (o *recordingOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

func (o *recordingOutput) heard(value int16) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, w := range o.writes {
		for _, s := range w {
			if s == value {
				return true
			}
		}
	}
	return false
}

func TestFramerEncodesTone(t *testing.T) {
	f := newFramer(source.NewTone(440, bridge.SampleRate))
	frame := make([]byte, 160)
	require.NoError(t, f.next(frame))

	want := make([]int16, 160)
	_, err := source.NewTone(440, bridge.SampleRate).Read(want)
	require.NoError(t, err)

	expected := make([]byte, 160)
	mulaw.EncodeFrame(expected, want)
	assert.Equal(t, expected, frame)
}

func TestFramerDownmixesAndResamples(t *testing.T) {
	f := newFramer(&constSource{value: 1000, rate: 44100, channels: 2, limit: -1})
	frame := make([]byte, 160)

	for i := 0; i < 5; i++ {
		require.NoError(t, f.next(frame))
		assert.Equal(t, bytes.Repeat([]byte{mulaw.Encode(1000)}, 160), frame)
	}
}

func TestFramerEndOfSource(t *testing.T) {
	f := newFramer(&constSource{value: 0, rate: bridge.SampleRate, channels: 1, limit: 200})
	frame := make([]byte, 160)

	require.NoError(t, f.next(frame))
	assert.ErrorIs(t, f.next(frame), io.EOF)
	assert.ErrorIs(t, f.next(frame), io.EOF)
}

func TestFramerSourceError(t *testing.T) {
	f := newFramer(&failingSource{constSource{rate: 8000, channels: 1}})
	err := f.next(make([]byte, 160))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unplugged")
}

func TestHandleControlStartAndStop(t *testing.T) {
	tk := New(Config{})

	tk.handleControl(protocol.Control{Type: protocol.TypeAudioStart})
	format, on := tk.currentFormat()
	assert.True(t, on)
	assert.Equal(t, 160, format.FrameBytes)
	assert.Equal(t, 20, format.IntervalMs)

	tk.handleControl(protocol.Control{Type: protocol.TypeAudioStop})
	_, on = tk.currentFormat()
	assert.False(t, on)
}

func TestHandleControlRejectsUnknownCodec(t *testing.T) {
	tk := New(Config{})
	tk.handleControl(protocol.Control{
		Type:   protocol.TypeAudioStart,
		Format: &protocol.AudioFormat{Codec: "opus", SampleRate: 48000, FrameBytes: 960, IntervalMs: 20},
	})
	_, on := tk.currentFormat()
	assert.False(t, on)
}

func startBridge(t *testing.T) string {
	t.Helper()
	s, err := server.New(server.Config{
		Addr:      "127.0.0.1:0",
		Name:      "test-bridge",
		Engine:    bridge.DefaultConfig(),
		AutoAdmit: true,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s.Addr().String()
}

func TestTalkersHearEachOther(t *testing.T) {
	addr := startBridge(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	voice := &constSource{value: 5000, rate: 16000, channels: 2, limit: -1}
	alice := New(Config{ServerAddr: addr, ID: "alice", Source: voice})
	out := &recordingOutput{}
	bob := New(Config{
		ServerAddr: addr,
		ID:         "bob",
		Source:     &constSource{rate: bridge.SampleRate, channels: 1, limit: -1},
		Output:     out,
	})

	errs := make(chan error, 2)
	go func() { errs <- alice.Run(ctx) }()
	go func() { errs <- bob.Run(ctx) }()

	// Bob hears alice's decoded voice re-encoded by the mixer.
	heard := mulaw.Decode(mulaw.Encode(mulaw.Decode(mulaw.Encode(5000))))
	require.Eventually(t, func() bool { return out.heard(heard) }, waitFor, 10*time.Millisecond)
	assert.Greater(t, alice.Stats().Sent, uint64(0))
	assert.Greater(t, bob.Stats().Received, uint64(0))

	cancel()
	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			assert.NoError(t, err)
		case <-time.After(waitFor):
			t.Fatal("talker did not stop")
		}
	}
	assert.True(t, voice.closed)
	out.mu.Lock()
	assert.True(t, out.opened)
	assert.True(t, out.closed)
	out.mu.Unlock()
}

func TestTalkerReportsBridgeShutdown(t *testing.T) {
	s, err := server.New(server.Config{
		Addr:      "127.0.0.1:0",
		Engine:    bridge.DefaultConfig(),
		AutoAdmit: true,
	})
	require.NoError(t, err)
	sctx, stop := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.Run(sctx) }()
	addr := s.Addr().String()

	tk := New(Config{ServerAddr: addr, ID: "carol"})
	errs := make(chan error, 1)
	go func() { errs <- tk.Run(context.Background()) }()

	require.Eventually(t, func() bool { return tk.Stats().Sent > 0 }, waitFor, 10*time.Millisecond)
	stop()
	require.NoError(t, <-served)

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrConnectionClosed)
	case <-time.After(waitFor):
		t.Fatal("talker did not notice the shutdown")
	}
}

func TestTalkerConnectFailure(t *testing.T) {
	src := &constSource{rate: 8000, channels: 1, limit: -1}
	tk := New(Config{ServerAddr: "127.0.0.1:1", Source: src})
	err := tk.Run(context.Background())
	require.Error(t, err)
	assert.True(t, src.closed)
}
