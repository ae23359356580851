package server

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"github.com/linksphere/confbridge/internal/bridge"
)

func TestTUIViewShowsStatus(t *testing.T) {
	m := tuiModel{startTime: time.Now(), quitChan: make(chan struct{}, 1)}
	updated, _ := m.Update(statusMsg(ServerStatus{
		Name:   "lab",
		Addr:   "127.0.0.1:3000",
		Master: "127.0.0.1:5555",
		Clients: []ClientInfo{
			{ID: "alice", Remote: "10.0.0.2:4000", Admitted: true},
			{ID: "bob", Remote: "10.0.0.3:4000"},
		},
		Channels: []bridge.ChannelStats{{
			ID: "alice", InboundTotal: 320, OutboundTotal: 480,
			InboundRead: 160, InboundWrite: 320, OutboundRead: 0, OutboundWrite: 480,
		}},
	}))

	view := updated.View()
	assert.Contains(t, view, "lab")
	assert.Contains(t, view, "127.0.0.1:5555")
	assert.Contains(t, view, "Connected Parties (2)")
	assert.Contains(t, view, "alice")
	assert.Contains(t, view, "in mix")
	assert.Contains(t, view, "waiting")
	assert.Contains(t, view, "Mix Channels (1)")
	assert.Contains(t, view, "480")
	assert.Contains(t, view, "160/320")
	assert.Contains(t, view, "0/480")
}

func TestTUIViewWithoutMaster(t *testing.T) {
	m := tuiModel{startTime: time.Now()}
	view := m.View()
	assert.Contains(t, view, "not connected")
	assert.Contains(t, view, "No parties connected")
}

func TestTUIQuitSignalsServer(t *testing.T) {
	quit := make(chan struct{}, 1)
	m := tuiModel{startTime: time.Now(), quitChan: quit}

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.NotNil(t, cmd)
	assert.Contains(t, updated.View(), "Shutting down")

	select {
	case <-quit:
	default:
		t.Fatal("quit was not signalled")
	}
}

func TestTUIUpdateNeverBlocks(t *testing.T) {
	tui := NewServerTUI()
	for i := 0; i < 50; i++ {
		tui.Update(ServerStatus{Name: "lab"})
	}
	tui.Stop()
	tui.Stop()
}
