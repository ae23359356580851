// ABOUTME: TUI update helpers for server
// ABOUTME: Periodically pushes bridge state to the dashboard
package server

import (
	"context"
	"sort"
	"time"
)

// tuiLoop refreshes the dashboard every second and stops the server when
// the user quits it.
func (s *Server) tuiLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.updateTUI()
		case <-s.tui.QuitChan():
			s.log.Info("TUI quit requested, shutting down")
			s.Stop()
			return
		case <-ctx.Done():
			return
		}
	}
}

// status captures the current bridge state.
func (s *Server) status() ServerStatus {
	s.clientsMu.RLock()
	clients := make([]ClientInfo, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, ClientInfo{
			ID:       c.ID,
			Remote:   c.Remote,
			Admitted: c.Channel() != nil,
			Since:    time.Since(c.Connected),
		})
	}
	master := ""
	if s.master != nil {
		master = s.master.Remote
	}
	s.clientsMu.RUnlock()

	sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })

	addr := s.config.Addr
	s.addrMu.Lock()
	if s.addr != nil {
		addr = s.addr.String()
	}
	s.addrMu.Unlock()

	return ServerStatus{
		Name:     s.config.Name,
		Addr:     addr,
		Master:   master,
		Clients:  clients,
		Channels: s.engine.Snapshot(),
	}
}

// updateTUI sends current server state to TUI
func (s *Server) updateTUI() {
	if s.tui == nil {
		return
	}
	s.tui.Update(s.status())
}
