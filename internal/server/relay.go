// ABOUTME: Signaling relay between parties and the master, plus audio routing
// ABOUTME: The master admits and evicts parties; admitted audio goes to the mixer
package server

import (
	"go.uber.org/zap"

	"github.com/linksphere/confbridge/internal/bridge"
	"github.com/linksphere/confbridge/pkg/protocol"
)

// Relay directions and kinds recorded in metrics.
const (
	toMaster = "to_master"
	toClient = "to_client"
	kindText = "text"
	kindBin  = "binary"
)

func (s *Server) currentMaster() *Client {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return s.master
}

func (s *Server) lookup(id string) *Client {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return s.clients[id]
}

func (s *Server) notifyMaster(msg protocol.Control) {
	master := s.currentMaster()
	if master == nil {
		return
	}
	if !master.enqueue(msg) {
		s.log.Warn("could not notify master (queue full)", zap.String("type", msg.Type), zap.String("addr", msg.Addr))
	}
}

func (s *Server) handleText(client *Client, data []byte) {
	if client.IsMaster {
		s.handleMasterText(client, data)
		return
	}

	master := s.currentMaster()
	if master == nil {
		s.log.Info("no master for client message, disconnecting", zap.String("client", client.ID))
		client.enqueue(protocol.MasterMissing())
		client.enqueue(closeFrame{})
		return
	}

	annotated, err := protocol.Annotate(data, map[string]string{
		"from":       client.ID,
		"connection": protocol.ConnectionKeepAlive,
	})
	if err != nil {
		s.log.Warn("dropping malformed client message", zap.String("client", client.ID), zap.Error(err))
		return
	}
	if !master.enqueue(textFrame(annotated)) {
		s.log.Warn("master queue full, dropping client message", zap.String("client", client.ID))
		return
	}
	s.metrics.Relayed(toMaster, kindText)
}

func (s *Server) handleMasterText(master *Client, data []byte) {
	ctl, err := protocol.ParseControl(data)
	if err != nil {
		s.log.Warn("dropping malformed master message", zap.Error(err))
		return
	}

	switch ctl.Type {
	case protocol.TypeAdmit:
		if !s.admit(ctl.Addr) {
			master.enqueue(protocol.Control{Type: protocol.TypeError, Addr: ctl.Addr, Msg: "unknown client", Connection: protocol.ConnectionKeepAlive})
		}
		return
	case protocol.TypeEvict:
		s.evict(ctl.Addr)
		return
	}

	if ctl.ToSend == "" {
		s.log.Debug("master message without target ignored", zap.String("type", ctl.Type))
		return
	}
	target := s.lookup(ctl.ToSend)
	if target == nil {
		s.log.Debug("master message for unknown client ignored", zap.String("target", ctl.ToSend))
		return
	}

	if !target.enqueue(textFrame(data)) {
		s.log.Warn("client queue full, dropping master message", zap.String("client", target.ID))
		return
	}
	s.metrics.Relayed(toClient, kindText)

	if ctl.Closes() {
		s.log.Info("master closed client", zap.String("client", target.ID))
		target.enqueue(closeFrame{})
	}
}

func (s *Server) handleBinary(client *Client, data []byte) {
	if client.IsMaster {
		return
	}

	if client.Channel() != nil {
		if _, err := s.engine.Submit(client.ID, data); err != nil {
			s.log.Debug("audio for evicted channel dropped", zap.String("client", client.ID))
		}
		return
	}

	master := s.currentMaster()
	if master == nil {
		return
	}
	frame, err := protocol.EncodeRelayFrame(client.ID, data)
	if err != nil {
		s.log.Warn("cannot relay audio", zap.String("client", client.ID), zap.Error(err))
		return
	}
	if master.enqueue(frame) {
		s.metrics.Relayed(toMaster, kindBin)
	}
}

// admit puts a connected party into the mix and starts delivering its
// personalized stream. It reports whether the party was connected.
func (s *Server) admit(id string) bool {
	client := s.lookup(id)
	if client == nil {
		s.log.Warn("admit for unknown client", zap.String("client", id))
		return false
	}

	ch := s.engine.Admit(id)
	client.setChannel(ch)

	cfg := s.engine.Config()
	client.enqueue(protocol.Control{
		Type: protocol.TypeAudioStart,
		Addr: id,
		Format: &protocol.AudioFormat{
			Codec:      protocol.CodecMulaw,
			SampleRate: bridge.SampleRate,
			Channels:   1,
			FrameBytes: s.engine.FrameBytes(),
			IntervalMs: int(cfg.MixInterval.Milliseconds()),
		},
	})

	loop := s.engine.NewDeliveryLoop(ch, client)
	started := s.goTracked(func() {
		if err := loop.Run(s.ctx); err != nil {
			s.log.Info("delivery ended", zap.String("client", id), zap.Error(err))
			if client.clearChannel(ch) {
				s.engine.EvictChannel(ch)
			}
		}
	})
	if !started {
		client.clearChannel(ch)
		s.engine.EvictChannel(ch)
		return false
	}

	s.updateTUI()
	return true
}

// evict removes a party from the mix. The connection stays open.
func (s *Server) evict(id string) {
	evicted := s.engine.Evict(id)
	if client := s.lookup(id); client != nil && client.setChannel(nil) != nil {
		client.enqueue(protocol.Control{Type: protocol.TypeAudioStop, Addr: id})
	}
	if evicted {
		s.updateTUI()
	}
}
