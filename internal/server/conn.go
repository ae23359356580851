// ABOUTME: WebSocket connection handling for bridge clients and the master
// ABOUTME: One reader per connection plus a writer goroutine fed by a queue
package server

import (
	"errors"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/linksphere/confbridge/internal/bridge"
	"github.com/linksphere/confbridge/pkg/protocol"
)

const (
	sendQueueSize = 100
	pingInterval  = 30 * time.Second
	writeDeadline = 10 * time.Second
	maxMessage    = 1 << 20
)

var errClientGone = errors.New("client connection closed")

// textFrame is a pre-encoded JSON message.
type textFrame []byte

// closeFrame asks the writer to close the connection once everything
// queued before it has been written.
type closeFrame struct{}

// Client is one WebSocket connection, either the master or a party.
type Client struct {
	ID        string
	SessionID string
	Remote    string
	IsMaster  bool
	Conn      *websocket.Conn
	Connected time.Time

	sendChan  chan interface{}
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	channel *bridge.Channel
}

func newClient(id, remote string, master bool, conn *websocket.Conn) *Client {
	return &Client{
		ID:        id,
		SessionID: uuid.NewString(),
		Remote:    remote,
		IsMaster:  master,
		Conn:      conn,
		Connected: time.Now(),
		sendChan:  make(chan interface{}, sendQueueSize),
		done:      make(chan struct{}),
	}
}

// Send queues mixed audio for the client. It blocks while the queue is
// full and fails once the connection has gone away.
func (c *Client) Send(p []byte) error {
	select {
	case c.sendChan <- p:
		return nil
	case <-c.done:
		return errClientGone
	}
}

// enqueue queues a message without blocking.
func (c *Client) enqueue(msg interface{}) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.sendChan <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) finish() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Channel returns the mixing channel, nil when not admitted.
func (c *Client) Channel() *bridge.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

func (c *Client) setChannel(ch *bridge.Channel) *bridge.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.channel
	c.channel = ch
	return old
}

// clearChannel forgets ch if it is still the client's channel.
func (c *Client) clearChannel(ch *bridge.Channel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != ch {
		return false
	}
	c.channel = nil
	return true
}

// identify derives the connection identity and whether it may act as
// master. The remote host is the identity unless an id query parameter
// names one.
func (s *Server) identify(r *http.Request) (id string, master bool) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	q := r.URL.Query()
	id = host
	if v := q.Get("id"); v != "" {
		id = v
	}

	master = q.Get("role") != "client" && slices.Contains(s.config.MasterHosts, host)
	return id, master
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade error", zap.Error(err))
		return
	}

	id, master := s.identify(r)
	client := newClient(id, r.RemoteAddr, master, conn)
	s.log.Info("new WebSocket connection",
		zap.String("client", id),
		zap.String("remote", r.RemoteAddr),
		zap.String("session", client.SessionID),
		zap.Bool("master", master))

	s.handleConnection(client)
}

// handleConnection manages a connection until it closes
func (s *Server) handleConnection(client *Client) {
	conn := client.Conn
	defer conn.Close()
	defer client.finish()

	if !s.register(client) {
		return
	}
	s.metrics.AddConnections(1)
	defer s.metrics.AddConnections(-1)
	defer s.unregister(client)

	if !s.goTracked(func() { s.clientWriter(client) }) {
		return
	}

	if !client.IsMaster {
		s.notifyMaster(protocol.Connected(client.ID))
		if s.config.AutoAdmit {
			s.admit(client.ID)
		}
	}
	s.updateTUI()

	conn.SetReadLimit(maxMessage)
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Warn("WebSocket error", zap.String("client", client.ID), zap.Error(err))
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			s.handleText(client, data)
		case websocket.BinaryMessage:
			s.handleBinary(client, data)
		}
	}
}

// register adds the connection. A new master replaces the old one; a
// second party under an id already in use is turned away, as is any
// connection arriving once shutdown has begun.
func (s *Server) register(client *Client) bool {
	s.clientsMu.Lock()
	// Checked under clientsMu so that shutdown's snapshot of connections
	// either includes this one or this one sees the flag.
	if s.shuttingDown() {
		s.clientsMu.Unlock()
		s.log.Info("rejecting connection during shutdown", zap.String("client", client.ID))
		client.Conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeDeadline))
		return false
	}
	if client.IsMaster {
		old := s.master
		s.master = client
		s.clientsMu.Unlock()
		if old != nil {
			s.log.Info("master replaced", zap.String("old", old.SessionID), zap.String("new", client.SessionID))
			old.enqueue(closeFrame{})
		}
		return true
	}

	if _, exists := s.clients[client.ID]; exists {
		s.clientsMu.Unlock()
		s.log.Warn("client id already connected, rejecting duplicate", zap.String("client", client.ID))

		msg := protocol.Control{Type: protocol.TypeError, Msg: "duplicate client id", Connection: protocol.ConnectionClose}
		if data, err := msg.Marshal(); err == nil {
			client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			client.Conn.WriteMessage(websocket.TextMessage, data)
		}
		client.Conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "duplicate client id"),
			time.Now().Add(writeDeadline))
		return false
	}
	s.clients[client.ID] = client
	s.clientsMu.Unlock()
	return true
}

func (s *Server) unregister(client *Client) {
	if client.IsMaster {
		s.clientsMu.Lock()
		if s.master == client {
			s.master = nil
		}
		s.clientsMu.Unlock()
		s.log.Info("master disconnected", zap.String("session", client.SessionID))
		s.updateTUI()
		return
	}

	s.evict(client.ID)

	s.clientsMu.Lock()
	if s.clients[client.ID] == client {
		delete(s.clients, client.ID)
	}
	s.clientsMu.Unlock()

	s.notifyMaster(protocol.Disconnected(client.ID))
	s.log.Info("client disconnected", zap.String("client", client.ID))
	s.updateTUI()
}

// clientWriter sends queued messages to the client
func (s *Server) clientWriter(client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	// A failed write must also end the reader.
	defer client.Conn.Close()

	write := func(messageType int, data []byte) bool {
		client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := client.Conn.WriteMessage(messageType, data); err != nil {
			s.log.Debug("write failed", zap.String("client", client.ID), zap.Error(err))
			return false
		}
		return true
	}

	for {
		select {
		case msg := <-client.sendChan:
			switch v := msg.(type) {
			case []byte:
				if !write(websocket.BinaryMessage, v) {
					return
				}
			case textFrame:
				if !write(websocket.TextMessage, v) {
					return
				}
			case protocol.Control:
				data, err := v.Marshal()
				if err != nil {
					s.log.Warn("marshal control message", zap.Error(err))
					continue
				}
				if !write(websocket.TextMessage, data) {
					return
				}
			case closeFrame:
				client.Conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeDeadline))
				return
			}

		case <-ticker.C:
			if err := client.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				return
			}

		case <-client.done:
			return
		}
	}
}
