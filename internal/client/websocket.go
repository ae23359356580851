// ABOUTME: WebSocket client for joining a conference bridge
// ABOUTME: Sends encoded voice frames and routes the mix and control messages
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/linksphere/confbridge/internal/logger"
	"github.com/linksphere/confbridge/pkg/protocol"
)

const (
	// DefaultPath is the bridge's WebSocket endpoint.
	DefaultPath = "/bridge"

	writeTimeout = 10 * time.Second
)

// ErrNotConnected is returned when sending on a closed client.
var ErrNotConnected = errors.New("not connected")

// Config holds client configuration
type Config struct {
	// ServerAddr is host:port of the bridge.
	ServerAddr string
	// ID names this party on the bridge. Empty lets the server use the
	// remote address.
	ID   string
	Path string
	TLS  bool
}

// URL returns the WebSocket URL the client dials.
func (c Config) URL() string {
	u := url.URL{Scheme: "ws", Host: c.ServerAddr, Path: c.Path}
	if c.TLS {
		u.Scheme = "wss"
	}
	if u.Path == "" {
		u.Path = DefaultPath
	}
	q := url.Values{}
	q.Set("role", "client")
	if c.ID != "" {
		q.Set("id", c.ID)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Client represents a WebSocket client
type Client struct {
	config Config
	conn   *websocket.Conn
	mu     sync.RWMutex
	// writeMu serializes writers; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	// Audio carries mixed frames from the bridge.
	Audio chan []byte
	// Control carries JSON messages from the bridge or the master.
	Control chan protocol.Control

	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
	log       *zap.Logger
}

// NewClient creates a new WebSocket client
func NewClient(config Config) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		config:  config,
		Audio:   make(chan []byte, 100),
		Control: make(chan protocol.Control, 10),
		ctx:     ctx,
		cancel:  cancel,
		log:     logger.Named("client"),
	}
}

// Connect dials the bridge and starts the reader.
func (c *Client) Connect(ctx context.Context) error {
	u := c.config.URL()
	c.log.Info("connecting", zap.String("url", u))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readMessages()
	return nil
}

// Done is closed once the connection has ended.
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

// readMessages reads and routes incoming messages
func (c *Client) readMessages() {
	defer c.Close()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.log.Info("bridge closed the connection")
			} else if c.ctx.Err() == nil {
				c.log.Warn("read error", zap.Error(err))
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			select {
			case c.Audio <- data:
			case <-c.ctx.Done():
				return
			}
		case websocket.TextMessage:
			c.handleText(data)
		}
	}
}

func (c *Client) handleText(data []byte) {
	msg, err := protocol.ParseControl(data)
	if err != nil {
		c.log.Warn("failed to parse control message", zap.Error(err))
		return
	}
	c.log.Debug("control message", zap.String("type", msg.Type))

	select {
	case c.Control <- msg:
	case <-c.ctx.Done():
	}
}

func (c *Client) write(messageType int, data []byte) error {
	c.mu.RLock()
	conn, connected := c.conn, c.connected
	c.mu.RUnlock()
	if !connected {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(messageType, data)
}

// SendAudio sends one encoded voice frame.
func (c *Client) SendAudio(frame []byte) error {
	return c.write(websocket.BinaryMessage, frame)
}

// SendControl sends a JSON message to the master.
func (c *Client) SendControl(msg protocol.Control) error {
	data, err := msg.Marshal()
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, data)
}

// Close closes the connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		c.cancel()

		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()

		c.conn.Close()
		c.log.Info("connection closed")
	}
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
