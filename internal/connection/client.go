package connection

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is the minimal transport contract the Manager depends on: one
// bidirectional streaming connection delivering raw bytes both ways.
type Client interface {
	// Connect opens the connection.
	Connect(ctx context.Context) error

	// Close closes the connection. Idempotent.
	Close() error

	// Send writes raw bytes to the connection.
	Send(data []byte) error

	// Messages returns the channel of inbound raw messages.
	Messages() <-chan RawMessage

	// Errors returns the channel of transport errors (read failures,
	// abnormal closes).
	Errors() <-chan error

	// IsConnected reports whether the connection is open.
	IsConnected() bool
}

// wsClient implements Client over a WebSocket.
type wsClient struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn

	messages chan RawMessage
	errors   chan error
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	mu        sync.RWMutex
	connected bool
	closed    bool
}

// NewClient creates a WebSocket transport client.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 100
	}

	return &wsClient{
		cfg:      cfg,
		logger:   logger,
		messages: make(chan RawMessage, cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// Connect dials the endpoint. Workspace and user ride along as opaque
// routing headers.
func (c *wsClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	header := http.Header{}
	if c.cfg.WorkspaceID != "" {
		header.Set("X-Workspace-ID", c.cfg.WorkspaceID)
	}
	if c.cfg.UserID != "" {
		header.Set("X-User-ID", c.cfg.UserID)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readLoop()

	c.logger.Debug("transport connected", "url", c.cfg.URL)
	return nil
}

// Close closes the connection. Safe to call more than once.
func (c *wsClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	c.mu.Unlock()

	close(c.done)

	if c.conn != nil {
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return c.conn.Close()
	}
	return nil
}

// Send writes raw bytes to the connection.
func (c *wsClient) Send(data []byte) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsClient) Messages() <-chan RawMessage {
	return c.messages
}

func (c *wsClient) Errors() <-chan error {
	return c.errors
}

func (c *wsClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// readLoop reads frames into the messages channel until the connection
// drops or Close is called.
func (c *wsClient) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			// Errors after Close are expected noise
			select {
			case <-c.done:
				return
			default:
				select {
				case c.errors <- err:
				default:
				}
				return
			}
		}

		msg := RawMessage{Data: data, ReceivedAt: receivedAt}

		select {
		case c.messages <- msg:
		case <-c.done:
			return
		default:
			c.logger.Warn("inbound buffer full, dropping message")
		}
	}
}
