// Package wsconn provides a WebSocket client with reconnection on top of coder/websocket.
package wsconn

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/fd1az/pricegap-monitor/internal/apperror"
)

// State represents the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

// Config holds WebSocket client configuration.
type Config struct {
	URL            string
	Name           string // used in error context
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxReconnects  int // 0 = infinite
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64 // 0 keeps the library default
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(url, name string) Config {
	return Config{
		URL:            url,
		Name:           name,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		MaxReconnects:  0, // infinite
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
		WriteTimeout:   5 * time.Second,
	}
}

// MessageHandler receives every inbound message.
type MessageHandler func(ctx context.Context, msg []byte)

// StateHandler is told about every state change, with the cause when there is one.
type StateHandler func(state State, err error)

// Client is a WebSocket client that redials with exponential backoff after
// the connection drops. Sends are safe for concurrent use.
type Client struct {
	config Config

	mu   sync.RWMutex
	conn *websocket.Conn

	state   State
	stateMu sync.RWMutex

	handlerMu sync.RWMutex
	onMessage MessageHandler
	onState   StateHandler

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a new WebSocket client.
func New(config Config) (*Client, error) {
	if config.URL == "" {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithContext("websocket url is required"))
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = time.Second
	}
	if config.MaxBackoff < config.InitialBackoff {
		config.MaxBackoff = config.InitialBackoff
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		config: config,
		state:  StateDisconnected,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// OnMessage sets the inbound message handler.
func (c *Client) OnMessage(h MessageHandler) {
	c.handlerMu.Lock()
	c.onMessage = h
	c.handlerMu.Unlock()
}

// OnStateChange sets the state change handler.
func (c *Client) OnStateChange(h StateHandler) {
	c.handlerMu.Lock()
	c.onState = h
	c.handlerMu.Unlock()
}

// Connect dials the endpoint and starts the read and ping loops.
func (c *Client) Connect(ctx context.Context) error {
	if c.ctx.Err() != nil {
		return apperror.New(apperror.CodeWebSocketClosed, apperror.WithContext(c.config.Name))
	}

	c.setState(StateConnecting, nil)
	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateDisconnected, err)
		return apperror.New(apperror.CodeWebSocketConnectionError,
			apperror.WithCause(err),
			apperror.WithContext(c.config.Name))
	}

	c.attach(conn)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, c.config.URL, nil)
	if err != nil {
		return nil, err
	}
	if c.config.MaxMessageSize > 0 {
		conn.SetReadLimit(c.config.MaxMessageSize)
	}
	return conn, nil
}

// attach installs conn as the live connection and starts its loops.
func (c *Client) attach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		_ = conn.CloseNow()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	c.setState(StateConnected, nil)

	c.wg.Add(1)
	go c.readLoop(conn)

	if c.config.PingInterval > 0 {
		c.wg.Add(1)
		go c.pingLoop(conn)
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, data, err := conn.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.detach(conn, err)
			return
		}

		c.handlerMu.RLock()
		h := c.onMessage
		c.handlerMu.RUnlock()
		if h != nil {
			h(c.ctx, data)
		}
	}
}

func (c *Client) pingLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.mu.RLock()
			current := c.conn == conn
			c.mu.RUnlock()
			if !current {
				return
			}

			pingCtx, cancel := context.WithTimeout(c.ctx, c.config.PongTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				// closing makes the read loop fail and trigger the reconnect
				_ = conn.Close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}

// detach drops conn after a read failure and starts reconnecting.
func (c *Client) detach(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.mu.Unlock()

	_ = conn.CloseNow()
	c.setState(StateReconnecting, cause)

	c.wg.Add(1)
	go c.reconnect()
}

func (c *Client) reconnect() {
	defer c.wg.Done()

	backoff := c.config.InitialBackoff
	for attempt := 1; c.config.MaxReconnects == 0 || attempt <= c.config.MaxReconnects; attempt++ {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(backoff):
		}

		conn, err := c.dial(c.ctx)
		if err == nil {
			c.attach(conn)
			return
		}
		if c.ctx.Err() != nil {
			return
		}

		c.setState(StateReconnecting, err)
		backoff = min(backoff*2, c.config.MaxBackoff)
	}

	c.setState(StateDisconnected, errors.New("reconnect attempts exhausted"))
}

// Send writes msg as a text frame.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	conn, err := c.current()
	if err != nil {
		return err
	}

	ctx, cancel := c.writeContext(ctx)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return apperror.New(apperror.CodeWebSocketSendError, apperror.WithCause(err), apperror.WithContext(c.config.Name))
	}
	return nil
}

// SendJSON writes v as a JSON text frame.
func (c *Client) SendJSON(ctx context.Context, v any) error {
	conn, err := c.current()
	if err != nil {
		return err
	}

	ctx, cancel := c.writeContext(ctx)
	defer cancel()

	if err := wsjson.Write(ctx, conn, v); err != nil {
		return apperror.New(apperror.CodeWebSocketSendError, apperror.WithCause(err), apperror.WithContext(c.config.Name))
	}
	return nil
}

func (c *Client) current() (*websocket.Conn, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return nil, apperror.New(apperror.CodeWebSocketClosed,
			apperror.WithContext(c.config.Name+": "+string(c.State())))
	}
	return conn, nil
}

func (c *Client) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.WriteTimeout > 0 {
		return context.WithTimeout(ctx, c.config.WriteTimeout)
	}
	return context.WithCancel(ctx)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// IsConnected reports whether a connection is live.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Close stops reconnecting and closes the connection. It is idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()

		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "")
		}
		c.wg.Wait()
		c.setState(StateClosed, nil)
	})
	return nil
}

func (c *Client) setState(state State, err error) {
	c.stateMu.Lock()
	if c.state == StateClosed {
		c.stateMu.Unlock()
		return
	}
	c.state = state
	c.stateMu.Unlock()

	c.handlerMu.RLock()
	h := c.onState
	c.handlerMu.RUnlock()
	if h != nil {
		h(state, err)
	}
}
