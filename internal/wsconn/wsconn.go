// Package wsconn provides a WebSocket client with reconnection.
package wsconn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/fd1az/chainstream/internal/logger"
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

// ErrNotConnected is returned by Send while no connection is up.
var ErrNotConnected = errors.New("websocket not connected")

// Config holds WebSocket client configuration.
type Config struct {
	URL            string
	Name           string // Used in logs
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxReconnects  int // 0 = infinite
	PingInterval   time.Duration
	PongTimeout    time.Duration
	MaxMessageSize int64 // Read limit in bytes
	Logger         logger.LoggerInterface
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
		MaxMessageSize: 1 << 20,
	}
}

// MessageHandler receives every inbound message.
type MessageHandler func(ctx context.Context, msg []byte)

// StateHandler is called on every state transition. err is the cause of a
// disconnect, if any.
type StateHandler func(state State, err error)

// Client is a WebSocket client that redials with exponential backoff when
// the connection drops.
type Client struct {
	config Config
	log    logger.LoggerInterface

	conn   *websocket.Conn
	connMu sync.RWMutex

	state   State
	stateMu sync.RWMutex

	onMessage     MessageHandler
	onStateChange StateHandler
	handlersMu    sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closed     atomic.Bool
	reconnects atomic.Int32
}

// New creates a new WebSocket client. It does not dial.
func New(config Config) (*Client, error) {
	if config.URL == "" {
		return nil, errors.New("wsconn: url is required")
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = time.Second
	}
	if config.MaxBackoff < config.InitialBackoff {
		config.MaxBackoff = config.InitialBackoff
	}

	log := config.Logger
	if log == nil {
		log = logger.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		config: config,
		log:    log,
		state:  StateDisconnected,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// OnMessage sets the inbound message handler.
func (c *Client) OnMessage(h MessageHandler) {
	c.handlersMu.Lock()
	c.onMessage = h
	c.handlersMu.Unlock()
}

// OnStateChange sets the state transition handler.
func (c *Client) OnStateChange(h StateHandler) {
	c.handlersMu.Lock()
	c.onStateChange = h
	c.handlersMu.Unlock()
}

// Connect dials the server and starts the read and ping loops. ctx bounds
// the dial only; the connection lives until Close.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return errors.New("wsconn: client is closed")
	}

	c.setState(StateConnecting, nil)

	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateDisconnected, err)
		return err
	}

	c.attach(conn)
	c.setState(StateConnected, nil)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, c.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.config.Name, err)
	}
	if c.config.MaxMessageSize > 0 {
		conn.SetReadLimit(c.config.MaxMessageSize)
	}
	return conn, nil
}

// attach installs conn and starts its loops.
func (c *Client) attach(conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

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
			c.handleDisconnect(conn, err)
			return
		}

		c.handlersMu.RLock()
		h := c.onMessage
		c.handlersMu.RUnlock()
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
			ctx, cancel := context.WithTimeout(c.ctx, c.config.PongTimeout)
			err := conn.Ping(ctx)
			cancel()
			if err != nil {
				// Closing unblocks the read loop, which reconnects.
				c.log.Warn(c.ctx, "websocket ping failed", "name", c.config.Name, "error", err)
				_ = conn.CloseNow()
				return
			}
			if c.currentConn() != conn {
				return
			}
		}
	}
}

func (c *Client) handleDisconnect(conn *websocket.Conn, cause error) {
	_ = conn.CloseNow()

	c.connMu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.connMu.Unlock()

	if c.closed.Load() {
		return
	}

	c.log.Warn(c.ctx, "websocket disconnected", "name", c.config.Name, "error", cause)
	c.setState(StateReconnecting, cause)
	c.reconnect()
}

// reconnect redials until it succeeds, MaxReconnects is reached or the
// client is closed. The first attempt waits InitialBackoff.
func (c *Client) reconnect() {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.InitialBackoff
	bo.MaxInterval = c.config.MaxBackoff
	bo.Multiplier = 2

	for attempt := 1; ; attempt++ {
		if c.config.MaxReconnects > 0 && attempt > c.config.MaxReconnects {
			err := fmt.Errorf("gave up after %d reconnects", c.config.MaxReconnects)
			c.log.Error(c.ctx, "websocket reconnect failed", "name", c.config.Name, "error", err)
			c.setState(StateDisconnected, err)
			return
		}

		timer := time.NewTimer(bo.NextBackOff())
		select {
		case <-c.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(c.ctx, c.config.MaxBackoff)
		conn, err := c.dial(ctx)
		cancel()
		if err != nil {
			c.log.Warn(c.ctx, "websocket reconnect attempt failed",
				"name", c.config.Name, "attempt", attempt, "error", err)
			continue
		}
		if c.closed.Load() {
			_ = conn.CloseNow()
			return
		}

		c.reconnects.Add(1)
		c.log.Info(c.ctx, "websocket reconnected", "name", c.config.Name, "attempt", attempt)

		// Run the new loops on fresh goroutines; this one belongs to the
		// read loop that just ended.
		c.attach(conn)
		c.setState(StateConnected, nil)
		return
	}
}

func (c *Client) currentConn() *websocket.Conn {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn
}

// Send writes a text message.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	conn := c.currentConn()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Write(ctx, websocket.MessageText, msg)
}

// SendJSON writes v encoded as JSON.
func (c *Client) SendJSON(ctx context.Context, v any) error {
	conn := c.currentConn()
	if conn == nil {
		return ErrNotConnected
	}
	return wsjson.Write(ctx, conn, v)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// IsConnected reports whether the connection is up.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Reconnects returns how many times the client has redialed.
func (c *Client) Reconnects() int {
	return int(c.reconnects.Load())
}

// Close closes the connection and stops reconnecting. It is idempotent.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.cancel()
	if conn := c.currentConn(); conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
	c.wg.Wait()

	c.setState(StateClosed, nil)
	return nil
}

func (c *Client) setState(state State, err error) {
	c.stateMu.Lock()
	c.state = state
	c.stateMu.Unlock()

	c.handlersMu.RLock()
	h := c.onStateChange
	c.handlersMu.RUnlock()
	if h != nil {
		h(state, err)
	}
}
