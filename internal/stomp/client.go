package stomp

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lyfcircle/circle/internal/metrics"
)

// disconnectTimeout bounds the wait for the broker's DISCONNECT receipt.
const disconnectTimeout = 2 * time.Second

// ClientConfig holds broker connection parameters.
type ClientConfig struct {
	URL            string
	Host           string
	ReconnectDelay time.Duration
	HeartBeat      time.Duration
	ConnectTimeout time.Duration
}

// DefaultClientConfig returns defaults for a local broker.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		URL:            "ws://localhost:8080/api/ws-chat/websocket",
		ReconnectDelay: 5 * time.Second,
		HeartBeat:      10 * time.Second,
		ConnectTimeout: 10 * time.Second,
	}
}

// Handlers are the lifecycle callbacks of a Client. They run on the
// client's connection goroutine, never concurrently with each other.
type Handlers struct {
	// OnConnect runs after every successful handshake, before any message
	// for the new connection is delivered to a subscription.
	OnConnect func()
	// OnDisconnect runs when an established connection drops. It is not
	// called for the close requested by Deactivate.
	OnDisconnect func(err error)
	// OnStompError runs for every ERROR frame from the broker.
	OnStompError func(err *ServerError)
}

// Client keeps a STOMP connection to the broker alive, redialing after a
// fixed delay whenever it drops.
type Client struct {
	cfg ClientConfig
	log zerolog.Logger

	mu       sync.Mutex
	handlers Handlers
	conn     *Conn
	active   bool
	stopping bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewClient creates an inactive client.
func NewClient(cfg ClientConfig, log zerolog.Logger) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultClientConfig().ReconnectDelay
	}
	return &Client{cfg: cfg, log: log}
}

// SetHandlers replaces the lifecycle callbacks. It takes effect on the next
// event.
func (c *Client) SetHandlers(h Handlers) {
	c.mu.Lock()
	c.handlers = h
	c.mu.Unlock()
}

// Activate starts connecting in the background. It is a no-op when the
// client is already active.
func (c *Client) Activate(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.active = true
	c.stopping = false
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx, c.done)
}

// Deactivate disconnects gracefully and stops reconnecting. It returns once
// the background loop has exited or ctx ends.
func (c *Client) Deactivate(ctx context.Context) error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return nil
	}
	c.stopping = true
	conn := c.conn
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	var err error
	if conn != nil {
		dctx, cancelDisconnect := context.WithTimeout(ctx, disconnectTimeout)
		err = conn.Disconnect(dctx)
		cancelDisconnect()
	}
	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	// The run loop is cancelled either way and never touches the client
	// again once its context is done, so the client can be reactivated.
	c.mu.Lock()
	c.active = false
	c.conn = nil
	c.mu.Unlock()
	return err
}

// Connected reports whether a broker session is currently established.
func (c *Client) Connected() bool {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return false
	}
	select {
	case <-conn.Done():
		return false
	default:
		return true
	}
}

// Subscribe subscribes on the current connection. Subscriptions do not
// survive a reconnect; re-subscribe from OnConnect.
func (c *Client) Subscribe(dest string, h Handler) (string, error) {
	conn := c.current()
	if conn == nil {
		return "", ErrNotConnected
	}
	return conn.Subscribe(dest, h)
}

// Unsubscribe cancels a subscription made on the current connection.
func (c *Client) Unsubscribe(id string) error {
	conn := c.current()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Unsubscribe(id)
}

// Publish sends a JSON body to dest on the current connection.
func (c *Client) Publish(dest string, body []byte) error {
	conn := c.current()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Send(dest, ContentTypeJSON, body)
}

func (c *Client) current() *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) currentHandlers() Handlers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers
}

func (c *Client) isStopping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopping
}

func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			metrics.BrokerReconnects.Inc()
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.cfg.ReconnectDelay):
			}
		}

		conn, err := Dial(ctx, c.cfg.URL, DialOptions{
			Host:           c.cfg.Host,
			HeartBeat:      c.cfg.HeartBeat,
			ConnectTimeout: c.cfg.ConnectTimeout,
			OnError:        c.stompError,
			Logger:         c.log,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if serr, ok := err.(*ServerError); ok {
				c.stompError(serr)
			}
			c.log.Warn().Err(err).Int("attempt", attempt+1).Dur("retry_in", c.cfg.ReconnectDelay).Msg("broker connect failed")
			continue
		}

		c.mu.Lock()
		if c.stopping || ctx.Err() != nil {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.mu.Unlock()

		c.log.Info().Str("url", c.cfg.URL).Str("version", conn.Version()).Msg("broker connected")
		if h := c.currentHandlers(); h.OnConnect != nil {
			h.OnConnect()
		}

		select {
		case <-conn.Done():
		case <-ctx.Done():
			conn.Close()
		}

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()

		if ctx.Err() != nil || c.isStopping() {
			return
		}
		c.log.Warn().Err(conn.Err()).Msg("broker connection lost")
		if h := c.currentHandlers(); h.OnDisconnect != nil {
			h.OnDisconnect(conn.Err())
		}
	}
}

func (c *Client) stompError(err *ServerError) {
	metrics.BrokerErrors.Inc()
	if h := c.currentHandlers(); h.OnStompError != nil {
		h.OnStompError(err)
	}
}
