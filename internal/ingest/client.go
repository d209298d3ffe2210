package ingest

import (
	"context"
	"log/slog"
	"math/rand"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// MessageHandler processes one frame. Returning an error makes the client
// drop the connection and reconnect from the last stored cursor.
type MessageHandler func(ctx context.Context, messageType int, payload []byte) error

// Client is a resilient WebSocket client for the change stream.
// It reconnects with exponential backoff and jitter.
type Client struct {
	config  Config
	handler MessageHandler
	cursors CursorTracker
	metrics *Metrics
	logger  *slog.Logger

	mu          sync.Mutex
	rng         *rand.Rand // protected by mu
	conn        *websocket.Conn
	isConnected bool

	// reconnectCount tracks consecutive reconnection attempts (atomic)
	reconnectCount int64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCursorTracker resumes from the tracker's cursor on every connect.
func WithCursorTracker(t CursorTracker) ClientOption {
	return func(c *Client) {
		c.cursors = t
	}
}

// WithClientMetrics counts reconnection attempts on m.
func WithClientMetrics(m *Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a change stream client. handler is called for every frame.
func NewClient(config Config, handler MessageHandler, logger *slog.Logger, opts ...ClientOption) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		config:  config,
		handler: handler,
		logger:  logger,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run connects and reads until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("change stream client stopping due to context cancellation")
			c.close()
			return ctx.Err()
		default:
		}

		if err := c.connect(ctx); err != nil {
			attempt := atomic.LoadInt64(&c.reconnectCount) + 1
			level := slog.LevelWarn
			if c.config.MaxRetryAttempts > 0 && attempt >= c.config.MaxRetryAttempts {
				level = slog.LevelError
			}
			c.logger.Log(ctx, level, "change stream connection failed",
				slog.String("error", err.Error()),
				slog.Int64("attempt", attempt))

			delay := c.computeBackoff()
			atomic.AddInt64(&c.reconnectCount, 1)
			if c.metrics != nil {
				c.metrics.IncReconnectionAttempts()
			}

			c.logger.Info("scheduling reconnect",
				slog.Duration("delay", delay),
				slog.Int64("attempt", atomic.LoadInt64(&c.reconnectCount)))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				continue
			}
		}

		atomic.StoreInt64(&c.reconnectCount, 0)
		c.readLoop(ctx)
	}
}

// streamURL appends the resume cursor to the configured URL.
func (c *Client) streamURL(ctx context.Context) (string, error) {
	if c.cursors == nil {
		return c.config.URL, nil
	}
	cursor, err := c.cursors.LastCursor(ctx)
	if err != nil {
		return "", err
	}
	if cursor <= 0 {
		return c.config.URL, nil
	}

	u, err := url.Parse(c.config.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("cursor", strconv.FormatInt(cursor, 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) connect(ctx context.Context) error {
	target, err := c.streamURL(ctx)
	if err != nil {
		return err
	}
	c.logger.Info("connecting to change stream", slog.String("url", c.config.URL))

	dialer := websocket.Dialer{
		HandshakeTimeout: DefaultHandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.isConnected = true
	c.mu.Unlock()

	c.logger.Info("connected to change stream")
	return nil
}

func (c *Client) readLoop(ctx context.Context) {
	// ReadMessage does not watch ctx; closing the connection unblocks it.
	stop := context.AfterFunc(ctx, c.close)
	defer stop()

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			return
		}

		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("change stream connection closed",
					slog.String("error", err.Error()))
			}
			c.close()
			return
		}

		if c.handler != nil {
			if err := c.handler(ctx, messageType, payload); err != nil {
				c.logger.Error("message handler error",
					slog.String("error", err.Error()))
				c.close()
				return
			}
		}
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.isConnected = false
}

// computeBackoff returns BaseDelay * 2^attempts, capped at MaxDelay, with jitter.
func (c *Client) computeBackoff() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	shift := uint(atomic.LoadInt64(&c.reconnectCount))
	if shift > 30 {
		shift = 30
	}
	backoff := float64(c.config.BaseDelay) * float64(uint64(1)<<shift)

	if backoff > float64(c.config.MaxDelay) {
		backoff = float64(c.config.MaxDelay)
	}

	// delay * (1 - jitter/2 + rand*jitter)
	if c.config.JitterFactor > 0 {
		jitter := (c.rng.Float64() - 0.5) * c.config.JitterFactor
		backoff = backoff * (1 + jitter)
	}

	return time.Duration(backoff)
}

// IsConnected reports whether the client currently holds a connection.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected
}
