// Package hotreload swaps template definitions while the renderer runs.
//
// The Client keeps a websocket open to a reload server and applies every
// template update it receives to the shared template cache. Connection loss is
// retried forever with exponential backoff. The Server is the other end: it
// tracks connected clients and broadcasts updates to them.
package hotreload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/vango-web/internal/metrics"
	"github.com/vango-dev/vango-web/pkg/protocol"
	"github.com/vango-dev/vango-web/pkg/template"
)

// ErrUnknownKind is reported for messages of a type the client does not handle.
var ErrUnknownKind = errors.New("hotreload: unknown message type")

// Client receives template updates over a websocket.
type Client struct {
	url    string
	header http.Header
	cache  *template.Cache
	dialer *websocket.Dialer

	backoff  *Backoff
	lock     sync.Locker
	onUpdate func(templateID string)

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithDialer sets the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithHeader sets headers sent with every dial.
func WithHeader(h http.Header) Option {
	return func(c *Client) {
		c.header = h
	}
}

// WithBackoff replaces the reconnect schedule.
func WithBackoff(b *Backoff) Option {
	return func(c *Client) {
		c.backoff = b
	}
}

// WithLock makes every template swap hold l, so swaps never interleave with
// batch application.
func WithLock(l sync.Locker) Option {
	return func(c *Client) {
		c.lock = l
	}
}

// WithOnUpdate registers a callback run after a template is swapped, outside
// the lock, so the producer can re-render.
func WithOnUpdate(fn func(templateID string)) Option {
	return func(c *Client) {
		c.onUpdate = fn
	}
}

// NewClient creates a client that keeps cache in sync with the server at url.
func NewClient(url string, cache *template.Cache, opts ...Option) *Client {
	c := &Client{
		url:     url,
		cache:   cache,
		dialer:  websocket.DefaultDialer,
		backoff: NewBackoff(),
		lock:    &sync.Mutex{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "hotreload")
	return c
}

// Run connects and processes messages until ctx ends, reconnecting after
// every failure. It returns ctx.Err().
func (c *Client) Run(ctx context.Context) error {
	for {
		conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
		c.metrics.ReloadConnect(err)
		if err == nil {
			c.backoff.Reset()
			c.logger.Info("hot reload connected", "url", c.url)
			err = c.serve(ctx, conn)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := c.backoff.Next()
		c.logger.Warn("hot reload connection lost, retrying", "error", err, "backoff", delay)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// serve reads messages from conn until it fails or ctx ends.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := c.Handle(data); err != nil {
			c.logger.Warn("hot reload message dropped", "error", err)
		}
	}
}

// Handle applies one message. Errors leave the cache untouched.
func (c *Client) Handle(data []byte) error {
	msg, err := protocol.DecodeReloadMessage(data)
	if err != nil {
		c.metrics.ReloadMessage("invalid", err)
		return err
	}

	id, err := c.apply(msg)
	c.metrics.ReloadMessage(msg.Kind, err)
	if err != nil || id == "" {
		return err
	}

	c.logger.Info("template swapped", "template", id, "type", msg.Kind, "version", c.cache.Version(id))
	if c.onUpdate != nil {
		c.onUpdate(id)
	}
	return nil
}

func (c *Client) apply(msg *protocol.ReloadMessage) (string, error) {
	switch msg.Kind {
	case protocol.ReloadTemplateUpdate:
		var t template.Template
		if err := json.Unmarshal(msg.Payload, &t); err != nil {
			return "", fmt.Errorf("hotreload: decode template: %w", err)
		}
		c.lock.Lock()
		defer c.lock.Unlock()
		if _, err := c.cache.Put(&t); err != nil {
			return "", err
		}
		return t.ID, nil

	case protocol.ReloadTemplatePatch:
		var p protocol.TemplatePatch
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return "", fmt.Errorf("hotreload: decode patch: %w", err)
		}
		c.lock.Lock()
		defer c.lock.Unlock()
		if _, err := c.cache.Patch(p.ID, p.Patch); err != nil {
			return "", err
		}
		return p.ID, nil

	case protocol.ReloadFull:
		c.logger.Debug("full reload requested, ignored")
		return "", nil

	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, msg.Kind)
	}
}

// dialTimeout bounds a single connection attempt when the dialer has none.
const dialTimeout = 10 * time.Second

// NewDialer returns a websocket dialer with a handshake timeout.
func NewDialer() *websocket.Dialer {
	return &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: dialTimeout,
	}
}
