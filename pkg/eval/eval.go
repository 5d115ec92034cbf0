// Package eval runs ad-hoc scripts against the live document and routes the
// results back to whoever asked.
//
// A Channel hands out one request id per Submit and keeps a single-use slot for
// it until the matching response arrives or the caller gives up. Requests are
// independent: a slow or failing script never holds up another one, and a
// response for an abandoned request is dropped.
package eval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/vango-web/internal/metrics"
	"github.com/vango-dev/vango-web/pkg/protocol"
)

const tracerName = "github.com/vango-dev/vango-web/pkg/eval"

// ErrClosed is returned by Submit after Close, and to requests still pending
// when Close runs.
var ErrClosed = errors.New("eval: channel closed")

// ScriptError is a failure reported by the executor for one request.
type ScriptError struct {
	ID      string
	Message string
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("eval %s: %s", e.ID, e.Message)
}

// ResolveFunc delivers a response to the channel.
type ResolveFunc func(resp protocol.EvalResponse) bool

// Executor starts evaluating req. The response is delivered later, either by
// calling resolve or by the transport calling Channel.Resolve. A returned
// error fails the request immediately.
type Executor interface {
	Execute(ctx context.Context, req protocol.EvalRequest, resolve ResolveFunc) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req protocol.EvalRequest, resolve ResolveFunc) error

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, req protocol.EvalRequest, resolve ResolveFunc) error {
	return f(ctx, req, resolve)
}

// Channel correlates eval requests with their responses.
type Channel struct {
	exec Executor

	mu      sync.Mutex
	pending map[string]chan protocol.EvalResponse
	closed  bool

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Channel) {
		c.metrics = m
	}
}

// WithTracer sets the tracer used for request spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Channel) {
		c.tracer = tracer
	}
}

// NewChannel creates a channel that hands requests to exec.
func NewChannel(exec Executor, opts ...Option) *Channel {
	c := &Channel{
		exec:    exec,
		pending: make(map[string]chan protocol.EvalResponse),
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "eval")
	return c
}

// Submit runs script and waits for its value, which is returned as JSON. A
// script failure is returned as a *ScriptError. When ctx ends first the slot
// is dropped and any later response for it is ignored.
func (c *Channel) Submit(ctx context.Context, script string) (json.RawMessage, error) {
	req := protocol.EvalRequest{ID: uuid.NewString(), Script: script}

	ctx, span := c.tracer.Start(ctx, "eval.Submit", trace.WithAttributes(
		attribute.String("eval.id", req.ID),
	))
	defer span.End()

	slot := make(chan protocol.EvalResponse, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[req.ID] = slot
	c.mu.Unlock()

	if err := c.exec.Execute(ctx, req, c.Resolve); err != nil {
		c.drop(req.ID)
		c.metrics.Eval("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "execute")
		return nil, fmt.Errorf("eval: execute %s: %w", req.ID, err)
	}

	select {
	case resp, ok := <-slot:
		if !ok {
			c.metrics.Eval("closed")
			return nil, ErrClosed
		}
		if !resp.OK() {
			c.metrics.Eval("error")
			span.SetStatus(codes.Error, resp.Error)
			return nil, &ScriptError{ID: req.ID, Message: resp.Error}
		}
		c.metrics.Eval("ok")
		return resp.Value, nil
	case <-ctx.Done():
		c.drop(req.ID)
		c.metrics.Eval("canceled")
		span.RecordError(ctx.Err())
		return nil, ctx.Err()
	}
}

// Resolve fulfills the request named by resp.ID. It reports false when no
// request is waiting for that id: it was never issued, already answered, or
// abandoned by its caller.
func (c *Channel) Resolve(resp protocol.EvalResponse) bool {
	c.mu.Lock()
	slot, ok := c.pending[resp.ID]
	delete(c.pending, resp.ID)
	c.mu.Unlock()

	if !ok {
		c.metrics.EvalLate()
		c.logger.Debug("eval response without a waiting request", "id", resp.ID)
		return false
	}
	slot <- resp
	return true
}

// Pending returns the number of requests waiting for a response.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close fails every pending request with ErrClosed and refuses new ones.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, slot := range c.pending {
		close(slot)
		delete(c.pending, id)
	}
}

func (c *Channel) drop(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
