// Package renderer wires the node registry, the mutation interpreter, the
// event bridge and the optional eval channel, hot-reload client and file
// ingest store into one unit driven by a single loop lock.
//
// Everything that touches the document goes through that lock: Apply, Reset,
// Do (for native event delivery), template swaps from the hot-reload client
// and script execution by the default eval executor. Eval itself waits
// outside the lock.
package renderer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/vango-web/internal/config"
	rerrors "github.com/vango-dev/vango-web/internal/errors"
	"github.com/vango-dev/vango-web/internal/metrics"
	"github.com/vango-dev/vango-web/pkg/bridge"
	"github.com/vango-dev/vango-web/pkg/eval"
	"github.com/vango-dev/vango-web/pkg/host"
	"github.com/vango-dev/vango-web/pkg/hotreload"
	"github.com/vango-dev/vango-web/pkg/ingest"
	"github.com/vango-dev/vango-web/pkg/interp"
	"github.com/vango-dev/vango-web/pkg/protocol"
	"github.com/vango-dev/vango-web/pkg/registry"
	"github.com/vango-dev/vango-web/pkg/template"
)

const tracerName = "github.com/vango-dev/vango-web/pkg/renderer"

// Renderer is a live document driven by an edit stream.
type Renderer struct {
	mu sync.Mutex

	cfg       *config.Config
	doc       host.Document
	reg       *registry.Registry
	templates *template.Cache
	bridge    *bridge.Bridge
	interp    *interp.Interpreter

	evals  *eval.Channel
	reload *hotreload.Client
	store  ingest.Store

	pipeline bridge.Pipeline
	executor eval.Executor
	dialer   *websocket.Dialer
	onUpdate func(templateID string)

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLogger sets the logger for the renderer and every component it builds.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Renderer) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Renderer) {
		r.metrics = m
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Renderer) {
		r.tracer = tracer
	}
}

// WithPipeline sets where normalized events go.
func WithPipeline(p bridge.Pipeline) Option {
	return func(r *Renderer) {
		r.pipeline = p
	}
}

// WithIngestStore sets the file ingest store used when file-ingest is on.
// Without it a store is built from the configuration.
func WithIngestStore(s ingest.Store) Option {
	return func(r *Renderer) {
		r.store = s
	}
}

// WithExecutor replaces the script executor used when eval is on. The
// default evaluates scripts locally against the document.
func WithExecutor(x eval.Executor) Option {
	return func(r *Renderer) {
		r.executor = x
	}
}

// WithDialer sets the websocket dialer of the hot-reload client.
func WithDialer(d *websocket.Dialer) Option {
	return func(r *Renderer) {
		r.dialer = d
	}
}

// WithOnTemplateUpdate registers a callback run after the hot-reload client
// swaps a template. It runs outside the loop lock.
func WithOnTemplateUpdate(fn func(templateID string)) Option {
	return func(r *Renderer) {
		r.onUpdate = fn
	}
}

// New builds a renderer over doc. A nil cfg means config.New().
func New(doc host.Document, cfg *config.Config, opts ...Option) (*Renderer, error) {
	if cfg == nil {
		cfg = config.New()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Renderer{
		cfg:       cfg,
		doc:       doc,
		templates: template.NewCache(),
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}

	if cfg.Features.FileIngest && r.store == nil {
		store, err := NewIngestStore(cfg)
		if err != nil {
			return nil, err
		}
		r.store = store
	}
	if !cfg.Features.FileIngest {
		r.store = nil
	}

	r.reg = registry.New(doc)

	bopts := []bridge.Option{bridge.WithLogger(r.logger), bridge.WithMetrics(r.metrics)}
	if r.store != nil {
		bopts = append(bopts, bridge.WithIngest(r.store, cfg.Ingest.Timeout.Std()))
	}
	r.bridge = bridge.New(r.reg, r.pipeline, bopts...)

	r.interp = interp.New(r.reg,
		interp.WithLogger(r.logger),
		interp.WithMetrics(r.metrics),
		interp.WithTracer(r.tracer),
		interp.WithEventSink(r.bridge),
		interp.WithTemplates(r.templates),
		interp.WithMountReporting(cfg.Features.MountReporting),
	)

	if cfg.Features.Eval {
		exec := r.executor
		if exec == nil {
			exec = eval.NewExprExecutor(r.reg, &r.mu)
		}
		r.evals = eval.NewChannel(exec,
			eval.WithLogger(r.logger),
			eval.WithMetrics(r.metrics),
			eval.WithTracer(r.tracer),
		)
	}

	if cfg.Features.HotReload {
		ropts := []hotreload.Option{
			hotreload.WithLogger(r.logger),
			hotreload.WithMetrics(r.metrics),
			hotreload.WithLock(&r.mu),
			hotreload.WithBackoff(&hotreload.Backoff{
				Initial: cfg.HotReload.InitialBackoff.Std(),
				Max:     cfg.HotReload.MaxBackoff.Std(),
				Factor:  hotreload.DefaultBackoffFactor,
				Jitter:  hotreload.DefaultJitter,
			}),
			hotreload.WithOnUpdate(r.templateUpdated),
		}
		if r.dialer != nil {
			ropts = append(ropts, hotreload.WithDialer(r.dialer))
		}
		r.reload = hotreload.NewClient(cfg.HotReload.URL, r.templates, ropts...)
	}

	r.logger = r.logger.With("component", "renderer")
	r.logger.Debug("renderer ready",
		"mount_reporting", cfg.Features.MountReporting,
		"file_ingest", r.store != nil,
		"hot_reload", r.reload != nil,
		"eval", r.evals != nil)
	return r, nil
}

// Apply applies one batch under the loop lock.
func (r *Renderer) Apply(ctx context.Context, b *protocol.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interp.Apply(ctx, b)
}

// Reset clears the document and leaves the desynchronized state.
func (r *Renderer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interp.Reset()
}

// Do runs fn under the loop lock. Native events must be delivered through
// it so listeners never run concurrently with batch application.
func (r *Renderer) Do(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}

// Eval runs script against the live document and returns its JSON value.
// When ctx has no deadline the configured eval timeout applies.
func (r *Renderer) Eval(ctx context.Context, script string) (json.RawMessage, error) {
	if r.evals == nil {
		return nil, rerrors.New("R032")
	}
	if _, ok := ctx.Deadline(); !ok && r.cfg.Eval.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Eval.Timeout.Std())
		defer cancel()
	}
	return r.evals.Submit(ctx, script)
}

// ResolveEval delivers a response from a remote executor. It reports whether
// a request was waiting for it.
func (r *Renderer) ResolveEval(resp protocol.EvalResponse) bool {
	if r.evals == nil {
		return false
	}
	return r.evals.Resolve(resp)
}

// HandleFrame processes one inbound frame: an edit batch (binary or JSON)
// or an eval response.
func (r *Renderer) HandleFrame(ctx context.Context, f *protocol.Frame) error {
	switch f.Type {
	case protocol.FrameEdits:
		var (
			b   *protocol.Batch
			err error
		)
		if f.Flags.Has(protocol.FlagJSON) {
			b, err = protocol.DecodeBatchJSON(f.Payload)
		} else {
			b, err = protocol.DecodeBatch(f.Payload)
		}
		if err != nil {
			return fmt.Errorf("renderer: decode batch: %w", err)
		}
		return r.Apply(ctx, b)

	case protocol.FrameEvalResponse:
		var resp protocol.EvalResponse
		if err := json.Unmarshal(f.Payload, &resp); err != nil {
			return fmt.Errorf("renderer: decode eval response: %w", err)
		}
		if !r.ResolveEval(resp) {
			r.logger.Debug("eval response ignored", "id", resp.ID)
		}
		return nil

	default:
		return fmt.Errorf("%w: %s frame is not accepted by the renderer", protocol.ErrInvalidFrameType, f.Type)
	}
}

// Run runs the background parts (hot-reload client, ingest cleanup) until
// ctx ends. It returns nil after a clean shutdown.
func (r *Renderer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if r.reload != nil {
		g.Go(func() error {
			return r.reload.Run(ctx)
		})
	}
	if r.store != nil {
		g.Go(func() error {
			return r.cleanupLoop(ctx)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Renderer) cleanupLoop(ctx context.Context) error {
	age := r.cfg.Ingest.CleanupAge.Std()
	interval := age / 2
	if interval <= 0 {
		interval = age
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.store.Cleanup(ctx, age); err != nil && ctx.Err() == nil {
				r.logger.Warn("ingest cleanup failed", "error", err)
			}
		}
	}
}

// Close fails pending eval requests and waits for background uploads.
func (r *Renderer) Close() error {
	if r.evals != nil {
		r.evals.Close()
	}
	r.bridge.Wait()
	return nil
}

func (r *Renderer) templateUpdated(id string) {
	r.logger.Debug("template updated", "template", id, "version", r.templates.Version(id))
	if r.onUpdate != nil {
		r.onUpdate(id)
	}
}

// Stats returns interpreter progress.
func (r *Renderer) Stats() interp.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interp.Stats()
}

// Document returns the native document.
func (r *Renderer) Document() host.Document { return r.doc }

// Registry returns the node registry. Use it only inside Do.
func (r *Renderer) Registry() *registry.Registry { return r.reg }

// Templates returns the template cache.
func (r *Renderer) Templates() *template.Cache { return r.templates }

// Bridge returns the event bridge.
func (r *Renderer) Bridge() *bridge.Bridge { return r.bridge }

// Store returns the ingest store, or nil when file ingest is off.
func (r *Renderer) Store() ingest.Store { return r.store }
