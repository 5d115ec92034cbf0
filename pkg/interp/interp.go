// Package interp applies edit batches to a host document.
//
// The Interpreter owns no tree of its own. Every edit names nodes by id and is
// resolved through the registry at the moment it runs, so the producer never
// sees native handles and the interpreter never caches them.
//
// Application is fail-stop. When an edit fails, the edits before it stay
// applied, the rest of the batch is skipped, and the interpreter refuses all
// further batches until Reset is called and the producer renders from scratch.
package interp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/vango-web/internal/metrics"
	"github.com/vango-dev/vango-web/pkg/host"
	"github.com/vango-dev/vango-web/pkg/protocol"
	"github.com/vango-dev/vango-web/pkg/registry"
	"github.com/vango-dev/vango-web/pkg/template"
)

const tracerName = "github.com/vango-dev/vango-web/pkg/interp"

// Interpreter errors.
var (
	// ErrDesynced is returned for every batch after a failed one, until Reset.
	ErrDesynced = errors.New("interp: tree is desynchronized, reset required")

	// ErrDetached means an edit needed a node with a parent.
	ErrDetached = errors.New("interp: node is not attached")

	// ErrCycle means an edit would make a node its own ancestor.
	ErrCycle = errors.New("interp: edit would create a cycle")

	// ErrBadPath means an AssignPath path does not resolve.
	ErrBadPath = errors.New("interp: path does not resolve")
)

// DesyncError reports the edit that stopped a batch.
type DesyncError struct {
	Seq   uint64
	Index int
	Edit  protocol.Edit
	Err   error
}

func (e *DesyncError) Error() string {
	return fmt.Sprintf("interp: batch %d: edit %d %s: %v", e.Seq, e.Index, e.Edit, e.Err)
}

func (e *DesyncError) Unwrap() error { return e.Err }

// Reason classifies the failure for logs and metrics.
func (e *DesyncError) Reason() string {
	switch {
	case errors.Is(e.Err, registry.ErrUnknownNodeID):
		return "unknown_node"
	case errors.Is(e.Err, registry.ErrKindMismatch):
		return "kind_mismatch"
	case errors.Is(e.Err, registry.ErrAllocation):
		return "allocation"
	case errors.Is(e.Err, registry.ErrIDInUse):
		return "id_in_use"
	case errors.Is(e.Err, ErrDetached):
		return "detached"
	case errors.Is(e.Err, ErrCycle):
		return "cycle"
	case errors.Is(e.Err, template.ErrNotFound), errors.Is(e.Err, template.ErrInvalid),
		errors.Is(e.Err, template.ErrRootIndex):
		return "template"
	default:
		return "protocol"
	}
}

// EventSink receives listener interest changes and mount notifications.
// The event bridge implements it.
type EventSink interface {
	Listen(id registry.NodeID, category string) error
	Unlisten(id registry.NodeID, category string)
	Revoke(ids ...registry.NodeID)
	Mounted(id registry.NodeID)
	Clear()
}

// Stats reports interpreter progress.
type Stats struct {
	Batches   uint64
	Edits     uint64
	LastSeq   uint64
	Resets    uint64
	LiveNodes int
	Desynced  bool
}

// Interpreter applies batches against a registry.
type Interpreter struct {
	reg       *registry.Registry
	doc       host.Document
	templates *template.Cache
	sink      EventSink

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	mountReporting bool
	pendingMount   []registry.NodeID

	protos map[protoKey]host.Node
	desync *DesyncError
	stats  Stats
}

type protoKey struct {
	id      string
	version uint64
	index   int
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(in *Interpreter) {
		in.logger = logger
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(in *Interpreter) {
		in.metrics = m
	}
}

// WithTracer sets the tracer used for batch spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(in *Interpreter) {
		in.tracer = tracer
	}
}

// WithEventSink routes listener edits and mount notifications.
func WithEventSink(sink EventSink) Option {
	return func(in *Interpreter) {
		in.sink = sink
	}
}

// WithTemplates shares a template cache, typically with the hot-reload client.
func WithTemplates(cache *template.Cache) Option {
	return func(in *Interpreter) {
		in.templates = cache
	}
}

// WithMountReporting reports every node that becomes attached under the root
// to the event sink after each batch.
func WithMountReporting(enabled bool) Option {
	return func(in *Interpreter) {
		in.mountReporting = enabled
	}
}

// New creates an interpreter over reg.
func New(reg *registry.Registry, opts ...Option) *Interpreter {
	in := &Interpreter{
		reg:    reg,
		doc:    reg.Document(),
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
		protos: make(map[protoKey]host.Node),
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.templates == nil {
		in.templates = template.NewCache()
	}
	in.logger = in.logger.With("component", "interp")
	return in
}

// Templates returns the template cache.
func (in *Interpreter) Templates() *template.Cache { return in.templates }

// Registry returns the node registry.
func (in *Interpreter) Registry() *registry.Registry { return in.reg }

// Desync returns the error that stopped the interpreter, or nil.
func (in *Interpreter) Desync() *DesyncError { return in.desync }

// Stats returns progress counters.
func (in *Interpreter) Stats() Stats {
	s := in.stats
	s.LiveNodes = in.reg.Len()
	s.Desynced = in.desync != nil
	return s
}

// Apply applies the edits of b in order. On failure it returns a
// *DesyncError and refuses later batches with ErrDesynced.
func (in *Interpreter) Apply(ctx context.Context, b *protocol.Batch) error {
	if in.desync != nil {
		return fmt.Errorf("%w (batch %d, stopped at batch %d)", ErrDesynced, b.Seq, in.desync.Seq)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	_, span := in.tracer.Start(ctx, "interp.Apply", trace.WithAttributes(
		attribute.Int64("batch.seq", int64(b.Seq)),
		attribute.Int("batch.edits", len(b.Edits)),
	))
	defer span.End()

	start := time.Now()
	in.pendingMount = in.pendingMount[:0]

	for i := range b.Edits {
		if err := in.apply(&b.Edits[i]); err != nil {
			de := &DesyncError{Seq: b.Seq, Index: i, Edit: b.Edits[i], Err: err}
			in.desync = de
			in.metrics.Desync(de.Reason())
			in.metrics.SetLiveNodes(in.reg.Len())
			in.logger.Error("batch desynchronized",
				"seq", b.Seq,
				"index", i,
				"edit", b.Edits[i].String(),
				"reason", de.Reason(),
				"error", err)
			span.RecordError(de)
			span.SetStatus(codes.Error, de.Reason())
			return de
		}
	}

	in.flushMounts()

	in.stats.Batches++
	in.stats.Edits += uint64(len(b.Edits))
	in.stats.LastSeq = b.Seq
	in.metrics.ObserveBatch(len(b.Edits), time.Since(start))
	in.metrics.SetLiveNodes(in.reg.Len())
	in.logger.Debug("batch applied", "seq", b.Seq, "edits", len(b.Edits), "live", in.reg.Len())
	return nil
}

// Reset clears the registry, detaches everything under the root, drops all
// listener interest and leaves the desynchronized state. Templates survive.
func (in *Interpreter) Reset() {
	root := in.doc.Root()
	for _, c := range in.doc.Children(root) {
		_ = in.doc.RemoveChild(root, c)
	}
	released := in.reg.Clear()
	if in.sink != nil {
		in.sink.Clear()
	}
	in.desync = nil
	in.pendingMount = in.pendingMount[:0]
	in.stats.Resets++
	in.metrics.SetLiveNodes(0)
	in.logger.Info("tree reset", "released", len(released))
}

func (in *Interpreter) apply(ed *protocol.Edit) error {
	switch ed.Op {
	case protocol.OpCreateElement:
		_, err := in.reg.Allocate(ed.ID, registry.Spec{Kind: registry.KindElement, Tag: ed.Tag, Namespace: ed.Namespace})
		return err
	case protocol.OpCreateText:
		_, err := in.reg.Allocate(ed.ID, registry.Spec{Kind: registry.KindText, Text: ed.Text})
		return err
	case protocol.OpCreatePlaceholder:
		_, err := in.reg.Allocate(ed.ID, registry.Spec{Kind: registry.KindPlaceholder})
		return err
	case protocol.OpSetText:
		s, err := in.reg.Expect(ed.ID, registry.KindText)
		if err != nil {
			return err
		}
		return in.doc.SetText(s.Handle, ed.Text)
	case protocol.OpSetAttribute:
		s, err := in.reg.Expect(ed.ID, registry.KindElement)
		if err != nil {
			return err
		}
		if ed.Value == nil || ed.Value.IsNone() {
			return in.doc.RemoveAttribute(s.Handle, ed.Namespace, ed.Name)
		}
		return in.doc.SetAttribute(s.Handle, ed.Namespace, ed.Name, ed.Value.String())
	case protocol.OpRemoveAttribute:
		s, err := in.reg.Expect(ed.ID, registry.KindElement)
		if err != nil {
			return err
		}
		return in.doc.RemoveAttribute(s.Handle, ed.Namespace, ed.Name)
	case protocol.OpAppendChildren:
		return in.appendChildren(ed.ID, ed.IDs)
	case protocol.OpInsertBefore:
		return in.insert(ed.ID, ed.IDs, false)
	case protocol.OpInsertAfter:
		return in.insert(ed.ID, ed.IDs, true)
	case protocol.OpReplace:
		return in.replace(ed.ID, ed.IDs)
	case protocol.OpRemove:
		return in.remove(ed.ID)
	case protocol.OpNewEventListener:
		if _, err := in.reg.Get(ed.ID); err != nil {
			return err
		}
		if in.sink == nil {
			return nil
		}
		return in.sink.Listen(ed.ID, ed.Name)
	case protocol.OpRemoveEventListener:
		if in.sink != nil {
			in.sink.Unlisten(ed.ID, ed.Name)
		}
		return nil
	case protocol.OpSaveTemplate:
		_, err := in.templates.Put(ed.Template)
		return err
	case protocol.OpLoadTemplate:
		return in.loadTemplate(ed.Name, ed.Index, ed.ID)
	case protocol.OpAssignPath:
		return in.assignPath(ed.Ref, ed.Path, ed.ID)
	default:
		return fmt.Errorf("interp: unsupported op %s", ed.Op)
	}
}
