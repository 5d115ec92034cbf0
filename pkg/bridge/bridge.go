// Package bridge delivers native events to the abstract event pipeline.
//
// The bridge attaches one listener per event category at the mount root, the
// first time any node shows interest in that category, and never removes it.
// Per-node interest is a set lookup. When a native event arrives the bridge
// walks from the physical target towards the root, resolving each native node
// through the registry, and forwards a normalized event for every interested
// node it meets. A directive from the pipeline that stops propagation or
// prevents the default action ends the walk for that native event.
package bridge

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vango-dev/vango-web/internal/metrics"
	"github.com/vango-dev/vango-web/pkg/host"
	"github.com/vango-dev/vango-web/pkg/ingest"
	"github.com/vango-dev/vango-web/pkg/protocol"
	"github.com/vango-dev/vango-web/pkg/registry"
)

// Pipeline receives normalized events. A nil directive means "continue".
type Pipeline interface {
	Dispatch(ev protocol.Event) *protocol.Directive
}

// PipelineFunc adapts a function to Pipeline.
type PipelineFunc func(ev protocol.Event) *protocol.Directive

// Dispatch calls f(ev).
func (f PipelineFunc) Dispatch(ev protocol.Event) *protocol.Directive {
	return f(ev)
}

// Bridge routes native events to a Pipeline.
type Bridge struct {
	reg      *registry.Registry
	doc      host.Document
	pipeline Pipeline

	interest map[string]map[registry.NodeID]struct{}
	byNode   map[registry.NodeID]map[string]struct{}
	attached map[string]bool

	store         ingest.Store
	ingestTimeout time.Duration
	pending       sync.WaitGroup

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// WithIngest stores the contents of every file handle carried by an event.
// Each file gets an ingest id immediately; the upload runs in the background
// and is bounded by timeout (0 means no limit).
func WithIngest(store ingest.Store, timeout time.Duration) Option {
	return func(b *Bridge) {
		b.store = store
		b.ingestTimeout = timeout
	}
}

// New creates a bridge. pipeline may be nil, in which case events are
// resolved and dropped.
func New(reg *registry.Registry, pipeline Pipeline, opts ...Option) *Bridge {
	b := &Bridge{
		reg:      reg,
		doc:      reg.Document(),
		pipeline: pipeline,
		interest: make(map[string]map[registry.NodeID]struct{}),
		byNode:   make(map[registry.NodeID]map[string]struct{}),
		attached: make(map[string]bool),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "bridge")
	return b
}

// SetPipeline replaces the pipeline.
func (b *Bridge) SetPipeline(p Pipeline) {
	b.pipeline = p
}

// Listen records interest of id in category and makes sure a root listener
// exists for it. Synthetic categories get no native listener.
func (b *Bridge) Listen(id registry.NodeID, category string) error {
	if !b.attached[category] && !protocol.IsSynthetic(category) {
		capture := protocol.Capture(category)
		if err := b.doc.AddListener(category, capture, b.listener(category)); err != nil {
			return err
		}
		b.attached[category] = true
		b.metrics.ListenerAttached()
		b.logger.Debug("root listener attached", "category", category, "capture", capture)
	}

	ids, ok := b.interest[category]
	if !ok {
		ids = make(map[registry.NodeID]struct{})
		b.interest[category] = ids
	}
	ids[id] = struct{}{}

	cats, ok := b.byNode[id]
	if !ok {
		cats = make(map[string]struct{})
		b.byNode[id] = cats
	}
	cats[category] = struct{}{}
	return nil
}

// Unlisten drops interest of id in category. The root listener stays.
func (b *Bridge) Unlisten(id registry.NodeID, category string) {
	if ids, ok := b.interest[category]; ok {
		delete(ids, id)
	}
	if cats, ok := b.byNode[id]; ok {
		delete(cats, category)
		if len(cats) == 0 {
			delete(b.byNode, id)
		}
	}
}

// Revoke drops all interest of the given ids.
func (b *Bridge) Revoke(ids ...registry.NodeID) {
	for _, id := range ids {
		for category := range b.byNode[id] {
			delete(b.interest[category], id)
		}
		delete(b.byNode, id)
	}
}

// Clear drops all interest. Root listeners stay attached and are reused.
func (b *Bridge) Clear() {
	b.interest = make(map[string]map[registry.NodeID]struct{})
	b.byNode = make(map[registry.NodeID]map[string]struct{})
}

// Interested reports whether id has interest in category.
func (b *Bridge) Interested(id registry.NodeID, category string) bool {
	_, ok := b.interest[category][id]
	return ok
}

// ListenerCount returns the number of root listeners attached.
func (b *Bridge) ListenerCount() int {
	return len(b.attached)
}

// Categories returns the categories with a root listener, sorted.
func (b *Bridge) Categories() []string {
	cats := make([]string, 0, len(b.attached))
	for c := range b.attached {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

// Mounted forwards a mounted event if id is interested in one.
func (b *Bridge) Mounted(id registry.NodeID) {
	if !b.Interested(id, protocol.CategoryMounted) {
		return
	}
	b.forward(protocol.Event{
		Category: protocol.CategoryMounted,
		NodeID:   id,
		Data:     protocol.MountedData{},
	})
}

// Wait blocks until background file ingestion has finished.
func (b *Bridge) Wait() {
	b.pending.Wait()
}

func (b *Bridge) listener(category string) host.Listener {
	return func(ev host.Event) {
		b.dispatch(category, ev)
	}
}

func (b *Bridge) forward(ev protocol.Event) *protocol.Directive {
	b.metrics.EventDispatched(ev.Category)
	if b.pipeline == nil {
		return nil
	}
	return b.pipeline.Dispatch(ev)
}

// dispatch resolves a native event. Handles are used only within this call.
func (b *Bridge) dispatch(category string, nev host.Event) {
	root := b.doc.Root()
	bubbles := nev.Bubbles()

	var (
		data     protocol.EventData
		resolved bool
	)
	for n := nev.Target(); n != nil; n = b.doc.Parent(n) {
		if id, ok := b.reg.Lookup(n); ok && b.Interested(id, category) {
			if !resolved {
				data = b.normalize(category, nev)
				resolved = true
			}
			dir := b.forward(protocol.Event{
				Category: category,
				NodeID:   id,
				Bubbles:  bubbles,
				Data:     data,
			})
			if dir != nil && dir.PreventDefault {
				nev.PreventDefault()
			}
			if dir != nil && dir.StopPropagation {
				nev.StopPropagation()
			}
			if !bubbles || (dir != nil && (dir.StopPropagation || dir.PreventDefault)) {
				return
			}
		}
		if n == root {
			break
		}
	}
	if !resolved {
		b.metrics.EventDropped(category)
	}
}

// ingestFiles assigns ids and starts background uploads.
func (b *Bridge) ingestFiles(files []host.File) []protocol.FileInfo {
	if len(files) == 0 {
		return nil
	}
	infos := make([]protocol.FileInfo, len(files))
	for i, f := range files {
		infos[i] = protocol.FileInfo{
			Name:        f.Name(),
			ContentType: f.ContentType(),
			Size:        f.Size(),
		}
		if b.store == nil {
			continue
		}
		id := ingest.NewID()
		infos[i].IngestID = id
		b.pending.Add(1)
		go b.save(id, f)
	}
	return infos
}

func (b *Bridge) save(id string, f host.File) {
	defer b.pending.Done()

	ctx := context.Background()
	if b.ingestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.ingestTimeout)
		defer cancel()
	}

	err := b.put(ctx, id, f)
	b.metrics.FileIngested(err)
	if err != nil {
		b.logger.Warn("file ingest failed", "id", id, "name", f.Name(), "error", err)
		return
	}
	b.logger.Debug("file ingested", "id", id, "name", f.Name(), "size", f.Size())
}

func (b *Bridge) put(ctx context.Context, id string, f host.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return b.store.Put(ctx, id, ingest.Meta{
		Name:        f.Name(),
		ContentType: f.ContentType(),
		Size:        f.Size(),
	}, rc)
}
