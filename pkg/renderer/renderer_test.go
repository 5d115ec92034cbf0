package renderer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/vango-dev/vango-web/internal/config"
	rerrors "github.com/vango-dev/vango-web/internal/errors"
	"github.com/vango-dev/vango-web/pkg/bridge"
	"github.com/vango-dev/vango-web/pkg/eval"
	"github.com/vango-dev/vango-web/pkg/host/htmldoc"
	"github.com/vango-dev/vango-web/pkg/hotreload"
	"github.com/vango-dev/vango-web/pkg/ingest"
	"github.com/vango-dev/vango-web/pkg/interp"
	"github.com/vango-dev/vango-web/pkg/protocol"
	"github.com/vango-dev/vango-web/pkg/registry"
	"github.com/vango-dev/vango-web/pkg/template"
)

func configWith(features ...string) *config.Config {
	cfg := config.New()
	for _, f := range features {
		if err := cfg.Features.Set(f, true); err != nil {
			panic(err)
		}
	}
	return cfg
}

func newRenderer(t *testing.T, cfg *config.Config, opts ...Option) (*Renderer, *htmldoc.Document) {
	t.Helper()
	doc := htmldoc.New()
	r, err := New(doc, cfg, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r, doc
}

var greetingBatch = &protocol.Batch{Seq: 1, Edits: []protocol.Edit{
	protocol.CreateElement(1, "p", ""),
	protocol.SetAttribute(1, "class", protocol.Text("greeting")),
	protocol.CreateText(2, "hello"),
	protocol.AppendChildren(1, 2),
	protocol.AppendChildren(registry.RootID, 1),
}}

func TestApplyAndReset(t *testing.T) {
	r, doc := newRenderer(t, nil)

	if err := r.Apply(context.Background(), greetingBatch); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got, want := doc.HTML(), `<div id="main"><p class="greeting">hello</p></div>`; got != want {
		t.Errorf("HTML() = %s, want %s", got, want)
	}

	bad := &protocol.Batch{Seq: 2, Edits: []protocol.Edit{protocol.SetText(42, "x")}}
	err := r.Apply(context.Background(), bad)
	var de *interp.DesyncError
	if !errors.As(err, &de) {
		t.Fatalf("Apply() error = %v, want *DesyncError", err)
	}
	if got := rerrors.Classify(err).Code; got != "R001" {
		t.Errorf("Classify().Code = %q, want R001", got)
	}
	if err := r.Apply(context.Background(), greetingBatch); !errors.Is(err, interp.ErrDesynced) {
		t.Errorf("Apply() after desync error = %v, want ErrDesynced", err)
	}

	r.Reset()
	if got := r.Stats(); got.Desynced || got.LiveNodes != 0 {
		t.Errorf("Stats() after Reset = %+v", got)
	}
	if err := r.Apply(context.Background(), greetingBatch); err != nil {
		t.Fatalf("Apply() after Reset error = %v", err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := configWith(config.FeatureHotReload)
	if _, err := New(htmldoc.New(), cfg); err == nil {
		t.Fatal("New() accepted hot-reload without a URL")
	}
}

func TestEventsAndMounts(t *testing.T) {
	var (
		mu     sync.Mutex
		events []string
	)
	pipeline := bridge.PipelineFunc(func(ev protocol.Event) *protocol.Directive {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev.Category)
		return nil
	})
	r, doc := newRenderer(t, configWith(config.FeatureMountReporting), WithPipeline(pipeline))

	batch := &protocol.Batch{Seq: 1, Edits: []protocol.Edit{
		protocol.CreateElement(1, "button", ""),
		protocol.NewEventListener(1, "click"),
		protocol.NewEventListener(1, protocol.CategoryMounted),
		protocol.AppendChildren(registry.RootID, 1),
	}}
	if err := r.Apply(context.Background(), batch); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	r.Do(func() {
		n, err := r.Registry().Handle(1)
		if err != nil {
			t.Errorf("Handle(1) error = %v", err)
			return
		}
		doc.Dispatch(n, htmldoc.NewEvent("click", nil))
	})

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]string{protocol.CategoryMounted, "click"}, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestEval(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		r, _ := newRenderer(t, nil)
		_, err := r.Eval(context.Background(), "1")
		var re *rerrors.RenderError
		if !errors.As(err, &re) || re.Code != "R032" {
			t.Errorf("Eval() error = %v, want R032", err)
		}
	})

	t.Run("local", func(t *testing.T) {
		r, _ := newRenderer(t, configWith(config.FeatureEval))
		if err := r.Apply(context.Background(), greetingBatch); err != nil {
			t.Fatal(err)
		}
		v, err := r.Eval(context.Background(), `text(1) + "!"`)
		if err != nil {
			t.Fatalf("Eval() error = %v", err)
		}
		if string(v) != `"hello!"` {
			t.Errorf("Eval() = %s, want \"hello!\"", v)
		}

		_, err = r.Eval(context.Background(), `attr(99, "x")`)
		var se *eval.ScriptError
		if !errors.As(err, &se) {
			t.Errorf("Eval() error = %v, want *ScriptError", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		cfg := configWith(config.FeatureEval)
		cfg.Eval.Timeout = config.Duration(20 * time.Millisecond)
		never := eval.ExecutorFunc(func(context.Context, protocol.EvalRequest, eval.ResolveFunc) error {
			return nil
		})
		r, _ := newRenderer(t, cfg, WithExecutor(never))
		if _, err := r.Eval(context.Background(), "1"); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Eval() error = %v, want DeadlineExceeded", err)
		}
	})
}

func TestHandleFrame(t *testing.T) {
	requests := make(chan protocol.EvalRequest, 1)
	remote := eval.ExecutorFunc(func(_ context.Context, req protocol.EvalRequest, _ eval.ResolveFunc) error {
		requests <- req
		return nil
	})
	r, doc := newRenderer(t, configWith(config.FeatureEval), WithExecutor(remote))
	ctx := context.Background()

	payload, err := protocol.EncodeBatch(greetingBatch)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.HandleFrame(ctx, protocol.NewFrame(protocol.FrameEdits, payload)); err != nil {
		t.Fatalf("HandleFrame(binary edits) error = %v", err)
	}

	jsonBatch := []byte(`{"seq": 2, "edits": [{"op": "SetText", "id": 2, "text": "bye"}]}`)
	f := protocol.NewFrame(protocol.FrameEdits, jsonBatch)
	f.Flags = protocol.FlagJSON
	if err := r.HandleFrame(ctx, f); err != nil {
		t.Fatalf("HandleFrame(JSON edits) error = %v", err)
	}
	if got, want := doc.HTML(), `<div id="main"><p class="greeting">bye</p></div>`; got != want {
		t.Errorf("HTML() = %s, want %s", got, want)
	}

	result := make(chan string, 1)
	go func() {
		v, err := r.Eval(ctx, "anything")
		if err != nil {
			result <- err.Error()
			return
		}
		result <- string(v)
	}()
	req := <-requests
	resp, _ := json.Marshal(protocol.EvalResponse{ID: req.ID, Value: json.RawMessage(`42`)})
	if err := r.HandleFrame(ctx, protocol.NewFrame(protocol.FrameEvalResponse, resp)); err != nil {
		t.Fatalf("HandleFrame(eval response) error = %v", err)
	}
	if got := <-result; got != "42" {
		t.Errorf("Eval() = %s, want 42", got)
	}

	err = r.HandleFrame(ctx, protocol.NewFrame(protocol.FrameEvent, nil))
	if !errors.Is(err, protocol.ErrInvalidFrameType) {
		t.Errorf("HandleFrame(event) error = %v, want ErrInvalidFrameType", err)
	}
	err = r.HandleFrame(ctx, protocol.NewFrame(protocol.FrameEdits, []byte{0xff}))
	if err == nil {
		t.Error("HandleFrame accepted a malformed batch")
	}
}

func TestHotReload(t *testing.T) {
	srv := hotreload.NewServer()
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	cfg := configWith(config.FeatureHotReload)
	cfg.HotReload.URL = "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	cfg.HotReload.InitialBackoff = config.Duration(10 * time.Millisecond)
	cfg.HotReload.MaxBackoff = config.Duration(50 * time.Millisecond)

	updates := make(chan string, 4)
	r, doc := newRenderer(t, cfg, WithOnTemplateUpdate(func(id string) { updates <- id }))

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- r.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for srv.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never connected")
		}
		time.Sleep(5 * time.Millisecond)
	}

	badge := &template.Template{ID: "badge", Roots: []template.Node{{
		Kind:     template.KindElement,
		Tag:      "span",
		Children: []template.Node{{Kind: template.KindText, Text: "new"}},
	}}}
	if err := srv.PublishTemplate(badge); err != nil {
		t.Fatal(err)
	}
	select {
	case id := <-updates:
		if id != "badge" {
			t.Errorf("updated template = %q, want badge", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no template update")
	}

	load := &protocol.Batch{Seq: 1, Edits: []protocol.Edit{
		protocol.LoadTemplate("badge", 0, 1),
		protocol.AppendChildren(registry.RootID, 1),
	}}
	if err := r.Apply(context.Background(), load); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got, want := doc.HTML(), `<div id="main"><span>new</span></div>`; got != want {
		t.Errorf("HTML() = %s, want %s", got, want)
	}

	cancel()
	select {
	case err := <-runErr:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return")
	}
}

func TestRunWithoutBackgroundWork(t *testing.T) {
	r, _ := newRenderer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); err != nil {
		t.Errorf("Run() error = %v, want nil", err)
	}
}

func TestIngestStore(t *testing.T) {
	t.Run("disabled_ignores_store", func(t *testing.T) {
		store, err := ingest.NewDiskStore(t.TempDir(), 0)
		if err != nil {
			t.Fatal(err)
		}
		r, _ := newRenderer(t, nil, WithIngestStore(store))
		if r.Store() != nil {
			t.Error("Store() != nil with file-ingest off")
		}
	})

	t.Run("disk_from_config", func(t *testing.T) {
		cfg := configWith(config.FeatureFileIngest)
		cfg.Ingest.Dir = t.TempDir()
		r, _ := newRenderer(t, cfg)
		if _, ok := r.Store().(*ingest.DiskStore); !ok {
			t.Errorf("Store() = %T, want *ingest.DiskStore", r.Store())
		}
	})

	t.Run("s3_from_config", func(t *testing.T) {
		cfg := configWith(config.FeatureFileIngest)
		cfg.Ingest.S3 = &config.S3Config{Bucket: "uploads", Prefix: "in/", Region: "eu-west-1"}
		store, err := NewIngestStore(cfg)
		if err != nil {
			t.Fatalf("NewIngestStore() error = %v", err)
		}
		if _, ok := store.(*ingest.S3Store); !ok {
			t.Errorf("NewIngestStore() = %T, want *ingest.S3Store", store)
		}
	})
}

func TestEnvCredentials(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
	if _, err := (envCredentials{}).Retrieve(context.Background()); err == nil {
		t.Error("Retrieve() succeeded without credentials")
	}

	t.Setenv("AWS_ACCESS_KEY_ID", "AKID")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	creds, err := (envCredentials{}).Retrieve(context.Background())
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if creds.AccessKeyID != "AKID" || creds.SecretAccessKey != "secret" {
		t.Errorf("Retrieve() = %+v", creds)
	}
}
