package hotreload

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vango-dev/vango-web/pkg/template"
)

// DefaultPollInterval is how often a Watcher rescans its directory.
const DefaultPollInterval = 250 * time.Millisecond

// Publisher receives template definitions. *Server implements it.
type Publisher interface {
	PublishTemplate(t *template.Template) error
}

// Watcher publishes every *.json template definition in a directory, then
// republishes files whose modification time changes.
type Watcher struct {
	dir      string
	interval time.Duration
	pub      Publisher
	logger   *slog.Logger

	timestamps map[string]time.Time
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithPollInterval sets the rescan interval.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.interval = d
	}
}

// WithWatcherLogger sets the logger.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// NewWatcher creates a watcher over dir.
func NewWatcher(dir string, pub Publisher, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		dir:        dir,
		interval:   DefaultPollInterval,
		pub:        pub,
		logger:     slog.Default(),
		timestamps: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "template-watcher")
	return w
}

// Run publishes the directory contents and keeps polling until ctx ends.
// It returns ctx.Err().
func (w *Watcher) Run(ctx context.Context) error {
	if _, err := w.Scan(); err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Scan(); err != nil {
				w.logger.Warn("template scan failed", "dir", w.dir, "error", err)
			}
		}
	}
}

// Scan publishes new and modified template files and returns the ids it
// published. A file that fails to parse or validate is logged and retried
// on its next change.
func (w *Watcher) Scan() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("hotreload: read template dir: %w", err)
	}

	var published []string
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		p := filepath.Join(w.dir, e.Name())
		seen[p] = true

		info, err := e.Info()
		if err != nil {
			continue
		}
		if last, ok := w.timestamps[p]; ok && !info.ModTime().After(last) {
			continue
		}
		w.timestamps[p] = info.ModTime()

		id, err := w.publish(p)
		if err != nil {
			w.logger.Warn("template not published", "file", p, "error", err)
			continue
		}
		w.logger.Info("template published", "file", p, "template", id)
		published = append(published, id)
	}

	for p := range w.timestamps {
		if !seen[p] {
			delete(w.timestamps, p)
		}
	}
	return published, nil
}

func (w *Watcher) publish(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var t template.Template
	if err := json.Unmarshal(data, &t); err != nil {
		return "", err
	}
	if t.ID == "" {
		t.ID = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	if err := w.pub.PublishTemplate(&t); err != nil {
		return "", err
	}
	return t.ID, nil
}
