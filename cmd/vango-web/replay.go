package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"

	"github.com/vango-dev/vango-web/internal/config"
	"github.com/vango-dev/vango-web/internal/metrics"
	"github.com/vango-dev/vango-web/pkg/bridge"
	"github.com/vango-dev/vango-web/pkg/host/htmldoc"
	"github.com/vango-dev/vango-web/pkg/protocol"
	"github.com/vango-dev/vango-web/pkg/renderer"
)

// errMismatch is returned when the replayed document differs from --expect.
var errMismatch = errors.New("document does not match the expected output")

type replayOptions struct {
	expect  string
	out     string
	scripts []string
	events  bool
	metrics bool
}

func replayCmd(g *globalFlags) *cobra.Command {
	opts := &replayOptions{}

	cmd := &cobra.Command{
		Use:   "replay FILE...",
		Short: "Apply recorded edit batches and print the document",
		Long: `Apply recorded edit batches to an empty document and print the result.

Each file holds either binary frames or JSON. JSON input is a sequence of
batches ({"seq": 1, "edits": [...]}) or arrays of batches. Use "-" to read
standard input.

Examples:
  vango-web replay session.bin
  vango-web replay --expect page.html batches.json
  vango-web replay --eval 'text(1)' batches.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if len(opts.scripts) > 0 {
				cfg.Features.Eval = true
			}
			return runReplay(cmd, cfg, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.expect, "expect", "e", "", "Compare the final document with this HTML file")
	f.StringVarP(&opts.out, "out", "o", "", "Write the final document to this file instead of stdout")
	f.StringArrayVar(&opts.scripts, "eval", nil, "Evaluate a script against the final document; repeatable")
	f.BoolVar(&opts.events, "events", false, "Print pipeline events (such as mounted) as JSON lines")
	f.BoolVar(&opts.metrics, "metrics", false, "Print renderer metrics in Prometheus text format when done")

	return cmd
}

func runReplay(cmd *cobra.Command, cfg *config.Config, opts *replayOptions, files []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	doc := htmldoc.New(
		htmldoc.WithRootID(cfg.Document.RootID),
		htmldoc.WithNodeLimit(cfg.Document.NodeLimit),
	)
	reg := prometheus.NewRegistry()
	m := metrics.New(metrics.WithRegistry(reg), metrics.WithNamespace(cfg.Metrics.Namespace))
	events := json.NewEncoder(cmd.ErrOrStderr())
	r, err := renderer.New(doc, cfg,
		renderer.WithMetrics(m),
		renderer.WithPipeline(bridge.PipelineFunc(func(ev protocol.Event) *protocol.Directive {
			if opts.events {
				_ = events.Encode(ev)
			}
			return nil
		})),
	)
	if err != nil {
		return err
	}
	defer r.Close()
	if opts.metrics {
		defer writeMetrics(cmd.ErrOrStderr(), reg)
	}

	total := 0
	for _, name := range files {
		data, err := readInput(cmd, name)
		if err != nil {
			return err
		}
		n, err := replayData(ctx, r, data)
		total += n
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	got := doc.HTML()
	if opts.out != "" {
		if err := os.WriteFile(opts.out, []byte(got+"\n"), 0644); err != nil {
			return err
		}
	} else if opts.expect == "" {
		fmt.Fprintln(cmd.OutOrStdout(), got)
	}

	for _, script := range opts.scripts {
		v, err := r.Eval(ctx, script)
		if err != nil {
			warn(cmd, "%s: %v", script, err)
			continue
		}
		info(cmd, "%s => %s", script, v)
	}

	if opts.expect != "" {
		want, err := os.ReadFile(opts.expect)
		if err != nil {
			return err
		}
		if d := diffHTML(strings.TrimSpace(string(want)), got); d != "" {
			fmt.Fprintln(cmd.OutOrStdout(), d)
			return errMismatch
		}
	}

	stats := r.Stats()
	success(cmd, "applied %d batches (%d edits), %d live nodes", total, stats.Edits, stats.LiveNodes)
	return nil
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) {
	families, err := g.Gather()
	if err != nil {
		return
	}
	for _, mf := range families {
		_, _ = expfmt.MetricFamilyToText(w, mf)
	}
}

func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(name)
}

// replayData applies every batch in data and returns how many were applied.
func replayData(ctx context.Context, r *renderer.Renderer, data []byte) (int, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return replayJSON(ctx, r, trimmed)
	}
	return replayFrames(ctx, r, data)
}

func replayJSON(ctx context.Context, r *renderer.Renderer, data []byte) (int, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	n := 0
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return n, fmt.Errorf("batch %d: %w", n, err)
		}
		var chunk []json.RawMessage
		if raw[0] == '[' {
			if err := json.Unmarshal(raw, &chunk); err != nil {
				return n, fmt.Errorf("batch %d: %w", n, err)
			}
		} else {
			chunk = []json.RawMessage{raw}
		}
		for _, item := range chunk {
			b, err := protocol.DecodeBatchJSON(item)
			if err != nil {
				return n, fmt.Errorf("batch %d: %w", n, err)
			}
			if err := r.Apply(ctx, b); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func replayFrames(ctx context.Context, r *renderer.Renderer, data []byte) (int, error) {
	br := bufio.NewReader(bytes.NewReader(data))
	n := 0
	for {
		f, err := protocol.ReadFrame(br)
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("frame %d: %w", n, err)
		}
		if err := r.HandleFrame(ctx, f); err != nil {
			return n, err
		}
		if f.Type == protocol.FrameEdits {
			n++
		}
	}
}

var (
	diffDelete = color.New(color.FgRed, color.Bold).SprintFunc()
	diffInsert = color.New(color.FgGreen, color.Bold).SprintFunc()
)

// diffHTML returns an inline diff of want against got, or "" when equal.
func diffHTML(want, got string) string {
	if want == got {
		return ""
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(want, got, false))

	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			b.WriteString(diffDelete("[-" + d.Text + "-]"))
		case diffmatchpatch.DiffInsert:
			b.WriteString(diffInsert("{+" + d.Text + "+}"))
		case diffmatchpatch.DiffEqual:
			b.WriteString(d.Text)
		}
	}
	return b.String()
}
