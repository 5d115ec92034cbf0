package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/vango-web/internal/metrics"
	"github.com/vango-dev/vango-web/pkg/hotreload"
)

type reloadServerOptions struct {
	addr         string
	templatesDir string
	poll         time.Duration
}

func reloadServerCmd(g *globalFlags) *cobra.Command {
	opts := &reloadServerOptions{}

	cmd := &cobra.Command{
		Use:   "reload-server",
		Short: "Push template updates to running renderers",
		Long: `Start a hot-reload server.

Renderers connect to /ws and receive every published template. Templates
can be published over HTTP or, with --templates, by editing JSON files in a
directory.

Endpoints:
  GET  /ws                      renderer websocket
  PUT  /templates               publish a template definition
  POST /templates/{id}/patch    publish an RFC 6902 patch
  POST /reload                  ask renderers for a full reload
  GET  /metrics                 Prometheus metrics
  GET  /healthz                 liveness

Examples:
  vango-web reload-server --addr :3001
  vango-web reload-server --templates ./templates`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(contextOf(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runReloadServer(ctx, cmd, opts, nil)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.addr, "addr", "a", "localhost:3001", "Address to listen on")
	f.StringVarP(&opts.templatesDir, "templates", "t", "", "Publish *.json template files from this directory and watch for changes")
	f.DurationVar(&opts.poll, "poll", hotreload.DefaultPollInterval, "Template directory poll interval")

	return cmd
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// newReloadRouter mounts the reload server next to the metrics and health
// endpoints.
func newReloadRouter(srv *hotreload.Server, reg *prometheus.Registry) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metrics.NewHTTP(metrics.WithRegistry(reg)).Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Mount("/", srv.Routes())
	return r
}

// runReloadServer serves until ctx ends. When ready is non-nil it receives
// the listening address.
func runReloadServer(ctx context.Context, cmd *cobra.Command, opts *reloadServerOptions, ready chan<- string) error {
	srv := hotreload.NewServer()
	defer srv.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "vango_web",
			Name:      "reload_clients",
			Help:      "Number of connected hot-reload clients.",
		}, func() float64 { return float64(srv.ClientCount()) }),
	)

	ln, err := net.Listen("tcp", opts.addr)
	if err != nil {
		return err
	}
	httpSrv := &http.Server{
		Handler:           newReloadRouter(srv, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpSrv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		srv.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	if opts.templatesDir != "" {
		w := hotreload.NewWatcher(opts.templatesDir, srv, hotreload.WithPollInterval(opts.poll))
		g.Go(func() error {
			if err := w.Run(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	success(cmd, "reload server listening on http://%s", ln.Addr())
	info(cmd, "renderers connect to ws://%s/ws", ln.Addr())
	if ready != nil {
		ready <- ln.Addr().String()
	}

	return g.Wait()
}
