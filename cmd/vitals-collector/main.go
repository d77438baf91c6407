package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/obsidianstack/vitals/internal/api"
	"github.com/obsidianstack/vitals/internal/auth"
	"github.com/obsidianstack/vitals/internal/compute"
	"github.com/obsidianstack/vitals/internal/config"
	"github.com/obsidianstack/vitals/internal/observer"
	"github.com/obsidianstack/vitals/internal/optimize"
	"github.com/obsidianstack/vitals/internal/receiver"
	"github.com/obsidianstack/vitals/internal/reporter"
	"github.com/obsidianstack/vitals/internal/store"
	"github.com/obsidianstack/vitals/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("vitals-collector starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	setLevel(level, cfg)

	slog.Info("config loaded",
		"http_port", cfg.Collector.HTTPPort,
		"auth_mode", cfg.Collector.Auth.Mode,
		"session_ttl", cfg.Collector.SessionTTL,
		"reporting", cfg.Engine.EnableReporting,
		"optimizations", cfg.Engine.EnableOptimizations,
		"analytics", cfg.Collector.Analytics,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, cfg, level); err != nil {
		slog.Error("vitals-collector stopped", "err", err)
		os.Exit(1)
	}
	slog.Info("vitals-collector stopped")
}

func run(ctx context.Context, configPath string, cfg *config.Config, level *slog.LevelVar) error {
	var current atomic.Pointer[config.Config]
	current.Store(cfg)

	sinks, err := newSinks(ctx, cfg.Collector)
	if err != nil {
		return err
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := sinks.shutdown(sctx); err != nil {
			slog.Warn("analytics shutdown", "err", err)
		}
	}()

	// Page store with background TTL eviction; every evicted engine is closed.
	st := store.New(cfg.Collector.SessionTTL)

	// Each page view gets its own reporter so payloads carry the page URL.
	newEngine := func(feed *observer.Feed, pageID, pageURL string) (*compute.Engine, error) {
		c := current.Load()
		rep, err := reporter.New(c.Engine,
			reporter.WithAnalytics(sinks.analytics),
			reporter.WithPageURL(pageURL),
		)
		if err != nil {
			return nil, err
		}
		return compute.New(feed, c.Engine, compute.WithID(pageID), compute.WithReporter(rep))
	}
	rcv := receiver.New(st, newEngine, cfg.Collector.MaxBatchSize)

	ctrl := optimize.New(cfg.Engine, cfg.Optimize)
	hub := ws.New(st, cfg.Engine.PollInterval)

	mux := http.NewServeMux()
	authn := auth.APIKey(cfg.Collector.Auth.Mode, auth.DefaultHeader, cfg.Collector.Auth.Key())
	mux.Handle("/api/v1/entries", authn(rcv))
	mux.Handle("/api/", apiHandler(st, sinks.prom, authn))
	mux.Handle("/ws/stream", hub)
	mux.Handle("/metrics", sinks.prom.Handler())

	if cfg.Collector.Upstream != "" {
		proxy, err := newProxy(cfg.Collector.Upstream, ctrl)
		if err != nil {
			return err
		}
		mux.Handle("/", proxy)
		slog.Info("optimizing proxy enabled", "upstream", cfg.Collector.Upstream)
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Collector.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		st.Run(gctx)
		return nil
	})
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return config.Watch(gctx, configPath, func(next *config.Config) {
			current.Store(next)
			setLevel(level, next)
			ctrl.Update(next.Engine, next.Optimize)
			st.SetTTL(next.Collector.SessionTTL)
			rcv.SetMaxBatch(next.Collector.MaxBatchSize)
			hub.SetInterval(next.Engine.PollInterval)
			slog.Info("config reloaded; port, auth and analytics changes need a restart")
		})
	})
	g.Go(func() error {
		slog.Info("HTTP server listening", "port", cfg.Collector.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("vitals-collector shutting down")
		sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer scancel()
		return httpSrv.Shutdown(sctx)
	})

	return g.Wait()
}

// newProxy returns a reverse proxy to upstream whose HTML responses pass
// through ctrl. The transport never asks upstream for a compressed body,
// since ModifyResponse has to parse the document.
func newProxy(upstream string, ctrl *optimize.Controller) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("collector.upstream: %w", err)
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	direct := proxy.Director
	proxy.Director = func(r *http.Request) {
		direct(r)
		r.Header.Del("Accept-Encoding")
		r.Host = target.Host
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DisableCompression = true
	proxy.Transport = tr
	proxy.ModifyResponse = ctrl.ModifyResponse
	return proxy, nil
}

// apiHandler serves the read API openly and puts every mutating method
// behind authn.
func apiHandler(st *store.Store, totals api.Totals, authn func(http.Handler) http.Handler) http.Handler {
	return auth.ReadOnlyOpen(authn)(api.New(st, api.WithTotals(totals)))
}

func setLevel(level *slog.LevelVar, cfg *config.Config) {
	if cfg.Engine.Debug {
		level.Set(slog.LevelDebug)
		return
	}
	level.Set(slog.LevelInfo)
}
