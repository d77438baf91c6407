//go:build js && wasm

// Command vitals-wasm runs the measurement engine inside a page. It observes
// the page's own performance entries, reports each update, and exposes the
// results on window.vitals:
//
//	vitals.getMetrics()            JSON object of measured metrics
//	vitals.getPerformanceScore()   JSON {per_metric, overall}
//	vitals.getRecommendations()    JSON array of advice strings
//	vitals.destroy()               disconnect observers and exit
//
// Options are read from window.vitalsConfig before start-up. Only the
// reporting and debug options apply here; page optimizations are rewritten
// into the document by vitals-collector when it runs as a proxy.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"syscall/js"

	"github.com/obsidianstack/vitals/internal/compute"
	"github.com/obsidianstack/vitals/internal/config"
	"github.com/obsidianstack/vitals/internal/observer"
	"github.com/obsidianstack/vitals/internal/reporter"
)

func main() {
	cfg := engineConfig(js.Global().Get("vitalsConfig"))

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	rep, err := reporter.New(cfg)
	if err != nil {
		slog.Error("vitals: reporter disabled", "err", err)
		rep = nil
	}

	eng, err := compute.New(observer.NewBrowser(), cfg, compute.WithReporter(rep))
	if errors.Is(err, compute.ErrUnsupported) {
		// No PerformanceObserver: leave window.vitals undefined.
		slog.Info("vitals: performance observer unavailable")
		return
	}
	if err != nil {
		slog.Error("vitals: engine failed to start", "err", err)
		return
	}

	funcs := []js.Func{
		jsonFunc(func() any { return eng.Metrics() }),
		jsonFunc(func() any { return eng.PerformanceScore() }),
		jsonFunc(func() any { return eng.Recommendations() }),
	}
	destroy := js.FuncOf(func(js.Value, []js.Value) any {
		eng.Close()
		return nil
	})

	api := js.Global().Get("Object").New()
	api.Set("getMetrics", funcs[0])
	api.Set("getPerformanceScore", funcs[1])
	api.Set("getRecommendations", funcs[2])
	api.Set("destroy", destroy)
	js.Global().Set("vitals", api)

	slog.Debug("vitals: engine started", "engine", eng.ID())
	if cfg.Debug {
		go compute.Poll(context.Background(), eng, 0, func(s compute.Snapshot) {
			slog.Debug("vitals: score", "overall", s.Score.Overall, "metrics", len(s.Metrics))
		})
	}

	<-eng.Done()

	rep.Wait()
	js.Global().Delete("vitals")
	for _, f := range funcs {
		f.Release()
	}
	destroy.Release()
}

// jsonFunc wraps read as a JS function returning its result as a JSON string.
func jsonFunc(read func() any) js.Func {
	return js.FuncOf(func(js.Value, []js.Value) any {
		b, err := json.Marshal(read())
		if err != nil {
			return js.Null()
		}
		return string(b)
	})
}

// engineConfig overlays the page's vitalsConfig object on the defaults.
func engineConfig(v js.Value) config.EngineConfig {
	cfg := config.Defaults().Engine
	if v.IsUndefined() || v.IsNull() {
		return cfg
	}
	applyFlags(&cfg, func(key string) (bool, bool) {
		b := v.Get(key)
		if b.Type() != js.TypeBoolean {
			return false, false
		}
		return b.Bool(), true
	})
	if s := v.Get("reportingEndpoint"); s.Type() == js.TypeString {
		cfg.ReportingEndpoint = s.String()
	}
	if cfg.PageURL == "" {
		cfg.PageURL = js.Global().Get("location").Get("href").String()
	}
	return cfg
}
