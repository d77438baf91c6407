package reporter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/obsidianstack/vitals/internal/config"
	"github.com/obsidianstack/vitals/internal/vitals"
)

// Payload is the JSON body POSTed to the reporting endpoint. The field set is
// a stable wire contract.
type Payload struct {
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	URL       string  `json:"url"`
	Timestamp int64   `json:"timestamp"` // Unix milliseconds
}

// Reporter dispatches metric updates to an analytics sink and an HTTP
// endpoint. Dispatch is best-effort: failures are logged and dropped, nothing
// is retried or queued, and Report never blocks on the network.
//
// A nil *Reporter is valid and discards everything.
type Reporter struct {
	cfg       config.EngineConfig
	client    *http.Client
	analytics Analytics
	pageURL   string
	now       func() time.Time

	wg sync.WaitGroup
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithAnalytics sets the analytics sink events are tracked on.
func WithAnalytics(a Analytics) Option {
	return func(r *Reporter) { r.analytics = a }
}

// WithPageURL sets the url field of every payload, overriding
// EngineConfig.PageURL.
func WithPageURL(u string) Option {
	return func(r *Reporter) { r.pageURL = u }
}

// WithHTTPClient replaces the HTTP client. The client's transport is still
// wrapped with the configured reporting auth.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Reporter) { r.client = c }
}

// WithClock sets the clock used for payload timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

// New returns a Reporter for cfg.
func New(cfg config.EngineConfig, opts ...Option) (*Reporter, error) {
	if cfg.ReportingEndpoint != "" {
		if _, err := url.ParseRequestURI(cfg.ReportingEndpoint); err != nil {
			return nil, fmt.Errorf("reporter: invalid endpoint: %w", err)
		}
	}

	r := &Reporter{
		cfg:     cfg,
		pageURL: cfg.PageURL,
		now:     time.Now,
	}
	for _, o := range opts {
		o(r)
	}

	base := http.DefaultTransport
	if r.client != nil && r.client.Transport != nil {
		base = r.client.Transport
	}
	client := &http.Client{}
	if r.client != nil {
		*client = *r.client
	}
	// No client timeout: delivery latency is unbounded and never observed.
	client.Transport = &authRoundTripper{base: base, auth: cfg.ReportingAuth}
	r.client = client
	return r, nil
}

// Report dispatches one metric update.
func (r *Reporter) Report(name vitals.Name, value float64) {
	if r == nil {
		return
	}
	if r.cfg.Debug {
		slog.Debug("reporter: metric",
			"metric", name, "value", value, "rating", vitals.Rate(name, value), "url", r.pageURL)
	}
	if !r.cfg.EnableReporting {
		return
	}

	if r.analytics != nil {
		r.track(Event{
			Name:   name,
			Value:  Round(name, value),
			Rating: vitals.Rate(name, value),
		})
	}

	if r.cfg.ReportingEndpoint == "" {
		return
	}
	p := Payload{
		Metric:    string(name),
		Value:     value,
		URL:       r.pageURL,
		Timestamp: r.now().UnixMilli(),
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.send(p)
	}()
}

// track runs on the observer callback, so a failing sink is logged and
// contained here.
func (r *Reporter) track(e Event) {
	defer func() {
		if p := recover(); p != nil {
			slog.Warn("reporter: analytics sink panicked", "metric", e.Name, "panic", p)
		}
	}()
	r.analytics.Track(e)
}

// Wait blocks until every in-flight POST has finished. Report never calls it;
// it exists for shutdown and tests.
func (r *Reporter) Wait() {
	if r == nil {
		return
	}
	r.wg.Wait()
}

// send POSTs p and logs the outcome. Every outcome is terminal.
func (r *Reporter) send(p Payload) {
	body, err := json.Marshal(p)
	if err != nil {
		slog.Warn("reporter: marshal payload", "metric", p.Metric, "err", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, r.cfg.ReportingEndpoint, bytes.NewReader(body))
	if err != nil {
		slog.Warn("reporter: build request", "metric", p.Metric, "err", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		slog.Warn("reporter: delivery failed", "metric", p.Metric, "err", err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		slog.Warn("reporter: endpoint rejected report",
			"metric", p.Metric, "status", resp.StatusCode)
		return
	}
	slog.Debug("reporter: delivered", "metric", p.Metric, "status", resp.StatusCode)
}

// authRoundTripper injects reporting credentials into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		header := t.auth.Header
		if header == "" {
			header = "X-API-Key"
		}
		req = req.Clone(req.Context())
		req.Header.Set(header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	}
	return t.base.RoundTrip(req)
}
