package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
engine:
  enable_reporting: true
  reporting_endpoint: "https://rum.example.com/vitals"
  reporting_auth:
    mode: apikey
    header: X-RUM-Key
    key_env: RUM_KEY
  debug: true
  poll_interval: 2s
collector:
  http_port: 9090
  session_ttl: 10m
  analytics: [prometheus, otel]
  upstream: "http://localhost:3000"
optimize:
  critical_resources:
    - href: /fonts/inter.woff2
      as: font
      type: font/woff2
      crossorigin: true
  eager_images: 2
  third_party:
    - match: googletagmanager.com
      trigger: idle
    - match: widget.js
      trigger: visible
      element: "#chat"
  reserved_slots:
    - class: ad-slot
      min_height: 250px
`
	cfg := loadFromString(t, yaml)

	if cfg.Engine.ReportingEndpoint != "https://rum.example.com/vitals" {
		t.Errorf("reporting_endpoint: got %q", cfg.Engine.ReportingEndpoint)
	}
	if cfg.Engine.PollInterval != 2*time.Second {
		t.Errorf("poll_interval: got %v", cfg.Engine.PollInterval)
	}
	if !cfg.Engine.Debug {
		t.Error("debug: got false")
	}
	if cfg.Collector.HTTPPort != 9090 {
		t.Errorf("http_port: got %d", cfg.Collector.HTTPPort)
	}
	if len(cfg.Collector.Analytics) != 2 {
		t.Errorf("analytics: got %v", cfg.Collector.Analytics)
	}
	if len(cfg.Optimize.CriticalResources) != 1 || !cfg.Optimize.CriticalResources[0].Crossorigin {
		t.Errorf("critical_resources: got %+v", cfg.Optimize.CriticalResources)
	}
	if cfg.Optimize.EagerImages != 2 {
		t.Errorf("eager_images: got %d", cfg.Optimize.EagerImages)
	}
	if cfg.Optimize.ThirdParty[1].Element != "#chat" {
		t.Errorf("third_party[1].element: got %q", cfg.Optimize.ThirdParty[1].Element)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, "engine:\n  debug: false\n")

	if !cfg.Engine.EnableReporting || !cfg.Engine.EnableOptimizations ||
		!cfg.Engine.EnablePreloading || !cfg.Engine.EnableLazyLoading {
		t.Errorf("engine toggles should default on: %+v", cfg.Engine)
	}
	if cfg.Engine.PollInterval != DefaultPollInterval {
		t.Errorf("default poll_interval: got %v, want %v", cfg.Engine.PollInterval, DefaultPollInterval)
	}
	if cfg.Collector.HTTPPort != DefaultHTTPPort {
		t.Errorf("default http_port: got %d, want %d", cfg.Collector.HTTPPort, DefaultHTTPPort)
	}
	if cfg.Collector.SessionTTL != DefaultSessionTTL {
		t.Errorf("default session_ttl: got %v", cfg.Collector.SessionTTL)
	}
	if cfg.Collector.MaxBatchSize != DefaultMaxBatchSize {
		t.Errorf("default max_batch_size: got %d", cfg.Collector.MaxBatchSize)
	}
	if cfg.Optimize.EagerImages != DefaultEagerImages {
		t.Errorf("default eager_images: got %d", cfg.Optimize.EagerImages)
	}
	if cfg.Optimize.DefaultAspectRatio != DefaultAspectRatio {
		t.Errorf("default aspect ratio: got %q", cfg.Optimize.DefaultAspectRatio)
	}
}

func TestLoad_ExplicitFalseOverridesDefault(t *testing.T) {
	cfg := loadFromString(t, "engine:\n  enable_reporting: false\n  enable_lazy_loading: false\n")
	if cfg.Engine.EnableReporting || cfg.Engine.EnableLazyLoading {
		t.Errorf("explicit false ignored: %+v", cfg.Engine)
	}
	if !cfg.Engine.EnablePreloading {
		t.Error("unrelated toggle changed")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"poll too fast", "engine:\n  poll_interval: 100ms\n"},
		{"poll too slow", "engine:\n  poll_interval: 30s\n"},
		{"endpoint scheme", "engine:\n  reporting_endpoint: ftp://x\n"},
		{"reporting auth mode", "engine:\n  reporting_auth:\n    mode: magic\n"},
		{"port", "collector:\n  http_port: 70000\n"},
		{"analytics sink", "collector:\n  analytics: [statsd]\n"},
		{"collector auth", "collector:\n  auth:\n    mode: mtls\n"},
		{"preload as", "optimize:\n  critical_resources:\n    - href: /a.css\n"},
		{"gate trigger", "optimize:\n  third_party:\n    - match: x.js\n      trigger: never\n"},
		{"visible without element", "optimize:\n  third_party:\n    - match: x.js\n      trigger: visible\n"},
		{"slot", "optimize:\n  reserved_slots:\n    - class: ad\n"},
		{"bad yaml", "engine: [\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadStringErr(t, tc.yaml); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestAuthConfig_Key(t *testing.T) {
	t.Setenv("TEST_API_KEY", "supersecret")
	a := AuthConfig{Mode: "apikey", KeyEnv: "TEST_API_KEY"}
	if got := a.Key(); got != "supersecret" {
		t.Errorf("Key(): got %q, want %q", got, "supersecret")
	}
}

func TestAuthConfig_Key_Empty(t *testing.T) {
	a := AuthConfig{Mode: "apikey"}
	if got := a.Key(); got != "" {
		t.Errorf("Key() with no KeyEnv: got %q, want empty", got)
	}
}

func TestAuthConfig_Token(t *testing.T) {
	t.Setenv("TEST_BEARER_TOKEN", "mytoken")
	a := AuthConfig{Mode: "bearer", TokenEnv: "TEST_BEARER_TOKEN"}
	if got := a.Token(); got != "mytoken" {
		t.Errorf("Token(): got %q, want %q", got, "mytoken")
	}
}

func TestServerAuthConfig_Key(t *testing.T) {
	t.Setenv("COLLECTOR_KEY", "k1")
	a := ServerAuthConfig{Mode: "apikey", KeyEnv: "COLLECTOR_KEY"}
	if got := a.Key(); got != "k1" {
		t.Errorf("Key(): got %q", got)
	}
}

func TestWatch_Reloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("engine:\n  debug: false\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 16)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, func(c *Config) { got <- c }) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("engine:\n  debug: true\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	// A single write can surface as several events, the first of which may
	// see a truncated file. Wait for the final content.
	deadline := time.After(3 * time.Second)
	for reloaded := false; !reloaded; {
		select {
		case c := <-got:
			reloaded = c.Engine.Debug
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}
