package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultHTTPPort     = 8080
	DefaultSessionTTL   = 30 * time.Minute
	DefaultMaxBatchSize = 500
	DefaultEagerImages  = 1
	DefaultAspectRatio  = "16 / 9"
)

// Config is the top-level configuration for the engine and the collector.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Collector CollectorConfig `yaml:"collector"`
	Optimize  OptimizeConfig  `yaml:"optimize"`
}

// EngineConfig holds the per-engine options every page view is created with.
type EngineConfig struct {
	// EnableReporting turns metric dispatch to the analytics sink and
	// ReportingEndpoint on or off.
	EnableReporting bool `yaml:"enable_reporting"`

	// ReportingEndpoint receives a JSON POST per metric update. Empty disables
	// the HTTP path; analytics sinks still fire.
	ReportingEndpoint string `yaml:"reporting_endpoint"`

	// ReportingAuth configures how the reporter authenticates to the endpoint.
	ReportingAuth AuthConfig `yaml:"reporting_auth"`

	// EnableOptimizations gates the whole optimization controller.
	EnableOptimizations bool `yaml:"enable_optimizations"`

	// EnablePreloading gates critical-resource preload injection.
	EnablePreloading bool `yaml:"enable_preloading"`

	// EnableLazyLoading gates image loading hints.
	EnableLazyLoading bool `yaml:"enable_lazy_loading"`

	// Debug logs every reported metric at debug level.
	Debug bool `yaml:"debug"`

	// PageURL is sent as "url" in reporting payloads when the page view does
	// not supply its own.
	PageURL string `yaml:"page_url"`

	// PollInterval is the cadence of snapshot polling (1s to 5s).
	PollInterval time.Duration `yaml:"poll_interval"`
}

// AuthConfig specifies an outbound authentication mode.
type AuthConfig struct {
	// Mode is one of: apikey | bearer | none.
	Mode string `yaml:"mode"`

	// Header is the HTTP header the API key is sent in. Defaults to X-API-Key.
	Header string `yaml:"header"`

	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv is the name of the environment variable that holds the token.
	TokenEnv string `yaml:"token_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// CollectorConfig holds the collector service settings.
type CollectorConfig struct {
	// HTTPPort is the port the ingestion API, REST API, WebSocket hub and
	// optimizing proxy listen on.
	HTTPPort int `yaml:"http_port"`

	// SessionTTL evicts page views that received no beacon for this long.
	SessionTTL time.Duration `yaml:"session_ttl"`

	// MaxBatchSize caps the number of entries accepted in one beacon.
	MaxBatchSize int `yaml:"max_batch_size"`

	// Analytics lists the analytics sinks to fan reports out to:
	// prometheus | otel.
	Analytics []string `yaml:"analytics"`

	// OTLPEndpoint is the host:port the otel sink exports to.
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Auth configures how the collector authenticates incoming API requests.
	Auth ServerAuthConfig `yaml:"auth"`

	// Upstream is the origin the optimizing reverse proxy forwards "/" to.
	// Empty disables the proxy.
	Upstream string `yaml:"upstream"`
}

// ServerAuthConfig configures inbound API authentication.
type ServerAuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable holding the expected API key.
	KeyEnv string `yaml:"key_env"`
}

// Key returns the collector API key resolved from the environment.
func (a ServerAuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// OptimizeConfig declares the page mitigations the optimization controller
// applies to proxied HTML.
type OptimizeConfig struct {
	// CriticalResources are injected as <link rel=preload>.
	CriticalResources []Resource `yaml:"critical_resources"`

	// DeferredStylesheets are href substrings of stylesheets loaded with the
	// media=print swap. "*" defers every stylesheet not listed as critical.
	DeferredStylesheets []string `yaml:"deferred_stylesheets"`

	// EagerImages is the number of leading images treated as above the fold.
	EagerImages int `yaml:"eager_images"`

	// ThirdParty lists script gates.
	ThirdParty []ScriptGate `yaml:"third_party"`

	// ReservedSlots reserve vertical space for late-loading containers.
	ReservedSlots []Slot `yaml:"reserved_slots"`

	// DefaultAspectRatio is applied to img/video/iframe elements that carry
	// neither width/height attributes nor an aspect-ratio style.
	DefaultAspectRatio string `yaml:"default_aspect_ratio"`
}

// Resource is one preload target.
type Resource struct {
	Href        string `yaml:"href"`
	As          string `yaml:"as"`
	Type        string `yaml:"type"`
	Crossorigin bool   `yaml:"crossorigin"`
}

// ScriptGate delays a third-party script until its trigger fires.
type ScriptGate struct {
	// Match is a substring of the script src.
	Match string `yaml:"match"`

	// Trigger is one of: interaction | idle | visible.
	Trigger string `yaml:"trigger"`

	// Element is the CSS selector observed when Trigger is visible.
	Element string `yaml:"element"`
}

// Slot reserves min-height on every element carrying Class.
type Slot struct {
	Class     string `yaml:"class"`
	MinHeight string `yaml:"min_height"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes the same way Load does.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config pre-populated with default values. Reporting and
// every optimization are on unless the file turns them off.
func Defaults() *Config {
	return &Config{
		Engine: EngineConfig{
			EnableReporting:     true,
			EnableOptimizations: true,
			EnablePreloading:    true,
			EnableLazyLoading:   true,
			PollInterval:        DefaultPollInterval,
		},
		Collector: CollectorConfig{
			HTTPPort:     DefaultHTTPPort,
			SessionTTL:   DefaultSessionTTL,
			MaxBatchSize: DefaultMaxBatchSize,
		},
		Optimize: OptimizeConfig{
			EagerImages:        DefaultEagerImages,
			DefaultAspectRatio: DefaultAspectRatio,
		},
	}
}

// validate checks structural constraints and enums.
func validate(cfg *Config) error {
	e := cfg.Engine
	if e.PollInterval < time.Second || e.PollInterval > 5*time.Second {
		return fmt.Errorf("engine.poll_interval must be between 1s and 5s, got %v", e.PollInterval)
	}
	if e.ReportingEndpoint != "" &&
		!strings.HasPrefix(e.ReportingEndpoint, "http://") &&
		!strings.HasPrefix(e.ReportingEndpoint, "https://") {
		return fmt.Errorf("engine.reporting_endpoint must be an http(s) URL")
	}
	switch e.ReportingAuth.Mode {
	case "apikey", "bearer", "none", "":
	default:
		return fmt.Errorf("engine.reporting_auth: unknown mode %q", e.ReportingAuth.Mode)
	}

	c := cfg.Collector
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("collector.http_port out of range: %d", c.HTTPPort)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("collector.session_ttl must be positive")
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("collector.max_batch_size must be positive")
	}
	for i, a := range c.Analytics {
		switch a {
		case "prometheus", "otel":
		default:
			return fmt.Errorf("collector.analytics[%d]: unknown sink %q", i, a)
		}
	}
	switch c.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("collector.auth: unknown mode %q", c.Auth.Mode)
	}

	o := cfg.Optimize
	if o.EagerImages < 0 {
		return fmt.Errorf("optimize.eager_images must not be negative")
	}
	for i, r := range o.CriticalResources {
		if r.Href == "" {
			return fmt.Errorf("optimize.critical_resources[%d]: href is required", i)
		}
		if r.As == "" {
			return fmt.Errorf("optimize.critical_resources[%d] %q: as is required", i, r.Href)
		}
	}
	for i, g := range o.ThirdParty {
		if g.Match == "" {
			return fmt.Errorf("optimize.third_party[%d]: match is required", i)
		}
		switch g.Trigger {
		case "interaction", "idle":
		case "visible":
			if g.Element == "" {
				return fmt.Errorf("optimize.third_party[%d] %q: element is required for visible trigger", i, g.Match)
			}
		default:
			return fmt.Errorf("optimize.third_party[%d] %q: unknown trigger %q", i, g.Match, g.Trigger)
		}
	}
	for i, s := range o.ReservedSlots {
		if s.Class == "" || s.MinHeight == "" {
			return fmt.Errorf("optimize.reserved_slots[%d]: class and min_height are required", i)
		}
	}
	return nil
}
