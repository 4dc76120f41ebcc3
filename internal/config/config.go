// Package config handles CLI and TOML configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"redirector/internal/model"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/redirector/config.toml",
	"configs/config.toml",
}

// ErrMissingTarget is returned when neither the CLI nor the config file names an upstream.
var ErrMissingTarget = errors.New("upstream target is required: pass --target or set upstream.target")

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config     string `kong:"short='c',help='Path to optional TOML config file.',env='CONFIG_PATH'"`
	Target     string `kong:"short='t',help='Target server to forward requests to (e.g. https://example.com or 10.10.1.131:443).',env='TARGET'"`
	Host       string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port       int    `kong:"short='p',help='Local port to listen on (default 443).',env='PORT'"`
	Endpoints  string `kong:"short='e',help='Comma-separated list of endpoints to forward (e.g. \"/admin.php,/submit.php?id=882686070\").',env='ENDPOINTS'"`
	Header     string `kong:"help='Required request header, Name:Value or bare Name.',env='REQUIRED_HEADER'"`
	ErrorPage  string `kong:"help='HTML file served for denied requests.',env='ERROR_PAGE'"`
	Cert       string `kong:"help='TLS certificate file.',env='TLS_CERT'"`
	Key        string `kong:"help='TLS private key file.',env='TLS_KEY'"`
	ACMEDomain string `kong:"name='acme-domain',help='Obtain certificates via ACME for this domain.',env='ACME_DOMAIN'"`
	NoTLS      bool   `kong:"name='no-tls',help='Serve plain HTTP instead of HTTPS.',env='NO_TLS'"`
	LogLevel   string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	LogFormat  string `kong:"help='Log format: json|text (overrides config).',env='LOG_FORMAT'"`
}

// Config is the top-level application configuration. It is built once at
// startup and shared read-only afterwards.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Upstream  UpstreamConfig  `toml:"upstream"`
	Admission AdmissionConfig `toml:"admission"`
	Denial    DenialConfig    `toml:"denial"`
	TLS       TLSConfig       `toml:"tls"`
	Admin     AdminConfig     `toml:"admin"`
	Log       LogConfig       `toml:"log"`
	Metrics   MetricsConfig   `toml:"metrics"`

	// Rules is the compiled admission policy input.
	Rules Rules `toml:"-"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (443)
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// UpstreamConfig holds upstream connection settings.
type UpstreamConfig struct {
	Target          string `toml:"target"`
	TimeoutSeconds  int    `toml:"timeout_seconds"` // 0 leaves the upstream call unbounded
	IdleConnections int    `toml:"idle_connections"`
}

// AdmissionConfig holds the raw allow-list and required-header settings.
// A nil Endpoints pointer allows every path; a non-nil empty list denies all.
type AdmissionConfig struct {
	Endpoints *[]string `toml:"endpoints"`
	Header    string    `toml:"header"`
}

// DenialConfig holds the denial page settings.
type DenialConfig struct {
	Page string `toml:"page"`
}

// TLSConfig selects how the listener obtains its certificate.
type TLSConfig struct {
	Disabled     bool   `toml:"disabled"`
	CertFile     string `toml:"cert_file"`
	KeyFile      string `toml:"key_file"`
	ACMEDomain   string `toml:"acme_domain"`
	ACMECacheDir string `toml:"acme_cache_dir"`
}

// AdminConfig holds the optional health/metrics listener settings.
type AdminConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load builds the configuration from an optional TOML file and CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/redirector/config.toml then configs/config.toml, and proceeds with
// flags alone if neither exists.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()

	target, err := NormalizeTarget(cfg.Upstream.Target, cfg.Server.Port)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.Upstream.Target = target

	rules, err := cfg.Admission.Compile()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.Rules = rules

	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Target != "" {
		c.Upstream.Target = cli.Target
	}
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.Endpoints != "" {
		list := strings.Split(cli.Endpoints, ",")
		c.Admission.Endpoints = &list
	}
	if cli.Header != "" {
		c.Admission.Header = cli.Header
	}
	if cli.ErrorPage != "" {
		c.Denial.Page = cli.ErrorPage
	}
	if cli.Cert != "" {
		c.TLS.CertFile = cli.Cert
	}
	if cli.Key != "" {
		c.TLS.KeyFile = cli.Key
	}
	if cli.ACMEDomain != "" {
		c.TLS.ACMEDomain = cli.ACMEDomain
	}
	if cli.NoTLS {
		c.TLS.Disabled = true
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		c.Log.Format = cli.LogFormat
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Upstream.Target) == "" {
		return ErrMissingTarget
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Admin.Port < 0 || c.Admin.Port > 65535 {
		return fmt.Errorf("admin.port must be 0–65535; got %d", c.Admin.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	// TLS source selection.
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return fmt.Errorf("tls.cert_file and tls.key_file must be set together")
	}
	if c.TLS.ACMEDomain != "" && c.TLS.CertFile != "" {
		return fmt.Errorf("tls.acme_domain cannot be combined with tls.cert_file")
	}
	if c.TLS.Disabled && (c.TLS.ACMEDomain != "" || c.TLS.CertFile != "") {
		return fmt.Errorf("tls.disabled cannot be combined with certificate settings")
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics are exposed on the admin listener only; the public listener
	// relays every path.
	if c.Metrics.Enabled {
		if !c.Admin.Enabled {
			return fmt.Errorf("metrics.enabled requires admin.enabled")
		}
		if p := c.Metrics.Path; p != "" {
			if p[0] != '/' {
				return fmt.Errorf("metrics.path must start with '/'; got %q", p)
			}
			for _, reserved := range []string{"/healthz", "/status"} {
				if p == reserved {
					return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
				}
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields, zero means "unset" because TOML cannot distinguish
// between an explicit 0 and an omitted key. The exception is
// upstream.timeout_seconds, where zero keeps the upstream call unbounded.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 443
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Denial.Page == "" {
		c.Denial.Page = "custom404.html"
	}
	if c.TLS.ACMECacheDir == "" {
		c.TLS.ACMECacheDir = "acme-cache"
	}
	if c.Admin.Host == "" {
		c.Admin.Host = "127.0.0.1"
	}
	if c.Admin.Port == 0 {
		c.Admin.Port = 9090
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns the admin listen address as host:port.
func (c *AdminConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}

// LogStartup reports the effective forwarding setup.
func (c *Config) LogStartup(logger *slog.Logger) {
	logger.Info("redirecting all requests", "target", c.Upstream.Target)
	if len(c.Rules.Endpoints) > 0 {
		specs := make([]string, 0, len(c.Rules.Endpoints))
		for _, s := range c.Rules.Endpoints {
			specs = append(specs, s.Value)
		}
		logger.Info("only forwarding requests to the following endpoints", "endpoints", specs)
	} else if c.Rules.Endpoints != nil {
		logger.Warn("endpoint allow-list is empty; every request will be denied")
	}
	if c.Rules.Header.Kind != model.NoHeaderGate {
		logger.Info("required header gate enabled", "header", c.Rules.Header.Name)
	}
}
