// Package config loads the server configuration from YAML, the environment,
// and command-line overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/jmcleod/edgehook/hooks"
	"github.com/jmcleod/edgehook/web"
)

// Adapter selects how the server is deployed.
type Adapter string

const (
	// AdapterNode terminates TLS in this process.
	AdapterNode Adapter = "node"
	// AdapterEdge serves plain HTTP behind a TLS-terminating platform.
	AdapterEdge Adapter = "edge"
)

// LiveTokenEnv supplies the live token fallback so it stays out of config
// files and process arguments.
const LiveTokenEnv = "EDGEHOOK_LIVE_TOKEN"

// Config is the complete server configuration.
type Config struct {
	Port        int               `yaml:"port"`
	Adapter     Adapter           `yaml:"adapter"`
	Assets      string            `yaml:"assets"`
	Compression bool              `yaml:"compression"`
	MIMETypes   map[string]string `yaml:"mime_types"`
	TLS         TLSConfig         `yaml:"tls"`
	LiveToken   LiveTokenConfig   `yaml:"live_token"`
	Log         LogConfig         `yaml:"log"`
}

// TLSConfig is used by the node adapter only.
type TLSConfig struct {
	Cert        string   `yaml:"cert"`
	Key         string   `yaml:"key"`
	ACMEDomains []string `yaml:"acme_domains"`
	ACMECache   string   `yaml:"acme_cache"`
}

// LiveTokenConfig configures the cookie interceptor. Fallback is normally
// left empty here and supplied through LiveTokenEnv.
type LiveTokenConfig struct {
	Name      string `yaml:"name"`
	Fallback  string `yaml:"fallback"`
	LogValues bool   `yaml:"log_values"`
}

// LogConfig selects the slog level and handler. Format is "auto", "json" or
// "text"; auto picks text on a terminal and JSON otherwise.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Port:        8443,
		Adapter:     AdapterNode,
		Assets:      "public",
		Compression: true,
		MIMETypes:   web.DefaultMIMETypes(),
		TLS: TLSConfig{
			ACMECache: "./acme",
		},
		LiveToken: LiveTokenConfig{
			Name: hooks.DefaultLiveTokenName,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load reads path over the defaults and applies the environment. An empty
// path or a missing file leaves the defaults in place.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := cfg.readYAML(path); err != nil {
		return Config{}, err
	}
	cfg.applyEnv()
	return cfg, nil
}

func (cfg *Config) readYAML(path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("no YAML configuration file found, skipping", slog.String("path", path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML from %s: %w", path, err)
	}

	slog.Info("loaded configuration", slog.String("path", path))
	return nil
}

func (cfg *Config) applyEnv() {
	if v, ok := os.LookupEnv(LiveTokenEnv); ok && v != "" {
		cfg.LiveToken.Fallback = v
	}
}

// Validate reports every invalid field.
func (cfg Config) Validate() error {
	var errs []error
	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", cfg.Port))
	}
	switch cfg.Adapter {
	case AdapterNode, AdapterEdge:
	default:
		errs = append(errs, fmt.Errorf("unknown adapter %q (want %q or %q)", cfg.Adapter, AdapterNode, AdapterEdge))
	}
	if cfg.Assets == "" {
		errs = append(errs, errors.New("assets directory is required"))
	}
	if _, err := web.MIMETypes(cfg.MIMETypes); err != nil {
		errs = append(errs, fmt.Errorf("mime_types: %w", err))
	}
	if (cfg.TLS.Cert == "") != (cfg.TLS.Key == "") {
		errs = append(errs, errors.New("tls.cert and tls.key must be set together"))
	}
	if cfg.TLS.Cert != "" && len(cfg.TLS.ACMEDomains) > 0 {
		errs = append(errs, errors.New("tls.cert and tls.acme_domains are mutually exclusive"))
	}
	if cfg.Adapter == AdapterEdge && (cfg.TLS.Cert != "" || len(cfg.TLS.ACMEDomains) > 0) {
		errs = append(errs, errors.New("tls settings only apply to the node adapter"))
	}
	if cfg.LiveToken.Name == "" {
		errs = append(errs, errors.New("live_token.name is required"))
	}
	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch cfg.Log.Format {
	case "auto", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", cfg.Log.Format))
	}
	return errors.Join(errs...)
}

// ParseLevel maps a level name to its slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}
