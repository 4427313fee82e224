// Package config provides YAML configuration parsing for Stitchboard.
//
// This package enables running Stitchboard as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	title: Stitcher
//	port: 8080
//	refresh_interval: 30s
//
//	sources:
//	  - name: Metrics
//	    kind: metrics
//	    url: ${STITCHER_URL:-http://localhost:9000}/api/stitches/latest/metrics
//	    retry:
//	      limit: 5
//	      backoff: 2s
//	  - name: Data Sources
//	    kind: datasources
//	    url: ${STITCHER_URL:-http://localhost:9000}/api/datasources
//
//	grids:
//	  - name: Label Metrics
//	    kind: metrics
//	    url_template: "http://stitcher:9000/api/stitches/latest/metrics/{{.label}}"
//	    dimensions:
//	      label: [S_DRUGBANK, S_GSRS]
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/jpalmerr/stitchboard"
	"gopkg.in/yaml.v3"
)

// minRefreshInterval keeps a misconfigured board from hammering the stitcher.
const minRefreshInterval = 1 * time.Second

const (
	defaultPort            = 8080
	defaultRefreshInterval = 30 * time.Second
)

// Config is the root configuration structure for Stitchboard.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the dashboard title. Defaults to "Stitchboard" if not set.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// RefreshInterval is the time between polls of every source.
	// Accepts duration strings like "30s" or "1m". Defaults to 30s.
	RefreshInterval Duration `yaml:"refresh_interval"`

	// MaxConcurrency caps the number of sources fetched at once.
	// Zero keeps the board default.
	MaxConcurrency int `yaml:"max_concurrency"`

	// Sources defines individual stitcher endpoints.
	Sources []SourceConfig `yaml:"sources"`

	// Grids defines source grids that expand via cartesian product.
	Grids []GridConfig `yaml:"grids"`
}

// SourceConfig defines a single stitcher endpoint.
type SourceConfig struct {
	// Name is the display name shown in the dashboard.
	Name string `yaml:"name"`

	// Kind is the payload shape: "metrics" or "datasources".
	Kind string `yaml:"kind"`

	// URL is the endpoint URL.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`

	// Timeout is the per-request timeout. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// Headers are custom HTTP headers sent with each request.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`

	// WidgetID overrides the widget id of a data-source donut, or prefixes
	// the widget ids of a metrics source.
	WidgetID string `yaml:"widget_id"`

	// Retry overrides the not-ready retry policy of the kind.
	Retry RetryConfig `yaml:"retry"`
}

// GridConfig defines a source grid that expands via cartesian product.
//
// For example, with dimensions {label: [S_DRUGBANK, S_GSRS]} the grid
// expands to one source per label.
type GridConfig struct {
	// Name is the base name for generated sources.
	Name string `yaml:"name"`

	// Kind is the payload shape of every generated source.
	Kind string `yaml:"kind"`

	// URLTemplate is a Go template for generating source URLs.
	// Dimension keys are available as template variables: {{.label}}
	// Supports environment variable substitution in the template.
	URLTemplate string `yaml:"url_template"`

	// Dimensions maps dimension names to their possible values.
	Dimensions map[string][]string `yaml:"dimensions"`

	// Timeout is the request timeout for all generated sources.
	Timeout Duration `yaml:"timeout"`

	// Headers are custom HTTP headers for all generated sources.
	Headers map[string]string `yaml:"headers"`

	// Retry overrides the retry policy of all generated sources.
	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig bounds the retries a source makes while the stitcher answers
// 404. Unset fields keep the defaults of the source kind.
type RetryConfig struct {
	// Limit is the number of retries after the first request.
	Limit *int `yaml:"limit"`

	// Backoff is the delay before every retry.
	Backoff *Duration `yaml:"backoff"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in URL, URLTemplate, and Header values.
// Defaults are applied for Port (8080) and RefreshInterval (30s).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = Duration(defaultRefreshInterval)
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.RefreshInterval.Duration() < minRefreshInterval {
		return fmt.Errorf("refresh_interval must be at least %s, got %s", minRefreshInterval, c.RefreshInterval.Duration())
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency cannot be negative, got %d", c.MaxConcurrency)
	}

	for i := range c.Sources {
		src := &c.Sources[i]

		if src.Name == "" {
			return fmt.Errorf("sources[%d]: name is required", i)
		}
		ctx := fmt.Sprintf("sources[%d] (%s)", i, src.Name)

		if err := validateKind(src.Kind); err != nil {
			return fmt.Errorf("%s: %w", ctx, err)
		}

		if src.URL == "" {
			return fmt.Errorf("%s: url is required", ctx)
		}
		expanded, err := expandEnvVars(src.URL)
		if err != nil {
			return fmt.Errorf("%s: url: %w", ctx, err)
		}
		src.URL = expanded

		parsedURL, err := url.Parse(src.URL)
		if err != nil {
			return fmt.Errorf("%s: invalid url: %w", ctx, err)
		}
		if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			return fmt.Errorf("%s: url scheme must be http or https, got %q", ctx, parsedURL.Scheme)
		}

		if err := expandHeaders(src.Headers); err != nil {
			return fmt.Errorf("%s: %w", ctx, err)
		}
		if err := validateTimeout(src.Timeout); err != nil {
			return fmt.Errorf("%s: %w", ctx, err)
		}
		if err := validateRetry(src.Retry); err != nil {
			return fmt.Errorf("%s: %w", ctx, err)
		}
	}

	for i := range c.Grids {
		g := &c.Grids[i]

		if g.Name == "" {
			return fmt.Errorf("grids[%d]: name is required", i)
		}
		ctx := fmt.Sprintf("grids[%d] (%s)", i, g.Name)

		if err := validateKind(g.Kind); err != nil {
			return fmt.Errorf("%s: %w", ctx, err)
		}

		if g.URLTemplate == "" {
			return fmt.Errorf("%s: url_template is required", ctx)
		}
		expanded, err := expandEnvVars(g.URLTemplate)
		if err != nil {
			return fmt.Errorf("%s: url_template: %w", ctx, err)
		}
		g.URLTemplate = expanded

		// fail fast before the SDK tries to use an invalid template
		if _, err := template.New("").Parse(g.URLTemplate); err != nil {
			return fmt.Errorf("%s: invalid url_template: %w", ctx, err)
		}

		if len(g.Dimensions) == 0 {
			return fmt.Errorf("%s: at least one dimension is required", ctx)
		}
		for dimName, dimValues := range g.Dimensions {
			if len(dimValues) == 0 {
				return fmt.Errorf("%s: dimension %q has no values", ctx, dimName)
			}
			seen := make(map[string]struct{}, len(dimValues))
			for _, v := range dimValues {
				if _, exists := seen[v]; exists {
					return fmt.Errorf("%s: dimension %q has duplicate value %q", ctx, dimName, v)
				}
				seen[v] = struct{}{}
			}
		}

		if err := expandHeaders(g.Headers); err != nil {
			return fmt.Errorf("%s: %w", ctx, err)
		}
		if err := validateTimeout(g.Timeout); err != nil {
			return fmt.Errorf("%s: %w", ctx, err)
		}
		if err := validateRetry(g.Retry); err != nil {
			return fmt.Errorf("%s: %w", ctx, err)
		}
	}

	if len(c.Sources) == 0 && len(c.Grids) == 0 {
		return errors.New("at least one source or grid must be defined")
	}

	return nil
}

func validateKind(kind string) error {
	switch kind {
	case stitchboard.KindMetrics, stitchboard.KindDataSources:
		return nil
	case "":
		return errors.New("kind is required")
	default:
		return fmt.Errorf("kind must be %q or %q, got %q",
			stitchboard.KindMetrics, stitchboard.KindDataSources, strings.TrimSpace(kind))
	}
}

func expandHeaders(headers map[string]string) error {
	for k, v := range headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("headers[%s]: %w", k, err)
		}
		headers[k] = expanded
	}
	return nil
}

func validateTimeout(d Duration) error {
	if d == 0 {
		return nil
	}
	if d.Duration() < 0 {
		return fmt.Errorf("timeout cannot be negative, got %s", d.Duration())
	}
	if d.Duration() < time.Second {
		return fmt.Errorf("timeout must be at least 1s if specified, got %s", d.Duration())
	}
	return nil
}

func validateRetry(r RetryConfig) error {
	if r.Limit != nil && *r.Limit < 0 {
		return fmt.Errorf("retry.limit cannot be negative, got %d", *r.Limit)
	}
	if r.Backoff != nil && r.Backoff.Duration() < 0 {
		return fmt.Errorf("retry.backoff cannot be negative, got %s", r.Backoff.Duration())
	}
	return nil
}
