// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config defines the application configuration and its loading
// pipeline: read, parse, expand environment variables, decode, default,
// validate.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// Default values applied by SetDefaults.
const (
	DefaultConfigFile  = "fastagent.config.yaml"
	DefaultSecretsFile = "fastagent.secrets.yaml"

	DefaultModel           = "passthrough"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "simple"
	DefaultInitTimeout     = 30 * time.Second
	DefaultMaxTokens       = 4096
	DefaultSearchURL       = "https://huggingface.co/api/spaces/semantic-search"
	DefaultHubURL          = "https://huggingface.co"
	DefaultRequestTimeout  = 60 * time.Second
	DefaultMaxRetries      = 3
	DefaultCacheTTL        = 10 * time.Minute
	DefaultMetricsAddr     = ":9464"
	DefaultTracingExporter = "stdout"
	DefaultOTLPEndpoint    = "localhost:4317"

	// HFSpaceServerName is the conventional name of the bundled server.
	HFSpaceServerName = "mcp_hfspace"
)

// MCP transports.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
	TransportHTTP  = "http"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// ErrServerNotFound is returned when a referenced MCP server is not configured.
var ErrServerNotFound = errors.New("mcp server not found")

// Config is the root configuration.
type Config struct {
	DefaultModel  string              `yaml:"default_model" json:"default_model,omitempty" jsonschema:"description=Model used by agents that do not set one (passthrough, haiku, sonnet, opus or anthropic.<id>)"`
	Logger        LoggerConfig        `yaml:"logger" json:"logger,omitempty"`
	MCP           MCPConfig           `yaml:"mcp" json:"mcp,omitempty"`
	Anthropic     AnthropicConfig     `yaml:"anthropic" json:"anthropic,omitempty"`
	HFSpace       HFSpaceConfig       `yaml:"hfspace" json:"hfspace,omitempty"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability,omitempty"`
}

// LoggerConfig configures logging.
type LoggerConfig struct {
	Level  string `yaml:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	File   string `yaml:"file" json:"file,omitempty"`
	Format string `yaml:"format" json:"format,omitempty"`
}

// MCPConfig holds the MCP servers agents may depend on.
type MCPConfig struct {
	Servers map[string]*MCPServerConfig `yaml:"servers" json:"servers,omitempty"`
}

// MCPServerConfig describes how to reach one MCP server.
type MCPServerConfig struct {
	Transport   string            `yaml:"transport" json:"transport,omitempty" jsonschema:"enum=stdio,enum=sse,enum=http"`
	Command     string            `yaml:"command" json:"command,omitempty"`
	Args        []string          `yaml:"args" json:"args,omitempty"`
	Env         map[string]string `yaml:"env" json:"env,omitempty"`
	URL         string            `yaml:"url" json:"url,omitempty"`
	Headers     map[string]string `yaml:"headers" json:"headers,omitempty"`
	Filter      []string          `yaml:"filter" json:"filter,omitempty"`
	InitTimeout time.Duration     `yaml:"init_timeout" json:"init_timeout,omitempty"`
}

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	APIKey      string  `yaml:"api_key" json:"api_key,omitempty"`
	BaseURL     string  `yaml:"base_url" json:"base_url,omitempty"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens,omitempty"`
	Temperature float64 `yaml:"temperature" json:"temperature,omitempty"`
}

// HFSpaceConfig configures the Hugging Face Space MCP server.
type HFSpaceConfig struct {
	Spaces         []string      `yaml:"spaces" json:"spaces,omitempty" jsonschema:"description=Space specs in owner/space or owner/space/endpoint form"`
	WorkDir        string        `yaml:"work_dir" json:"work_dir,omitempty"`
	HFToken        string        `yaml:"hf_token" json:"hf_token,omitempty"`
	SearchURL      string        `yaml:"search_url" json:"search_url,omitempty"`
	HubURL         string        `yaml:"hub_url" json:"hub_url,omitempty"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout,omitempty"`
	MaxRetries     int           `yaml:"max_retries" json:"max_retries,omitempty"`
	Cache          CacheConfig   `yaml:"cache" json:"cache,omitempty"`
}

// CacheConfig configures result caching.
type CacheConfig struct {
	Backend       string        `yaml:"backend" json:"backend,omitempty" jsonschema:"enum=memory,enum=redis"`
	TTL           time.Duration `yaml:"ttl" json:"ttl,omitempty"`
	RedisAddr     string        `yaml:"redis_addr" json:"redis_addr,omitempty"`
	RedisPassword string        `yaml:"redis_password" json:"redis_password,omitempty"`
	RedisDB       int           `yaml:"redis_db" json:"redis_db,omitempty"`
}

// ObservabilityConfig configures tracing and metrics.
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing" json:"tracing,omitempty"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics,omitempty"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled,omitempty"`
	Exporter string `yaml:"exporter" json:"exporter,omitempty" jsonschema:"enum=stdout,enum=otlp,enum=none"`

	// Endpoint is the OTLP gRPC collector address (otlp exporter only).
	Endpoint string `yaml:"endpoint" json:"endpoint,omitempty"`
	Insecure bool   `yaml:"insecure" json:"insecure,omitempty"`

	// SamplingRate is the fraction of traces kept, 0 < rate <= 1.
	SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled,omitempty"`
	Addr    string `yaml:"addr" json:"addr,omitempty"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.DefaultModel == "" {
		c.DefaultModel = DefaultModel
	}
	c.Logger.SetDefaults()
	c.MCP.SetDefaults()
	c.Anthropic.SetDefaults()
	c.HFSpace.SetDefaults()
	c.Observability.SetDefaults()
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error
	if err := c.MCP.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Anthropic.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.HFSpace.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Observability.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Server returns the named MCP server config.
func (c *Config) Server(name string) (*MCPServerConfig, error) {
	srv, ok := c.MCP.Servers[name]
	if !ok || srv == nil {
		return nil, fmt.Errorf("%w: %q", ErrServerNotFound, name)
	}
	return srv, nil
}

// ServerNames returns configured server names in sorted order.
func (c *Config) ServerNames() []string {
	names := make([]string, 0, len(c.MCP.Servers))
	for name := range c.MCP.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *LoggerConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = DefaultLogLevel
	}
	if c.Format == "" {
		c.Format = DefaultLogFormat
	}
}

func (c *MCPConfig) SetDefaults() {
	if c.Servers == nil {
		c.Servers = make(map[string]*MCPServerConfig)
	}
	for _, srv := range c.Servers {
		if srv != nil {
			srv.SetDefaults()
		}
	}
}

func (c *MCPConfig) Validate() error {
	var errs []error
	for name, srv := range c.Servers {
		if srv == nil {
			errs = append(errs, fmt.Errorf("mcp.servers.%s: empty server definition", name))
			continue
		}
		if err := srv.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("mcp.servers.%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// SetDefaults infers the transport when it is not explicit.
func (c *MCPServerConfig) SetDefaults() {
	if c.Transport == "" {
		switch {
		case c.Command != "":
			c.Transport = TransportStdio
		case strings.HasSuffix(strings.TrimRight(c.URL, "/"), "/sse"):
			c.Transport = TransportSSE
		case c.URL != "":
			c.Transport = TransportHTTP
		}
	}
	if c.InitTimeout == 0 {
		c.InitTimeout = DefaultInitTimeout
	}
}

func (c *MCPServerConfig) Validate() error {
	switch c.Transport {
	case TransportStdio:
		if c.Command == "" {
			return fmt.Errorf("command is required for stdio transport")
		}
	case TransportSSE, TransportHTTP:
		if c.URL == "" {
			return fmt.Errorf("url is required for %s transport", c.Transport)
		}
	case "":
		return fmt.Errorf("either command or url is required")
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.InitTimeout < 0 {
		return fmt.Errorf("init_timeout must not be negative")
	}
	return nil
}

// EnvList converts Env into KEY=VALUE pairs in stable order.
func (c *MCPServerConfig) EnvList() []string {
	if len(c.Env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+c.Env[k])
	}
	return out
}

func (c *AnthropicConfig) SetDefaults() {
	if c.APIKey == "" {
		c.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
}

func (c *AnthropicConfig) Validate() error {
	if c.MaxTokens < 0 {
		return fmt.Errorf("anthropic.max_tokens must be positive")
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("anthropic.temperature must be within [0, 1]")
	}
	return nil
}

func (c *HFSpaceConfig) SetDefaults() {
	if c.SearchURL == "" {
		c.SearchURL = os.Getenv("HF_SEARCH_API_URL")
	}
	if c.SearchURL == "" {
		c.SearchURL = DefaultSearchURL
	}
	if c.HubURL == "" {
		c.HubURL = DefaultHubURL
	}
	if c.HFToken == "" {
		c.HFToken = os.Getenv("HF_TOKEN")
	}
	if c.WorkDir == "" {
		if wd, err := os.Getwd(); err == nil {
			c.WorkDir = wd
		}
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = CacheMemory
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}
}

func (c *HFSpaceConfig) Validate() error {
	var errs []error
	for _, spec := range c.Spaces {
		if strings.Count(strings.Trim(spec, "/"), "/") < 1 {
			errs = append(errs, fmt.Errorf("hfspace.spaces: %q is not in owner/space form", spec))
		}
	}
	switch c.Cache.Backend {
	case CacheMemory:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("hfspace.cache.redis_addr is required for redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("hfspace.cache.backend: unknown backend %q", c.Cache.Backend))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("hfspace.max_retries must not be negative"))
	}
	return errors.Join(errs...)
}

func (c *ObservabilityConfig) SetDefaults() {
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = DefaultTracingExporter
	}
	if c.Tracing.Exporter == "otlp" && c.Tracing.Endpoint == "" {
		c.Tracing.Endpoint = DefaultOTLPEndpoint
	}
	if c.Tracing.SamplingRate == 0 {
		c.Tracing.SamplingRate = 1
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
}

func (c *ObservabilityConfig) Validate() error {
	switch c.Tracing.Exporter {
	case "stdout", "otlp", "none":
	default:
		return fmt.Errorf("observability.tracing.exporter: unknown exporter %q", c.Tracing.Exporter)
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("observability.tracing.sampling_rate: %v is not within (0, 1]", c.Tracing.SamplingRate)
	}
	return nil
}
