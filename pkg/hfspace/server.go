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

// Package hfspace implements the mcp-hfspace MCP server, which exposes
// Hugging Face Gradio spaces as tools.
//
// Every configured space becomes one tool whose arguments mirror the
// inputs of the space endpoint. Two tools are always present:
// search-spaces finds spaces by semantic search and available-files lists
// the files in the working directory that file inputs can refer to.
package hfspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kadirpekel/hfspace/pkg/cache"
	"github.com/kadirpekel/hfspace/pkg/config"
	"github.com/kadirpekel/hfspace/pkg/gradio"
	"github.com/kadirpekel/hfspace/pkg/hf"
	"github.com/kadirpekel/hfspace/pkg/observability"
)

const (
	ServerName    = "mcp-hfspace"
	ServerVersion = "0.1.0"

	SearchToolName = "search-spaces"
	FilesToolName  = "available-files"

	// MaxToolNameLength is the longest tool name clients accept.
	MaxToolNameLength = 64
)

// Option configures NewServer.
type Option func(*Server)

// WithHub sets the hub client used for search and host resolution.
func WithHub(hub *hf.Client) Option {
	return func(s *Server) { s.hub = hub }
}

// WithCache replaces the cache built from the config. The caller keeps
// ownership of c.
func WithCache(c cache.Cache) Option {
	return func(s *Server) { s.cache = c }
}

// WithRegistry registers metrics on reg instead of the process registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// Server is the mcp-hfspace server.
type Server struct {
	cfg       config.HFSpaceConfig
	workDir   string
	hub       *hf.Client
	cache     cache.Cache
	ownsCache bool
	registry  *prometheus.Registry
	metrics   *Metrics
	mcp       *server.MCPServer

	mu     sync.Mutex
	spaces map[string]*spaceTool
}

// NewServer builds the server and registers a tool for every space in
// cfg.Spaces. Spaces that cannot be reached are logged and skipped so the
// remaining tools stay usable.
func NewServer(ctx context.Context, cfg config.HFSpaceConfig, opts ...Option) (*Server, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	workDir, err := filepath.Abs(cfg.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("invalid work dir %q: %w", cfg.WorkDir, err)
	}
	if resolved, err := filepath.EvalSymlinks(workDir); err == nil {
		workDir = resolved
	}

	s := &Server{
		cfg:     cfg,
		workDir: workDir,
		spaces:  make(map[string]*spaceTool),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.hub == nil {
		s.hub = hf.NewClient(hf.OptionsFromConfig(cfg))
	}
	if s.cache == nil {
		c, err := cache.New(cfg.Cache)
		if err != nil {
			return nil, fmt.Errorf("failed to create cache: %w", err)
		}
		s.cache = c
		s.ownsCache = true
	}
	if s.registry == nil {
		s.registry = observability.Registry()
	}
	if s.metrics, err = NewMetrics(s.registry); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	s.mcp = server.NewMCPServer(ServerName, ServerVersion,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	s.addSearchTool()
	s.addFilesTool()

	for _, spec := range cfg.Spaces {
		if _, err := s.AddSpace(ctx, spec); err != nil {
			slog.Warn("Skipping space", "space", spec, "error", err)
		}
	}

	slog.Info("mcp-hfspace server ready", "spaces", len(s.SpaceTools()), "work_dir", workDir)
	return s, nil
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// WorkDir is the absolute directory file arguments are resolved in.
func (s *Server) WorkDir() string {
	return s.workDir
}

// Registry holds the server metrics.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// SpaceTools lists the names of the registered space tools.
func (s *Server) SpaceTools() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.spaces))
	for name := range s.spaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddSpace connects to the space named by spec ("owner/space" or
// "owner/space/endpoint") and registers its tool.
func (s *Server) AddSpace(ctx context.Context, spec string) (string, error) {
	parsed, err := gradio.ParseSpaceSpec(spec)
	if err != nil {
		return "", err
	}

	client, err := gradio.Connect(ctx, parsed.SpaceID, gradio.Options{Hub: s.hub})
	if err != nil {
		return "", err
	}
	ep, err := client.Endpoint(parsed.Endpoint)
	if err != nil {
		return "", err
	}

	st := &spaceTool{
		server:   s,
		spec:     parsed,
		client:   client,
		endpoint: ep,
	}

	s.mu.Lock()
	st.name = uniqueName(SpaceToolName(parsed), s.spaces)
	s.spaces[st.name] = st
	s.mu.Unlock()

	s.mcp.AddTool(st.tool(), s.instrument(st.name, st.handle))
	slog.Info("Registered space tool", "tool", st.name, "space", parsed.SpaceID, "endpoint", ep.Name)
	return st.name, nil
}

// SyncSpaces reconciles the space tools with specs, typically after the
// config file changed. Tools whose spec is no longer listed are removed and
// new specs are connected; unreachable ones are logged and skipped. It
// returns the names of the added and removed tools.
func (s *Server) SyncSpaces(ctx context.Context, specs []string) (added, removed []string) {
	want := make(map[string]string, len(specs))
	order := make([]string, 0, len(specs))
	for _, spec := range specs {
		parsed, err := gradio.ParseSpaceSpec(spec)
		if err != nil {
			slog.Warn("Skipping space", "space", spec, "error", err)
			continue
		}
		key := parsed.String()
		if _, dup := want[key]; !dup {
			want[key] = spec
			order = append(order, key)
		}
	}

	s.mu.Lock()
	have := make(map[string]bool, len(s.spaces))
	for name, st := range s.spaces {
		key := st.spec.String()
		if _, ok := want[key]; ok {
			have[key] = true
			continue
		}
		delete(s.spaces, name)
		removed = append(removed, name)
	}
	s.mu.Unlock()

	if len(removed) > 0 {
		sort.Strings(removed)
		s.mcp.DeleteTools(removed...)
		slog.Info("Removed space tools", "tools", removed)
	}

	for _, key := range order {
		if have[key] {
			continue
		}
		name, err := s.AddSpace(ctx, want[key])
		if err != nil {
			slog.Warn("Skipping space", "space", want[key], "error", err)
			continue
		}
		added = append(added, name)
	}
	return added, removed
}

func uniqueName(name string, taken map[string]*spaceTool) string {
	if _, ok := taken[name]; !ok && name != SearchToolName && name != FilesToolName {
		return name
	}
	for i := 2; ; i++ {
		suffix := fmt.Sprintf("_%d", i)
		candidate := name
		if len(candidate)+len(suffix) > MaxToolNameLength {
			candidate = candidate[:MaxToolNameLength-len(suffix)]
		}
		candidate += suffix
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

// instrument records metrics for every call of a tool.
func (s *Server) instrument(name string, fn server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		res, err := fn(ctx, req)
		s.metrics.observe(name, start, err != nil || (res != nil && res.IsError))
		if err != nil {
			slog.Error("Tool call failed", "tool", name, "error", err)
		}
		return res, err
	}
}

// Close releases the cache when the server created it.
func (s *Server) Close() error {
	if s.ownsCache && s.cache != nil {
		err := s.cache.Close()
		s.cache = nil
		return err
	}
	return nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
