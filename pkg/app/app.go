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

// Package app declares agents and runs them against MCP servers.
//
//	fast, _ := app.New("fast-agent example")
//	fast.Agent(func(ctx context.Context, a *app.AgentApp) error {
//		return a.Interactive(ctx)
//	}, app.Instruction("You are a helpful AI Agent."), app.Servers("mcp_hfspace"))
//	fast.Main(ctx, "")
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/hfspace/pkg/agent"
	"github.com/kadirpekel/hfspace/pkg/config"
	"github.com/kadirpekel/hfspace/pkg/llms"
	"github.com/kadirpekel/hfspace/pkg/tool"
	"github.com/kadirpekel/hfspace/pkg/tool/mcptoolset"
)

var (
	ErrClosed        = errors.New("app: closed")
	ErrNoAgents      = errors.New("app: no agents registered")
	ErrAgentNotFound = errors.New("app: agent not found")
)

// AgentFunc is the body of an agent declared with App.Agent. It runs
// once the app is connected.
type AgentFunc func(ctx context.Context, a *AgentApp) error

// LocalToolset names the toolset of tools added with Tools.
const LocalToolset = "local"

type agentSpec struct {
	cfg   agent.Config
	fn    AgentFunc
	tools []tool.Tool
}

// App holds agent declarations until Run connects them.
type App struct {
	name       string
	cfg        *config.Config
	configPath string
	provider   llms.Provider
	connectors map[string]mcptoolset.Connector
	in         io.Reader
	out        io.Writer

	mu     sync.Mutex
	agents []*agentSpec
}

// New creates an app. Without WithConfig or WithConfigPath the config is
// searched upward from the working directory, falling back to a zero
// config that runs the bundled mcp_hfspace server.
func New(name string, opts ...Option) (*App, error) {
	if name == "" {
		return nil, errors.New("app: name is required")
	}

	a := &App{
		name:       name,
		connectors: make(map[string]mcptoolset.Connector),
		in:         os.Stdin,
		out:        os.Stdout,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.cfg == nil {
		cfg, err := loadConfig(a.configPath)
		if err != nil {
			return nil, err
		}
		a.cfg = cfg
	}
	return a, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = config.FindConfigFile(".")
	}
	if path == "" {
		slog.Debug("No config file found, using zero config")
		return config.CreateZeroConfig(config.ZeroConfig{}), nil
	}

	config.LoadDotEnvForConfig(path)
	cfg, loader, err := config.LoadConfigFile(context.Background(), path)
	if err != nil {
		return nil, fmt.Errorf("app: failed to load config: %w", err)
	}
	loader.Close()
	return cfg, nil
}

func (a *App) Name() string { return a.name }

// Config returns the resolved configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Agent declares an agent. Names must be unique and every server must be
// configured or have a connector.
func (a *App) Agent(fn AgentFunc, opts ...AgentOption) error {
	spec := &agentSpec{
		cfg: agent.Config{UseHistory: true},
		fn:  fn,
	}
	for _, opt := range opts {
		opt(spec)
	}
	spec.cfg.SetDefaults()
	if spec.cfg.Model == "" {
		spec.cfg.Model = a.cfg.DefaultModel
	}
	spec.cfg.MaxTokens = a.cfg.Anthropic.MaxTokens
	spec.cfg.Temperature = a.cfg.Anthropic.Temperature

	for _, server := range spec.cfg.Servers {
		if _, ok := a.connectors[server]; ok {
			continue
		}
		if _, err := a.cfg.Server(server); err != nil {
			return fmt.Errorf("agent %q: %w", spec.cfg.Name, err)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, existing := range a.agents {
		if existing.cfg.Name == spec.cfg.Name {
			return fmt.Errorf("app: agent %q already registered", spec.cfg.Name)
		}
	}
	a.agents = append(a.agents, spec)
	return nil
}

// Run connects every server used by a declared agent and builds the
// agents. Servers shared by several agents are connected once. If any
// connection fails everything already opened is closed.
func (a *App) Run(ctx context.Context) (*AgentApp, error) {
	a.mu.Lock()
	specs := append([]*agentSpec(nil), a.agents...)
	a.mu.Unlock()

	if len(specs) == 0 {
		return nil, ErrNoAgents
	}

	toolsets, err := a.connect(ctx, requiredServers(specs))
	if err != nil {
		return nil, err
	}

	aa := &AgentApp{
		app:      a,
		agents:   make(map[string]*agent.Agent, len(specs)),
		toolsets: toolsets,
		state:    &appState{},
	}

	for _, spec := range specs {
		provider, err := a.providerFor(spec.cfg.Model)
		if err != nil {
			aa.Close()
			return nil, fmt.Errorf("agent %q: %w", spec.cfg.Name, err)
		}

		sets := make([]tool.Toolset, 0, len(spec.cfg.Servers)+1)
		for _, server := range spec.cfg.Servers {
			sets = append(sets, toolsets[server])
		}
		if len(spec.tools) > 0 {
			sets = append(sets, tool.NewToolset(LocalToolset, spec.tools...))
		}

		ag, err := agent.New(ctx, spec.cfg, provider, sets...)
		if err != nil {
			aa.Close()
			return nil, err
		}
		aa.agents[spec.cfg.Name] = ag
		aa.order = append(aa.order, spec.cfg.Name)
	}

	slog.Info("Agents ready", "app", a.name, "agents", len(aa.order), "servers", len(toolsets))
	return aa, nil
}

func requiredServers(specs []*agentSpec) []string {
	seen := make(map[string]bool)
	var servers []string
	for _, spec := range specs {
		for _, s := range spec.cfg.Servers {
			if !seen[s] {
				seen[s] = true
				servers = append(servers, s)
			}
		}
	}
	return servers
}

func (a *App) connect(ctx context.Context, servers []string) (map[string]*mcptoolset.Toolset, error) {
	toolsets := make(map[string]*mcptoolset.Toolset, len(servers))
	for _, name := range servers {
		ts, err := a.newToolset(name)
		if err != nil {
			closeToolsets(toolsets)
			return nil, err
		}
		toolsets[name] = ts
	}

	var g errgroup.Group
	for _, ts := range toolsets {
		g.Go(func() error {
			return ts.Connect(ctx)
		})
	}
	if err := g.Wait(); err != nil {
		closeToolsets(toolsets)
		return nil, err
	}
	return toolsets, nil
}

func (a *App) newToolset(name string) (*mcptoolset.Toolset, error) {
	if c, ok := a.connectors[name]; ok {
		cfg := mcptoolset.Config{Name: name, Connector: c}
		if srv, err := a.cfg.Server(name); err == nil {
			cfg = mcptoolset.ConfigFromServer(name, srv)
			cfg.Connector = c
		}
		return mcptoolset.New(cfg)
	}

	srv, err := a.cfg.Server(name)
	if err != nil {
		return nil, err
	}
	return mcptoolset.New(mcptoolset.ConfigFromServer(name, srv))
}

func (a *App) providerFor(model string) (llms.Provider, error) {
	if a.provider != nil {
		return a.provider, nil
	}
	return llms.NewFromModel(model, a.cfg)
}

func closeToolsets(toolsets map[string]*mcptoolset.Toolset) error {
	var errs []error
	for name, ts := range toolsets {
		if err := ts.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Main runs the app and invokes the function of the named agent, or of
// the first declared agent when name is empty.
func (a *App) Main(ctx context.Context, name string) error {
	a.mu.Lock()
	var spec *agentSpec
	for _, s := range a.agents {
		if name == "" || s.cfg.Name == name {
			spec = s
			break
		}
	}
	a.mu.Unlock()

	if spec == nil {
		if name == "" {
			return ErrNoAgents
		}
		return fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}

	aa, err := a.Run(ctx)
	if err != nil {
		return err
	}
	defer aa.Close()

	if spec.fn == nil {
		return aa.Interactive(ctx, StartWith(spec.cfg.Name))
	}
	return spec.fn(ctx, aa.withDefault(spec.cfg.Name))
}
