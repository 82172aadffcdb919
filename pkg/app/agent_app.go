package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/kadirpekel/hfspace/pkg/agent"
	"github.com/kadirpekel/hfspace/pkg/console"
	"github.com/kadirpekel/hfspace/pkg/tool/mcptoolset"
)

// AgentApp is the handle to running agents. Copies made by Main share
// the same connections.
type AgentApp struct {
	app      *App
	agents   map[string]*agent.Agent
	order    []string
	toolsets map[string]*mcptoolset.Toolset

	defaultAgent string
	state        *appState
}

type appState struct {
	mu     sync.Mutex
	closed bool
	err    error
}

func (a *AgentApp) withDefault(name string) *AgentApp {
	cp := *a
	cp.defaultAgent = name
	return &cp
}

func (a *AgentApp) checkOpen() error {
	if a.state == nil {
		return nil
	}
	a.state.mu.Lock()
	defer a.state.mu.Unlock()
	if a.state.closed {
		return ErrClosed
	}
	return nil
}

// Agents lists agent names in declaration order.
func (a *AgentApp) Agents() []string {
	return append([]string(nil), a.order...)
}

// AgentNames implements console.Session.
func (a *AgentApp) AgentNames() []string {
	return a.Agents()
}

// Agent returns the named agent; empty selects the default agent.
func (a *AgentApp) Agent(name string) (*agent.Agent, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}
	if name == "" {
		name = a.DefaultAgent()
	}
	ag, ok := a.agents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	return ag, nil
}

// DefaultAgent is the agent Send talks to.
func (a *AgentApp) DefaultAgent() string {
	if a.defaultAgent != "" {
		return a.defaultAgent
	}
	if len(a.order) > 0 {
		return a.order[0]
	}
	return ""
}

// Send sends message to the default agent.
func (a *AgentApp) Send(ctx context.Context, message string) (string, error) {
	return a.SendTo(ctx, "", message)
}

func (a *AgentApp) SendTo(ctx context.Context, name, message string) (string, error) {
	ag, err := a.Agent(name)
	if err != nil {
		return "", err
	}
	return ag.Send(ctx, message)
}

// ClearHistory implements console.Session.
func (a *AgentApp) ClearHistory(name string) error {
	ag, err := a.Agent(name)
	if err != nil {
		return err
	}
	ag.ClearHistory()
	return nil
}

// AgentTools implements console.Session.
func (a *AgentApp) AgentTools(name string) ([]agent.ToolInfo, error) {
	ag, err := a.Agent(name)
	if err != nil {
		return nil, err
	}
	return ag.Tools(), nil
}

// InteractiveOption customizes Interactive.
type InteractiveOption func(*console.Options)

// StartWith selects the agent the session starts with.
func StartWith(name string) InteractiveOption {
	return func(o *console.Options) { o.Agent = name }
}

// Interactive runs a console session on the app's streams until the user
// quits or ctx is done.
func (a *AgentApp) Interactive(ctx context.Context, opts ...InteractiveOption) error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	o := console.Options{
		Agent: a.DefaultAgent(),
		In:    a.app.in,
		Out:   a.app.out,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return console.Run(ctx, a, o)
}

// Close disconnects every server. Later calls return the first result.
func (a *AgentApp) Close() error {
	if a.state == nil {
		return nil
	}
	a.state.mu.Lock()
	defer a.state.mu.Unlock()
	if a.state.closed {
		return a.state.err
	}
	a.state.closed = true
	a.state.err = closeToolsets(a.toolsets)
	return a.state.err
}
