package app

import (
	"io"

	"github.com/kadirpekel/hfspace/pkg/config"
	"github.com/kadirpekel/hfspace/pkg/llms"
	"github.com/kadirpekel/hfspace/pkg/tool"
	"github.com/kadirpekel/hfspace/pkg/tool/mcptoolset"
)

// Option configures an App.
type Option func(*App)

// WithConfig uses cfg instead of loading a config file.
func WithConfig(cfg *config.Config) Option {
	return func(a *App) { a.cfg = cfg }
}

// WithConfigPath loads the config from path.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithProvider makes every agent use p regardless of its model.
func WithProvider(p llms.Provider) Option {
	return func(a *App) { a.provider = p }
}

// WithConnector reaches server through c instead of its configured
// transport. The server does not need to appear in the config.
func WithConnector(server string, c mcptoolset.Connector) Option {
	return func(a *App) { a.connectors[server] = c }
}

// WithIO sets the streams used by Interactive.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(a *App) {
		a.in = in
		a.out = out
	}
}

// AgentOption configures an agent registered with App.Agent.
type AgentOption func(*agentSpec)

func Name(name string) AgentOption {
	return func(s *agentSpec) { s.cfg.Name = name }
}

func Instruction(instruction string) AgentOption {
	return func(s *agentSpec) { s.cfg.Instruction = instruction }
}

// Servers lists the MCP servers whose tools the agent may call.
func Servers(servers ...string) AgentOption {
	return func(s *agentSpec) { s.cfg.Servers = append(s.cfg.Servers, servers...) }
}

// Model selects the model, e.g. "passthrough", "sonnet" or
// "anthropic.claude-sonnet-4-0". Empty uses the config default.
func Model(model string) AgentOption {
	return func(s *agentSpec) { s.cfg.Model = model }
}

// UseHistory controls whether the agent remembers earlier turns.
func UseHistory(use bool) AgentOption {
	return func(s *agentSpec) { s.cfg.UseHistory = use }
}

// MaxIterations bounds the tool calling rounds of one message.
func MaxIterations(n int) AgentOption {
	return func(s *agentSpec) { s.cfg.MaxIterations = n }
}

// Tools gives the agent local tools next to those of its servers. They
// are named with the LocalToolset prefix.
func Tools(tools ...tool.Tool) AgentOption {
	return func(s *agentSpec) { s.tools = append(s.tools, tools...) }
}
