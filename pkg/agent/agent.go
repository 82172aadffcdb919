package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kadirpekel/hfspace/pkg/llms"
	"github.com/kadirpekel/hfspace/pkg/observability"
	"github.com/kadirpekel/hfspace/pkg/tool"
)

const (
	DefaultName          = "default"
	DefaultInstruction   = "You are a helpful AI Agent."
	DefaultMaxIterations = 20

	// MaxToolNameLength is the longest tool name providers accept.
	MaxToolNameLength = 64

	// ToolNameSeparator joins the server and tool names.
	ToolNameSeparator = "-"
)

var (
	ErrMaxIterations = errors.New("agent: maximum tool iterations reached")
	ErrEmptyMessage  = errors.New("agent: message is empty")
)

// Config describes an agent.
type Config struct {
	Name        string
	Instruction string
	Model       string
	Servers     []string

	// UseHistory keeps the conversation between Send calls.
	UseHistory bool

	MaxIterations int
	MaxTokens     int
	Temperature   float64
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.Instruction == "" {
		c.Instruction = DefaultInstruction
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
}

// ToolInfo describes a tool as the model sees it.
type ToolInfo struct {
	Name        string
	Server      string
	Tool        string
	Description string
}

type boundTool struct {
	info ToolInfo
	tool tool.Tool
}

// Agent runs conversations against one provider. Send calls on the same
// agent are serialized.
type Agent struct {
	cfg       Config
	provider  llms.Provider
	sessionID string

	tools   map[string]boundTool
	defs    []llms.ToolDefinition
	history *History

	sendMu sync.Mutex
}

// New builds an agent with the tools of the given toolsets. Each toolset
// name is used as the server part of the tool names.
func New(ctx context.Context, cfg Config, provider llms.Provider, toolsets ...tool.Toolset) (*Agent, error) {
	if provider == nil {
		return nil, errors.New("agent: provider is required")
	}
	cfg.SetDefaults()

	a := &Agent{
		cfg:       cfg,
		provider:  provider,
		sessionID: uuid.NewString(),
		tools:     make(map[string]boundTool),
		history:   NewHistory(),
	}

	for _, ts := range toolsets {
		tools, err := ts.Tools(ctx)
		if err != nil {
			return nil, fmt.Errorf("agent %q: failed to list tools of %q: %w", cfg.Name, ts.Name(), err)
		}
		for _, t := range tools {
			a.addTool(ts.Name(), t)
		}
	}

	return a, nil
}

func (a *Agent) addTool(server string, t tool.Tool) {
	name := a.uniqueName(ToolName(server, t.Name()))
	a.tools[name] = boundTool{
		info: ToolInfo{
			Name:        name,
			Server:      server,
			Tool:        t.Name(),
			Description: t.Description(),
		},
		tool: t,
	}
	a.defs = append(a.defs, llms.ToolDefinition{
		Name:        name,
		Description: t.Description(),
		InputSchema: t.Schema(),
	})
}

func (a *Agent) uniqueName(name string) string {
	if _, taken := a.tools[name]; !taken {
		return name
	}
	for i := 2; ; i++ {
		suffix := fmt.Sprintf("_%d", i)
		candidate := name
		if len(candidate)+len(suffix) > MaxToolNameLength {
			candidate = candidate[:MaxToolNameLength-len(suffix)]
		}
		candidate += suffix
		if _, taken := a.tools[candidate]; !taken {
			return candidate
		}
	}
}

// ToolName namespaces a tool by its server. Characters providers reject
// are replaced by underscores and the result is cut to MaxToolNameLength.
func ToolName(server, name string) string {
	full := name
	if server != "" {
		full = server + ToolNameSeparator + name
	}
	return SanitizeToolName(full)
}

// SanitizeToolName maps name onto [a-zA-Z0-9_-]{1,64}.
func SanitizeToolName(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	out := sb.String()
	if len(out) > MaxToolNameLength {
		out = out[:MaxToolNameLength]
	}
	if out == "" {
		out = "_"
	}
	return out
}

func (a *Agent) Name() string        { return a.cfg.Name }
func (a *Agent) Instruction() string { return a.cfg.Instruction }
func (a *Agent) Servers() []string   { return append([]string(nil), a.cfg.Servers...) }
func (a *Agent) SessionID() string   { return a.sessionID }
func (a *Agent) Model() string       { return a.provider.Name() }
func (a *Agent) Config() Config      { return a.cfg }

// Tools lists the tools offered to the model, sorted by name.
func (a *Agent) Tools() []ToolInfo {
	out := make([]ToolInfo, 0, len(a.tools))
	for _, bt := range a.tools {
		out = append(out, bt.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// History returns a copy of the kept conversation.
func (a *Agent) History() []llms.Message {
	return a.history.Messages()
}

func (a *Agent) ClearHistory() {
	a.history.Clear()
}

// Send runs one user turn and returns the final assistant text. On error
// the conversation is left as it was before the call.
func (a *Agent) Send(ctx context.Context, text string) (result string, err error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}

	a.sendMu.Lock()
	defer a.sendMu.Unlock()

	start := time.Now()
	ctx, span := startAgentSpan(ctx, a.cfg.Name, a.sessionID, a.provider.Name(), text)
	defer func() {
		observability.RecordError(span, err)
		span.End()
		recordAgentMetrics(ctx, a.cfg.Name, time.Since(start), err)
	}()

	var messages []llms.Message
	if a.cfg.UseHistory {
		messages = a.history.Messages()
	}
	kept := len(messages)
	messages = append(messages, llms.UserMessage(text))

	for i := 0; i < a.cfg.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		resp, err := a.generate(ctx, messages, i)
		if err != nil {
			return "", err
		}
		messages = append(messages, llms.AssistantMessage(resp))

		if len(resp.ToolCalls) == 0 {
			if a.cfg.UseHistory {
				a.history.Append(messages[kept:]...)
			}
			span.SetAttributes(attribute.Int(observability.AttrAgentIteration, i+1))
			return resp.Text, nil
		}

		results := make([]llms.ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			results = append(results, a.callTool(ctx, call))
		}
		messages = append(messages, llms.ToolResultMessage(results))
	}

	return "", fmt.Errorf("%w (%d)", ErrMaxIterations, a.cfg.MaxIterations)
}

func (a *Agent) generate(ctx context.Context, messages []llms.Message, iteration int) (*llms.Response, error) {
	ctx, span := startLLMSpan(ctx, a.provider.Name(), iteration)
	defer span.End()

	start := time.Now()
	resp, err := a.provider.Generate(ctx, &llms.Request{
		System:      a.cfg.Instruction,
		Messages:    messages,
		Tools:       a.defs,
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
	})

	var usage llms.Usage
	if resp != nil {
		usage = resp.Usage
	}
	recordLLMMetrics(ctx, a.provider.Name(), time.Since(start), usage, err)

	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("agent %q: generation failed: %w", a.cfg.Name, err)
	}

	span.SetAttributes(
		attribute.Int(observability.AttrLLMTokensInput, usage.InputTokens),
		attribute.Int(observability.AttrLLMTokensOutput, usage.OutputTokens),
		attribute.String(observability.AttrLLMStopReason, resp.StopReason),
	)
	return resp, nil
}

// callTool never fails the turn: every problem is reported back to the
// model as an error result.
func (a *Agent) callTool(ctx context.Context, call llms.ToolCall) llms.ToolResult {
	bt, ok := a.tools[call.Name]
	if !ok {
		slog.Warn("Model requested unknown tool", "agent", a.cfg.Name, "tool", call.Name)
		return llms.ToolResult{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("Tool '%s' not found", call.Name),
			IsError:    true,
		}
	}

	ctx, span := startToolSpan(ctx, bt.info.Tool, bt.info.Server)
	defer span.End()

	args := map[string]any{}
	if len(call.Args) > 0 {
		if err := json.Unmarshal(call.Args, &args); err != nil {
			observability.RecordError(span, err)
			return llms.ToolResult{
				ToolCallID: call.ID,
				Content:    fmt.Sprintf("Invalid arguments for tool '%s': %v", call.Name, err),
				IsError:    true,
			}
		}
	}

	start := time.Now()
	res, err := bt.tool.Call(ctx, args)
	recordToolMetrics(ctx, call.Name, time.Since(start), err)

	if err != nil {
		observability.RecordError(span, err)
		slog.Warn("Tool call failed", "agent", a.cfg.Name, "tool", call.Name, "error", err)
		return llms.ToolResult{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("Error executing tool '%s': %v", call.Name, err),
			IsError:    true,
		}
	}

	if res == nil {
		res = &tool.Result{}
	}
	span.SetAttributes(attribute.Bool(observability.AttrToolIsError, res.IsError))
	slog.Debug("Tool call completed", "agent", a.cfg.Name, "tool", call.Name, "is_error", res.IsError)
	return llms.ToolResult{
		ToolCallID: call.ID,
		Content:    res.Text(),
		IsError:    res.IsError,
	}
}
