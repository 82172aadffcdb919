package llms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
)

// CallToolPrefix makes the passthrough provider emit a tool call:
//
//	***CALL_TOOL mcp_hfspace-search-spaces {"query": "whisper"}
const CallToolPrefix = "***CALL_TOOL"

// PassthroughProvider echoes input back. It needs no credentials and is the
// default model, which keeps the demo runnable offline.
type PassthroughProvider struct {
	calls atomic.Int64
}

func NewPassthroughProvider() *PassthroughProvider {
	return &PassthroughProvider{}
}

func (p *PassthroughProvider) Name() string { return ModelPassthrough }

func (p *PassthroughProvider) Generate(_ context.Context, req *Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("passthrough: messages are required")
	}
	last := req.Messages[len(req.Messages)-1]

	if results := last.ToolResults(); len(results) > 0 {
		texts := make([]string, 0, len(results))
		for _, r := range results {
			texts = append(texts, r.Content)
		}
		return &Response{Text: strings.Join(texts, "\n"), StopReason: StopEndTurn}, nil
	}

	text := last.Text()
	if rest, ok := strings.CutPrefix(strings.TrimSpace(text), CallToolPrefix); ok {
		call, err := p.parseCallTool(rest)
		if err != nil {
			return nil, err
		}
		return &Response{ToolCalls: []ToolCall{call}, StopReason: StopToolUse}, nil
	}

	return &Response{Text: text, StopReason: StopEndTurn}, nil
}

func (p *PassthroughProvider) parseCallTool(rest string) (ToolCall, error) {
	name, args, _ := strings.Cut(strings.TrimSpace(rest), " ")
	if name == "" {
		return ToolCall{}, fmt.Errorf("passthrough: %s requires a tool name", CallToolPrefix)
	}
	args = strings.TrimSpace(args)
	if args == "" {
		args = "{}"
	}
	if !json.Valid([]byte(args)) {
		return ToolCall{}, fmt.Errorf("passthrough: invalid JSON arguments for %s", name)
	}
	return ToolCall{
		ID:   fmt.Sprintf("passthrough-%d", p.calls.Add(1)),
		Name: name,
		Args: json.RawMessage(args),
	}, nil
}
