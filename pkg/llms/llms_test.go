package llms

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/hfspace/pkg/config"
)

type stubMessagesClient struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, s.err
}

func TestPassthrough_Echo(t *testing.T) {
	p := NewPassthroughProvider()
	resp, err := p.Generate(context.Background(), &Request{Messages: []Message{UserMessage("hello")}})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, StopEndTurn, resp.StopReason)
	assert.Empty(t, resp.ToolCalls)
}

func TestPassthrough_CallTool(t *testing.T) {
	p := NewPassthroughProvider()
	resp, err := p.Generate(context.Background(), &Request{
		Messages: []Message{UserMessage(`***CALL_TOOL mcp_hfspace-search-spaces {"query":"whisper"}`)},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "mcp_hfspace-search-spaces", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"query":"whisper"}`, string(resp.ToolCalls[0].Args))
	assert.Equal(t, StopToolUse, resp.StopReason)

	resp, err = p.Generate(context.Background(), &Request{
		Messages: []Message{UserMessage(`***CALL_TOOL noargs`)},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(resp.ToolCalls[0].Args))

	_, err = p.Generate(context.Background(), &Request{
		Messages: []Message{UserMessage(`***CALL_TOOL broken {not json`)},
	})
	assert.Error(t, err)
}

func TestPassthrough_EchoesToolResult(t *testing.T) {
	p := NewPassthroughProvider()
	resp, err := p.Generate(context.Background(), &Request{
		Messages: []Message{
			UserMessage("***CALL_TOOL t {}"),
			AssistantMessage(&Response{ToolCalls: []ToolCall{{ID: "1", Name: "t"}}}),
			ToolResultMessage([]ToolResult{{ToolCallID: "1", Content: "result text"}}),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "result text", resp.Text)
}

func TestAnthropic_TextAndToolUse(t *testing.T) {
	stub := &stubMessagesClient{
		resp: &sdk.Message{
			Content: []sdk.ContentBlockUnion{
				{Type: "text", Text: "Let me search."},
				{Type: "tool_use", ID: "toolu_1", Name: "mcp_hfspace-search-spaces", Input: json.RawMessage(`{"query":"tts"}`)},
			},
			StopReason: sdk.StopReasonToolUse,
			Usage:      sdk.Usage{InputTokens: 12, OutputTokens: 7},
		},
	}
	p, err := NewAnthropicProvider(stub, AnthropicOptions{Model: "claude-sonnet-4-0", MaxTokens: 256})
	require.NoError(t, err)

	resp, err := p.Generate(context.Background(), &Request{
		System:   "You are a helpful AI Agent.",
		Messages: []Message{UserMessage("find a tts space")},
		Tools: []ToolDefinition{{
			Name:        "mcp_hfspace-search-spaces",
			Description: "Search spaces",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"query": map[string]any{"type": "string"}},
				"required":   []string{"query"},
			},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Let me search.", resp.Text)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "toolu_1", resp.ToolCalls[0].ID)
	assert.JSONEq(t, `{"query":"tts"}`, string(resp.ToolCalls[0].Args))
	assert.Equal(t, "tool_use", resp.StopReason)
	assert.Equal(t, Usage{InputTokens: 12, OutputTokens: 7}, resp.Usage)

	params := stub.lastParams
	assert.Equal(t, int64(256), params.MaxTokens)
	assert.Equal(t, sdk.Model("claude-sonnet-4-0"), params.Model)
	require.Len(t, params.System, 1)
	assert.Equal(t, "You are a helpful AI Agent.", params.System[0].Text)
	require.Len(t, params.Tools, 1)
	require.NotNil(t, params.Tools[0].OfTool)
	assert.Equal(t, "mcp_hfspace-search-spaces", params.Tools[0].OfTool.Name)
	assert.Contains(t, params.Tools[0].OfTool.InputSchema.ExtraFields, "required")
	assert.NotContains(t, params.Tools[0].OfTool.InputSchema.ExtraFields, "type")
}

func TestAnthropic_EncodesToolRoundTrip(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{Content: []sdk.ContentBlockUnion{{Type: "text", Text: "done"}}}}
	p, err := NewAnthropicProvider(stub, AnthropicOptions{Model: "m"})
	require.NoError(t, err)

	call := &Response{ToolCalls: []ToolCall{{ID: "toolu_1", Name: "t", Args: json.RawMessage(`{}`)}}}
	_, err = p.Generate(context.Background(), &Request{
		Messages: []Message{
			UserMessage("go"),
			AssistantMessage(call),
			ToolResultMessage([]ToolResult{{ToolCallID: "toolu_1", Content: "boom", IsError: true}}),
		},
	})
	require.NoError(t, err)

	msgs := stub.lastParams.Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, sdk.MessageParamRoleAssistant, msgs[1].Role)
	require.NotNil(t, msgs[1].Content[0].OfToolUse)
	assert.Equal(t, "toolu_1", msgs[1].Content[0].OfToolUse.ID)
	require.NotNil(t, msgs[2].Content[0].OfToolResult)
	assert.Equal(t, "toolu_1", msgs[2].Content[0].OfToolResult.ToolUseID)
}

func TestAnthropic_Errors(t *testing.T) {
	_, err := NewAnthropicProvider(nil, AnthropicOptions{Model: "m"})
	assert.Error(t, err)

	stub := &stubMessagesClient{err: errors.New("overloaded")}
	p, err := NewAnthropicProvider(stub, AnthropicOptions{Model: "m"})
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), &Request{Messages: []Message{UserMessage("x")}})
	assert.ErrorContains(t, err, "overloaded")

	_, err = p.Generate(context.Background(), &Request{})
	assert.ErrorContains(t, err, "at least one")
}

func TestResolveModel(t *testing.T) {
	tests := []struct {
		in       string
		provider string
		id       string
		wantErr  bool
	}{
		{in: "passthrough", provider: "passthrough"},
		{in: "haiku", provider: "anthropic", id: "claude-3-5-haiku-latest"},
		{in: "anthropic.sonnet", provider: "anthropic", id: "claude-sonnet-4-0"},
		{in: "anthropic.claude-x", provider: "anthropic", id: "claude-x"},
		{in: "claude-opus-4-1", provider: "anthropic", id: "claude-opus-4-1"},
		{in: "gpt-4o", wantErr: true},
		{in: "anthropic.", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			provider, id, err := ResolveModel(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownModel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.provider, provider)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestNewFromModel(t *testing.T) {
	cfg := &config.Config{DefaultModel: "passthrough"}

	p, err := NewFromModel("", cfg)
	require.NoError(t, err)
	assert.Equal(t, "passthrough", p.Name())

	_, err = NewFromModel("sonnet", cfg)
	assert.ErrorContains(t, err, "API key is required")

	cfg.Anthropic.APIKey = "sk-test"
	p, err = NewFromModel("sonnet", cfg)
	require.NoError(t, err)
	assert.Equal(t, "anthropic.claude-sonnet-4-0", p.Name())
}
