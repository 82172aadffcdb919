package mcptoolset

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/hfspace/pkg/config"
	"github.com/kadirpekel/hfspace/pkg/tool"
)

func newTestServer() *server.MCPServer {
	s := server.NewMCPServer("test-server", "1.0.0", server.WithToolCapabilities(true))

	s.AddTool(mcp.NewTool("echo",
		mcp.WithDescription("Echo text back"),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to echo")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(text), nil
	})

	s.AddTool(mcp.NewTool("pixel",
		mcp.WithDescription("Return a tiny image"),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultImage("a pixel", "iVBORw0KGgo=", "image/png"), nil
	})

	return s
}

func inProcess(s *server.MCPServer) Connector {
	return func(ctx context.Context) (*client.Client, error) {
		c, err := client.NewInProcessClient(s)
		if err != nil {
			return nil, err
		}
		if err := c.Start(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "stdio without command", cfg: Config{Name: "s"}, wantErr: "command is required"},
		{name: "http without url", cfg: Config{Name: "s", Transport: config.TransportHTTP}, wantErr: "url is required"},
		{name: "unknown transport", cfg: Config{Name: "s", Transport: "ws", URL: "x"}, wantErr: "unknown transport"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	ts, err := New(Config{Name: "s", Command: "hfspace"})
	require.NoError(t, err)
	assert.Equal(t, config.DefaultInitTimeout, ts.cfg.InitTimeout)
}

func TestToolset_ToolsAndCall(t *testing.T) {
	ts, err := New(Config{Name: "test", Connector: inProcess(newTestServer())})
	require.NoError(t, err)
	defer ts.Close()

	ctx := context.Background()
	tools, err := ts.Tools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "test-server", ts.ServerInfo().Name)

	byName := map[string]tool.Tool{}
	for _, tl := range tools {
		byName[tl.Name()] = tl
	}

	echo := byName["echo"]
	require.NotNil(t, echo)
	assert.Equal(t, "Echo text back", echo.Description())
	assert.Equal(t, "object", echo.Schema()["type"])
	assert.Contains(t, echo.Schema()["properties"], "text")

	res, err := echo.Call(ctx, map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "hi", res.Text())

	res, err = echo.Call(ctx, map[string]any{})
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = byName["pixel"].Call(ctx, nil)
	require.NoError(t, err)
	require.Len(t, res.Content, 2)
	assert.Equal(t, tool.ContentText, res.Content[0].Type)
	assert.Equal(t, tool.ContentImage, res.Content[1].Type)
	assert.Equal(t, "image/png", res.Content[1].MimeType)
}

func TestToolset_Filter(t *testing.T) {
	ts, err := New(Config{Name: "test", Filter: []string{"pixel"}, Connector: inProcess(newTestServer())})
	require.NoError(t, err)
	defer ts.Close()

	tools, err := ts.Tools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "pixel", tools[0].Name())
}

func TestToolset_ConnectIsIdempotentAndCloseDisconnects(t *testing.T) {
	connects := 0
	srv := newTestServer()
	connector := func(ctx context.Context) (*client.Client, error) {
		connects++
		return inProcess(srv)(ctx)
	}

	ts, err := New(Config{Name: "test", Connector: connector})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, ts.Connect(ctx))
	require.NoError(t, ts.Connect(ctx))
	tools, err := ts.Tools(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, connects)

	require.NoError(t, ts.Close())
	require.NoError(t, ts.Close())

	_, err = tools[0].Call(ctx, map[string]any{"text": "x"})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConfigFromServer(t *testing.T) {
	cfg := ConfigFromServer("mcp_hfspace", &config.MCPServerConfig{
		Transport: config.TransportStdio,
		Command:   "hfspace",
		Args:      []string{"serve"},
		Env:       map[string]string{"HF_TOKEN": "t"},
	})
	assert.Equal(t, "mcp_hfspace", cfg.Name)
	assert.Equal(t, []string{"HF_TOKEN=t"}, cfg.Env)
	assert.Equal(t, []string{"serve"}, cfg.Args)
}

func TestParseToolResponse_ErrorWithoutContent(t *testing.T) {
	res := parseToolResponse(&mcp.CallToolResult{IsError: true})
	assert.True(t, res.IsError)
	assert.Equal(t, "unknown error", res.Text())
}

const stdioHelperEnv = "MCPTOOLSET_STDIO_HELPER"

// TestStdioHelperServer is not a real test. It runs the test server over
// stdio when the test binary is re-executed by TestToolset_StdioDrainsStderr.
func TestStdioHelperServer(t *testing.T) {
	if os.Getenv(stdioHelperEnv) != "1" {
		t.Skip("helper process")
	}
	line := strings.Repeat("x", 1023)
	for i := 0; i < 256; i++ {
		fmt.Fprintln(os.Stderr, line)
	}
	_ = server.ServeStdio(newTestServer())
	os.Exit(0)
}

func TestToolset_StdioDrainsStderr(t *testing.T) {
	ts, err := New(Config{
		Name:        "noisy",
		Command:     os.Args[0],
		Args:        []string{"-test.run=^TestStdioHelperServer$"},
		Env:         []string{stdioHelperEnv + "=1"},
		InitTimeout: 20 * time.Second,
	})
	require.NoError(t, err)
	defer ts.Close()

	ctx := context.Background()
	tools, err := ts.Tools(ctx)
	require.NoError(t, err, "a child writing 256KB to stderr must not block")
	require.Len(t, tools, 2)

	for _, tl := range tools {
		if tl.Name() != "echo" {
			continue
		}
		res, err := tl.Call(ctx, map[string]any{"text": "still alive"})
		require.NoError(t, err)
		assert.Equal(t, "still alive", res.Text())
	}
}
