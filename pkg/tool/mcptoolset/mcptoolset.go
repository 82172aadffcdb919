// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mcptoolset provides a Toolset implementation for MCP servers.
//
// The toolset uses lazy initialization: the MCP connection is only
// established by Connect or the first call to Tools.
//
// Transport Support:
//   - stdio: subprocess speaking JSON-RPC over stdin/stdout
//   - sse: legacy HTTP+SSE transport
//   - http: streamable HTTP transport
//   - a custom Connector, e.g. an in-process server in tests
package mcptoolset

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kadirpekel/hfspace/pkg/config"
	"github.com/kadirpekel/hfspace/pkg/tool"
)

const (
	ClientName    = "hfspace"
	ClientVersion = "0.1.0"
)

// ErrNotConnected is returned when calling a tool after Close.
var ErrNotConnected = errors.New("MCP client not connected")

// Connector creates a started, uninitialized MCP client.
type Connector func(ctx context.Context) (*client.Client, error)

// Config configures an MCP toolset.
type Config struct {
	// Name identifies this toolset, normally the server name in config.
	Name string

	// Transport is stdio, sse or http. Ignored when Connector is set.
	Transport string

	// Command, Args and Env launch a stdio server. Env entries are
	// KEY=VALUE pairs added to the current environment.
	Command string
	Args    []string
	Env     []string

	// URL and Headers reach an sse or http server.
	URL     string
	Headers map[string]string

	// Filter limits which tools are exposed.
	Filter []string

	// InitTimeout bounds connect, initialize and list (default: 30s).
	InitTimeout time.Duration

	// Connector overrides transport selection.
	Connector Connector
}

// ConfigFromServer converts a configured server into a toolset Config.
func ConfigFromServer(name string, srv *config.MCPServerConfig) Config {
	return Config{
		Name:        name,
		Transport:   srv.Transport,
		Command:     srv.Command,
		Args:        srv.Args,
		Env:         srv.EnvList(),
		URL:         srv.URL,
		Headers:     srv.Headers,
		Filter:      srv.Filter,
		InitTimeout: srv.InitTimeout,
	}
}

// Toolset is an MCP-backed toolset with lazy initialization.
type Toolset struct {
	cfg Config

	mu         sync.Mutex
	client     *client.Client
	serverInfo mcp.Implementation
	tools      []tool.Tool
	connected  bool
	filterSet  map[string]bool
}

// New creates a new MCP toolset.
func New(cfg Config) (*Toolset, error) {
	if cfg.Connector == nil {
		switch cfg.Transport {
		case config.TransportStdio, "":
			if cfg.Command == "" {
				return nil, fmt.Errorf("mcp server %q: command is required for stdio transport", cfg.Name)
			}
		case config.TransportSSE, config.TransportHTTP:
			if cfg.URL == "" {
				return nil, fmt.Errorf("mcp server %q: url is required for %s transport", cfg.Name, cfg.Transport)
			}
		default:
			return nil, fmt.Errorf("mcp server %q: unknown transport %q", cfg.Name, cfg.Transport)
		}
	}

	var filterSet map[string]bool
	if len(cfg.Filter) > 0 {
		filterSet = make(map[string]bool, len(cfg.Filter))
		for _, name := range cfg.Filter {
			filterSet[name] = true
		}
	}

	if cfg.InitTimeout == 0 {
		cfg.InitTimeout = config.DefaultInitTimeout
	}

	return &Toolset{
		cfg:       cfg,
		filterSet: filterSet,
	}, nil
}

// Name returns the toolset name.
func (t *Toolset) Name() string {
	return t.cfg.Name
}

// ServerInfo returns what the server reported during initialize.
func (t *Toolset) ServerInfo() mcp.Implementation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.serverInfo
}

// Connect establishes the connection if it is not already open.
func (t *Toolset) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected {
		return nil
	}
	return t.connect(ctx)
}

// Tools returns the available tools, connecting lazily if needed.
func (t *Toolset) Tools(ctx context.Context) ([]tool.Tool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		if err := t.connect(ctx); err != nil {
			return nil, err
		}
	}
	return t.tools, nil
}

// Close shuts the connection down. Closing twice is a no-op.
func (t *Toolset) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	t.tools = nil
	t.connected = false
	return err
}

func (t *Toolset) connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.InitTimeout)
	defer cancel()

	mcpClient, err := t.newClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to MCP server %q: %w", t.cfg.Name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    ClientName,
		Version: ClientVersion,
	}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION

	initResp, err := mcpClient.Initialize(ctx, initReq)
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("failed to initialize MCP server %q: %w", t.cfg.Name, err)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("failed to list tools of MCP server %q: %w", t.cfg.Name, err)
	}

	var tools []tool.Tool
	for _, mcpTool := range listResp.Tools {
		if t.filterSet != nil && !t.filterSet[mcpTool.Name] {
			continue
		}
		tools = append(tools, &mcpToolWrapper{
			toolset: t,
			name:    mcpTool.Name,
			desc:    mcpTool.Description,
			schema:  convertSchema(mcpTool),
		})
	}

	t.client = mcpClient
	t.serverInfo = initResp.ServerInfo
	t.tools = tools
	t.connected = true

	slog.Info("Connected to MCP server",
		"name", t.cfg.Name,
		"server", initResp.ServerInfo.Name,
		"transport", t.transportName(),
		"tools", len(tools),
	)
	return nil
}

func (t *Toolset) transportName() string {
	if t.cfg.Connector != nil {
		return "custom"
	}
	if t.cfg.Transport == "" {
		return config.TransportStdio
	}
	return t.cfg.Transport
}

func (t *Toolset) newClient(ctx context.Context) (*client.Client, error) {
	if t.cfg.Connector != nil {
		return t.cfg.Connector(ctx)
	}

	switch t.cfg.Transport {
	case config.TransportSSE:
		var opts []transport.ClientOption
		if len(t.cfg.Headers) > 0 {
			opts = append(opts, transport.WithHeaders(t.cfg.Headers))
		}
		c, err := client.NewSSEMCPClient(t.cfg.URL, opts...)
		if err != nil {
			return nil, err
		}
		// The event stream lives as long as the client, not the init deadline.
		if err := c.Start(context.WithoutCancel(ctx)); err != nil {
			c.Close()
			return nil, err
		}
		return c, nil

	case config.TransportHTTP:
		var opts []transport.StreamableHTTPCOption
		if len(t.cfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(t.cfg.Headers))
		}
		c, err := client.NewStreamableHttpClient(t.cfg.URL, opts...)
		if err != nil {
			return nil, err
		}
		if err := c.Start(context.WithoutCancel(ctx)); err != nil {
			c.Close()
			return nil, err
		}
		return c, nil

	default:
		// The stdio client starts its subprocess on construction.
		c, err := client.NewStdioMCPClient(t.cfg.Command, t.cfg.Env, t.cfg.Args...)
		if err != nil {
			return nil, err
		}
		if stderr, ok := client.GetStderr(c); ok {
			go drainStderr(t.cfg.Name, stderr)
		}
		return c, nil
	}
}

// drainStderr forwards the subprocess stderr to the debug log. The pipe
// must be read continuously or the child blocks once it fills up.
func drainStderr(server string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		slog.Debug("MCP server stderr", "server", server, "line", scanner.Text())
	}
	if scanner.Err() != nil {
		_, _ = io.Copy(io.Discard, r)
	}
}

// mcpToolWrapper wraps an MCP tool as tool.Tool.
type mcpToolWrapper struct {
	toolset *Toolset
	name    string
	desc    string
	schema  map[string]any
}

func (w *mcpToolWrapper) Name() string {
	return w.name
}

func (w *mcpToolWrapper) Description() string {
	return w.desc
}

func (w *mcpToolWrapper) Schema() map[string]any {
	return w.schema
}

func (w *mcpToolWrapper) Call(ctx context.Context, args map[string]any) (*tool.Result, error) {
	w.toolset.mu.Lock()
	mcpClient := w.toolset.client
	w.toolset.mu.Unlock()

	if mcpClient == nil {
		return nil, ErrNotConnected
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = w.name
	req.Params.Arguments = args

	resp, err := mcpClient.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("MCP call %s failed: %w", w.name, err)
	}
	return parseToolResponse(resp), nil
}

// parseToolResponse converts MCP content into tool content.
func parseToolResponse(resp *mcp.CallToolResult) *tool.Result {
	result := &tool.Result{IsError: resp.IsError}
	for _, content := range resp.Content {
		switch c := content.(type) {
		case mcp.TextContent:
			result.Content = append(result.Content, tool.Content{Type: tool.ContentText, Text: c.Text})
		case *mcp.TextContent:
			result.Content = append(result.Content, tool.Content{Type: tool.ContentText, Text: c.Text})
		case mcp.ImageContent:
			result.Content = append(result.Content, tool.Content{Type: tool.ContentImage, Data: c.Data, MimeType: c.MIMEType})
		case *mcp.ImageContent:
			result.Content = append(result.Content, tool.Content{Type: tool.ContentImage, Data: c.Data, MimeType: c.MIMEType})
		case mcp.AudioContent:
			result.Content = append(result.Content, tool.Content{Type: tool.ContentAudio, Data: c.Data, MimeType: c.MIMEType})
		case mcp.EmbeddedResource:
			result.Content = append(result.Content, convertResource(c.Resource))
		case *mcp.EmbeddedResource:
			result.Content = append(result.Content, convertResource(c.Resource))
		}
	}
	if result.IsError && len(result.Content) == 0 {
		result.Content = []tool.Content{{Type: tool.ContentText, Text: "unknown error"}}
	}
	return result
}

func convertResource(res mcp.ResourceContents) tool.Content {
	switch r := res.(type) {
	case mcp.TextResourceContents:
		return tool.Content{Type: tool.ContentResource, URI: r.URI, MimeType: r.MIMEType, Text: r.Text}
	case *mcp.TextResourceContents:
		return tool.Content{Type: tool.ContentResource, URI: r.URI, MimeType: r.MIMEType, Text: r.Text}
	case mcp.BlobResourceContents:
		return tool.Content{Type: tool.ContentResource, URI: r.URI, MimeType: r.MIMEType, Data: r.Blob}
	case *mcp.BlobResourceContents:
		return tool.Content{Type: tool.ContentResource, URI: r.URI, MimeType: r.MIMEType, Data: r.Blob}
	default:
		return tool.Content{Type: tool.ContentResource}
	}
}

// convertSchema converts an MCP tool schema to a map.
func convertSchema(t mcp.Tool) map[string]any {
	data := []byte(t.RawInputSchema)
	if len(data) == 0 {
		var err error
		if data, err = json.Marshal(t.InputSchema); err != nil {
			return nil
		}
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

var (
	_ tool.Toolset = (*Toolset)(nil)
	_ tool.Tool    = (*mcpToolWrapper)(nil)
)
