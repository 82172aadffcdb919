package hfspace

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kadirpekel/hfspace/pkg/gradio"
)

// spaceTool exposes one endpoint of a space.
var errFileNotFound = errors.New("file not found in the working directory")

type spaceTool struct {
	server   *Server
	name     string
	spec     gradio.SpaceSpec
	client   *gradio.Client
	endpoint *gradio.Endpoint
}

// SpaceToolName derives a tool name from a space spec:
// "owner/space" becomes "owner-space" and an explicit endpoint is
// appended as "-endpoint".
func SpaceToolName(spec gradio.SpaceSpec) string {
	name := strings.ReplaceAll(spec.SpaceID, "/", "-")
	if ep := strings.Trim(spec.Endpoint, "/"); ep != "" {
		name += "-" + ep
	}
	return sanitizeToolName(name)
}

func sanitizeToolName(name string) string {
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
	return out
}

func (st *spaceTool) tool() mcp.Tool {
	return mcp.NewToolWithRawSchema(st.name, st.description(), inputSchema(st.endpoint))
}

func (st *spaceTool) description() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Call the %s endpoint of the Hugging Face space %s.", st.endpoint.Name, st.spec.SpaceID)
	if len(st.endpoint.Returns) > 0 {
		outputs := make([]string, 0, len(st.endpoint.Returns))
		for _, r := range st.endpoint.Returns {
			label := r.Label
			if label == "" {
				label = "output"
			}
			if r.Component != "" {
				label += " (" + r.Component + ")"
			}
			outputs = append(outputs, label)
		}
		fmt.Fprintf(&sb, " Returns: %s.", strings.Join(outputs, ", "))
	}
	return sb.String()
}

// inputSchema builds the JSON schema of an endpoint's parameters. File
// inputs take a path or URL string.
func inputSchema(ep *gradio.Endpoint) json.RawMessage {
	properties := make(map[string]any, len(ep.Parameters))
	required := []string{}

	for _, p := range ep.Parameters {
		key := p.Key()
		if key == "" {
			continue
		}
		properties[key] = parameterSchema(p)
		if !p.HasDefault {
			required = append(required, key)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	data, _ := json.Marshal(schema)
	return data
}

func parameterSchema(p gradio.Parameter) map[string]any {
	desc := p.Label
	if p.PythonType.Description != "" {
		if desc != "" {
			desc += ": "
		}
		desc += p.PythonType.Description
	}

	if p.IsFile() {
		if desc != "" {
			desc += ". "
		}
		return map[string]any{
			"type":        "string",
			"description": desc + "A file path relative to the working directory, or an http(s) URL.",
		}
	}

	prop := make(map[string]any, len(p.Type)+2)
	for k, v := range p.Type {
		prop[k] = v
	}
	if len(prop) == 0 {
		prop["type"] = jsonTypeOf(p.PythonType.Type)
	}
	if desc != "" {
		prop["description"] = desc
	}
	if p.HasDefault && p.Default != nil {
		prop["default"] = p.Default
	}
	return prop
}

func jsonTypeOf(pythonType string) string {
	switch strings.ToLower(pythonType) {
	case "float", "int":
		return "number"
	case "bool":
		return "boolean"
	default:
		return "string"
	}
}

func (st *spaceTool) handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, invalid := st.buildData(req.GetArguments())
	if invalid != nil {
		return invalid, nil
	}

	events, err := st.client.Submit(ctx, st.endpoint.Name, data)
	if err != nil {
		if isContextErr(err) {
			return nil, err
		}
		return UpstreamError(st.spec.SpaceID, err), nil
	}

	var token mcp.ProgressToken
	if req.Params.Meta != nil {
		token = req.Params.Meta.ProgressToken
	}

	var progress float64
	for ev := range events {
		switch ev.Type {
		case gradio.EventStatus:
			progress++
			notifyProgress(ctx, token, progress, ev.Stage)
		case gradio.EventError:
			return UpstreamError(st.spec.SpaceID, fmt.Errorf("%w: %s", gradio.ErrPrediction, ev.Message)), nil
		case gradio.EventData:
			return st.convertResult(ctx, ev.Data), nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return UpstreamError(st.spec.SpaceID, gradio.ErrNoResult), nil
}

// buildData orders the arguments as the endpoint expects them. The
// returned result is non-nil when the arguments are invalid.
func (st *spaceTool) buildData(args map[string]any) ([]any, *mcp.CallToolResult) {
	data := make([]any, len(st.endpoint.Parameters))
	for i, p := range st.endpoint.Parameters {
		v, ok := args[p.Key()]
		if !ok || v == nil {
			if !p.HasDefault {
				return nil, ValidationError(fmt.Sprintf("missing required parameter %q", p.Key()))
			}
			data[i] = p.Default
			continue
		}

		if p.IsFile() {
			ref, ok := v.(string)
			if !ok {
				return nil, ValidationError(fmt.Sprintf("parameter %q must be a file path or URL", p.Key()))
			}
			resolved, err := st.server.resolveFile(ref)
			if errors.Is(err, errFileNotFound) {
				return nil, NotFound("file", ref)
			}
			if err != nil {
				return nil, ValidationError(err.Error())
			}
			data[i] = gradio.HandleFile(resolved)
			continue
		}

		data[i] = v
	}
	return data, nil
}

// resolveFile maps a tool argument onto a file inside the working
// directory. URLs are passed through. Symlinks are resolved before the
// containment check so a link cannot point outside the directory.
func (s *Server) resolveFile(ref string) (string, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	ref = strings.TrimPrefix(ref, "file://")

	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.workDir, path)
	}
	path = filepath.Clean(path)
	if !s.inWorkDir(path) {
		return "", fmt.Errorf("path %q is outside the working directory", ref)
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %q", errFileNotFound, ref)
		}
		return "", err
	}
	if !s.inWorkDir(resolved) {
		return "", fmt.Errorf("path %q is outside the working directory", ref)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%q is a directory", ref)
	}
	return resolved, nil
}

func (s *Server) inWorkDir(path string) bool {
	rel, err := filepath.Rel(s.workDir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (st *spaceTool) convertResult(ctx context.Context, data []any) *mcp.CallToolResult {
	var contents []mcp.Content
	for i, v := range data {
		var ret gradio.Parameter
		if i < len(st.endpoint.Returns) {
			ret = st.endpoint.Returns[i]
		}
		contents = append(contents, st.convertValue(ctx, v, ret)...)
	}
	if len(contents) == 0 {
		return mcp.NewToolResultText("The space returned no output.")
	}
	return &mcp.CallToolResult{Content: contents}
}

func (st *spaceTool) convertValue(ctx context.Context, v any, ret gradio.Parameter) []mcp.Content {
	if v == nil {
		return nil
	}
	if fd, ok := gradio.AsFileData(v); ok {
		return []mcp.Content{st.convertFile(ctx, fd, ret)}
	}

	switch val := v.(type) {
	case string:
		return []mcp.Content{mcp.NewTextContent(val)}
	case []any:
		// galleries and multi-file outputs
		var out []mcp.Content
		allFiles := len(val) > 0
		for _, item := range val {
			if _, ok := gradio.AsFileData(item); !ok {
				allFiles = false
				break
			}
		}
		if allFiles {
			for _, item := range val {
				out = append(out, st.convertValue(ctx, item, ret)...)
			}
			return out
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return []mcp.Content{mcp.NewTextContent(fmt.Sprint(v))}
	}
	return []mcp.Content{mcp.NewTextContent(string(b))}
}

// convertFile inlines images and audio; other files are linked.
func (st *spaceTool) convertFile(ctx context.Context, fd *gradio.FileData, ret gradio.Parameter) mcp.Content {
	url := st.client.FileURL(fd)
	kind := mediaKind(fd, ret)
	if kind == "" {
		return mcp.NewTextContent(fmt.Sprintf("File available at: %s", url))
	}

	content, mimeType, err := st.client.Download(ctx, fd)
	if err != nil {
		slog.Warn("Failed to download space output", "space", st.spec.SpaceID, "url", url, "error", err)
		return mcp.NewTextContent(fmt.Sprintf("File available at: %s", url))
	}
	encoded := base64.StdEncoding.EncodeToString(content)

	if kind == "audio" {
		return mcp.NewAudioContent(encoded, mimeType)
	}
	return mcp.NewImageContent(encoded, mimeType)
}

func mediaKind(fd *gradio.FileData, ret gradio.Parameter) string {
	mimeType := fd.MimeType
	if mimeType == "" {
		mimeType = mimeTypeOf(fd.Path)
	}
	switch {
	case strings.HasPrefix(mimeType, "image/"), strings.EqualFold(ret.Component, "image"):
		return "image"
	case strings.HasPrefix(mimeType, "audio/"), strings.EqualFold(ret.Component, "audio"):
		return "audio"
	}
	return ""
}

func mimeTypeOf(name string) string {
	if mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); mt != "" {
		if base, _, err := mime.ParseMediaType(mt); err == nil {
			return base
		}
		return mt
	}
	return "application/octet-stream"
}

func notifyProgress(ctx context.Context, token mcp.ProgressToken, progress float64, stage string) {
	if token == nil {
		return
	}
	srv := server.ServerFromContext(ctx)
	if srv == nil {
		return
	}
	err := srv.SendNotificationToClient(ctx, "notifications/progress", map[string]any{
		"progressToken": token,
		"progress":      progress,
		"message":       stage,
	})
	if err != nil {
		slog.Debug("Failed to send progress", "error", err)
	}
}
