package hfspace

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/hfspace/pkg/config"
	"github.com/kadirpekel/hfspace/pkg/gradio"
	"github.com/kadirpekel/hfspace/pkg/gradio/gradiotest"
	"github.com/kadirpekel/hfspace/pkg/tool"
	"github.com/kadirpekel/hfspace/pkg/tool/mcptoolset"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func spaceEndpoints() map[string]gradiotest.Endpoint {
	return map[string]gradiotest.Endpoint{
		"/predict": {
			Parameters: []map[string]any{{
				"label":          "Input Audio",
				"parameter_name": "inputs",
				"component":      "Audio",
				"python_type":    map[string]any{"type": "filepath", "description": ""},
				"type":           map[string]any{"type": "object"},
			}},
			Returns: []map[string]any{{"label": "output", "component": "Textbox", "type": map[string]any{"type": "string"}}},
			Respond: func(data []any) []gradiotest.SSEEvent {
				path, _ := data[0].(map[string]any)["path"].(string)
				return []gradiotest.SSEEvent{
					{Event: "generating", Data: "null"},
					gradiotest.Complete("transcribed " + path),
				}
			},
		},
		"/generate": {
			Parameters: []map[string]any{
				{
					"label":          "Prompt",
					"parameter_name": "prompt",
					"component":      "Textbox",
					"python_type":    map[string]any{"type": "str", "description": ""},
					"type":           map[string]any{"type": "string"},
				},
				{
					"label":                 "Steps",
					"parameter_name":        "steps",
					"parameter_has_default": true,
					"parameter_default":     4,
					"component":             "Slider",
					"python_type":           map[string]any{"type": "float", "description": "numeric value between 1 and 50"},
					"type":                  map[string]any{"type": "number"},
				},
			},
			Returns: []map[string]any{
				{"label": "Result", "component": "Image"},
				{"label": "Seed", "component": "Number"},
			},
			Respond: func(data []any) []gradiotest.SSEEvent {
				return []gradiotest.SSEEvent{gradiotest.Complete(
					map[string]any{"path": "/tmp/gradio/out.png", "meta": map[string]any{"_type": "gradio.FileData"}},
					42,
				)}
			},
		},
		"/fail": {
			Parameters: []map[string]any{{"label": "text", "parameter_name": "text", "component": "Textbox"}},
			Respond: func([]any) []gradiotest.SSEEvent {
				return []gradiotest.SSEEvent{gradiotest.Error("GPU quota exceeded")}
			},
		},
	}
}

type fixture struct {
	server   *Server
	gradio   *gradiotest.Server
	workDir  string
	searches *atomic.Int32
	tools    map[string]tool.Tool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	gs := gradiotest.New(t, spaceEndpoints())
	gs.AddFile("/tmp/gradio/out.png", pngBytes)

	var searches atomic.Int32
	search := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		searches.Add(1)
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": "hf-audio/whisper-large-v3", "title": "Whisper", "shortDescription": "Speech to text", "author": "hf-audio", "sdk": "gradio", "likes": 10},
			{"id": "someone/streamlit-app", "title": "Other", "sdk": "streamlit"},
		})
	}))
	t.Cleanup(search.Close)

	workDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "a.wav"), []byte("RIFF"), 0o644))

	srv, err := NewServer(context.Background(), config.HFSpaceConfig{
		Spaces: []string{
			"hf-audio/whisper-large-v3",
			"black-forest-labs/FLUX.1-schnell/generate",
			"owner/broken/fail",
			"owner/missing/nope",
		},
		WorkDir:   workDir,
		HubURL:    gs.URL,
		SearchURL: search.URL,
	}, WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	ts, err := mcptoolset.New(mcptoolset.Config{
		Name: config.HFSpaceServerName,
		Connector: func(ctx context.Context) (*client.Client, error) {
			c, err := client.NewInProcessClient(srv.MCPServer())
			if err != nil {
				return nil, err
			}
			return c, c.Start(ctx)
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { ts.Close() })

	list, err := ts.Tools(context.Background())
	require.NoError(t, err)
	tools := make(map[string]tool.Tool, len(list))
	for _, tl := range list {
		tools[tl.Name()] = tl
	}

	return &fixture{server: srv, gradio: gs, workDir: workDir, searches: &searches, tools: tools}
}

func (f *fixture) call(t *testing.T, name string, args map[string]any) *tool.Result {
	t.Helper()
	tl, ok := f.tools[name]
	require.True(t, ok, "tool %s not registered", name)
	res, err := tl.Call(context.Background(), args)
	require.NoError(t, err)
	return res
}

func toolError(t *testing.T, res *tool.Result) ToolError {
	t.Helper()
	require.True(t, res.IsError)
	var te ToolError
	require.NoError(t, json.Unmarshal([]byte(res.Text()), &te))
	return te
}

func TestNewServer_RegistersTools(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, []string{
		"black-forest-labs-FLUX_1-schnell-generate",
		"hf-audio-whisper-large-v3",
		"owner-broken-fail",
	}, f.server.SpaceTools())
	assert.Len(t, f.tools, 5)
	assert.Contains(t, f.tools, SearchToolName)
	assert.Contains(t, f.tools, FilesToolName)

	whisper := f.tools["hf-audio-whisper-large-v3"]
	assert.Contains(t, whisper.Description(), "hf-audio/whisper-large-v3")
	schema := whisper.Schema()
	assert.Equal(t, []any{"inputs"}, schema["required"])
	inputs := schema["properties"].(map[string]any)["inputs"].(map[string]any)
	assert.Equal(t, "string", inputs["type"])

	flux := f.tools["black-forest-labs-FLUX_1-schnell-generate"].Schema()
	steps := flux["properties"].(map[string]any)["steps"].(map[string]any)
	assert.Equal(t, "number", steps["type"])
	assert.EqualValues(t, 4, steps["default"])
	assert.Equal(t, "Steps: numeric value between 1 and 50", steps["description"])
	assert.Equal(t, []any{"prompt"}, flux["required"])
}

func TestSyncSpaces(t *testing.T) {
	f := newFixture(t)

	added, removed := f.server.SyncSpaces(context.Background(), []string{
		"hf-audio/whisper-large-v3",
		"owner/broken/fail",
		"owner/extra/generate",
		"owner/missing/nope",
		"not-a-spec",
	})
	assert.Equal(t, []string{"owner-extra-generate"}, added)
	assert.Equal(t, []string{"black-forest-labs-FLUX_1-schnell-generate"}, removed)
	assert.Equal(t, []string{"hf-audio-whisper-large-v3", "owner-broken-fail", "owner-extra-generate"}, f.server.SpaceTools())

	tools := f.server.MCPServer().ListTools()
	assert.Contains(t, tools, "owner-extra-generate")
	assert.NotContains(t, tools, "black-forest-labs-FLUX_1-schnell-generate")
	assert.Contains(t, tools, SearchToolName)

	added, removed = f.server.SyncSpaces(context.Background(), []string{"hf-audio/whisper-large-v3", "owner/broken/fail", "owner/extra/generate"})
	assert.Empty(t, added)
	assert.Empty(t, removed)
}

func TestSpaceTool_UploadsFileInput(t *testing.T) {
	f := newFixture(t)

	res := f.call(t, "hf-audio-whisper-large-v3", map[string]any{"inputs": "a.wav"})
	assert.False(t, res.IsError, res.Text())
	assert.Equal(t, "transcribed /tmp/gradio/a.wav", res.Text())
	assert.Equal(t, []string{"a.wav"}, f.gradio.Uploads())
}

func TestSpaceTool_ValidatesArguments(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		args map[string]any
		code ErrorCode
		want string
	}{
		{name: "missing", args: map[string]any{}, code: ErrValidation, want: `missing required parameter "inputs"`},
		{name: "escape", args: map[string]any{"inputs": "../secret.wav"}, code: ErrValidation, want: "outside the working directory"},
		{name: "not found", args: map[string]any{"inputs": "nope.wav"}, code: ErrNotFound, want: "file not found"},
		{name: "wrong type", args: map[string]any{"inputs": 3}, code: ErrValidation, want: "must be a file path or URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te := toolError(t, f.call(t, "hf-audio-whisper-large-v3", tt.args))
			assert.Equal(t, tt.code, te.Code)
			assert.Contains(t, te.Message, tt.want)
		})
	}

	te := toolError(t, f.call(t, "hf-audio-whisper-large-v3", map[string]any{"inputs": "nope.wav"}))
	assert.Equal(t, map[string]any{"file": "nope.wav"}, te.Details)
	assert.Empty(t, f.gradio.Calls())
}

func TestSpaceTool_ImageOutputAndDefaults(t *testing.T) {
	f := newFixture(t)

	res := f.call(t, "black-forest-labs-FLUX_1-schnell-generate", map[string]any{"prompt": "a cat"})
	require.False(t, res.IsError, res.Text())
	require.Len(t, res.Content, 2)

	img := res.Content[0]
	assert.Equal(t, tool.ContentImage, img.Type)
	assert.Equal(t, "image/png", img.MimeType)
	assert.Equal(t, base64.StdEncoding.EncodeToString(pngBytes), img.Data)
	assert.Equal(t, "42", res.Content[1].Text)

	calls := f.gradio.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []any{"a cat", float64(4)}, calls[0].Data)
}

func TestSpaceTool_ErrorEvent(t *testing.T) {
	f := newFixture(t)

	te := toolError(t, f.call(t, "owner-broken-fail", map[string]any{"text": "x"}))
	assert.Equal(t, ErrUpstream, te.Code)
	assert.Contains(t, te.Message, "GPU quota exceeded")
	assert.Equal(t, "owner/broken", te.Details["space"])
}

func TestSearchSpaces_Cached(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 2; i++ {
		res := f.call(t, SearchToolName, map[string]any{"query": "speech to text"})
		require.False(t, res.IsError)
		assert.Contains(t, res.Text(), "`hf-audio/whisper-large-v3`")
		assert.NotContains(t, res.Text(), "streamlit")
	}
	assert.EqualValues(t, 1, f.searches.Load())

	res := f.call(t, SearchToolName, map[string]any{"query": "speech to text", "limit": 5})
	require.False(t, res.IsError)
	assert.EqualValues(t, 2, f.searches.Load())

	te := toolError(t, f.call(t, SearchToolName, map[string]any{}))
	assert.Equal(t, ErrValidation, te.Code)

	ok := testutil.ToFloat64(f.server.metrics.calls.WithLabelValues(SearchToolName, statusOK))
	failed := testutil.ToFloat64(f.server.metrics.calls.WithLabelValues(SearchToolName, statusError))
	assert.Equal(t, 3.0, ok)
	assert.Equal(t, 1.0, failed)
}

func TestAvailableFiles(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.workDir, ".hidden"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(f.workDir, "sub"), 0o755))

	res := f.call(t, FilesToolName, nil)
	require.False(t, res.IsError)
	text := res.Text()
	assert.Contains(t, text, "| a.wav | 4 B |")
	assert.Contains(t, text, "file://"+filepath.ToSlash(filepath.Join(f.workDir, "a.wav")))
	assert.NotContains(t, text, ".hidden")
	assert.NotContains(t, text, "| sub |")

	assert.Equal(t, "No files available in /tmp/x", formatFiles("/tmp/x", nil))
}

func TestHandler(t *testing.T) {
	f := newFixture(t)
	f.call(t, SearchToolName, map[string]any{"query": "tts"})

	hs := httptest.NewServer(f.server.Handler())
	defer hs.Close()

	resp, err := http.Get(hs.URL + HealthPath)
	require.NoError(t, err)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "ok", health["status"])
	assert.Len(t, health["spaces"], 3)

	resp, err = http.Get(hs.URL + MetricsPath)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `hfspace_tool_calls_total{status="ok",tool="search-spaces"} 1`)
}

func TestServe_OverStreamableHTTP(t *testing.T) {
	f := newFixture(t)

	hs := httptest.NewServer(f.server.Handler())
	defer hs.Close()

	ts, err := mcptoolset.New(mcptoolset.Config{
		Name:      "remote",
		Transport: config.TransportHTTP,
		URL:       hs.URL + MCPPath,
	})
	require.NoError(t, err)
	defer ts.Close()

	tools, err := ts.Tools(context.Background())
	require.NoError(t, err)
	assert.Len(t, tools, 5)
}

func TestSpaceToolName(t *testing.T) {
	tests := []struct {
		spec string
		want string
	}{
		{"hf-audio/whisper-large-v3", "hf-audio-whisper-large-v3"},
		{"black-forest-labs/FLUX.1-schnell", "black-forest-labs-FLUX_1-schnell"},
		{"owner/space/infer", "owner-space-infer"},
		{"o/" + strings.Repeat("s", 80), "o-" + strings.Repeat("s", 62)},
	}
	for _, tt := range tests {
		spec, err := gradio.ParseSpaceSpec(tt.spec)
		require.NoError(t, err)
		assert.Equal(t, tt.want, SpaceToolName(spec))
	}
}

func TestResolveFile(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "in.png"), pngBytes, 0o644))
	s := &Server{workDir: dir}

	path, err := s.resolveFile("in.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "in.png"), path)

	path, err = s.resolveFile("file://" + filepath.Join(dir, "in.png"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "in.png"), path)

	url, err := s.resolveFile("https://example.com/cat.png")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/cat.png", url)

	_, err = s.resolveFile("/etc/passwd")
	assert.ErrorContains(t, err, "outside the working directory")

	_, err = s.resolveFile(".")
	assert.ErrorContains(t, err, "is a directory")

	_, err = s.resolveFile("missing.png")
	assert.ErrorIs(t, err, errFileNotFound)
}

func TestResolveFile_SymlinkOutsideWorkDir(t *testing.T) {
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("secret"), 0o600))

	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.Symlink(secret, filepath.Join(dir, "innocent.png")))
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "sub")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "real.png"), pngBytes, 0o644))
	require.NoError(t, os.Symlink(filepath.Join(dir, "real.png"), filepath.Join(dir, "alias.png")))
	s := &Server{workDir: dir}

	for _, ref := range []string{"innocent.png", "sub/secret.txt"} {
		_, err := s.resolveFile(ref)
		assert.ErrorContains(t, err, "outside the working directory", ref)
	}

	path, err := s.resolveFile("alias.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "real.png"), path)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "1.5 KB", formatSize(1536))
	assert.Equal(t, "2.0 MB", formatSize(2*1024*1024))
}
