package gradio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/hfspace/pkg/gradio/gradiotest"
	"github.com/kadirpekel/hfspace/pkg/hf"
	"github.com/kadirpekel/hfspace/pkg/observability"
)

var whisperParams = []map[string]any{
	{
		"label":                 "Audio",
		"parameter_name":        "inputs",
		"parameter_has_default": false,
		"type":                  map[string]any{"type": "object"},
		"python_type":           map[string]any{"type": "filepath", "description": ""},
		"component":             "Audio",
	},
	{
		"label":                 "Task",
		"parameter_name":        "task",
		"parameter_has_default": true,
		"parameter_default":     "transcribe",
		"type":                  map[string]any{"type": "string", "enum": []any{"transcribe", "translate"}},
		"python_type":           map[string]any{"type": "Literal['transcribe', 'translate']", "description": ""},
		"component":             "Radio",
	},
}

func connect(t *testing.T, srv *gradiotest.Server) *Client {
	t.Helper()
	hub := hf.NewClient(hf.Options{HubURL: srv.URL})
	c, err := Connect(context.Background(), "hf-audio/whisper-large-v3", Options{Hub: hub})
	require.NoError(t, err)
	return c
}

func TestParseSpaceSpec(t *testing.T) {
	tests := []struct {
		in      string
		want    SpaceSpec
		wantErr bool
	}{
		{in: "hf-audio/whisper-large-v3", want: SpaceSpec{SpaceID: "hf-audio/whisper-large-v3"}},
		{in: "black-forest-labs/FLUX.1-schnell/infer", want: SpaceSpec{SpaceID: "black-forest-labs/FLUX.1-schnell", Endpoint: "/infer"}},
		{in: "/owner/space/", want: SpaceSpec{SpaceID: "owner/space"}},
		{in: "whisper", wantErr: true},
		{in: "a//b", wantErr: true},
		{in: "a/b/c/d", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSpaceSpec(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConnect_LoadsInfo(t *testing.T) {
	srv := gradiotest.New(t, map[string]gradiotest.Endpoint{
		"/predict": {Parameters: whisperParams},
		"/other":   {},
	})
	c := connect(t, srv)

	assert.Equal(t, srv.URL, c.Host())
	assert.Equal(t, "/gradio_api", c.apiPrefix)
	assert.Equal(t, []string{"/other", "/predict"}, c.EndpointNames())

	ep, err := c.Endpoint("")
	require.NoError(t, err)
	assert.Equal(t, "/predict", ep.Name)
	require.Len(t, ep.Parameters, 2)
	assert.True(t, ep.Parameters[0].IsFile())
	assert.False(t, ep.Parameters[1].IsFile())
	assert.Equal(t, "transcribe", ep.Parameters[1].Default)

	ep, err = c.Endpoint("other")
	require.NoError(t, err)
	assert.Equal(t, "/other", ep.Name)

	_, err = c.Endpoint("/missing")
	assert.ErrorIs(t, err, ErrEndpointNotFound)
}

func TestConnect_LegacyInfoRoute(t *testing.T) {
	srv := gradiotest.New(t, map[string]gradiotest.Endpoint{"/predict": {}}, gradiotest.WithLegacyRoutes())

	c := connect(t, srv)
	assert.Equal(t, "", c.apiPrefix)

	out, err := c.Predict(context.Background(), "/predict", []any{"hi"})
	require.NoError(t, err)
	assert.Equal(t, []any{"hi"}, out)
}

func TestConnect_SpaceNotFound(t *testing.T) {
	srv := gradiotest.New(t, nil)
	hub := hf.NewClient(hf.Options{HubURL: srv.URL + "/nowhere"})
	_, err := Connect(context.Background(), "a/b", Options{Hub: hub})
	assert.ErrorIs(t, err, hf.ErrSpaceNotFound)
}

func TestSubmit_StreamsStatusThenData(t *testing.T) {
	srv := gradiotest.New(t, map[string]gradiotest.Endpoint{
		"/predict": {
			Respond: func(data []any) []gradiotest.SSEEvent {
				return []gradiotest.SSEEvent{
					{Event: "heartbeat", Data: "null"},
					{Event: "generating", Data: `["partial"]`},
					gradiotest.Complete("hello world"),
				}
			},
		},
	})
	c := connect(t, srv)

	events, err := c.Submit(context.Background(), "/predict", []any{"x"})
	require.NoError(t, err)

	var stages []string
	var last Event
	for ev := range events {
		stages = append(stages, ev.Stage)
		last = ev
	}
	assert.Equal(t, []string{StagePending, StageHeartbeat, StageGenerating, StageComplete}, stages)
	assert.Equal(t, EventData, last.Type)
	assert.Equal(t, []any{"hello world"}, last.Data)
	assert.Equal(t, "/predict", last.Endpoint)
}

func TestPredict_ErrorEvent(t *testing.T) {
	srv := gradiotest.New(t, map[string]gradiotest.Endpoint{
		"/predict": {
			Respond: func([]any) []gradiotest.SSEEvent {
				return []gradiotest.SSEEvent{gradiotest.Error("GPU quota exceeded")}
			},
		},
	})
	c := connect(t, srv)

	_, err := c.Predict(context.Background(), "", nil)
	require.ErrorIs(t, err, ErrPrediction)
	assert.Contains(t, err.Error(), "GPU quota exceeded")
}

func TestPredict_NullErrorEvent(t *testing.T) {
	srv := gradiotest.New(t, map[string]gradiotest.Endpoint{
		"/predict": {
			Respond: func([]any) []gradiotest.SSEEvent {
				return []gradiotest.SSEEvent{{Event: "error", Data: "null"}}
			},
		},
	})
	c := connect(t, srv)

	_, err := c.Predict(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrPrediction)
}

func TestPredict_StreamEndsWithoutResult(t *testing.T) {
	srv := gradiotest.New(t, map[string]gradiotest.Endpoint{
		"/predict": {
			Respond: func([]any) []gradiotest.SSEEvent {
				return []gradiotest.SSEEvent{{Event: "heartbeat", Data: "null"}}
			},
		},
	})
	c := connect(t, srv)

	_, err := c.Predict(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestSubmit_UploadsHandledFiles(t *testing.T) {
	srv := gradiotest.New(t, map[string]gradiotest.Endpoint{"/predict": {Parameters: whisperParams}})
	c := connect(t, srv)

	dir := t.TempDir()
	image := filepath.Join(dir, "sample.png")
	require.NoError(t, os.WriteFile(image, []byte("\x89PNG\r\n\x1a\n"), 0644))

	out, err := c.Predict(context.Background(), "/predict", []any{HandleFile(image), "transcribe"})
	require.NoError(t, err)
	require.Len(t, out, 2)

	fd, ok := AsFileData(out[0])
	require.True(t, ok, "first output should echo the uploaded FileData")
	assert.Equal(t, "/tmp/gradio/sample.png", fd.Path)
	assert.Equal(t, "sample.png", fd.OrigName)
	assert.Equal(t, []string{"sample.png"}, srv.Uploads())

	calls := srv.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "transcribe", calls[0].Data[1])

	content, mimeType, err := c.Download(context.Background(), fd)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG\r\n\x1a\n", string(content))
	assert.Equal(t, "image/png", mimeType)
}

func TestDownload_TokenOnlySentToSpaceHost(t *testing.T) {
	srv := gradiotest.New(t, map[string]gradiotest.Endpoint{"/predict": {}})
	hub := hf.NewClient(hf.Options{HubURL: srv.URL, Token: "hf_secret"})
	c, err := Connect(context.Background(), "owner/space", Options{Hub: hub})
	require.NoError(t, err)

	var gotAuth []string
	thirdParty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = append(gotAuth, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png"))
	}))
	defer thirdParty.Close()

	content, _, err := c.Download(context.Background(), &FileData{Path: "x.png", URL: thirdParty.URL + "/x.png"})
	require.NoError(t, err)
	assert.Equal(t, "png", string(content))
	assert.Equal(t, []string{""}, gotAuth)

	own, err := http.NewRequest(http.MethodGet, c.Host()+"/gradio_api/info", nil)
	require.NoError(t, err)
	c.authorize(own)
	assert.Equal(t, "Bearer hf_secret", own.Header.Get("Authorization"))

	foreign, err := http.NewRequest(http.MethodGet, thirdParty.URL, nil)
	require.NoError(t, err)
	c.authorize(foreign)
	assert.Empty(t, foreign.Header.Get("Authorization"))
}

func TestSubmit_URLFileIsNotUploaded(t *testing.T) {
	srv := gradiotest.New(t, map[string]gradiotest.Endpoint{"/predict": {}})
	c := connect(t, srv)

	out, err := c.Predict(context.Background(), "/predict", []any{HandleFile("https://example.com/a.png")})
	require.NoError(t, err)

	fd, ok := AsFileData(out[0])
	require.True(t, ok)
	assert.Equal(t, "https://example.com/a.png", fd.URL)
	assert.Empty(t, srv.Uploads())
}

func TestAsFileData(t *testing.T) {
	_, ok := AsFileData("text")
	assert.False(t, ok)

	_, ok = AsFileData(map[string]any{"path": "x", "meta": map[string]any{"_type": "other"}})
	assert.False(t, ok)

	fd, ok := AsFileData(map[string]any{"path": "/tmp/x.png", "url": "http://h/file=/tmp/x.png", "size": float64(3)})
	require.True(t, ok)
	assert.Equal(t, int64(3), fd.Size)
	assert.Equal(t, "http://h/file=/tmp/x.png", fd.URL)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "boom", errorMessage(`"boom"`))
	assert.Equal(t, "bad input", errorMessage(`{"error":"bad input"}`))
	assert.Contains(t, errorMessage("null"), "without details")
	assert.Equal(t, "raw text", errorMessage("raw text"))
}

func TestPredict_RecordsDuration(t *testing.T) {
	require.NoError(t, observability.EnableOTelMetrics())

	srv := gradiotest.New(t, map[string]gradiotest.Endpoint{"/predict": {}})
	c := connect(t, srv)
	_, err := c.Predict(context.Background(), "/predict", []any{"hi"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		observability.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		return strings.Contains(rec.Body.String(), "hfspace_gradio_prediction_duration_seconds_count")
	}, 2*time.Second, 20*time.Millisecond)
}
