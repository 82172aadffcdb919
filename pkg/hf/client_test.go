package hf

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpaceHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/spaces/hf-audio/whisper-large-v3/host":
			assert.Equal(t, "Bearer hf_token", r.Header.Get("Authorization"))
			w.Write([]byte(`{"subdomain":"hf-audio-whisper-large-v3","host":"https://hf-audio-whisper-large-v3.hf.space/"}`))
		case "/api/spaces/only/subdomain/host":
			w.Write([]byte(`{"subdomain":"only-subdomain"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(Options{HubURL: srv.URL, Token: "hf_token"})

	host, err := c.SpaceHost(context.Background(), "hf-audio/whisper-large-v3")
	require.NoError(t, err)
	assert.Equal(t, "https://hf-audio-whisper-large-v3.hf.space", host)

	host, err = c.SpaceHost(context.Background(), "only/subdomain")
	require.NoError(t, err)
	assert.Equal(t, "https://only-subdomain.hf.space", host)

	_, err = c.SpaceHost(context.Background(), "no/such")
	assert.ErrorIs(t, err, ErrSpaceNotFound)
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Options{})
	assert.Equal(t, "https://huggingface.co/api/spaces/semantic-search", c.searchURL)
	assert.Equal(t, "https://huggingface.co", c.hubURL)
	assert.NotNil(t, c.HTTP())
}
