// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package gradio is a client for the HTTP API of Gradio apps hosted on
// Hugging Face Spaces.
package gradio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/hfspace/pkg/hf"
	"github.com/kadirpekel/hfspace/pkg/httpclient"
	"github.com/kadirpekel/hfspace/pkg/observability"
)

const tracerName = "github.com/kadirpekel/hfspace/pkg/gradio"

var (
	// ErrEndpointNotFound is returned for endpoints the space does not expose.
	ErrEndpointNotFound = errors.New("endpoint not found")

	// ErrNoEndpoints is returned when a space exposes no named endpoints.
	ErrNoEndpoints = errors.New("space has no named endpoints")

	// ErrPrediction wraps error events reported by the space.
	ErrPrediction = errors.New("prediction failed")

	// ErrNoResult is returned when a stream ends without data.
	ErrNoResult = errors.New("stream ended without a result")
)

// Options configures Connect.
type Options struct {
	// Hub resolves the space host. Defaults to a hub client with no token.
	Hub *hf.Client

	// Host skips host resolution, e.g. for a self-hosted app.
	Host string
}

// Client is connected to one space.
type Client struct {
	spaceID     string
	host        string
	apiPrefix   string
	sessionHash string
	token       string
	http        *httpclient.Client
	stream      *http.Client
	info        *APIInfo
}

// Connect resolves the space host and loads its API description.
func Connect(ctx context.Context, spaceID string, opts Options) (*Client, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, observability.SpanGradioConnect,
		trace.WithAttributes(attribute.String(observability.AttrSpaceID, spaceID)))
	defer span.End()

	hub := opts.Hub
	if hub == nil {
		hub = hf.NewClient(hf.Options{})
	}

	host := strings.TrimRight(opts.Host, "/")
	if host == "" {
		var err error
		host, err = hub.SpaceHost(ctx, spaceID)
		if err != nil {
			observability.RecordError(span, err)
			return nil, err
		}
	}

	c := &Client{
		spaceID:     spaceID,
		host:        host,
		sessionHash: strings.ReplaceAll(uuid.NewString(), "-", "")[:11],
		token:       hub.Token(),
		http:        hub.HTTP(),
		// Streams stay open as long as the space computes; only the
		// context bounds them.
		stream: &http.Client{Transport: hub.HTTP().HTTPClient().Transport},
	}

	if err := c.loadInfo(ctx); err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("failed to load API info for %s: %w", spaceID, err)
	}

	slog.Debug("Connected to gradio space", "space", spaceID, "host", host, "endpoints", len(c.info.NamedEndpoints))
	return c, nil
}

// loadInfo tries the Gradio 5 route first and falls back to the legacy one.
func (c *Client) loadInfo(ctx context.Context) error {
	var lastErr error
	for _, prefix := range []string{"/gradio_api", ""} {
		info, err := c.fetchInfo(ctx, c.host+prefix+"/info")
		if err == nil {
			c.apiPrefix = prefix
			c.info = info
			for name, ep := range info.NamedEndpoints {
				if ep != nil {
					ep.Name = name
				}
			}
			return nil
		}
		lastErr = err
	}
	return lastErr
}

func (c *Client) fetchInfo(ctx context.Context, infoURL string) (*APIInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, infoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if err := httpclient.CheckResponse(resp); err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var info APIInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode API info: %w", err)
	}
	return &info, nil
}

// authorize attaches the hub token to requests bound for the space host.
// File URLs returned by a space may point anywhere and never get it.
func (c *Client) authorize(req *http.Request) {
	if c.token == "" || !c.isSpaceHost(req.URL) {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
}

func (c *Client) isSpaceHost(u *url.URL) bool {
	host, err := url.Parse(c.host)
	if err != nil || u == nil {
		return false
	}
	return strings.EqualFold(host.Scheme, u.Scheme) && strings.EqualFold(host.Host, u.Host)
}

func (c *Client) SpaceID() string { return c.spaceID }

func (c *Client) Host() string { return c.host }

// APIInfo returns the API description loaded by Connect.
func (c *Client) APIInfo() *APIInfo { return c.info }

// EndpointNames returns the named endpoints in sorted order.
func (c *Client) EndpointNames() []string {
	names := make([]string, 0, len(c.info.NamedEndpoints))
	for name := range c.info.NamedEndpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Endpoint returns the named endpoint. An empty name selects /predict when
// present and the first endpoint otherwise.
func (c *Client) Endpoint(name string) (*Endpoint, error) {
	if len(c.info.NamedEndpoints) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoEndpoints, c.spaceID)
	}
	if name == "" {
		if ep, ok := c.info.NamedEndpoints["/predict"]; ok && ep != nil {
			return ep, nil
		}
		return c.info.NamedEndpoints[c.EndpointNames()[0]], nil
	}
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	ep, ok := c.info.NamedEndpoints[name]
	if !ok || ep == nil {
		return nil, fmt.Errorf("%w: %s%s (available: %s)", ErrEndpointNotFound, c.spaceID, name, strings.Join(c.EndpointNames(), ", "))
	}
	return ep, nil
}

// FileURL returns a URL from which fd can be downloaded.
func (c *Client) FileURL(fd *FileData) string {
	if fd.URL != "" {
		return fd.URL
	}
	return c.host + c.apiPrefix + "/file=" + fd.Path
}
