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

// Package hf talks to the Hugging Face hub: semantic space search and space
// host resolution.
package hf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kadirpekel/hfspace/pkg/config"
	"github.com/kadirpekel/hfspace/pkg/httpclient"
)

// DefaultSearchLimit is the number of results returned when the caller
// passes a non-positive limit.
const DefaultSearchLimit = 10

// ErrSpaceNotFound is returned when the hub does not know a space.
var ErrSpaceNotFound = errors.New("space not found")

// Options configures a Client.
type Options struct {
	SearchURL string
	HubURL    string
	Token     string

	Timeout    time.Duration
	MaxRetries int

	// HTTP overrides the retrying client built from Timeout and MaxRetries.
	HTTP *httpclient.Client
}

// OptionsFromConfig maps the hfspace config section onto Options.
func OptionsFromConfig(cfg config.HFSpaceConfig) Options {
	return Options{
		SearchURL:  cfg.SearchURL,
		HubURL:     cfg.HubURL,
		Token:      cfg.HFToken,
		Timeout:    cfg.RequestTimeout,
		MaxRetries: cfg.MaxRetries,
	}
}

// Client is a Hugging Face hub client.
type Client struct {
	searchURL string
	hubURL    string
	token     string
	http      *httpclient.Client
}

func NewClient(opts Options) *Client {
	if opts.SearchURL == "" {
		opts.SearchURL = config.DefaultSearchURL
	}
	if opts.HubURL == "" {
		opts.HubURL = config.DefaultHubURL
	}
	hc := opts.HTTP
	if hc == nil {
		var httpOpts []httpclient.Option
		if opts.Timeout > 0 {
			httpOpts = append(httpOpts, httpclient.WithTimeout(opts.Timeout))
		}
		if opts.MaxRetries > 0 {
			httpOpts = append(httpOpts, httpclient.WithMaxRetries(opts.MaxRetries))
		}
		hc = httpclient.New(httpOpts...)
	}
	return &Client{
		searchURL: opts.SearchURL,
		hubURL:    strings.TrimRight(opts.HubURL, "/"),
		token:     opts.Token,
		http:      hc,
	}
}

// HTTP returns the retrying client, shared with the Gradio client.
func (c *Client) HTTP() *httpclient.Client {
	return c.http
}

// Token returns the configured access token.
func (c *Client) Token() string {
	return c.token
}

// Authorize sets the bearer token on req when one is configured.
func (c *Client) Authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// SpaceHost resolves the runtime host of a space, e.g.
// https://hf-audio-whisper-large-v3.hf.space.
func (c *Client) SpaceHost(ctx context.Context, spaceID string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/spaces/%s/host", c.hubURL, spaceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	c.Authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to resolve space %s: %w", spaceID, err)
	}
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return "", fmt.Errorf("%w: %s", ErrSpaceNotFound, spaceID)
	}
	if err := httpclient.CheckResponse(resp); err != nil {
		return "", fmt.Errorf("failed to resolve space %s: %w", spaceID, err)
	}
	defer resp.Body.Close()

	var body struct {
		Host      string `json:"host"`
		Subdomain string `json:"subdomain"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode space host: %w", err)
	}
	if body.Host == "" && body.Subdomain != "" {
		body.Host = "https://" + body.Subdomain + ".hf.space"
	}
	if body.Host == "" {
		return "", fmt.Errorf("%w: %s has no host", ErrSpaceNotFound, spaceID)
	}
	if _, err := url.Parse(body.Host); err != nil {
		return "", fmt.Errorf("invalid host for space %s: %w", spaceID, err)
	}
	return strings.TrimRight(body.Host, "/"), nil
}
