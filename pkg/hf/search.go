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

package hf

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/kadirpekel/hfspace/pkg/httpclient"
)

// SearchResult is one space returned by the semantic search API.
type SearchResult struct {
	ID               string      `json:"id"`
	Title            string      `json:"title,omitempty"`
	ShortDescription string      `json:"shortDescription,omitempty"`
	Author           string      `json:"author"`
	AuthorData       *AuthorData `json:"authorData,omitempty"`
	Likes            int         `json:"likes,omitempty"`
	SDK              string      `json:"sdk,omitempty"`
	Score            float64     `json:"semanticRelevancyScore,omitempty"`
}

type AuthorData struct {
	Fullname string `json:"fullname,omitempty"`
}

// SemanticSearch queries the hub for Gradio spaces matching query. An empty
// query returns no results without contacting the hub.
func (c *Client) SemanticSearch(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if query == "" {
		return []SearchResult{}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	endpoint := fmt.Sprintf("%s?q=%s&sdk=gradio", c.searchURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to search for spaces: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	c.Authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search for spaces: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		status := resp.Status
		_ = httpclient.CheckResponse(resp)
		return nil, fmt.Errorf("failed to search for spaces: search request failed: %s", status)
	}
	defer resp.Body.Close()

	var results []SearchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to search for spaces: %w", err)
	}

	out := make([]SearchResult, 0, min(limit, len(results)))
	for _, r := range results {
		if r.SDK != "gradio" {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// FormatSearchResults renders results as a markdown table.
func FormatSearchResults(results []SearchResult) string {
	if len(results) == 0 {
		return "No matching Hugging Face Spaces found. Try a different query."
	}

	var sb strings.Builder
	sb.WriteString("# Search Results for Hugging Face Spaces\n\n")
	sb.WriteString("| Space | Description | Author | ID |\n")
	sb.WriteString("|-------|-------------|--------|----|\n")

	for _, r := range results {
		title := orDefault(r.Title, "Untitled")
		description := orDefault(r.ShortDescription, "No description")
		author := r.Author
		if r.AuthorData != nil && r.AuthorData.Fullname != "" {
			author = r.AuthorData.Fullname
		}
		author = orDefault(author, "Unknown")

		fmt.Fprintf(&sb, "| %s | %s | %s | `%s` |\n",
			escapeMarkdown(title),
			escapeMarkdown(description),
			escapeMarkdown(author),
			escapeMarkdown(r.ID))
	}

	sb.WriteString("\nTo use one of these spaces, you can provide the ID in the format: `owner/space` or `owner/space/endpoint`")
	return sb.String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

var markdownEscaper = strings.NewReplacer("|", `\|`, "\n", " ")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
