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

// Package tool defines the tools agents can invoke.
//
// A Toolset groups the tools of one source, typically an MCP server:
//
//	toolset, _ := mcptoolset.New(mcptoolset.Config{Name: "mcp_hfspace", ...})
//	tools, _ := toolset.Tools(ctx)
package tool

import (
	"context"
	"fmt"
	"strings"
)

// Tool is a callable capability exposed to a model.
type Tool interface {
	// Name returns the unique name of the tool within its toolset.
	Name() string

	// Description tells the model when to use the tool.
	Description() string

	// Schema returns the JSON schema of the arguments, or nil.
	Schema() map[string]any

	// Call executes the tool. Failures the model should see are reported
	// through Result.IsError; a non-nil error means the call itself failed.
	Call(ctx context.Context, args map[string]any) (*Result, error)
}

// Toolset provides tools from one source.
type Toolset interface {
	Name() string
	Tools(ctx context.Context) ([]Tool, error)
	Close() error
}

type ContentType string

const (
	ContentText     ContentType = "text"
	ContentImage    ContentType = "image"
	ContentAudio    ContentType = "audio"
	ContentResource ContentType = "resource"
)

// Content is one item of a tool result.
type Content struct {
	Type ContentType `json:"type"`
	Text string      `json:"text,omitempty"`

	// Data is base64 encoded for images and audio.
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// Result is the outcome of a tool call.
type Result struct {
	Content []Content `json:"content"`
	IsError bool      `json:"is_error,omitempty"`
}

// TextResult builds a successful text result.
func TextResult(text string) *Result {
	return &Result{Content: []Content{{Type: ContentText, Text: text}}}
}

// ErrorResult builds a failed result with a message for the model.
func ErrorResult(format string, args ...any) *Result {
	return &Result{
		Content: []Content{{Type: ContentText, Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

// Text renders the result as plain text. Binary content is summarized.
func (r *Result) Text() string {
	if r == nil {
		return ""
	}
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		switch c.Type {
		case ContentText:
			parts = append(parts, c.Text)
		case ContentImage, ContentAudio:
			parts = append(parts, fmt.Sprintf("[%s: %s, %d bytes base64]", c.Type, c.MimeType, len(c.Data)))
		case ContentResource:
			if c.Text != "" {
				parts = append(parts, c.Text)
			} else {
				parts = append(parts, fmt.Sprintf("[resource: %s]", c.URI))
			}
		}
	}
	return strings.Join(parts, "\n")
}

// NewToolset groups tools that need no connection, such as function tools.
func NewToolset(name string, tools ...Tool) Toolset {
	return &staticToolset{name: name, tools: tools}
}

type staticToolset struct {
	name  string
	tools []Tool
}

func (s *staticToolset) Name() string { return s.name }

func (s *staticToolset) Tools(context.Context) ([]Tool, error) {
	return append([]Tool(nil), s.tools...), nil
}

func (s *staticToolset) Close() error { return nil }
