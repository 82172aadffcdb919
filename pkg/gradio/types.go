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

package gradio

import (
	"fmt"
	"strings"
	"time"
)

// SpaceSpec identifies a space and, optionally, one of its endpoints.
type SpaceSpec struct {
	SpaceID  string
	Endpoint string
}

func (s SpaceSpec) String() string {
	if s.Endpoint == "" {
		return s.SpaceID
	}
	return s.SpaceID + s.Endpoint
}

// ParseSpaceSpec parses "owner/space" or "owner/space/endpoint".
func ParseSpaceSpec(spec string) (SpaceSpec, error) {
	parts := strings.Split(strings.Trim(strings.TrimSpace(spec), "/"), "/")
	for _, p := range parts {
		if p == "" {
			return SpaceSpec{}, fmt.Errorf("invalid space spec %q: empty segment", spec)
		}
	}
	switch len(parts) {
	case 2:
		return SpaceSpec{SpaceID: parts[0] + "/" + parts[1]}, nil
	case 3:
		return SpaceSpec{SpaceID: parts[0] + "/" + parts[1], Endpoint: "/" + parts[2]}, nil
	default:
		return SpaceSpec{}, fmt.Errorf("invalid space spec %q: expected owner/space or owner/space/endpoint", spec)
	}
}

// APIInfo is the response of the /info route.
type APIInfo struct {
	NamedEndpoints   map[string]*Endpoint `json:"named_endpoints"`
	UnnamedEndpoints map[string]*Endpoint `json:"unnamed_endpoints"`
}

// Endpoint describes one named API route of a space.
type Endpoint struct {
	Name       string      `json:"-"`
	Parameters []Parameter `json:"parameters"`
	Returns    []Parameter `json:"returns"`
}

// Parameter describes one input or output of an endpoint.
type Parameter struct {
	Label      string         `json:"label"`
	Name       string         `json:"parameter_name"`
	HasDefault bool           `json:"parameter_has_default"`
	Default    any            `json:"parameter_default"`
	Type       map[string]any `json:"type"`
	PythonType PythonType     `json:"python_type"`
	Component  string         `json:"component"`
	Example    any            `json:"example_input"`
}

type PythonType struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

var fileComponents = map[string]bool{
	"audio":   true,
	"image":   true,
	"video":   true,
	"file":    true,
	"model3d": true,
}

// IsFile reports whether the parameter takes a file.
func (p Parameter) IsFile() bool {
	if fileComponents[strings.ToLower(p.Component)] {
		return true
	}
	return strings.Contains(p.PythonType.Type, "filepath") ||
		strings.Contains(p.PythonType.Type, "FileData")
}

// Key is the parameter name, or the label when the space does not name it.
func (p Parameter) Key() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Label
}

const fileDataType = "gradio.FileData"

// FileData is Gradio's wire representation of a file.
type FileData struct {
	Path     string            `json:"path"`
	URL      string            `json:"url,omitempty"`
	Size     int64             `json:"size,omitempty"`
	OrigName string            `json:"orig_name,omitempty"`
	MimeType string            `json:"mime_type,omitempty"`
	IsStream bool              `json:"is_stream,omitempty"`
	Meta     map[string]string `json:"meta"`
}

func newFileData(path string) *FileData {
	return &FileData{Path: path, Meta: map[string]string{"_type": fileDataType}}
}

// AsFileData converts a decoded JSON value into a FileData when it has the
// shape of one.
func AsFileData(v any) (*FileData, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	path, _ := m["path"].(string)
	url, _ := m["url"].(string)
	if path == "" && url == "" {
		return nil, false
	}
	if meta, ok := m["meta"].(map[string]any); ok {
		if t, _ := meta["_type"].(string); t != "" && t != fileDataType {
			return nil, false
		}
	}
	fd := newFileData(path)
	fd.URL = url
	fd.OrigName, _ = m["orig_name"].(string)
	fd.MimeType, _ = m["mime_type"].(string)
	if size, ok := m["size"].(float64); ok {
		fd.Size = int64(size)
	}
	return fd, true
}

// FileRef marks a local path or remote URL to be sent as a file. Submit
// uploads local paths before calling the endpoint.
type FileRef struct {
	Path string
}

// HandleFile wraps path so Submit treats it as a file input.
func HandleFile(path string) FileRef {
	return FileRef{Path: path}
}

func (f FileRef) isURL() bool {
	return strings.HasPrefix(f.Path, "http://") || strings.HasPrefix(f.Path, "https://")
}

// EventType classifies submission events.
type EventType string

const (
	EventStatus EventType = "status"
	EventData   EventType = "data"
	EventError  EventType = "error"
)

// Stages reported by status events.
const (
	StagePending    = "pending"
	StageGenerating = "generating"
	StageHeartbeat  = "heartbeat"
	StageComplete   = "complete"
	StageError      = "error"
)

// Event is one message of a submission stream.
type Event struct {
	Type     EventType `json:"type"`
	Stage    string    `json:"stage,omitempty"`
	Endpoint string    `json:"endpoint"`
	EventID  string    `json:"event_id,omitempty"`
	Data     []any     `json:"data,omitempty"`
	Message  string    `json:"message,omitempty"`
	Time     time.Time `json:"time"`
}
