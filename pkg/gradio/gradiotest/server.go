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

// Package gradiotest provides an in-memory Hugging Face hub and Gradio app
// for tests.
package gradiotest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// SSEEvent is one scripted server-sent event.
type SSEEvent struct {
	Event string
	Data  string
}

// Complete builds a terminal event carrying data.
func Complete(data ...any) SSEEvent {
	b, _ := json.Marshal(data)
	return SSEEvent{Event: "complete", Data: string(b)}
}

// Error builds a terminal error event.
func Error(msg string) SSEEvent {
	b, _ := json.Marshal(msg)
	return SSEEvent{Event: "error", Data: string(b)}
}

// Endpoint is a scripted named endpoint.
type Endpoint struct {
	Parameters []map[string]any
	Returns    []map[string]any

	// Respond computes the events for one call from its data.
	Respond func(data []any) []SSEEvent
}

// Call records one POST to a call route.
type Call struct {
	Endpoint string
	Data     []any
}

// Server serves the hub host route, the app info route, calls, uploads and
// files. Every space ID resolves to this server.
type Server struct {
	*httptest.Server

	endpoints map[string]Endpoint
	legacy    bool

	mu      sync.Mutex
	calls   []Call
	uploads []string
	files   map[string][]byte
	pending map[string][]any
	nextID  int
}

// Option configures New.
type Option func(*Server)

// WithLegacyRoutes serves the API without the /gradio_api prefix, like
// Gradio 4 apps.
func WithLegacyRoutes() Option {
	return func(s *Server) { s.legacy = true }
}

// New starts a server exposing endpoints, keyed by name with leading slash.
func New(t testing.TB, endpoints map[string]Endpoint, opts ...Option) *Server {
	t.Helper()
	s := &Server{
		endpoints: endpoints,
		files:     map[string][]byte{},
		pending:   map[string][]any{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Calls returns the recorded calls.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// AddFile serves content under /file=<path>.
func (s *Server) AddFile(path string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = content
}

// Uploads returns the names of uploaded files.
func (s *Server) Uploads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.uploads...)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Path

	if strings.HasPrefix(p, "/api/spaces/") && strings.HasSuffix(p, "/host") {
		writeJSON(w, map[string]string{"host": s.URL})
		return
	}

	prefix := "/gradio_api"
	if s.legacy {
		prefix = ""
	}
	if !strings.HasPrefix(p, prefix+"/") {
		http.NotFound(w, r)
		return
	}
	p = strings.TrimPrefix(p, prefix)

	switch {
	case p == "/info" && r.Method == http.MethodGet:
		s.handleInfo(w)
	case p == "/upload" && r.Method == http.MethodPost:
		s.handleUpload(w, r)
	case strings.HasPrefix(p, "/file="):
		s.mu.Lock()
		content, ok := s.files[strings.TrimPrefix(p, "/file=")]
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(content)
	case strings.HasPrefix(p, "/call/"):
		rest := strings.TrimPrefix(p, "/call/")
		if name, eventID, ok := strings.Cut(rest, "/"); ok && r.Method == http.MethodGet {
			s.handleStream(w, "/"+name, eventID)
			return
		}
		if r.Method == http.MethodPost {
			s.handleCall(w, r, "/"+rest)
			return
		}
		http.NotFound(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleInfo(w http.ResponseWriter) {
	named := map[string]any{}
	for name, ep := range s.endpoints {
		params := ep.Parameters
		if params == nil {
			params = []map[string]any{}
		}
		returns := ep.Returns
		if returns == nil {
			returns = []map[string]any{}
		}
		named[name] = map[string]any{"parameters": params, "returns": returns}
	}
	writeJSON(w, map[string]any{"named_endpoints": named, "unnamed_endpoints": map[string]any{}})
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request, name string) {
	if _, ok := s.endpoints[name]; !ok {
		http.Error(w, "unknown endpoint", http.StatusNotFound)
		return
	}
	var body struct {
		Data []any `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	s.mu.Lock()
	s.nextID++
	id := fmt.Sprintf("evt-%d", s.nextID)
	s.pending[id] = body.Data
	s.calls = append(s.calls, Call{Endpoint: name, Data: body.Data})
	s.mu.Unlock()

	writeJSON(w, map[string]string{"event_id": id})
}

func (s *Server) handleStream(w http.ResponseWriter, name, eventID string) {
	s.mu.Lock()
	data, ok := s.pending[eventID]
	delete(s.pending, eventID)
	s.mu.Unlock()
	ep, known := s.endpoints[name]
	if !ok || !known {
		http.NotFound(w, nil)
		return
	}

	events := []SSEEvent{Complete(data...)}
	if ep.Respond != nil {
		events = ep.Respond(data)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)
	for _, ev := range events {
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Event, ev.Data)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var paths []string
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		content, _ := io.ReadAll(f)
		f.Close()

		path := "/tmp/gradio/" + fh.Filename
		s.mu.Lock()
		s.uploads = append(s.uploads, fh.Filename)
		s.files[path] = content
		s.mu.Unlock()
		paths = append(paths, path)
	}
	writeJSON(w, paths)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
