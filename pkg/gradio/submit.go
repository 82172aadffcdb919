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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/hfspace/pkg/httpclient"
	"github.com/kadirpekel/hfspace/pkg/observability"
)

const maxEventSize = 16 << 20

// Submit calls endpoint with data and streams its progress. Local FileRef
// values in data are uploaded first. The channel closes after a data or
// error event, or when ctx is done.
func (c *Client) Submit(ctx context.Context, endpoint string, data []any) (<-chan Event, error) {
	ep, err := c.Endpoint(endpoint)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, observability.SpanGradioSubmit,
		trace.WithAttributes(
			attribute.String(observability.AttrSpaceID, c.spaceID),
			attribute.String(observability.AttrSpaceEndpoint, ep.Name),
		))

	resolved, err := c.resolveFiles(ctx, data)
	if err != nil {
		span.RecordError(err)
		span.End()
		return nil, err
	}

	eventID, err := c.startCall(ctx, ep.Name, resolved)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, err
	}
	span.SetAttributes(attribute.String("gradio.event_id", eventID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.callURL(ep.Name)+"/"+eventID, nil)
	if err != nil {
		span.End()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)

	resp, err := c.stream.Do(req)
	if err != nil {
		span.RecordError(err)
		span.End()
		return nil, fmt.Errorf("failed to connect to event stream: %w", err)
	}
	if err := httpclient.CheckResponse(resp); err != nil {
		span.RecordError(err)
		span.End()
		return nil, fmt.Errorf("event stream failed: %w", err)
	}

	events := make(chan Event, 10)
	go func() {
		defer span.End()
		c.parseEventStream(ctx, resp, ep.Name, eventID, events, span)
		c.recordDuration(ctx, ep.Name, time.Since(start))
	}()
	return events, nil
}

// recordDuration reports how long a prediction took from upload to its
// final event.
func (c *Client) recordDuration(ctx context.Context, endpoint string, d time.Duration) {
	hist, err := otel.Meter(tracerName).Float64Histogram(observability.MetricGradioPredictionDuration,
		metric.WithDescription("Duration of Gradio predictions"),
		metric.WithUnit("s"))
	if err != nil {
		slog.Debug("Failed to create prediction histogram", "error", err)
		return
	}
	hist.Record(context.WithoutCancel(ctx), d.Seconds(), metric.WithAttributes(
		attribute.String(observability.AttrSpaceID, c.spaceID),
		attribute.String(observability.AttrSpaceEndpoint, endpoint),
	))
}

// Predict submits data and waits for the result.
func (c *Client) Predict(ctx context.Context, endpoint string, data []any) ([]any, error) {
	events, err := c.Submit(ctx, endpoint, data)
	if err != nil {
		return nil, err
	}
	for ev := range events {
		switch ev.Type {
		case EventData:
			return ev.Data, nil
		case EventError:
			return nil, fmt.Errorf("%w: %s", ErrPrediction, ev.Message)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, ErrNoResult
}

func (c *Client) callURL(endpoint string) string {
	return c.host + c.apiPrefix + "/call/" + strings.TrimPrefix(endpoint, "/")
}

func (c *Client) startCall(ctx context.Context, endpoint string, data []any) (string, error) {
	if data == nil {
		data = []any{}
	}
	body, err := json.Marshal(map[string]any{
		"data":         data,
		"session_hash": c.sessionHash,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.callURL(endpoint), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call %s%s: %w", c.spaceID, endpoint, err)
	}
	if err := httpclient.CheckResponse(resp); err != nil {
		return "", fmt.Errorf("failed to call %s%s: %w", c.spaceID, endpoint, err)
	}
	defer resp.Body.Close()

	var out struct {
		EventID string `json:"event_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode call response: %w", err)
	}
	if out.EventID == "" {
		return "", fmt.Errorf("call to %s%s returned no event_id", c.spaceID, endpoint)
	}
	return out.EventID, nil
}

// parseEventStream reads "event:"/"data:" pairs until a terminal event.
func (c *Client) parseEventStream(ctx context.Context, resp *http.Response, endpoint, eventID string, events chan<- Event, span trace.Span) {
	defer close(events)
	defer resp.Body.Close()

	send := func(ev Event) bool {
		ev.Endpoint = endpoint
		ev.EventID = eventID
		ev.Time = time.Now()
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !send(Event{Type: EventStatus, Stage: StagePending}) {
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var eventType, eventData string
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		case strings.HasPrefix(line, "data:"):
			chunk := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if eventData != "" {
				eventData += "\n"
			}
			eventData += chunk
			continue
		case line != "" || eventType == "":
			continue
		}

		typ, payload := eventType, eventData
		eventType, eventData = "", ""

		switch typ {
		case StageHeartbeat:
			if !send(Event{Type: EventStatus, Stage: StageHeartbeat}) {
				return
			}
		case StageGenerating:
			var data []any
			_ = json.Unmarshal([]byte(payload), &data)
			if !send(Event{Type: EventStatus, Stage: StageGenerating, Data: data}) {
				return
			}
		case StageComplete:
			var data []any
			if err := json.Unmarshal([]byte(payload), &data); err != nil {
				span.RecordError(err)
				send(Event{Type: EventError, Stage: StageError, Message: fmt.Sprintf("invalid result payload: %v", err)})
				return
			}
			send(Event{Type: EventData, Stage: StageComplete, Data: data})
			return
		case StageError:
			msg := errorMessage(payload)
			span.SetStatus(codes.Error, msg)
			send(Event{Type: EventError, Stage: StageError, Message: msg})
			return
		default:
			slog.Debug("Ignoring gradio event", "event", typ, "endpoint", endpoint)
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		span.RecordError(err)
		send(Event{Type: EventError, Stage: StageError, Message: fmt.Sprintf("event stream interrupted: %v", err)})
	}
}

// errorMessage extracts a readable message from an error event payload,
// which may be null, a JSON string or an object.
func errorMessage(payload string) string {
	if payload == "" || payload == "null" {
		return "the space reported an error without details"
	}
	var s string
	if err := json.Unmarshal([]byte(payload), &s); err == nil {
		return s
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(payload), &obj); err == nil {
		for _, key := range []string{"error", "message", "detail"} {
			if v, ok := obj[key].(string); ok && v != "" {
				return v
			}
		}
	}
	return payload
}

// resolveFiles replaces FileRef values with FileData, uploading local files.
func (c *Client) resolveFiles(ctx context.Context, data []any) ([]any, error) {
	out := make([]any, len(data))
	for i, v := range data {
		resolved, err := c.resolveValue(ctx, v)
		if err != nil {
			return nil, err
		}
		out[i] = resolved
	}
	return out, nil
}

func (c *Client) resolveValue(ctx context.Context, v any) (any, error) {
	switch val := v.(type) {
	case FileRef:
		if val.isURL() {
			fd := newFileData(val.Path)
			fd.URL = val.Path
			fd.OrigName = path.Base(val.Path)
			return fd, nil
		}
		return c.Upload(ctx, val.Path)
	case *FileRef:
		return c.resolveValue(ctx, *val)
	case []any:
		return c.resolveFiles(ctx, val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			resolved, err := c.resolveValue(ctx, item)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}
