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

// Package functiontool builds tools from typed Go functions. The argument
// schema is generated from the struct tags of Args:
//
//	type SaveArgs struct {
//	    Name string `json:"name" jsonschema:"required,description=File name"`
//	}
//
//	save, err := functiontool.New(
//	    functiontool.Config{Name: "save_note", Description: "Save a note"},
//	    func(ctx context.Context, args SaveArgs) (string, error) { ... },
//	)
package functiontool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/kadirpekel/hfspace/pkg/tool"
)

type Config struct {
	// Name is the tool name shown to the model.
	Name string

	// Description tells the model when to use the tool.
	Description string
}

// Func is the body of a function tool. A returned error is reported to the
// model as a failed result.
type Func[Args any] func(ctx context.Context, args Args) (string, error)

// New creates a tool from fn.
func New[Args any](cfg Config, fn Func[Args]) (tool.Tool, error) {
	if cfg.Name == "" {
		return nil, errors.New("tool name is required")
	}
	if cfg.Description == "" {
		return nil, errors.New("tool description is required")
	}
	if fn == nil {
		return nil, errors.New("tool function is required")
	}

	schema, err := generateSchema[Args]()
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for %s: %w", cfg.Name, err)
	}
	return &functionTool[Args]{cfg: cfg, fn: fn, schema: schema}, nil
}

type functionTool[Args any] struct {
	cfg    Config
	fn     Func[Args]
	schema map[string]any
}

func (t *functionTool[Args]) Name() string           { return t.cfg.Name }
func (t *functionTool[Args]) Description() string    { return t.cfg.Description }
func (t *functionTool[Args]) Schema() map[string]any { return t.schema }

func (t *functionTool[Args]) Call(ctx context.Context, args map[string]any) (*tool.Result, error) {
	var typed Args
	if err := decodeArgs(args, &typed); err != nil {
		return tool.ErrorResult("invalid arguments for %s: %v", t.cfg.Name, err), nil
	}

	out, err := t.fn(ctx, typed)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return tool.ErrorResult("%v", err), nil
	}
	return tool.TextResult(out), nil
}

// generateSchema reflects Args into an inline object schema. Fields are
// required only when tagged jsonschema:"required".
func generateSchema[T any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}

	data, err := json.Marshal(reflector.Reflect(new(T)))
	if err != nil {
		return nil, err
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, err
	}
	delete(schema, "$schema")
	delete(schema, "$id")

	if schema["type"] != "object" {
		return nil, fmt.Errorf("arguments must be a struct, got %v", schema["type"])
	}
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]any{}
	}
	return schema, nil
}

func decodeArgs(args map[string]any, target any) error {
	if len(args) == 0 {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

var _ tool.Tool = (*functionTool[struct{}])(nil)
