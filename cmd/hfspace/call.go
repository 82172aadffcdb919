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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/kadirpekel/hfspace/pkg/config"
	"github.com/kadirpekel/hfspace/pkg/gradio"
	"github.com/kadirpekel/hfspace/pkg/hf"
)

// CallCmd submits one job to a space endpoint and streams its progress.
// Files fill the file inputs in order; other inputs come from --param or
// their defaults.
type CallCmd struct {
	Space  string            `arg:"" help:"Space spec: owner/space or owner/space/endpoint."`
	Files  []string          `arg:"" optional:"" help:"Local files or URLs for the file inputs."`
	Params map[string]string `short:"p" name:"param" help:"Input value as name=value. JSON values are decoded."`
	Output string            `short:"o" help:"Save output files to this directory." type:"path"`
}

func (c *CallCmd) Run(cli *CLI, ctx context.Context) error {
	cfg, err := cli.loadConfig(ctx, config.ZeroConfig{})
	if err != nil {
		return err
	}

	spec, err := gradio.ParseSpaceSpec(c.Space)
	if err != nil {
		return err
	}
	client, err := gradio.Connect(ctx, spec.SpaceID, gradio.Options{
		Hub: hf.NewClient(hf.OptionsFromConfig(cfg.HFSpace)),
	})
	if err != nil {
		return err
	}
	ep, err := client.Endpoint(spec.Endpoint)
	if err != nil {
		return err
	}

	data, err := buildCallData(ep, c.Files, c.Params)
	if err != nil {
		return err
	}

	events, err := client.Submit(ctx, ep.Name, data)
	if err != nil {
		return err
	}
	for ev := range events {
		switch ev.Type {
		case gradio.EventStatus:
			fmt.Fprintf(os.Stderr, "%s: %s\n", spec.SpaceID, ev.Stage)
		case gradio.EventError:
			return fmt.Errorf("%w: %s", gradio.ErrPrediction, ev.Message)
		case gradio.EventData:
			return c.printOutputs(ctx, cli.stdout(), client, ev.Data)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return gradio.ErrNoResult
}

func buildCallData(ep *gradio.Endpoint, files []string, params map[string]string) ([]any, error) {
	data := make([]any, len(ep.Parameters))
	next := 0
	for i, p := range ep.Parameters {
		if raw, ok := params[p.Key()]; ok {
			var v any
			if err := json.Unmarshal([]byte(raw), &v); err != nil {
				v = raw
			}
			data[i] = v
			continue
		}
		if p.IsFile() && next < len(files) {
			data[i] = gradio.HandleFile(files[next])
			next++
			continue
		}
		if p.HasDefault {
			data[i] = p.Default
			continue
		}
		return nil, fmt.Errorf("missing value for input %q, pass a file or --param %s=VALUE", p.Key(), p.Key())
	}
	if next < len(files) {
		return nil, fmt.Errorf("endpoint %s takes %d file inputs, got %d files", ep.Name, next, len(files))
	}
	return data, nil
}

func (c *CallCmd) printOutputs(ctx context.Context, w io.Writer, client *gradio.Client, values []any) error {
	for _, v := range values {
		if fd, ok := gradio.AsFileData(v); ok {
			if c.Output == "" {
				fmt.Fprintln(w, client.FileURL(fd))
				continue
			}
			saved, err := c.save(ctx, client, fd)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, saved)
			continue
		}

		switch val := v.(type) {
		case nil:
		case string:
			fmt.Fprintln(w, val)
		default:
			b, err := json.Marshal(val)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, string(b))
		}
	}
	return nil
}

func (c *CallCmd) save(ctx context.Context, client *gradio.Client, fd *gradio.FileData) (string, error) {
	content, _, err := client.Download(ctx, fd)
	if err != nil {
		return "", err
	}
	name := fd.OrigName
	if name == "" {
		name = path.Base(fd.Path)
	}
	if err := os.MkdirAll(c.Output, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(c.Output, filepath.Base(name))
	if err := os.WriteFile(dest, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", dest, err)
	}
	return dest, nil
}
