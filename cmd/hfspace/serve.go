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
	"fmt"
	"log/slog"

	"github.com/kadirpekel/hfspace/pkg/config"
	"github.com/kadirpekel/hfspace/pkg/hfspace"
	"github.com/kadirpekel/hfspace/pkg/observability"
)

// ServeCmd runs the mcp-hfspace MCP server.
type ServeCmd struct {
	Transport string   `help:"Transport: stdio or http." default:"stdio" enum:"stdio,http"`
	Addr      string   `help:"Listen address for the http transport." default:"localhost:8080"`
	Spaces    []string `help:"Spaces to expose (owner/space or owner/space/endpoint). Overrides the config." sep:","`
	WorkDir   string   `name:"work-dir" help:"Directory file arguments are resolved in. Overrides the config." type:"path"`
	HFToken   string   `name:"hf-token" help:"Hugging Face token." env:"HF_TOKEN"`
	Watch     bool     `help:"Watch the config file and add or remove space tools when hfspace.spaces changes."`
}

func (c *ServeCmd) Run(cli *CLI, ctx context.Context) error {
	var srv *hfspace.Server
	cfg, loader, err := cli.openConfig(ctx, config.ZeroConfig{}, config.WithOnChange(func(cfg *config.Config) {
		syncSpaces(ctx, srv, cfg)
	}))
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}

	hfCfg := cfg.HFSpace
	if len(c.Spaces) > 0 {
		hfCfg.Spaces = c.Spaces
	}
	if c.WorkDir != "" {
		hfCfg.WorkDir = c.WorkDir
	}
	if c.HFToken != "" {
		hfCfg.HFToken = c.HFToken
	}

	// Traces go to stderr; stdout carries MCP messages in stdio mode.
	obsCfg := cfg.Observability
	if c.Transport == config.TransportHTTP {
		// served on the MCP listener instead
		obsCfg.Metrics.Addr = ""
	}
	obs := observability.NewManager(obsCfg, observability.WithServiceName(hfspace.ServerName), observability.WithServiceVersion(version()))
	if err := obs.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Observability shutdown failed", "error", err)
		}
	}()

	srv, err = hfspace.NewServer(ctx, hfCfg)
	if err != nil {
		return err
	}
	defer srv.Close()

	if c.Watch {
		switch {
		case loader == nil:
			slog.Warn("Nothing to watch: no config file loaded")
		case len(c.Spaces) > 0:
			slog.Warn("Not watching config: --spaces overrides hfspace.spaces")
		default:
			go func() {
				if err := loader.Watch(ctx); err != nil && ctx.Err() == nil {
					slog.Error("Config watch error", "error", err)
				}
			}()
		}
	}

	switch c.Transport {
	case config.TransportHTTP:
		return srv.ServeHTTP(ctx, c.Addr)
	default:
		slog.Info("Serving MCP over stdio", "tools", srv.SpaceTools())
		return srv.ServeStdio(ctx)
	}
}

// syncSpaces applies a reloaded hfspace.spaces list to a running server.
func syncSpaces(ctx context.Context, srv *hfspace.Server, cfg *config.Config) {
	if srv == nil {
		return
	}
	added, removed := srv.SyncSpaces(ctx, cfg.HFSpace.Spaces)
	if len(added) > 0 || len(removed) > 0 {
		slog.Info("Space tools updated", "added", added, "removed", removed, "tools", srv.SpaceTools())
	}
}
