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
	"time"

	"github.com/kadirpekel/hfspace/pkg/app"
	"github.com/kadirpekel/hfspace/pkg/config"
	"github.com/kadirpekel/hfspace/pkg/observability"
)

const shutdownTimeout = 5 * time.Second

// AgentCmd runs the demo agent wired to the mcp_hfspace server. Without
// --message it starts an interactive session.
type AgentCmd struct {
	Name        string   `help:"Application name." default:"fast-agent example"`
	Agent       string   `help:"Agent name." default:"default"`
	Model       string   `help:"Model (passthrough, haiku, sonnet, opus or anthropic.<id>). Defaults to default_model from config."`
	Instruction string   `help:"System instruction for the agent." default:"You are a helpful AI Agent."`
	Servers     []string `help:"MCP servers the agent may use." default:"mcp_hfspace" sep:","`
	Message     string   `short:"m" help:"Send one message, print the reply and exit."`

	// Zero-config options for the bundled server.
	Spaces  []string `help:"Spaces exposed by the bundled server when no config file exists." sep:","`
	WorkDir string   `name:"work-dir" help:"Working directory of the bundled server when no config file exists." type:"path"`
}

func (c *AgentCmd) Run(cli *CLI, ctx context.Context) error {
	cfg, err := cli.loadConfig(ctx, config.ZeroConfig{
		Model:   c.Model,
		Spaces:  c.Spaces,
		WorkDir: c.WorkDir,
	})
	if err != nil {
		return err
	}

	obs := observability.NewManager(cfg.Observability, observability.WithServiceVersion(version()))
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

	opts := append([]app.Option{
		app.WithConfig(cfg),
		app.WithIO(cli.stdin(), cli.stdout()),
	}, cli.appOptions...)
	fast, err := app.New(c.Name, opts...)
	if err != nil {
		return err
	}

	var fn app.AgentFunc
	if c.Message != "" {
		fn = func(ctx context.Context, a *app.AgentApp) error {
			reply, err := a.Send(ctx, c.Message)
			if err != nil {
				return err
			}
			fmt.Fprintln(cli.stdout(), reply)
			return nil
		}
	}

	err = fast.Agent(fn,
		app.Name(c.Agent),
		app.Instruction(c.Instruction),
		app.Servers(c.Servers...),
		app.Model(c.Model),
	)
	if err != nil {
		return err
	}
	return fast.Main(ctx, c.Agent)
}
