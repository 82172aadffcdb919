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

// Command hfspace runs agents backed by Hugging Face Spaces and serves the
// mcp-hfspace MCP server.
//
// Usage:
//
//	hfspace                                # interactive demo agent
//	hfspace agent -m "find a text to speech space"
//	hfspace serve --transport http --spaces black-forest-labs/FLUX.1-schnell
//	hfspace call hf-audio/whisper-large-v3 sample.wav
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/hfspace/pkg/app"
	"github.com/kadirpekel/hfspace/pkg/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Agent    AgentCmd    `cmd:"" default:"withargs" help:"Run the demo agent (default)."`
	Serve    ServeCmd    `cmd:"" help:"Serve Hugging Face Spaces as MCP tools."`
	Search   SearchCmd   `cmd:"" help:"Search Hugging Face Spaces."`
	Call     CallCmd     `cmd:"" help:"Call a Gradio space endpoint."`
	Validate ValidateCmd `cmd:"" help:"Validate configuration file."`
	Schema   SchemaCmd   `cmd:"" help:"Generate JSON Schema for the config file."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)."`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose, or custom)."`

	out      io.Writer
	in       io.Reader
	cleanups []func()

	// appOptions are added to every app built by the agent command.
	appOptions []app.Option
}

func (cli *CLI) stdout() io.Writer {
	if cli.out == nil {
		return os.Stdout
	}
	return cli.out
}

func (cli *CLI) stdin() io.Reader {
	if cli.in == nil {
		return os.Stdin
	}
	return cli.in
}

// loadConfig loads --config, then a config file found from the working
// directory, then falls back to zero config.
func (cli *CLI) loadConfig(ctx context.Context, zero config.ZeroConfig) (*config.Config, error) {
	cfg, loader, err := cli.openConfig(ctx, zero)
	if loader != nil {
		loader.Close()
	}
	return cfg, err
}

// openConfig is loadConfig keeping the loader for watching. The loader is
// nil under zero config; the caller closes it otherwise.
func (cli *CLI) openConfig(ctx context.Context, zero config.ZeroConfig, opts ...config.LoaderOption) (*config.Config, *config.Loader, error) {
	path := cli.Config
	if path == "" {
		path = config.FindConfigFile(".")
	}
	if path == "" {
		slog.Debug("No config file found, using zero config")
		return config.CreateZeroConfig(zero), nil, nil
	}

	config.LoadDotEnvForConfig(path)
	cfg, loader, err := config.LoadConfigFile(ctx, path, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	cleanup, err := cli.initLoggerFromConfig(cfg.Logger)
	if err != nil {
		loader.Close()
		return nil, nil, err
	}
	if cleanup != nil {
		cli.cleanups = append(cli.cleanups, cleanup)
	}
	slog.Info("Loaded configuration", "path", path)
	return cfg, loader, nil
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(cli *CLI) error {
	fmt.Fprintf(cli.stdout(), "hfspace version %s\n", version())
	return nil
}

func version() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			return info.Main.Version
		}
	}
	return "dev"
}

func newParser(cli *CLI, opts ...kong.Option) (*kong.Kong, error) {
	return kong.New(cli, append([]kong.Option{
		kong.Name("hfspace"),
		kong.Description("Agents and MCP tools backed by Hugging Face Spaces"),
		kong.UsageOnError(),
	}, opts...)...)
}

func main() {
	config.LoadDotEnv()

	cli := CLI{}
	parser, err := newParser(&cli)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	cleanup, err := initLoggerFromCLI(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kctx.BindTo(ctx, (*context.Context)(nil))
	err = kctx.Run(&cli)
	for _, fn := range cli.cleanups {
		fn()
	}
	kctx.FatalIfErrorf(err)
}
