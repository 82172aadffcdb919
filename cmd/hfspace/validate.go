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
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/hfspace/pkg/config"
)

// ValidateCmd validates a configuration file.
type ValidateCmd struct {
	Path        string `arg:"" optional:"" name:"config" help:"Configuration file path. Defaults to --config or the file found from the working directory." placeholder:"PATH"`
	Format      string `short:"f" help:"Output format: compact, verbose, json." default:"compact" enum:"compact,verbose,json"`
	PrintConfig bool   `short:"p" name:"print-config" help:"Print the expanded configuration (defaults applied, env vars resolved)."`
}

var errInvalidConfig = errors.New("config validation failed")

func (c *ValidateCmd) Run(cli *CLI, ctx context.Context) error {
	file := c.Path
	if file == "" {
		file = cli.Config
	}
	if file == "" {
		file = config.FindConfigFile(".")
	}
	if file == "" {
		return errors.New("no config file found, pass one with --config")
	}

	config.LoadDotEnvForConfig(file)
	cfg, loader, err := config.LoadConfigFile(ctx, file)
	if err != nil {
		printValidation(cli.stdout(), c.Format, file, err)
		return errInvalidConfig
	}
	loader.Close()

	if c.PrintConfig {
		return printExpandedConfig(cli.stdout(), c.Format, file, cfg)
	}
	printValidation(cli.stdout(), c.Format, file, nil)
	return nil
}

type validationResult struct {
	Valid bool   `json:"valid"`
	File  string `json:"file"`
	Error string `json:"error,omitempty"`
}

func printValidation(w io.Writer, format, file string, err error) {
	switch format {
	case "json":
		res := validationResult{Valid: err == nil, File: file}
		if err != nil {
			res.Error = err.Error()
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(res); encErr != nil {
			fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", encErr)
		}
	case "verbose":
		if err != nil {
			fmt.Fprintf(w, "Configuration Validation Failed\n")
			fmt.Fprintf(w, "===============================\n\n")
			fmt.Fprintf(w, "File:    %s\n", file)
			fmt.Fprintf(w, "Error:   %s\n", err)
			return
		}
		fmt.Fprintf(w, "Configuration Validation Successful\n")
		fmt.Fprintf(w, "===================================\n\n")
		fmt.Fprintf(w, "File:   %s\n", file)
		fmt.Fprintf(w, "Status: OK Valid\n")
	default:
		if err != nil {
			fmt.Fprintf(w, "%s: %s\n", file, err)
			return
		}
		fmt.Fprintf(w, "%s: valid\n", file)
	}
}

func printExpandedConfig(w io.Writer, format, file string, cfg *config.Config) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config as JSON: %w", err)
		}
		return nil
	}

	fmt.Fprintf(w, "# Expanded configuration from: %s\n\n", file)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config as YAML: %w", err)
	}
	return enc.Close()
}
