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
	"strings"

	"github.com/kadirpekel/hfspace/pkg/config"
	"github.com/kadirpekel/hfspace/pkg/hf"
)

// SearchCmd prints the spaces matching a semantic query.
type SearchCmd struct {
	Query []string `arg:"" help:"Search terms."`
	Limit int      `short:"n" help:"Maximum number of results." default:"10"`
}

func (c *SearchCmd) Run(cli *CLI, ctx context.Context) error {
	cfg, err := cli.loadConfig(ctx, config.ZeroConfig{})
	if err != nil {
		return err
	}

	hub := hf.NewClient(hf.OptionsFromConfig(cfg.HFSpace))
	results, err := hub.SemanticSearch(ctx, strings.Join(c.Query, " "), c.Limit)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.stdout(), hf.FormatSearchResults(results))
	return nil
}
