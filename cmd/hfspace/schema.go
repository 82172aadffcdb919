// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/kadirpekel/hfspace/pkg/config"
)

// SchemaCmd writes the JSON Schema of the config file to stdout.
type SchemaCmd struct {
	Compact bool `help:"Compact JSON output (no indentation)."`
}

func (c *SchemaCmd) Run(cli *CLI) error {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	schema := reflector.Reflect(&config.Config{})
	schema.Title = "hfspace configuration"
	schema.Description = "Agents, MCP servers and the mcp-hfspace server"
	schema.Version = "http://json-schema.org/draft-07/schema#"
	schema.Examples = []any{
		map[string]any{
			"default_model": "sonnet",
			"mcp": map[string]any{
				"servers": map[string]any{
					config.HFSpaceServerName: map[string]any{
						"transport": config.TransportStdio,
						"command":   "hfspace",
						"args":      []string{"serve"},
					},
				},
			},
			"hfspace": map[string]any{
				"spaces":   []string{"black-forest-labs/FLUX.1-schnell", "hf-audio/whisper-large-v3"},
				"work_dir": "./files",
			},
		},
	}

	enc := json.NewEncoder(cli.stdout())
	if !c.Compact {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(schema); err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	return nil
}
