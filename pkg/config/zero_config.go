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

package config

import "os"

// ZeroConfig are CLI options used when no config file exists.
type ZeroConfig struct {
	// Model overrides DefaultModel.
	Model string

	// Executable is the binary that serves mcp_hfspace over stdio.
	// Defaults to the running executable.
	Executable string

	// Spaces are passed to the bundled server.
	Spaces []string

	// WorkDir is passed to the bundled server.
	WorkDir string
}

// CreateZeroConfig builds a config whose only MCP server is the bundled
// mcp_hfspace server, launched as a stdio subprocess of this binary.
func CreateZeroConfig(opts ZeroConfig) *Config {
	exe := opts.Executable
	if exe == "" {
		if self, err := os.Executable(); err == nil {
			exe = self
		} else {
			exe = "hfspace"
		}
	}

	args := []string{"serve", "--transport", TransportStdio}
	for _, s := range opts.Spaces {
		args = append(args, "--spaces", s)
	}
	if opts.WorkDir != "" {
		args = append(args, "--work-dir", opts.WorkDir)
	}

	cfg := &Config{
		DefaultModel: opts.Model,
		MCP: MCPConfig{
			Servers: map[string]*MCPServerConfig{
				HFSpaceServerName: {
					Transport: TransportStdio,
					Command:   exe,
					Args:      args,
				},
			},
		},
		HFSpace: HFSpaceConfig{
			Spaces:  opts.Spaces,
			WorkDir: opts.WorkDir,
		},
	}
	cfg.SetDefaults()
	return cfg
}
