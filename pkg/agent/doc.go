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

// Package agent runs the tool-calling loop of a single agent.
//
// An Agent pairs an instruction with an llms.Provider and the tools of
// the MCP servers it was given. Tool names are namespaced by server so
// that tools with the same name on different servers stay distinct:
//
//	mcp_hfspace-search-spaces
//
// Send appends the user message, asks the model for a turn, executes any
// tool calls it requested and repeats until the model answers without
// calling tools or MaxIterations turns have been spent.
package agent
