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
	"fmt"
	"io"
	"os"

	"github.com/kadirpekel/hfspace/pkg/config"
	"github.com/kadirpekel/hfspace/pkg/logger"
)

const (
	LogFileEnvVar   = "LOG_FILE"
	LogLevelEnvVar  = "LOG_LEVEL"
	LogFormatEnvVar = "LOG_FORMAT"
)

// initLoggerFromCLI initializes the default logger.
// Priority: CLI flags > env vars > defaults.
// Logs never go to stdout, which carries MCP traffic in stdio mode.
func initLoggerFromCLI(cliLogLevel, cliLogFile, cliLogFormat string) (func(), error) {
	logLevel := firstNonEmpty(cliLogLevel, os.Getenv(LogLevelEnvVar), config.DefaultLogLevel)
	logFile := firstNonEmpty(cliLogFile, os.Getenv(LogFileEnvVar))
	logFormat := firstNonEmpty(cliLogFormat, os.Getenv(LogFormatEnvVar), config.DefaultLogFormat)

	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var output io.Writer = os.Stderr
	var cleanup func()
	if logFile != "" {
		file, cleanupFn, err := logger.OpenLogFile(logFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
		cleanup = cleanupFn
	}

	logger.Init(level, output, logFormat)
	return cleanup, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// initLoggerFromConfig applies the logger section of a config file. It is
// skipped when flags or env vars already chose a setting.
func (cli *CLI) initLoggerFromConfig(cfg config.LoggerConfig) (func(), error) {
	if cli.LogLevel != "" || cli.LogFile != "" || cli.LogFormat != "" ||
		os.Getenv(LogLevelEnvVar) != "" || os.Getenv(LogFileEnvVar) != "" || os.Getenv(LogFormatEnvVar) != "" {
		return nil, nil
	}
	return initLoggerFromCLI(cfg.Level, cfg.File, cfg.Format)
}
