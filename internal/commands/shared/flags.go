// Copyright 2025 Tom Barlow
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

package shared

import (
	"context"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/tombee/remediator/internal/config"
	"github.com/tombee/remediator/internal/log"
	"github.com/tombee/remediator/internal/tracing"
)

// Global flag values, bound by the root command.
var (
	verboseFlag bool
	jsonFlag    bool
	configFlag  string

	// Build-time version information
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// RegisterGlobalFlags binds the flags every command shares to fs.
func RegisterGlobalFlags(fs *pflag.FlagSet) {
	fs.BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")
	fs.BoolVar(&jsonFlag, "json", false, "Output in JSON format")
	fs.StringVar(&configFlag, "config", "", "Path to config file (default: ~/.config/remediator/config.yaml)")
}

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	version = v
	commit = c
	buildDate = b
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// GetVerbose returns the verbose flag value
func GetVerbose() bool {
	return verboseFlag
}

// GetJSON returns the JSON output flag value
func GetJSON() bool {
	return jsonFlag
}

// GetConfigPath returns the config file path, falling back to the
// default location.
func GetConfigPath() (string, error) {
	if configFlag != "" {
		return configFlag, nil
	}
	return config.ConfigPath()
}

// SetConfigPathForTest sets the config path for testing purposes
func SetConfigPathForTest(path string) {
	configFlag = path
}

// SetJSONForTest sets the JSON flag for testing purposes
func SetJSONForTest(v bool) {
	jsonFlag = v
}

// LoadConfig reads the configuration file. Failures carry
// ExitInvalidConfig.
func LoadConfig() (*config.Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, NewInvalidConfigError("cannot locate configuration", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, NewInvalidConfigError("cannot load configuration", err)
	}
	return cfg, nil
}

// NewLogger builds the process logger: environment first, then the
// log section of cfg, then --verbose.
func NewLogger(cfg *config.Config) *slog.Logger {
	lc := log.FromEnv()
	if cfg != nil {
		lc = lc.Merge(&log.Config{
			Level:     cfg.Log.Level,
			Format:    log.Format(cfg.Log.Format),
			AddSource: cfg.Log.AddSource,
		})
	}
	if verboseFlag {
		lc.Level = "debug"
	}
	return log.New(lc)
}

// SetupTracing installs the tracer provider described by cfg, tagged
// with the build version.
func SetupTracing(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*tracing.Provider, error) {
	tc := cfg.Tracing
	tc.ServiceVersion = version
	p, err := tracing.Setup(ctx, tc, logger)
	if err != nil {
		return nil, NewInvalidConfigError("cannot set up tracing", err)
	}
	return p, nil
}
