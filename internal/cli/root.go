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

package cli

import (
	"github.com/spf13/cobra"

	"github.com/tombee/remediator/internal/commands/invoke"
	"github.com/tombee/remediator/internal/commands/run"
	"github.com/tombee/remediator/internal/commands/shared"
	"github.com/tombee/remediator/internal/commands/validate"
	"github.com/tombee/remediator/internal/commands/version"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root command with every subcommand attached.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remediator",
		Short: "Remediator - run remediation operations against controllers",
		Long: `Remediator executes remediation operations against external controllers
and correlates their responses. Operations talk HTTP, optionally polling
for completion, or exchange requests and responses over message topics.
Every operation runs under a retry budget, a per-attempt timeout and the
configured guards.

Run 'remediator validate' to check a configuration.
Run 'remediator run' to start the actors.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	shared.RegisterGlobalFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		run.NewCommand(),
		invoke.NewCommand(),
		validate.NewCommand(),
		version.NewVersionCommand(),
	)
	return cmd
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
