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

// Package validate implements the validate command.
package validate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/remediator/internal/commands/shared"
	"github.com/tombee/remediator/internal/config"
	"github.com/tombee/remediator/internal/controller"
	"github.com/tombee/remediator/internal/log"
	"github.com/tombee/remediator/internal/topic"
)

// Result is the JSON output of the validate command.
type Result struct {
	Valid  bool                `json:"valid"`
	Path   string              `json:"path"`
	Actors map[string][]string `json:"actors,omitempty"`
	Errors []string            `json:"errors,omitempty"`
}

// NewCommand creates the validate command
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [config]",
		Short: "Validate a configuration file",
		Long: `Validate loads a configuration file and configures every operator it
declares without starting anything. HTTP clients, guards, expressions and
jq selectors are all checked. No connection to the message bus is made.

The file defaults to --config, then ~/.config/remediator/config.yaml.`,
		Example: `  remediator validate
  remediator validate ./remediator.yaml --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	path, err := resolvePath(args)
	if err != nil {
		return shared.NewInvalidConfigError("cannot locate configuration", err)
	}

	res := Result{Path: path}
	if err := check(path, &res); err != nil {
		res.Errors = splitJoined(err)
		if perr := render(cmd, res); perr != nil {
			return perr
		}
		return shared.NewInvalidConfigError("configuration is invalid", err)
	}
	res.Valid = true
	return render(cmd, res)
}

func resolvePath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	return shared.GetConfigPath()
}

// check builds a controller on an in-memory bus and configures every
// operator. Nothing is started.
func check(path string, res *Result) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	bus := topic.NewMemoryBus()
	defer bus.Close()

	c, err := controller.New(cfg, controller.Options{Logger: log.Discard(), Bus: bus})
	if err != nil {
		return err
	}
	defer c.Shutdown(context.Background())

	res.Actors = make(map[string][]string)
	for _, name := range c.Service().Names() {
		a, err := c.Service().GetActor(name)
		if err != nil {
			return err
		}
		res.Actors[name] = a.OperationNames()
	}
	return c.Validate()
}

// splitJoined flattens an errors.Join result into its messages.
func splitJoined(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var msgs []string
		for _, e := range joined.Unwrap() {
			msgs = append(msgs, e.Error())
		}
		return msgs
	}
	return []string{err.Error()}
}

func render(cmd *cobra.Command, res Result) error {
	w := cmd.OutOrStdout()
	if shared.GetJSON() {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		return nil
	}

	if !res.Valid {
		fmt.Fprintf(w, "%s is invalid:\n", res.Path)
		for _, msg := range res.Errors {
			fmt.Fprintf(w, "  - %s\n", msg)
		}
		return nil
	}

	fmt.Fprintf(w, "%s is valid\n", res.Path)
	for _, name := range sortedKeys(res.Actors) {
		fmt.Fprintf(w, "  %s: %s\n", name, strings.Join(res.Actors[name], ", "))
	}
	return nil
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
