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

// Package run implements the run command, which keeps the configured
// actors running until interrupted.
package run

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/remediator/internal/commands/shared"
	"github.com/tombee/remediator/internal/config"
	"github.com/tombee/remediator/internal/controller"
	"github.com/tombee/remediator/internal/log"
)

// DefaultShutdownTimeout bounds the graceful shutdown.
const DefaultShutdownTimeout = 10 * time.Second

// NewCommand creates the run command
func NewCommand() *cobra.Command {
	var (
		watch           bool
		shutdownTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the actors and keep them running",
		Long: `Run configures and starts every actor in the configuration, then waits
for SIGINT or SIGTERM. With --watch, edits to the configuration file are
applied by stopping, reconfiguring and restarting the actors. Invalid
edits are logged and ignored.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runActors(cmd.Context(), watch, shutdownTimeout)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", true, "Reload the configuration when the file changes")
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", DefaultShutdownTimeout, "Time allowed for graceful shutdown")

	return cmd
}

func runActors(parent context.Context, watch bool, shutdownTimeout time.Duration) error {
	if parent == nil {
		parent = context.Background()
	}
	path, err := shared.GetConfigPath()
	if err != nil {
		return shared.NewInvalidConfigError("cannot locate configuration", err)
	}
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}
	logger := shared.NewLogger(cfg)

	tp, err := shared.SetupTracing(parent, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("flushing spans", log.Error(err))
		}
	}()

	c, err := controller.New(cfg, controller.Options{Logger: logger})
	if err != nil {
		return shared.NewInvalidConfigError("cannot build actors", err)
	}
	if err := c.Validate(); err != nil {
		_ = c.Shutdown(context.Background())
		return shared.NewInvalidConfigError("configuration is invalid", err)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Start(); err != nil {
		_ = c.Shutdown(context.Background())
		return err
	}
	logger.Info("remediator running", "config", path, "actors", c.Service().Names())

	watchDone := make(chan struct{})
	if watch {
		go func() {
			defer close(watchDone)
			watchConfig(ctx, path, c, logger)
		}()
	} else {
		close(watchDone)
	}

	<-ctx.Done()
	logger.Info("shutting down")
	<-watchDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := c.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func watchConfig(ctx context.Context, path string, c *controller.Controller, logger *slog.Logger) {
	w, err := config.NewWatcher(path, logger)
	if err != nil {
		logger.Warn("configuration changes will not be applied", log.Error(err))
		return
	}
	err = w.Run(ctx, func(cfg *config.Config) {
		if err := c.Reload(cfg); err != nil {
			logger.Error("reload failed", log.Error(err))
		}
	})
	if err != nil {
		logger.Warn("config watcher stopped", log.Error(err))
	}
}
