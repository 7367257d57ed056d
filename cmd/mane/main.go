// Copyright 2025 Author(s) of Mane
// SPDX-License-Identifier: Apache-2.0

// Command mane runs the browser-automation MCP server: an MCP surface on
// stdio for the LLM client and an HTTP bridge for the browser extension.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mane-project/mane/pkg/appconsts"
	"github.com/mane-project/mane/pkg/config"
	"github.com/mane-project/mane/pkg/foundation"
	"github.com/mane-project/mane/pkg/logging"
	"github.com/spf13/cobra"
)

// Exit codes: 0 clean shutdown, 1 startup failure, 2 unrecoverable runtime
// error.
const (
	exitOK      = 0
	exitStartup = 1
	exitRuntime = 2
)

// errRuntime marks failures after a successful startup.
var errRuntime = errors.New("runtime failure")

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   appconsts.Name,
		Short: "Browser-automation MCP server",
		Long: appconsts.Name + ` bridges an MCP client on stdio with a browser extension
over an HTTP relay. Registered browser tools are exposed through MCP
tools/list and tools/call as well as through the HTTP bridge.`,
		Version:       appconsts.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	config.BindFlags(cmd)
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	f, err := foundation.New(foundation.Options{
		LogLevel:         settings.LogLevel,
		LogFormat:        settings.LogFormat,
		LogOutput:        cmd.ErrOrStderr(),
		ServerName:       settings.ServerName,
		ServerVersion:    settings.ServerVersion,
		HTTPPort:         settings.HTTPPort,
		RelayURL:         settings.RelayURL,
		EnableMetrics:    settings.EnableMetrics,
		EnableMonitoring: settings.EnableMonitor,
	})
	if err != nil {
		return fmt.Errorf("failed to assemble server: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := f.Start(ctx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	log := logging.GetLogger()
	if settings.StrictGates {
		for name, result := range f.RunQualityGates(ctx, true) {
			if !result.Valid {
				log.Warn("Quality gate failed", "tool", name, "score", result.Score, "errors", result.Errors)
			}
		}
	}

	serveErr := f.ServeMCP(ctx, cmd.InOrStdin(), cmd.OutOrStdout())

	stopCtx, cancel := context.WithTimeout(context.Background(), settings.ShutdownTimeout)
	defer cancel()
	if err := f.Stop(stopCtx); err != nil {
		log.Error("Shutdown did not drain cleanly", "error", err)
		return fmt.Errorf("%w: %v", errRuntime, err)
	}
	if serveErr != nil && ctx.Err() == nil {
		return fmt.Errorf("%w: %v", errRuntime, serveErr)
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, errRuntime) {
			os.Exit(exitRuntime)
		}
		os.Exit(exitStartup)
	}
	os.Exit(exitOK)
}
