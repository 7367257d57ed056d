// Copyright 2025 Author(s) of Mane
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration management for the application.
// Precedence is CLI flags over MANE_* environment variables over defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mane-project/mane/pkg/appconsts"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Settings is the resolved configuration consumed by the foundation
// builder.
type Settings struct {
	LogLevel        string
	LogFormat       string
	ServerName      string
	ServerVersion   string
	HTTPPort        int
	RelayURL        string
	EnableMetrics   bool
	EnableMonitor   bool
	StrictGates     bool
	ShutdownTimeout time.Duration
}

// BindFlags binds the command-line flags to the Viper configuration
// registry and enables MANE_* environment overrides.
//
// Parameters:
//   - cmd: The command instance to which the flags will be attached.
func BindFlags(cmd *cobra.Command) {
	viper.AutomaticEnv()
	viper.SetEnvPrefix("MANE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	cmd.PersistentFlags().String("log-level", "info", "Set the log level (debug, info, warn, error). Env: MANE_LOG_LEVEL")
	cmd.PersistentFlags().String("log-format", "json", "Set the log format (text, json). Env: MANE_LOG_FORMAT")
	cmd.PersistentFlags().String("server-name", appconsts.Name, "Server name surfaced via MCP initialize. Env: MANE_SERVER_NAME")
	cmd.PersistentFlags().String("server-version", appconsts.Version, "Server version surfaced via MCP initialize. Env: MANE_SERVER_VERSION")
	cmd.PersistentFlags().Int("http-port", appconsts.DefaultHTTPPort, "Port for the HTTP bridge. 0 disables the bridge. Env: MANE_HTTP_PORT")
	cmd.PersistentFlags().String("relay-url", "", "Base URL of the browser extension relay. Env: MANE_RELAY_URL")
	cmd.PersistentFlags().Bool("enable-metrics", true, "Expose the in-memory metrics window on /metrics. Env: MANE_ENABLE_METRICS")
	cmd.PersistentFlags().Bool("enable-monitoring", true, "Track in-flight and completed requests. Env: MANE_ENABLE_MONITORING")
	cmd.PersistentFlags().Bool("strict-gates", false, "Use the strict performance threshold for quality gates. Env: MANE_STRICT_GATES")
	cmd.PersistentFlags().Duration("shutdown-timeout", 5*time.Second, "Graceful shutdown timeout. Env: MANE_SHUTDOWN_TIMEOUT")

	for _, name := range []string{
		"log-level", "log-format", "server-name", "server-version",
		"http-port", "relay-url", "enable-metrics", "enable-monitoring",
		"strict-gates", "shutdown-timeout",
	} {
		if err := viper.BindPFlag(name, cmd.PersistentFlags().Lookup(name)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s flag: %v\n", name, err)
			os.Exit(1)
		}
	}
}

// Load resolves the effective settings from Viper.
//
// Returns:
//   - The resolved settings.
//   - An error for out-of-range values.
func Load() (*Settings, error) {
	s := &Settings{
		LogLevel:        viper.GetString("log-level"),
		LogFormat:       viper.GetString("log-format"),
		ServerName:      viper.GetString("server-name"),
		ServerVersion:   viper.GetString("server-version"),
		HTTPPort:        viper.GetInt("http-port"),
		RelayURL:        viper.GetString("relay-url"),
		EnableMetrics:   viper.GetBool("enable-metrics"),
		EnableMonitor:   viper.GetBool("enable-monitoring"),
		StrictGates:     viper.GetBool("strict-gates"),
		ShutdownTimeout: viper.GetDuration("shutdown-timeout"),
	}

	if s.HTTPPort < 0 || s.HTTPPort > 65535 {
		return nil, fmt.Errorf("http-port %d is out of range", s.HTTPPort)
	}
	switch s.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("unknown log level %q", s.LogLevel)
	}
	switch s.LogFormat {
	case "text", "json":
	default:
		return nil, fmt.Errorf("unknown log format %q", s.LogFormat)
	}
	return s, nil
}
