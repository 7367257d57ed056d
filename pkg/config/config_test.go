// Copyright 2025 Author(s) of Mane
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freshCommand(t *testing.T) *cobra.Command {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	cmd := &cobra.Command{Use: "test"}
	BindFlags(cmd)
	return cmd
}

func TestLoadDefaults(t *testing.T) {
	freshCommand(t)

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "info", s.LogLevel)
	assert.Equal(t, "json", s.LogFormat)
	assert.Equal(t, "mane", s.ServerName)
	assert.Equal(t, 3024, s.HTTPPort)
	assert.Empty(t, s.RelayURL)
	assert.True(t, s.EnableMetrics)
	assert.True(t, s.EnableMonitor)
	assert.False(t, s.StrictGates)
	assert.Equal(t, 5*time.Second, s.ShutdownTimeout)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MANE_HTTP_PORT", "8123")
	t.Setenv("MANE_LOG_LEVEL", "debug")
	t.Setenv("MANE_RELAY_URL", "http://127.0.0.1:9222")
	freshCommand(t)

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8123, s.HTTPPort)
	assert.Equal(t, "debug", s.LogLevel)
	assert.Equal(t, "http://127.0.0.1:9222", s.RelayURL)
}

func TestLoadFlagBeatsEnv(t *testing.T) {
	t.Setenv("MANE_HTTP_PORT", "8123")
	cmd := freshCommand(t)
	require.NoError(t, cmd.PersistentFlags().Set("http-port", "9999"))

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, s.HTTPPort)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("MANE_LOG_LEVEL", "loud")
	freshCommand(t)
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsPortOutOfRange(t *testing.T) {
	t.Setenv("MANE_HTTP_PORT", "70000")
	freshCommand(t)
	_, err := Load()
	assert.Error(t, err)
}
