// Copyright 2025 Author(s) of Mane
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandFlags(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := newRootCmd()
	for _, name := range []string{
		"http-port", "log-level", "log-format", "server-name",
		"server-version", "relay-url", "enable-metrics",
		"enable-monitoring", "strict-gates", "shutdown-timeout",
	} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "flag %s missing", name)
	}
}

func TestRootCommandHelp(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--help"})
	require.NoError(t, cmd.Execute())
}

func TestRootCommandVersion(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := newRootCmd()
	assert.Equal(t, "mane", cmd.Use)
	assert.NotEmpty(t, cmd.Version)
}
