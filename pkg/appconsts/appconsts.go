// Copyright 2025 Author(s) of Mane
// SPDX-License-Identifier: Apache-2.0

// Package appconsts holds application-wide constants.
package appconsts

const (
	// Name is the canonical name of the application binary.
	Name = "mane"
	// Version is the application version. Overridable at build time via
	// -ldflags "-X github.com/mane-project/mane/pkg/appconsts.Version=...".
	Version = "1.0.0"

	// DefaultHTTPPort is the default port for the HTTP bridge.
	DefaultHTTPPort = 3024
)
