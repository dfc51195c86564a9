// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the coherence
// daemon and CLI.
//
// Configuration is loaded from a single file specified by either the
// COHERENCE_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). Files ending in .json or .jsonc are parsed as
// JSON with comments and trailing commas; everything else is YAML.
//
// The file may contain environment-specific sections (development,
// staging, production) that override base values when
// [Config].Environment matches.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${XDG_RUNTIME_DIR}, and ${VAR:-default} patterns are
// expanded. No other environment variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct, one section per daemon component
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Validate] -- range checks run by the daemon at startup
//
// This package depends on no other coherence packages.
package config
