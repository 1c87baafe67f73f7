// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the optional luatt configuration file.
//
// The file is named by the --config flag (via [LoadFile]) or the
// LUATT_CONFIG environment variable (via [Load]). There is no discovery:
// with neither set, [Default] applies. Command-line flags override file
// values; the CLI applies them after loading.
//
// ${HOME} and ${VAR:-default} patterns are expanded in path fields after
// loading. No other environment variables override config values.
//
// A minimal file:
//
//	rendezvous_dir: ${XDG_RUNTIME_DIR:-/tmp}
//	serial:
//	  baud: 115200
//	mqtt:
//	  broker: 192.168.1.1:1883
//	console:
//	  color: auto
//	log:
//	  level: info
//
// This package depends on no other luatt packages.
package config
