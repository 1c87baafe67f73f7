// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds luatt's CBOR configuration.
//
// CBOR is used only on the control socket, never on the device wire
// format. Every package that touches the control protocol encodes
// through this package so the settings live in one place:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Types that are also printed by "luatt status --json" carry `json`
// tags; fxamacker/cbor falls back to them when no `cbor` tag is present.
// Purely internal envelopes use `cbor` tags.
package codec
