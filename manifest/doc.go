// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest turns command-line load arguments into a plan of
// device requests.
//
// Three kinds of input are understood:
//
//	blink.lua             one Lua source, loaded as module "blink"
//	led=lib/blink.lua     one Lua source under an explicit module name
//	Loader.cmd            a text file listing sources to load, in order
//	app.luaz, app.zip     an archive holding a Loader.cmd and its sources
//
// A Loader.cmd lists one source per line, in the same "file" or
// "name=file" form, relative to the Loader.cmd's own directory. Blank
// lines are skipped. An archive's Loader.cmd sits at the archive root or
// exactly one directory down; more than one candidate at the first level
// is ambiguous and rejected.
//
// Every source is read while the plan is built, so a missing file or a
// broken archive is reported before anything is sent to the device.
package manifest
