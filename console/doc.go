// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

// Package console is the gateway's human-facing surface: device output,
// optional traffic traces, and the interactive "lua>" prompt.
//
// [Console] implements router.Output. Device replies and background
// output are printed as plain lines; unstructured device text and
// traffic traces carry a short label ("ser>", "sock<", "mqtt", ...) and,
// when colour is enabled, a per-label colour. Lines mentioning "error"
// are highlighted.
//
// [REPL] reads lines with golang.org/x/term's line editor. While it runs,
// the console writes through the editor so that device output appears
// above the prompt instead of through the line being typed.
package console
