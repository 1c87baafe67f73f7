// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the luatt line protocol spoken between a gateway
// and the device, and between chained gateways.
//
// A record is a variable number of fields separated by '|' and terminated
// by a newline:
//
//	token|verb|arg1|arg2\n
//
// A field that is empty, starts with '&', or contains a byte outside
// printable ASCII (or a '|') cannot appear on the main line. Such a field
// is written as "&N", where N is its length in bytes, and its raw bytes
// follow the main line as a trailer terminated by its own newline.
// Trailers appear in field order:
//
//	fields:  "tok1" "load" "foo" "print(1)\n"
//	wire:    tok1|load|foo|&9\nprint(1)\n\n
//
// Most short text and JSON passes unescaped, the device can keep its
// serial port in canonical (line) mode, and arbitrary binary payloads
// still survive.
//
// The package has three parts:
//
//   - [Encode] and the [Packet] / [Verb] types describe one record.
//   - [Reader] decodes records from a byte stream, retaining partial input
//     between underlying reads and waking promptly on context
//     cancellation.
//   - [Writer] serializes concurrent senders so every record reaches the
//     stream as one write.
package wire
