// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

const (
	// FieldSeparator joins fields on the main line.
	FieldSeparator = '|'

	// EscapeMarker introduces a length-prefixed field: "&N".
	EscapeMarker = '&'

	// MaxLineLength bounds a main line. The device's own receive buffer
	// is far smaller; the bound only stops a misbehaving peer from
	// growing the buffer without limit.
	MaxLineLength = 64 * 1024

	// MaxFieldLength bounds a single escaped field.
	MaxFieldLength = 1024 * 1024
)

var (
	// ErrMalformedPacket reports a record that cannot be decoded. It is
	// fatal for the connection it was read from.
	ErrMalformedPacket = errors.New("wire: malformed packet")

	// ErrTransport wraps read and write failures on the underlying
	// stream. It is fatal for the connection.
	ErrTransport = errors.New("wire: transport error")

	// ErrCancelled is returned by Reader.Next when its context is
	// cancelled while waiting for input.
	ErrCancelled = errors.New("wire: cancelled")
)

// IsClean reports whether field can appear verbatim on the main line: it
// is non-empty, does not start with the escape marker, and contains only
// printable ASCII other than the field separator.
func IsClean(field string) bool {
	if field == "" || field[0] == EscapeMarker {
		return false
	}
	for i := 0; i < len(field); i++ {
		c := field[i]
		if c < 0x20 || c > 0x7e || c == FieldSeparator {
			return false
		}
	}
	return true
}

// Encode frames fields as one record: the main line followed by one
// newline-terminated trailer per escaped field.
func Encode(fields ...string) []byte {
	var line, trailers bytes.Buffer
	for i, field := range fields {
		if i > 0 {
			line.WriteByte(FieldSeparator)
		}
		if IsClean(field) {
			line.WriteString(field)
			continue
		}
		line.WriteByte(EscapeMarker)
		line.WriteString(strconv.Itoa(len(field)))
		trailers.WriteString(field)
		trailers.WriteByte('\n')
	}
	line.WriteByte('\n')
	line.Write(trailers.Bytes())
	return line.Bytes()
}

// escapedLength parses an "&N" field. ok is false for any other field,
// including "&" alone and "&" followed by non-digits, which decode as
// plain text.
func escapedLength(field string) (length int, ok bool, err error) {
	if len(field) < 2 || field[0] != EscapeMarker {
		return 0, false, nil
	}
	for i := 1; i < len(field); i++ {
		if field[i] < '0' || field[i] > '9' {
			return 0, false, nil
		}
	}
	length, err = strconv.Atoi(field[1:])
	if err != nil || length > MaxFieldLength {
		return 0, true, fmt.Errorf("%w: escaped field length %q out of range", ErrMalformedPacket, field)
	}
	return length, true, nil
}
