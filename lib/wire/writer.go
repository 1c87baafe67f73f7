// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Writer is the single writer of one connection. Each Send encodes a
// complete record and hands it to the destination in one Write while
// holding a mutex, so records from concurrent callers never interleave.
type Writer struct {
	destination io.Writer
	logger      *slog.Logger

	// OnLine, if set, is called with the main line of every record
	// before it is written. Gateways use it for traffic traces.
	OnLine func(line string)

	mu sync.Mutex
}

// NewWriter returns a Writer for destination. A nil logger uses
// slog.Default().
func NewWriter(destination io.Writer, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{destination: destination, logger: logger}
}

// Send writes the record [token, fields...].
func (w *Writer) Send(token string, fields ...string) error {
	record := make(Packet, 0, len(fields)+1)
	record = append(record, token)
	record = append(record, fields...)
	return w.WritePacket(record)
}

// WritePacket writes packet unchanged, re-encoding any field that needs
// escaping. Used to forward records between connections.
func (w *Writer) WritePacket(packet Packet) error {
	if len(packet) == 0 {
		return fmt.Errorf("%w: refusing to write an empty packet", ErrMalformedPacket)
	}
	encoded := Encode(packet...)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.OnLine != nil {
		line, _, _ := bytes.Cut(encoded, []byte{'\n'})
		w.OnLine(string(line))
	}
	w.logger.Debug("writing record",
		"token", packet.Token(),
		"verb", packet.Verb().String(),
		"bytes", len(encoded),
	)
	if _, err := w.destination.Write(encoded); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return nil
}
