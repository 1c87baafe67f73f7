// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"
)

// readChunkSize is the size of each underlying read. Serial lines deliver
// a line at a time in canonical mode; sockets may deliver many records per
// read.
const readChunkSize = 4096

// maxEmptyReads is how many consecutive zero-byte, nil-error reads are
// tolerated before the reader gives up with io.ErrNoProgress. Matches
// bufio.Reader.
const maxEmptyReads = 100

// Reader decodes records from one connection. It owns the connection's
// partial-input state: bytes read but not yet part of a complete record
// stay buffered across calls to Next. A Reader must only be used by the
// goroutine servicing its connection.
type Reader struct {
	source  io.Reader
	buffer  bytes.Buffer
	chunk   []byte
	empties int

	// OnLine, if set, is called with each raw main line before its
	// escaped fields are resolved. Gateways use it for traffic traces.
	OnLine func(line string)
}

// NewReader returns a Reader decoding records from source.
//
// If source implements SetReadDeadline (net.Conn, pollable *os.File),
// cancellation of the context passed to Next sets an immediate deadline
// so a blocked read returns at once. Otherwise, if it implements
// io.Closer, cancellation closes it.
func NewReader(source io.Reader) *Reader {
	return &Reader{
		source: source,
		chunk:  make([]byte, readChunkSize),
	}
}

// Buffered returns the number of bytes read from the source that have not
// yet been consumed by a decoded record.
func (r *Reader) Buffered() int {
	return r.buffer.Len()
}

// Next returns the next record. It returns io.EOF when the source closes
// cleanly between records, an error wrapping ErrCancelled when ctx is
// cancelled, ErrMalformedPacket for undecodable input, and ErrTransport
// for other read failures.
func (r *Reader) Next(ctx context.Context) (Packet, error) {
	stop := context.AfterFunc(ctx, r.interrupt)
	defer stop()

	line, err := r.readLine(ctx)
	if err != nil {
		return nil, err
	}
	if !utf8.ValidString(line) {
		return nil, fmt.Errorf("%w: main line is not valid UTF-8: %q", ErrMalformedPacket, line)
	}
	if r.OnLine != nil {
		r.OnLine(line)
	}

	fields := strings.Split(line, string(FieldSeparator))
	packet := make(Packet, len(fields))
	for i, field := range fields {
		length, escaped, err := escapedLength(field)
		if err != nil {
			return nil, err
		}
		if !escaped {
			packet[i] = field
			continue
		}
		raw, err := r.readRaw(ctx, length)
		if err != nil {
			return nil, err
		}
		packet[i] = raw
	}
	return packet, nil
}

// readLine returns the next newline-terminated line without the newline,
// reading from the source until one is buffered.
func (r *Reader) readLine(ctx context.Context) (string, error) {
	for {
		if index := bytes.IndexByte(r.buffer.Bytes(), '\n'); index >= 0 {
			line := string(r.buffer.Next(index + 1))
			return line[:index], nil
		}
		if r.buffer.Len() > MaxLineLength {
			return "", fmt.Errorf("%w: line exceeds %d bytes", ErrMalformedPacket, MaxLineLength)
		}
		if err := r.fill(ctx); err != nil {
			return "", err
		}
	}
}

// readRaw returns exactly length bytes followed by the mandatory newline
// delimiter, which is consumed.
func (r *Reader) readRaw(ctx context.Context, length int) (string, error) {
	for r.buffer.Len() < length+1 {
		if err := r.fill(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				return "", fmt.Errorf("%w: stream ended inside a %d-byte field", ErrMalformedPacket, length)
			}
			return "", err
		}
	}
	raw := string(r.buffer.Next(length))
	if delimiter, _ := r.buffer.ReadByte(); delimiter != '\n' {
		return "", fmt.Errorf("%w: escaped field not followed by newline (got %q)", ErrMalformedPacket, delimiter)
	}
	return raw, nil
}

// fill performs one underlying read and appends its result to the
// buffer. A zero-byte read with no error means no data yet.
func (r *Reader) fill(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	count, err := r.source.Read(r.chunk)
	if count > 0 {
		r.buffer.Write(r.chunk[:count])
		r.empties = 0
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ErrCancelled, ctxErr)
		}
		if errors.Is(err, io.EOF) {
			if count > 0 {
				// The next read reports EOF again once the buffered
				// bytes are consumed.
				return nil
			}
			if r.buffer.Len() > 0 {
				return fmt.Errorf("%w: stream ended inside a record (%d bytes buffered)", ErrMalformedPacket, r.buffer.Len())
			}
			return io.EOF
		}
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if count == 0 {
		r.empties++
		if r.empties >= maxEmptyReads {
			return fmt.Errorf("%w: %w", ErrTransport, io.ErrNoProgress)
		}
	}
	return nil
}

type readDeadliner interface {
	SetReadDeadline(time.Time) error
}

// interrupt wakes a read blocked in the kernel. It runs on its own
// goroutine when the context passed to Next is cancelled.
func (r *Reader) interrupt() {
	if deadliner, ok := r.source.(readDeadliner); ok {
		if err := deadliner.SetReadDeadline(time.Unix(1, 0)); err == nil {
			return
		}
	}
	if closer, ok := r.source.(io.Closer); ok {
		closer.Close()
	}
}
