// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

// DefaultBaud is the serial line rate the device firmware uses.
const DefaultBaud = 9600

// ErrUnsupported is returned for paths that are neither a character
// device nor a socket, and for serial ports on platforms without termios
// support.
var ErrUnsupported = errors.New("transport: unsupported upstream")

// Kind is the type of an upstream connection.
type Kind int

const (
	// KindSerial is a directly attached device.
	KindSerial Kind = iota + 1
	// KindSocket is a parent gateway's rendezvous socket.
	KindSocket
)

func (k Kind) String() string {
	switch k {
	case KindSerial:
		return "serial"
	case KindSocket:
		return "socket"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Trace labels for records crossing the upstream connection. Input is
// labelled the same way for both kinds: it is device output either way.
const (
	LabelFromUpstream   = "ser>"
	LabelToSerial       = "ser<"
	LabelToParentSocket = "sock<"
)

// OutboundLabel returns the trace label for records written upstream.
func (k Kind) OutboundLabel() string {
	if k == KindSocket {
		return LabelToParentSocket
	}
	return LabelToSerial
}

// Options configures Open.
type Options struct {
	// Baud is the serial line rate. Zero means DefaultBaud. Ignored for
	// sockets.
	Baud int

	// DialTimeout bounds connecting to a parent gateway. Zero means only
	// the context deadline applies.
	DialTimeout time.Duration
}

// Upstream is an open upstream connection.
type Upstream struct {
	// Kind says whether this gateway is a root or a child.
	Kind Kind
	// Path is the path Open was given.
	Path string
	// Conn is the byte stream. It supports SetReadDeadline.
	Conn io.ReadWriteCloser
}

// Close closes the connection.
func (u *Upstream) Close() error {
	return u.Conn.Close()
}

// Detect reports whether path is a serial device or a socket. Symlinks
// are followed.
func Detect(path string) (Kind, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("inspecting upstream %s: %w", path, err)
	}
	mode := info.Mode()
	switch {
	case mode&os.ModeCharDevice != 0:
		return KindSerial, nil
	case mode&os.ModeSocket != 0:
		return KindSocket, nil
	default:
		return 0, fmt.Errorf("%w: %s is a %v, want a character device or socket", ErrUnsupported, path, mode.Type())
	}
}

// Open detects the kind of path and opens it.
func Open(ctx context.Context, path string, options Options) (*Upstream, error) {
	kind, err := Detect(path)
	if err != nil {
		return nil, err
	}

	var conn io.ReadWriteCloser
	switch kind {
	case KindSerial:
		baud := options.Baud
		if baud == 0 {
			baud = DefaultBaud
		}
		conn, err = OpenSerial(path, baud)
	case KindSocket:
		conn, err = DialSocket(ctx, path, options.DialTimeout)
	}
	if err != nil {
		return nil, err
	}
	return &Upstream{Kind: kind, Path: path, Conn: conn}, nil
}

// DialSocket connects to a parent gateway's rendezvous socket.
func DialSocket(ctx context.Context, path string, timeout time.Duration) (net.Conn, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("connecting to parent gateway %s: %w", path, err)
	}
	return conn, nil
}
