// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil classifies the errors that end a gateway connection.
package netutil

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

// IsExpectedCloseError reports whether err is a normal connection
// termination: EOF, closed connection, broken pipe, or connection reset.
// A child gateway that exits closes its whole socket, so the surviving
// side sees ECONNRESET or EPIPE as often as EOF. None of these should be
// logged as errors.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}

// IsDeviceGone reports whether err means the serial device itself went
// away: the adapter was unplugged or the line hung up. Reads on a
// vanished tty fail with EIO or ENXIO rather than EOF.
func IsDeviceGone(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EIO || errno == syscall.ENXIO || errno == syscall.ENODEV
	}
	return false
}
