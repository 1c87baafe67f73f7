// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package transport

import (
	"fmt"
	"os"
)

// OpenSerial is only implemented on Linux.
func OpenSerial(path string, baud int) (*os.File, error) {
	return nil, fmt.Errorf("%w: serial port %s on this platform", ErrUnsupported, path)
}
