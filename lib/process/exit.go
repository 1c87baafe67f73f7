// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"os"
)

// ErrUsage marks an error caused by how the binary was invoked.
var ErrUsage = errors.New("usage")

// ExitCode returns the exit status for err: 0 for nil, 2 for usage
// errors, 1 otherwise.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrUsage):
		return 2
	default:
		return 1
	}
}

// Fatal writes "error: err" to stderr and exits with ExitCode(err). Use
// it in main() for errors from run() where the structured logger may not
// be initialized.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(ExitCode(err))
}
