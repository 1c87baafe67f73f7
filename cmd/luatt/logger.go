// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// newLogger builds the process logger. Logs go to path when set, as JSON.
// Otherwise they go to stderr: as text when stderr is a terminal, as JSON
// when it is piped or redirected.
func newLogger(level, path string) (*slog.Logger, func(), error) {
	var minimum slog.Level
	if err := minimum.UnmarshalText([]byte(level)); err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}
	options := &slog.HandlerOptions{Level: minimum}

	if path != "" {
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		return slog.New(slog.NewJSONHandler(file, options)), func() { file.Close() }, nil
	}
	return slog.New(handlerFor(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), options)), func() {}, nil
}

func handlerFor(w io.Writer, terminal bool, options *slog.HandlerOptions) slog.Handler {
	if terminal {
		return slog.NewTextHandler(w, options)
	}
	return slog.NewJSONHandler(w, options)
}
