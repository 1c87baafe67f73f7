// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/shlex"
	"golang.org/x/term"

	"github.com/luatt/luatt/manifest"
)

// Prompt is the REPL's input prompt.
const Prompt = "lua> "

// Device is what the REPL sends requests to. *router.Router satisfies it.
type Device interface {
	manifest.Loader
	manifest.Evaluator
}

// REPL reads Lua chunks and meta-commands from a terminal.
//
// A line not starting with "!" is evaluated on the device. Meta-commands:
//
//	!reset              clear the device's Lua state
//	!load arg...        load sources, Loader.cmd files or archives
//	!reload             accepted and ignored
//	!exit, !quit        leave the REPL
type REPL struct {
	Console *Console
	Device  Device

	// Logger receives structured log output. If nil, slog.Default() is
	// used.
	Logger *slog.Logger
}

func (r *REPL) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Run reads lines from terminal until end of input, an exit command, or
// cancellation of ctx. terminal should already be in raw mode. Console
// output is routed through the line editor while Run is active.
func (r *REPL) Run(ctx context.Context, terminal io.ReadWriter) error {
	editor := term.NewTerminal(terminal, Prompt)
	previous := r.Console.SetWriter(editor)
	defer r.Console.SetWriter(previous)

	type readResult struct {
		line string
		err  error
	}
	// ReadLine cannot be interrupted, so it runs on its own goroutine and
	// Run stops waiting for it on cancellation.
	lines := make(chan readResult)
	next := make(chan struct{}, 1)
	go func() {
		for range next {
			line, err := editor.ReadLine()
			select {
			case lines <- readResult{line, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	defer close(next)

	for {
		next <- struct{}{}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case result := <-lines:
			if errors.Is(result.err, io.EOF) {
				return nil
			}
			if result.err != nil {
				return fmt.Errorf("reading input: %w", result.err)
			}
			if !r.Execute(ctx, result.line) {
				return nil
			}
		}
	}
}

// Execute runs one input line and reports whether the REPL should keep
// going. Failures are printed, not returned.
func (r *REPL) Execute(ctx context.Context, line string) bool {
	if strings.TrimSpace(line) == "" {
		return true
	}
	if !strings.HasPrefix(line, "!") {
		if err := r.Device.Eval(ctx, line); err != nil {
			r.report("eval", err)
		}
		return true
	}

	args, err := shlex.Split(line)
	if err != nil || len(args) == 0 {
		r.Console.Errorf("cannot parse command: %v", err)
		return true
	}
	switch args[0] {
	case "!exit", "!quit":
		return false
	case "!reset":
		if err := r.Device.Reset(ctx); err != nil {
			r.report("!reset", err)
		}
	case "!load":
		r.load(ctx, args[1:])
	case "!reload":
	default:
		r.Console.Errorf("bad command %s", args[0])
	}
	return true
}

// load resolves every argument before sending anything.
func (r *REPL) load(ctx context.Context, args []string) {
	if len(args) == 0 {
		r.Console.Errorf("!load no arguments given")
		return
	}
	var plan manifest.Plan
	for _, arg := range args {
		steps, err := manifest.Resolve(arg)
		if err != nil {
			r.report("!load", err)
			return
		}
		plan = append(plan, steps...)
	}
	if err := plan.Run(ctx, r.Device, nil); err != nil {
		r.report("!load", err)
	}
}

func (r *REPL) report(command string, err error) {
	r.logger().Debug("repl command failed", "command", command, "error", err)
	r.Console.Errorf("%s: %v", command, err)
}
