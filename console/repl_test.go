// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/luatt/luatt/lib/testutil"
	"github.com/luatt/luatt/router"
)

type deviceRecorder struct {
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (d *deviceRecorder) record(call string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call)
	if d.fail {
		return router.ErrRequestFailed
	}
	return nil
}

func (d *deviceRecorder) Load(_ context.Context, name, source string) error {
	return d.record("load " + name + " " + source)
}

func (d *deviceRecorder) Reset(context.Context) error {
	return d.record("reset")
}

func (d *deviceRecorder) Eval(_ context.Context, source string) error {
	return d.record("eval " + source)
}

func (d *deviceRecorder) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.calls)
}

func newTestREPL(device *deviceRecorder) (*REPL, *syncBuffer) {
	output := &syncBuffer{}
	return &REPL{
		Console: New(Options{Writer: output, Color: ColorNever}),
		Device:  device,
	}, output
}

func TestExecute(t *testing.T) {
	t.Parallel()
	directory := t.TempDir()
	script := filepath.Join(directory, "blink.lua")
	if err := os.WriteFile(script, []byte("led.on()"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tests := []struct {
		line      string
		wantMore  bool
		wantCalls []string
		wantError string
	}{
		{line: "print(2+3*4)", wantMore: true, wantCalls: []string{"eval print(2+3*4)"}},
		{line: "   ", wantMore: true},
		{line: "!reset", wantMore: true, wantCalls: []string{"reset"}},
		{line: "!load " + script, wantMore: true, wantCalls: []string{"load blink led.on()"}},
		{line: "!load 'led=" + script + "'", wantMore: true, wantCalls: []string{"load led led.on()"}},
		{line: "!load", wantMore: true, wantError: "no arguments"},
		{line: "!load " + script + " " + filepath.Join(directory, "missing.lua"), wantMore: true, wantError: "!load"},
		{line: "!reload", wantMore: true},
		{line: "!frobnicate", wantMore: true, wantError: "bad command"},
		{line: "!load \"unterminated", wantMore: true, wantError: "cannot parse"},
		{line: "!exit", wantMore: false},
		{line: "!quit", wantMore: false},
	}
	for _, test := range tests {
		test := test
		t.Run(test.line, func(t *testing.T) {
			t.Parallel()
			device := &deviceRecorder{}
			repl, output := newTestREPL(device)

			if got := repl.Execute(context.Background(), test.line); got != test.wantMore {
				t.Errorf("Execute: got %v, want %v", got, test.wantMore)
			}
			if got := device.Calls(); !slices.Equal(got, test.wantCalls) {
				t.Errorf("calls: got %q, want %q", got, test.wantCalls)
			}
			if test.wantError == "" {
				if output.String() != "" {
					t.Errorf("unexpected output %q", output.String())
				}
			} else if !strings.Contains(output.String(), test.wantError) {
				t.Errorf("output %q does not mention %q", output.String(), test.wantError)
			}
		})
	}
}

func TestExecuteReportsDeviceFailure(t *testing.T) {
	t.Parallel()
	device := &deviceRecorder{fail: true}
	repl, output := newTestREPL(device)

	repl.Execute(context.Background(), "error('x')")
	if !strings.Contains(output.String(), "Error: eval") {
		t.Fatalf("output: got %q", output.String())
	}
}

// terminalStub feeds scripted input to the line editor.
type terminalStub struct {
	io.Reader
	io.Writer
}

func TestRunUntilQuit(t *testing.T) {
	t.Parallel()
	device := &deviceRecorder{}
	repl, _ := newTestREPL(device)

	var screen syncBuffer
	input := strings.NewReader("a = 55\r!reset\r!quit\rprint(a)\r")
	if err := repl.Run(context.Background(), terminalStub{input, &screen}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := []string{"eval a = 55", "reset"}; !slices.Equal(device.Calls(), want) {
		t.Fatalf("calls: got %q, want %q", device.Calls(), want)
	}
	if !strings.Contains(screen.String(), Prompt) {
		t.Errorf("prompt never shown: %q", screen.String())
	}
}

func TestRunEndOfInput(t *testing.T) {
	t.Parallel()
	device := &deviceRecorder{}
	repl, _ := newTestREPL(device)

	input := strings.NewReader("x = 1\r")
	if err := repl.Run(context.Background(), terminalStub{input, io.Discard}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := []string{"eval x = 1"}; !slices.Equal(device.Calls(), want) {
		t.Fatalf("calls: got %q, want %q", device.Calls(), want)
	}
}

func TestRunCancellation(t *testing.T) {
	t.Parallel()
	device := &deviceRecorder{}
	repl, _ := newTestREPL(device)

	reader, writer := io.Pipe()
	t.Cleanup(func() { writer.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- repl.Run(ctx, terminalStub{reader, io.Discard}) }()
	cancel()

	err := testutil.RequireReceive(t, result, 5*time.Second, "Run did not return after cancel")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run: got %v, want context.Canceled", err)
	}
}
