// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/luatt/luatt/console"
	"github.com/luatt/luatt/gateway"
	"github.com/luatt/luatt/lib/process"
	"github.com/luatt/luatt/lib/version"
	"github.com/luatt/luatt/manifest"
	"github.com/luatt/luatt/mqttbridge"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

// versionText is the --version output. With --verbose it adds the
// toolchain and platform.
func versionText(verbose bool) string {
	if verbose {
		return "luatt " + version.Full()
	}
	return "luatt " + version.Info()
}

func run(args []string) error {
	if len(args) > 0 && args[0] == "status" {
		return runStatus(args[1:], os.Stdout)
	}

	inv, err := parseInvocation(args)
	if err != nil {
		return err
	}
	switch {
	case inv.help:
		printUsage(os.Stdout, inv.flags)
		return nil
	case inv.showVersion:
		fmt.Println(versionText(inv.verbose))
		return nil
	}

	cfg, err := inv.config()
	if err != nil {
		return err
	}

	// Every argument is resolved before the device is touched, so a
	// missing file fails the run without side effects.
	plan, err := manifest.ParseArgs(inv.steps)
	if err != nil {
		return fmt.Errorf("%w: %w", process.ErrUsage, err)
	}

	logger, closeLog, err := newLogger(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	colorMode, err := console.ParseColorMode(cfg.Console.Color)
	if err != nil {
		return fmt.Errorf("%w: %w", process.ErrUsage, err)
	}
	out := console.New(console.Options{
		Writer: os.Stdout,
		Color:  colorMode,
		Traces: inv.trace,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, err := gateway.Start(ctx, gateway.Config{
		Device:        inv.device,
		RendezvousDir: cfg.RendezvousDir,
		Baud:          cfg.Serial.Baud,
		Broker:        cfg.MQTT.Broker,
		ClientID:      cfg.MQTT.ClientID,
		KeepAlive:     cfg.KeepAliveDuration(),
		Output:        out,
		Trace:         traceTo(out),
		Logger:        logger,
	})
	if errors.Is(err, gateway.ErrBrokerOnChild) {
		return fmt.Errorf("%w: %w", process.ErrUsage, err)
	}
	if err != nil {
		return err
	}
	defer g.Close()

	if g.Root() {
		out.Printf("%s", g.Announcement().String())
	}

	// The session ends early if the upstream connection goes away.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-g.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := plan.Run(ctx, g.Router(), func(step manifest.Step) {
		logger.Info("running startup step", "step", step.String())
	}); err != nil {
		out.Errorf("%v", err)
		if !inv.interactive() {
			return err
		}
	}

	if inv.interactive() {
		err = runREPL(ctx, out, g, logger)
	} else {
		<-ctx.Done()
	}

	if upstreamErr := g.Err(); upstreamErr != nil {
		return upstreamErr
	}
	return err
}

// traceTo routes gateway traffic to the console. Broker events are shown
// even when traces are off.
func traceTo(out *console.Console) func(label, line string) {
	return func(label, line string) {
		if label == mqttbridge.TraceLabel {
			out.Event(label, line)
			return
		}
		out.Trace(label, line)
	}
}

// stdio joins stdin and stdout into the terminal the line editor drives.
type stdio struct {
	io.Reader
	io.Writer
}

func runREPL(ctx context.Context, out *console.Console, g *gateway.Gateway, logger *slog.Logger) error {
	stdinFd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(stdinFd)
	if err != nil {
		return fmt.Errorf("set terminal raw mode: %w", err)
	}
	defer term.Restore(stdinFd, oldState)

	repl := &console.REPL{Console: out, Device: g.Router(), Logger: logger}
	err = repl.Run(ctx, stdio{os.Stdin, os.Stdout})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
