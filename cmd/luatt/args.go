// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/luatt/luatt/lib/config"
	"github.com/luatt/luatt/lib/process"
	"github.com/luatt/luatt/manifest"
)

// invocation is a parsed command line.
type invocation struct {
	flags *pflag.FlagSet

	configPath    string
	rendezvousDir string
	broker        string
	clientID      string
	baud          int
	color         string
	logFile       string
	verbose       bool
	trace         bool
	noREPL        bool
	showVersion   bool
	help          bool

	// device is the serial device or rendezvous socket.
	device string
	// steps are the startup arguments after the device, in order.
	steps []string
}

func newFlagSet(inv *invocation) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("luatt", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&inv.configPath, "config", "", "configuration file (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&inv.rendezvousDir, "rendezvous-dir", "", "directory for rendezvous and control sockets (default /tmp)")
	flagSet.StringVar(&inv.broker, "mqtt", "", "bridge pub/sub verbs to this MQTT broker, host[:port]")
	flagSet.StringVar(&inv.clientID, "mqtt-client-id", "", "MQTT client id (default: random)")
	flagSet.IntVar(&inv.baud, "baud", 0, "serial line rate (default 9600)")
	flagSet.StringVar(&inv.color, "color", "", "colour output: auto, always or never")
	flagSet.StringVar(&inv.logFile, "log-file", "", "write logs to this file instead of stderr")
	flagSet.BoolVarP(&inv.verbose, "verbose", "v", false, "enable debug logging")
	flagSet.BoolVar(&inv.trace, "trace", false, "print every record crossing a connection")
	flagSet.BoolVar(&inv.noREPL, "no-repl", false, "run startup arguments, then serve until interrupted")
	flagSet.BoolVar(&inv.showVersion, "version", false, "print version information (with -v, toolchain details)")
	flagSet.BoolVarP(&inv.help, "help", "h", false, "show help")
	return flagSet
}

// parseInvocation parses args. Flags may appear anywhere; everything else
// is positional, including "-r", whose position among the startup steps
// matters.
func parseInvocation(args []string) (*invocation, error) {
	inv := &invocation{}
	inv.flags = newFlagSet(inv)

	flagArgs, positional := splitArgs(inv.flags, args)
	if err := inv.flags.Parse(flagArgs); err != nil {
		return nil, fmt.Errorf("%w: %w", process.ErrUsage, err)
	}
	if inv.help || inv.showVersion {
		return inv, nil
	}
	if len(positional) == 0 {
		return nil, fmt.Errorf("%w: missing device or socket argument (see luatt --help)", process.ErrUsage)
	}
	inv.device = positional[0]
	inv.steps = positional[1:]
	return inv, nil
}

// splitArgs separates flags, with their values, from positional
// arguments, preserving the order of each. "--" ends flag parsing.
func splitArgs(flagSet *pflag.FlagSet, args []string) (flags, positional []string) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if arg == manifest.ResetArgument || arg == "-" || !strings.HasPrefix(arg, "-") {
			positional = append(positional, arg)
			continue
		}
		flags = append(flags, arg)
		if strings.Contains(arg, "=") {
			continue
		}
		var flag *pflag.Flag
		if name, long := strings.CutPrefix(arg, "--"); long {
			flag = flagSet.Lookup(name)
		} else if len(arg) == 2 {
			flag = flagSet.ShorthandLookup(arg[1:])
		}
		// A flag without an implicit value takes the next argument.
		if flag != nil && flag.NoOptDefVal == "" && i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}
	return flags, positional
}

// config loads the configuration file and applies flag overrides.
func (inv *invocation) config() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if inv.configPath != "" {
		cfg, err = config.LoadFile(inv.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if inv.flags.Changed("rendezvous-dir") {
		cfg.RendezvousDir = inv.rendezvousDir
	}
	if inv.flags.Changed("mqtt") {
		cfg.MQTT.Broker = inv.broker
	}
	if inv.flags.Changed("mqtt-client-id") {
		cfg.MQTT.ClientID = inv.clientID
	}
	if inv.flags.Changed("baud") {
		cfg.Serial.Baud = inv.baud
	}
	if inv.flags.Changed("color") {
		cfg.Console.Color = inv.color
	}
	if inv.flags.Changed("log-file") {
		cfg.Log.File = inv.logFile
	}
	if inv.verbose {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: invalid configuration: %w", process.ErrUsage, err)
	}
	return cfg, nil
}

// interactive reports whether the REPL runs: only when asked for and
// when stdin and stdout are both terminals.
func (inv *invocation) interactive() bool {
	return !inv.noREPL &&
		term.IsTerminal(int(os.Stdin.Fd())) &&
		term.IsTerminal(int(os.Stdout.Fd()))
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprint(w, `luatt - gateway to a Lua microcontroller on a serial line

USAGE
    luatt [flags] <device-or-socket> [-r] [eval:<code>] [file.lua | name=file.lua | Loader.cmd | bundle.luaz ...]
    luatt status [--json] <socket-or-alias>

The first luatt on a serial device owns it and opens a rendezvous socket.
Start more luatt processes on the socket or its alias to share the device.

STARTUP ARGUMENTS (run in order)
    -r               reset the device's Lua state
    eval:<code>      evaluate a chunk
    file.lua         load a source file; name=file.lua picks the module name
    Loader.cmd       load every file the command file lists
    bundle.luaz      load the Loader.cmd inside an archive (.luaz or .zip)

REPL COMMANDS
    !reset  !load <args...>  !exit  !quit; any other line is evaluated

FLAGS
`)
	flagSet.SetOutput(w)
	flagSet.PrintDefaults()
}
