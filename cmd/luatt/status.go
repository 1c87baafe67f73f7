// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/luatt/luatt/control"
	"github.com/luatt/luatt/lib/process"
)

const statusTimeout = 5 * time.Second

// runStatus implements "luatt status".
func runStatus(args []string, w io.Writer) error {
	var jsonOutput bool
	flagSet := pflag.NewFlagSet("luatt status", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.BoolVar(&jsonOutput, "json", false, "print the status as JSON")
	if err := flagSet.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", process.ErrUsage, err)
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("%w: usage: luatt status [--json] <socket-or-alias>", process.ErrUsage)
	}

	socketPath, err := control.PathFor(flagSet.Arg(0))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()

	var status control.Status
	if err := control.Query(ctx, socketPath, control.ActionStatus, nil, &status); err != nil {
		return err
	}

	if jsonOutput {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(status)
	}
	return printStatus(w, status)
}

func printStatus(w io.Writer, status control.Status) error {
	table := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	row := func(name string, value any) { fmt.Fprintf(table, "%s\t%v\n", name, value) }

	row("device", status.Device)
	row("kind", status.Kind)
	row("firmware", status.Version)
	row("pid", status.PID)
	row("instance", status.Instance)
	row("started", status.Started.Local().Format(time.DateTime))
	row("children", fmt.Sprintf("%d (%d connected)", status.Children, status.Connections))
	row("pending", listOrNone(status.Pending))
	row("forwarded", listOrNone(status.Forwarded))
	if status.Broker != "" {
		row("broker", status.Broker)
		row("subscriptions", listOrNone(status.Subscriptions))
	}
	return table.Flush()
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, " ")
}
