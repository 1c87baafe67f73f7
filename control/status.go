// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ActionStatus is the action name of the status query.
const ActionStatus = "status"

// suffix is appended to a rendezvous socket path to name its control
// socket.
const suffix = ".ctl"

// Status describes a running root gateway.
type Status struct {
	Instance      string    `cbor:"instance" json:"instance"`
	PID           int       `cbor:"pid" json:"pid"`
	Device        string    `cbor:"device" json:"device"`
	Kind          string    `cbor:"kind" json:"kind"`
	Version       string    `cbor:"version" json:"version"`
	Started       time.Time `cbor:"started" json:"started"`
	Pending       []string  `cbor:"pending" json:"pending"`
	Forwarded     []string  `cbor:"forwarded" json:"forwarded"`
	Children      int       `cbor:"children" json:"children"`
	Connections   int       `cbor:"connections" json:"connections"`
	Broker        string    `cbor:"broker,omitempty" json:"broker,omitempty"`
	Subscriptions []string  `cbor:"subscriptions,omitempty" json:"subscriptions,omitempty"`
}

// SocketPath returns the control socket of the rendezvous socket at
// rendezvousPath.
func SocketPath(rendezvousPath string) string {
	return rendezvousPath + suffix
}

// PathFor resolves target, a rendezvous socket or device alias, to its
// control socket. An alias is followed to the instance socket it points
// at; a relative link target is relative to the alias's directory.
func PathFor(target string) (string, error) {
	if strings.HasSuffix(target, suffix) {
		return target, nil
	}
	info, err := os.Lstat(target)
	if err != nil {
		return "", err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		destination, err := os.Readlink(target)
		if err != nil {
			return "", err
		}
		if !filepath.IsAbs(destination) {
			destination = filepath.Join(filepath.Dir(target), destination)
		}
		target = destination
	}
	if _, err := os.Stat(SocketPath(target)); err != nil {
		return "", fmt.Errorf("%s has no control socket: %w", target, err)
	}
	return SocketPath(target), nil
}
