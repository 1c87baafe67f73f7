// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package downstream

import (
	"path/filepath"
	"strconv"
)

// socketPrefix starts every rendezvous file name.
const socketPrefix = "luatt."

// InstanceName returns the rendezvous socket file name for the gateway
// process with the given pid.
func InstanceName(pid int) string {
	return socketPrefix + strconv.Itoa(pid)
}

// InstancePath returns the rendezvous socket path for pid inside
// directory.
func InstancePath(directory string, pid int) string {
	return filepath.Join(directory, InstanceName(pid))
}

// AliasPath returns the stable alias a child dials to reach whichever
// root gateway currently owns device.
func AliasPath(directory, device string) string {
	return filepath.Join(directory, socketPrefix+filepath.Base(device))
}
