// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"strings"
)

// Firmware identifies the loader running on a device.
type Firmware struct {
	// Name is the loader name, "luatt" for the reference firmware.
	Name string
	// Version is the loader's version string, uninterpreted.
	Version string
}

// String renders the firmware as "name version", or just the name when
// the device gave no version.
func (f Firmware) String() string {
	if f.Version == "" {
		return f.Name
	}
	return f.Name + " " + f.Version
}

// ParseFirmware parses the argument of a version announcement,
// "name,version". A bare name is accepted with an empty version.
func ParseFirmware(announcement string) (Firmware, error) {
	name, version, _ := strings.Cut(strings.TrimSpace(announcement), ",")
	if name == "" {
		return Firmware{}, fmt.Errorf("empty firmware name in announcement %q", announcement)
	}
	return Firmware{Name: name, Version: version}, nil
}
