// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// baudRates maps line rates to termios speed constants.
var baudRates = map[int]uint32{
	1200:   unix.B1200,
	2400:   unix.B2400,
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
	460800: unix.B460800,
	921600: unix.B921600,
}

// OpenSerial opens the serial port at path in canonical mode at the given
// baud rate, discarding any input queued before the open.
//
// The descriptor is opened non-blocking so the runtime poller manages it
// and the returned file supports SetReadDeadline. O_NOCTTY keeps the port
// from becoming the controlling terminal.
func OpenSerial(path string, baud int) (*os.File, error) {
	speed, ok := baudRates[baud]
	if !ok {
		return nil, fmt.Errorf("%w: baud rate %d", ErrUnsupported, baud)
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", path, err)
	}

	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("reading terminal attributes of %s: %w", path, err)
	}

	termios.Iflag = unix.IGNBRK | unix.IGNPAR
	termios.Oflag = 0
	termios.Cflag = unix.CS8 | unix.CREAD | unix.CLOCAL | unix.HUPCL | speed
	termios.Lflag = unix.ICANON
	termios.Ispeed = speed
	termios.Ospeed = speed
	for i := range termios.Cc {
		termios.Cc[i] = 0
	}

	if err := unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIFLUSH); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("flushing input of %s: %w", path, err)
	}
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("configuring %s: %w", path, err)
	}

	return os.NewFile(uintptr(fd), path), nil
}
