// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

// luatt is a gateway to a Lua-scripted microcontroller on a serial line.
//
// The first luatt started on a serial device becomes the root gateway: it
// owns the line, waits for the device to announce its firmware, and opens
// a rendezvous socket in the rendezvous directory (default /tmp) along
// with an alias named after the device:
//
//	luatt /dev/ttyUSB0 --mqtt 192.168.1.1
//
// Further luatt processes attach through the alias and share the device:
//
//	luatt /tmp/luatt.ttyUSB0 blink.lua
//
// Arguments after the device run in order before the interactive prompt:
// "-r" resets the device's Lua state, "eval:<code>" evaluates a chunk,
// and file.lua, name=file.lua, Loader.cmd, .luaz and .zip arguments load
// sources. At the "lua>" prompt each line is evaluated on the device;
// !reset, !load, !exit and !quit are meta-commands.
//
// "luatt status <socket-or-alias>" queries a root gateway's control
// socket.
package main
