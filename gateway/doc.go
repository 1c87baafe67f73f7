// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway assembles one luatt process.
//
// [Start] opens the upstream path and decides the process's role from
// what it finds there:
//
//   - A character device makes a root gateway. It waits for the device's
//     "sched|version|..." announcement, then serves child gateways on its
//     rendezvous socket, answers status queries on the control socket,
//     and bridges pub/sub verbs to an MQTT broker when one is configured.
//   - A socket makes a child gateway. It announces itself to the device
//     with "noret|reconnect|<session>" and otherwise behaves like a root
//     without a rendezvous socket or broker.
//
// In both roles a single goroutine reads the upstream connection and
// hands every record to the router. The gateway stops when its context
// is cancelled, when Close is called, or when the upstream connection
// ends; Done and Err report the last case.
package gateway
