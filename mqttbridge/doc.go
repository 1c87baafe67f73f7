// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

// Package mqttbridge connects the device's publish/subscribe verbs to an
// MQTT broker.
//
// A [Peer] implements router.BridgePeer. The device's "pub", "sub" and
// "unsub" records become MQTT publishes, subscriptions and
// unsubscriptions; messages arriving on subscribed topics are handed to
// Config.OnMessage, which a gateway turns into "noret|msg|topic|payload"
// records for the device. The peer remembers which topics the device
// asked for and resubscribes to all of them whenever the client
// (re)connects, since the broker session does not survive a reconnect.
//
// Broker calls never block the caller: the upstream reader invokes the
// peer inline, and a slow broker must not stall device input. Failures
// are logged when the broker acknowledges.
package mqttbridge
