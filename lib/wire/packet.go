// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "strings"

// Packet is one decoded record. Field 0 is the correlation token and
// field 1, when present, is the verb. Fields hold raw bytes; escaped
// fields have already been replaced by their trailer contents.
type Packet []string

// Token returns field 0, or "" for an empty packet.
func (p Packet) Token() string {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}

// Verb decodes field 1. Packets with fewer than two fields have no verb
// and report VerbUnknown.
func (p Packet) Verb() Verb {
	if len(p) < 2 {
		return VerbUnknown
	}
	return ParseVerb(p[1])
}

// Arg returns argument i (field i+2), or "" if absent.
func (p Packet) Arg(i int) string {
	if i+2 >= len(p) {
		return ""
	}
	return p[i+2]
}

// Body joins every field after the token with '|', which is how replies
// are shown to a user.
func (p Packet) Body() string {
	if len(p) < 2 {
		return ""
	}
	return strings.Join(p[1:], "|")
}

// String joins all fields with '|'. Escaped content is not re-escaped, so
// the result is for display only.
func (p Packet) String() string {
	return strings.Join(p, "|")
}

// Verb is the closed set of record verbs the gateway understands. Anything
// else decodes to VerbUnknown and is ignored for forward compatibility.
type Verb int

const (
	VerbUnknown Verb = iota
	// VerbRet is the terminal reply ending a request's wait.
	VerbRet
	// VerbPub, VerbSub and VerbUnsub are device-initiated bridge verbs.
	VerbPub
	VerbSub
	VerbUnsub
	VerbReset
	VerbLoad
	VerbEval
	// VerbNoReturn marks a fire-and-forget record.
	VerbNoReturn
	// VerbReconnect is sent once by a child gateway after attaching.
	VerbReconnect
	// VerbMsg carries an inbound bridge message down to the device.
	VerbMsg
	// VerbVersion is the device's startup announcement.
	VerbVersion
	VerbError
)

var verbNames = map[Verb]string{
	VerbRet:       "ret",
	VerbPub:       "pub",
	VerbSub:       "sub",
	VerbUnsub:     "unsub",
	VerbReset:     "reset",
	VerbLoad:      "load",
	VerbEval:      "eval",
	VerbNoReturn:  "noret",
	VerbReconnect: "reconnect",
	VerbMsg:       "msg",
	VerbVersion:   "version",
	VerbError:     "error",
}

var verbsByName = func() map[string]Verb {
	byName := make(map[string]Verb, len(verbNames))
	for verb, name := range verbNames {
		byName[name] = verb
	}
	return byName
}()

// ParseVerb maps a wire verb to its Verb. Unrecognized names return
// VerbUnknown.
func ParseVerb(name string) Verb {
	if verb, ok := verbsByName[name]; ok {
		return verb
	}
	return VerbUnknown
}

// String returns the wire name of the verb, or "unknown".
func (v Verb) String() string {
	if name, ok := verbNames[v]; ok {
		return name
	}
	return "unknown"
}

// IsBridge reports whether v is one of the publish/subscribe verbs the
// device sends to the message-bus bridge.
func (v Verb) IsBridge() bool {
	return v == VerbPub || v == VerbSub || v == VerbUnsub
}

// BridgeArity is the exact field count (token and verb included) a bridge
// verb requires, or 0 for non-bridge verbs.
func (v Verb) BridgeArity() int {
	switch v {
	case VerbPub:
		return 4
	case VerbSub, VerbUnsub:
		return 3
	default:
		return 0
	}
}
