// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

// Package token defines the correlation ids that tie device replies to
// the request that caused them.
//
// A token is {Identity, Nonce}: the identity is chosen once when a
// gateway process starts and the nonce is random per request. Tokens are
// unique across every process in a gateway chain without a central
// allocator, and a process recognizes its own tokens by comparing
// identities. On the wire a token is "session/process/nonce".
package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	// Scheduled is the token the device uses for output that no
	// requester is waiting for, such as its startup announcement.
	Scheduled = "sched"

	// NoReturn marks a fire-and-forget record. It expects no terminal
	// reply and is never registered for correlation.
	NoReturn = "noret"
)

// nonceBytes is the number of random bytes in a nonce (24 hex digits).
const nonceBytes = 12

// Identity names one gateway process.
type Identity struct {
	// Session identifies the login session or launching shell.
	Session string
	// Process identifies the gateway process within the session.
	Process string
}

// ProcessIdentity returns the identity of the calling process: the parent
// process id as the session and its own process id.
func ProcessIdentity() Identity {
	return Identity{
		Session: strconv.Itoa(os.Getppid()),
		Process: strconv.Itoa(os.Getpid()),
	}
}

// String renders the identity as "session/process".
func (id Identity) String() string {
	return id.Session + "/" + id.Process
}

// New returns a fresh token owned by id.
func (id Identity) New() (Token, error) {
	var nonce [nonceBytes]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return Token{}, fmt.Errorf("generating token nonce: %w", err)
	}
	return Token{Identity: id, Nonce: hex.EncodeToString(nonce[:])}, nil
}

// Owns reports whether the wire token raw was generated by id. Reserved
// and unparseable tokens are owned by nobody.
func (id Identity) Owns(raw string) bool {
	parsed, ok := Parse(raw)
	return ok && parsed.Identity == id
}

// Token is one correlation id.
type Token struct {
	Identity
	Nonce string
}

// String renders the wire form "session/process/nonce".
func (t Token) String() string {
	return t.Session + "/" + t.Process + "/" + t.Nonce
}

// Parse decodes a wire token. ok is false for reserved tokens and anything
// not of the form "session/process/nonce" with non-empty parts.
func Parse(raw string) (Token, bool) {
	parts := strings.Split(raw, "/")
	if len(parts) != 3 {
		return Token{}, false
	}
	for _, part := range parts {
		if part == "" {
			return Token{}, false
		}
	}
	return Token{Identity: Identity{Session: parts[0], Process: parts[1]}, Nonce: parts[2]}, true
}

// ExpectsReply reports whether a record carrying raw expects replies,
// and so may be registered for correlation. Empty tokens and NoReturn do
// not. Scheduled does: a child that sends it receives the device's
// scheduled output until its next request.
func ExpectsReply(raw string) bool {
	return raw != "" && raw != NoReturn
}
