// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/luatt/luatt/lib/codec"
)

// dialTimeout bounds connecting to a control socket.
const dialTimeout = 5 * time.Second

// maxResponseSize bounds a response read by Query.
const maxResponseSize = 1024 * 1024

// ActionError is returned by Query when the gateway answered with
// ok=false. Transport failures are returned as ordinary errors.
type ActionError struct {
	Action  string
	Message string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("control action %q: %s", e.Action, e.Message)
}

// Query sends one request to the control socket at socketPath and decodes
// the response data into result. fields are merged into the request map
// alongside "action". result may be nil when the action returns no data.
func Query(ctx context.Context, socketPath, action string, fields map[string]any, result any) error {
	request := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		request[key] = value
	}
	request["action"] = action

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", socketPath, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return fmt.Errorf("sending %q request: %w", action, err)
	}
	if unix, ok := conn.(*net.UnixConn); ok {
		unix.CloseWrite()
	}

	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("reading %q response: connection closed without a response", action)
		}
		return fmt.Errorf("reading %q response: %w", action, err)
	}

	if !response.OK {
		return &ActionError{Action: action, Message: response.Error}
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding %q response data: %w", action, err)
		}
	}
	return nil
}
