// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package downstream

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/luatt/luatt/lib/testutil"
	"github.com/luatt/luatt/lib/token"
	"github.com/luatt/luatt/lib/wire"
	"github.com/luatt/luatt/router"
)

const testTimeout = 5 * time.Second

type discardOutput struct{}

func (discardOutput) Reply(wire.Packet)       {}
func (discardOutput) Unsolicited(wire.Packet) {}
func (discardOutput) Text(wire.Packet)        {}

type upstreamRecorder struct {
	packets chan wire.Packet
}

func (u *upstreamRecorder) WritePacket(packet wire.Packet) error {
	u.packets <- packet
	return nil
}

func (u *upstreamRecorder) Send(tok string, fields ...string) error {
	return u.WritePacket(append(wire.Packet{tok}, fields...))
}

type fixture struct {
	server   *Server
	router   *router.Router
	upstream *upstreamRecorder
}

func startServer(t *testing.T, directory string) *fixture {
	t.Helper()
	return startServerWithTimeout(t, directory, 0)
}

func startServerWithTimeout(t *testing.T, directory string, writeTimeout time.Duration) *fixture {
	t.Helper()
	upstream := &upstreamRecorder{packets: make(chan wire.Packet, 64)}
	routes := router.New(router.Config{
		Identity: token.Identity{Session: "1", Process: "2"},
		Upstream: upstream,
		Output:   discardOutput{},
	})
	t.Cleanup(routes.Close)

	server := &Server{
		Directory: directory,
		Device:    "/dev/ttyACM0",
		Router:    routes,
		Upstream:  upstream,

		WriteTimeout: writeTimeout,
	}
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(server.Stop)
	return &fixture{server: server, router: routes, upstream: upstream}
}

func dial(t *testing.T, path string) net.Conn {
	t.Helper()
	connection, err := net.DialTimeout("unix", path, testTimeout)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { connection.Close() })
	return connection
}

// waitFor polls condition until it holds or the test times out.
func waitFor(t *testing.T, description string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", description)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPaths(t *testing.T) {
	t.Parallel()
	if got, want := InstancePath("/tmp", 97372), "/tmp/luatt.97372"; got != want {
		t.Errorf("InstancePath: got %q, want %q", got, want)
	}
	if got, want := AliasPath("/tmp", "/dev/cu.usbmodemFD114301"), "/tmp/luatt.cu.usbmodemFD114301"; got != want {
		t.Errorf("AliasPath: got %q, want %q", got, want)
	}
}

func TestStartCreatesSocketAndAlias(t *testing.T) {
	t.Parallel()
	directory := testutil.SocketDir(t)
	f := startServer(t, directory)

	target, err := os.Readlink(f.server.AliasPath())
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if want := InstanceName(os.Getpid()); target != want {
		t.Fatalf("alias target: got %q, want %q", target, want)
	}
	info, err := os.Stat(f.server.AliasPath())
	if err != nil {
		t.Fatalf("Stat through alias: %v", err)
	}
	if info.Mode()&os.ModeSocket == 0 {
		t.Fatalf("alias resolves to mode %v, want a socket", info.Mode())
	}

	f.server.Stop()
	for _, path := range []string{f.server.SocketPath(), f.server.AliasPath()} {
		if _, err := os.Lstat(path); !os.IsNotExist(err) {
			t.Errorf("%s still present after Stop (err=%v)", path, err)
		}
	}
}

func TestStartReplacesExistingAlias(t *testing.T) {
	t.Parallel()
	directory := testutil.SocketDir(t)
	alias := AliasPath(directory, "/dev/ttyACM0")
	if err := os.Symlink("luatt.1", alias); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	startServer(t, directory)
	target, err := os.Readlink(alias)
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if target != InstanceName(os.Getpid()) {
		t.Fatalf("alias target: got %q", target)
	}
}

func TestStartRefusesNonSymlinkAlias(t *testing.T) {
	t.Parallel()
	directory := testutil.SocketDir(t)
	alias := AliasPath(directory, "/dev/ttyACM0")
	if err := os.WriteFile(alias, []byte("not a link"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	server := &Server{
		Directory: directory,
		Device:    "/dev/ttyACM0",
		Router:    router.New(router.Config{Output: discardOutput{}}),
		Upstream:  &upstreamRecorder{packets: make(chan wire.Packet, 1)},
	}
	if err := server.Start(context.Background()); err == nil {
		server.Stop()
		t.Fatal("Start succeeded with a regular file at the alias path")
	}
	if _, err := os.Lstat(filepath.Join(directory, InstanceName(os.Getpid()))); err == nil {
		// The listener was closed; net.UnixListener removes its socket
		// file on Close.
		t.Error("socket left behind after failed Start")
	}
}

func TestStartRequiresFields(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		server *Server
	}{
		{"no directory", &Server{Device: "/dev/ttyACM0"}},
		{"no device", &Server{Directory: "/tmp"}},
		{"no router", &Server{Directory: "/tmp", Device: "/dev/ttyACM0"}},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			if err := test.server.Start(context.Background()); err == nil {
				t.Fatal("Start succeeded")
			}
		})
	}
}

func TestChildRequestRoundTrip(t *testing.T) {
	t.Parallel()
	directory := testutil.SocketDir(t)
	f := startServer(t, directory)

	connection := dial(t, f.server.AliasPath())
	request := wire.Packet{"7/8/abc", "load", "blink", "led.on()\n"}
	if _, err := connection.Write(wire.Encode(request...)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	forwarded := testutil.RequireReceive(t, f.upstream.packets, testTimeout, "request forwarded upstream")
	if !slices.Equal(forwarded, request) {
		t.Fatalf("upstream: got %q, want %q", forwarded, request)
	}
	if got := f.router.Snapshot().Forwarded; !slices.Equal(got, []string{"7/8/abc"}) {
		t.Fatalf("forward targets: got %v", got)
	}

	reply := wire.Packet{"7/8/abc", "ret", "ok"}
	f.router.OnUpstreamPacket(reply)

	reader := wire.NewReader(connection)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	got, err := reader.Next(ctx)
	if err != nil {
		t.Fatalf("reading reply: %v", err)
	}
	if !slices.Equal(got, reply) {
		t.Fatalf("reply: got %q, want %q", got, reply)
	}
}

func TestChildNoReturnIsNotTracked(t *testing.T) {
	t.Parallel()
	directory := testutil.SocketDir(t)
	f := startServer(t, directory)

	connection := dial(t, f.server.SocketPath())
	connection.Write(wire.Encode("noret", "reconnect", "42"))
	testutil.RequireReceive(t, f.upstream.packets, testTimeout, "noret forwarded")
	if got := f.router.Snapshot().Forwarded; len(got) != 0 {
		t.Fatalf("forward targets: got %v, want none", got)
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	t.Parallel()
	directory := testutil.SocketDir(t)
	f := startServer(t, directory)

	connection := dial(t, f.server.SocketPath())
	connection.Write(wire.Encode("7/8/abc", "eval", "x"))
	testutil.RequireReceive(t, f.upstream.packets, testTimeout, "request forwarded")
	waitFor(t, "child to be counted", func() bool { return f.server.Active() == 1 })

	connection.Close()
	waitFor(t, "forward target removal", func() bool {
		snapshot := f.router.Snapshot()
		return len(snapshot.Forwarded) == 0 && snapshot.Children == 0
	})
	waitFor(t, "handler exit", func() bool { return f.server.Active() == 0 })
}

func TestMalformedRecordClosesChild(t *testing.T) {
	t.Parallel()
	directory := testutil.SocketDir(t)
	f := startServer(t, directory)

	connection := dial(t, f.server.SocketPath())
	connection.Write([]byte("7/8/abc|eval|&2000000\n"))

	connection.SetReadDeadline(time.Now().Add(testTimeout))
	if _, err := connection.Read(make([]byte, 16)); !errors.Is(err, io.EOF) {
		t.Fatalf("Read after malformed record: got %v, want EOF", err)
	}
}

func TestStopDisconnectsChildren(t *testing.T) {
	t.Parallel()
	directory := testutil.SocketDir(t)
	f := startServer(t, directory)

	connection := dial(t, f.server.SocketPath())
	waitFor(t, "child to be counted", func() bool { return f.server.Active() == 1 })

	stopped := make(chan struct{})
	go func() {
		f.server.Stop()
		close(stopped)
	}()
	testutil.RequireClosed(t, stopped, testTimeout, "Stop did not return")

	connection.SetReadDeadline(time.Now().Add(testTimeout))
	if _, err := connection.Read(make([]byte, 16)); !errors.Is(err, io.EOF) {
		t.Fatalf("Read after Stop: got %v, want EOF", err)
	}
}

func TestTraceLabels(t *testing.T) {
	t.Parallel()
	directory := testutil.SocketDir(t)
	upstream := &upstreamRecorder{packets: make(chan wire.Packet, 8)}
	routes := router.New(router.Config{Upstream: upstream, Output: discardOutput{}})
	t.Cleanup(routes.Close)

	traces := make(chan string, 8)
	server := &Server{
		Directory: directory,
		Device:    "/dev/ttyUSB1",
		Router:    routes,
		Upstream:  upstream,
		Trace:     func(label, line string) { traces <- label + " " + line },
	}
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(server.Stop)

	connection := dial(t, server.SocketPath())
	connection.Write(wire.Encode("7/8/t", "eval", "x"))
	testutil.RequireReceive(t, upstream.packets, testTimeout, "request forwarded")
	routes.OnUpstreamPacket(wire.Packet{"7/8/t", "ret", "ok"})

	want := []string{"sock> 7/8/t|eval|x", ">sock 7/8/t|ret|ok"}
	for _, line := range want {
		if got := testutil.RequireReceive(t, traces, testTimeout, "trace"); got != line {
			t.Errorf("trace: got %q, want %q", got, line)
		}
	}
}

// stallChild connects a child that sends one request and never reads,
// then floods replies for that request from the upstream side until the
// socket buffer fills. It returns a channel closed when the flood ends
// and a counter of dispatched replies.
func stallChild(t *testing.T, f *fixture) (<-chan struct{}, *atomic.Int64) {
	t.Helper()
	connection := dial(t, f.server.SocketPath())
	connection.Write(wire.Encode("c/1/aa", "eval", "x"))
	testutil.RequireReceive(t, f.upstream.packets, testTimeout, "request forwarded")

	reply := wire.Packet{"c/1/aa", "print", strings.Repeat("y", 4000)}
	var dispatched atomic.Int64
	flooded := make(chan struct{})
	go func() {
		defer close(flooded)
		for i := 0; i < 2000; i++ {
			f.router.OnUpstreamPacket(reply)
			dispatched.Add(1)
		}
	}()
	return flooded, &dispatched
}

// waitStalled waits until dispatched stops advancing short of the end
// of the flood.
func waitStalled(t *testing.T, flooded <-chan struct{}, dispatched *atomic.Int64) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	previous := int64(-1)
	for time.Now().Before(deadline) {
		select {
		case <-flooded:
			t.Fatal("every reply was written; the child never stalled")
		case <-time.After(50 * time.Millisecond):
		}
		current := dispatched.Load()
		if current == previous {
			return
		}
		previous = current
	}
	t.Fatal("upstream dispatch never stalled")
}

func TestStopWithStalledChild(t *testing.T) {
	t.Parallel()
	directory := testutil.SocketDir(t)
	f := startServerWithTimeout(t, directory, time.Minute)

	flooded, dispatched := stallChild(t, f)
	waitStalled(t, flooded, dispatched)

	stopped := make(chan struct{})
	go func() {
		f.server.Stop()
		close(stopped)
	}()
	testutil.RequireClosed(t, stopped, testTimeout, "Stop did not return with a child that stopped reading")
	testutil.RequireClosed(t, flooded, testTimeout, "upstream dispatch still blocked after Stop")
	if got := f.router.Snapshot().Forwarded; len(got) != 0 {
		t.Errorf("forward targets after Stop: got %v, want none", got)
	}
}

func TestStalledChildIsDropped(t *testing.T) {
	t.Parallel()
	directory := testutil.SocketDir(t)
	f := startServerWithTimeout(t, directory, 50*time.Millisecond)

	flooded, _ := stallChild(t, f)
	testutil.RequireClosed(t, flooded, testTimeout, "upstream dispatch blocked by a child that stopped reading")
	waitFor(t, "stalled child removal", func() bool {
		snapshot := f.router.Snapshot()
		return len(snapshot.Forwarded) == 0 && f.server.Active() == 0
	})
}
