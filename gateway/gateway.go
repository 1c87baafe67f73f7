// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luatt/luatt/control"
	"github.com/luatt/luatt/downstream"
	"github.com/luatt/luatt/lib/netutil"
	"github.com/luatt/luatt/lib/token"
	"github.com/luatt/luatt/lib/version"
	"github.com/luatt/luatt/lib/wire"
	"github.com/luatt/luatt/mqttbridge"
	"github.com/luatt/luatt/router"
	"github.com/luatt/luatt/transport"
)

var (
	// ErrBrokerOnChild is returned when a broker is configured for a
	// gateway whose upstream is another gateway. Only the root, which
	// owns the device, bridges pub/sub traffic.
	ErrBrokerOnChild = errors.New("gateway: MQTT bridging needs a serial device, not a parent gateway")

	// ErrUpstreamClosed is reported by Err when the upstream connection
	// ended without an error of its own: the parent gateway exited or
	// the device closed the line.
	ErrUpstreamClosed = errors.New("gateway: upstream closed")
)

// Config configures a Gateway.
type Config struct {
	// Device is the upstream path: a serial device for a root gateway or
	// a rendezvous socket (or its alias) for a child. Required.
	Device string

	// RendezvousDir holds the rendezvous and control sockets of a root
	// gateway. Required for a root.
	RendezvousDir string

	// Baud is the serial line rate. Zero means transport.DefaultBaud.
	Baud int

	// DialTimeout bounds connecting to a parent gateway.
	DialTimeout time.Duration

	// Broker, if set, is the MQTT broker a root gateway bridges to.
	Broker string

	// ClientID and KeepAlive configure the broker session. See
	// mqttbridge.Config.
	ClientID  string
	KeepAlive time.Duration

	// Identity owns this process's tokens. The zero value means
	// token.ProcessIdentity().
	Identity token.Identity

	// Output shows records no caller consumes. Required.
	Output router.Output

	// Trace, if set, receives every labelled traffic line: upstream
	// input and output, child traffic, and broker events. It is called
	// from many goroutines.
	Trace func(label, line string)

	// Logger receives structured log output. If nil, slog.Default() is
	// used.
	Logger *slog.Logger
}

// Gateway is a running luatt process.
type Gateway struct {
	config   Config
	logger   *slog.Logger
	instance string
	started  time.Time

	upstream *transport.Upstream
	writer   *wire.Writer
	router   *router.Router
	peer     *mqttbridge.Peer
	server   *downstream.Server

	announcement wire.Packet
	firmware     version.Firmware

	cancel     context.CancelFunc
	readerDone chan struct{}
	control    sync.WaitGroup
	closeOnce  sync.Once

	mu      sync.Mutex
	readErr error
}

// Start opens config.Device and brings the gateway up. For a root
// gateway it returns once the device has announced itself and the
// rendezvous socket is accepting. The gateway runs until ctx is cancelled
// or Close is called.
func Start(ctx context.Context, config Config) (*Gateway, error) {
	if config.Device == "" {
		return nil, fmt.Errorf("gateway: Device is required")
	}
	if config.Output == nil {
		return nil, fmt.Errorf("gateway: Output is required")
	}
	if config.Identity == (token.Identity{}) {
		config.Identity = token.ProcessIdentity()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	kind, err := transport.Detect(config.Device)
	if err != nil {
		return nil, err
	}
	if kind == transport.KindSocket && config.Broker != "" {
		return nil, ErrBrokerOnChild
	}
	if kind == transport.KindSerial && config.RendezvousDir == "" {
		return nil, fmt.Errorf("gateway: RendezvousDir is required for a serial device")
	}

	ctx, cancel := context.WithCancel(ctx)
	g := &Gateway{
		config:     config,
		logger:     logger.With("device", config.Device),
		instance:   uuid.NewString(),
		started:    time.Now(),
		cancel:     cancel,
		readerDone: make(chan struct{}),
	}

	if err := g.start(ctx, kind); err != nil {
		g.Close()
		return nil, err
	}
	return g, nil
}

func (g *Gateway) start(ctx context.Context, kind transport.Kind) error {
	// The broker comes first so a bad address fails before the device
	// is touched. Inbound messages need the router, which exists before
	// any subscription can be made.
	if g.config.Broker != "" {
		peer, err := mqttbridge.Dial(ctx, mqttbridge.Config{
			Broker:    g.config.Broker,
			ClientID:  g.config.ClientID,
			KeepAlive: g.config.KeepAlive,
			OnMessage: g.deliverMessage,
			Trace:     g.config.Trace,
			Logger:    g.logger,
		})
		if err != nil {
			return err
		}
		g.peer = peer
	}

	upstream, err := transport.Open(ctx, g.config.Device, transport.Options{
		Baud:        g.config.Baud,
		DialTimeout: g.config.DialTimeout,
	})
	if err != nil {
		return err
	}
	g.upstream = upstream
	g.logger.Info("upstream open", "kind", kind.String())

	g.writer = wire.NewWriter(upstream.Conn, g.logger)
	g.writer.OnLine = g.tracer(kind.OutboundLabel())

	routerConfig := router.Config{
		Identity: g.config.Identity,
		Upstream: g.writer,
		Output:   g.config.Output,
		Logger:   g.logger,
	}
	if g.peer != nil {
		routerConfig.Bridge = g.peer
	}
	g.router = router.New(routerConfig)

	reader := wire.NewReader(upstream.Conn)
	reader.OnLine = g.tracer(transport.LabelFromUpstream)
	go g.readLoop(ctx, reader)

	if kind == transport.KindSocket {
		if err := g.router.Notify(wire.VerbReconnect.String(), g.config.Identity.Session); err != nil {
			return fmt.Errorf("announcing to parent gateway: %w", err)
		}
		return nil
	}
	return g.startRoot(ctx)
}

// startRoot waits for the device and then opens the root's sockets.
// Children are only admitted once the device has announced itself.
func (g *Gateway) startRoot(ctx context.Context) error {
	announcement, err := g.router.WaitAnnouncement(ctx)
	if err != nil {
		if readErr := g.Err(); readErr != nil {
			return fmt.Errorf("waiting for device announcement: %w", readErr)
		}
		return fmt.Errorf("waiting for device announcement: %w", err)
	}
	g.announcement = announcement
	if firmware, err := version.ParseFirmware(announcement.Arg(0)); err != nil {
		g.logger.Warn("unrecognized device announcement", "record", announcement.String(), "error", err)
	} else {
		g.firmware = firmware
		g.logger.Info("device announced", "firmware", firmware.String())
	}

	g.server = &downstream.Server{
		Directory: g.config.RendezvousDir,
		Device:    g.config.Device,
		Router:    g.router,
		Upstream:  g.writer,
		Logger:    g.logger,
		Trace:     g.config.Trace,
	}
	if err := g.server.Start(ctx); err != nil {
		g.server = nil
		return err
	}

	controlServer := control.NewServer(control.SocketPath(g.server.SocketPath()), g.logger)
	controlServer.Handle(control.ActionStatus, func(context.Context, []byte) (any, error) {
		return g.Status(), nil
	})
	listener, err := controlServer.Listen()
	if err != nil {
		return err
	}
	g.control.Add(1)
	go func() {
		defer g.control.Done()
		controlServer.Serve(ctx, listener)
	}()
	return nil
}

// readLoop is the only reader of the upstream connection. When it ends
// the router is closed, waking every blocked request.
func (g *Gateway) readLoop(ctx context.Context, reader *wire.Reader) {
	defer close(g.readerDone)
	defer g.router.Close()

	for {
		packet, err := reader.Next(ctx)
		if err != nil {
			g.finish(err)
			return
		}
		g.router.OnUpstreamPacket(packet)
	}
}

// finish records why the upstream reader stopped.
func (g *Gateway) finish(err error) {
	var recorded error
	switch {
	case errors.Is(err, wire.ErrCancelled):
		g.logger.Debug("upstream reader stopped")
	case errors.Is(err, wire.ErrMalformedPacket):
		g.logger.Error("malformed record from upstream", "error", err)
		recorded = err
	case netutil.IsDeviceGone(err):
		g.logger.Warn("device disconnected", "error", err)
		recorded = fmt.Errorf("%w: %w", ErrUpstreamClosed, err)
	case errors.Is(err, io.EOF), netutil.IsExpectedCloseError(err):
		g.logger.Info("upstream closed")
		recorded = ErrUpstreamClosed
	default:
		g.logger.Error("upstream read failed", "error", err)
		recorded = err
	}

	g.mu.Lock()
	g.readErr = recorded
	g.mu.Unlock()
}

// deliverMessage forwards a broker message to the device as
// "noret|msg|<topic>|<payload>".
func (g *Gateway) deliverMessage(topic, payload string) {
	if g.router == nil {
		return
	}
	if err := g.router.Notify(wire.VerbMsg.String(), topic, payload); err != nil {
		g.logger.Warn("forwarding mqtt message to device", "topic", topic, "error", err)
	}
}

func (g *Gateway) tracer(label string) func(string) {
	if g.config.Trace == nil {
		return nil
	}
	return func(line string) { g.config.Trace(label, line) }
}

// Router returns the router requests are issued through.
func (g *Gateway) Router() *router.Router {
	return g.router
}

// Root reports whether this gateway owns the device.
func (g *Gateway) Root() bool {
	return g.upstream != nil && g.upstream.Kind == transport.KindSerial
}

// Announcement returns the device's version record. Nil for a child.
func (g *Gateway) Announcement() wire.Packet {
	return g.announcement
}

// SocketPath returns the rendezvous socket path. Empty for a child.
func (g *Gateway) SocketPath() string {
	if g.server == nil {
		return ""
	}
	return g.server.SocketPath()
}

// AliasPath returns the device alias children dial. Empty for a child.
func (g *Gateway) AliasPath() string {
	if g.server == nil {
		return ""
	}
	return g.server.AliasPath()
}

// Done is closed once the upstream reader has stopped.
func (g *Gateway) Done() <-chan struct{} {
	return g.readerDone
}

// Err reports why the upstream reader stopped: nil after cancellation or
// Close, ErrUpstreamClosed when the other end went away, or the read
// error.
func (g *Gateway) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.readErr
}

// Status describes the gateway for the control socket.
func (g *Gateway) Status() control.Status {
	snapshot := g.router.Snapshot()
	status := control.Status{
		Instance:  g.instance,
		PID:       os.Getpid(),
		Device:    g.config.Device,
		Kind:      g.upstream.Kind.String(),
		Version:   g.firmware.String(),
		Started:   g.started.UTC(),
		Pending:   snapshot.Pending,
		Forwarded: snapshot.Forwarded,
		Children:  snapshot.Children,
	}
	if g.server != nil {
		status.Connections = g.server.Active()
	}
	if g.peer != nil {
		status.Broker = g.config.Broker
		status.Subscriptions = g.peer.Subscriptions()
	}
	return status
}

// Close stops the gateway: the rendezvous and control sockets close,
// children are disconnected, blocked requests fail with
// router.ErrCancelled, and the upstream connection and broker session
// are closed. Close waits for every goroutine it started.
func (g *Gateway) Close() error {
	var err error
	g.closeOnce.Do(func() {
		g.cancel()
		if g.server != nil {
			g.server.Stop()
		}
		g.control.Wait()
		if g.router != nil {
			g.router.Close()
			<-g.readerDone
		}
		if g.upstream != nil {
			if closeErr := g.upstream.Close(); closeErr != nil && !netutil.IsExpectedCloseError(closeErr) {
				err = closeErr
			}
		}
		if g.peer != nil {
			g.peer.Close()
		}
		g.logger.Debug("gateway closed")
	})
	return err
}
