// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package mqttbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	// DefaultPort is the broker port used when the address has none.
	DefaultPort = "1883"

	// DefaultKeepAlive matches the device tool's historical setting.
	DefaultKeepAlive = 60 * time.Second

	// AllTopics as an unsubscribe topic drops every tracked subscription.
	AllTopics = "*"

	// TraceLabel marks broker events in console traces.
	TraceLabel = "mqtt"

	// disconnectQuiesce is how long Close lets in-flight work finish, in
	// milliseconds.
	disconnectQuiesce = 250
)

// Client is the subset of mqtt.Client the peer drives.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Disconnect(quiesce uint)
}

// Config configures a Peer.
type Config struct {
	// Broker is "host", "host:port" or a full URL such as
	// "tcp://host:1883".
	Broker string

	// ClientID identifies this gateway to the broker. Empty means a
	// random "luatt-<uuid>".
	ClientID string

	// KeepAlive is the MQTT keepalive interval. Zero means
	// DefaultKeepAlive.
	KeepAlive time.Duration

	// OnMessage receives every message on a subscribed topic. It is
	// called from the client's delivery goroutine.
	OnMessage func(topic, payload string)

	// Trace, if set, receives one line per broker event.
	Trace func(label, line string)

	// Logger receives structured log output. If nil, slog.Default() is
	// used.
	Logger *slog.Logger
}

// Peer is the broker side of the bridge.
type Peer struct {
	client    Client
	onMessage func(topic, payload string)
	trace     func(label, line string)
	logger    *slog.Logger

	mu            sync.Mutex
	subscriptions map[string]struct{}

	// acks tracks goroutines waiting on broker acknowledgements.
	acks      sync.WaitGroup
	closed    chan struct{}
	closeOnce sync.Once
}

// BrokerURL normalizes a broker address to a URL paho accepts.
func BrokerURL(address string) (string, error) {
	if address == "" {
		return "", errors.New("mqttbridge: empty broker address")
	}
	if strings.Contains(address, "://") {
		return address, nil
	}
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, DefaultPort)
	}
	return "tcp://" + address, nil
}

// Dial connects to the broker and returns a ready Peer. The client
// reconnects on its own after a lost connection; each reconnect reissues
// the tracked subscriptions.
func Dial(ctx context.Context, config Config) (*Peer, error) {
	broker, err := BrokerURL(config.Broker)
	if err != nil {
		return nil, err
	}
	clientID := config.ClientID
	if clientID == "" {
		clientID = "luatt-" + uuid.NewString()
	}
	keepAlive := config.KeepAlive
	if keepAlive == 0 {
		keepAlive = DefaultKeepAlive
	}

	peer := newPeer(nil, config)

	options := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetKeepAlive(keepAlive).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(mqtt.Client) { peer.onConnect() }).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			peer.logger.Warn("mqtt connection lost", "broker", broker, "error", err)
			peer.emit(fmt.Sprintf("connection lost: %v", err))
		})
	client := mqtt.NewClient(options)
	peer.client = client

	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, fmt.Errorf("connecting to mqtt broker %s: %w", broker, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to mqtt broker %s: %w", broker, err)
	}
	peer.logger.Info("mqtt connected", "broker", broker, "client_id", clientID)
	return peer, nil
}

// newPeer wraps an existing client. Tests pass a fake.
func newPeer(client Client, config Config) *Peer {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Peer{
		client:        client,
		onMessage:     config.OnMessage,
		trace:         config.Trace,
		logger:        logger,
		subscriptions: make(map[string]struct{}),
		closed:        make(chan struct{}),
	}
}

// Publish sends payload on topic at QoS 0.
func (p *Peer) Publish(topic, payload string) error {
	p.watch("publish", topic, p.client.Publish(topic, 0, false, payload))
	return nil
}

// Subscribe starts delivering messages on topic and remembers it for
// reconnects.
func (p *Peer) Subscribe(topic string) error {
	p.mu.Lock()
	p.subscriptions[topic] = struct{}{}
	p.mu.Unlock()

	p.watch("subscribe", topic, p.client.Subscribe(topic, 0, p.handleMessage))
	return nil
}

// Unsubscribe stops delivery on topic and forgets it. AllTopics drops
// every tracked subscription.
func (p *Peer) Unsubscribe(topic string) error {
	p.mu.Lock()
	var topics []string
	if topic == AllTopics {
		topics = sortedTopics(p.subscriptions)
		clear(p.subscriptions)
	} else {
		topics = []string{topic}
		delete(p.subscriptions, topic)
	}
	p.mu.Unlock()

	if len(topics) == 0 {
		return nil
	}
	p.watch("unsubscribe", strings.Join(topics, ","), p.client.Unsubscribe(topics...))
	return nil
}

// Subscriptions returns the tracked topics, sorted.
func (p *Peer) Subscriptions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return sortedTopics(p.subscriptions)
}

// Close disconnects from the broker. Acknowledgements still outstanding
// are abandoned. Close is idempotent.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.client.Disconnect(disconnectQuiesce)
	})
	p.acks.Wait()
}

// onConnect runs on every successful (re)connect.
func (p *Peer) onConnect() {
	topics := p.Subscriptions()
	p.emit(fmt.Sprintf("connected, resubscribing to %d topics", len(topics)))
	for _, topic := range topics {
		p.watch("subscribe", topic, p.client.Subscribe(topic, 0, p.handleMessage))
	}
}

func (p *Peer) handleMessage(_ mqtt.Client, message mqtt.Message) {
	payload := string(message.Payload())
	p.emit(message.Topic() + " " + payload)
	if p.onMessage != nil {
		p.onMessage(message.Topic(), payload)
	}
}

// watch logs the outcome of token once the broker acknowledges it.
func (p *Peer) watch(operation, topic string, token mqtt.Token) {
	p.acks.Add(1)
	go func() {
		defer p.acks.Done()
		select {
		case <-token.Done():
		case <-p.closed:
			return
		}
		if err := token.Error(); err != nil {
			p.logger.Warn("mqtt operation failed",
				"operation", operation,
				"topic", topic,
				"error", err,
			)
			return
		}
		p.logger.Debug("mqtt operation acknowledged",
			"operation", operation,
			"topic", topic,
		)
	}()
}

func (p *Peer) emit(line string) {
	if p.trace != nil {
		p.trace(TraceLabel, line)
	}
}

func sortedTopics(set map[string]struct{}) []string {
	topics := make([]string, 0, len(set))
	for topic := range set {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}
