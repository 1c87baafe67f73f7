// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

// byteWriter writes one byte at a time, yielding between bytes, so any
// missing serialization in Writer shows up as interleaved records.
type byteWriter struct {
	mu     sync.Mutex
	buffer bytes.Buffer
}

func (b *byteWriter) Write(data []byte) (int, error) {
	for _, c := range data {
		b.mu.Lock()
		b.buffer.WriteByte(c)
		b.mu.Unlock()
	}
	return len(data), nil
}

func TestWriterSerializesConcurrentSends(t *testing.T) {
	t.Parallel()
	destination := &byteWriter{}
	writer := NewWriter(destination, nil)

	const senders = 8
	const perSender = 50
	var waitGroup sync.WaitGroup
	for sender := 0; sender < senders; sender++ {
		sender := sender
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			for i := 0; i < perSender; i++ {
				source := fmt.Sprintf("print(%d)\nprint(%d)\n", sender, i)
				if err := writer.Send(fmt.Sprintf("s%d/%d", sender, i), "load", "m", source); err != nil {
					t.Errorf("Send: %v", err)
				}
			}
		}()
	}
	waitGroup.Wait()

	packets := decodeAll(t, bytes.NewReader(destination.buffer.Bytes()))
	if len(packets) != senders*perSender {
		t.Fatalf("decoded %d packets, want %d", len(packets), senders*perSender)
	}
	for _, packet := range packets {
		var sender, i int
		if _, err := fmt.Sscanf(packet.Token(), "s%d/%d", &sender, &i); err != nil {
			t.Fatalf("token %q: %v", packet.Token(), err)
		}
		want := fmt.Sprintf("print(%d)\nprint(%d)\n", sender, i)
		if packet.Arg(1) != want {
			t.Fatalf("packet %q carries %q, want %q", packet.Token(), packet.Arg(1), want)
		}
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("device unplugged") }

func TestWriterTransportError(t *testing.T) {
	t.Parallel()
	err := NewWriter(failingWriter{}, nil).Send("tok", "eval", "1")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Send: got %v, want ErrTransport", err)
	}
}

func TestWriterOnLine(t *testing.T) {
	t.Parallel()
	var destination bytes.Buffer
	writer := NewWriter(&destination, nil)
	var traced []string
	writer.OnLine = func(line string) { traced = append(traced, line) }
	if err := writer.WritePacket(Packet{"tok", "eval", "a\nb"}); err != nil {
		t.Fatalf("WritePacket: %v", err)
	}
	if len(traced) != 1 || traced[0] != "tok|eval|&3" {
		t.Fatalf("OnLine: got %q", traced)
	}
	if !strings.HasSuffix(destination.String(), "a\nb\n") {
		t.Fatalf("destination: got %q", destination.String())
	}
	if err := writer.WritePacket(nil); !errors.Is(err, ErrMalformedPacket) {
		t.Fatalf("WritePacket(nil): got %v, want ErrMalformedPacket", err)
	}
}
