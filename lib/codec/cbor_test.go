// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"slices"
	"strings"
	"testing"
)

type envelope struct {
	Action string `cbor:"action"`
	Detail string `cbor:"detail,omitempty"`
	Count  int    `cbor:"count"`
}

type snapshot struct {
	Device  string   `json:"device"`
	Pending []string `json:"pending,omitempty"`
}

func TestMarshalDeterministic(t *testing.T) {
	t.Parallel()
	value := map[string]any{"b": 2, "a": 1, "c": []string{"x"}}
	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding %d differs: %x vs %x", i, again, first)
		}
	}
}

func TestStreamRoundTrip(t *testing.T) {
	t.Parallel()
	var buffer bytes.Buffer
	sent := []envelope{{Action: "status", Count: 1}, {Action: "status", Detail: "x", Count: 2}}
	encoder := NewEncoder(&buffer)
	for _, message := range sent {
		if err := encoder.Encode(message); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i, want := range sent {
		var got envelope
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode %d: %v", i, err)
		}
		if got != want {
			t.Errorf("message %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestJSONTagFallback(t *testing.T) {
	t.Parallel()
	data, err := Marshal(snapshot{Device: "/dev/ttyACM0"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var generic map[string]any
	if err := Unmarshal(data, &generic); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if generic["device"] != "/dev/ttyACM0" {
		t.Errorf("device key: got %v", generic)
	}
	if _, present := generic["pending"]; present {
		t.Errorf("omitempty ignored: %v", generic)
	}

	var decoded snapshot
	full, _ := Marshal(snapshot{Device: "d", Pending: []string{"1/2/3"}})
	if err := Unmarshal(full, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !slices.Equal(decoded.Pending, []string{"1/2/3"}) {
		t.Errorf("pending: got %q", decoded.Pending)
	}
}

func TestUnmarshalInvalid(t *testing.T) {
	t.Parallel()
	var value envelope
	if err := Unmarshal([]byte{0xff, 0xfe}, &value); err == nil {
		t.Fatal("Unmarshal accepted invalid CBOR")
	}
}

func TestDiagnose(t *testing.T) {
	t.Parallel()
	data, err := Marshal(envelope{Action: "status"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	notation, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(notation, `"action": "status"`) {
		t.Errorf("notation: got %s", notation)
	}
}
