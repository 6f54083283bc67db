// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package swarm_test

import (
	"errors"
	"testing"

	"github.com/creachadair/swarm"
	"github.com/google/go-cmp/cmp"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	for _, c := range []swarm.Codec{swarm.JSON, swarm.MsgPack} {
		t.Run(c.Name(), func(t *testing.T) {
			tests := []*swarm.Envelope{
				{
					Author:     "alice",
					Recipients: []string{"bob", "carol"},
					Type:       swarm.TypeLetter,
					Payload:    "hello",
					Timestamp:  1700000000.125,
					Trace:      []string{"peer.command<say>", "router"},
				},

				// Empty lists survive as empty lists.
				{
					Author:     "bob",
					Recipients: []string{},
					Type:       swarm.TypeHeartbeat,
					Timestamp:  1,
					Trace:      []string{},
				},
			}
			for _, env := range tests {
				data, err := swarm.EncodeEnvelope(c, env)
				if err != nil {
					t.Fatalf("Encode %v: unexpected error: %v", env, err)
				}
				got, err := swarm.DecodeEnvelope(c, data)
				if err != nil {
					t.Fatalf("Decode %v: unexpected error: %v", env, err)
				}
				if diff := cmp.Diff(got, env); diff != "" {
					t.Errorf("Round trip (-got, +want):\n%s", diff)
				}
			}
		})
	}
}

func TestNilListsEncodeEmpty(t *testing.T) {
	data, err := swarm.EncodeEnvelope(swarm.JSON, &swarm.Envelope{Type: "x"})
	if err != nil {
		t.Fatalf("Encode: unexpected error: %v", err)
	}
	const want = `{"author":"","recipients":[],"type":"x","payload":null,"timestamp":0,"trace":[]}`
	if got := string(data); got != want {
		t.Errorf("Encode: got %s, want %s", got, want)
	}
}

func TestDecodeEnvelope(t *testing.T) {
	t.Run("Malformed", func(t *testing.T) {
		for _, input := range []string{
			``,
			`not json at all`,
			`[1, 2, 3]`,
			`{"author": "alice"}`, // no type
			`{"type": ""}`,
			`{"type": 17}`,
		} {
			env, err := swarm.DecodeEnvelope(swarm.JSON, []byte(input))
			if !errors.Is(err, swarm.ErrMalformedEnvelope) {
				t.Errorf("Decode %q: got (%v, %v), want %v", input, env, err, swarm.ErrMalformedEnvelope)
			}
			var merr *swarm.MalformedEnvelopeError
			if !errors.As(err, &merr) {
				t.Errorf("Decode %q: error is %T, want *MalformedEnvelopeError", input, err)
			}
		}
	})

	t.Run("Lenient", func(t *testing.T) {
		env, err := swarm.DecodeEnvelope(swarm.JSON, []byte(`{"type":"letter","author":"bob","extra":true}`))
		if err != nil {
			t.Fatalf("Decode: unexpected error: %v", err)
		}
		want := &swarm.Envelope{
			Author:     "bob",
			Type:       swarm.TypeLetter,
			Recipients: []string{},
			Trace:      []string{},
		}
		if diff := cmp.Diff(env, want); diff != "" {
			t.Errorf("Decode (-got, +want):\n%s", diff)
		}
	})
}

func TestDecodePayload(t *testing.T) {
	want := swarm.PeerQuery{
		Peers: []string{"bob"},
		Query: swarm.Query{ID: "q1", Name: "mood", Questioner: "alice"},
	}
	for _, c := range []swarm.Codec{swarm.JSON, swarm.MsgPack} {
		data, err := swarm.EncodeEnvelope(c, &swarm.Envelope{Type: swarm.TypePeerQuery, Payload: want})
		if err != nil {
			t.Fatalf("Encode: unexpected error: %v", err)
		}
		env, err := swarm.DecodeEnvelope(c, data)
		if err != nil {
			t.Fatalf("Decode: unexpected error: %v", err)
		}
		var got swarm.PeerQuery
		if err := env.DecodePayload(&got); err != nil {
			t.Fatalf("DecodePayload: unexpected error: %v", err)
		}
		if diff := cmp.Diff(got, want); diff != "" {
			t.Errorf("%s payload (-got, +want):\n%s", c.Name(), diff)
		}
	}

	env := &swarm.Envelope{Type: "x", Payload: "not a list"}
	var bad []string
	if err := env.DecodePayload(&bad); err == nil {
		t.Errorf("DecodePayload: got %q, want error", bad)
	}
}

func TestClone(t *testing.T) {
	orig := &swarm.Envelope{
		Author:     "alice",
		Recipients: []string{"bob"},
		Type:       swarm.TypeState,
		Payload:    map[string]any{"1": []any{"a", "b"}},
		Timestamp:  5,
		Trace:      []string{"router"},
	}
	cp := orig.Clone()
	if diff := cmp.Diff(cp, orig); diff != "" {
		t.Fatalf("Clone (-got, +want):\n%s", diff)
	}

	cp.Recipients[0] = "mallory"
	cp.AddTrace("elsewhere")
	cp.Payload.(map[string]any)["1"].([]any)[0] = "z"

	if orig.Recipients[0] != "bob" || len(orig.Trace) != 1 {
		t.Errorf("Original modified: %+v", orig)
	}
	if got := orig.Payload.(map[string]any)["1"].([]any)[0]; got != "a" {
		t.Errorf("Original payload modified: got %v, want a", got)
	}
}

func TestAddressedTo(t *testing.T) {
	env := &swarm.Envelope{Recipients: []string{"bob", "carol"}}
	for name, want := range map[string]bool{"bob": true, "carol": true, "alice": false, "": false} {
		if got := env.AddressedTo(name); got != want {
			t.Errorf("AddressedTo(%q): got %v, want %v", name, got, want)
		}
	}
	if (&swarm.Envelope{}).AddressedTo("bob") {
		t.Error("Envelope with no recipients is addressed to bob")
	}
}

func TestCodecByName(t *testing.T) {
	for name, want := range map[string]swarm.Codec{
		"":        swarm.JSON,
		"json":    swarm.JSON,
		"MsgPack": swarm.MsgPack,
	} {
		got, err := swarm.CodecByName(name)
		if err != nil || got != want {
			t.Errorf("CodecByName(%q): got (%v, %v), want %v", name, got, err, want)
		}
	}
	if c, err := swarm.CodecByName("xml"); err == nil {
		t.Errorf("CodecByName(xml): got %v, want error", c)
	}
}

func TestLogRoundTrip(t *testing.T) {
	want := swarm.Log{
		Name:      "swarm.hub",
		Author:    "alice",
		Timestamp: 12.5,
		Level:     "info",
		Text:      "letter was received",
		Trace:     []string{"router"},
	}
	for _, c := range []swarm.Codec{swarm.JSON, swarm.MsgPack} {
		data, err := swarm.EncodeLog(c, want)
		if err != nil {
			t.Fatalf("EncodeLog: unexpected error: %v", err)
		}
		got, err := swarm.DecodeLog(c, data)
		if err != nil {
			t.Fatalf("DecodeLog: unexpected error: %v", err)
		}
		if diff := cmp.Diff(got, want); diff != "" {
			t.Errorf("%s log (-got, +want):\n%s", c.Name(), diff)
		}
	}

	// The text of a log record is carried in the "string" field.
	got, err := swarm.DecodeLog(swarm.JSON, []byte(`{"name":"n","string":"hi"}`))
	if err != nil {
		t.Fatalf("DecodeLog: unexpected error: %v", err)
	}
	if got.Text != "hi" {
		t.Errorf("DecodeLog text: got %q, want hi", got.Text)
	}
}
