// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package swarm

import (
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/tiendc/go-deepcopy"
	"github.com/vmihailenco/msgpack/v5"
)

// Envelope types understood by the hub and by peers.
const (
	TypeLetter         = "letter"
	TypeInvitation     = "invitation"
	TypeStateQuery     = "stateQuery"
	TypeState          = "state"
	TypePeersQuery     = "peersQuery"
	TypePeers          = "peers"
	TypeOrderPlacement = "orderPlacement"
	TypeOrderReceipt   = "orderReceipt"
	TypeOrderStatus    = "orderStatus"
	TypeError          = "error"
	TypePeerQuery      = "peerQuery"
	TypeSwarmQuery     = "__swarmQuery__"
	TypePeerResults    = "__peerResults__"
	TypeQueryResults   = "__queryResults__"
	TypeHeartbeat      = "heartbeat"
)

// An Envelope is the unit of communication between peers and the hub.
//
// An empty Recipients list means the envelope is addressed to nobody. Types
// consumed by the hub itself (heartbeat, stateQuery, and so on) do not need
// recipients; every envelope a peer is meant to see must name that peer.
type Envelope struct {
	Author     string   `json:"author" msgpack:"author"`
	Recipients []string `json:"recipients" msgpack:"recipients"`
	Type       string   `json:"type" msgpack:"type"`
	Payload    any      `json:"payload" msgpack:"payload"`
	Timestamp  float64  `json:"timestamp" msgpack:"timestamp"`
	Trace      []string `json:"trace" msgpack:"trace"`
}

// AddressedTo reports whether name is one of the recipients of e.
func (e *Envelope) AddressedTo(name string) bool {
	for _, r := range e.Recipients {
		if r == name {
			return true
		}
	}
	return false
}

// AddTrace appends the specified breadcrumbs to the trace of e, and returns e
// to permit chaining.
func (e *Envelope) AddTrace(steps ...string) *Envelope {
	e.Trace = append(e.Trace, steps...)
	return e
}

// DecodePayload converts the payload of e into v, which must be a pointer.
//
// Payloads received from the wire are generic values (maps, lists, strings,
// and numbers). DecodePayload re-interprets them as a concrete type.
func (e *Envelope) DecodePayload(v any) error {
	data, err := jsonAPI.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("payload of %q: %w", e.Type, err)
	}
	if err := jsonAPI.Unmarshal(data, v); err != nil {
		return fmt.Errorf("payload of %q: %w", e.Type, err)
	}
	return nil
}

// Clone returns a deep copy of e. Mutations of the copy, including its
// payload, do not affect e.
func (e *Envelope) Clone() *Envelope {
	var cp Envelope
	if err := deepcopy.Copy(&cp, *e); err != nil {
		panic(fmt.Errorf("copying envelope: %w", err))
	}
	return &cp
}

// String returns a human-friendly rendering of the envelope.
func (e *Envelope) String() string {
	return fmt.Sprintf("Envelope(%s from %q to [%s], %v)",
		e.Type, e.Author, strings.Join(e.Recipients, ","), e.Payload)
}

// Now returns the current time in seconds since the epoch, the unit used for
// envelope timestamps.
func Now() float64 { return Seconds(time.Now()) }

// Seconds converts t to seconds since the epoch.
func Seconds(t time.Time) float64 { return float64(t.UnixNano()) / 1e9 }

// A Codec converts envelopes and records to and from a byte format.
type Codec interface {
	// Name reports a short name for the codec, such as "json".
	Name() string

	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// The codecs supported by this package.
var (
	JSON    Codec = jsonCodec{}
	MsgPack Codec = msgpackCodec{}
)

type jsonCodec struct{}

func (jsonCodec) Name() string                       { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return jsonAPI.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return jsonAPI.Unmarshal(data, v) }

type msgpackCodec struct{}

func (msgpackCodec) Name() string                       { return "msgpack" }
func (msgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (msgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

// CodecByName returns the codec with the given name. An empty name selects
// the JSON codec.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSON, nil
	case "msgpack":
		return MsgPack, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// EncodeEnvelope encodes e using c. The recipients and trace are always
// encoded as lists, even when empty.
func EncodeEnvelope(c Codec, e *Envelope) ([]byte, error) {
	w := *e
	if w.Recipients == nil {
		w.Recipients = []string{}
	}
	if w.Trace == nil {
		w.Trace = []string{}
	}
	return c.Marshal(&w)
}

// DecodeEnvelope decodes an envelope from data using c. If data cannot be
// decoded or lacks a type, DecodeEnvelope reports an error of concrete type
// *MalformedEnvelopeError. Fields not defined by Envelope are ignored.
//
// Absent recipients and trace decode as empty lists.
func DecodeEnvelope(c Codec, data []byte) (*Envelope, error) {
	var env Envelope
	if err := c.Unmarshal(data, &env); err != nil {
		return nil, &MalformedEnvelopeError{Err: err}
	}
	if env.Type == "" {
		return nil, &MalformedEnvelopeError{Err: errMissingType}
	}
	if env.Recipients == nil {
		env.Recipients = []string{}
	}
	if env.Trace == nil {
		env.Trace = []string{}
	}
	return &env, nil
}
