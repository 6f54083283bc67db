// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package swarm

import "fmt"

// A Topic names a stream of the broadcast channel.
type Topic string

const (
	TopicDefault Topic = "default" // protocol envelopes
	TopicLog     Topic = "log"     // diagnostic Log records
)

// Log is a diagnostic record published by the hub on the log topic.
type Log struct {
	Name      string   `json:"name" msgpack:"name"`
	Author    string   `json:"author" msgpack:"author"`
	Timestamp float64  `json:"timestamp" msgpack:"timestamp"`
	Level     string   `json:"level" msgpack:"level"`
	Text      string   `json:"string" msgpack:"string"`
	Trace     []string `json:"trace" msgpack:"trace"`
}

// String returns a human-friendly rendering of the record.
func (l Log) String() string {
	return fmt.Sprintf("[%s] %s: %s %v", l.Level, l.Name, l.Text, l.Trace)
}

// EncodeLog encodes a log record using c.
func EncodeLog(c Codec, l Log) ([]byte, error) {
	if l.Trace == nil {
		l.Trace = []string{}
	}
	return c.Marshal(l)
}

// DecodeLog decodes a log record from data using c.
func DecodeLog(c Codec, data []byte) (Log, error) {
	var l Log
	if err := c.Unmarshal(data, &l); err != nil {
		return Log{}, fmt.Errorf("decode log: %w", err)
	}
	return l, nil
}

// A Query is a question one peer asks another, relayed through the hub.
type Query struct {
	ID         string `json:"id" msgpack:"id"`
	Name       string `json:"name" msgpack:"name"`
	Questioner string `json:"questioner" msgpack:"questioner"`
	Payload    any    `json:"payload" msgpack:"payload"`
}

// Reply constructs the results of q answered by peer.
func (q Query) Reply(peer string, payload any) QueryResults {
	return QueryResults{
		ID:         q.ID,
		Name:       q.Name,
		Peer:       peer,
		Questioner: q.Questioner,
		Payload:    payload,
	}
}

// QueryResults are the answer to a Query.
type QueryResults struct {
	ID         string `json:"id" msgpack:"id"`
	Name       string `json:"name" msgpack:"name"`             // typically the name of the query
	Peer       string `json:"peer" msgpack:"peer"`             // who answered
	Questioner string `json:"questioner" msgpack:"questioner"` // who asked
	Payload    any    `json:"payload" msgpack:"payload"`
}

// PeerQuery is the payload of a peerQuery envelope sent to the hub.
type PeerQuery struct {
	Peers []string `json:"peers" msgpack:"peers"`
	Query Query    `json:"query" msgpack:"query"`
}
