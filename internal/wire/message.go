// Package wire defines the on-the-wire message format shared by every
// replica and client in the cluster: a flat, text-encoded (JSON) record
// with a handful of fields common to all message types plus a few
// fields specific to each type.
package wire

import "encoding/json"

// Broadcast is the sentinel destination/leader id meaning "no specific
// leader known" or "send to everyone".
const Broadcast = "FFFF"

// MaxBytes is the size of the buffer the transport reads one encoded
// message into. Encode and Decode do not check it. The spec requires
// the transport to carry records up to at least 32 KiB; we hold a
// safety margin above that for append batches with many entries.
const MaxBytes = 64 * 1024

// Type enumerates the message types that appear on the wire.
type Type string

const (
	TypeGet           Type = "get"
	TypePut           Type = "put"
	TypeRequestVote   Type = "request_vote"
	TypeVote          Type = "vote"
	TypeAppendEntries Type = "append_entries"
	TypeOK            Type = "ok"
	TypeFail          Type = "fail"
	TypeRedirect      Type = "redirect"
)

// Entry is a single replicated log record.
type Entry struct {
	Index int    `json:"index"`
	Term  int    `json:"term"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Message is the envelope for every datagram exchanged between
// replicas, and between a client and a replica. Fields that don't
// apply to a given Type are simply left at their zero value and
// omitted on encode.
type Message struct {
	Src    string `json:"src"`
	Dst    string `json:"dst"`
	Leader string `json:"leader"`
	Term   int    `json:"term"`
	Type   Type   `json:"type"`

	// get / put
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`
	MID   string `json:"MID,omitempty"`

	// vote
	Vote string `json:"vote,omitempty"`

	// request_vote
	LastLogIndex int `json:"last_log_index,omitempty"`
	LastLogTerm  int `json:"last_log_term,omitempty"`

	// append_entries
	Committed int     `json:"committed,omitempty"`
	NextIndex int     `json:"next_index,omitempty"`
	LastIndex int     `json:"last_index,omitempty"`
	LastTerm  int     `json:"last_term,omitempty"`
	Entries   []Entry `json:"entries,omitempty"`
}

// Encode serializes msg into a wire-ready frame.
func Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// Decode parses a wire frame into a Message. Callers should silently
// drop frames that fail to decode, per the spec's error handling
// design for unparseable datagrams.
func Decode(frame []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
