// Package wire defines the payloads peers exchange through the graph store and
// validates them at the subscription boundary. Nothing that fails decoding
// reaches the replication engine.
package wire

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"golang.org/x/text/unicode/norm"

	"github.com/matheus3301/huddle/internal/graph"
)

// ContentType tags the variant a message carries.
type ContentType string

const (
	Text              ContentType = "text"
	Voice             ContentType = "voice"
	LeaveNotification ContentType = "leave_notification"
)

const (
	maxAliasLen  = 64
	maxTextLen   = 16 << 10
	maxVoiceLen  = 2 << 20
	maxGroupName = 128
)

// MemberRecord is the presence record each member writes for itself.
type MemberRecord struct {
	Alias    string `graph:"alias"`
	JoinedAt int64  `graph:"joinedAt"`
}

// MessageRecord is a chat message as written to groups/<g>/messages/<id>.
type MessageRecord struct {
	ID          string      `graph:"id"`
	SenderPub   string      `graph:"senderPub"`
	SenderAlias string      `graph:"senderAlias"`
	Content     string      `graph:"content"`
	ContentType ContentType `graph:"contentType"`
	Timestamp   int64       `graph:"timestamp"`
}

// VoteRecord is a member's clear-history vote.
type VoteRecord struct {
	Agreed    bool  `graph:"agreed"`
	Timestamp int64 `graph:"timestamp"`
}

// ClearSignal is the advisory notice written after a clear.
type ClearSignal struct {
	By        string `graph:"by"`
	Timestamp int64  `graph:"timestamp"`
}

// NameRecord announces a group's display name.
type NameRecord struct {
	Name string `graph:"name"`
}

func (r MemberRecord) Node() graph.Node {
	return graph.Node{"alias": r.Alias, "joinedAt": r.JoinedAt}
}

func (r MessageRecord) Node() graph.Node {
	return graph.Node{
		"id":          r.ID,
		"senderPub":   r.SenderPub,
		"senderAlias": r.SenderAlias,
		"content":     r.Content,
		"contentType": string(r.ContentType),
		"timestamp":   r.Timestamp,
	}
}

func (r VoteRecord) Node() graph.Node {
	return graph.Node{"agreed": r.Agreed, "timestamp": r.Timestamp}
}

func (r ClearSignal) Node() graph.Node {
	return graph.Node{"by": r.By, "timestamp": r.Timestamp}
}

func (r NameRecord) Node() graph.Node {
	return graph.Node{"name": r.Name}
}

// decode maps a node onto a record. Numbers arrive as float64 from some
// backends; mapstructure narrows them to the integer fields.
func decode(n graph.Node, out any) error {
	if n == nil {
		return invalid("payload", "tombstone")
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "graph",
		Result:  out,
	})
	if err != nil {
		return fmt.Errorf("wire decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(n)); err != nil {
		return invalid("payload", "%v", err)
	}
	return nil
}

// Normalize returns s in Unicode NFC with surrounding space trimmed.
func Normalize(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// DecodeMember validates a presence record.
func DecodeMember(n graph.Node) (MemberRecord, error) {
	var r MemberRecord
	if err := decode(n, &r); err != nil {
		return r, err
	}
	r.Alias = Normalize(r.Alias)
	if err := r.Validate(); err != nil {
		return r, err
	}
	return r, nil
}

func (r MemberRecord) Validate() error {
	if r.Alias == "" {
		return invalid("alias", "empty")
	}
	if len(r.Alias) > maxAliasLen {
		return invalid("alias", "longer than %d bytes", maxAliasLen)
	}
	if r.JoinedAt < 0 {
		return invalid("joinedAt", "negative")
	}
	return nil
}

// DecodeMessage validates a message stored under key. The record's id must
// match the key it was written at; a missing id takes the key.
func DecodeMessage(key string, n graph.Node) (MessageRecord, error) {
	var r MessageRecord
	if err := decode(n, &r); err != nil {
		return r, err
	}
	if r.ID == "" {
		r.ID = key
	}
	if key != "" && r.ID != key {
		return r, invalid("id", "%q does not match path key %q", r.ID, key)
	}
	r.SenderAlias = Normalize(r.SenderAlias)
	if r.ContentType != Voice {
		r.Content = Normalize(r.Content)
	}
	if err := r.Validate(); err != nil {
		return r, err
	}
	return r, nil
}

// Validate checks the admission predicate shared by inbound and outbound
// messages. The join-time filter is applied by the replicator, which knows
// the local membership.
func (r MessageRecord) Validate() error {
	switch {
	case r.ID == "":
		return invalid("id", "empty")
	case r.SenderPub == "":
		return invalid("senderPub", "empty")
	case r.SenderAlias == "":
		return invalid("senderAlias", "empty")
	case r.Timestamp <= 0:
		return invalid("timestamp", "must be positive")
	case r.Content == "":
		return invalid("content", "empty")
	}

	switch r.ContentType {
	case Text, LeaveNotification:
		if len(r.Content) > maxTextLen {
			return invalid("content", "longer than %d bytes", maxTextLen)
		}
	case Voice:
		if len(r.Content) > maxVoiceLen {
			return invalid("content", "voice clip longer than %d bytes", maxVoiceLen)
		}
		if _, err := base64.StdEncoding.DecodeString(r.Content); err != nil {
			return invalid("content", "voice clip is not base64")
		}
	default:
		return invalid("contentType", "unknown %q", r.ContentType)
	}
	return nil
}

// DecodeVote validates a vote record.
func DecodeVote(n graph.Node) (VoteRecord, error) {
	var r VoteRecord
	if err := decode(n, &r); err != nil {
		return r, err
	}
	if r.Timestamp <= 0 {
		return r, invalid("timestamp", "must be positive")
	}
	return r, nil
}

// DecodeClearSignal validates a clear signal.
func DecodeClearSignal(n graph.Node) (ClearSignal, error) {
	var r ClearSignal
	if err := decode(n, &r); err != nil {
		return r, err
	}
	if r.By == "" {
		return r, invalid("by", "empty")
	}
	return r, nil
}

// DecodeName validates a group name announcement.
func DecodeName(n graph.Node) (NameRecord, error) {
	var r NameRecord
	if err := decode(n, &r); err != nil {
		return r, err
	}
	r.Name = Normalize(r.Name)
	if r.Name == "" {
		return r, invalid("name", "empty")
	}
	if len(r.Name) > maxGroupName {
		return r, invalid("name", "longer than %d bytes", maxGroupName)
	}
	return r, nil
}

// Summary renders a one-line preview of a message.
func Summary(r MessageRecord) string {
	switch r.ContentType {
	case Voice:
		return r.SenderAlias + ": [voice]"
	case LeaveNotification:
		return r.Content
	}
	line := r.Content
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	const maxPreview = 80
	if len(line) > maxPreview {
		line = strings.ToValidUTF8(line[:maxPreview], "") + "…"
	}
	return r.SenderAlias + ": " + line
}
