package wire

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/huddle/internal/graph"
)

func validMessage() MessageRecord {
	return MessageRecord{
		ID:          "m1",
		SenderPub:   "alice-pub",
		SenderAlias: "Alice",
		Content:     "hello",
		ContentType: Text,
		Timestamp:   1700000000000,
	}
}

func TestDecodeMessageRoundTripWithFloatNumbers(t *testing.T) {
	n := validMessage().Node()
	// Redis-backed graphs return every number as float64.
	n["timestamp"] = float64(1700000000000)

	got, err := DecodeMessage("m1", n)
	require.NoError(t, err)
	assert.Equal(t, validMessage(), got)
}

func TestDecodeMessageRejects(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(graph.Node)
		key   string
		field string
	}{
		{"empty content", func(n graph.Node) { n["content"] = "   " }, "m1", "content"},
		{"missing sender", func(n graph.Node) { delete(n, "senderPub") }, "m1", "senderPub"},
		{"missing alias", func(n graph.Node) { n["senderAlias"] = "" }, "m1", "senderAlias"},
		{"zero timestamp", func(n graph.Node) { n["timestamp"] = 0 }, "m1", "timestamp"},
		{"unknown type", func(n graph.Node) { n["contentType"] = "sticker" }, "m1", "contentType"},
		{"id mismatch", func(n graph.Node) {}, "other", "id"},
		{"wrong shape", func(n graph.Node) { n["content"] = 42 }, "m1", "payload"},
		{"bad voice", func(n graph.Node) { n["contentType"] = "voice"; n["content"] = "not base64!" }, "m1", "content"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := validMessage().Node()
			tt.mut(n)
			_, err := DecodeMessage(tt.key, n)
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestDecodeMessageTombstone(t *testing.T) {
	_, err := DecodeMessage("m1", nil)
	assert.True(t, IsValidation(err))
}

func TestDecodeMessageMissingIDTakesKey(t *testing.T) {
	n := validMessage().Node()
	delete(n, "id")
	got, err := DecodeMessage("m1", n)
	require.NoError(t, err)
	assert.Equal(t, "m1", got.ID)
}

func TestVoiceMessage(t *testing.T) {
	r := validMessage()
	r.ContentType = Voice
	r.Content = base64.StdEncoding.EncodeToString([]byte{0x1a, 0x45, 0xdf, 0xa3})
	got, err := DecodeMessage("m1", r.Node())
	require.NoError(t, err)
	assert.Equal(t, r.Content, got.Content)
	assert.Equal(t, "Alice: [voice]", Summary(got))
}

func TestNormalizeComposesAlias(t *testing.T) {
	// "e" followed by a combining acute accent composes to a single rune.
	n := MemberRecord{Alias: " Jose\u0301 ", JoinedAt: 10}.Node()
	got, err := DecodeMember(n)
	require.NoError(t, err)
	assert.Equal(t, "Jos\u00e9", got.Alias)
	assert.Equal(t, int64(10), got.JoinedAt)

	_, err = DecodeMember(graph.Node{"alias": ""})
	assert.True(t, IsValidation(err))
}

func TestDecodeVoteAndSignal(t *testing.T) {
	v, err := DecodeVote(graph.Node{"agreed": true, "timestamp": float64(5)})
	require.NoError(t, err)
	assert.True(t, v.Agreed)

	_, err = DecodeVote(graph.Node{"agreed": true})
	assert.True(t, IsValidation(err))

	s, err := DecodeClearSignal(ClearSignal{By: "alice", Timestamp: 9}.Node())
	require.NoError(t, err)
	assert.Equal(t, "alice", s.By)

	name, err := DecodeName(NameRecord{Name: "  Book club "}.Node())
	require.NoError(t, err)
	assert.Equal(t, "Book club", name.Name)
}

func TestSummaryTruncatesFirstLine(t *testing.T) {
	r := validMessage()
	r.Content = "first line\nsecond line"
	assert.Equal(t, "Alice: first line", Summary(r))

	r.ContentType = LeaveNotification
	r.Content = "Alice left the group"
	assert.Equal(t, "Alice left the group", Summary(r))
}
