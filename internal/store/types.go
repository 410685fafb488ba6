package store

// ContentType tags the payload variant carried by a message.
type ContentType string

const (
	ContentText              ContentType = "text"
	ContentVoice             ContentType = "voice"
	ContentLeaveNotification ContentType = "leave_notification"
)

// Valid reports whether c is one of the known content types.
func (c ContentType) Valid() bool {
	switch c {
	case ContentText, ContentVoice, ContentLeaveNotification:
		return true
	}
	return false
}

// MessageStatus is the delivery state of a message. It only moves pending -> sent.
type MessageStatus string

const (
	StatusPending MessageStatus = "pending"
	StatusSent    MessageStatus = "sent"
)

// Group is a joined or created group. Pub is both the group id and the
// namespace root in the graph store; Keypair is the serialized capability.
type Group struct {
	Pub       string
	Name      string
	Keypair   string
	JoinedAt  int64
	CreatedAt int64
}

// Member is a cached membership record. Online is never persisted.
type Member struct {
	GroupPub  string
	MemberPub string
	Alias     string
	JoinedAt  int64
	Online    bool
}

// Message represents a cached group message. ID is the local row id and
// doubles as the pagination cursor.
type Message struct {
	ID          int64
	GroupPub    string
	MsgID       string
	SenderPub   string
	SenderAlias string
	Content     string
	ContentType ContentType
	Timestamp   int64
	Status      MessageStatus
}

// Vote is a recorded clear-history vote.
type Vote struct {
	GroupPub  string
	VoterID   string
	Agreed    bool
	Timestamp int64
}

// Preview summarizes the latest message of a group.
type Preview struct {
	GroupPub      string
	Summary       string
	LastTimestamp int64
}

// ReadMarker records how far the local user has read a group.
type ReadMarker struct {
	GroupPub          string
	LastReadTimestamp int64
}

// Identity is the local user's member identity, shared by all groups of a profile.
type Identity struct {
	Pub   string
	Alias string
}
