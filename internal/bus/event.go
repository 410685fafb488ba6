package bus

import "time"

// Event kinds published by the replication engine. Subscribers filter by
// namespace prefix, e.g. "message." or "sync.".
const (
	MessageAdded     = "message.added"
	MessageRemoved   = "message.removed"
	MessageSent      = "message.sent"
	MessageDropped   = "message.dropped"
	MessageAckFailed = "message.ack_failed"

	MemberJoined  = "member.joined"
	MemberRemoved = "member.removed"

	VoteChanged   = "vote.changed"
	HistoryClear  = "group.cleared"
	GroupRenamed  = "group.renamed"
	GroupOpened   = "group.opened"
	GroupClosed   = "group.closed"
	SyncSettled   = "sync.settled"
	SweepFinished = "sweep.finished"

	SessionPhaseChanged = "session.phase_changed"
)

// Event represents a domain event published on the bus. Group is empty for
// events that are not scoped to one group.
type Event struct {
	Kind      string
	Group     string
	Timestamp time.Time
	Payload   map[string]string
}
