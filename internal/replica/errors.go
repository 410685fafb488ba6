package replica

import (
	"errors"
	"fmt"
)

var (
	// ErrGroupNotOpen is returned for a cached group without a live session.
	ErrGroupNotOpen = errors.New("group is not open")
	// ErrUnknownGroup is returned for a group that is not cached locally.
	ErrUnknownGroup = errors.New("unknown group")
	// ErrNotFocused is returned when paging a group whose view is not maintained.
	ErrNotFocused = errors.New("group is not focused")
)

// ConsensusNotReachedError refuses a clear requested before every current
// member agreed. Nothing is mutated when it is returned.
type ConsensusNotReachedError struct {
	Group   string
	Agreed  int
	Members int
}

func (e *ConsensusNotReachedError) Error() string {
	return fmt.Sprintf("clear of %s needs every member: %d of %d agreed", e.Group, e.Agreed, e.Members)
}

// IsConsensusNotReached reports whether err is, or wraps, a ConsensusNotReachedError.
func IsConsensusNotReached(err error) bool {
	var ce *ConsensusNotReachedError
	return errors.As(err, &ce)
}
