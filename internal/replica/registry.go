package replica

import (
	"sort"
	"sync"

	"github.com/matheus3301/huddle/internal/graph"
)

// Topic is one of the live subscriptions an open group holds.
type Topic string

const (
	TopicMembers  Topic = "members"
	TopicMessages Topic = "messages"
	TopicVotes    Topic = "votes"
	TopicName     Topic = "name"
)

// Topics lists every topic a session subscribes to.
var Topics = []Topic{TopicMembers, TopicMessages, TopicVotes, TopicName}

type regKey struct {
	group string
	topic Topic
}

// Registry owns the cancel handles of every live subscription, keyed by
// (group, topic). Closing a group cancels exactly its entries.
type Registry struct {
	mu      sync.Mutex
	entries map[regKey]graph.Cancel
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[regKey]graph.Cancel)}
}

// Add records a subscription. An existing entry for the same key is
// cancelled and replaced.
func (r *Registry) Add(group string, topic Topic, cancel graph.Cancel) {
	r.mu.Lock()
	old := r.entries[regKey{group, topic}]
	r.entries[regKey{group, topic}] = cancel
	r.mu.Unlock()
	if old != nil {
		old()
	}
}

// CancelGroup stops every subscription of group and returns how many there were.
func (r *Registry) CancelGroup(group string) int {
	r.mu.Lock()
	var cancels []graph.Cancel
	for k, c := range r.entries {
		if k.group == group {
			cancels = append(cancels, c)
			delete(r.entries, k)
		}
	}
	r.mu.Unlock()
	for _, c := range cancels {
		if c != nil {
			c()
		}
	}
	return len(cancels)
}

// CancelAll stops every subscription.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[regKey]graph.Cancel)
	r.mu.Unlock()
	for _, c := range entries {
		if c != nil {
			c()
		}
	}
}

// Active returns the topics currently registered for group, sorted.
func (r *Registry) Active(group string) []Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Topic
	for k := range r.entries {
		if k.group == group {
			out = append(out, k.topic)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of live subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
