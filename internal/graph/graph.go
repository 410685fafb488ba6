// Package graph is the bridge to the shared, path-addressed graph store that
// peers replicate through. The store is eventually consistent and gives no
// ordering guarantee; a nil node is a tombstone.
package graph

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrNotFound is returned by Once when a path holds no live value.
var ErrNotFound = errors.New("graph: not found")

// ErrClosed is returned when operating on a closed backend.
var ErrClosed = errors.New("graph: closed")

// Node is the value stored at a path. Values are scalars (string, bool and
// numbers). Numbers may come back as float64 depending on the backend.
type Node map[string]any

// Event is delivered to subscribers. Value is nil for a tombstone.
type Event struct {
	Path  string
	Key   string
	Value Node
}

// Tombstone reports whether the event deletes its path.
func (e Event) Tombstone() bool { return e.Value == nil }

// Handler receives events for one subscription, sequentially.
type Handler func(Event)

// AckFunc is the best-effort write acknowledgement. It may never be called.
type AckFunc func(error)

// Cancel stops a subscription. It is safe to call more than once.
type Cancel func()

// Graph is the set of primitives the replication engine consumes.
type Graph interface {
	// Put writes node at p. A nil node tombstones p and all of its descendants.
	Put(ctx context.Context, p string, node Node, ack AckFunc)
	// Set appends node under parent with a generated key and returns the key.
	Set(ctx context.Context, parent string, node Node, ack AckFunc) string
	// Once reads the current value at p.
	Once(ctx context.Context, p string) (Node, error)
	// On fires with the current value of p, if any, then on every change.
	On(ctx context.Context, p string, h Handler) (Cancel, error)
	// Map fires once per existing child of p, then on every child change.
	Map(ctx context.Context, p string, h Handler) (Cancel, error)
	Close() error
}

// Clean normalizes a slash-joined path.
func Clean(p string) string {
	return strings.Trim(path.Clean("/"+p), "/")
}

// Split returns the parent and last segment of p.
func Split(p string) (parent, key string) {
	p = Clean(p)
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return "", p
	}
	return p[:i], p[i+1:]
}

// Clone returns a shallow copy of n so subscribers never share a map.
func (n Node) Clone() Node {
	if n == nil {
		return nil
	}
	out := make(Node, len(n))
	for k, v := range n {
		out[k] = v
	}
	return out
}

func ack(fn AckFunc, err error) {
	if fn != nil {
		go fn(err)
	}
}
