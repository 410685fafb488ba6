package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis is a graph backend on top of a shared Redis server. Each path is a
// key holding an encoded node, each parent keeps a set of child keys, and
// every write is published on the path channel and the parent's child channel.
type Redis struct {
	rdb    *redis.Client
	prefix string
	owned  bool

	mu     sync.Mutex
	subs   map[*redis.PubSub]*subscriber
	closed bool
}

// NewRedis wraps an existing client. The caller keeps ownership of rdb.
func NewRedis(rdb *redis.Client, prefix string) *Redis {
	return &Redis{
		rdb:    rdb,
		prefix: prefix,
		subs:   make(map[*redis.PubSub]*subscriber),
	}
}

// DialRedis connects to redisURL and verifies the connection.
func DialRedis(ctx context.Context, redisURL, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	r := NewRedis(rdb, prefix)
	r.owned = true
	return r, nil
}

func (r *Redis) nodeKey(p string) string     { return r.prefix + "n:" + p }
func (r *Redis) childrenKey(p string) string { return r.prefix + "c:" + p }
func (r *Redis) onChannel(p string) string   { return r.prefix + "on:" + p }
func (r *Redis) mapChannel(p string) string  { return r.prefix + "map:" + p }

// Put implements Graph. The write happens on the caller's goroutine so two
// writes from one caller land in order; the ack is delivered asynchronously.
func (r *Redis) Put(ctx context.Context, p string, node Node, fn AckFunc) {
	if r.isClosed() {
		ack(fn, ErrClosed)
		return
	}
	p = Clean(p)
	var err error
	if node == nil {
		err = r.tombstone(ctx, p)
	} else {
		err = r.write(ctx, p, node)
	}
	ack(fn, err)
}

func (r *Redis) write(ctx context.Context, p string, node Node) error {
	b, err := encodeNode(node)
	if err != nil {
		return err
	}
	ev, err := encodeEvent(p, node)
	if err != nil {
		return err
	}
	parent, key := Split(p)
	_, err = r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.nodeKey(p), b, 0)
		if parent != "" {
			pipe.SAdd(ctx, r.childrenKey(parent), key)
		}
		pipe.Publish(ctx, r.onChannel(p), ev)
		if parent != "" {
			pipe.Publish(ctx, r.mapChannel(parent), ev)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", p, err)
	}
	return nil
}

// tombstone walks the child sets below p depth-first and nulls every live
// descendant before p itself. p is always written so its subscribers observe
// the deletion.
func (r *Redis) tombstone(ctx context.Context, p string) error {
	return r.tombstoneTree(ctx, p, true)
}

func (r *Redis) tombstoneTree(ctx context.Context, p string, root bool) error {
	children, err := r.rdb.SMembers(ctx, r.childrenKey(p)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("children of %s: %w", p, err)
	}
	for _, c := range children {
		if err := r.tombstoneTree(ctx, p+"/"+c, false); err != nil {
			return err
		}
	}
	if !root {
		if _, err := r.Once(ctx, p); errors.Is(err, ErrNotFound) {
			return nil
		} else if err != nil {
			return err
		}
	}
	return r.write(ctx, p, nil)
}

// Set implements Graph.
func (r *Redis) Set(ctx context.Context, parent string, node Node, fn AckFunc) string {
	key := uuid.NewString()
	r.Put(ctx, Clean(parent)+"/"+key, node, fn)
	return key
}

// Once implements Graph.
func (r *Redis) Once(ctx context.Context, p string) (Node, error) {
	if r.isClosed() {
		return nil, ErrClosed
	}
	b, err := r.rdb.Get(ctx, r.nodeKey(Clean(p))).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", p, err)
	}
	n, err := decodeNode(b)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, ErrNotFound
	}
	return n, nil
}

// On implements Graph.
func (r *Redis) On(ctx context.Context, p string, h Handler) (Cancel, error) {
	p = Clean(p)
	return r.subscribe(ctx, r.onChannel(p), newSubscriber(p, false, h), []string{p})
}

// Map implements Graph.
func (r *Redis) Map(ctx context.Context, p string, h Handler) (Cancel, error) {
	p = Clean(p)
	s := newSubscriber(p, true, h)
	return r.subscribe(ctx, r.mapChannel(p), s, nil)
}

func (r *Redis) subscribe(ctx context.Context, channel string, s *subscriber, paths []string) (Cancel, error) {
	if r.isClosed() {
		s.close()
		return nil, ErrClosed
	}

	ps := r.rdb.Subscribe(ctx, channel)
	// Wait for the confirmation so no change between here and the snapshot
	// read below is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		s.close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	if s.children {
		keys, err := r.rdb.SMembers(ctx, r.childrenKey(s.path)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			_ = ps.Close()
			s.close()
			return nil, fmt.Errorf("children of %s: %w", s.path, err)
		}
		for _, k := range keys {
			paths = append(paths, s.path+"/"+k)
		}
	}
	for _, p := range paths {
		b, err := r.rdb.Get(ctx, r.nodeKey(p)).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			_ = ps.Close()
			s.close()
			return nil, fmt.Errorf("get %s: %w", p, err)
		}
		n, err := decodeNode(b)
		if err != nil {
			continue
		}
		_, key := Split(p)
		s.push(Event{Path: p, Key: key, Value: n})
	}

	r.mu.Lock()
	r.subs[ps] = s
	r.mu.Unlock()

	go func() {
		for msg := range ps.Channel() {
			ev, err := decodeEvent([]byte(msg.Payload))
			if err != nil || !s.matches(ev.Path) {
				continue
			}
			s.push(ev)
		}
	}()

	return func() {
		r.mu.Lock()
		delete(r.subs, ps)
		r.mu.Unlock()
		_ = ps.Close()
		s.close()
	}, nil
}

func (r *Redis) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close cancels every subscription and, for dialed backends, the client.
func (r *Redis) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	subs := r.subs
	r.subs = make(map[*redis.PubSub]*subscriber)
	r.mu.Unlock()

	for ps, s := range subs {
		_ = ps.Close()
		s.close()
	}
	if r.owned {
		return r.rdb.Close()
	}
	return nil
}
