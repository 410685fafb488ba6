package api

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/replica"
	"github.com/matheus3301/huddle/internal/store"
)

// SessionService reports daemon status and streams bus events.
type SessionService struct {
	profile   string
	startedAt time.Time
	engine    *replica.Engine
	db        *store.DB
	bus       *bus.Bus
}

// NewSessionService creates a new session service.
func NewSessionService(profile string, engine *replica.Engine, db *store.DB, b *bus.Bus) *SessionService {
	return &SessionService{
		profile:   profile,
		startedAt: time.Now(),
		engine:    engine,
		db:        db,
		bus:       b,
	}
}

func (s *SessionService) Status(_ context.Context, _ *StatusRequest) (*StatusResponse, error) {
	self := s.engine.Self()
	resp := &StatusResponse{
		Profile:  s.profile,
		Pub:      self.Pub,
		Alias:    self.Alias,
		UptimeMs: time.Since(s.startedAt).Milliseconds(),
	}

	groups, err := s.db.ListGroups()
	if err != nil {
		return nil, toStatus(err)
	}
	for _, g := range groups {
		out := groupToAPI(g)
		if phase, err := s.engine.Phase(g.Pub); err == nil {
			out.Phase = string(phase)
		}
		resp.Groups = append(resp.Groups, out)
	}
	return resp, nil
}

// Watch streams bus events until the client goes away.
func (s *SessionService) Watch(req *WatchRequest, stream grpc.ServerStream) error {
	ch, unsub := s.bus.Subscribe(req.Prefix, 256)
	defer unsub()

	ctx := stream.Context()
	for {
		select {
		case evt := <-ch:
			if req.Group != "" && evt.Group != req.Group {
				continue
			}
			if err := stream.SendMsg(eventToAPI(evt)); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func eventToAPI(evt bus.Event) *Event {
	return &Event{
		Kind:      evt.Kind,
		Group:     evt.Group,
		Timestamp: evt.Timestamp.UnixMilli(),
		Payload:   evt.Payload,
	}
}

func groupToAPI(g store.Group) Group {
	return Group{Pub: g.Pub, Name: g.Name, JoinedAt: g.JoinedAt}
}
