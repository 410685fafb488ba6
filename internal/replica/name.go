package replica

import (
	"context"

	"go.uber.org/zap"

	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/graph"
	"github.com/matheus3301/huddle/internal/wire"
)

// onName applies a group name announcement. Tombstones keep the last name.
func (e *Engine) onName(s *Session, ev graph.Event) {
	if ev.Tombstone() {
		return
	}
	rec, err := wire.DecodeName(ev.Value)
	if err != nil {
		e.logger.Debug("dropping name", zap.String("group", s.group.Pub), zap.Error(err))
		return
	}

	s.mu.Lock()
	changed, err := e.db.SetGroupName(s.group.Pub, rec.Name)
	if err == nil {
		s.group.Name = rec.Name
	}
	s.mu.Unlock()

	if err != nil {
		e.logger.Error("failed to save group name", zap.String("group", s.group.Pub), zap.Error(err))
		return
	}
	if changed {
		e.bus.Emit(bus.GroupRenamed, s.group.Pub, "name", rec.Name)
	}
}

// Rename announces a new display name for group.
func (e *Engine) Rename(ctx context.Context, group, name string) error {
	if _, err := e.session(group); err != nil {
		return err
	}
	rec, err := wire.DecodeName(wire.NameRecord{Name: name}.Node())
	if err != nil {
		return err
	}
	e.graph.Put(ctx, graph.Name(group), rec.Node(), e.logAck("name", group))
	return nil
}
