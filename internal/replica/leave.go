package replica

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/huddle/internal/graph"
	"github.com/matheus3301/huddle/internal/wire"
)

// Leave announces departure from group, withdraws the local member and vote
// records, stops replicating and forgets the group locally. Peers remove the
// leaver on either the notification or the member tombstone.
func (e *Engine) Leave(ctx context.Context, group string) error {
	if _, err := e.session(group); err != nil {
		return err
	}

	rec := wire.MessageRecord{
		ID:          uuid.NewString(),
		SenderPub:   e.self.Pub,
		SenderAlias: wire.Normalize(e.self.Alias),
		Content:     wire.Normalize(e.self.Alias) + " left the group",
		ContentType: wire.LeaveNotification,
		Timestamp:   e.now().UnixMilli(),
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	e.Close(group)

	if e.publisher != nil {
		if err := e.publisher.Publish(ctx, graph.Message(group, rec.ID), rec.Node()); err != nil {
			e.logger.Warn("leave notification not acknowledged", zap.String("group", group), zap.Error(err))
		}
	}
	e.graph.Put(ctx, graph.Member(group, e.self.Pub), nil, e.logAck("member", group))
	e.graph.Put(ctx, graph.Vote(group, e.self.Pub), nil, e.logAck("vote", group))

	if err := e.db.ForgetGroup(group); err != nil {
		return fmt.Errorf("forget group: %w", err)
	}
	e.logger.Info("left group", zap.String("group", group))
	return nil
}
