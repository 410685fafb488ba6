package invite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/huddle/internal/graph"
	"github.com/matheus3301/huddle/internal/store"
	"github.com/matheus3301/huddle/internal/wire"
)

// ErrAlreadyMember is returned by Join for a group that is already cached.
// The returned group is still valid; callers treat this as success.
var ErrAlreadyMember = errors.New("already a member of this group")

const defaultNameTimeout = 3 * time.Second

// Manager creates and joins groups on behalf of the local identity.
type Manager struct {
	db          *store.DB
	graph       graph.Graph
	self        store.Identity
	nameTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewManager creates a Manager. nameTimeout bounds the one-shot name lookup
// on join; zero uses a default.
func NewManager(db *store.DB, g graph.Graph, self store.Identity, nameTimeout time.Duration, logger *zap.Logger) *Manager {
	if nameTimeout <= 0 {
		nameTimeout = defaultNameTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		db:          db,
		graph:       g,
		self:        self,
		nameTimeout: nameTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// Create generates a new group, announces its name and registers the local
// identity as its first member. It returns the group and its invite.
func (m *Manager) Create(ctx context.Context, name string) (*store.Group, string, error) {
	rec, err := wire.DecodeName(wire.NameRecord{Name: name}.Node())
	if err != nil {
		return nil, "", err
	}

	kp, err := Generate()
	if err != nil {
		return nil, "", err
	}
	now := m.now().UnixMilli()
	g := &store.Group{
		Pub:       kp.Pub,
		Name:      rec.Name,
		Keypair:   kp.Encode(),
		JoinedAt:  now,
		CreatedAt: now,
	}
	if err := m.db.UpsertGroup(g); err != nil {
		return nil, "", fmt.Errorf("save group: %w", err)
	}

	m.graph.Put(ctx, graph.Name(g.Pub), rec.Node(), m.logAck("name", g.Pub))
	if err := m.registerSelf(ctx, g); err != nil {
		return nil, "", err
	}

	m.logger.Info("group created", zap.String("group", g.Pub), zap.String("name", g.Name))
	return g, g.Keypair, nil
}

// Join parses an invite and registers the local identity in its group. The
// group name is read once from the graph, bounded by the name timeout, and
// falls back to a name derived from the group id.
func (m *Manager) Join(ctx context.Context, invite string) (*store.Group, error) {
	kp, err := Parse(invite)
	if err != nil {
		return nil, err
	}

	existing, err := m.db.GetGroup(kp.Pub)
	if err != nil {
		return nil, fmt.Errorf("lookup group: %w", err)
	}
	if existing != nil {
		return existing, ErrAlreadyMember
	}

	now := m.now().UnixMilli()
	g := &store.Group{
		Pub:       kp.Pub,
		Name:      m.resolveName(ctx, kp.Pub),
		Keypair:   kp.Encode(),
		JoinedAt:  now,
		CreatedAt: now,
	}
	if err := m.db.UpsertGroup(g); err != nil {
		return nil, fmt.Errorf("save group: %w", err)
	}
	if err := m.registerSelf(ctx, g); err != nil {
		return nil, err
	}

	m.logger.Info("group joined", zap.String("group", g.Pub), zap.String("name", g.Name))
	return g, nil
}

// FallbackName is the display name of a group whose announcement is unknown.
func FallbackName(pub string) string {
	if len(pub) > 8 {
		pub = pub[:8]
	}
	return "Group " + pub
}

func (m *Manager) resolveName(ctx context.Context, pub string) string {
	ctx, cancel := context.WithTimeout(ctx, m.nameTimeout)
	defer cancel()

	n, err := m.graph.Once(ctx, graph.Name(pub))
	if err != nil {
		if !errors.Is(err, graph.ErrNotFound) {
			m.logger.Warn("name lookup failed", zap.String("group", pub), zap.Error(err))
		}
		return FallbackName(pub)
	}
	rec, err := wire.DecodeName(n)
	if err != nil {
		m.logger.Debug("ignoring malformed name", zap.String("group", pub), zap.Error(err))
		return FallbackName(pub)
	}
	return rec.Name
}

func (m *Manager) registerSelf(ctx context.Context, g *store.Group) error {
	if err := m.db.UpsertMember(&store.Member{
		GroupPub:  g.Pub,
		MemberPub: m.self.Pub,
		Alias:     m.self.Alias,
		JoinedAt:  g.JoinedAt,
	}); err != nil {
		return fmt.Errorf("save self membership: %w", err)
	}
	rec := wire.MemberRecord{Alias: m.self.Alias, JoinedAt: g.JoinedAt}
	m.graph.Put(ctx, graph.Member(g.Pub, m.self.Pub), rec.Node(), m.logAck("member", g.Pub))
	return nil
}

func (m *Manager) logAck(what, group string) graph.AckFunc {
	return func(err error) {
		if err != nil {
			m.logger.Warn("graph write not acknowledged",
				zap.String("write", what), zap.String("group", group), zap.Error(err))
		}
	}
}
