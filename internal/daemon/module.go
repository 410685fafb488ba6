package daemon

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/matheus3301/huddle/internal/api"
	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/config"
	"github.com/matheus3301/huddle/internal/graph"
	"github.com/matheus3301/huddle/internal/invite"
	"github.com/matheus3301/huddle/internal/lock"
	"github.com/matheus3301/huddle/internal/logging"
	"github.com/matheus3301/huddle/internal/metrics"
	"github.com/matheus3301/huddle/internal/outbox"
	"github.com/matheus3301/huddle/internal/profile"
	"github.com/matheus3301/huddle/internal/replica"
	"github.com/matheus3301/huddle/internal/store"
	"github.com/matheus3301/huddle/internal/sweep"
	"github.com/matheus3301/huddle/internal/view"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile    string
	Config     *config.Config
	SocketPath string // optional override for testing; empty = use default
	Debug      bool
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideIdentity,
			provideGraph,
			providePublisher,
			provideInvites,
			provideEngine,
			provideView,
			provideSweeper,
			provideMetrics,
			api.NewGroupService,
			api.NewMessageService,
			api.NewClearService,
			provideSessionService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) *config.Config {
	if p.Config == nil {
		return config.Default()
	}
	return p.Config
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.Profile), p.Profile, p.Debug)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile), p.Profile)
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// The lock is a parameter so the cache is never opened by a second daemon.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.Profile)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

// provideIdentity loads the member identity of the profile, generating and
// persisting one on first start. A configured alias replaces the stored one.
func provideIdentity(db *store.DB, cfg *config.Config, logger *zap.Logger) (store.Identity, error) {
	return loadIdentity(db, cfg.Alias, logger)
}

const defaultAlias = "anonymous"

func loadIdentity(db *store.DB, alias string, logger *zap.Logger) (store.Identity, error) {
	raw, err := db.IdentityKeypair()
	if err != nil {
		return store.Identity{}, fmt.Errorf("read identity: %w", err)
	}
	stored, err := db.IdentityAlias()
	if err != nil {
		return store.Identity{}, fmt.Errorf("read alias: %w", err)
	}

	var kp invite.Keypair
	fresh := raw == ""
	if fresh {
		if kp, err = invite.Generate(); err != nil {
			return store.Identity{}, fmt.Errorf("generate identity: %w", err)
		}
	} else if kp, err = invite.Parse(raw); err != nil {
		return store.Identity{}, fmt.Errorf("parse stored identity: %w", err)
	}

	if alias == "" {
		alias = stored
	}
	if alias == "" {
		alias = defaultAlias
	}
	if fresh || alias != stored {
		if err := db.SaveIdentity(kp.Encode(), alias); err != nil {
			return store.Identity{}, fmt.Errorf("save identity: %w", err)
		}
	}
	if fresh {
		logger.Info("generated member identity", zap.String("pub", kp.Pub))
	}
	return store.Identity{Pub: kp.Pub, Alias: alias}, nil
}

func provideGraph(cfg *config.Config, logger *zap.Logger) (graph.Graph, error) {
	switch cfg.Graph.Backend {
	case config.BackendMemory:
		logger.Warn("using in-process graph; nothing is shared with other peers")
		return graph.NewMemory(), nil
	case config.BackendRedis, "":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		g, err := graph.DialRedis(ctx, cfg.Graph.RedisURL, cfg.Graph.Prefix)
		if err != nil {
			return nil, fmt.Errorf("connect graph store: %w", err)
		}
		logger.Info("graph store connected", zap.String("backend", "redis"))
		return g, nil
	}
	return nil, fmt.Errorf("unknown graph backend %q", cfg.Graph.Backend)
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func providePublisher(g graph.Graph, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *outbox.Publisher {
	p := outbox.NewPublisher(g, b, ms(cfg.Replication.AckTimeoutMS), logger)
	p.SetRate(cfg.Replication.PublishRate, cfg.Replication.PublishBurst)
	return p
}

func provideInvites(db *store.DB, g graph.Graph, self store.Identity, cfg *config.Config, logger *zap.Logger) *invite.Manager {
	return invite.NewManager(db, g, self, ms(cfg.Replication.NameTimeoutMS), logger)
}

func provideEngine(db *store.DB, g graph.Graph, b *bus.Bus, p *outbox.Publisher, inv *invite.Manager, self store.Identity, cfg *config.Config, logger *zap.Logger) *replica.Engine {
	opts := replica.Options{
		PageSize:    cfg.Replication.PageSize,
		SettlePoll:  ms(cfg.Replication.SettlePollMS),
		SettleQuiet: ms(cfg.Replication.SettleQuietMS),
	}
	return replica.NewEngine(db, g, b, p, inv, self, opts, logger)
}

func provideView(db *store.DB) *view.Service {
	return view.NewService(db)
}

func provideSweeper(db *store.DB, b *bus.Bus, cfg *config.Config, logger *zap.Logger) (*sweep.Sweeper, error) {
	return sweep.New(db, b, cfg.Sweep.Cron, logger)
}

func provideMetrics(b *bus.Bus, logger *zap.Logger) *metrics.Metrics {
	return metrics.New(b.Dropped, logger)
}

func provideSessionService(p Params, engine *replica.Engine, db *store.DB, b *bus.Bus) *api.SessionService {
	return api.NewSessionService(p.Profile, engine, db, b)
}

type lifecycleParams struct {
	fx.In

	Lock      *lock.Lock
	Config    *config.Config
	Server    *Server
	DB        *store.DB
	Graph     graph.Graph
	Publisher *outbox.Publisher
	Engine    *replica.Engine
	Sweeper   *sweep.Sweeper
	Metrics   *metrics.Metrics
	Bus       *bus.Bus
	Logger    *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, p lifecycleParams) {
	logger := p.Logger
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			p.Metrics.Observe(p.Bus)
			if err := p.Metrics.Serve(p.Config.Metrics.Addr); err != nil {
				return fmt.Errorf("metrics listener: %w", err)
			}

			// Background work outlives the start context.
			p.Publisher.Start(context.Background())
			if err := p.Engine.Start(context.Background()); err != nil {
				return err
			}
			p.Sweeper.Start(context.Background())

			go func() {
				if err := p.Server.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.Server.Stop(ctx)
			p.Sweeper.Stop()
			p.Engine.Stop()
			p.Publisher.Stop()

			err := multierr.Combine(
				p.Metrics.Stop(ctx),
				p.Graph.Close(),
				p.DB.Close(),
				p.Lock.Release(),
			)
			if err != nil {
				logger.Warn("errors during shutdown", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return err
		},
	})
}
