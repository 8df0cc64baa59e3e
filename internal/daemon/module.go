// Package daemon composes the sync engine: configuration, session lock,
// store backend, change feed, reconciler, edit lock coordinator and presence
// tracker, wired together with fx.
package daemon

import (
	"context"
	"fmt"

	"github.com/Sagarika311/roomsync/internal/api"
	"github.com/Sagarika311/roomsync/internal/auth"
	"github.com/Sagarika311/roomsync/internal/bus"
	"github.com/Sagarika311/roomsync/internal/chat"
	"github.com/Sagarika311/roomsync/internal/config"
	"github.com/Sagarika311/roomsync/internal/docstore"
	"github.com/Sagarika311/roomsync/internal/editlock"
	"github.com/Sagarika311/roomsync/internal/feed"
	"github.com/Sagarika311/roomsync/internal/lock"
	"github.com/Sagarika311/roomsync/internal/logging"
	"github.com/Sagarika311/roomsync/internal/mongostore"
	"github.com/Sagarika311/roomsync/internal/presence"
	"github.com/Sagarika311/roomsync/internal/remote"
	"github.com/Sagarika311/roomsync/internal/session"
	"github.com/Sagarika311/roomsync/internal/status"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideAuth,
			provideBackend,
			provideFeed,
			provideReconciler,
			provideCoordinator,
			provideTracker,
			provideServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(session.ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName, cfg.Debug)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideAuth(cfg *config.Config) auth.Provider {
	return auth.NewStaticProvider(auth.User{
		ID:          cfg.UserID,
		DisplayName: cfg.UserName,
		Email:       cfg.UserEmail,
	})
}

// Backend bundles one store binding: the two collections and the change
// event transport, plus how to tear the connection down.
type Backend struct {
	Messages  docstore.Messages
	Presence  docstore.Presence
	Transport feed.Transport
	Close     func(context.Context) error
}

func provideBackend(cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	switch cfg.Backend {
	case "mongo":
		store, err := mongostore.Open(cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, err
		}
		watch := mongostore.NewWatch(store, logger)
		watch.Register(cfg.MessagesCollection, mongostore.MessageCodec())
		watch.Register(cfg.PresenceCollection, mongostore.PresenceCodec())
		logger.Info("store connected", zap.String("backend", "mongo"), zap.String("database", cfg.Mongo.Database))
		return &Backend{
			Messages:  mongostore.NewMessages(store, cfg.MessagesCollection),
			Presence:  mongostore.NewPresence(store, cfg.PresenceCollection),
			Transport: watch,
			Close:     store.Close,
		}, nil
	case "rest":
		client := remote.NewClient(cfg.Rest.Endpoint, cfg.Rest.Project, cfg.Rest.Key)
		rt, err := remote.Dial(cfg.Rest.RealtimeEndpoint, cfg.Rest.Project, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("store connected", zap.String("backend", "rest"), zap.String("endpoint", cfg.Rest.Endpoint))
		return &Backend{
			Messages:  remote.NewMessages(client, cfg.MessagesCollection),
			Presence:  remote.NewPresence(client, cfg.PresenceCollection),
			Transport: rt,
			Close:     func(context.Context) error { return rt.Close() },
		}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func provideFeed(bk *Backend, logger *zap.Logger) *feed.Adapter {
	return feed.NewAdapter(bk.Transport, logger)
}

func provideReconciler(cfg *config.Config, bk *Backend, fd *feed.Adapter, authp auth.Provider, b *bus.Bus, logger *zap.Logger) *chat.Reconciler {
	return chat.NewReconciler(bk.Messages, fd, authp, b, logger, cfg.MessagesCollection, cfg.HistoryLimit)
}

func provideCoordinator(r *chat.Reconciler, authp auth.Provider) *editlock.Coordinator {
	return editlock.NewCoordinator(r, authp)
}

func provideTracker(cfg *config.Config, bk *Backend, fd *feed.Adapter, authp auth.Provider, b *bus.Bus, logger *zap.Logger) *presence.Tracker {
	t := presence.NewTracker(bk.Presence, fd, authp, b, logger, cfg.PresenceCollection)
	t.SetInterval(cfg.HeartbeatInterval())
	t.SetTTL(cfg.PresenceTTL())
	return t
}

func provideServer(p Params, cfg *config.Config, machine *status.Machine, rec *chat.Reconciler, coord *editlock.Coordinator, tracker *presence.Tracker, b *bus.Bus, logger *zap.Logger) *api.Server {
	return api.NewServer(p.SessionName, cfg.Listen, machine, rec, coord, tracker, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, bk *Backend, srv *api.Server, rec *chat.Reconciler, tracker *presence.Tracker, authp auth.Provider, machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("control api error", zap.Error(err))
				}
			}()

			if _, ok := authp.CurrentUser(); !ok {
				logger.Info("no identity bound, auth required")
				_ = machine.Transition(status.AuthRequired)
				return nil
			}

			_ = machine.Transition(status.Connecting)
			_ = machine.Transition(status.Syncing)

			if err := rec.Start(context.Background()); err != nil {
				logger.Error("message sync failed to start", zap.Error(err))
				_ = machine.Transition(status.Error)
				return err
			}
			if err := tracker.Start(context.Background()); err != nil {
				logger.Error("presence failed to start", zap.Error(err))
				rec.Stop()
				_ = machine.Transition(status.Error)
				return err
			}

			_ = machine.Transition(status.Ready)
			logger.Info("daemon ready")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if machine.Current() == status.Ready {
				_ = machine.Transition(status.Stopping)
			}
			tracker.Stop()
			rec.Stop()
			srv.Stop(ctx)
			if err := bk.Close(ctx); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
