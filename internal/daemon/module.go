package daemon

import (
	"context"
	"fmt"

	"github.com/matheus3301/relay/internal/api"
	"github.com/matheus3301/relay/internal/bus"
	"github.com/matheus3301/relay/internal/chat"
	"github.com/matheus3301/relay/internal/config"
	"github.com/matheus3301/relay/internal/httpapi"
	"github.com/matheus3301/relay/internal/live"
	"github.com/matheus3301/relay/internal/lock"
	"github.com/matheus3301/relay/internal/logging"
	"github.com/matheus3301/relay/internal/metrics"
	"github.com/matheus3301/relay/internal/notify"
	"github.com/matheus3301/relay/internal/presence"
	"github.com/matheus3301/relay/internal/store"
	"github.com/matheus3301/relay/internal/workspace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved workspace configuration passed to the fx module.
type Params struct {
	Workspace  string
	Config     *config.Config
	SocketPath string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	if p.Config == nil {
		p.Config = config.Default()
	}
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideMetrics,
			provideLock,
			provideStore,
			provideOutbox,
			provideEngine,
			provideHub,
			provideNotifier,
			provideDispatcher,
			provideTracker,
			provideChatService,
			NewServer,
			provideGateway,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(workspace.LogPath(p.Workspace), p.Workspace, p.Config.Log.Level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideMetrics() *metrics.Metrics {
	return metrics.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := workspace.EnsureDir(p.Workspace); err != nil {
		return nil, err
	}
	logger.Info("acquiring workspace lock", zap.String("workspace", p.Workspace))
	l, err := lock.Acquire(workspace.Dir(p.Workspace))
	if err != nil {
		return nil, err
	}
	logger.Info("workspace lock acquired")
	return l, nil
}

// provideStore depends on the lock so the database is never opened by a
// second daemon.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := workspace.DBPath(p.Workspace)
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

func provideOutbox(db *store.DB, m *metrics.Metrics) *notify.Outbox {
	return notify.NewOutbox(db, m)
}

func provideEngine(p Params, db *store.DB, b *bus.Bus, outbox *notify.Outbox, m *metrics.Metrics, logger *zap.Logger) *chat.Engine {
	return chat.NewEngine(db, b, outbox, logger.Named("chat"), chat.Config{
		RequestTTL:   p.Config.Limits.RequestTTL.Duration,
		TypingWindow: p.Config.Limits.TypingWindow.Duration,
		Observer:     m,
	})
}

func provideHub(b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *live.Hub {
	return live.NewHub(b, logger.Named("live"), m)
}

func provideNotifier(p Params, logger *zap.Logger) (notify.Notifier, error) {
	n := p.Config.Notify
	switch n.Provider {
	case "", "log":
		return notify.NewLogNotifier(logger.Named("notify")), nil
	case "resend":
		if n.ResendAPIKey == "" {
			logger.Warn("resend notifier has no API key; notifications will be skipped")
		}
		return notify.NewResendNotifier(notify.ResendConfig{
			APIKey: n.ResendAPIKey,
			From:   n.From,
			AppURL: n.AppURL,
		}), nil
	}
	return nil, fmt.Errorf("unknown notify provider %q", n.Provider)
}

func provideDispatcher(p Params, db *store.DB, notifier notify.Notifier, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *notify.Dispatcher {
	return notify.NewDispatcher(db, notifier, b, m, logger.Named("notify"), p.Config.Notify.PollInterval.Duration)
}

func provideTracker(p Params, engine *chat.Engine, logger *zap.Logger) (*presence.Tracker, error) {
	pc := p.Config.Presence
	var beats presence.Heartbeats
	if pc.RedisURL != "" {
		rh, err := presence.DialRedis(context.Background(), pc.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("presence redis: %w", err)
		}
		logger.Info("presence heartbeats enabled", zap.Duration("ttl", pc.HeartbeatTTL.Duration))
		beats = rh
	}
	return presence.NewTracker(engine, beats, logger.Named("presence"), pc.HeartbeatTTL.Duration, pc.ReapInterval.Duration), nil
}

func provideChatService(engine *chat.Engine, hub *live.Hub, tracker *presence.Tracker, logger *zap.Logger) *api.ChatService {
	return api.NewChatService(engine, hub, tracker, logger.Named("api"))
}

// provideGateway returns nil when the HTTP surface is disabled.
func provideGateway(p Params, engine *chat.Engine, hub *live.Hub, m *metrics.Metrics, logger *zap.Logger) *httpapi.Server {
	if p.Config.Daemon.HTTPAddr == "" {
		return nil
	}
	var verifier *httpapi.Verifier
	if secret := p.Config.Identity.JWTSecret; secret != "" {
		verifier = httpapi.NewVerifier(secret, p.Config.Identity.Issuer)
	} else {
		logger.Warn("identity.jwt_secret not set; /ws is disabled")
	}
	g := httpapi.NewGateway(httpapi.Params{
		Engine:   engine,
		Hub:      hub,
		Verifier: verifier,
		Metrics:  m,
		Logger:   logger.Named("http"),
	})
	return httpapi.NewServer(p.Config.Daemon.HTTPAddr, g, logger.Named("http"))
}

type lifecycleParams struct {
	fx.In

	Server     *Server
	HTTP       *httpapi.Server
	Lock       *lock.Lock
	DB         *store.DB
	Hub        *live.Hub
	Dispatcher *notify.Dispatcher
	Tracker    *presence.Tracker
	Logger     *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, in lifecycleParams) {
	logger := in.Logger
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			in.Hub.Start(context.Background())
			in.Dispatcher.Start(context.Background())
			in.Tracker.Start(context.Background())

			go func() {
				if err := in.Server.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if in.HTTP != nil {
				if err := in.HTTP.Start(); err != nil {
					return fmt.Errorf("http gateway: %w", err)
				}
			}
			logger.Info("daemon started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if in.HTTP != nil {
				if err := in.HTTP.Shutdown(ctx); err != nil {
					logger.Warn("http shutdown", zap.Error(err))
				}
			}
			// Closing every subscription ends open Watch streams so the
			// graceful gRPC stop does not wait on them.
			in.Hub.Stop()
			in.Server.Stop(ctx)
			in.Tracker.Stop()
			in.Dispatcher.Stop()
			if err := in.Tracker.Close(); err != nil {
				logger.Warn("error closing presence heartbeats", zap.Error(err))
			}
			if err := in.DB.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := in.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
