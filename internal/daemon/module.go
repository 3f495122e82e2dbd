package daemon

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/huddle/internal/api"
	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/config"
	"github.com/matheus3301/huddle/internal/lock"
	"github.com/matheus3301/huddle/internal/logging"
	"github.com/matheus3301/huddle/internal/model"
	"github.com/matheus3301/huddle/internal/outbox"
	"github.com/matheus3301/huddle/internal/push"
	"github.com/matheus3301/huddle/internal/rest"
	"github.com/matheus3301/huddle/internal/session"
	"github.com/matheus3301/huddle/internal/status"
	"github.com/matheus3301/huddle/internal/store"
	intsync "github.com/matheus3301/huddle/internal/sync"
	"github.com/matheus3301/huddle/internal/telemetry"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	Config      *config.Config
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideMetrics,
			provideLock,
			provideStore,
			provideAuthRelay,
			provideREST,
			provideAdapter,
			provideCheckpoints,
			provideSyncEngine,
			provideActions,
			provideSender,
			provideRefresher,
			provideHandlers,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName, p.Config.Log.Level)
}

func provideBus(m *telemetry.Metrics) *bus.Bus {
	b := bus.New()
	b.OnDrop(func(bus.Event) { m.BusDropped() })
	return b
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideMetrics() *telemetry.Metrics {
	return telemetry.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName), p.Config.Server.APIURL)
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.SessionName)
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

// authRelay forwards the REST client's 401 hook to the engine, which is
// built after the client.
type authRelay struct {
	target atomic.Pointer[func()]
}

func (r *authRelay) set(fn func()) { r.target.Store(&fn) }

func (r *authRelay) fire() {
	if fn := r.target.Load(); fn != nil {
		(*fn)()
	}
}

func provideAuthRelay() *authRelay {
	return &authRelay{}
}

func provideREST(p Params, relay *authRelay, m *telemetry.Metrics, logger *zap.Logger) (*rest.Client, error) {
	c := p.Config
	return rest.New(rest.Options{
		BaseURL:        c.Server.APIURL,
		Header:         c.Server.AuthHeader,
		Token:          c.Server.Token,
		Timeout:        c.REST.Timeout.Duration,
		MaxRetries:     c.REST.MaxRetries,
		RatePerSecond:  c.REST.RatePerSecond,
		Burst:          c.REST.Burst,
		Logger:         logger.Named("rest"),
		Metrics:        m,
		OnUnauthorized: relay.fire,
	})
}

func provideAdapter(p Params, m *telemetry.Metrics, logger *zap.Logger) *push.Adapter {
	c := p.Config
	settings := push.DefaultSettings()
	settings.URL = c.Server.PushURL
	settings.Header = c.Server.AuthHeader
	settings.Token = c.Server.Token
	settings.ReconnectMin = c.Push.ReconnectMin.Duration
	settings.ReconnectMax = c.Push.ReconnectMax.Duration
	settings.PingInterval = c.Push.PingInterval.Duration
	settings.ReadTimeout = c.Push.ReadTimeout.Duration
	settings.WriteTimeout = c.Push.WriteTimeout.Duration
	return push.NewAdapter(settings, logger.Named("push"), m)
}

func provideCheckpoints(db *store.DB, logger *zap.Logger) *intsync.Checkpoints {
	return intsync.NewCheckpoints(db, logger)
}

func provideSyncEngine(p Params, client *rest.Client, adapter *push.Adapter, db *store.DB, cp *intsync.Checkpoints,
	b *bus.Bus, machine *status.Machine, m *telemetry.Metrics, relay *authRelay, logger *zap.Logger) *intsync.Engine {
	engine := intsync.NewEngine(intsync.Options{
		Fetcher:      client,
		Subscriber:   adapter,
		Cache:        db,
		Checkpoints:  cp,
		Bus:          b,
		Machine:      machine,
		Metrics:      m,
		Logger:       logger.Named("sync"),
		GapThreshold: p.Config.Sync.GapThreshold.Duration,
	})
	relay.set(engine.Unauthorized)
	adapter.SetScopeSource(engine.ChannelIDs)
	return engine
}

func provideActions(engine *intsync.Engine, client *rest.Client, adapter *push.Adapter, logger *zap.Logger) *intsync.Actions {
	return intsync.NewActions(engine, client, adapter, logger.Named("actions"))
}

func provideSender(db *store.DB, actions *intsync.Actions, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, actions, b, logger.Named("outbox"))
}

// provideRefresher returns nil when periodic snapshots are disabled.
func provideRefresher(p Params, engine *intsync.Engine, logger *zap.Logger) (*intsync.Refresher, error) {
	if p.Config.Sync.SnapshotCron == "" {
		return nil, nil
	}
	return intsync.NewRefresher(p.Config.Sync.SnapshotCron, engine, logger.Named("refresher"))
}

func provideHandlers(p Params, engine *intsync.Engine, actions *intsync.Actions, machine *status.Machine,
	adapter *push.Adapter, client *rest.Client, sender *outbox.Sender, db *store.DB, logger *zap.Logger) *api.Handlers {
	return api.New(api.Deps{
		Session:   p.SessionName,
		Engine:    engine,
		Actions:   actions,
		Machine:   machine,
		Link:      adapter,
		Directory: client,
		Outbox:    sender,
		Index:     db,
		Logger:    logger.Named("api"),
	})
}

type lifecycleDeps struct {
	fx.In

	Params    Params
	Server    *Server
	Lock      *lock.Lock
	DB        *store.DB
	Client    *rest.Client
	Adapter   *push.Adapter
	Engine    *intsync.Engine
	Sender    *outbox.Sender
	Refresher *intsync.Refresher
	Machine   *status.Machine
	Bus       *bus.Bus
	Logger    *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleDeps) {
	ctx, cancel := context.WithCancel(context.Background())
	var releaseHandler func()

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			d.Engine.Start(ctx)
			releaseHandler = d.Adapter.AddEventHandler(d.Engine.HandleEvent)

			go func() {
				if err := d.Server.Start(); err != nil {
					d.Logger.Error("control server error", zap.Error(err))
				}
			}()

			d.Sender.Start(ctx)
			if d.Refresher != nil {
				d.Refresher.Start(ctx)
			}

			cred, err := session.Inspect(d.Params.Config.Server.Token, time.Now())
			if err != nil {
				d.Logger.Warn("no usable credential, auth required", zap.Error(err))
				_ = d.Machine.TransitionWith(status.AuthRequired, err.Error())
				d.Bus.Emit(bus.SessionInvalid, err.Error())
				return nil
			}
			if cred.UserID != "" {
				d.Engine.SetLocalUser(model.User{ID: cred.UserID})
			}
			_ = d.Machine.Transition(status.Connecting)
			go connect(ctx, d)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			if releaseHandler != nil {
				releaseHandler()
			}
			if d.Refresher != nil {
				d.Refresher.Stop()
			}
			d.Sender.Stop()
			d.Adapter.Stop()
			d.Engine.Stop()
			d.Server.Stop(ctx)
			if err := d.DB.Close(); err != nil {
				d.Logger.Warn("error closing store", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				d.Logger.Warn("error releasing lock", zap.Error(err))
			}
			d.Logger.Info("daemon stopped")
			return nil
		},
	})
}

// connect learns the local user, then opens the push channel. The first
// ConnectionEstablished triggers the initial snapshot.
func connect(ctx context.Context, d lifecycleDeps) {
	me, err := d.Client.Me(ctx)
	switch {
	case errors.Is(err, rest.ErrUnauthorized):
		// The 401 hook already moved the session to AUTH_REQUIRED.
		return
	case err != nil:
		d.Logger.Warn("local user lookup failed", zap.Error(err))
	default:
		d.Engine.SetLocalUser(me)
		d.Logger.Info("signed in", zap.String("user_id", me.ID), zap.String("username", me.Username))
	}
	d.Adapter.Start(ctx)
}
