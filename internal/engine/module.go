// Package engine wires the synchronization components together with fx.
package engine

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/tribalmingle/mobileapp-sub000/internal/api"
	"github.com/tribalmingle/mobileapp-sub000/internal/bus"
	"github.com/tribalmingle/mobileapp-sub000/internal/config"
	"github.com/tribalmingle/mobileapp-sub000/internal/flash"
	"github.com/tribalmingle/mobileapp-sub000/internal/identity"
	"github.com/tribalmingle/mobileapp-sub000/internal/lock"
	"github.com/tribalmingle/mobileapp-sub000/internal/logging"
	"github.com/tribalmingle/mobileapp-sub000/internal/notify"
	"github.com/tribalmingle/mobileapp-sub000/internal/push"
	"github.com/tribalmingle/mobileapp-sub000/internal/schedule"
	"github.com/tribalmingle/mobileapp-sub000/internal/session"
	"github.com/tribalmingle/mobileapp-sub000/internal/task"
	"github.com/tribalmingle/mobileapp-sub000/internal/threadlist"
	"github.com/tribalmingle/mobileapp-sub000/internal/unread"
)

// Params holds the resolved configuration passed to the fx module.
type Params struct {
	Config *config.Config
	Debug  bool
	// Exclusive takes the account lock so only one daemon syncs the account.
	Exclusive bool
	// Logger overrides the file/console logger; used by tests.
	Logger *zap.Logger
}

// Module returns the fx module composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("engine",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideFlash,
			provideScheduler,
			provideTasks,
			provideRunner,
			provideIdentity,
			provideClient,
			provideUnread,
			provideHook,
			provideThreadList,
			provideBridge,
			provideLock,
			New,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) *config.Config {
	return p.Config
}

func provideLogger(p Params) (*zap.Logger, error) {
	if p.Logger != nil {
		return p.Logger, nil
	}
	logPath := p.Config.LogPath
	if logPath == "" && p.Exclusive {
		key, err := session.AccountKey(p.Config.SelfID)
		if err != nil {
			return nil, err
		}
		logPath = session.LogPath(key)
	}
	return logging.New(logPath, p.Config.SelfID, p.Debug)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideFlash(cfg *config.Config) *flash.Model {
	return flash.New(cfg.Sync.ToastTTL.Duration)
}

func provideScheduler() schedule.Scheduler {
	return schedule.NewReal()
}

func provideTasks(logger *zap.Logger) *task.Async {
	return task.NewAsync(logger)
}

func provideRunner(a *task.Async) task.Runner {
	return a
}

func provideIdentity(cfg *config.Config) identity.Resolver {
	return identity.Static(cfg.SelfID)
}

func provideClient(cfg *config.Config) *api.Client {
	return api.New(cfg.BaseURL, api.StaticToken(cfg.Token), cfg.HTTPTimeout.Duration)
}

func provideUnread(client *api.Client, runner task.Runner, b *bus.Bus, logger *zap.Logger) *unread.Store {
	return unread.New(client, runner, b, logger)
}

func provideHook(b *bus.Bus, logger *zap.Logger) *notify.Hook {
	return notify.NewHook(b, logger)
}

func provideThreadList(cfg *config.Config, client *api.Client, store *unread.Store, sched schedule.Scheduler, hook *notify.Hook, b *bus.Bus, fl *flash.Model, logger *zap.Logger) *threadlist.Syncer {
	return threadlist.New(client, store, sched, hook, b, fl, logger, cfg.Sync.ListInterval.Duration)
}

func provideBridge(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *push.Bridge {
	return push.NewBridge(cfg.Push.NATSURL, cfg.PushSubject(), b, logger)
}

// provideLock returns a nil lock unless the engine runs exclusively.
func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if !p.Exclusive {
		return nil, nil
	}
	key, err := session.AccountKey(p.Config.SelfID)
	if err != nil {
		return nil, err
	}
	if err := session.EnsureDir(key); err != nil {
		return nil, err
	}
	l, err := lock.Acquire(session.Dir(key))
	if err != nil {
		return nil, err
	}
	logger.Info("account lock acquired", zap.String("account", key))
	return l, nil
}

func registerLifecycle(lc fx.Lifecycle, p Params, e *Engine, lk *lock.Lock, bridge *push.Bridge, tasks *task.Async, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// One-shot commands drive the components themselves.
			if !p.Exclusive {
				return nil
			}
			e.hook.Start(context.Background())
			e.list.Start(context.Background())

			// Push is best-effort: polling still keeps everything fresh.
			if err := bridge.Start(); err != nil {
				logger.Warn("push bridge unavailable", zap.Error(err))
			}
			logger.Info("sync engine started")
			return nil
		},
		OnStop: func(_ context.Context) error {
			if err := bridge.Stop(); err != nil {
				logger.Warn("error stopping push bridge", zap.Error(err))
			}
			e.list.Stop()
			e.hook.Stop()
			tasks.Wait()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			if p.Exclusive {
				logger.Info("sync engine stopped")
			}
			_ = logger.Sync()
			return nil
		},
	})
}
