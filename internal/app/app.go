package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"whoten/internal/config"
	"whoten/internal/jobs"
	"whoten/internal/metrics"
	"whoten/internal/notifier"
	"whoten/internal/runtime/supervisor"
	"whoten/internal/shopify"
	"whoten/internal/state"
	"whoten/internal/storage"
	"whoten/internal/task/engine"
	"whoten/internal/task/scheduler"
	"whoten/internal/web"
	logx "whoten/pkg/logx"
)

const shutdownTimeout = 10 * time.Second

// Options tune construction. Zero values are production defaults.
type Options struct {
	ConfigPath string
	// Lookup replaces os.LookupEnv.
	Lookup config.LookupFunc
	// Addr overrides HTTP_ADDR.
	Addr string
}

// App owns every collaborator and their lifecycle.
type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	st      *state.State
	metrics *metrics.Collector
	store   storage.Store
	reg     *engine.Registry
	shop    *shopify.Client
	notif   *notifier.Service
	jobs    *jobs.Jobs
	sched   *scheduler.Service
	web     *web.Server

	addrOverride string

	mu   sync.Mutex
	sup  *supervisor.Supervisor
	addr string
}

func New(opts Options) (*App, error) {
	var mopts []config.ManagerOption
	if opts.Lookup != nil {
		mopts = append(mopts, config.WithLookup(opts.Lookup))
	}
	// First pass only decides where logs go.
	boot, err := config.NewManager(opts.ConfigPath, mopts...).Parse()
	if err != nil {
		return nil, err
	}
	logs, log := logx.New(mapLogging(boot))

	cfgm := config.NewManager(opts.ConfigPath, append(mopts, config.WithLogger(log.With(logx.String("comp", "config"))))...)
	cfg, err := cfgm.Load()
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	if cfg.SessionSecretGenerated {
		log.Warn("no session secret configured; sessions will not survive a restart")
	}

	a := &App{cfgm: cfgm, logs: logs, log: log.With(logx.String("comp", "app")), addrOverride: opts.Addr}

	stOpts := []state.Option{state.WithLogger(log.With(logx.String("comp", "state")))}
	var engOpts []engine.Option
	if cfg.MetricsEnabled {
		a.metrics = metrics.NewCollector()
		stOpts = append(stOpts, state.WithObserver(a.metrics.ObserveLog))
		engOpts = append(engOpts, engine.WithMetrics(a.metrics))
	}
	a.st = state.New(stOpts...)

	store, err := storage.Open(mapStorage(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}
	if store != nil {
		a.store = store
		engOpts = append(engOpts, engine.WithStore(store))
		a.log.Info("storage enabled", logx.String("driver", cfg.Storage.Driver))
	}

	a.reg = engine.New(engine.Config{}, log.With(logx.String("comp", "engine")), engOpts...)
	a.shop = shopify.New(mapShopify(cfg), a.st)
	a.notif = notifier.New(mapNotifier(cfg), a.st, log.With(logx.String("comp", "notifier")))

	src, pricing := mapSupplier(cfg)
	a.jobs = jobs.New(a.st, a.shop, a.notif, jobs.WithSupplier(src), jobs.WithPricing(pricing))
	if err := a.jobs.Register(a.reg); err != nil {
		a.Close()
		return nil, err
	}

	a.sched = scheduler.New(mapScheduler(cfg), a.reg, a.st, log.With(logx.String("comp", "scheduler")))

	deps := web.Deps{
		State:     a.st,
		Registry:  a.reg,
		Schedules: a.sched,
		Shop:      a.shop,
		Notifier:  a.notif,
		Config:    a.cfgm.Get,
		Log:       log,
	}
	if a.metrics != nil {
		deps.Metrics = a.metrics.Handler()
	}
	if a.web, err = web.New(deps); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// State exposes the shared state holder.
func (a *App) State() *state.State { return a.st }

// Addr is the bound HTTP address once Start has returned.
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

// Done is closed when the app stops, including after a fatal component error.
func (a *App) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start binds the listener, launches the schedulers, the web server and the
// config watcher, then reports readiness to systemd.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sup != nil {
		return errors.New("app already started")
	}

	cfg := a.cfgm.Get()
	addr := cfg.HTTP.Addr
	if a.addrOverride != "" {
		addr = a.addrOverride
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	a.addr = ln.Addr().String()

	a.st.Info("Whoten Sovereign starting…", nil)
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	if err := a.sched.Start(a.sup.Context()); err != nil {
		_ = ln.Close()
		a.sup.Cancel()
		a.sup = nil
		return err
	}

	a.sup.Go("http.serve", func(c context.Context) error {
		return a.web.Serve(c, ln, shutdownTimeout)
	})

	if path := strings.TrimSpace(a.cfgm.Path()); path != "" {
		a.sup.GoRestart("config.watch", 500*time.Millisecond, 10*time.Second, func(c context.Context) error {
			return a.cfgm.Watch(c)
		})
	}
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub, cfg)
	})

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("systemd notified ready")
	}
	a.log.Info("app started", logx.String("addr", a.addr))
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config, lastApplied *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the newest.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					drained = true
				}
			}
			a.apply(lastApplied, next)
			lastApplied = next
		}
	}
}

// apply pushes a reloaded config into the live collaborators.
func (a *App) apply(prev, next *config.Config) {
	sections, attrs := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	a.log.Info("config change applied", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)

	for _, s := range sections {
		if config.RequiresRestart(s) {
			a.log.Warn("config section changed; restart required for it to take effect", logx.String("section", s))
		}
	}

	a.logs.Apply(mapLogging(next))
	a.notif.Apply(mapNotifier(next))
	a.shop.Apply(mapShopify(next))
	a.jobs.Apply(mapSupplier(next))
}

// Stop signals every component, waits for them (bounded by ctx) and closes storage.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	sup := a.sup
	a.mu.Unlock()
	if sup == nil {
		a.Close()
		return nil
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.log.Info("stop requested")

	var errs []error
	if err := a.sched.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	if err := sup.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	a.log.Info("app stopped")
	a.Close()
	return errors.Join(errs...)
}

// Close releases storage and the log file. It does not stop goroutines.
func (a *App) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
		a.store = nil
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}

// RunOnce runs a single task synchronously without schedulers or the web server.
func (a *App) RunOnce(ctx context.Context, task string) (engine.Result, error) {
	return a.reg.Run(ctx, task, engine.TriggerCLI)
}

// RecentRuns reads persisted run history, newest first.
func (a *App) RecentRuns(ctx context.Context, limit int) ([]storage.RunRecord, error) {
	if a.store == nil {
		return nil, storage.ErrDisabled
	}
	return a.store.RecentRuns(ctx, limit)
}
