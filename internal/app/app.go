// Package app wires configuration, storage, chat transport and the periodic
// jobs into one running bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/jmhodges/clock"

	"duebot/internal/canvas"
	"duebot/internal/commands"
	"duebot/internal/config"
	"duebot/internal/coursesync"
	"duebot/internal/notify"
	"duebot/internal/reminder"
	"duebot/internal/runtime/supervisor"
	"duebot/internal/scheduler"
	"duebot/internal/storage"
	"duebot/internal/store"
	"duebot/internal/transport"
	"duebot/internal/transport/slack"
	"duebot/internal/transport/telegram"
	logx "duebot/pkg/logx"
)

const (
	jobSync      = "assignments.sync"
	jobReminders = "reminders.tick"
)

type App struct {
	cfgm *config.Manager
	cfg  *config.Config
	loc  *time.Location

	sup  *supervisor.Supervisor
	log  logx.Logger
	logs *logx.Service

	adapter  transport.Adapter
	store    *store.Store
	notifier *notify.Service
	engine   *reminder.Engine
	syncer   *coursesync.Syncer
	sched    *scheduler.Scheduler
	router   *commands.Router

	updates chan transport.Update
}

type Option func(*options)

type options struct {
	adapter transport.Adapter
	hc      *http.Client
	clk     clock.Clock
}

// WithAdapter replaces the chat adapter chosen by chat.driver.
func WithAdapter(a transport.Adapter) Option { return func(o *options) { o.adapter = a } }

// WithHTTPClient sets the client used for the course API.
func WithHTTPClient(hc *http.Client) Option { return func(o *options) { o.hc = hc } }

func WithClock(c clock.Clock) Option { return func(o *options) { o.clk = c } }

// New builds the app from the manager's committed config.
func New(cfgm *config.Manager, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if o.clk == nil {
		o.clk = clock.New()
	}

	cfg := cfgm.Get()
	if cfg == nil {
		return nil, errors.New("app: config not loaded")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole(cfg.Logging.Level)
	ad := o.adapter
	if ad == nil {
		if ad, err = newAdapter(cfg, bootLog); err != nil {
			return nil, err
		}
	}

	// Chat logging stays off until the target is known.
	logCfg := mapLogConfig(cfg)
	chatEnabled := logCfg.Chat.Enabled
	logCfg.Chat.Enabled = false
	logs, log := logx.New(logCfg, ad)
	logs.SetChatTarget(alertTarget(cfg))
	logCfg.Chat.Enabled = chatEnabled
	logs.Apply(logCfg)

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	provider, err := storage.Open(sc, log)
	if err != nil {
		return nil, err
	}
	st := store.New(provider, log)

	cc, err := mapCanvasConfig(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	client, err := canvas.New(cc, o.hc, log)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	notifier := notify.New(ncfg, alertTarget(cfg), ad, pingedUsers(st), log)

	engine := reminder.New(st, notifier,
		reminder.WithClock(o.clk),
		reminder.WithLocation(loc),
		reminder.WithLogger(log),
	)
	syncer := coursesync.New(client, st, notifier, cfg.Canvas.CourseID,
		coursesync.WithClock(o.clk),
		coursesync.WithLocation(loc),
		coursesync.WithLogger(log),
	)

	handlers := &commands.Handlers{
		Store:    st,
		Clock:    o.clk,
		Location: loc,
		Sync:     syncer,
		Delivery: notifier,
	}
	router := commands.NewRouter(ad, log)
	router.SetRegistry(handlers.Commands(), handlers.Callbacks())

	return &App{
		cfgm:     cfgm,
		cfg:      cfg,
		loc:      loc,
		log:      log.With(logx.String("comp", "app")),
		logs:     logs,
		adapter:  ad,
		store:    st,
		notifier: notifier,
		engine:   engine,
		syncer:   syncer,
		sched:    scheduler.New(loc, log),
		router:   router,
		updates:  make(chan transport.Update, 256),
	}, nil
}

func newAdapter(cfg *config.Config, log logx.Logger) (transport.Adapter, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Chat.Driver)) {
	case "telegram":
		poll, err := config.ParseDurationOrDefault("chat.telegram.poll_timeout", cfg.Chat.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		return telegram.New(telegram.Config{Token: cfg.Chat.Telegram.Token, PollTimeout: poll}, log)
	case "slack":
		sc := cfg.Chat.Slack
		return slack.New(slack.Config{
			BotToken:        sc.BotToken,
			SigningSecret:   sc.SigningSecret,
			ListenAddr:      sc.ListenAddr,
			CommandPath:     sc.CommandPath,
			InteractionPath: sc.InteractionPath,
		}, log)
	default:
		return nil, fmt.Errorf("unknown chat.driver: %s", cfg.Chat.Driver)
	}
}

// pingedUsers reads the opt-in list at send time.
func pingedUsers(st *store.Store) notify.UsersFunc {
	return func() []string {
		var users []string
		st.View(func(d *store.Document) { users = slices.Clone(d.Users) })
		return users
	}
}

// Done is closed when the app supervisor stops (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	if err := a.store.Load(ctx); err != nil {
		return fmt.Errorf("load store: %w", err)
	}

	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	sctx := a.sup.Context()

	if err := a.addJobs(); err != nil {
		return err
	}
	if err := a.adapter.Start(sctx, a.updates); err != nil {
		return err
	}
	if mu, ok := a.adapter.(transport.CommandMenuUpdater); ok {
		if err := mu.UpdateMenuCommands(ctx, a.router.MenuCommands()); err != nil {
			a.log.Warn("command menu update failed", logx.Err(err))
		}
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	// The first sync runs before the first reminder pass so fresh deadlines
	// are evaluated right away.
	a.sup.Go0("startup", func(c context.Context) {
		if err := a.sched.RunNow(c, jobSync); err != nil {
			a.log.Warn("initial sync failed", logx.Err(err))
		}
		if err := a.sched.RunNow(c, jobReminders); err != nil {
			a.log.Warn("initial reminder pass failed", logx.Err(err))
		}
		if c.Err() == nil {
			a.sched.Start(c)
		}
	})

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return cfg.Validate() })
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.watchReloads()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Debug("sd_notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("notified systemd")
	}

	a.log.Info("duebot started",
		logx.String("chat", a.adapter.Name()),
		logx.String("course", a.cfg.Canvas.CourseID),
		logx.String("tz", a.loc.String()),
	)
	return nil
}

func (a *App) addJobs() error {
	sc := a.cfg.Schedule
	syncTimeout, err := config.ParseDurationOrDefault("schedule.sync_timeout", sc.SyncTimeout, 2*time.Minute)
	if err != nil {
		return err
	}
	tickTimeout, err := config.ParseDurationOrDefault("schedule.reminder_timeout", sc.ReminderTimeout, 30*time.Second)
	if err != nil {
		return err
	}
	if err := a.sched.AddSchedule(jobSync, sc.Sync, syncTimeout, a.syncer.Run); err != nil && !errors.Is(err, scheduler.ErrDuplicate) {
		return err
	}
	if err := a.sched.AddSchedule(jobReminders, sc.Reminders, tickTimeout, a.engine.Run); err != nil && !errors.Is(err, scheduler.ErrDuplicate) {
		return err
	}
	return nil
}

// watchReloads applies live-reloadable config sections.
func (a *App) watchReloads() {
	sub := a.cfgm.Subscribe(4)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfg
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})
}

func (a *App) applyConfig(prev, next *config.Config) {
	ch := config.Diff(prev, next)
	if len(ch.Sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	a.log.Info("config changed", append([]logx.Field{logx.Strings("sections", ch.Sections)}, ch.Fields...)...)
	if len(ch.Restart) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.Strings("sections", ch.Restart))
	}

	a.logs.Apply(mapLogConfig(next))
	ncfg, err := mapNotifierConfig(next)
	if err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
		return
	}
	a.notifier.Apply(ncfg)
}

// Stop shuts down in reverse start order.
func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	var errs []error
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
	}
	if err := a.sched.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	if err := a.adapter.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("adapter: %w", err))
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	a.log.Info("duebot stopped")
	_ = a.logs.Close()
	return errors.Join(errs...)
}
