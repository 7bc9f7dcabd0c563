package app

import (
	"context"
	"fmt"

	"ambush/internal/config"
	"ambush/internal/eventbus"
	"ambush/internal/repo"
	"ambush/internal/services/importer"
	"ambush/internal/services/maintenance"
	"ambush/internal/services/notify"
	"ambush/internal/services/soundboard"
	"ambush/internal/storage"
	"ambush/internal/transport"
	"ambush/internal/transport/httpapi"
	"ambush/pkg/logx"
)

// Collaborators are the external Discord-facing capabilities. The gateway
// client, command adapter and audio codec are built elsewhere and injected
// here; the core only sees these interfaces.
type Collaborators struct {
	Messenger transport.Messenger
	Browser   transport.ChannelBrowser
	Connector transport.Connector
}

// App owns the core components and their lifecycle. The event bus is built
// once here and passed into everything that needs it; there is no global.
type App struct {
	cfg config.Config
	log logx.Logger

	bus    *eventbus.Bus
	gw     *storage.Gateway
	sounds *repo.Sounds
	conf   *repo.Config

	sched *soundboard.Service
	notif *notify.Service
	imp   *importer.Service
	maint *maintenance.Service
	web   *httpapi.Server

	webErr <-chan error
}

// New opens storage and wires the components. A storage failure here is the
// one startup error treated as fatal.
func New(cfg config.Config, collab Collaborators, log logx.Logger) (*App, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	gw, err := storage.Open(storage.Config{Path: cfg.DBPath, BusyTimeout: cfg.BusyTimeout},
		log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	bus := eventbus.New(log.With(logx.String("comp", "eventbus")))

	sounds := repo.NewSounds(gw, bus, log.With(logx.String("comp", "sounds")))
	conf := repo.NewConfig(gw, bus, log.With(logx.String("comp", "config")), repo.Defaults{
		Interval:      cfg.DefaultInterval,
		Volume:        cfg.DefaultVolume,
		NotifyChannel: cfg.NotifyChannelID,
	})

	sched := soundboard.New(conf, sounds, collab.Browser, collab.Connector, soundboard.Options{
		MaxPlayDuration: cfg.MaxPlayDuration,
		LeaveAfterEmpty: cfg.LeaveAfterEmpty,
	}, log.With(logx.String("comp", "soundboard")))

	notif := notify.New(notify.Config{}, collab.Messenger, conf,
		log.With(logx.String("comp", "notifier")))

	imp := importer.New(importer.Config{Dir: cfg.ImportDir}, sounds,
		log.With(logx.String("comp", "importer")))

	maint := maintenance.New(maintenance.Config{Retention: cfg.AuditRetention}, gw,
		log.With(logx.String("comp", "maintenance")))

	web := httpapi.New(httpapi.Config{
		Host:     cfg.WebHost,
		Port:     cfg.WebPort,
		RootPath: cfg.WebRootPath,
	}, sounds, conf, log.With(logx.String("comp", "web")))

	return &App{
		cfg:    cfg,
		log:    log.With(logx.String("comp", "app")),
		bus:    bus,
		gw:     gw,
		sounds: sounds,
		conf:   conf,
		sched:  sched,
		notif:  notif,
		imp:    imp,
		maint:  maint,
		web:    web,
	}, nil
}

// Bus exposes the event bus for additional adapters (the command adapter
// subscribes through this).
func (a *App) Bus() *eventbus.Bus { return a.bus }

// Sounds exposes the sound repository for adapters.
func (a *App) Sounds() *repo.Sounds { return a.sounds }

// Settings exposes the config repository for adapters.
func (a *App) Settings() *repo.Config { return a.conf }

// Start brings everything up. Subscribers are registered before the ready
// event is published so nobody misses it.
func (a *App) Start(ctx context.Context) error {
	if err := a.conf.Seed(ctx); err != nil {
		return fmt.Errorf("seeding config: %w", err)
	}

	a.notif.Start(ctx, a.bus)
	a.sched.Start(ctx, a.bus)
	if err := a.imp.Start(ctx); err != nil {
		return fmt.Errorf("starting importer: %w", err)
	}
	if err := a.maint.Start(ctx); err != nil {
		return fmt.Errorf("starting maintenance: %w", err)
	}
	a.webErr = a.web.Start()

	a.bus.Publish(eventbus.NewBotReady())
	a.log.Info("started", logx.String("guild", a.cfg.GuildID))
	return nil
}

// WebErr reports a fatal web listener failure.
func (a *App) WebErr() <-chan error { return a.webErr }

// Stop shuts down in dependency order: adapters first, then the scheduler,
// then the bus (drained) and finally storage.
func (a *App) Stop(ctx context.Context) error {
	if err := a.web.Stop(ctx); err != nil {
		a.log.Warn("web shutdown failed", logx.Err(err))
	}
	a.imp.Stop()
	a.maint.Stop()
	a.sched.Stop(ctx)

	a.bus.Publish(eventbus.NewShutdown())
	a.notif.Stop()
	if err := a.bus.Close(ctx); err != nil {
		a.log.Warn("event bus drain timed out", logx.Err(err))
	}

	err := a.gw.Close()
	a.log.Info("stopped")
	return err
}
