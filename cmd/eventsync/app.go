package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/guilherme-santos/eventsync/calendar"
	"github.com/guilherme-santos/eventsync/calendar/caldav"
	"github.com/guilherme-santos/eventsync/calendar/google"
	"github.com/guilherme-santos/eventsync/file"
	"github.com/guilherme-santos/eventsync/internal"
	"github.com/guilherme-santos/eventsync/internal/config"
	"github.com/guilherme-santos/eventsync/internal/notify"
	"github.com/guilherme-santos/eventsync/internal/service"
	"github.com/guilherme-santos/eventsync/internal/sqlstore"
	"github.com/guilherme-santos/eventsync/internal/syncer"
)

// app holds the components every command shares.
type app struct {
	logger     *zap.Logger
	location   *time.Location
	store      *sqlstore.Storage
	pool       *syncer.Pool
	hub        *notify.Hub
	syncer     *syncer.Syncer
	dispatcher *syncer.Dispatcher
	watcher    *syncer.Watcher
	events     *service.EventService
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, err := internal.NewLogger(cfg.Verbose)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	credJSON, err := file.ReadClientSecret(cfg.Google.Credentials)
	if err != nil {
		return nil, err
	}
	googleCal, err := google.NewClient(credJSON)
	if err != nil {
		return nil, err
	}
	googleCal.Verbose = cfg.Verbose
	googleCal.CalendarID = cfg.Google.Calendar
	googleCal.Location = loc
	googleCal.Logger = logger.Named("google")

	mux := calendar.NewMux()
	mux.Register(google.Platform, googleCal)
	if cfg.CalDAV.URL != "" {
		davCal := caldav.NewClient(cfg.CalDAV.URL, cfg.CalDAV.Calendar)
		davCal.Location = loc
		davCal.Logger = logger.Named("caldav")
		mux.Register(caldav.Platform, davCal)
	}

	store, err := sqlstore.Open(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return nil, err
	}

	pool := syncer.NewPool(logger.Named("pool"), cfg.Workers, cfg.QueueSize, cfg.TaskTimeout)
	pool.Start(ctx)

	hub := notify.NewHub(logger.Named("notify"))
	s := syncer.New(logger.Named("syncer"), mux, store, store, hub, pool)
	d := syncer.NewDispatcher(logger.Named("dispatch"), mux, store, store, s, hub, pool)
	w := syncer.NewWatcher(logger.Named("watch"), mux, store, s, cfg.HTTP.CallbackBaseURL)
	w.Margin = cfg.WatchMargin

	events := service.New(logger.Named("service"), store, store, s, d, hub)
	events.Location = loc
	events.ReadSyncTimeout = cfg.ReadSyncTimeout

	return &app{
		logger:     logger,
		location:   loc,
		store:      store,
		pool:       pool,
		hub:        hub,
		syncer:     s,
		dispatcher: d,
		watcher:    w,
		events:     events,
	}, nil
}

// Close lets queued remote writes finish before releasing the store.
func (a *app) Close() {
	a.pool.Wait()
	a.shutdown()
}

// shutdown abandons queued work.
func (a *app) shutdown() {
	a.pool.Stop()
	a.hub.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("unable to close storage", zap.Error(err))
	}
	_ = a.logger.Sync()
}
