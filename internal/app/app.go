package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"index-anomaly-alerts/internal/alerting"
	"index-anomaly-alerts/internal/config"
	"index-anomaly-alerts/internal/fetcher"
	"index-anomaly-alerts/internal/scheduler"
	"index-anomaly-alerts/internal/service"
	"index-anomaly-alerts/internal/storage"
)

const notifyTimeout = 10 * time.Second

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) newFetcher() (fetcher.QuoteFetcher, error) {
	loc, err := a.Config.Location()
	if err != nil {
		return nil, err
	}
	return fetcher.NewTencent(fetcher.TencentOptions{
		BaseURL:   a.Config.Quote.BaseURL,
		Timeout:   a.Config.Quote.RequestTimeout,
		UserAgent: a.Config.Quote.UserAgent,
		Location:  loc,
	}, a.Logger), nil
}

func (a *App) newNotifier() (alerting.Notifier, error) {
	return alerting.Build(a.Config.Alerting, a.Out, notifyTimeout, a.Logger)
}

func (a *App) openStore(ctx context.Context) (storage.Store, func(), error) {
	store, err := storage.Open(ctx, a.Config)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {}
	if c, ok := store.(storage.Closer); ok {
		closer = c.Close
	}
	if fs, ok := store.(*storage.FileStore); ok {
		a.Logger.Info().Str("path", fs.Path()).Msg("using file checkpoint store")
	}
	return store, closer, nil
}

// newService wires the production dependencies. sched may be nil.
func (a *App) newService(ctx context.Context, sched *scheduler.Scheduler) (*service.Service, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	quotes, err := a.newFetcher()
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	notifier, err := a.newNotifier()
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	if notifier == nil {
		a.Logger.Warn().Msg("alerting disabled; digests are only logged")
	}

	svc, err := service.New(a.Config, sched, quotes, store, notifier, a.Logger)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return svc, closeStore, nil
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	loc, err := a.Config.Location()
	if err != nil {
		return err
	}
	sched, err := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		Cron:         a.Config.Scheduler.Cron,
		Location:     loc,
	}, a.Logger)
	if err != nil {
		return err
	}

	svc, closeStore, err := a.newService(ctx, sched)
	if err != nil {
		return err
	}
	defer closeStore()

	a.Logger.Info().Str("driver", a.Config.Storage.Driver).Msg("starting monitoring service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// InspectOptions configure the inspect command.
type InspectOptions struct {
	PNGPath string
}

// SimulateOptions describe a synthetic window for simulate-alert.
type SimulateOptions struct {
	Code      string
	Start     float64
	High      float64
	Low       float64
	Price     float64
	ChangePct float64
}
