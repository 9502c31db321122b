package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"index-anomaly-alerts/internal/alerting"
	"index-anomaly-alerts/internal/config"
	"index-anomaly-alerts/internal/detector"
	"index-anomaly-alerts/internal/fetcher"
	"index-anomaly-alerts/internal/market"
	"index-anomaly-alerts/internal/scheduler"
	"index-anomaly-alerts/internal/storage"
)

// Service orchestrates fetching, window tracking, persistence, and alerting.
type Service struct {
	scheduler *scheduler.Scheduler
	engine    *detector.Engine
	universe  market.Universe
	quotes    fetcher.QuoteFetcher
	store     storage.Store
	locker    storage.Locker
	notifier  alerting.Notifier
	logger    zerolog.Logger

	location   *time.Location
	staleAfter time.Duration
	title      string
	now        func() time.Time
}

// CycleResult summarises one polling cycle.
type CycleResult struct {
	At          time.Time
	Assessments []detector.Assessment
	Alerts      []detector.Alert
	Message     string
	ColdStart   bool
	Saved       bool
	Notified    bool
	Skipped     bool
}

// New constructs the monitoring service. sched may be nil for one-shot use.
func New(cfg *config.Config, sched *scheduler.Scheduler, quotes fetcher.QuoteFetcher, store storage.Store, notifier alerting.Notifier, logger zerolog.Logger) (*Service, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	var locker storage.Locker
	if l, ok := store.(storage.Locker); ok {
		locker = l
	}

	return &Service{
		scheduler:  sched,
		engine:     detector.New(cfg.EngineConfig(loc)),
		universe:   cfg.Universe(),
		quotes:     quotes,
		store:      store,
		locker:     locker,
		notifier:   notifier,
		logger:     logger.With().Str("component", "service").Logger(),
		location:   loc,
		staleAfter: cfg.Detector.StaleAfter,
		title:      cfg.Alerting.DingTalk.Title,
		now:        time.Now,
	}, nil
}

// Run begins the scheduled polling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessBucket)
}

// ProcessBucket 执行单个调度周期。
func (s *Service) ProcessBucket(ctx context.Context, bucket time.Time) error {
	res, err := s.Check(ctx)
	if err != nil {
		return err
	}
	if res.Skipped {
		s.logger.Debug().Time("bucket", bucket).Msg("skip bucket because the store lock is held elsewhere")
		return nil
	}
	s.logger.Info().Time("bucket", bucket).
		Int("alerts", len(res.Alerts)).
		Bool("cold_start", res.ColdStart).
		Bool("saved", res.Saved).
		Bool("notified", res.Notified).
		Msg("cycle complete")
	return nil
}

// Check runs one cycle under the store lock.
func (s *Service) Check(ctx context.Context) (CycleResult, error) {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return CycleResult{}, err
	}
	if !proceed {
		return CycleResult{At: s.now(), Skipped: true}, nil
	}
	if unlock != nil {
		defer unlock()
	}
	return s.RunCycle(ctx)
}

// RunCycle loads the prior envelope, evaluates every instrument, saves the
// new envelope and delivers the digest. Only a failed fetch aborts the cycle;
// the store is then left untouched.
func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	now := s.now()
	res := CycleResult{At: now}

	prior, carried := s.loadPrior(ctx, now)
	res.ColdStart = prior == nil

	quotes, err := s.quotes.FetchQuotes(ctx, s.universe.Codes())
	if err != nil {
		return res, fmt.Errorf("fetch quotes: %w", err)
	}

	next := storage.NewEnvelope(now)
	for _, inst := range s.universe.Instruments() {
		cp := prior.Checkpoint(inst.Code)
		snap, ok := quotes[inst.Code]
		if !ok {
			s.logger.Warn().Str("code", inst.Code).Msg("no quote for instrument")
			if cp != nil {
				next.Put(*cp)
			}
			continue
		}

		a := s.engine.Inspect(inst, snap, cp, now)
		if a.ColdStart && carried[inst.Code] {
			a.Next.AlertedLargeChange = true
		}
		next.Put(a.Next)
		res.Assessments = append(res.Assessments, a)
		res.Alerts = append(res.Alerts, a.Alerts...)
	}

	if err := s.store.Save(ctx, next); err != nil {
		s.logger.Error().Err(err).Msg("failed to save checkpoints")
	} else {
		res.Saved = true
	}

	res.Message = alerting.FormatDigest(res.Alerts, now.In(s.location))
	if res.Message == "" || s.notifier == nil {
		return res, nil
	}

	note := alerting.Notification{
		At:         now.In(s.location),
		Title:      s.title,
		Text:       res.Message,
		AlertCount: len(res.Alerts),
		HighCount:  countHigh(res.Alerts),
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Int("alerts", len(res.Alerts)).Str("message", res.Message).Msg("failed to dispatch alert")
	} else {
		res.Notified = true
	}
	return res, nil
}

// loadPrior returns the usable envelope, or nil for a cold start. For a stale
// envelope written earlier on the same trading day it also returns the codes
// whose daily-change alert already fired, so the dedup flag survives.
func (s *Service) loadPrior(ctx context.Context, now time.Time) (*storage.Envelope, map[string]bool) {
	env, err := s.store.Load(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrCorrupt) {
			s.logger.Warn().Err(err).Msg("corrupt checkpoints, starting cold")
		} else {
			s.logger.Error().Err(err).Msg("failed to load checkpoints, starting cold")
		}
		return nil, nil
	}
	if env == nil {
		return nil, nil
	}
	if !env.Stale(now, s.staleAfter) {
		return env, nil
	}

	today := s.engine.TradingDay(now)
	carried := make(map[string]bool)
	for code, cp := range env.Checkpoints {
		if cp.AlertedLargeChange && cp.TradingDay == today {
			carried[code] = true
		}
	}
	s.logger.Info().Time("written_at", env.Timestamp).Int("dedup_carried", len(carried)).Msg("checkpoints are stale, starting cold")
	return nil, carried
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryLock(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire store lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func countHigh(alerts []detector.Alert) int {
	n := 0
	for _, a := range alerts {
		if a.Level == detector.LevelHigh {
			n++
		}
	}
	return n
}
