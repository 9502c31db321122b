package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"index-anomaly-alerts/internal/alerting"
	"index-anomaly-alerts/internal/detector"
	"index-anomaly-alerts/internal/fetcher"
	"index-anomaly-alerts/internal/market"
	"index-anomaly-alerts/internal/service"
	"index-anomaly-alerts/internal/storage"
)

// SimulateAlert 用给定的窗口起点/高低点和当前价格跑一次检测并走真实告警通道。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	notifier, err := a.newNotifier()
	if err != nil {
		return err
	}
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	res, err := a.simulate(ctx, opts, notifier)
	if err != nil {
		return err
	}
	return a.printResult(res.Skipped, res.Message, res.Notified)
}

func (a *App) simulate(ctx context.Context, opts SimulateOptions, notifier alerting.Notifier) (service.CycleResult, error) {
	if err := opts.validate(); err != nil {
		return service.CycleResult{}, err
	}

	loc, err := a.Config.Location()
	if err != nil {
		return service.CycleResult{}, err
	}
	universe := a.Config.Universe()
	inst := universe.Lookup(opts.Code)
	if inst.Name == "未知" {
		return service.CycleResult{}, fmt.Errorf("instrument %s is not configured", opts.Code)
	}

	now := time.Now()
	engine := detector.New(a.Config.EngineConfig(loc))

	prior := storage.NewEnvelope(now.Add(-time.Minute))
	prior.Put(detector.Checkpoint{
		Code:             inst.Code,
		Name:             inst.Name,
		Price:            opts.Start,
		UpdateTime:       now.Add(-time.Minute),
		PeriodHigh:       opts.High,
		PeriodLow:        opts.Low,
		WindowStartPrice: opts.Start,
		WindowStartTime:  now.Add(-5 * time.Minute),
		TradingDay:       engine.TradingDay(now),
	})

	quotes := fetcher.Static{Quotes: market.Quotes{
		inst.Code: {
			Code:       inst.Code,
			Name:       inst.Name,
			Price:      opts.Price,
			PreClose:   opts.Start,
			ChangePct:  opts.ChangePct,
			UpdateTime: now,
		},
	}}

	svc, err := service.New(a.Config, nil, quotes, storage.NewMemoryStore(&prior), notifier, a.Logger)
	if err != nil {
		return service.CycleResult{}, err
	}
	return svc.Check(ctx)
}

func (o SimulateOptions) validate() error {
	if o.Code == "" {
		return errors.New("code 不能为空")
	}
	if o.Low <= 0 || o.Price <= 0 {
		return errors.New("价格必须为正数")
	}
	if o.High < o.Start || o.Start < o.Low {
		return fmt.Errorf("需要满足 high >= start >= low (high=%.2f start=%.2f low=%.2f)", o.High, o.Start, o.Low)
	}
	return nil
}
