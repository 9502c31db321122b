package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"index-anomaly-alerts/internal/detector"
	"index-anomaly-alerts/internal/market"
)

// Diagnosis is the intermediate state of one instrument.
type Diagnosis struct {
	Instrument market.Instrument
	Snapshot   market.Snapshot
	Quoted     bool
	Checkpoint *detector.Checkpoint
	Trend      detector.Trend
	Volume     detector.VolumeStructure
}

// Report is the diagnostic dump. It never consults the alert rules and never
// writes the store.
type Report struct {
	At          time.Time
	StoreWrite  time.Time
	StoreStale  bool
	Diagnostics []Diagnosis
}

// Diagnose fetches quotes and analyzes them against the stored checkpoints.
func (s *Service) Diagnose(ctx context.Context) (Report, error) {
	now := s.now()
	rep := Report{At: now.In(s.location)}

	env, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to load checkpoints for diagnostics")
	}
	if env != nil {
		rep.StoreWrite = env.Timestamp
		if env.Stale(now, s.staleAfter) {
			rep.StoreStale = true
			env = nil
		}
	}

	quotes, err := s.quotes.FetchQuotes(ctx, s.universe.Codes())
	if err != nil {
		return rep, fmt.Errorf("fetch quotes: %w", err)
	}

	for _, inst := range s.universe.Instruments() {
		d := Diagnosis{Instrument: inst, Checkpoint: env.Checkpoint(inst.Code)}
		d.Snapshot, d.Quoted = quotes[inst.Code]
		if d.Quoted && d.Checkpoint != nil {
			d.Trend, d.Volume = s.engine.Analyze(d.Snapshot, *d.Checkpoint)
		}
		rep.Diagnostics = append(rep.Diagnostics, d)
	}
	return rep, nil
}

// Render formats the report for a terminal.
func (r Report) Render() string {
	rule := strings.Repeat("=", 70)
	var b strings.Builder
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "📊 指数监控 数据详情 | %s\n", r.At.Format("15:04:05"))
	b.WriteString(rule + "\n")
	switch {
	case r.StoreWrite.IsZero():
		b.WriteString("存储: 无记录\n")
	case r.StoreStale:
		fmt.Fprintf(&b, "存储: %s 写入，已过期\n", r.StoreWrite.In(r.At.Location()).Format(time.DateTime))
	default:
		fmt.Fprintf(&b, "存储: %s 写入\n", r.StoreWrite.In(r.At.Location()).Format(time.DateTime))
	}
	b.WriteString("\n")

	for _, d := range r.Diagnostics {
		fmt.Fprintf(&b, "【%s】%s\n", d.Instrument.Name, d.Instrument.Code)
		if !d.Quoted {
			b.WriteString("  ⚠️ 未获取到行情\n")
			b.WriteString(strings.Repeat("-", 70) + "\n\n")
			continue
		}
		snap := d.Snapshot
		fmt.Fprintf(&b, "  当前价格: %.2f (%+.2f%%)\n", snap.Price, snap.ChangePct)
		fmt.Fprintf(&b, "  当日最高: %.2f | 当日最低: %.2f\n", snap.High, snap.Low)
		fmt.Fprintf(&b, "  累计成交额: %s万\n\n", market.FormatWan(snap.Amount))

		cp := d.Checkpoint
		if cp == nil {
			b.WriteString("  ⚠️ 无历史数据（首次运行）\n")
			b.WriteString(strings.Repeat("-", 70) + "\n\n")
			continue
		}

		b.WriteString("  📌 当前15分钟窗口:\n")
		fmt.Fprintf(&b, "     窗口起始价: %.2f\n", cp.WindowStartPrice)
		fmt.Fprintf(&b, "     窗口起始时间: %s\n", cp.WindowStartTime.In(r.At.Location()).Format(time.DateTime))
		fmt.Fprintf(&b, "     窗口内高点: %.2f\n", cp.PeriodHigh)
		fmt.Fprintf(&b, "     窗口内低点: %.2f\n", cp.PeriodLow)
		if cp.WindowStartAmount > 0 {
			fmt.Fprintf(&b, "     窗口起始累计额: %s万\n", market.FormatWan(cp.WindowStartAmount))
		} else {
			b.WriteString("     窗口起始累计额: N/A\n")
		}
		b.WriteString("\n  📌 上一个15分钟窗口:\n")
		if cp.PrevWindowVolume > 0 {
			fmt.Fprintf(&b, "     成交量: %s万\n", market.FormatWan(cp.PrevWindowVolume))
		} else {
			b.WriteString("     成交量: N/A (无历史数据)\n")
		}
		b.WriteString("\n")
		if cp.WindowStartAmount > 0 {
			fmt.Fprintf(&b, "  📌 当前窗口已成交: %s万\n", market.FormatWan(d.Volume.CurrentWindowVolume))
			if d.Volume.PrevWindowVolume > 0 {
				fmt.Fprintf(&b, "  📌 较上周期变化: %+.1f%%\n", d.Volume.ChangePct)
			}
		}
		b.WriteString("\n  📊 分析结果:\n")
		fmt.Fprintf(&b, "     15分钟波动: %.2f%%\n", d.Trend.MaxFluctuation)
		fmt.Fprintf(&b, "     走势类型: %s\n", d.Trend.Type)
		fmt.Fprintf(&b, "     走势描述: %s\n", d.Trend.Description)
		fmt.Fprintf(&b, "     量价结构: %s\n", d.Volume.Narrative)
		fmt.Fprintf(&b, "     当日大幅波动已告警: %t\n", cp.AlertedLargeChange)
		b.WriteString(strings.Repeat("-", 70) + "\n\n")
	}
	return b.String()
}
