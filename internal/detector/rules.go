package detector

import (
	"fmt"
	"math"

	"index-anomaly-alerts/internal/market"
)

// AlertType names the rule family that produced an alert.
type AlertType string

const (
	AlertFluctuation      AlertType = "fluctuation"
	AlertLargeDailyChange AlertType = "large_daily_change"
	AlertVolumeSpike      AlertType = "volume_spike_15min"
)

// Level is the alert severity.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
)

// Alert is produced within one cycle and never persisted.
type Alert struct {
	Type            AlertType
	Code            string
	Name            string
	Message         string
	Detail          string
	VolumeStructure string
	Level           Level
	Trend           TrendType
	Snapshot        market.Snapshot
}

// Evaluate applies the three rule families in order: fluctuation, daily
// change, volume spike. The boolean reports that the daily-change alert fired
// and the dedup flag must be set on the checkpoint being persisted.
func (e *Engine) Evaluate(inst market.Instrument, snap market.Snapshot, prior Checkpoint, trend Trend, vol VolumeStructure) ([]Alert, bool) {
	var alerts []Alert
	name := inst.Name
	if name == "" {
		name = snap.Name
	}

	base := Alert{
		Code:            inst.Code,
		Name:            name,
		VolumeStructure: vol.Narrative,
		Trend:           trend.Type,
		Snapshot:        snap,
	}

	if trend.MaxFluctuation >= inst.RapidPct {
		a := base
		a.Type = AlertFluctuation
		a.Message = fmt.Sprintf("15分钟波动 %.2f%%", trend.MaxFluctuation)
		a.Detail = trend.Description
		a.Level = LevelMedium
		if trend.Type.IsV() {
			a.Level = LevelHigh
		}
		alerts = append(alerts, a)
	}

	markLarge := false
	if math.Abs(snap.ChangePct) >= inst.LargePct && !prior.AlertedLargeChange {
		direction := "大涨"
		if snap.ChangePct < 0 {
			direction = "大跌"
		}
		a := base
		a.Type = AlertLargeDailyChange
		a.Message = fmt.Sprintf("当日%+.2f%%", snap.ChangePct)
		a.Detail = fmt.Sprintf("%s（超过%.1f%%阈值）", direction, inst.LargePct)
		a.Level = LevelHigh
		alerts = append(alerts, a)
		markLarge = true
	}

	if vol.PrevWindowVolume > 0 && vol.ChangePct >= e.cfg.VolumeChangePct {
		a := base
		a.Type = AlertVolumeSpike
		a.Message = fmt.Sprintf("15分钟成交量放量 +%.0f%%", vol.ChangePct)
		a.Detail = fmt.Sprintf("当前: %s万 | 上周期: %s万",
			market.FormatWan(vol.CurrentWindowVolume), market.FormatWan(vol.PrevWindowVolume))
		a.Level = LevelMedium
		if vol.Panic(trend.Type) {
			a.Level = LevelHigh
		}
		alerts = append(alerts, a)
	}

	return alerts, markLarge
}
