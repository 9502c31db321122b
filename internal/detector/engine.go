// Package detector implements the 15-minute window anomaly engine: window
// tracking, trend classification, volume structure and the alert rules.
package detector

import (
	"time"

	"index-anomaly-alerts/internal/market"
)

const tradingDayLayout = "2006-01-02"

// Config tunes the engine. Thresholds are percentage points.
type Config struct {
	Window            time.Duration
	VThreshold        float64
	RiseFallThreshold float64
	FlatThreshold     float64
	VolumeChangePct   float64
	Location          *time.Location
}

// DefaultConfig returns the thresholds the monitor was calibrated with.
func DefaultConfig() Config {
	return Config{
		Window:            15 * time.Minute,
		VThreshold:        0.3,
		RiseFallThreshold: 0.2,
		FlatThreshold:     0.15,
		VolumeChangePct:   30,
		Location:          time.Local,
	}
}

// Engine is stateless apart from its configuration and safe for concurrent use.
type Engine struct {
	cfg Config
}

// New constructs an Engine, filling zero fields from DefaultConfig.
func New(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.VThreshold <= 0 {
		cfg.VThreshold = def.VThreshold
	}
	if cfg.RiseFallThreshold <= 0 {
		cfg.RiseFallThreshold = def.RiseFallThreshold
	}
	if cfg.FlatThreshold <= 0 {
		cfg.FlatThreshold = def.FlatThreshold
	}
	if cfg.VolumeChangePct <= 0 {
		cfg.VolumeChangePct = def.VolumeChangePct
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	return &Engine{cfg: cfg}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// TradingDay returns the calendar date of t in the market timezone.
func (e *Engine) TradingDay(t time.Time) string {
	return t.In(e.cfg.Location).Format(tradingDayLayout)
}

// Assessment is the outcome of one instrument in one cycle.
type Assessment struct {
	Instrument market.Instrument
	Snapshot   market.Snapshot
	Prior      *Checkpoint
	Next       Checkpoint
	Trend      Trend
	Volume     VolumeStructure
	Alerts     []Alert
	ColdStart  bool
}

// Analyze derives trend and volume structure from the prior checkpoint
// without evaluating any alert rule.
func (e *Engine) Analyze(snap market.Snapshot, prior Checkpoint) (Trend, VolumeStructure) {
	trend := e.Classify(snap, prior)
	return trend, e.AnalyzeVolume(snap, prior, trend)
}

// Inspect runs the full pipeline for one instrument. A nil prior is a cold
// start: the new baseline is recorded and no alert is produced.
func (e *Engine) Inspect(inst market.Instrument, snap market.Snapshot, prior *Checkpoint, now time.Time) Assessment {
	result := Assessment{
		Instrument: inst,
		Snapshot:   snap,
		Prior:      prior,
		Next:       e.Track(snap, prior, now),
	}

	if prior == nil {
		result.ColdStart = true
		result.Trend = unknownTrend()
		result.Volume = VolumeStructure{Class: VolumeFlat, Narrative: "数据不足"}
		return result
	}

	base := *prior
	if base.TradingDay != result.Next.TradingDay {
		base.AlertedLargeChange = false
	}

	result.Trend, result.Volume = e.Analyze(snap, base)

	alerts, markLarge := e.Evaluate(inst, snap, base, result.Trend, result.Volume)
	result.Alerts = alerts
	if markLarge {
		result.Next.AlertedLargeChange = true
	}
	return result
}
