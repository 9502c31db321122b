package detector

import (
	"math"
	"time"

	"index-anomaly-alerts/internal/market"
)

// RolledOver reports whether a new window starts at now. The decision uses
// the window's own start time, not the time the store was last written.
func (e *Engine) RolledOver(prior *Checkpoint, now time.Time) bool {
	if prior == nil || prior.WindowStartTime.IsZero() {
		return true
	}
	if prior.TradingDay != "" && prior.TradingDay != e.TradingDay(now) {
		return true
	}
	return now.Sub(prior.WindowStartTime) >= e.cfg.Window
}

// Track produces the checkpoint to persist for this cycle. It has no side
// effects.
func (e *Engine) Track(snap market.Snapshot, prior *Checkpoint, now time.Time) Checkpoint {
	next := Checkpoint{
		Code:       snap.Code,
		Name:       snap.Name,
		Price:      snap.Price,
		ChangePct:  snap.ChangePct,
		Amount:     snap.Amount,
		Volume:     snap.Volume,
		UpdateTime: snap.UpdateTime,
		TradingDay: e.TradingDay(now),
	}

	sameDay := prior != nil && prior.TradingDay == next.TradingDay
	if sameDay {
		next.AlertedLargeChange = prior.AlertedLargeChange
	}

	if e.RolledOver(prior, now) {
		next.PeriodHigh = snap.Price
		next.PeriodLow = snap.Price
		next.WindowStartPrice = snap.Price
		next.WindowStartTime = now
		next.WindowStartAmount = snap.Amount
		if sameDay && prior.Amount > 0 && prior.WindowStartAmount > 0 {
			next.PrevWindowVolume = nonNegative(prior.Amount - prior.WindowStartAmount)
		}
		return next
	}

	next.PeriodHigh = math.Max(prior.PeriodHigh, snap.Price)
	next.PeriodLow = math.Min(prior.PeriodLow, snap.Price)
	next.WindowStartPrice = prior.WindowStartPrice
	next.WindowStartTime = prior.WindowStartTime
	next.WindowStartAmount = prior.WindowStartAmount
	next.PrevWindowVolume = prior.PrevWindowVolume
	return next
}
