package detector

import "time"

// Checkpoint is the per-instrument window state carried between cycles.
//
// Invariant within a window: PeriodHigh >= WindowStartPrice >= PeriodLow.
type Checkpoint struct {
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	Price      float64   `json:"price"`
	ChangePct  float64   `json:"change_pct"`
	Amount     float64   `json:"amount"`
	Volume     int64     `json:"volume"`
	UpdateTime time.Time `json:"update_time"`

	PeriodHigh        float64   `json:"period_high"`
	PeriodLow         float64   `json:"period_low"`
	WindowStartPrice  float64   `json:"window_start_price"`
	WindowStartTime   time.Time `json:"window_start_time"`
	WindowStartAmount float64   `json:"window_start_amount"`
	PrevWindowVolume  float64   `json:"prev_window_volume"`

	// AlertedLargeChange is the daily-change dedup flag; it is only valid
	// for TradingDay.
	AlertedLargeChange bool   `json:"alerted_large_change"`
	TradingDay         string `json:"trading_day"`
}

// CurrentWindowVolume is the value traded since the window opened, as seen
// by a snapshot whose cumulative amount is amount.
func (c Checkpoint) CurrentWindowVolume(amount float64) float64 {
	return nonNegative(amount - c.WindowStartAmount)
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
