package detector

import (
	"fmt"
	"math"

	"index-anomaly-alerts/internal/market"
)

// TrendType is the classified shape of the in-window price path.
type TrendType string

const (
	TrendVUp         TrendType = "v_up"
	TrendVDown       TrendType = "v_down"
	TrendRise        TrendType = "rise"
	TrendFall        TrendType = "fall"
	TrendConsolidate TrendType = "consolidate"
	TrendMixed       TrendType = "mixed"
	TrendUnknown     TrendType = "unknown"
)

// TrendTypes lists every shape the classifier can emit, unknown last.
var TrendTypes = []TrendType{TrendVUp, TrendVDown, TrendRise, TrendFall, TrendConsolidate, TrendMixed, TrendUnknown}

// IsV reports whether both legs of the window moved past the V threshold.
func (t TrendType) IsV() bool {
	return t == TrendVUp || t == TrendVDown
}

// Trend carries the classifier output together with the numbers it used.
type Trend struct {
	Type            TrendType
	Description     string
	StartPrice      float64
	High            float64
	Low             float64
	UpFluctuation   float64
	DownFluctuation float64
	MaxFluctuation  float64
	PriceChangePct  float64
}

func unknownTrend() Trend {
	return Trend{Type: TrendUnknown, Description: "无历史数据"}
}

// Classify measures the window against its start price and names its shape.
func (e *Engine) Classify(snap market.Snapshot, cp Checkpoint) Trend {
	start := cp.WindowStartPrice
	if start == 0 {
		return unknownTrend()
	}

	hi := math.Max(cp.PeriodHigh, snap.Price)
	lo := math.Min(cp.PeriodLow, snap.Price)

	t := Trend{
		StartPrice:      start,
		High:            hi,
		Low:             lo,
		UpFluctuation:   (hi - start) / start * 100,
		DownFluctuation: (lo - start) / start * 100,
		PriceChangePct:  (snap.Price - start) / start * 100,
	}
	t.MaxFluctuation = math.Max(math.Abs(t.UpFluctuation), math.Abs(t.DownFluctuation))
	t.Type = e.Shape(t.UpFluctuation, t.DownFluctuation, t.PriceChangePct)
	t.Description = describeTrend(t)
	return t
}

// Shape applies the ordered classification rules; the first match wins.
func (e *Engine) Shape(up, down, change float64) TrendType {
	maxFluct := math.Max(math.Abs(up), math.Abs(down))
	switch {
	case up > e.cfg.VThreshold && math.Abs(down) > e.cfg.VThreshold:
		if change > 0 {
			return TrendVUp
		}
		return TrendVDown
	case up > e.cfg.RiseFallThreshold && change > 0:
		return TrendRise
	case math.Abs(down) > e.cfg.RiseFallThreshold && change < 0:
		return TrendFall
	case maxFluct < e.cfg.FlatThreshold:
		return TrendConsolidate
	default:
		return TrendMixed
	}
}

func describeTrend(t Trend) string {
	switch t.Type {
	case TrendVUp:
		return fmt.Sprintf("V型反转↑(%.2f→%.2f)", t.Low, t.High)
	case TrendVDown:
		return fmt.Sprintf("倒V反转↓(%.2f→%.2f)", t.High, t.Low)
	case TrendRise:
		return fmt.Sprintf("15分钟上涨↑+%.2f%%", t.PriceChangePct)
	case TrendFall:
		return fmt.Sprintf("15分钟下跌↓%.2f%%", t.PriceChangePct)
	case TrendConsolidate:
		return fmt.Sprintf("15分钟横盘(%.2f%%)", t.MaxFluctuation)
	case TrendMixed:
		return fmt.Sprintf("15分钟震荡(%+.2f%%)", t.PriceChangePct)
	default:
		return "无历史数据"
	}
}
