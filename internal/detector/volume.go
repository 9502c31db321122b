package detector

import (
	"fmt"

	"index-anomaly-alerts/internal/market"
)

// VolumeClass compares the current window's traded value with the previous window's.
type VolumeClass string

const (
	VolumeExpanding   VolumeClass = "expanding"
	VolumeContracting VolumeClass = "contracting"
	VolumeFlat        VolumeClass = "flat"
)

// VolumeStructure is the volume-price reading of a window.
type VolumeStructure struct {
	CurrentWindowVolume float64
	PrevWindowVolume    float64
	ChangePct           float64
	Class               VolumeClass
	Narrative           string
}

// AnalyzeVolume labels the window as expanding, contracting or flat and
// attaches the narrative for the (trend, class) pair.
func (e *Engine) AnalyzeVolume(snap market.Snapshot, cp Checkpoint, trend Trend) VolumeStructure {
	vs := VolumeStructure{
		CurrentWindowVolume: cp.CurrentWindowVolume(snap.Amount),
		PrevWindowVolume:    cp.PrevWindowVolume,
	}
	if vs.PrevWindowVolume > 0 {
		vs.ChangePct = (vs.CurrentWindowVolume - vs.PrevWindowVolume) / vs.PrevWindowVolume * 100
	}
	vs.Class = ClassifyVolume(vs.ChangePct, e.cfg.VolumeChangePct)
	vs.Narrative = Narrative(trend.Type, vs.Class, vs.ChangePct)
	return vs
}

// ClassifyVolume splits a volume change at ±threshold percent.
func ClassifyVolume(changePct, threshold float64) VolumeClass {
	switch {
	case changePct >= threshold:
		return VolumeExpanding
	case changePct <= -threshold:
		return VolumeContracting
	default:
		return VolumeFlat
	}
}

// Panic reports the heavy-volume sell-off reading: expanding volume on a falling window.
func (v VolumeStructure) Panic(trend TrendType) bool {
	return v.Class == VolumeExpanding && trend == TrendFall
}

var narratives = map[TrendType]map[VolumeClass]string{
	TrendVUp: {
		VolumeExpanding:   "放量深V↑ 资金托底明显(+%.0f%%)",
		VolumeContracting: "缩量深V↑ 反弹力度存疑(%.0f%%)",
		VolumeFlat:        "平量深V↑(%.0f%%)",
	},
	TrendVDown: {
		VolumeExpanding:   "放量倒V↓ 资金出逃(%.0f%%)",
		VolumeContracting: "缩量倒V↓ 买盘不足(%.0f%%)",
		VolumeFlat:        "平量倒V↓(%.0f%%)",
	},
	TrendRise: {
		VolumeExpanding:   "放量上涨↑ 资金入场积极(+%.0f%%)",
		VolumeContracting: "缩量上涨↑ 上涨动能减弱(%.0f%%)",
		VolumeFlat:        "平量上涨↑(%.0f%%)",
	},
	TrendFall: {
		VolumeExpanding:   "放量下跌↓ 恐慌盘涌出(%.0f%%)",
		VolumeContracting: "缩量下跌↓ 抛压减轻(%.0f%%)",
		VolumeFlat:        "平量下跌↓(%.0f%%)",
	},
	TrendConsolidate: {
		VolumeExpanding:   "放量横盘 变盘信号(+%.0f%%)",
		VolumeContracting: "缩量横盘 观望情绪浓(%.0f%%)",
		VolumeFlat:        "平量横盘(%.0f%%)",
	},
	TrendMixed: {
		VolumeExpanding:   "放量震荡 多空分歧加大(+%.0f%%)",
		VolumeContracting: "缩量震荡 交投清淡(%.0f%%)",
		VolumeFlat:        "平量震荡(%.0f%%)",
	},
}

// Narrative is a pure lookup over (trend, class). Pairs outside the table
// get a generic "class + trend" label.
func Narrative(trend TrendType, class VolumeClass, changePct float64) string {
	if byClass, ok := narratives[trend]; ok {
		if tmpl, ok := byClass[class]; ok {
			return fmt.Sprintf(tmpl, changePct)
		}
	}
	return fmt.Sprintf("%s + %s", class, trend)
}
