package market

// Thresholds holds the per-instrument alert limits in percentage points.
type Thresholds struct {
	RapidPct float64 // intra-window fluctuation
	LargePct float64 // cumulative daily change
}

// FallbackThresholds apply to instruments missing from the universe.
var FallbackThresholds = Thresholds{RapidPct: 0.7, LargePct: 2.0}

// Instrument is a tracked index.
type Instrument struct {
	Code string
	Name string
	Thresholds
}

// DefaultInstruments returns the four board indices watched out of the box.
func DefaultInstruments() []Instrument {
	return []Instrument{
		{Code: "sh000001", Name: "上证指数", Thresholds: Thresholds{RapidPct: 0.5, LargePct: 1.5}},
		{Code: "sz399001", Name: "深证成指", Thresholds: Thresholds{RapidPct: 0.7, LargePct: 2.0}},
		{Code: "sz399006", Name: "创业板指", Thresholds: Thresholds{RapidPct: 1.0, LargePct: 2.5}},
		{Code: "sh000688", Name: "科创50", Thresholds: Thresholds{RapidPct: 1.0, LargePct: 2.5}},
	}
}

// Universe is the ordered, immutable set of tracked instruments.
type Universe struct {
	list   []Instrument
	byCode map[string]int
}

// NewUniverse indexes instruments by code. Later duplicates replace earlier ones
// but keep the position of the first occurrence.
func NewUniverse(instruments []Instrument) Universe {
	u := Universe{byCode: make(map[string]int, len(instruments))}
	for _, inst := range instruments {
		if idx, ok := u.byCode[inst.Code]; ok {
			u.list[idx] = inst
			continue
		}
		u.byCode[inst.Code] = len(u.list)
		u.list = append(u.list, inst)
	}
	return u
}

// Instruments returns the instruments in configuration order.
func (u Universe) Instruments() []Instrument {
	out := make([]Instrument, len(u.list))
	copy(out, u.list)
	return out
}

// Codes returns the instrument codes in configuration order.
func (u Universe) Codes() []string {
	codes := make([]string, len(u.list))
	for i, inst := range u.list {
		codes[i] = inst.Code
	}
	return codes
}

// Len reports the number of instruments.
func (u Universe) Len() int {
	return len(u.list)
}

// Lookup never fails: unknown codes get the fallback thresholds.
func (u Universe) Lookup(code string) Instrument {
	if idx, ok := u.byCode[code]; ok {
		return u.list[idx]
	}
	return Instrument{Code: code, Name: "未知", Thresholds: FallbackThresholds}
}
