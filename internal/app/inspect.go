package app

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/wcharczuk/go-chart/v2"

	"index-anomaly-alerts/internal/service"
)

// Inspect prints the diagnostic dump and optionally renders a fluctuation chart.
func (a *App) Inspect(ctx context.Context, opts InspectOptions) error {
	svc, closeStore, err := a.newService(ctx, nil)
	if err != nil {
		return err
	}
	defer closeStore()

	rep, err := svc.Diagnose(ctx)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprint(a.Out, rep.Render()); err != nil {
		return err
	}

	if opts.PNGPath == "" {
		return nil
	}
	if err := writeFluctuationPNG(opts.PNGPath, rep); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	a.Logger.Info().Str("path", opts.PNGPath).Msg("fluctuation chart written")
	return nil
}

// writeFluctuationPNG draws one bar per instrument for the window's maximum
// fluctuation and one for its rapid threshold.
func writeFluctuationPNG(path string, rep service.Report) error {
	if len(rep.Diagnostics) == 0 {
		return fmt.Errorf("no instruments to chart")
	}

	bars := make([]chart.Value, 0, 2*len(rep.Diagnostics))
	top := 0.1
	for _, d := range rep.Diagnostics {
		code := d.Instrument.Code
		bars = append(bars,
			chart.Value{Label: code, Value: d.Trend.MaxFluctuation},
			chart.Value{Label: code + " limit", Value: d.Instrument.RapidPct},
		)
		top = math.Max(top, math.Max(d.Trend.MaxFluctuation, d.Instrument.RapidPct))
	}

	graph := chart.BarChart{
		Title:    "15m window fluctuation (%) " + rep.At.Format("2006-01-02 15:04"),
		Width:    1280,
		Height:   720,
		BarWidth: 60,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: top * 1.2},
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.2f")
			},
		},
		Bars: bars,
	}

	if err := ensureDir(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
