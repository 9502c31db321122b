package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"index-anomaly-alerts/internal/alerting"
	"index-anomaly-alerts/internal/config"
	"index-anomaly-alerts/internal/detector"
	"index-anomaly-alerts/internal/fetcher"
	"index-anomaly-alerts/internal/market"
	"index-anomaly-alerts/internal/storage"
)

var t0 = time.Date(2024, 3, 4, 2, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		Market: config.MarketConfig{
			Timezone: "UTC",
			Instruments: []config.InstrumentConfig{
				{Code: "sh000001", Name: "上证指数", RapidPct: 0.5, LargePct: 1.5},
				{Code: "sz399006", Name: "创业板指", RapidPct: 1.0, LargePct: 2.5},
			},
		},
		Detector: config.DetectorConfig{
			Window:            15 * time.Minute,
			StaleAfter:        20 * time.Minute,
			VThreshold:        0.3,
			RiseFallThreshold: 0.2,
			FlatThreshold:     0.15,
			VolumeChangePct:   30,
		},
	}
}

type recordingNotifier struct {
	notes []alerting.Notification
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, note alerting.Notification) error {
	r.notes = append(r.notes, note)
	return r.err
}

type failingFetcher struct{}

func (failingFetcher) FetchQuotes(context.Context, []string) (market.Quotes, error) {
	return nil, errors.New("connection reset")
}

func quotes(shPrice, shChange float64) fetcher.Static {
	return fetcher.Static{Quotes: market.Quotes{
		"sh000001": {Code: "sh000001", Name: "上证指数", Price: shPrice, ChangePct: shChange, Amount: 1e9},
		"sz399006": {Code: "sz399006", Name: "创业板指", Price: 2000, ChangePct: 0.1, Amount: 5e8},
	}}
}

type harness struct {
	svc      *Service
	store    *storage.MemoryStore
	notifier *recordingNotifier
	now      time.Time
}

func newHarness(t *testing.T, q fetcher.QuoteFetcher, store *storage.MemoryStore) *harness {
	t.Helper()
	h := &harness{store: store, notifier: &recordingNotifier{}, now: t0}
	svc, err := New(testConfig(), nil, q, store, h.notifier, zerolog.Nop())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.now = func() time.Time { return h.now }
	h.svc = svc
	return h
}

func (h *harness) withQuotes(q fetcher.QuoteFetcher) {
	h.svc.quotes = q
}

func TestRunCycleColdStartRecordsBaseline(t *testing.T) {
	h := newHarness(t, quotes(3000, 2.0), storage.NewMemoryStore(nil))

	res, err := h.svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if !res.ColdStart || len(res.Alerts) != 0 || res.Message != "" {
		t.Fatalf("cold start must not alert: %+v", res)
	}
	if !res.Saved || len(h.notifier.notes) != 0 {
		t.Fatalf("saved=%v notes=%d", res.Saved, len(h.notifier.notes))
	}

	env, _ := h.store.Load(context.Background())
	if env == nil || len(env.Checkpoints) != 2 || !env.Timestamp.Equal(t0) {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if cp := env.Checkpoint("sh000001"); cp.WindowStartPrice != 3000 || cp.AlertedLargeChange {
		t.Fatalf("unexpected baseline %+v", cp)
	}
}

func TestRunCycleAlertsAndNotifies(t *testing.T) {
	h := newHarness(t, quotes(3000, 0.2), storage.NewMemoryStore(nil))
	ctx := context.Background()
	if _, err := h.svc.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}

	h.now = t0.Add(5 * time.Minute)
	h.withQuotes(quotes(3020, 0.4))
	res, err := h.svc.RunCycle(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Alerts) != 1 || res.Alerts[0].Type != detector.AlertFluctuation {
		t.Fatalf("expected one fluctuation alert, got %+v", res.Alerts)
	}
	if !res.Notified || len(h.notifier.notes) != 1 {
		t.Fatalf("notified=%v notes=%d", res.Notified, len(h.notifier.notes))
	}
	note := h.notifier.notes[0]
	if note.Text != res.Message || note.AlertCount != 1 || note.HighCount != 0 {
		t.Fatalf("unexpected notification %+v", note)
	}
	if !strings.Contains(res.Message, "上证指数") || !strings.Contains(res.Message, "发现 1 个异常") {
		t.Fatalf("digest = %q", res.Message)
	}

	env, _ := h.store.Load(ctx)
	cp := env.Checkpoint("sh000001")
	if cp.PeriodHigh != 3020 || cp.WindowStartPrice != 3000 {
		t.Fatalf("window not extended: %+v", cp)
	}
}

func TestRunCycleFetchFailureLeavesStore(t *testing.T) {
	store := storage.NewMemoryStore(nil)
	h := newHarness(t, failingFetcher{}, store)

	if _, err := h.svc.RunCycle(context.Background()); err == nil {
		t.Fatal("fetch failure should be reported")
	}
	if store.Saves != 0 {
		t.Fatalf("store written %d times after a failed fetch", store.Saves)
	}
}

func TestRunCycleSaveFailureStillDelivers(t *testing.T) {
	store := storage.NewMemoryStore(nil)
	h := newHarness(t, quotes(3000, 0.2), store)
	ctx := context.Background()
	if _, err := h.svc.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}

	store.SaveErr = errors.New("read-only file system")
	h.now = t0.Add(5 * time.Minute)
	h.withQuotes(quotes(3020, 0.4))
	res, err := h.svc.RunCycle(ctx)
	if err != nil {
		t.Fatalf("save failure must not abort the cycle: %v", err)
	}
	if res.Saved || !res.Notified {
		t.Fatalf("saved=%v notified=%v", res.Saved, res.Notified)
	}
}

func TestRunCycleNotifyFailureKeepsMessage(t *testing.T) {
	h := newHarness(t, quotes(3000, 0.2), storage.NewMemoryStore(nil))
	h.notifier.err = errors.New("webhook down")
	ctx := context.Background()
	if _, err := h.svc.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}

	h.now = t0.Add(5 * time.Minute)
	h.withQuotes(quotes(3020, 0.4))
	res, err := h.svc.RunCycle(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Notified || res.Message == "" {
		t.Fatalf("notified=%v message=%q", res.Notified, res.Message)
	}
}

func staleEnvelope(tradingDay string) *storage.Envelope {
	written := t0.Add(-30 * time.Minute)
	env := storage.NewEnvelope(written)
	env.Put(detector.Checkpoint{
		Code:               "sh000001",
		Name:               "上证指数",
		Price:              3000,
		PeriodHigh:         3000,
		PeriodLow:          3000,
		WindowStartPrice:   3000,
		WindowStartTime:    written,
		AlertedLargeChange: true,
		TradingDay:         tradingDay,
	})
	return &env
}

func TestStaleSameDayEnvelopeKeepsDedup(t *testing.T) {
	h := newHarness(t, quotes(3000, 2.0), storage.NewMemoryStore(staleEnvelope("2024-03-04")))
	ctx := context.Background()

	res, err := h.svc.RunCycle(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !res.ColdStart || len(res.Alerts) != 0 {
		t.Fatalf("stale envelope must cold start: %+v", res)
	}

	h.now = t0.Add(5 * time.Minute)
	res, err = h.svc.RunCycle(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range res.Alerts {
		if a.Type == detector.AlertLargeDailyChange {
			t.Fatal("daily-change alert repeated within the same trading day")
		}
	}
}

func TestStalePreviousDayEnvelopeResetsDedup(t *testing.T) {
	h := newHarness(t, quotes(3000, 2.0), storage.NewMemoryStore(staleEnvelope("2024-03-01")))
	ctx := context.Background()

	if _, err := h.svc.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}
	h.now = t0.Add(5 * time.Minute)
	res, err := h.svc.RunCycle(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Alerts) != 1 || res.Alerts[0].Type != detector.AlertLargeDailyChange {
		t.Fatalf("new trading day should alert once, got %+v", res.Alerts)
	}
}

func TestRunCycleCorruptStoreStartsCold(t *testing.T) {
	store := storage.NewMemoryStore(nil)
	store.LoadErr = storage.ErrCorrupt
	h := newHarness(t, quotes(3000, 2.0), store)

	res, err := h.svc.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.ColdStart || !res.Saved {
		t.Fatalf("corrupt store should cold start and overwrite: %+v", res)
	}
}

func TestCheckSkipsWhenLocked(t *testing.T) {
	store := storage.NewMemoryStore(nil)
	h := newHarness(t, quotes(3000, 0.2), store)
	unlock, ok, _ := store.TryLock(context.Background())
	if !ok {
		t.Fatal("could not take the lock")
	}
	defer unlock()

	res, err := h.svc.Check(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Skipped || store.Saves != 0 {
		t.Fatalf("locked cycle should be skipped: %+v", res)
	}
}

func TestDiagnoseDoesNotWrite(t *testing.T) {
	store := storage.NewMemoryStore(nil)
	h := newHarness(t, quotes(3000, 0.2), store)
	ctx := context.Background()
	if _, err := h.svc.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}

	h.now = t0.Add(5 * time.Minute)
	h.withQuotes(quotes(3020, 2.0))
	rep, err := h.svc.Diagnose(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if store.Saves != 1 {
		t.Fatalf("diagnose wrote the store: saves=%d", store.Saves)
	}
	if len(rep.Diagnostics) != 2 {
		t.Fatalf("diagnostics = %d", len(rep.Diagnostics))
	}
	d := rep.Diagnostics[0]
	if d.Checkpoint == nil || d.Trend.Type != detector.TrendRise {
		t.Fatalf("unexpected diagnosis %+v", d)
	}
	out := rep.Render()
	for _, want := range []string{"【上证指数】sh000001", "走势类型: rise", "15分钟波动: 0.67%"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q\n%s", want, out)
		}
	}
}

func TestFlatWindowWithoutConfiguredThresholdsIsQuiet(t *testing.T) {
	cfg := testConfig()
	cfg.Market.Instruments = []config.InstrumentConfig{{Code: "sh000300", Name: "沪深300"}}

	now := t0
	flat := fetcher.Static{Quotes: market.Quotes{
		"sh000300": {Code: "sh000300", Name: "沪深300", Price: 3500, ChangePct: 0.1, Amount: 1e9},
	}}
	svc, err := New(cfg, nil, flat, storage.NewMemoryStore(nil), &recordingNotifier{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.now = func() time.Time { return now }

	ctx := context.Background()
	if _, err := svc.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}
	now = t0.Add(5 * time.Minute)
	res, err := svc.RunCycle(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.ColdStart || len(res.Alerts) != 0 {
		t.Fatalf("flat window must not alert: cold=%v alerts=%+v", res.ColdStart, res.Alerts)
	}
}
