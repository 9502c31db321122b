package alerting

import (
	"strings"
	"testing"
	"time"

	"index-anomaly-alerts/internal/detector"
	"index-anomaly-alerts/internal/market"
)

func TestFormatDigestEmpty(t *testing.T) {
	if got := FormatDigest(nil, time.Now()); got != "" {
		t.Fatalf("no alerts should format to empty string, got %q", got)
	}
}

func TestFormatDigestLayout(t *testing.T) {
	at := time.Date(2024, 3, 4, 10, 30, 5, 0, time.UTC)
	alerts := []detector.Alert{
		{
			Type:            detector.AlertFluctuation,
			Name:            "上证指数",
			Message:         "15分钟波动 0.60%",
			Detail:          "V型反转↑(2982.00→3018.00)",
			VolumeStructure: "放量深V↑ 资金托底明显(+45%)",
			Level:           detector.LevelHigh,
			Trend:           detector.TrendVUp,
			Snapshot:        market.Snapshot{Price: 3010, ChangePct: 0.33},
		},
		{
			Type:     detector.AlertLargeDailyChange,
			Name:     "创业板指",
			Message:  "当日-2.60%",
			Detail:   "大跌（超过2.5%阈值）",
			Level:    detector.LevelMedium,
			Trend:    detector.TrendUnknown,
			Snapshot: market.Snapshot{Price: 1850.5, ChangePct: -2.6},
		},
	}

	out := FormatDigest(alerts, at)
	for _, want := range []string{
		"🚨 A股异常波动告警 | 10:30:05",
		"发现 2 个异常:",
		"🔴 【上证指数】〰️📈",
		"   盘面: 放量深V↑ 资金托底明显(+45%)",
		"   现价: 3010.00 (+0.33%)",
		"🟡 【创业板指】⚠️",
		"   现价: 1850.50 (-2.60%)",
		"💡 走势说明",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("digest missing %q\n%s", want, out)
		}
	}
	if strings.Index(out, "上证指数") > strings.Index(out, "创业板指") {
		t.Error("alert order must be preserved")
	}
	if strings.Count(out, "盘面:") != 1 {
		t.Error("empty volume structure should omit the 盘面 line")
	}
}
