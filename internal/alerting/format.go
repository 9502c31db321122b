package alerting

import (
	"fmt"
	"strings"
	"time"

	"index-anomaly-alerts/internal/detector"
)

var separator = strings.Repeat("=", 60)

var trendIcons = map[detector.TrendType]string{
	detector.TrendRise:        "📈",
	detector.TrendFall:        "📉",
	detector.TrendVUp:         "〰️📈",
	detector.TrendVDown:       "〰️📉",
	detector.TrendConsolidate: "➡️",
	detector.TrendMixed:       "〰️",
}

// TrendIcon returns the digest icon for a trend type.
func TrendIcon(t detector.TrendType) string {
	if icon, ok := trendIcons[t]; ok {
		return icon
	}
	return "⚠️"
}

// FormatDigest renders alerts in the order given. No alerts means no message.
func FormatDigest(alerts []detector.Alert, at time.Time) string {
	if len(alerts) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🚨 A股异常波动告警 | %s\n", at.Format("15:04:05"))
	b.WriteString(separator + "\n")
	fmt.Fprintf(&b, "发现 %d 个异常:\n\n", len(alerts))

	for _, a := range alerts {
		marker := "🟡"
		if a.Level == detector.LevelHigh {
			marker = "🔴"
		}
		fmt.Fprintf(&b, "%s 【%s】%s\n", marker, a.Name, TrendIcon(a.Trend))
		fmt.Fprintf(&b, "   波动: %s\n", a.Message)
		fmt.Fprintf(&b, "   走势: %s\n", a.Detail)
		if a.VolumeStructure != "" {
			fmt.Fprintf(&b, "   盘面: %s\n", a.VolumeStructure)
		}
		fmt.Fprintf(&b, "   现价: %.2f (%+.2f%%)\n\n", a.Snapshot.Price, a.Snapshot.ChangePct)
	}

	b.WriteString(separator + "\n")
	b.WriteString("⚠️ 建议关注，注意风险控制\n")
	b.WriteString("💡 走势说明: 📈持续涨 📉持续跌 〰️V型 ➡️横盘")
	return b.String()
}
