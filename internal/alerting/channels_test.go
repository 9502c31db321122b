package alerting

import (
	"io"
	"strings"
	"testing"
	"time"

	"index-anomaly-alerts/internal/config"
)

func TestBuildChannels(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.AlertingConfig
		wantLen int
		wantErr string
	}{
		{name: "disabled", cfg: config.AlertingConfig{Enabled: false, Channels: []string{"console"}}},
		{name: "no channels", cfg: config.AlertingConfig{Enabled: true}},
		{name: "console", cfg: config.AlertingConfig{Enabled: true, Channels: []string{" Console "}}, wantLen: 1},
		{
			name: "flag enables dingtalk",
			cfg: config.AlertingConfig{
				Enabled:  true,
				Channels: []string{"console"},
				DingTalk: config.DingTalkConfig{Enabled: true, Webhook: "http://example.invalid"},
			},
			wantLen: 2,
		},
		{name: "telegram without token", cfg: config.AlertingConfig{Enabled: true, Channels: []string{"telegram"}}, wantErr: "bot_token"},
		{name: "unknown", cfg: config.AlertingConfig{Enabled: true, Channels: []string{"pager", "sms"}}, wantErr: "pager,sms"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n, err := Build(tc.cfg, io.Discard, time.Second, testLogger())
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			if tc.wantLen == 0 {
				if n != nil {
					t.Fatalf("expected nil notifier, got %T", n)
				}
				return
			}
			m, ok := n.(*MultiNotifier)
			if !ok || m.Len() != tc.wantLen {
				t.Fatalf("expected %d channels, got %#v", tc.wantLen, n)
			}
		})
	}
}
