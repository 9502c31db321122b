package alerting

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"index-anomaly-alerts/internal/config"
)

// Channel names accepted in alerting.channels.
const (
	ChannelConsole  = "console"
	ChannelTelegram = "telegram"
	ChannelDingTalk = "dingtalk"
)

// Build assembles the notifiers named in cfg.Channels. Telegram and DingTalk
// are also added when their own enabled flag is set. A disabled alerting
// section, or one without any channel, yields nil.
func Build(cfg config.AlertingConfig, console io.Writer, timeout time.Duration, logger zerolog.Logger) (Notifier, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	want := make(map[string]bool)
	for _, ch := range cfg.Channels {
		ch = strings.ToLower(strings.TrimSpace(ch))
		if ch != "" {
			want[ch] = true
		}
	}
	if cfg.Telegram.Enabled {
		want[ChannelTelegram] = true
	}
	if cfg.DingTalk.Enabled {
		want[ChannelDingTalk] = true
	}

	var notifiers []Notifier
	for _, ch := range []string{ChannelConsole, ChannelTelegram, ChannelDingTalk} {
		if !want[ch] {
			continue
		}
		delete(want, ch)
		switch ch {
		case ChannelConsole:
			notifiers = append(notifiers, NewConsoleNotifier(console))
		case ChannelTelegram:
			if cfg.Telegram.BotToken == "" || cfg.Telegram.ChatID == "" {
				return nil, fmt.Errorf("telegram channel requires bot_token and chat_id")
			}
			notifiers = append(notifiers, NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIBase, timeout, logger))
		case ChannelDingTalk:
			if cfg.DingTalk.Webhook == "" {
				return nil, fmt.Errorf("dingtalk channel requires webhook")
			}
			notifiers = append(notifiers, NewDingTalkNotifier(cfg.DingTalk.Webhook, cfg.DingTalk.Secret, cfg.DingTalk.Title, timeout, logger))
		}
	}
	if len(want) > 0 {
		unknown := make([]string, 0, len(want))
		for ch := range want {
			unknown = append(unknown, ch)
		}
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown alert channel(s): %s", strings.Join(unknown, ","))
	}

	if len(notifiers) == 0 {
		return nil, nil
	}
	return NewMultiNotifier(notifiers...), nil
}
