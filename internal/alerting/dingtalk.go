package alerting

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DingTalkNotifier 通过自定义机器人 webhook 推送 markdown 消息。
type DingTalkNotifier struct {
	webhook string
	secret  string
	title   string
	client  *http.Client
	logger  zerolog.Logger
	now     func() time.Time
}

type dingTalkMessage struct {
	MsgType  string           `json:"msgtype"`
	Markdown dingTalkMarkdown `json:"markdown"`
}

type dingTalkMarkdown struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type dingTalkResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// NewDingTalkNotifier 构造钉钉告警器。secret 为空时不加签。
func NewDingTalkNotifier(webhook, secret, title string, timeout time.Duration, logger zerolog.Logger) *DingTalkNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if title == "" {
		title = "市场总结"
	}
	return &DingTalkNotifier{
		webhook: webhook,
		secret:  secret,
		title:   title,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "alert_dingtalk").Logger(),
		now:     time.Now,
	}
}

// Notify 发送 markdown 消息，errcode 非 0 视为失败。
func (n *DingTalkNotifier) Notify(ctx context.Context, note Notification) error {
	title := n.title
	if note.Title != "" {
		title = note.Title
	}
	if note.HighCount > 0 {
		title = fmt.Sprintf("🔴×%d %s", note.HighCount, title)
	}
	msg := dingTalkMessage{
		MsgType:  "markdown",
		Markdown: dingTalkMarkdown{Title: title, Text: n.render(title, note)},
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal dingtalk payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.signedURL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create dingtalk request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send dingtalk request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("dingtalk 响应码异常: %d", resp.StatusCode)
	}

	var result dingTalkResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode dingtalk response: %w", err)
	}
	if result.ErrCode != 0 {
		return fmt.Errorf("钉钉API错误 [%d]: %s", result.ErrCode, result.ErrMsg)
	}

	n.logger.Info().Time("at", note.At).Int("alerts", note.AlertCount).Int("high", note.HighCount).Msg("告警已发送 (DingTalk)")
	return nil
}

func (n *DingTalkNotifier) render(title string, note Notification) string {
	at := note.At
	if at.IsZero() {
		at = n.now()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## 📊 %s\n\n", title)
	fmt.Fprintf(&b, "**时间:** %s\n\n", at.Format("2006-01-02 15:04"))
	b.WriteString(note.Text)
	b.WriteString("\n\n---\n*indexwatch 指数异动监控*\n")
	return b.String()
}

// signedURL appends timestamp and sign: base64(HMAC-SHA256(secret, "ts\nsecret")).
func (n *DingTalkNotifier) signedURL() string {
	if n.secret == "" {
		return n.webhook
	}
	ts := n.now().UnixMilli()
	sep := "&"
	if !strings.Contains(n.webhook, "?") {
		sep = "?"
	}
	return fmt.Sprintf("%s%stimestamp=%d&sign=%s", n.webhook, sep, ts, url.QueryEscape(Sign(n.secret, ts)))
}

// Sign computes the DingTalk robot signature for a millisecond timestamp.
func Sign(secret string, timestampMillis int64) string {
	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%d\n%s", timestampMillis, secret)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

var _ Notifier = (*DingTalkNotifier)(nil)
