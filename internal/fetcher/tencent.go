package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"index-anomaly-alerts/internal/market"
)

// Field positions in a qt.gtimg.cn record, split on '~'.
const (
	fieldName       = 1
	fieldPrice      = 3
	fieldPreClose   = 4
	fieldOpen       = 5
	fieldUpdateTime = 30
	fieldChange     = 31
	fieldChangePct  = 32
	fieldHigh       = 33
	fieldLow        = 34
	fieldVolume     = 36
	fieldAmount     = 37

	minFields        = 45
	updateTimeLayout = "20060102150405"
)

var (
	recordPattern = regexp.MustCompile(`v_(s[hz]\d+)="([^"]*)"`)
	thousand      = decimal.NewFromInt(1000)
)

// TencentOptions parameterise the quote fetcher.
type TencentOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Location  *time.Location
}

// Tencent fetches index quotes from the qt.gtimg.cn quote API.
type Tencent struct {
	opts    TencentOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewTencent constructs a quote fetcher.
func NewTencent(opts TencentOptions, logger zerolog.Logger) *Tencent {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://qt.gtimg.cn"
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	return &Tencent{
		opts:    opts,
		logger:  logger.With().Str("component", "quote_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchQuotes requests all codes in one call. The response is GBK encoded.
func (t *Tencent) FetchQuotes(ctx context.Context, codes []string) (market.Quotes, error) {
	if len(codes) == 0 {
		return nil, fmt.Errorf("no instrument codes requested")
	}

	endpoint := t.baseURL + "/q=" + strings.Join(codes, ",")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if ua := strings.TrimSpace(t.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "indexwatch/1.0")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote api error (%d)", resp.StatusCode)
	}

	body, err := io.ReadAll(transform.NewReader(resp.Body, simplifiedchinese.GBK.NewDecoder()))
	if err != nil {
		return nil, fmt.Errorf("read quote body: %w", err)
	}

	quotes := ParseQuotes(string(body), t.opts.Location)
	if len(quotes) == 0 {
		return nil, ErrNoQuotes
	}
	if len(quotes) < len(codes) {
		t.logger.Warn().Int("requested", len(codes)).Int("parsed", len(quotes)).Msg("quote response is missing instruments")
	}
	return quotes, nil
}

// ParseQuotes extracts every well-formed record from a decoded payload.
// Records with too few fields are skipped; unparseable numbers become 0.
func ParseQuotes(payload string, loc *time.Location) market.Quotes {
	if loc == nil {
		loc = time.Local
	}
	quotes := make(market.Quotes)
	for _, m := range recordPattern.FindAllStringSubmatch(payload, -1) {
		fields := strings.Split(m[2], "~")
		if len(fields) < minFields {
			continue
		}
		code := m[1]
		quotes[code] = market.Snapshot{
			Code:       code,
			Name:       strings.TrimSpace(fields[fieldName]),
			Price:      parseFloat(fields[fieldPrice]),
			PreClose:   parseFloat(fields[fieldPreClose]),
			Open:       parseFloat(fields[fieldOpen]),
			High:       parseFloat(fields[fieldHigh]),
			Low:        parseFloat(fields[fieldLow]),
			Change:     parseFloat(fields[fieldChange]),
			ChangePct:  parseFloat(fields[fieldChangePct]),
			Volume:     parseInt(fields[fieldVolume]),
			Amount:     thousandYuan(fields[fieldAmount]),
			UpdateTime: parseUpdateTime(fields[fieldUpdateTime], loc),
		}
	}
	return quotes
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt(s string) int64 {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	return int64(parseFloat(s))
}

// thousandYuan converts the 千元 amount field into yuan.
func thousandYuan(s string) float64 {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return d.Mul(thousand).InexactFloat64()
}

func parseUpdateTime(s string, loc *time.Location) time.Time {
	t, err := time.ParseInLocation(updateTimeLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

var _ QuoteFetcher = (*Tencent)(nil)
