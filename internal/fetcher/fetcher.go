package fetcher

import (
	"context"
	"errors"

	"index-anomaly-alerts/internal/market"
)

// ErrNoQuotes is returned when the source answered but no instrument could be parsed.
var ErrNoQuotes = errors.New("fetcher: no quotes in response")

// QuoteFetcher retrieves the latest snapshot for each requested code.
type QuoteFetcher interface {
	FetchQuotes(ctx context.Context, codes []string) (market.Quotes, error)
}

// Static serves a fixed set of quotes. It backs the simulate command.
type Static struct {
	Quotes market.Quotes
}

// FetchQuotes returns the configured snapshots restricted to codes.
func (s Static) FetchQuotes(_ context.Context, codes []string) (market.Quotes, error) {
	out := make(market.Quotes, len(codes))
	for _, code := range codes {
		if snap, ok := s.Quotes[code]; ok {
			out[code] = snap
		}
	}
	if len(out) == 0 {
		return nil, ErrNoQuotes
	}
	return out, nil
}
