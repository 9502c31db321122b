package market

import "github.com/shopspring/decimal"

var tenThousand = decimal.NewFromInt(10_000)

// FormatWan renders a yuan amount in units of 万 with no decimals.
func FormatWan(yuan float64) string {
	return decimal.NewFromFloat(yuan).Div(tenThousand).StringFixed(0)
}
