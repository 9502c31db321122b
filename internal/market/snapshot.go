// Package market holds the quote and instrument types shared by the fetcher,
// detector and alerting packages.
package market

import "time"

// Snapshot is one normalized quote for an instrument. Amount is the
// cumulative traded value of the day in yuan and only grows within a session.
type Snapshot struct {
	Code       string
	Name       string
	Price      float64
	PreClose   float64
	Open       float64
	High       float64
	Low        float64
	Change     float64
	ChangePct  float64
	Volume     int64
	Amount     float64
	UpdateTime time.Time
}

// Quotes maps instrument code to its latest snapshot.
type Quotes map[string]Snapshot
