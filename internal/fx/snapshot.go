// Package fx provides USD exchange rates for reporting.
package fx

import (
	"math"
	"strings"
	"time"
)

// Snapshot is a set of USD rates expressed as units of currency per 1 USD.
type Snapshot struct {
	Base      string             `json:"base"`
	Rates     map[string]float64 `json:"rates"`
	FetchedAt time.Time          `json:"fetched_at"`
}

// ToUSD converts amount in currency to USD. It reports false when the
// currency has no usable rate. An empty currency is treated as USD.
func (s *Snapshot) ToUSD(amount float64, currency string) (float64, bool) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" || currency == "USD" {
		return amount, true
	}
	if s == nil {
		return 0, false
	}

	rate, ok := s.Rates[currency]
	if !ok || math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
		return 0, false
	}
	return amount / rate, true
}
