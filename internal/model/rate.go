package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rate is a point-in-time exchange rate: one unit of Base costs Value units of Quote.
type Rate struct {
	Base      string          `json:"base"`
	Quote     string          `json:"quote"`
	Value     decimal.Decimal `json:"value"`
	FetchedAt time.Time       `json:"fetched_at"`
	Stale     bool            `json:"stale"`
}
