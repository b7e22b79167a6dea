package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote latest market data for an instrument as returned by a provider.
type Quote struct {
	Symbol   string
	Name     string
	Price    decimal.Decimal
	LogoURL  string
	Currency string
	// Source provider name, informational.
	Source string
}

// PriceEntry price cache record.
type PriceEntry struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	FetchedAt time.Time       `json:"fetchedAt"`
}
