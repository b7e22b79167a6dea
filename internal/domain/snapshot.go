package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	moneyPlaces    = 2
	quantityPlaces = 4
)

var hundred = decimal.NewFromInt(100)

// FormatMoney renders a monetary value or a percentage with two decimal places.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(moneyPlaces)
}

// FormatQuantity renders a quantity with four decimal places.
func FormatQuantity(d decimal.Decimal) string {
	return d.StringFixed(quantityPlaces)
}

// Percent returns part / whole * 100, or zero when whole is zero.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}

	return part.Div(whole).Mul(hundred)
}

// HoldingValuation per-holding line of a portfolio snapshot.
type HoldingValuation struct {
	Symbol          string `json:"symbol"`
	Name            string `json:"name"`
	LogoURL         string `json:"logoUrl,omitempty"`
	AssetClass      string `json:"assetClass"`
	Quantity        string `json:"quantity"`
	AvgCost         string `json:"avgCost"`
	CurrentPrice    string `json:"currentPrice"`
	MarketValue     string `json:"marketValue"`
	TotalCost       string `json:"totalCost"`
	GainLoss        string `json:"gainLoss"`
	GainLossPercent string `json:"gainLossPercent"`
}

// PortfolioSummary aggregate figures of a wallet.
type PortfolioSummary struct {
	Invested             string `json:"invested"`
	RealValue            string `json:"realValue"`
	TotalGainLoss        string `json:"totalGainLoss"`
	TotalGainLossPercent string `json:"totalGainLossPercent"`
}

// PortfolioSnapshot point-in-time valuation of a wallet.
// Items is nil when only the summary was requested.
type PortfolioSnapshot struct {
	WalletID string `json:"walletId"`
	PortfolioSummary
	Items    []HoldingValuation `json:"items"`
	ValuedAt time.Time          `json:"valuedAt"`
}
