package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TxType side of a ledger transaction.
type TxType int

const (
	TxBuy TxType = iota + 1
	TxSell
)

const (
	txStringBuy  = "BUY"
	txStringSell = "SELL"
)

// ParseTxType parses BUY or SELL, case-insensitive.
func ParseTxType(s string) (TxType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case txStringBuy:
		return TxBuy, nil
	case txStringSell:
		return TxSell, nil
	}

	return 0, Invalid("unknown transaction type %q", s)
}

// String returns the string representation of the transaction type.
func (t TxType) String() string {
	switch t {
	case TxBuy:
		return txStringBuy
	case TxSell:
		return txStringSell
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t TxType) MarshalText() ([]byte, error) {
	if t != TxBuy && t != TxSell {
		return nil, fmt.Errorf("invalid transaction type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TxType) UnmarshalText(b []byte) error {
	v, err := ParseTxType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Transaction immutable ledger entry.
type Transaction struct {
	ID       string          `json:"id"`
	WalletID string          `json:"walletId"`
	Symbol   string          `json:"symbol"`
	Type     TxType          `json:"type"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	// Fees recorded for reference only, they do not affect cost basis.
	Fees decimal.NullDecimal `json:"fees"`
	// Total quantity multiplied by price.
	Total decimal.Decimal `json:"total"`
	// ExecutedAt caller supplied, used for display ordering only.
	ExecutedAt time.Time `json:"executedAt"`
	CreatedAt  time.Time `json:"createdAt"`
	// Seq store-assigned application order.
	Seq uint64 `json:"seq"`
}

// TxRequest input for a new transaction before it has been applied.
type TxRequest struct {
	WalletID   string
	Symbol     string
	Type       TxType
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Fees       decimal.NullDecimal
	ExecutedAt time.Time
}

// Validate checks request fields and normalizes the symbol in place.
func (r *TxRequest) Validate() error {
	if strings.TrimSpace(r.WalletID) == "" {
		return Invalid("wallet id is required")
	}
	r.Symbol = NormalizeSymbol(r.Symbol)
	if r.Symbol == "" {
		return Invalid("symbol is required")
	}
	if r.Type != TxBuy && r.Type != TxSell {
		return Invalid("transaction type is required")
	}
	if !r.Quantity.IsPositive() {
		return Invalid("quantity must be positive, got %s", r.Quantity)
	}
	if r.Price.IsNegative() {
		return Invalid("price must not be negative, got %s", r.Price)
	}
	if r.Fees.Valid && r.Fees.Decimal.IsNegative() {
		return Invalid("fees must not be negative, got %s", r.Fees.Decimal)
	}
	if r.ExecutedAt.IsZero() {
		return Invalid("executedAt is required")
	}

	return nil
}

// NewTransaction materializes a validated request into a ledger entry.
func NewTransaction(id string, r TxRequest, now time.Time) Transaction {
	return Transaction{
		ID:         id,
		WalletID:   r.WalletID,
		Symbol:     r.Symbol,
		Type:       r.Type,
		Quantity:   r.Quantity,
		Price:      r.Price,
		Fees:       r.Fees,
		Total:      r.Quantity.Mul(r.Price),
		ExecutedAt: r.ExecutedAt,
		CreatedAt:  now,
	}
}

// String returns a human-readable string representation.
func (t Transaction) String() string {
	return fmt.Sprintf("%s %s %s@%s wallet=%s", t.Type, t.Symbol, t.Quantity, t.Price, t.WalletID)
}
