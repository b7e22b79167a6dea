package domain

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Holding materialized position of a wallet in one instrument.
// A stored holding always has positive quantity.
type Holding struct {
	WalletID string          `json:"walletId"`
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	// AvgCost weighted-average unit cost of the units still held.
	AvgCost decimal.Decimal `json:"avgCost"`
}

// TotalCost returns quantity multiplied by average cost.
func (h Holding) TotalCost() decimal.Decimal {
	return h.Quantity.Mul(h.AvgCost)
}

// Next computes the holding that results from applying tx on top of current.
// current may be nil when nothing is held. A nil result means the holding is closed.
func Next(current *Holding, tx Transaction) (*Holding, error) {
	switch tx.Type {
	case TxBuy:
		if current == nil {
			return &Holding{
				WalletID: tx.WalletID,
				Symbol:   tx.Symbol,
				Quantity: tx.Quantity,
				AvgCost:  tx.Price,
			}, nil
		}

		qty := current.Quantity.Add(tx.Quantity)
		cost := current.Quantity.Mul(current.AvgCost).Add(tx.Quantity.Mul(tx.Price))

		return &Holding{
			WalletID: current.WalletID,
			Symbol:   current.Symbol,
			Quantity: qty,
			AvgCost:  cost.Div(qty),
		}, nil
	case TxSell:
		held := decimal.Zero
		if current != nil {
			held = current.Quantity
		}
		if held.LessThan(tx.Quantity) {
			return nil, errors.Wrapf(ErrInsufficientQuantity, "%s: held %s, sell %s", tx.Symbol, held, tx.Quantity)
		}

		qty := held.Sub(tx.Quantity)
		if qty.IsZero() {
			return nil, nil
		}

		return &Holding{
			WalletID: current.WalletID,
			Symbol:   current.Symbol,
			Quantity: qty,
			AvgCost:  current.AvgCost,
		}, nil
	}

	return nil, Invalid("unknown transaction type %d", int(tx.Type))
}

// Replay folds txs, in application order, into the resulting holding.
func Replay(txs []Transaction) (*Holding, error) {
	var h *Holding
	for _, tx := range txs {
		next, err := Next(h, tx)
		if err != nil {
			return nil, errors.Wrapf(err, "replay transaction %s", tx.ID)
		}
		h = next
	}

	return h, nil
}

// SameAs reports whether two holdings are equal in value. Nil equals nil.
func (h *Holding) SameAs(o *Holding) bool {
	if h == nil || o == nil {
		return h == nil && o == nil
	}

	return h.WalletID == o.WalletID &&
		h.Symbol == o.Symbol &&
		h.Quantity.Equal(o.Quantity) &&
		h.AvgCost.Equal(o.AvgCost)
}
