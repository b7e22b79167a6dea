package ledger

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/folio/internal/domain"
)

// AuditResult comparison of a stored holding with the replayed ledger.
type AuditResult struct {
	WalletID     string          `json:"walletId"`
	Symbol       string          `json:"symbol"`
	Transactions int             `json:"transactions"`
	Stored       *domain.Holding `json:"stored"`
	Replayed     *domain.Holding `json:"replayed"`
	Consistent   bool            `json:"consistent"`
}

// Audit folds the (wallet, symbol) ledger from scratch and compares it with the stored holding.
func (a *Applier) Audit(ctx context.Context, walletID, symbol string) (AuditResult, error) {
	symbol = domain.NormalizeSymbol(symbol)

	st, err := a.store.LedgerState(ctx, walletID, symbol)
	if err != nil {
		return AuditResult{}, errors.Wrap(err, "read ledger state")
	}
	txs, err := a.store.SymbolTransactions(ctx, walletID, symbol)
	if err != nil {
		return AuditResult{}, errors.Wrap(err, "read ledger")
	}

	// a commit may land between the two reads, only audit a matching head
	if n := len(txs); n > 0 && txs[n-1].Seq != st.Head {
		return AuditResult{}, errors.Errorf("ledger of %s/%s changed during audit", walletID, symbol)
	}

	replayed, err := domain.Replay(txs)
	if err != nil {
		return AuditResult{}, err
	}

	res := AuditResult{
		WalletID:     walletID,
		Symbol:       symbol,
		Transactions: len(txs),
		Stored:       st.Holding,
		Replayed:     replayed,
		Consistent:   replayed.SameAs(st.Holding),
	}
	if !res.Consistent {
		a.l.Error("holding drifted from ledger", zap.String("wallet", walletID), zap.String("symbol", symbol))
	}

	return res, nil
}

// AuditWallet audits every symbol the wallet ever traded.
func (a *Applier) AuditWallet(ctx context.Context, walletID string) ([]AuditResult, error) {
	txs, err := a.store.Transactions(ctx, walletID)
	if err != nil {
		return nil, errors.Wrap(err, "read ledger")
	}

	seen := make(map[string]struct{})
	results := make([]AuditResult, 0)
	for _, tx := range txs {
		if _, ok := seen[tx.Symbol]; ok {
			continue
		}
		seen[tx.Symbol] = struct{}{}

		res, err := a.Audit(ctx, walletID, tx.Symbol)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}

	return results, nil
}
