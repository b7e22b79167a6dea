package sqlstore

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/folio/internal/domain"
	"github.com/vadiminshakov/folio/internal/storage"
)

const transactionColumns = `seq, id, wallet_id, symbol, type, quantity, price, fees, total, executed_at, created_at`

// LedgerState returns the holding and head of (walletID, symbol).
func (s *Store) LedgerState(ctx context.Context, walletID, symbol string) (storage.LedgerState, error) {
	const headQuery = `SELECT head FROM ledger_heads WHERE wallet_id = ? AND symbol = ?`
	const holdingQuery = `SELECT quantity, avg_cost FROM holdings WHERE wallet_id = ? AND symbol = ?`

	dbTx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: s.driver == DriverPostgres})
	if err != nil {
		return storage.LedgerState{}, errors.Wrap(err, "begin read")
	}
	defer func() { _ = dbTx.Rollback() }()

	var st storage.LedgerState
	var head int64
	err = dbTx.QueryRowContext(ctx, s.rebind(headQuery), walletID, symbol).Scan(&head)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return st, nil
	case err != nil:
		return st, errors.Wrap(err, "select ledger head")
	}
	st.Head = uint64(head)

	h := domain.Holding{WalletID: walletID, Symbol: symbol}
	err = dbTx.QueryRowContext(ctx, s.rebind(holdingQuery), walletID, symbol).Scan(&h.Quantity, &h.AvgCost)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return st, errors.Wrap(err, "select holding")
	default:
		st.Holding = &h
	}

	return st, nil
}

// Holdings returns the open holdings of a wallet ordered by symbol.
func (s *Store) Holdings(ctx context.Context, walletID string) ([]domain.Holding, error) {
	const query = `SELECT wallet_id, symbol, quantity, avg_cost FROM holdings WHERE wallet_id = ? ORDER BY symbol`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), walletID)
	if err != nil {
		return nil, errors.Wrap(err, "select holdings")
	}
	defer rows.Close()

	holdings := make([]domain.Holding, 0)
	for rows.Next() {
		var h domain.Holding
		if err := rows.Scan(&h.WalletID, &h.Symbol, &h.Quantity, &h.AvgCost); err != nil {
			return nil, errors.Wrap(err, "scan holding")
		}
		holdings = append(holdings, h)
	}

	return holdings, errors.Wrap(rows.Err(), "iterate holdings")
}

// HeldSymbols returns every symbol with at least one open holding, sorted.
func (s *Store) HeldSymbols(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT symbol FROM holdings ORDER BY symbol`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "select held symbols")
	}
	defer rows.Close()

	symbols := make([]string, 0)
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, errors.Wrap(err, "scan symbol")
		}
		symbols = append(symbols, sym)
	}

	return symbols, errors.Wrap(rows.Err(), "iterate held symbols")
}

// Transactions returns a wallet's ledger in application order.
func (s *Store) Transactions(ctx context.Context, walletID string) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE wallet_id = ? ORDER BY seq`
	return s.queryTransactions(ctx, query, walletID)
}

// SymbolTransactions returns the ledger of one (wallet, symbol) pair in application order.
func (s *Store) SymbolTransactions(ctx context.Context, walletID, symbol string) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE wallet_id = ? AND symbol = ? ORDER BY seq`
	return s.queryTransactions(ctx, query, walletID, symbol)
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, errors.Wrap(err, "select transactions")
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0)
	for rows.Next() {
		var (
			tx  domain.Transaction
			seq int64
			typ string
		)
		if err := rows.Scan(&seq, &tx.ID, &tx.WalletID, &tx.Symbol, &typ, &tx.Quantity, &tx.Price,
			&tx.Fees, &tx.Total, &tx.ExecutedAt, &tx.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan transaction")
		}
		if tx.Type, err = domain.ParseTxType(typ); err != nil {
			return nil, errors.Wrapf(err, "transaction %s", tx.ID)
		}
		tx.Seq = uint64(seq)
		txs = append(txs, tx)
	}

	return txs, errors.Wrap(rows.Err(), "iterate transactions")
}

// Commit applies c in one database transaction. The ledger head is advanced
// with a conditional update, so a concurrent commit on the same pair fails with
// storage.ErrConflict instead of overwriting.
func (s *Store) Commit(ctx context.Context, c storage.Commit) (_ domain.Transaction, err error) {
	const walletExists = `SELECT 1 FROM wallets WHERE id = ?`
	const insertInstrument = `INSERT INTO instruments (symbol, name, asset_class, logo_url, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (symbol) DO NOTHING`
	const insertTransaction = `INSERT INTO transactions (id, wallet_id, symbol, type, quantity, price, fees, total, executed_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING seq`
	const ensureHead = `INSERT INTO ledger_heads (wallet_id, symbol, head) VALUES (?, ?, 0)
	ON CONFLICT (wallet_id, symbol) DO NOTHING`
	const advanceHead = `UPDATE ledger_heads SET head = ? WHERE wallet_id = ? AND symbol = ? AND head = ?`
	const upsertHolding = `INSERT INTO holdings (wallet_id, symbol, quantity, avg_cost) VALUES (?, ?, ?, ?)
	ON CONFLICT (wallet_id, symbol) DO UPDATE SET quantity = excluded.quantity, avg_cost = excluded.avg_cost`
	const deleteHolding = `DELETE FROM holdings WHERE wallet_id = ? AND symbol = ?`

	tx := c.Transaction

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Transaction{}, errors.Wrap(err, "begin commit")
	}
	defer func() {
		if err != nil {
			_ = dbTx.Rollback()
		}
	}()

	var one int
	err = dbTx.QueryRowContext(ctx, s.rebind(walletExists), tx.WalletID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Transaction{}, errors.Wrapf(domain.ErrWalletNotFound, "wallet %s", tx.WalletID)
	}
	if err != nil {
		return domain.Transaction{}, errors.Wrap(err, "check wallet")
	}

	if inst := c.Instrument; inst != nil {
		if _, err = dbTx.ExecContext(ctx, s.rebind(insertInstrument),
			inst.Symbol, inst.Name, string(inst.AssetClass), inst.LogoURL, inst.CreatedAt, inst.UpdatedAt); err != nil {
			return domain.Transaction{}, errors.Wrap(err, "insert instrument")
		}
	}

	var seq int64
	if err = dbTx.QueryRowContext(ctx, s.rebind(insertTransaction),
		tx.ID, tx.WalletID, tx.Symbol, tx.Type.String(), tx.Quantity, tx.Price, tx.Fees, tx.Total,
		tx.ExecutedAt, tx.CreatedAt).Scan(&seq); err != nil {
		return domain.Transaction{}, errors.Wrap(err, "insert transaction")
	}
	tx.Seq = uint64(seq)

	if c.ExpectedHead == 0 {
		if _, err = dbTx.ExecContext(ctx, s.rebind(ensureHead), tx.WalletID, tx.Symbol); err != nil {
			return domain.Transaction{}, errors.Wrap(err, "ensure ledger head")
		}
	}
	res, err := dbTx.ExecContext(ctx, s.rebind(advanceHead), seq, tx.WalletID, tx.Symbol, int64(c.ExpectedHead))
	if err != nil {
		return domain.Transaction{}, errors.Wrap(err, "advance ledger head")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Transaction{}, errors.Wrap(err, "advance ledger head")
	}
	if n == 0 {
		err = errors.Wrapf(storage.ErrConflict, "%s/%s expected head %d", tx.WalletID, tx.Symbol, c.ExpectedHead)
		return domain.Transaction{}, err
	}

	if next := c.Next; next != nil {
		_, err = dbTx.ExecContext(ctx, s.rebind(upsertHolding), tx.WalletID, tx.Symbol, next.Quantity, next.AvgCost)
	} else {
		_, err = dbTx.ExecContext(ctx, s.rebind(deleteHolding), tx.WalletID, tx.Symbol)
	}
	if err != nil {
		return domain.Transaction{}, errors.Wrap(err, "write holding")
	}

	if err = dbTx.Commit(); err != nil {
		return domain.Transaction{}, errors.Wrap(err, "commit ledger transaction")
	}

	return tx, nil
}
