package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/folio/internal/domain"
)

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toArgs(symbols []string) []any {
	args := make([]any, len(symbols))
	for i, s := range symbols {
		args[i] = s
	}
	return args
}

// Instrument returns the directory entry for symbol.
func (s *Store) Instrument(ctx context.Context, symbol string) (domain.Instrument, error) {
	const query = `SELECT symbol, name, asset_class, logo_url, created_at, updated_at
	FROM instruments WHERE symbol = ?`

	var inst domain.Instrument
	err := s.db.QueryRowContext(ctx, s.rebind(query), symbol).Scan(
		&inst.Symbol, &inst.Name, &inst.AssetClass, &inst.LogoURL, &inst.CreatedAt, &inst.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Instrument{}, errors.Wrapf(domain.ErrInstrumentNotFound, "symbol %s", symbol)
	}

	return inst, errors.Wrap(err, "select instrument")
}

// Instruments returns known entries for symbols. Unknown symbols are omitted.
func (s *Store) Instruments(ctx context.Context, symbols []string) (map[string]domain.Instrument, error) {
	out := make(map[string]domain.Instrument, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	query := `SELECT symbol, name, asset_class, logo_url, created_at, updated_at
	FROM instruments WHERE symbol IN (` + placeholders(len(symbols)) + `)`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), toArgs(symbols)...)
	if err != nil {
		return nil, errors.Wrap(err, "select instruments")
	}
	defer rows.Close()

	for rows.Next() {
		var inst domain.Instrument
		if err := rows.Scan(&inst.Symbol, &inst.Name, &inst.AssetClass, &inst.LogoURL, &inst.CreatedAt, &inst.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan instrument")
		}
		out[inst.Symbol] = inst
	}

	return out, errors.Wrap(rows.Err(), "iterate instruments")
}

// Prices returns cached prices for symbols. Missing symbols are omitted.
func (s *Store) Prices(ctx context.Context, symbols []string) (map[string]domain.PriceEntry, error) {
	out := make(map[string]domain.PriceEntry, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	query := `SELECT symbol, price, fetched_at FROM prices WHERE symbol IN (` + placeholders(len(symbols)) + `)`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), toArgs(symbols)...)
	if err != nil {
		return nil, errors.Wrap(err, "select prices")
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.PriceEntry
		if err := rows.Scan(&p.Symbol, &p.Price, &p.FetchedAt); err != nil {
			return nil, errors.Wrap(err, "scan price")
		}
		out[p.Symbol] = p
	}

	return out, errors.Wrap(rows.Err(), "iterate prices")
}

// PutQuote upserts the price and refreshes non-empty instrument metadata in one transaction.
func (s *Store) PutQuote(ctx context.Context, q domain.Quote, fetchedAt time.Time) (err error) {
	const upsertPrice = `INSERT INTO prices (symbol, price, fetched_at) VALUES (?, ?, ?)
	ON CONFLICT (symbol) DO UPDATE SET price = excluded.price, fetched_at = excluded.fetched_at`
	const updateName = `UPDATE instruments SET name = ?, updated_at = ? WHERE symbol = ?`
	const updateLogo = `UPDATE instruments SET logo_url = ?, updated_at = ? WHERE symbol = ?`

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin quote transaction")
	}
	defer func() {
		if err != nil {
			_ = dbTx.Rollback()
		}
	}()

	if _, err = dbTx.ExecContext(ctx, s.rebind(upsertPrice), q.Symbol, q.Price, fetchedAt); err != nil {
		return errors.Wrap(err, "upsert price")
	}
	if q.Name != "" {
		if _, err = dbTx.ExecContext(ctx, s.rebind(updateName), q.Name, fetchedAt, q.Symbol); err != nil {
			return errors.Wrap(err, "update instrument name")
		}
	}
	if q.LogoURL != "" {
		if _, err = dbTx.ExecContext(ctx, s.rebind(updateLogo), q.LogoURL, fetchedAt, q.Symbol); err != nil {
			return errors.Wrap(err, "update instrument logo")
		}
	}

	return errors.Wrap(dbTx.Commit(), "commit quote")
}
