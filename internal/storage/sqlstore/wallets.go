package sqlstore

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/folio/internal/domain"
)

// CreateWallet inserts w unless its user already owns a wallet and returns the stored wallet.
func (s *Store) CreateWallet(ctx context.Context, w domain.Wallet) (domain.Wallet, error) {
	const query = `INSERT INTO wallets (id, user_id, name, created_at) VALUES (?, ?, ?, ?)
	ON CONFLICT (user_id) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, s.rebind(query), w.ID, w.UserID, w.Name, w.CreatedAt); err != nil {
		return domain.Wallet{}, errors.Wrap(err, "insert wallet")
	}

	return s.WalletByUser(ctx, w.UserID)
}

// Wallet returns the wallet by id.
func (s *Store) Wallet(ctx context.Context, id string) (domain.Wallet, error) {
	const query = `SELECT id, user_id, name, created_at FROM wallets WHERE id = ?`

	w, err := scanWallet(s.db.QueryRowContext(ctx, s.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Wallet{}, errors.Wrapf(domain.ErrWalletNotFound, "wallet %s", id)
	}

	return w, errors.Wrap(err, "select wallet")
}

// WalletByUser returns the wallet owned by userID.
func (s *Store) WalletByUser(ctx context.Context, userID string) (domain.Wallet, error) {
	const query = `SELECT id, user_id, name, created_at FROM wallets WHERE user_id = ?`

	w, err := scanWallet(s.db.QueryRowContext(ctx, s.rebind(query), userID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Wallet{}, errors.Wrapf(domain.ErrWalletNotFound, "user %s", userID)
	}

	return w, errors.Wrap(err, "select wallet by user")
}

// RenameWallet changes the display name of a wallet.
func (s *Store) RenameWallet(ctx context.Context, id, name string) (domain.Wallet, error) {
	const query = `UPDATE wallets SET name = ? WHERE id = ?`

	res, err := s.db.ExecContext(ctx, s.rebind(query), name, id)
	if err != nil {
		return domain.Wallet{}, errors.Wrap(err, "update wallet")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.Wallet{}, errors.Wrapf(domain.ErrWalletNotFound, "wallet %s", id)
	}

	return s.Wallet(ctx, id)
}

func scanWallet(row *sql.Row) (domain.Wallet, error) {
	var w domain.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.Name, &w.CreatedAt)
	return w, err
}
