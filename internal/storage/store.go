// Package storage defines the transactional data store consumed by the ledger.
package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/folio/internal/domain"
)

// ErrConflict the (wallet, symbol) ledger head moved since it was read.
var ErrConflict = errors.New("ledger head changed concurrently")

// LedgerState current holding of a (wallet, symbol) pair and the sequence
// number of the last transaction applied to it. Head is zero before the first
// transaction and is never reset, even after the holding closes.
type LedgerState struct {
	Holding *domain.Holding
	Head    uint64
}

// Commit unit of work produced by one applied transaction.
type Commit struct {
	// Instrument is created if the directory does not have it yet.
	Instrument *domain.Instrument
	// ExpectedHead must match the stored head or the commit fails with ErrConflict.
	ExpectedHead uint64
	Transaction  domain.Transaction
	// Next replaces the holding. Nil removes it.
	Next *domain.Holding
}

// Store transactional persistence for wallets, the instrument directory,
// the ledger, holdings and the price cache.
//
// Commit is atomic: either the transaction, the holding mutation and the
// instrument creation are all visible or none is.
type Store interface {
	CreateWallet(ctx context.Context, w domain.Wallet) (domain.Wallet, error)
	Wallet(ctx context.Context, id string) (domain.Wallet, error)
	WalletByUser(ctx context.Context, userID string) (domain.Wallet, error)
	RenameWallet(ctx context.Context, id, name string) (domain.Wallet, error)

	Instrument(ctx context.Context, symbol string) (domain.Instrument, error)
	Instruments(ctx context.Context, symbols []string) (map[string]domain.Instrument, error)

	LedgerState(ctx context.Context, walletID, symbol string) (LedgerState, error)
	Holdings(ctx context.Context, walletID string) ([]domain.Holding, error)
	HeldSymbols(ctx context.Context) ([]string, error)
	// Transactions returns a wallet's ledger in application order.
	Transactions(ctx context.Context, walletID string) ([]domain.Transaction, error)
	SymbolTransactions(ctx context.Context, walletID, symbol string) ([]domain.Transaction, error)
	Commit(ctx context.Context, c Commit) (domain.Transaction, error)

	Prices(ctx context.Context, symbols []string) (map[string]domain.PriceEntry, error)
	// PutQuote upserts the price entry and refreshes non-empty instrument metadata together.
	PutQuote(ctx context.Context, q domain.Quote, fetchedAt time.Time) error

	Close() error
}
