// Package portfolio exposes wallet, ledger and valuation operations on behalf of a caller.
package portfolio

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/folio/internal/domain"
	"github.com/vadiminshakov/folio/internal/services/ledger"
	"github.com/vadiminshakov/folio/internal/storage"
)

const defaultWalletName = "My wallet"

type applier interface {
	Apply(ctx context.Context, req domain.TxRequest) (domain.Transaction, error)
	Transactions(ctx context.Context, walletID string) ([]domain.Transaction, error)
	AuditWallet(ctx context.Context, walletID string) ([]ledger.AuditResult, error)
}

type valuator interface {
	Portfolio(ctx context.Context, walletID string, summaryOnly bool) (domain.PortfolioSnapshot, error)
}

type syncTrigger interface {
	Trigger()
}

// TransactionInput caller supplied transaction fields.
type TransactionInput struct {
	Symbol     string              `json:"symbol"`
	Type       string              `json:"type"`
	Quantity   decimal.Decimal     `json:"quantity"`
	Price      decimal.Decimal     `json:"price"`
	Fees       decimal.NullDecimal `json:"fees"`
	ExecutedAt time.Time           `json:"executedAt"`
}

// Service enforces wallet ownership in front of the ledger and valuation engine.
type Service struct {
	l      *zap.Logger
	store  storage.Store
	ledger applier
	val    valuator
	sync   syncTrigger
}

func NewService(l *zap.Logger, store storage.Store, txs applier, val valuator, sync syncTrigger) *Service {
	return &Service{l: l, store: store, ledger: txs, val: val, sync: sync}
}

// OpenWallet creates the wallet of userID, or returns it if it already exists.
func (s *Service) OpenWallet(ctx context.Context, userID, name string) (domain.Wallet, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Wallet{}, domain.Invalid("user id is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultWalletName
	}

	w, err := s.store.CreateWallet(ctx, domain.Wallet{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Wallet{}, errors.Wrapf(err, "open wallet for user %s", userID)
	}
	s.l.Info("wallet opened", zap.String("wallet", w.ID), zap.String("user", userID))

	return w, nil
}

// WalletOf returns the wallet owned by userID.
func (s *Service) WalletOf(ctx context.Context, userID string) (domain.Wallet, error) {
	return s.store.WalletByUser(ctx, userID)
}

// RenameWallet renames the wallet owned by userID.
func (s *Service) RenameWallet(ctx context.Context, userID, name string) (domain.Wallet, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Wallet{}, domain.Invalid("wallet name is required")
	}
	w, err := s.store.WalletByUser(ctx, userID)
	if err != nil {
		return domain.Wallet{}, err
	}

	return s.store.RenameWallet(ctx, w.ID, name)
}

// owned resolves walletID and checks it belongs to userID. A wallet that does
// not exist is reported as denied so callers cannot enumerate other users' ids.
func (s *Service) owned(ctx context.Context, userID, walletID string) (domain.Wallet, error) {
	w, err := s.store.Wallet(ctx, walletID)
	if errors.Is(err, domain.ErrWalletNotFound) {
		return domain.Wallet{}, errors.Wrapf(domain.ErrWalletAccessDenied, "wallet %s", walletID)
	}
	if err != nil {
		return domain.Wallet{}, err
	}
	if !w.OwnedBy(userID) {
		return domain.Wallet{}, errors.Wrapf(domain.ErrWalletAccessDenied, "wallet %s", walletID)
	}

	return w, nil
}

// ApplyTransaction records a buy or sell in the caller's wallet.
func (s *Service) ApplyTransaction(ctx context.Context, userID, walletID string, in TransactionInput) (domain.Transaction, error) {
	typ, err := domain.ParseTxType(in.Type)
	if err != nil {
		return domain.Transaction{}, err
	}
	req := domain.TxRequest{
		WalletID:   walletID,
		Symbol:     in.Symbol,
		Type:       typ,
		Quantity:   in.Quantity,
		Price:      in.Price,
		Fees:       in.Fees,
		ExecutedAt: in.ExecutedAt,
	}
	if err := req.Validate(); err != nil {
		return domain.Transaction{}, err
	}
	if _, err := s.owned(ctx, userID, walletID); err != nil {
		return domain.Transaction{}, err
	}

	return s.ledger.Apply(ctx, req)
}

// Portfolio values a wallet. Unknown wallets fail with domain.ErrWalletNotFound.
func (s *Service) Portfolio(ctx context.Context, userID, walletID string, summaryOnly bool) (domain.PortfolioSnapshot, error) {
	w, err := s.store.Wallet(ctx, walletID)
	if err != nil {
		return domain.PortfolioSnapshot{}, err
	}
	if !w.OwnedBy(userID) {
		return domain.PortfolioSnapshot{}, errors.Wrapf(domain.ErrWalletAccessDenied, "wallet %s", walletID)
	}

	return s.val.Portfolio(ctx, w.ID, summaryOnly)
}

// PortfolioOf values the wallet owned by userID.
func (s *Service) PortfolioOf(ctx context.Context, userID string, summaryOnly bool) (domain.PortfolioSnapshot, error) {
	w, err := s.store.WalletByUser(ctx, userID)
	if err != nil {
		return domain.PortfolioSnapshot{}, err
	}

	return s.val.Portfolio(ctx, w.ID, summaryOnly)
}

// Transactions lists a wallet's transactions, most recently executed first.
func (s *Service) Transactions(ctx context.Context, userID, walletID string) ([]domain.Transaction, error) {
	if _, err := s.owned(ctx, userID, walletID); err != nil {
		return nil, err
	}

	return s.ledger.Transactions(ctx, walletID)
}

// TransactionsOf lists the transactions of the wallet owned by userID.
// A user without a wallet has no transactions.
func (s *Service) TransactionsOf(ctx context.Context, userID string) ([]domain.Transaction, error) {
	w, err := s.store.WalletByUser(ctx, userID)
	if errors.Is(err, domain.ErrWalletNotFound) {
		return []domain.Transaction{}, nil
	}
	if err != nil {
		return nil, err
	}

	return s.ledger.Transactions(ctx, w.ID)
}

// Audit replays every ledger of the wallet and compares it with stored holdings.
func (s *Service) Audit(ctx context.Context, userID, walletID string) ([]ledger.AuditResult, error) {
	if _, err := s.owned(ctx, userID, walletID); err != nil {
		return nil, err
	}

	return s.ledger.AuditWallet(ctx, walletID)
}

// TriggerSync requests a quote refresh and returns immediately.
func (s *Service) TriggerSync() {
	s.sync.Trigger()
	s.l.Debug("quote sync requested")
}
