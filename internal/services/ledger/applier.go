// Package ledger applies buy and sell transactions to wallet holdings.
package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/folio/internal/domain"
	"github.com/vadiminshakov/folio/internal/events"
	"github.com/vadiminshakov/folio/internal/services/quotes"
	"github.com/vadiminshakov/folio/internal/storage"
)

const (
	defaultQuoteTimeout       = 10 * time.Second
	defaultMaxConflictRetries = 8
)

// Applier keeps holdings in step with the transaction ledger.
type Applier struct {
	l       *zap.Logger
	store   storage.Store
	fetcher quotes.Fetcher
	pub     events.Publisher

	defaultAssetClass  domain.AssetClass
	quoteTimeout       time.Duration
	maxConflictRetries int

	now   func() time.Time
	newID func() string
}

// Option configures Applier.
type Option func(*Applier)

// WithDefaultAssetClass sets the class given to instruments created on first use.
func WithDefaultAssetClass(c domain.AssetClass) Option {
	return func(a *Applier) {
		a.defaultAssetClass = c
	}
}

// WithQuoteTimeout bounds the provider lookup for unknown symbols.
func WithQuoteTimeout(d time.Duration) Option {
	return func(a *Applier) {
		a.quoteTimeout = d
	}
}

// WithMaxConflictRetries sets how many times a commit that lost a race is recomputed.
func WithMaxConflictRetries(n int) Option {
	return func(a *Applier) {
		a.maxConflictRetries = n
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Applier) {
		a.now = now
	}
}

// NewApplier creates an Applier. pub may be nil.
func NewApplier(l *zap.Logger, store storage.Store, fetcher quotes.Fetcher, pub events.Publisher, opts ...Option) *Applier {
	if pub == nil {
		pub = events.Nop{}
	}
	a := &Applier{
		l:                  l,
		store:              store,
		fetcher:            fetcher,
		pub:                pub,
		defaultAssetClass:  domain.AssetClassEquity,
		quoteTimeout:       defaultQuoteTimeout,
		maxConflictRetries: defaultMaxConflictRetries,
		now:                time.Now,
		newID:              func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Apply validates req, resolves the instrument and atomically appends the
// transaction together with the resulting holding change.
// Nothing is written when any step fails.
func (a *Applier) Apply(ctx context.Context, req domain.TxRequest) (domain.Transaction, error) {
	if err := req.Validate(); err != nil {
		return domain.Transaction{}, err
	}
	if _, err := a.store.Wallet(ctx, req.WalletID); err != nil {
		return domain.Transaction{}, err
	}

	created, err := a.resolveInstrument(ctx, req.Symbol)
	if err != nil {
		return domain.Transaction{}, err
	}

	tx := domain.NewTransaction(a.newID(), req, a.now().UTC())

	for attempt := 0; ; attempt++ {
		st, err := a.store.LedgerState(ctx, req.WalletID, req.Symbol)
		if err != nil {
			return domain.Transaction{}, errors.Wrap(err, "read ledger state")
		}

		next, err := domain.Next(st.Holding, tx)
		if err != nil {
			return domain.Transaction{}, err
		}

		applied, err := a.store.Commit(ctx, storage.Commit{
			Instrument:   created,
			ExpectedHead: st.Head,
			Transaction:  tx,
			Next:         next,
		})
		if err == nil {
			a.applied(ctx, applied, next)
			return applied, nil
		}
		if !errors.Is(err, storage.ErrConflict) || attempt >= a.maxConflictRetries {
			return domain.Transaction{}, errors.Wrapf(err, "commit %s", tx)
		}

		a.l.Debug("ledger head moved, recomputing",
			zap.String("wallet", tx.WalletID),
			zap.String("symbol", tx.Symbol),
			zap.Int("attempt", attempt+1))
	}
}

func (a *Applier) applied(ctx context.Context, tx domain.Transaction, next *domain.Holding) {
	fields := []zap.Field{
		zap.String("id", tx.ID),
		zap.String("wallet", tx.WalletID),
		zap.String("symbol", tx.Symbol),
		zap.String("type", tx.Type.String()),
		zap.String("quantity", tx.Quantity.String()),
		zap.String("price", tx.Price.String()),
		zap.Uint64("seq", tx.Seq),
	}
	if next != nil {
		fields = append(fields, zap.String("held", next.Quantity.String()), zap.String("avg_cost", next.AvgCost.String()))
	} else {
		fields = append(fields, zap.Bool("closed", true))
	}
	a.l.Info("transaction applied", fields...)

	err := a.pub.Publish(ctx, events.Event{
		Kind:        events.KindTransactionApplied,
		At:          tx.CreatedAt,
		WalletID:    tx.WalletID,
		Transaction: &tx,
	})
	if err != nil {
		a.l.Warn("failed to publish transaction event", zap.String("id", tx.ID), zap.Error(err))
	}
}

// resolveInstrument returns nil when symbol is already known, otherwise the
// instrument to create, built from a provider quote.
func (a *Applier) resolveInstrument(ctx context.Context, symbol string) (*domain.Instrument, error) {
	_, err := a.store.Instrument(ctx, symbol)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, domain.ErrInstrumentNotFound) {
		return nil, errors.Wrapf(err, "lookup instrument %s", symbol)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, a.quoteTimeout)
	defer cancel()

	q, err := a.fetcher.FetchQuote(fetchCtx, symbol)
	if err != nil {
		if errors.Is(err, domain.ErrInstrumentNotFound) {
			return nil, errors.Wrapf(domain.ErrInstrumentNotFound, "symbol %s is not valid or was not found", symbol)
		}
		if fetchCtx.Err() != nil && !errors.Is(err, domain.ErrTransientProvider) {
			return nil, errors.Wrapf(domain.ErrTransientProvider, "quote %s: %v", symbol, fetchCtx.Err())
		}
		return nil, err
	}
	q.Symbol = symbol

	inst := domain.NewInstrumentFromQuote(q, a.defaultAssetClass, a.now().UTC())
	a.l.Info("instrument discovered",
		zap.String("symbol", symbol),
		zap.String("name", inst.Name),
		zap.String("source", q.Source))

	return &inst, nil
}

// Transactions returns a wallet's transactions, most recently executed first.
func (a *Applier) Transactions(ctx context.Context, walletID string) ([]domain.Transaction, error) {
	txs, err := a.store.Transactions(ctx, walletID)
	if err != nil {
		return nil, errors.Wrapf(err, "list transactions of wallet %s", walletID)
	}
	SortForDisplay(txs)

	return txs, nil
}

// SortForDisplay orders transactions by execution time, newest first.
// Ties keep the later applied transaction first.
func SortForDisplay(txs []domain.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].ExecutedAt.Equal(txs[j].ExecutedAt) {
			return txs[i].ExecutedAt.After(txs[j].ExecutedAt)
		}
		return txs[i].Seq > txs[j].Seq
	})
}
