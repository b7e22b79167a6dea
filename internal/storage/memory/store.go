// Package memory implements storage.Store in process memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/folio/internal/domain"
	"github.com/vadiminshakov/folio/internal/storage"
)

// slot ledger state of one (wallet, symbol) pair.
type slot struct {
	mu      sync.RWMutex
	holding *domain.Holding
	head    uint64
	txs     []domain.Transaction
}

// Store keeps everything in maps. Commits on the same (wallet, symbol) are
// serialized by the slot lock, others run in parallel.
// Lock order: slot, then instruments, then prices.
type Store struct {
	walletsMu sync.RWMutex
	wallets   map[string]domain.Wallet
	byUser    map[string]string

	slotsMu sync.RWMutex
	slots   map[string]map[string]*slot

	instMu      sync.RWMutex
	instruments map[string]domain.Instrument

	pricesMu sync.RWMutex
	prices   map[string]domain.PriceEntry

	seq     atomic.Uint64
	journal Journal
}

// Option configures Store.
type Option func(*Store)

// WithJournal makes the store write every mutation to j before applying it.
func WithJournal(j Journal) Option {
	return func(s *Store) {
		s.journal = j
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		wallets:     make(map[string]domain.Wallet),
		byUser:      make(map[string]string),
		slots:       make(map[string]map[string]*slot),
		instruments: make(map[string]domain.Instrument),
		prices:      make(map[string]domain.PriceEntry),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Store) record(rec Record) error {
	if s.journal == nil {
		return nil
	}
	return errors.Wrapf(s.journal.Append(rec), "journal %s", rec.Kind)
}

// CreateWallet stores w unless its user already owns a wallet, in which case the existing one is returned.
func (s *Store) CreateWallet(ctx context.Context, w domain.Wallet) (domain.Wallet, error) {
	if err := ctx.Err(); err != nil {
		return domain.Wallet{}, err
	}

	s.walletsMu.Lock()
	defer s.walletsMu.Unlock()

	if id, ok := s.byUser[w.UserID]; ok {
		return s.wallets[id], nil
	}
	if err := s.record(Record{Kind: RecordWallet, Wallet: &w}); err != nil {
		return domain.Wallet{}, err
	}
	s.putWallet(w)

	return w, nil
}

func (s *Store) putWallet(w domain.Wallet) {
	s.wallets[w.ID] = w
	s.byUser[w.UserID] = w.ID
}

// Wallet returns the wallet by id.
func (s *Store) Wallet(ctx context.Context, id string) (domain.Wallet, error) {
	if err := ctx.Err(); err != nil {
		return domain.Wallet{}, err
	}

	s.walletsMu.RLock()
	defer s.walletsMu.RUnlock()

	w, ok := s.wallets[id]
	if !ok {
		return domain.Wallet{}, errors.Wrapf(domain.ErrWalletNotFound, "wallet %s", id)
	}

	return w, nil
}

// WalletByUser returns the wallet owned by userID.
func (s *Store) WalletByUser(ctx context.Context, userID string) (domain.Wallet, error) {
	if err := ctx.Err(); err != nil {
		return domain.Wallet{}, err
	}

	s.walletsMu.RLock()
	defer s.walletsMu.RUnlock()

	id, ok := s.byUser[userID]
	if !ok {
		return domain.Wallet{}, errors.Wrapf(domain.ErrWalletNotFound, "user %s", userID)
	}

	return s.wallets[id], nil
}

// RenameWallet changes the display name of a wallet.
func (s *Store) RenameWallet(ctx context.Context, id, name string) (domain.Wallet, error) {
	if err := ctx.Err(); err != nil {
		return domain.Wallet{}, err
	}

	s.walletsMu.Lock()
	defer s.walletsMu.Unlock()

	w, ok := s.wallets[id]
	if !ok {
		return domain.Wallet{}, errors.Wrapf(domain.ErrWalletNotFound, "wallet %s", id)
	}
	w.Name = name
	if err := s.record(Record{Kind: RecordWallet, Wallet: &w}); err != nil {
		return domain.Wallet{}, err
	}
	s.putWallet(w)

	return w, nil
}

// Instrument returns the directory entry for symbol.
func (s *Store) Instrument(ctx context.Context, symbol string) (domain.Instrument, error) {
	if err := ctx.Err(); err != nil {
		return domain.Instrument{}, err
	}

	s.instMu.RLock()
	defer s.instMu.RUnlock()

	inst, ok := s.instruments[symbol]
	if !ok {
		return domain.Instrument{}, errors.Wrapf(domain.ErrInstrumentNotFound, "symbol %s", symbol)
	}

	return inst, nil
}

// Instruments returns known entries for symbols. Unknown symbols are omitted.
func (s *Store) Instruments(ctx context.Context, symbols []string) (map[string]domain.Instrument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.instMu.RLock()
	defer s.instMu.RUnlock()

	out := make(map[string]domain.Instrument, len(symbols))
	for _, sym := range symbols {
		if inst, ok := s.instruments[sym]; ok {
			out[sym] = inst
		}
	}

	return out, nil
}

func (s *Store) lookupSlot(walletID, symbol string) *slot {
	s.slotsMu.RLock()
	defer s.slotsMu.RUnlock()

	return s.slots[walletID][symbol]
}

func (s *Store) slot(walletID, symbol string) *slot {
	if sl := s.lookupSlot(walletID, symbol); sl != nil {
		return sl
	}

	s.slotsMu.Lock()
	defer s.slotsMu.Unlock()

	bySymbol, ok := s.slots[walletID]
	if !ok {
		bySymbol = make(map[string]*slot)
		s.slots[walletID] = bySymbol
	}
	sl, ok := bySymbol[symbol]
	if !ok {
		sl = &slot{}
		bySymbol[symbol] = sl
	}

	return sl
}

func (s *Store) walletSlots(walletID string) map[string]*slot {
	s.slotsMu.RLock()
	defer s.slotsMu.RUnlock()

	out := make(map[string]*slot, len(s.slots[walletID]))
	for sym, sl := range s.slots[walletID] {
		out[sym] = sl
	}

	return out
}

// LedgerState returns the holding and head of (walletID, symbol).
func (s *Store) LedgerState(ctx context.Context, walletID, symbol string) (storage.LedgerState, error) {
	if err := ctx.Err(); err != nil {
		return storage.LedgerState{}, err
	}

	sl := s.lookupSlot(walletID, symbol)
	if sl == nil {
		return storage.LedgerState{}, nil
	}

	sl.mu.RLock()
	defer sl.mu.RUnlock()

	return storage.LedgerState{Holding: copyHolding(sl.holding), Head: sl.head}, nil
}

// Holdings returns the open holdings of a wallet ordered by symbol.
func (s *Store) Holdings(ctx context.Context, walletID string) ([]domain.Holding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	holdings := make([]domain.Holding, 0)
	for _, sl := range s.walletSlots(walletID) {
		sl.mu.RLock()
		if sl.holding != nil {
			holdings = append(holdings, *sl.holding)
		}
		sl.mu.RUnlock()
	}
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].Symbol < holdings[j].Symbol })

	return holdings, nil
}

// HeldSymbols returns every symbol with at least one open holding, sorted.
func (s *Store) HeldSymbols(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.slotsMu.RLock()
	all := make([]*slot, 0)
	names := make([]string, 0)
	for _, bySymbol := range s.slots {
		for sym, sl := range bySymbol {
			all = append(all, sl)
			names = append(names, sym)
		}
	}
	s.slotsMu.RUnlock()

	seen := make(map[string]struct{})
	for i, sl := range all {
		sl.mu.RLock()
		if sl.holding != nil {
			seen[names[i]] = struct{}{}
		}
		sl.mu.RUnlock()
	}

	symbols := make([]string, 0, len(seen))
	for sym := range seen {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	return symbols, nil
}

// Transactions returns a wallet's ledger in application order.
func (s *Store) Transactions(ctx context.Context, walletID string) ([]domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	txs := make([]domain.Transaction, 0)
	for _, sl := range s.walletSlots(walletID) {
		sl.mu.RLock()
		txs = append(txs, sl.txs...)
		sl.mu.RUnlock()
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].Seq < txs[j].Seq })

	return txs, nil
}

// SymbolTransactions returns the ledger of one (wallet, symbol) pair in application order.
func (s *Store) SymbolTransactions(ctx context.Context, walletID, symbol string) ([]domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sl := s.lookupSlot(walletID, symbol)
	if sl == nil {
		return []domain.Transaction{}, nil
	}

	sl.mu.RLock()
	defer sl.mu.RUnlock()

	return append([]domain.Transaction(nil), sl.txs...), nil
}

// Commit applies c atomically if the ledger head still matches.
func (s *Store) Commit(ctx context.Context, c storage.Commit) (domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return domain.Transaction{}, err
	}

	tx := c.Transaction
	if _, err := s.Wallet(ctx, tx.WalletID); err != nil {
		return domain.Transaction{}, err
	}

	sl := s.slot(tx.WalletID, tx.Symbol)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.head != c.ExpectedHead {
		return domain.Transaction{}, errors.Wrapf(storage.ErrConflict, "%s/%s head %d, expected %d",
			tx.WalletID, tx.Symbol, sl.head, c.ExpectedHead)
	}
	if err := ctx.Err(); err != nil {
		return domain.Transaction{}, err
	}

	tx.Seq = s.seq.Add(1)
	rec := Record{
		Kind:        RecordCommit,
		Instrument:  c.Instrument,
		Transaction: &tx,
		Holding:     copyHolding(c.Next),
	}
	if err := s.record(rec); err != nil {
		return domain.Transaction{}, err
	}
	s.applyCommit(sl, rec)

	return tx, nil
}

// applyCommit makes a journaled commit visible. Caller holds sl.mu.
func (s *Store) applyCommit(sl *slot, rec Record) {
	if rec.Instrument != nil {
		s.instMu.Lock()
		if _, ok := s.instruments[rec.Instrument.Symbol]; !ok {
			s.instruments[rec.Instrument.Symbol] = *rec.Instrument
		}
		s.instMu.Unlock()
	}

	sl.txs = append(sl.txs, *rec.Transaction)
	sl.holding = rec.Holding
	sl.head = rec.Transaction.Seq
}

// Prices returns cached prices for symbols. Missing symbols are omitted.
func (s *Store) Prices(ctx context.Context, symbols []string) (map[string]domain.PriceEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.pricesMu.RLock()
	defer s.pricesMu.RUnlock()

	out := make(map[string]domain.PriceEntry, len(symbols))
	for _, sym := range symbols {
		if p, ok := s.prices[sym]; ok {
			out[sym] = p
		}
	}

	return out, nil
}

// PutQuote overwrites the cached price and merges non-empty metadata into the instrument.
func (s *Store) PutQuote(ctx context.Context, q domain.Quote, fetchedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.instMu.Lock()
	defer s.instMu.Unlock()

	if err := s.record(Record{Kind: RecordQuote, Quote: &q, FetchedAt: fetchedAt}); err != nil {
		return err
	}
	s.applyQuote(q, fetchedAt)

	return nil
}

// applyQuote caller holds instMu.
func (s *Store) applyQuote(q domain.Quote, fetchedAt time.Time) {
	if inst, ok := s.instruments[q.Symbol]; ok && inst.MergeQuote(q, fetchedAt) {
		s.instruments[q.Symbol] = inst
	}

	s.pricesMu.Lock()
	s.prices[q.Symbol] = domain.PriceEntry{Symbol: q.Symbol, Price: q.Price, FetchedAt: fetchedAt}
	s.pricesMu.Unlock()
}

// Restore re-applies a journaled record without journaling it again.
func (s *Store) Restore(rec Record) error {
	switch rec.Kind {
	case RecordWallet:
		if rec.Wallet == nil {
			return errors.New("wallet record without wallet")
		}
		s.walletsMu.Lock()
		s.putWallet(*rec.Wallet)
		s.walletsMu.Unlock()
	case RecordCommit:
		if rec.Transaction == nil {
			return errors.New("commit record without transaction")
		}
		tx := rec.Transaction
		sl := s.slot(tx.WalletID, tx.Symbol)
		sl.mu.Lock()
		s.applyCommit(sl, rec)
		sl.mu.Unlock()
		for {
			cur := s.seq.Load()
			if cur >= tx.Seq || s.seq.CompareAndSwap(cur, tx.Seq) {
				break
			}
		}
	case RecordQuote:
		if rec.Quote == nil {
			return errors.New("quote record without quote")
		}
		s.instMu.Lock()
		s.applyQuote(*rec.Quote, rec.FetchedAt)
		s.instMu.Unlock()
	default:
		return errors.Errorf("unknown record kind %q", rec.Kind)
	}

	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func copyHolding(h *domain.Holding) *domain.Holding {
	if h == nil {
		return nil
	}
	c := *h
	return &c
}

var _ storage.Store = (*Store)(nil)
