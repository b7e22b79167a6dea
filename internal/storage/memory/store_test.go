package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/folio/internal/domain"
	"github.com/vadiminshakov/folio/internal/storage"
)

type failingJournal struct {
	fail bool
	recs []Record
}

func (j *failingJournal) Append(rec Record) error {
	if j.fail {
		return errors.New("disk full")
	}
	j.recs = append(j.recs, rec)
	return nil
}

func seedWallet(t *testing.T, s *Store) domain.Wallet {
	t.Helper()
	w, err := s.CreateWallet(context.Background(), domain.Wallet{ID: "w1", UserID: "u1", Name: "main"})
	require.NoError(t, err)
	return w
}

func buyCommit(head uint64, qty int64, next *domain.Holding) storage.Commit {
	return storage.Commit{
		Instrument:   &domain.Instrument{Symbol: "PETR4", Name: "Petrobras", AssetClass: domain.AssetClassEquity},
		ExpectedHead: head,
		Transaction: domain.Transaction{
			ID:       "tx",
			WalletID: "w1",
			Symbol:   "PETR4",
			Type:     domain.TxBuy,
			Quantity: decimal.NewFromInt(qty),
			Price:    decimal.NewFromInt(10),
		},
		Next: next,
	}
}

func TestStore_CommitAdvancesHead(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedWallet(t, s)

	next := &domain.Holding{WalletID: "w1", Symbol: "PETR4", Quantity: decimal.NewFromInt(5), AvgCost: decimal.NewFromInt(10)}
	tx, err := s.Commit(ctx, buyCommit(0, 5, next))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), tx.Seq)

	st, err := s.LedgerState(ctx, "w1", "PETR4")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st.Head)
	require.NotNil(t, st.Holding)
	assert.True(t, decimal.NewFromInt(5).Equal(st.Holding.Quantity))

	inst, err := s.Instrument(ctx, "PETR4")
	require.NoError(t, err)
	assert.Equal(t, "Petrobras", inst.Name)

	_, err = s.Commit(ctx, buyCommit(0, 5, next))
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestStore_DeleteKeepsHead(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedWallet(t, s)

	_, err := s.Commit(ctx, buyCommit(0, 5, &domain.Holding{WalletID: "w1", Symbol: "PETR4", Quantity: decimal.NewFromInt(5)}))
	require.NoError(t, err)
	_, err = s.Commit(ctx, buyCommit(1, 5, nil))
	require.NoError(t, err)

	st, err := s.LedgerState(ctx, "w1", "PETR4")
	require.NoError(t, err)
	assert.Nil(t, st.Holding)
	assert.Equal(t, uint64(2), st.Head)

	holdings, err := s.Holdings(ctx, "w1")
	require.NoError(t, err)
	assert.Empty(t, holdings)

	symbols, err := s.HeldSymbols(ctx)
	require.NoError(t, err)
	assert.Empty(t, symbols)

	txs, err := s.Transactions(ctx, "w1")
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestStore_JournalFailureLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	j := &failingJournal{}
	s := New(WithJournal(j))
	seedWallet(t, s)

	j.fail = true
	_, err := s.Commit(ctx, buyCommit(0, 5, &domain.Holding{WalletID: "w1", Symbol: "PETR4", Quantity: decimal.NewFromInt(5)}))
	require.Error(t, err)

	st, err := s.LedgerState(ctx, "w1", "PETR4")
	require.NoError(t, err)
	assert.Nil(t, st.Holding)
	assert.Zero(t, st.Head)

	txs, err := s.Transactions(ctx, "w1")
	require.NoError(t, err)
	assert.Empty(t, txs)

	_, err = s.Instrument(ctx, "PETR4")
	assert.ErrorIs(t, err, domain.ErrInstrumentNotFound)
}

func TestStore_CommitUnknownWallet(t *testing.T) {
	s := New()
	_, err := s.Commit(context.Background(), buyCommit(0, 1, nil))
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
}

func TestStore_ConcurrentCommitsSerializePerSymbol(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedWallet(t, s)

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				st, err := s.LedgerState(ctx, "w1", "PETR4")
				require.NoError(t, err)
				c := buyCommit(st.Head, 1, nil)
				next, err := domain.Next(st.Holding, c.Transaction)
				require.NoError(t, err)
				c.Next = next
				_, err = s.Commit(ctx, c)
				if errors.Is(err, storage.ErrConflict) {
					continue
				}
				require.NoError(t, err)
				return
			}
		}()
	}
	wg.Wait()

	st, err := s.LedgerState(ctx, "w1", "PETR4")
	require.NoError(t, err)
	require.NotNil(t, st.Holding)
	assert.True(t, decimal.NewFromInt(workers).Equal(st.Holding.Quantity))

	txs, err := s.SymbolTransactions(ctx, "w1", "PETR4")
	require.NoError(t, err)
	replayed, err := domain.Replay(txs)
	require.NoError(t, err)
	assert.True(t, replayed.SameAs(st.Holding))
}

func TestStore_Wallets(t *testing.T) {
	ctx := context.Background()
	s := New()
	w := seedWallet(t, s)

	again, err := s.CreateWallet(ctx, domain.Wallet{ID: "w2", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, w.ID, again.ID)

	byUser, err := s.WalletByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "w1", byUser.ID)

	renamed, err := s.RenameWallet(ctx, "w1", "retirement")
	require.NoError(t, err)
	assert.Equal(t, "retirement", renamed.Name)

	_, err = s.Wallet(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
	_, err = s.WalletByUser(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
}

func TestStore_PutQuoteKeepsMetadataWhenEmpty(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedWallet(t, s)
	_, err := s.Commit(ctx, buyCommit(0, 1, &domain.Holding{WalletID: "w1", Symbol: "PETR4", Quantity: decimal.NewFromInt(1)}))
	require.NoError(t, err)

	at := time.Date(2024, 5, 2, 13, 0, 0, 0, time.UTC)
	require.NoError(t, s.PutQuote(ctx, domain.Quote{Symbol: "PETR4", Price: decimal.RequireFromString("38.12")}, at))

	prices, err := s.Prices(ctx, []string{"PETR4", "VALE3"})
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.Equal(t, "38.12", prices["PETR4"].Price.String())
	assert.Equal(t, at, prices["PETR4"].FetchedAt)

	inst, err := s.Instrument(ctx, "PETR4")
	require.NoError(t, err)
	assert.Equal(t, "Petrobras", inst.Name)
}

func TestStore_Restore(t *testing.T) {
	ctx := context.Background()
	j := &failingJournal{}
	src := New(WithJournal(j))
	seedWallet(t, src)
	_, err := src.Commit(ctx, buyCommit(0, 3, &domain.Holding{WalletID: "w1", Symbol: "PETR4", Quantity: decimal.NewFromInt(3), AvgCost: decimal.NewFromInt(10)}))
	require.NoError(t, err)
	require.NoError(t, src.PutQuote(ctx, domain.Quote{Symbol: "PETR4", Price: decimal.NewFromInt(12)}, time.Now()))

	dst := New()
	for _, rec := range j.recs {
		require.NoError(t, dst.Restore(rec))
	}

	st, err := dst.LedgerState(ctx, "w1", "PETR4")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st.Head)
	require.NotNil(t, st.Holding)
	assert.True(t, decimal.NewFromInt(3).Equal(st.Holding.Quantity))

	tx, err := dst.Commit(ctx, buyCommit(1, 1, nil))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), tx.Seq)

	assert.Error(t, dst.Restore(Record{Kind: "bogus"}))
}
