package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/folio/internal/domain"
	"github.com/vadiminshakov/folio/internal/storage"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), zap.NewNop(), DriverSQLite, filepath.Join(t.TempDir(), "folio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	assert.Equal(t, "SELECT 1 WHERE a = $1 AND b = $2", pg.rebind("SELECT 1 WHERE a = ? AND b = ?"))

	lite := &Store{driver: DriverSQLite}
	assert.Equal(t, "SELECT 1 WHERE a = ?", lite.rebind("SELECT 1 WHERE a = ?"))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), zap.NewNop(), "mysql", "")
	assert.Error(t, err)
}

func TestStore_LedgerLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

	w, err := s.CreateWallet(ctx, domain.Wallet{ID: "w1", UserID: "u1", Name: "main", CreatedAt: now})
	require.NoError(t, err)
	again, err := s.CreateWallet(ctx, domain.Wallet{ID: "w2", UserID: "u1", CreatedAt: now})
	require.NoError(t, err)
	assert.Equal(t, w.ID, again.ID)

	inst := &domain.Instrument{Symbol: "BBAS3", Name: "Banco do Brasil", AssetClass: domain.AssetClassEquity, CreatedAt: now, UpdatedAt: now}
	buy := domain.Transaction{
		ID: "t1", WalletID: "w1", Symbol: "BBAS3", Type: domain.TxBuy,
		Quantity: decimal.RequireFromString("10"), Price: decimal.RequireFromString("35.50"),
		Total: decimal.RequireFromString("355.00"), ExecutedAt: now, CreatedAt: now,
	}
	h1, err := domain.Next(nil, buy)
	require.NoError(t, err)
	got, err := s.Commit(ctx, storage.Commit{Instrument: inst, Transaction: buy, Next: h1})
	require.NoError(t, err)
	require.NotZero(t, got.Seq)

	buy2 := buy
	buy2.ID = "t2"
	buy2.Quantity = decimal.RequireFromString("5")
	buy2.Price = decimal.RequireFromString("37.00")
	buy2.Fees = decimal.NewNullDecimal(decimal.RequireFromString("2.50"))

	st, err := s.LedgerState(ctx, "w1", "BBAS3")
	require.NoError(t, err)
	assert.Equal(t, got.Seq, st.Head)
	h2, err := domain.Next(st.Holding, buy2)
	require.NoError(t, err)

	_, err = s.Commit(ctx, storage.Commit{Instrument: inst, ExpectedHead: 0, Transaction: buy2, Next: h2})
	require.ErrorIs(t, err, storage.ErrConflict)

	_, err = s.Commit(ctx, storage.Commit{Instrument: inst, ExpectedHead: st.Head, Transaction: buy2, Next: h2})
	require.NoError(t, err)

	holdings, err := s.Holdings(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "15.0000", domain.FormatQuantity(holdings[0].Quantity))
	assert.Equal(t, "36.00", domain.FormatMoney(holdings[0].AvgCost))

	txs, err := s.Transactions(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "t1", txs[0].ID)
	assert.False(t, txs[0].Fees.Valid)
	assert.True(t, txs[1].Fees.Valid)
	replayed, err := domain.Replay(txs)
	require.NoError(t, err)
	assert.True(t, replayed.SameAs(&holdings[0]))

	st, err = s.LedgerState(ctx, "w1", "BBAS3")
	require.NoError(t, err)
	sell := buy
	sell.ID = "t3"
	sell.Type = domain.TxSell
	sell.Quantity = decimal.RequireFromString("15")
	_, err = s.Commit(ctx, storage.Commit{ExpectedHead: st.Head, Transaction: sell})
	require.NoError(t, err)

	symbols, err := s.HeldSymbols(ctx)
	require.NoError(t, err)
	assert.Empty(t, symbols)
	st, err = s.LedgerState(ctx, "w1", "BBAS3")
	require.NoError(t, err)
	assert.Nil(t, st.Holding)
	assert.NotZero(t, st.Head)
}

func TestStore_CommitRollsBackOnUnknownWallet(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	now := time.Now().UTC()

	_, err := s.Commit(ctx, storage.Commit{
		Instrument:  &domain.Instrument{Symbol: "XPTO3", Name: "X", AssetClass: domain.AssetClassEquity, CreatedAt: now, UpdatedAt: now},
		Transaction: domain.Transaction{ID: "t", WalletID: "ghost", Symbol: "XPTO3", Type: domain.TxBuy, ExecutedAt: now, CreatedAt: now},
	})
	require.ErrorIs(t, err, domain.ErrWalletNotFound)

	_, err = s.Instrument(ctx, "XPTO3")
	assert.ErrorIs(t, err, domain.ErrInstrumentNotFound)
}

func TestStore_PutQuote(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

	_, err := s.CreateWallet(ctx, domain.Wallet{ID: "w1", UserID: "u1", CreatedAt: now})
	require.NoError(t, err)
	_, err = s.Commit(ctx, storage.Commit{
		Instrument:  &domain.Instrument{Symbol: "WEGE3", Name: "WEG", AssetClass: domain.AssetClassEquity, LogoURL: "https://logo/wege.svg", CreatedAt: now, UpdatedAt: now},
		Transaction: domain.Transaction{ID: "t", WalletID: "w1", Symbol: "WEGE3", Type: domain.TxBuy, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(40), Total: decimal.NewFromInt(40), ExecutedAt: now, CreatedAt: now},
		Next:        &domain.Holding{WalletID: "w1", Symbol: "WEGE3", Quantity: decimal.NewFromInt(1), AvgCost: decimal.NewFromInt(40)},
	})
	require.NoError(t, err)

	require.NoError(t, s.PutQuote(ctx, domain.Quote{Symbol: "WEGE3", Name: "WEG ON", Price: decimal.RequireFromString("41.20")}, now))
	require.NoError(t, s.PutQuote(ctx, domain.Quote{Symbol: "WEGE3", Price: decimal.RequireFromString("41.90")}, now.Add(time.Hour)))

	prices, err := s.Prices(ctx, []string{"WEGE3", "NOPE3"})
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.True(t, decimal.RequireFromString("41.90").Equal(prices["WEGE3"].Price))

	insts, err := s.Instruments(ctx, []string{"WEGE3"})
	require.NoError(t, err)
	assert.Equal(t, "WEG ON", insts["WEGE3"].Name)
	assert.Equal(t, "https://logo/wege.svg", insts["WEGE3"].LogoURL)

	renamed, err := s.RenameWallet(ctx, "w1", "long term")
	require.NoError(t, err)
	assert.Equal(t, "long term", renamed.Name)
	_, err = s.RenameWallet(ctx, "ghost", "x")
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
}
