package quotesync

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/folio/internal/domain"
	"github.com/vadiminshakov/folio/internal/events"
	"github.com/vadiminshakov/folio/internal/storage"
	"github.com/vadiminshakov/folio/internal/storage/memory"
	quotesMock "github.com/vadiminshakov/folio/mocks/quotes"
)

func seed(t *testing.T, s *memory.Store, symbols ...string) {
	t.Helper()
	ctx := context.Background()
	_, err := s.CreateWallet(ctx, domain.Wallet{ID: "w1", UserID: "u1"})
	require.NoError(t, err)

	for i, sym := range symbols {
		h := domain.Holding{WalletID: "w1", Symbol: sym, Quantity: decimal.NewFromInt(1), AvgCost: decimal.NewFromInt(10)}
		_, err := s.Commit(ctx, storage.Commit{
			Instrument:  &domain.Instrument{Symbol: sym, Name: sym + " old", LogoURL: "https://logo/" + sym, AssetClass: domain.AssetClassEquity},
			Transaction: domain.Transaction{ID: sym + string(rune('a'+i)), WalletID: "w1", Symbol: sym, Type: domain.TxBuy, Quantity: h.Quantity, Price: h.AvgCost},
			Next:        &h,
		})
		require.NoError(t, err)
	}
}

func TestSyncAll_PartialFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seed(t, store, "AAAA3", "BBBB3")

	fetcher := quotesMock.NewFetcher(t)
	fetcher.On("FetchQuote", mock.Anything, "AAAA3").Return(domain.Quote{Symbol: "AAAA3", Name: "Alpha SA", Price: decimal.RequireFromString("12.34")}, nil).Once()
	fetcher.On("FetchQuote", mock.Anything, "BBBB3").Return(domain.Quote{}, errors.Wrap(domain.ErrTransientProvider, "503")).Once()

	b := events.NewBroadcaster(4)
	sub := b.Subscribe()
	s, err := New(zap.NewNop(), store, fetcher, b, Config{})
	require.NoError(t, err)

	rep, err := s.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Total)
	assert.Equal(t, 1, rep.Succeeded)
	assert.Equal(t, 1, rep.Failed)
	assert.Contains(t, rep.Failures, "BBBB3")

	prices, err := store.Prices(ctx, []string{"AAAA3", "BBBB3"})
	require.NoError(t, err)
	require.Contains(t, prices, "AAAA3")
	assert.NotContains(t, prices, "BBBB3")
	assert.True(t, decimal.RequireFromString("12.34").Equal(prices["AAAA3"].Price))

	insts, err := store.Instruments(ctx, []string{"AAAA3", "BBBB3"})
	require.NoError(t, err)
	assert.Equal(t, "Alpha SA", insts["AAAA3"].Name)
	assert.Equal(t, "https://logo/AAAA3", insts["AAAA3"].LogoURL)
	assert.Equal(t, "BBBB3 old", insts["BBBB3"].Name)

	ev := <-sub
	assert.Equal(t, events.KindQuotesSynced, ev.Kind)
	require.NotNil(t, ev.Sync)
	assert.Equal(t, 1, ev.Sync.Failed)
}

func TestSyncAll_OnlyHeldSymbols(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seed(t, store, "HELD3", "SOLD3")

	st, err := store.LedgerState(ctx, "w1", "SOLD3")
	require.NoError(t, err)
	_, err = store.Commit(ctx, storage.Commit{
		ExpectedHead: st.Head,
		Transaction:  domain.Transaction{ID: "sell", WalletID: "w1", Symbol: "SOLD3", Type: domain.TxSell, Quantity: decimal.NewFromInt(1)},
	})
	require.NoError(t, err)

	fetcher := quotesMock.NewFetcher(t)
	fetcher.On("FetchQuote", mock.Anything, "HELD3").Return(domain.Quote{Price: decimal.NewFromInt(11)}, nil).Once()

	s, err := New(zap.NewNop(), store, fetcher, nil, Config{})
	require.NoError(t, err)

	rep, err := s.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Total)
	assert.Equal(t, 1, rep.Succeeded)
}

func TestSyncAll_FetchTimeoutIsPerSymbolFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seed(t, store, "SLOW3", "FAST3")

	fetcher := quotesMock.NewFetcher(t)
	fetcher.On("FetchQuote", mock.Anything, "SLOW3").
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return(domain.Quote{}, context.DeadlineExceeded).Once()
	fetcher.On("FetchQuote", mock.Anything, "FAST3").Return(domain.Quote{Price: decimal.NewFromInt(5)}, nil).Once()

	s, err := New(zap.NewNop(), store, fetcher, nil, Config{FetchTimeout: 20 * time.Millisecond})
	require.NoError(t, err)

	rep, err := s.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Succeeded)
	assert.Equal(t, 1, rep.Failed)
	assert.Contains(t, rep.Failures, "SLOW3")
}

func TestNew_RejectsBadSchedule(t *testing.T) {
	_, err := New(zap.NewNop(), memory.New(), nil, nil, Config{Schedules: []string{"every day"}})
	assert.Error(t, err)
}

func TestRun_TriggerRunsPass(t *testing.T) {
	store := memory.New()
	seed(t, store, "TRIG3")

	fetcher := quotesMock.NewFetcher(t)
	fetcher.On("FetchQuote", mock.Anything, "TRIG3").Return(domain.Quote{Price: decimal.NewFromInt(7)}, nil)

	b := events.NewBroadcaster(4)
	sub := b.Subscribe()
	s, err := New(zap.NewNop(), store, fetcher, b, Config{Schedules: []string{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	s.Trigger()
	s.Trigger()

	select {
	case ev := <-sub:
		assert.Equal(t, events.KindQuotesSynced, ev.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("sync pass did not run")
	}

	cancel()
	require.NoError(t, <-done)

	prices, err := store.Prices(context.Background(), []string{"TRIG3"})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(7).Equal(prices["TRIG3"].Price))
}
