package valuation

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/folio/internal/domain"
	"github.com/vadiminshakov/folio/internal/storage"
	"github.com/vadiminshakov/folio/internal/storage/memory"
)

func holding(symbol, qty, avg string) domain.Holding {
	return domain.Holding{
		WalletID: "w1",
		Symbol:   symbol,
		Quantity: decimal.RequireFromString(qty),
		AvgCost:  decimal.RequireFromString(avg),
	}
}

func price(symbol, p string) domain.PriceEntry {
	return domain.PriceEntry{Symbol: symbol, Price: decimal.RequireFromString(p)}
}

func TestValuate_SingleHolding(t *testing.T) {
	snap := Valuate("w1",
		[]domain.Holding{holding("PETR4", "50", "30.00")},
		map[string]domain.PriceEntry{"PETR4": price("PETR4", "40.00")},
		map[string]domain.Instrument{"PETR4": {Symbol: "PETR4", Name: "Petrobras", AssetClass: domain.AssetClassEquity}},
		false, time.Now())

	require.Len(t, snap.Items, 1)
	item := snap.Items[0]
	assert.Equal(t, "50.0000", item.Quantity)
	assert.Equal(t, "30.00", item.AvgCost)
	assert.Equal(t, "40.00", item.CurrentPrice)
	assert.Equal(t, "1500.00", item.TotalCost)
	assert.Equal(t, "2000.00", item.MarketValue)
	assert.Equal(t, "500.00", item.GainLoss)
	assert.Equal(t, "33.33", item.GainLossPercent)
	assert.Equal(t, "Petrobras", item.Name)
	assert.Equal(t, "EQUITY", item.AssetClass)

	assert.Equal(t, "1500.00", snap.Invested)
	assert.Equal(t, "2000.00", snap.RealValue)
	assert.Equal(t, "500.00", snap.TotalGainLoss)
	assert.Equal(t, "33.33", snap.TotalGainLossPercent)
}

func TestValuate_MissingPriceIsZero(t *testing.T) {
	snap := Valuate("w1", []domain.Holding{holding("NEW3", "10", "5")}, nil, nil, false, time.Now())

	require.Len(t, snap.Items, 1)
	assert.Equal(t, "0.00", snap.Items[0].CurrentPrice)
	assert.Equal(t, "0.00", snap.Items[0].MarketValue)
	assert.Equal(t, "-50.00", snap.Items[0].GainLoss)
	assert.Equal(t, "-100.00", snap.Items[0].GainLossPercent)
	assert.Equal(t, "NEW3", snap.Items[0].Name)
}

func TestValuate_ZeroCostHolding(t *testing.T) {
	snap := Valuate("w1", []domain.Holding{holding("BONUS3", "10", "0")},
		map[string]domain.PriceEntry{"BONUS3": price("BONUS3", "3")}, nil, false, time.Now())

	assert.Equal(t, "0.00", snap.Items[0].GainLossPercent)
	assert.Equal(t, "30.00", snap.Items[0].GainLoss)
	assert.Equal(t, "0.00", snap.TotalGainLossPercent)
}

func TestValuate_Empty(t *testing.T) {
	snap := Valuate("w1", nil, nil, nil, false, time.Now())

	assert.Equal(t, "0.00", snap.Invested)
	assert.Equal(t, "0.00", snap.RealValue)
	assert.Equal(t, "0.00", snap.TotalGainLoss)
	assert.Equal(t, "0.00", snap.TotalGainLossPercent)
	assert.NotNil(t, snap.Items)
	assert.Empty(t, snap.Items)
}

func TestValuate_SummaryAgreesWithFull(t *testing.T) {
	holdings := []domain.Holding{
		holding("PETR4", "50", "30"),
		holding("VALE3", "12.5", "61.37"),
		holding("ITSA4", "300", "9.8733333333333333"),
	}
	prices := map[string]domain.PriceEntry{
		"PETR4": price("PETR4", "40"),
		"VALE3": price("VALE3", "58.12"),
	}

	full := Valuate("w1", holdings, prices, nil, false, time.Now())
	summary := Valuate("w1", holdings, prices, nil, true, time.Now())

	assert.Equal(t, full.PortfolioSummary, summary.PortfolioSummary)
	assert.Nil(t, summary.Items)
	assert.Len(t, full.Items, 3)
}

func TestService_Portfolio(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewService(zap.NewNop(), store)

	_, err := svc.Portfolio(ctx, "ghost", false)
	require.ErrorIs(t, err, domain.ErrWalletNotFound)

	_, err = store.CreateWallet(ctx, domain.Wallet{ID: "w1", UserID: "u1"})
	require.NoError(t, err)

	empty, err := svc.Portfolio(ctx, "w1", false)
	require.NoError(t, err)
	assert.Equal(t, "0.00", empty.Invested)
	assert.Empty(t, empty.Items)

	h := holding("PETR4", "50", "30")
	_, err = store.Commit(ctx, storage.Commit{
		Instrument:  &domain.Instrument{Symbol: "PETR4", Name: "Petrobras", AssetClass: domain.AssetClassEquity},
		Transaction: domain.Transaction{ID: "t1", WalletID: "w1", Symbol: "PETR4", Type: domain.TxBuy, Quantity: h.Quantity, Price: h.AvgCost},
		Next:        &h,
	})
	require.NoError(t, err)
	require.NoError(t, store.PutQuote(ctx, domain.Quote{Symbol: "PETR4", Price: decimal.NewFromInt(40)}, time.Now()))

	snap, err := svc.Portfolio(ctx, "w1", false)
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "2000.00", snap.RealValue)
	assert.Equal(t, "Petrobras", snap.Items[0].Name)

	summary, err := svc.Portfolio(ctx, "w1", true)
	require.NoError(t, err)
	assert.Equal(t, snap.PortfolioSummary, summary.PortfolioSummary)
}
