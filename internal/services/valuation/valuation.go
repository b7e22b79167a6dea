// Package valuation prices wallet holdings against the quote cache.
package valuation

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/folio/internal/domain"
	"github.com/vadiminshakov/folio/internal/storage"
)

// Valuate computes a snapshot from holdings, cached prices and instrument metadata.
// A missing price counts as zero. Rounding happens only when formatting.
func Valuate(walletID string, holdings []domain.Holding, prices map[string]domain.PriceEntry,
	instruments map[string]domain.Instrument, summaryOnly bool, at time.Time) domain.PortfolioSnapshot {

	invested := decimal.Zero
	realValue := decimal.Zero
	var items []domain.HoldingValuation
	if !summaryOnly {
		items = make([]domain.HoldingValuation, 0, len(holdings))
	}

	for _, h := range holdings {
		price := decimal.Zero
		if p, ok := prices[h.Symbol]; ok {
			price = p.Price
		}

		totalCost := h.TotalCost()
		marketValue := h.Quantity.Mul(price)
		invested = invested.Add(totalCost)
		realValue = realValue.Add(marketValue)

		if summaryOnly {
			continue
		}

		gainLoss := marketValue.Sub(totalCost)
		inst := instruments[h.Symbol]
		name := inst.Name
		if name == "" {
			name = h.Symbol
		}

		items = append(items, domain.HoldingValuation{
			Symbol:          h.Symbol,
			Name:            name,
			LogoURL:         inst.LogoURL,
			AssetClass:      inst.AssetClass.String(),
			Quantity:        domain.FormatQuantity(h.Quantity),
			AvgCost:         domain.FormatMoney(h.AvgCost),
			CurrentPrice:    domain.FormatMoney(price),
			MarketValue:     domain.FormatMoney(marketValue),
			TotalCost:       domain.FormatMoney(totalCost),
			GainLoss:        domain.FormatMoney(gainLoss),
			GainLossPercent: domain.FormatMoney(domain.Percent(gainLoss, totalCost)),
		})
	}

	total := realValue.Sub(invested)

	return domain.PortfolioSnapshot{
		WalletID: walletID,
		PortfolioSummary: domain.PortfolioSummary{
			Invested:             domain.FormatMoney(invested),
			RealValue:            domain.FormatMoney(realValue),
			TotalGainLoss:        domain.FormatMoney(total),
			TotalGainLossPercent: domain.FormatMoney(domain.Percent(total, invested)),
		},
		Items:    items,
		ValuedAt: at,
	}
}

// Service loads wallet state from the store and values it.
type Service struct {
	l     *zap.Logger
	store storage.Store
	now   func() time.Time
}

func NewService(l *zap.Logger, store storage.Store) *Service {
	return &Service{l: l, store: store, now: time.Now}
}

// Portfolio values the wallet. Fails with domain.ErrWalletNotFound for unknown wallets.
func (s *Service) Portfolio(ctx context.Context, walletID string, summaryOnly bool) (domain.PortfolioSnapshot, error) {
	if _, err := s.store.Wallet(ctx, walletID); err != nil {
		return domain.PortfolioSnapshot{}, err
	}

	holdings, err := s.store.Holdings(ctx, walletID)
	if err != nil {
		return domain.PortfolioSnapshot{}, errors.Wrapf(err, "load holdings of wallet %s", walletID)
	}

	symbols := make([]string, 0, len(holdings))
	for _, h := range holdings {
		symbols = append(symbols, h.Symbol)
	}

	prices, err := s.store.Prices(ctx, symbols)
	if err != nil {
		return domain.PortfolioSnapshot{}, errors.Wrap(err, "load prices")
	}

	var instruments map[string]domain.Instrument
	if !summaryOnly {
		if instruments, err = s.store.Instruments(ctx, symbols); err != nil {
			return domain.PortfolioSnapshot{}, errors.Wrap(err, "load instruments")
		}
	}

	if missing := len(symbols) - len(prices); missing > 0 {
		s.l.Debug("valuing holdings without cached price at zero",
			zap.String("wallet", walletID), zap.Int("missing", missing))
	}

	return Valuate(walletID, holdings, prices, instruments, summaryOnly, s.now().UTC()), nil
}
