package quotes

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"

	"github.com/vadiminshakov/folio/internal/domain"
)

const providerHyperliquid = "hyperliquid"

// quote assets stripped from pair symbols, Hyperliquid keys mids by base coin
var hyperliquidQuoteAssets = []string{"USDT", "USDC", "USD"}

// HyperliquidFetcher quotes coins from the Hyperliquid public mid prices.
type HyperliquidFetcher struct {
	info *hyperliquid.Info
}

func NewHyperliquidFetcher(info *hyperliquid.Info) *HyperliquidFetcher {
	return &HyperliquidFetcher{info: info}
}

func (f *HyperliquidFetcher) FetchQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	if f.info == nil {
		return domain.Quote{}, transient(providerHyperliquid, symbol, errors.New("hyperliquid info client is nil"))
	}

	mids, err := f.info.AllMids(ctx)
	if err != nil {
		return domain.Quote{}, transient(providerHyperliquid, symbol, err)
	}

	coin := hyperliquidCoin(symbol)
	mid, ok := mids[coin]
	if !ok || mid == "" {
		return domain.Quote{}, errors.Wrapf(domain.ErrInstrumentNotFound, "%s has no mid price for %s", providerHyperliquid, coin)
	}

	price, err := decimal.NewFromString(mid)
	if err != nil {
		return domain.Quote{}, transient(providerHyperliquid, symbol, err)
	}

	return domain.Quote{
		Symbol: symbol,
		Price:  price,
		Source: providerHyperliquid,
	}, nil
}

// hyperliquidCoin maps BTCUSDT to BTC. Bare coins pass through.
func hyperliquidCoin(symbol string) string {
	for _, q := range hyperliquidQuoteAssets {
		if base, ok := strings.CutSuffix(symbol, q); ok && base != "" {
			return base
		}
	}
	return symbol
}
