package quotes

import (
	"context"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/folio/internal/domain"
)

const (
	providerBybit = "bybit"
	// bybit retCode for "Not supported symbols"
	bybitUnsupportedSymbol = 10001
)

// BybitFetcher quotes spot pairs from Bybit v5 tickers.
type BybitFetcher struct {
	client *bybit.Client
}

func NewBybitFetcher(client *bybit.Client) *BybitFetcher {
	return &BybitFetcher{client: client}
}

func (f *BybitFetcher) FetchQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	if err := ctx.Err(); err != nil {
		return domain.Quote{}, transient(providerBybit, symbol, err)
	}

	sym := bybit.SymbolV5(symbol)
	result, err := f.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: "spot",
		Symbol:   &sym,
	})
	if err != nil {
		var apiErr *bybit.ErrorResponse
		if errors.As(err, &apiErr) && apiErr.RetCode == bybitUnsupportedSymbol {
			return domain.Quote{}, errors.Wrapf(domain.ErrInstrumentNotFound, "%s %s: %s", providerBybit, symbol, apiErr.RetMsg)
		}
		return domain.Quote{}, transient(providerBybit, symbol, err)
	}
	if result.Result.Spot == nil || len(result.Result.Spot.List) == 0 {
		return domain.Quote{}, errors.Wrapf(domain.ErrInstrumentNotFound, "%s returned empty tickers for %s", providerBybit, symbol)
	}

	price, err := decimal.NewFromString(result.Result.Spot.List[0].LastPrice)
	if err != nil {
		return domain.Quote{}, transient(providerBybit, symbol, err)
	}

	return domain.Quote{
		Symbol: symbol,
		Price:  price,
		Source: providerBybit,
	}, nil
}
