package quotes

import (
	"context"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/folio/internal/domain"
)

const (
	providerBinance = "binance"
	// binance API codes for an unknown or malformed symbol
	binanceInvalidSymbol    = -1121
	binanceIllegalCharacter = -1100
)

// BinanceFetcher quotes spot pairs such as BTCUSDT from Binance.
type BinanceFetcher struct {
	client *binance.Client
}

func NewBinanceFetcher(client *binance.Client) *BinanceFetcher {
	return &BinanceFetcher{client: client}
}

func (f *BinanceFetcher) FetchQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	prices, err := f.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == binanceInvalidSymbol || apiErr.Code == binanceIllegalCharacter) {
			return domain.Quote{}, errors.Wrapf(domain.ErrInstrumentNotFound, "%s %s", providerBinance, symbol)
		}
		return domain.Quote{}, transient(providerBinance, symbol, err)
	}
	if len(prices) == 0 {
		return domain.Quote{}, errors.Wrapf(domain.ErrInstrumentNotFound, "%s returned empty prices for %s", providerBinance, symbol)
	}

	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return domain.Quote{}, transient(providerBinance, symbol, err)
	}

	return domain.Quote{
		Symbol: symbol,
		Price:  price,
		Source: providerBinance,
	}, nil
}
