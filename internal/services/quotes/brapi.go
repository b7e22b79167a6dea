package quotes

import (
	"context"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/folio/internal/clients"
	"github.com/vadiminshakov/folio/internal/domain"
)

const providerBrapi = "brapi"

// BrapiFetcher quotes B3 listed instruments through brapi.dev.
type BrapiFetcher struct {
	client *clients.BrapiClient
}

func NewBrapiFetcher(client *clients.BrapiClient) *BrapiFetcher {
	return &BrapiFetcher{client: client}
}

func (f *BrapiFetcher) FetchQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	q, err := f.client.Quote(ctx, symbol)
	if err != nil {
		if errors.Is(err, clients.ErrSymbolNotFound) {
			return domain.Quote{}, errors.Wrapf(domain.ErrInstrumentNotFound, "%s %s", providerBrapi, symbol)
		}
		return domain.Quote{}, transient(providerBrapi, symbol, err)
	}

	name := q.LongName
	if name == "" {
		name = q.ShortName
	}

	return domain.Quote{
		Symbol:   symbol,
		Name:     name,
		Price:    q.RegularMarketPrice,
		LogoURL:  q.LogoURL,
		Currency: q.Currency,
		Source:   providerBrapi,
	}, nil
}
