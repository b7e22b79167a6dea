package internal

import (
	"context"
	"fmt"

	binance "github.com/adshao/go-binance/v2"
	bybit "github.com/hirokisan/bybit/v2"
	hyperliquid "github.com/sonirico/go-hyperliquid"
	"go.uber.org/zap"

	"github.com/vadiminshakov/folio/config"
	"github.com/vadiminshakov/folio/internal/clients"
	"github.com/vadiminshakov/folio/internal/services/quotes"
	"github.com/vadiminshakov/folio/internal/storage"
	"github.com/vadiminshakov/folio/internal/storage/memory"
	"github.com/vadiminshakov/folio/internal/storage/sqlstore"
	"github.com/vadiminshakov/folio/internal/storage/walstore"
	"github.com/vadiminshakov/folio/pkg/retrier"
)

// newStore opens the storage backend selected by cfg.
func newStore(ctx context.Context, l *zap.Logger, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverWAL:
		return walstore.Open(l, cfg.Dir)
	case config.DriverSQLite, config.DriverPostgres:
		return sqlstore.Open(ctx, l, cfg.Driver, cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

// newProviderClient creates the API client of a quote provider.
func newProviderClient(provider string, cfg config.Config) (any, error) {
	creds := cfg.Credentials
	switch provider {
	case config.ProviderBrapi:
		return clients.NewBrapiClient(cfg.Quotes.BrapiURL, creds.BrapiToken), nil
	case config.ProviderBinance:
		return clients.NewBinanceClient(creds.BinanceAPIKey, creds.BinanceAPISecret), nil
	case config.ProviderBybit:
		return clients.NewBybitClient(creds.BybitAPIKey, creds.BybitAPISecret), nil
	case config.ProviderHyperliquid:
		return clients.NewHyperliquidInfo(cfg.Quotes.HyperliquidURL), nil
	default:
		return nil, fmt.Errorf("unsupported quote provider: %s", provider)
	}
}

// newQuoteFetcher is the single point of dispatch from a provider client to its fetcher.
func newQuoteFetcher(client any) (quotes.Fetcher, error) {
	switch c := client.(type) {
	case *clients.BrapiClient:
		return quotes.NewBrapiFetcher(c), nil
	case *binance.Client:
		return quotes.NewBinanceFetcher(c), nil
	case *bybit.Client:
		return quotes.NewBybitFetcher(c), nil
	case *hyperliquid.Info:
		return quotes.NewHyperliquidFetcher(c), nil
	default:
		return nil, fmt.Errorf("unsupported client type: %T", client)
	}
}

// newFetcher builds the provider chain. Each provider attempt is bounded by
// cfg.Quotes.Timeout and transient failures are retried cfg.Quotes.Retries times.
func newFetcher(l *zap.Logger, cfg config.Config) (quotes.Fetcher, error) {
	fetchers := make([]quotes.Fetcher, 0, len(cfg.Quotes.Providers))
	for _, provider := range cfg.Quotes.Providers {
		client, err := newProviderClient(provider, cfg)
		if err != nil {
			return nil, err
		}
		f, err := newQuoteFetcher(client)
		if err != nil {
			return nil, err
		}
		// every attempt is bounded so a hanging provider cannot eat the whole lookup budget
		fetchers = append(fetchers, quotes.WithRetry(f,
			retrier.WithMaxRetries(cfg.Quotes.Retries),
			retrier.WithInitialInterval(cfg.Quotes.RetryBackoff),
			retrier.WithAttemptTimeout(cfg.Quotes.Timeout),
		))
	}

	if len(fetchers) == 1 {
		return fetchers[0], nil
	}
	return quotes.NewChain(l.With(zap.String("component", "quotes")), fetchers...), nil
}
