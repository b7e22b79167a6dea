package internal

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/folio/config"
	"github.com/vadiminshakov/folio/internal/events"
	"github.com/vadiminshakov/folio/internal/services/ledger"
	"github.com/vadiminshakov/folio/internal/services/portfolio"
	"github.com/vadiminshakov/folio/internal/services/quotesync"
	"github.com/vadiminshakov/folio/internal/services/valuation"
	"github.com/vadiminshakov/folio/internal/storage"
	"github.com/vadiminshakov/folio/internal/web"
)

// App owns the store, the services and the long running loops.
type App struct {
	l       *zap.Logger
	store   storage.Store
	server  *web.Server
	syncer  *quotesync.Synchronizer
	service *portfolio.Service
	closers []io.Closer
}

// NewApp opens the store and wires every service from cfg.
func NewApp(ctx context.Context, l *zap.Logger, cfg config.Config) (*App, error) {
	store, err := newStore(ctx, l.With(zap.String("component", "storage")), cfg.Storage)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s storage", cfg.Storage.Driver)
	}
	app := &App{l: l, store: store}

	fetcher, err := newFetcher(l, cfg)
	if err != nil {
		_ = app.Close()
		return nil, errors.Wrap(err, "failed to create quote fetcher")
	}

	broadcaster := events.NewBroadcaster(cfg.Events.Buffer)
	pubs := []events.Publisher{broadcaster}
	if len(cfg.Events.KafkaBrokers) > 0 {
		kafka := events.NewKafkaPublisher(l.With(zap.String("component", "kafka")), cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		pubs = append(pubs, kafka)
		app.closers = append(app.closers, kafka)
	}
	pub := events.NewMulti(l.With(zap.String("component", "events")), pubs...)

	applier := ledger.NewApplier(l.With(zap.String("component", "ledger")), store, fetcher, pub,
		ledger.WithDefaultAssetClass(cfg.Quotes.DefaultAssetClass),
		ledger.WithQuoteTimeout(cfg.Quotes.TotalTimeout),
		ledger.WithMaxConflictRetries(cfg.MaxConflictRetries),
	)

	app.syncer, err = quotesync.New(l.With(zap.String("component", "quotesync")), store, fetcher, pub, quotesync.Config{
		Schedules:    cfg.Sync.Schedules,
		Location:     cfg.Sync.Location,
		Concurrency:  cfg.Sync.Concurrency,
		FetchTimeout: cfg.Quotes.TotalTimeout,
	})
	if err != nil {
		_ = app.Close()
		return nil, errors.Wrap(err, "failed to create quote synchronizer")
	}

	app.service = portfolio.NewService(l.With(zap.String("component", "portfolio")), store,
		applier,
		valuation.NewService(l.With(zap.String("component", "valuation")), store),
		app.syncer,
	)
	app.server = web.NewServer(l.With(zap.String("component", "web")), cfg.ListenAddr, app.service, broadcaster)

	return app, nil
}

// Service returns the portfolio facade.
func (a *App) Service() *portfolio.Service {
	return a.service
}

// Run serves HTTP and runs the quote scheduler until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Start(ctx)
	})
	g.Go(func() error {
		return a.syncer.Run(ctx)
	})

	a.l.Info("folio started")
	return g.Wait()
}

// Close releases the event publishers and the store.
func (a *App) Close() error {
	var firstErr error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := a.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
