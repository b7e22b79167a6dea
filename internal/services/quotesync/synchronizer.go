// Package quotesync refreshes the price cache for every held instrument.
package quotesync

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/folio/internal/events"
	"github.com/vadiminshakov/folio/internal/services/quotes"
	"github.com/vadiminshakov/folio/internal/storage"
)

const (
	defaultConcurrency  = 4
	defaultFetchTimeout = 10 * time.Second
)

// DefaultSchedules trading-day refresh times: market open, midday and after close.
var DefaultSchedules = []string{"0 10 * * 1-5", "0 15 * * 1-5", "30 17 * * 1-5"}

// Report tally of one sync pass.
type Report struct {
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt"`
	Total      int               `json:"total"`
	Succeeded  int               `json:"succeeded"`
	Failed     int               `json:"failed"`
	Failures   map[string]string `json:"failures,omitempty"`
}

// Config synchronizer settings. Zero values select defaults.
type Config struct {
	Schedules    []string
	Location     *time.Location
	Concurrency  int
	FetchTimeout time.Duration
}

// Synchronizer fetches quotes for held symbols and writes them to the price cache.
// It never touches the ledger or holdings.
type Synchronizer struct {
	l       *zap.Logger
	store   storage.Store
	fetcher quotes.Fetcher
	pub     events.Publisher
	cfg     Config

	trigger chan struct{}
	passMu  sync.Mutex
	now     func() time.Time
}

// New validates cfg and creates a Synchronizer. pub may be nil.
func New(l *zap.Logger, store storage.Store, fetcher quotes.Fetcher, pub events.Publisher, cfg Config) (*Synchronizer, error) {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Schedules == nil {
		cfg.Schedules = DefaultSchedules
	}
	for _, spec := range cfg.Schedules {
		if _, err := cron.ParseStandard(spec); err != nil {
			return nil, errors.Wrapf(err, "invalid sync schedule %q", spec)
		}
	}
	if pub == nil {
		pub = events.Nop{}
	}

	return &Synchronizer{
		l:       l,
		store:   store,
		fetcher: fetcher,
		pub:     pub,
		cfg:     cfg,
		trigger: make(chan struct{}, 1),
		now:     time.Now,
	}, nil
}

// SyncAll runs one pass over every held symbol. Per-symbol failures are
// recorded in the report and do not stop the pass.
func (s *Synchronizer) SyncAll(ctx context.Context) (Report, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	rep := Report{StartedAt: s.now().UTC(), Failures: make(map[string]string)}

	symbols, err := s.store.HeldSymbols(ctx)
	if err != nil {
		return rep, errors.Wrap(err, "list held symbols")
	}
	rep.Total = len(symbols)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.cfg.Concurrency)
	for _, symbol := range symbols {
		g.Go(func() error {
			err := s.syncSymbol(ctx, symbol)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rep.Failed++
				rep.Failures[symbol] = err.Error()
				s.l.Warn("quote sync failed", zap.String("symbol", symbol), zap.Error(err))
				return nil
			}
			rep.Succeeded++
			return nil
		})
	}
	_ = g.Wait()

	rep.FinishedAt = s.now().UTC()
	s.l.Info("quote sync finished",
		zap.Int("total", rep.Total),
		zap.Int("succeeded", rep.Succeeded),
		zap.Int("failed", rep.Failed),
		zap.Duration("took", rep.FinishedAt.Sub(rep.StartedAt)))

	if err := s.pub.Publish(ctx, events.Event{
		Kind: events.KindQuotesSynced,
		At:   rep.FinishedAt,
		Sync: &events.SyncSummary{
			Total:     rep.Total,
			Succeeded: rep.Succeeded,
			Failed:    rep.Failed,
			Failures:  rep.Failures,
		},
	}); err != nil {
		s.l.Warn("failed to publish sync event", zap.Error(err))
	}

	return rep, nil
}

func (s *Synchronizer) syncSymbol(ctx context.Context, symbol string) error {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	q, err := s.fetcher.FetchQuote(fetchCtx, symbol)
	if err != nil {
		return errors.Wrap(err, "fetch quote")
	}
	q.Symbol = symbol

	return errors.Wrap(s.store.PutQuote(ctx, q, s.now().UTC()), "store quote")
}

// Trigger requests a pass without waiting for it. Requests made while one is
// already pending are merged.
func (s *Synchronizer) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run executes triggered and scheduled passes until ctx is done.
func (s *Synchronizer) Run(ctx context.Context) error {
	c := cron.New(cron.WithLocation(s.cfg.Location))
	for _, spec := range s.cfg.Schedules {
		if _, err := c.AddFunc(spec, s.Trigger); err != nil {
			return errors.Wrapf(err, "schedule %q", spec)
		}
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	s.l.Info("quote synchronizer started",
		zap.Strings("schedules", s.cfg.Schedules),
		zap.String("timezone", s.cfg.Location.String()))

	for {
		select {
		case <-ctx.Done():
			s.l.Info("quote synchronizer stopped")
			return nil
		case <-s.trigger:
			if _, err := s.SyncAll(ctx); err != nil {
				s.l.Error("quote sync pass failed", zap.Error(err))
			}
		}
	}
}
