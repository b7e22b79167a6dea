// Package quotes fetches market quotes from external providers.
package quotes

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/folio/internal/domain"
	"github.com/vadiminshakov/folio/pkg/retrier"
)

// Fetcher returns the latest quote for a symbol.
// Unknown symbols fail with domain.ErrInstrumentNotFound, anything worth
// retrying fails with domain.ErrTransientProvider.
type Fetcher interface {
	FetchQuote(ctx context.Context, symbol string) (domain.Quote, error)
}

// Chain asks providers in order until one knows the symbol.
type Chain struct {
	l        *zap.Logger
	fetchers []Fetcher
}

// NewChain creates a chain over fetchers.
func NewChain(l *zap.Logger, fetchers ...Fetcher) *Chain {
	return &Chain{l: l, fetchers: fetchers}
}

// FetchQuote returns the first successful quote. Not-found answers fall
// through, a transient failure is reported only if no provider answers.
func (c *Chain) FetchQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	var transientErr error
	for i, f := range c.fetchers {
		q, err := f.FetchQuote(ctx, symbol)
		if err == nil {
			return q, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Quote{}, errors.Wrapf(domain.ErrTransientProvider, "%s: %v", symbol, ctxErr)
		}
		if errors.Is(err, domain.ErrInstrumentNotFound) {
			continue
		}
		c.l.Warn("quote provider failed", zap.Int("provider", i), zap.String("symbol", symbol), zap.Error(err))
		transientErr = err
	}

	if transientErr != nil {
		return domain.Quote{}, transientErr
	}

	return domain.Quote{}, errors.Wrapf(domain.ErrInstrumentNotFound, "no provider knows %s", symbol)
}

// Retrying repeats transient failures of the wrapped fetcher.
type Retrying struct {
	next Fetcher
	r    *retrier.Retrier
}

// WithRetry wraps next so that only domain.ErrTransientProvider failures are retried.
func WithRetry(next Fetcher, opts ...retrier.Option) *Retrying {
	opts = append(opts, retrier.WithRetryIf(func(err error) bool {
		return errors.Is(err, domain.ErrTransientProvider)
	}))

	return &Retrying{next: next, r: retrier.New(opts...)}
}

// FetchQuote implements Fetcher.
func (f *Retrying) FetchQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	return retrier.DoWithData(f.r, ctx, func(ctx context.Context) (domain.Quote, error) {
		return f.next.FetchQuote(ctx, symbol)
	})
}

// transient classifies a provider error that is not a definite not-found.
func transient(provider, symbol string, err error) error {
	return errors.Wrapf(domain.ErrTransientProvider, "%s %s: %v", provider, symbol, err)
}
