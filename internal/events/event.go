// Package events publishes ledger and sync notifications.
package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vadiminshakov/folio/internal/domain"
)

// Kind event type.
type Kind string

const (
	KindTransactionApplied Kind = "transaction.applied"
	KindQuotesSynced       Kind = "quotes.synced"
)

// SyncSummary outcome of one quote sync pass.
type SyncSummary struct {
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Failures  map[string]string `json:"failures,omitempty"`
}

// Event notification emitted after a state change became durable.
type Event struct {
	Kind        Kind                `json:"kind"`
	At          time.Time           `json:"at"`
	WalletID    string              `json:"walletId,omitempty"`
	Transaction *domain.Transaction `json:"transaction,omitempty"`
	Sync        *SyncSummary        `json:"sync,omitempty"`
}

// Key partitioning key, events of one wallet stay ordered.
func (e Event) Key() string {
	if e.WalletID != "" {
		return e.WalletID
	}
	return string(e.Kind)
}

// Publisher delivers events to interested parties.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Multi fans an event out to several publishers. A failing publisher does not stop the others.
type Multi struct {
	l    *zap.Logger
	pubs []Publisher
}

func NewMulti(l *zap.Logger, pubs ...Publisher) *Multi {
	return &Multi{l: l, pubs: pubs}
}

// Publish delivers e to every publisher and returns the last error.
func (m *Multi) Publish(ctx context.Context, e Event) error {
	var lastErr error
	for _, p := range m.pubs {
		if err := p.Publish(ctx, e); err != nil {
			m.l.Warn("event publish failed", zap.String("kind", string(e.Kind)), zap.Error(err))
			lastErr = err
		}
	}

	return lastErr
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
