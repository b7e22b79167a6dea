package memory

import (
	"time"

	"github.com/vadiminshakov/folio/internal/domain"
)

// RecordKind type of a journaled mutation.
type RecordKind string

const (
	RecordWallet RecordKind = "wallet"
	RecordCommit RecordKind = "commit"
	RecordQuote  RecordKind = "quote"
)

// Record self-contained description of one mutation, enough to redo it on restart.
type Record struct {
	Kind RecordKind `json:"kind"`

	Wallet *domain.Wallet `json:"wallet,omitempty"`

	Instrument  *domain.Instrument  `json:"instrument,omitempty"`
	Transaction *domain.Transaction `json:"transaction,omitempty"`
	Holding     *domain.Holding     `json:"holding,omitempty"`

	Quote     *domain.Quote `json:"quote,omitempty"`
	FetchedAt time.Time     `json:"fetchedAt,omitempty"`
}

// Journal receives every mutation before it becomes visible.
// A failing Append aborts the mutation.
type Journal interface {
	Append(rec Record) error
}
