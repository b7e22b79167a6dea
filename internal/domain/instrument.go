package domain

import (
	"strings"
	"time"
)

// Instrument tradable asset known to the directory.
type Instrument struct {
	// Symbol unique ticker, never changes.
	Symbol string `json:"symbol"`
	// Name display name, refreshed by quote sync.
	Name string `json:"name"`
	// AssetClass category assigned at creation.
	AssetClass AssetClass `json:"assetClass"`
	// LogoURL optional logo reference.
	LogoURL   string    `json:"logoUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewInstrumentFromQuote builds the directory entry for a symbol seen for the first time.
func NewInstrumentFromQuote(q Quote, class AssetClass, now time.Time) Instrument {
	name := q.Name
	if name == "" {
		name = q.Symbol
	}

	return Instrument{
		Symbol:     q.Symbol,
		Name:       name,
		AssetClass: class,
		LogoURL:    q.LogoURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// MergeQuote copies non-empty metadata from the quote. Returns true when anything changed.
func (i *Instrument) MergeQuote(q Quote, now time.Time) bool {
	changed := false
	if q.Name != "" && q.Name != i.Name {
		i.Name = q.Name
		changed = true
	}
	if q.LogoURL != "" && q.LogoURL != i.LogoURL {
		i.LogoURL = q.LogoURL
		changed = true
	}
	if changed {
		i.UpdatedAt = now
	}

	return changed
}

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Wallet container of holdings owned by exactly one user.
type Wallet struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// OwnedBy reports whether the wallet belongs to userID.
func (w Wallet) OwnedBy(userID string) bool {
	return userID != "" && w.UserID == userID
}
