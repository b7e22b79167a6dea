package clients

import (
	"context"

	hyperliquid "github.com/sonirico/go-hyperliquid"
)

// NewHyperliquidInfo returns a keyless client of the public Info API.
// Empty metas stop the SDK from loading the asset universe eagerly, mid prices do not need it.
func NewHyperliquidInfo(baseURL string) *hyperliquid.Info {
	if baseURL == "" {
		baseURL = hyperliquid.MainnetAPIURL
	}

	return hyperliquid.NewInfo(context.Background(), baseURL, true, &hyperliquid.Meta{}, &hyperliquid.SpotMeta{})
}
