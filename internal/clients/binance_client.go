package clients

import (
	"github.com/adshao/go-binance/v2"
)

// NewBinanceClient returns a spot client. Public market data needs no credentials, so keys may be empty.
func NewBinanceClient(apiKey, apiSecret string) *binance.Client {
	return binance.NewClient(apiKey, apiSecret)
}
