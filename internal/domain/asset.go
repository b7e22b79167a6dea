package domain

import (
	"strings"
)

// AssetClass category of a tradable instrument.
type AssetClass string

const (
	AssetClassEquity AssetClass = "EQUITY"
	AssetClassFund   AssetClass = "FUND"
	AssetClassREIT   AssetClass = "REIT"
	AssetClassBond   AssetClass = "BOND"
	AssetClassCrypto AssetClass = "CRYPTO"
	AssetClassETF    AssetClass = "ETF"
)

// ParseAssetClass normalizes s into an AssetClass.
// Unknown non-empty values are accepted since the set is open.
func ParseAssetClass(s string) (AssetClass, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", Invalid("asset class is empty")
	}

	return AssetClass(s), nil
}

// String returns the string representation of the asset class.
func (a AssetClass) String() string {
	return string(a)
}
