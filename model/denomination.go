package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// EuroDenominations lists euro notes and coins by face value.
var EuroDenominations = []string{
	"500.00", "200.00", "100.00", "50.00", "20.00", "10.00", "5.00",
	"2.00", "1.00", "0.50", "0.20", "0.10", "0.05", "0.02", "0.01",
}

// NormalizeDenominations rewrites face values to their two-decimal form ("5" -> "5.00")
// and rejects unknown faces and negative quantities.
func NormalizeDenominations(in map[string]int64) (map[string]int64, error) {
	if len(in) == 0 {
		return nil, nil
	}
	valid := make(map[string]struct{}, len(EuroDenominations))
	for _, face := range EuroDenominations {
		valid[face] = struct{}{}
	}

	out := make(map[string]int64, len(in))
	for face, quantity := range in {
		value, err := decimal.NewFromString(face)
		if err != nil {
			return nil, fmt.Errorf("invalid denomination %q", face)
		}
		key := FormatAmount(value)
		if _, ok := valid[key]; !ok {
			return nil, fmt.Errorf("unsupported denomination %q", face)
		}
		if quantity < 0 {
			return nil, fmt.Errorf("negative quantity for denomination %s", key)
		}
		out[key] += quantity
	}
	return out, nil
}

// DenominationTotal sums face value times quantity. Keys must already be normalized.
func DenominationTotal(denominations map[string]int64) decimal.Decimal {
	total := decimal.Zero
	for face, quantity := range denominations {
		value, err := decimal.NewFromString(face)
		if err != nil {
			continue
		}
		total = total.Add(value.Mul(decimal.NewFromInt(quantity)))
	}
	return total
}
