package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GenesisHash is the previous hash of a tenant's first entry.
const GenesisHash = "0"

// DateLayout is the calendar-date format used for entry dates in hashes, JSON and SQL.
const DateLayout = "2006-01-02"

// BalanceEpsilon is the currency rounding tolerance (one cent).
var BalanceEpsilon = decimal.NewFromFloat(0.01)

// GenerateUUIDWithSuffix generates a UUID with a given module name as a suffix.
// This is useful for creating unique identifiers with context-specific prefixes.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New() // Generate a new UUID.
	uuidStr := id.String()
	idWithSuffix := fmt.Sprintf("%s_%s", module, uuidStr) // Append the module as a suffix to the UUID.
	return idWithSuffix
}

// RoundCurrency rounds to two decimal places, half away from zero.
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// FormatAmount renders an amount with exactly two decimal places.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// TruncateDate drops the time of day, keeping the calendar date in loc.
func TruncateDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// CanonicalTimestamp normalizes a timestamp to UTC at microsecond resolution,
// the precision Postgres stores, so hashes computed before and after a round trip agree.
func CanonicalTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
