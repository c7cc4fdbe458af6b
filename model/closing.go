package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type ClosingStatus string

const (
	ClosingStatusDraft     ClosingStatus = "draft"
	ClosingStatusFinalized ClosingStatus = "finalized"
)

// MonthlyClosing is the reconciliation of one (tenant, year, month).
// Once finalized it is sealed and immutable.
type MonthlyClosing struct {
	ID                    int64            `json:"-"`
	ClosingID             string           `json:"id"`
	TenantID              string           `json:"tenant_id"`
	Year                  int              `json:"year"`
	Month                 int              `json:"month"`
	Status                ClosingStatus    `json:"status"`
	OpeningBalance        decimal.Decimal  `json:"opening_balance"`
	TotalIncome           decimal.Decimal  `json:"total_income"`
	TotalExpense          decimal.Decimal  `json:"total_expense"`
	CalculatedBalance     decimal.Decimal  `json:"calculated_balance"`
	CountedBalance        decimal.Decimal  `json:"counted_balance"`
	Difference            decimal.Decimal  `json:"difference"`
	TransactionCount      int64            `json:"transaction_count"`
	DenominationDetails   map[string]int64 `json:"denomination_details,omitempty"`
	Notes                 string           `json:"notes,omitempty"`
	DifferenceExplanation string           `json:"difference_explanation,omitempty"`
	ChainTipHash          string           `json:"chain_tip_hash,omitempty"`
	SealHash              string           `json:"seal_hash,omitempty"`
	CreatedBy             string           `json:"created_by,omitempty"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
	FinalizedBy           string           `json:"finalized_by,omitempty"`
	FinalizedAt           *time.Time       `json:"finalized_at,omitempty"`
}

// PeriodTotals are the ledger aggregates of one calendar month.
type PeriodTotals struct {
	OpeningBalance   decimal.Decimal `json:"opening_balance"`
	TotalIncome      decimal.Decimal `json:"total_income"`
	TotalExpense     decimal.Decimal `json:"total_expense"`
	TransactionCount int64           `json:"transaction_count"`
}

// CalculatedBalance is opening + income - expense.
func (t PeriodTotals) CalculatedBalance() decimal.Decimal {
	return t.OpeningBalance.Add(t.TotalIncome).Sub(t.TotalExpense)
}

// Equal compares totals at currency precision.
func (t PeriodTotals) Equal(o PeriodTotals) bool {
	return t.OpeningBalance.Equal(o.OpeningBalance) &&
		t.TotalIncome.Equal(o.TotalIncome) &&
		t.TotalExpense.Equal(o.TotalExpense) &&
		t.TransactionCount == o.TransactionCount
}

// PeriodBounds returns the first and last calendar day of a month.
func PeriodBounds(year, month int) (start, end time.Time) {
	start = time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, -1)
	return start, end
}

// InPeriod reports whether date falls in the given month.
func InPeriod(date time.Time, year, month int) bool {
	return date.Year() == year && int(date.Month()) == month
}

// ComputePeriodTotals aggregates entries for a month. Opening balance entries dated inside the
// period count towards the opening balance, not towards income. Reversals are included with
// their signed amounts, so a cancelled entry and its reversal net to zero.
func ComputePeriodTotals(entries []Entry, year, month int) PeriodTotals {
	start, end := PeriodBounds(year, month)
	totals := PeriodTotals{
		OpeningBalance: decimal.Zero,
		TotalIncome:    decimal.Zero,
		TotalExpense:   decimal.Zero,
	}

	for _, e := range entries {
		date := e.EntryDate
		inPeriod := !date.Before(start) && !date.After(end)
		switch {
		case date.Before(start):
			totals.OpeningBalance = totals.OpeningBalance.Add(e.Amount)
		case inPeriod && e.DocumentType == DocumentTypeOpeningBalance:
			totals.OpeningBalance = totals.OpeningBalance.Add(e.Amount)
		case inPeriod && e.Amount.IsPositive():
			totals.TotalIncome = totals.TotalIncome.Add(e.Amount)
		case inPeriod && e.Amount.IsNegative():
			totals.TotalExpense = totals.TotalExpense.Add(e.Amount.Abs())
		}
		if inPeriod {
			totals.TransactionCount++
		}
	}
	return totals
}

// ApplyTotals copies totals onto the closing and recomputes the derived figures.
func (c *MonthlyClosing) ApplyTotals(t PeriodTotals) {
	c.OpeningBalance = t.OpeningBalance
	c.TotalIncome = t.TotalIncome
	c.TotalExpense = t.TotalExpense
	c.TransactionCount = t.TransactionCount
	c.CalculatedBalance = t.CalculatedBalance()
	c.Difference = c.CountedBalance.Sub(c.CalculatedBalance)
}

// Totals returns the aggregates the closing was computed from.
func (c *MonthlyClosing) Totals() PeriodTotals {
	return PeriodTotals{
		OpeningBalance:   c.OpeningBalance,
		TotalIncome:      c.TotalIncome,
		TotalExpense:     c.TotalExpense,
		TransactionCount: c.TransactionCount,
	}
}

// RequiresExplanation reports whether |difference| exceeds the rounding epsilon.
func (c *MonthlyClosing) RequiresExplanation() bool {
	return c.Difference.Abs().GreaterThan(BalanceEpsilon)
}

func (c *MonthlyClosing) IsFinalized() bool {
	return c.Status == ClosingStatusFinalized
}

type denominationCount struct {
	Face     string `json:"face"`
	Quantity int64  `json:"quantity"`
}

type sealPayload struct {
	TenantID              string              `json:"tenant_id"`
	Year                  int                 `json:"year"`
	Month                 int                 `json:"month"`
	OpeningBalance        string              `json:"opening_balance"`
	TotalIncome           string              `json:"total_income"`
	TotalExpense          string              `json:"total_expense"`
	CalculatedBalance     string              `json:"calculated_balance"`
	CountedBalance        string              `json:"counted_balance"`
	Difference            string              `json:"difference"`
	TransactionCount      int64               `json:"transaction_count"`
	Denominations         []denominationCount `json:"denominations"`
	DifferenceExplanation string              `json:"difference_explanation"`
	ChainTipHash          string              `json:"chain_tip_hash"`
	FinalizedAt           string              `json:"finalized_at"`
}

// ComputeSeal hashes the closing's figures together with the chain tip it was finalized against.
func (c *MonthlyClosing) ComputeSeal() (string, error) {
	faces := make([]string, 0, len(c.DenominationDetails))
	for face := range c.DenominationDetails {
		faces = append(faces, face)
	}
	sort.Strings(faces)
	denominations := make([]denominationCount, 0, len(faces))
	for _, face := range faces {
		denominations = append(denominations, denominationCount{Face: face, Quantity: c.DenominationDetails[face]})
	}

	var finalizedAt string
	if c.FinalizedAt != nil {
		finalizedAt = CanonicalTimestamp(*c.FinalizedAt).Format(time.RFC3339Nano)
	}

	data, err := json.Marshal(sealPayload{
		TenantID:              c.TenantID,
		Year:                  c.Year,
		Month:                 c.Month,
		OpeningBalance:        FormatAmount(c.OpeningBalance),
		TotalIncome:           FormatAmount(c.TotalIncome),
		TotalExpense:          FormatAmount(c.TotalExpense),
		CalculatedBalance:     FormatAmount(c.CalculatedBalance),
		CountedBalance:        FormatAmount(c.CountedBalance),
		Difference:            FormatAmount(c.Difference),
		TransactionCount:      c.TransactionCount,
		Denominations:         denominations,
		DifferenceExplanation: c.DifferenceExplanation,
		ChainTipHash:          c.ChainTipHash,
		FinalizedAt:           finalizedAt,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ClosingSummary is the result shape of a closing draft run.
type ClosingSummary struct {
	Success           bool            `json:"success"`
	ClosingID         string          `json:"closing_id"`
	Status            ClosingStatus   `json:"status"`
	OpeningBalance    decimal.Decimal `json:"opening_balance"`
	TotalIncome       decimal.Decimal `json:"total_income"`
	TotalExpense      decimal.Decimal `json:"total_expense"`
	CalculatedBalance decimal.Decimal `json:"calculated_balance"`
	CountedBalance    decimal.Decimal `json:"counted_balance"`
	Difference        decimal.Decimal `json:"difference"`
	TransactionCount  int64           `json:"transaction_count"`
	Error             string          `json:"error,omitempty"`
}

func (c *MonthlyClosing) Summary() ClosingSummary {
	return ClosingSummary{
		Success:           true,
		ClosingID:         c.ClosingID,
		Status:            c.Status,
		OpeningBalance:    c.OpeningBalance,
		TotalIncome:       c.TotalIncome,
		TotalExpense:      c.TotalExpense,
		CalculatedBalance: c.CalculatedBalance,
		CountedBalance:    c.CountedBalance,
		Difference:        c.Difference,
		TransactionCount:  c.TransactionCount,
	}
}

// SealVerification reports whether a finalized closing still matches its seal.
type SealVerification struct {
	ClosingID     string `json:"closing_id"`
	IsValid       bool   `json:"is_valid"`
	StoredSeal    string `json:"stored_seal"`
	ComputedSeal  string `json:"computed_seal"`
	ChainTipHash  string `json:"chain_tip_hash"`
	ChainTipFound bool   `json:"chain_tip_found"`
}
