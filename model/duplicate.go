package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	MatchReasonSimilar     = "identical amount, date, type, similar description"
	MatchReasonIdentical   = "identical amount, date, type"
	MatchReasonVerySimilar = "identical amount, date, very similar description"
)

// DuplicateCheck is the prospective entry a duplicate scan compares against.
type DuplicateCheck struct {
	TenantID     string          `json:"tenant_id"`
	EntryDate    time.Time       `json:"entry_date"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	DocumentType DocumentType    `json:"document_type"`
}

// DuplicateCheckResult is a transient, advisory verdict. It is never persisted.
type DuplicateCheckResult struct {
	IsDuplicate   bool    `json:"is_duplicate"`
	MatchingEntry *Entry  `json:"matching_entry,omitempty"`
	MatchReason   string  `json:"match_reason,omitempty"`
	Similarity    float64 `json:"similarity,omitempty"`
}
