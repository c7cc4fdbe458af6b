package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type DocumentType string

const (
	DocumentTypeIncome         DocumentType = "income"
	DocumentTypeExpense        DocumentType = "expense"
	DocumentTypeCashCount      DocumentType = "cash_count"
	DocumentTypeOpeningBalance DocumentType = "opening_balance"
)

// ReversalPrefix marks the description of a cancellation entry.
const ReversalPrefix = "REVERSAL: "

// ReversalReferencePrefix prefixes the reference of a cancellation entry.
const ReversalReferencePrefix = "REVERSAL-"

// AllowedVatRates are the German VAT rates accepted on cashbook entries.
var AllowedVatRates = []int64{0, 7, 19}

var ErrUnknownDocumentType = errors.New("unknown document type")

// Entry is one cash movement or system event in a tenant's cashbook.
// Every field except the cancellation fields is immutable after insertion.
type Entry struct {
	ID                 int64           `json:"-"`
	EntryID            string          `json:"id"`
	TenantID           string          `json:"tenant_id"`
	EntryDate          time.Time       `json:"entry_date"`
	DocumentNumber     int64           `json:"document_number"`
	DocumentType       DocumentType    `json:"document_type"`
	Amount             decimal.Decimal `json:"amount"`
	VatRate            int64           `json:"vat_rate"`
	VatAmount          decimal.Decimal `json:"vat_amount"`
	NetAmount          decimal.Decimal `json:"net_amount"`
	Description        string          `json:"description"`
	Reference          string          `json:"reference,omitempty"`
	CashBalance        decimal.Decimal `json:"cash_balance"`
	PreviousHash       string          `json:"previous_hash"`
	Hash               string          `json:"hash"`
	ReceiptID          string          `json:"receipt_id,omitempty"`
	ReversesEntryID    string          `json:"reverses_entry_id,omitempty"`
	CreatedBy          string          `json:"created_by,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	IsCancelled        bool            `json:"is_cancelled"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
	CancelledBy        string          `json:"cancelled_by,omitempty"`
	CancellationReason string          `json:"cancellation_reason,omitempty"`
}

// Cancellation holds the only fields that may be written on an existing entry.
type Cancellation struct {
	CancelledAt time.Time
	CancelledBy string
	Reason      string
}

// ChainHead is the tail of a tenant's chain as seen inside the writing transaction.
type ChainHead struct {
	TenantID           string          `json:"tenant_id"`
	LastDocumentNumber int64           `json:"last_document_number"`
	LastHash           string          `json:"last_hash"`
	Balance            decimal.Decimal `json:"balance"`
}

// NextDocumentNumber is the number the next appended entry must carry.
func (h ChainHead) NextDocumentNumber() int64 {
	return h.LastDocumentNumber + 1
}

// EntryFilter narrows ListEntries. Zero values mean "no restriction".
type EntryFilter struct {
	From             *time.Time   `json:"from,omitempty"`
	To               *time.Time   `json:"to,omitempty"`
	DocumentType     DocumentType `json:"document_type,omitempty"`
	IncludeCancelled bool         `json:"include_cancelled"`
	Search           string       `json:"search,omitempty"`
	ReceiptID        string       `json:"receipt_id,omitempty"`
	Limit            int          `json:"limit"`
	Offset           int          `json:"offset"`
}

func (t DocumentType) Valid() bool {
	switch t {
	case DocumentTypeIncome, DocumentTypeExpense, DocumentTypeCashCount, DocumentTypeOpeningBalance:
		return true
	}
	return false
}

// Reversed returns the document type of an entry that cancels one of type t.
func (t DocumentType) Reversed() DocumentType {
	switch t {
	case DocumentTypeIncome, DocumentTypeOpeningBalance:
		return DocumentTypeExpense
	case DocumentTypeExpense:
		return DocumentTypeIncome
	default:
		return t
	}
}

// SignedAmount turns the user-entered gross amount into the ledger sign convention.
// Cash count corrections are entered already signed.
func SignedAmount(t DocumentType, gross decimal.Decimal) (decimal.Decimal, error) {
	switch t {
	case DocumentTypeIncome, DocumentTypeOpeningBalance:
		return gross.Abs(), nil
	case DocumentTypeExpense:
		return gross.Abs().Neg(), nil
	case DocumentTypeCashCount:
		return gross, nil
	}
	return decimal.Zero, ErrUnknownDocumentType
}

// ValidVatRate reports whether rate is one of AllowedVatRates.
func ValidVatRate(rate int64) bool {
	for _, r := range AllowedVatRates {
		if r == rate {
			return true
		}
	}
	return false
}

// SplitVAT splits a gross amount into net and VAT parts.
// net = round(amount / (1 + rate/100)), vat = amount - net, so both carry amount's sign
// and always add up to amount exactly.
func SplitVAT(amount decimal.Decimal, rate int64) (net, vat decimal.Decimal) {
	if rate == 0 {
		return amount, decimal.Zero
	}
	divisor := decimal.NewFromInt(100 + rate).Div(decimal.NewFromInt(100))
	net = RoundCurrency(amount.DivRound(divisor, 8))
	vat = amount.Sub(net)
	return net, vat
}

// IsReversal reports whether the entry cancels another entry.
func (e *Entry) IsReversal() bool {
	return e.ReversesEntryID != ""
}
