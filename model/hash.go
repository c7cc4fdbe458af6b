package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var ErrIncompleteHashPayload = errors.New("incomplete hash payload")

// HashPayload is the canonical content a chain link attests to.
// Field order is the serialization order and must never change:
// reordering alters every stored hash.
type HashPayload struct {
	TenantID       string `json:"tenant_id"`
	EntryDate      string `json:"entry_date"`
	DocumentNumber int64  `json:"document_number"`
	Amount         string `json:"amount"`
	Description    string `json:"description"`
	PreviousHash   string `json:"previous_hash"`
	CreatedAt      string `json:"created_at"`
}

// NewHashPayload renders the attested fields in their canonical string forms.
func NewHashPayload(tenantID string, entryDate time.Time, documentNumber int64, amount decimal.Decimal, description, previousHash string, createdAt time.Time) HashPayload {
	p := HashPayload{
		TenantID:       tenantID,
		DocumentNumber: documentNumber,
		Amount:         FormatAmount(amount),
		Description:    description,
		PreviousHash:   previousHash,
	}
	if !entryDate.IsZero() {
		p.EntryDate = entryDate.Format(DateLayout)
	}
	if !createdAt.IsZero() {
		p.CreatedAt = CanonicalTimestamp(createdAt).Format(time.RFC3339Nano)
	}
	return p
}

func (p HashPayload) validate() error {
	var missing string
	switch {
	case p.TenantID == "":
		missing = "tenant_id"
	case p.EntryDate == "":
		missing = "entry_date"
	case p.DocumentNumber <= 0:
		missing = "document_number"
	case p.Amount == "":
		missing = "amount"
	case p.Description == "":
		missing = "description"
	case p.PreviousHash == "":
		missing = "previous_hash"
	case p.CreatedAt == "":
		missing = "created_at"
	default:
		return nil
	}
	return fmt.Errorf("%w: %s is missing", ErrIncompleteHashPayload, missing)
}

// ComputeHash returns the hex SHA-256 digest of the canonical payload.
func ComputeHash(p HashPayload) (string, error) {
	if err := p.validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// HashPayload extracts the attested fields of the entry.
// VAT split and cash balance are deliberately not part of it.
func (e *Entry) HashPayload() HashPayload {
	return NewHashPayload(e.TenantID, e.EntryDate, e.DocumentNumber, e.Amount, e.Description, e.PreviousHash, e.CreatedAt)
}

// ComputeHash hashes the entry's attested fields.
func (e *Entry) ComputeHash() (string, error) {
	return ComputeHash(e.HashPayload())
}
