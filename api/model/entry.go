/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

import (
	"strings"
	"time"

	"github.com/blnkfinance/cashbook"
	"github.com/blnkfinance/cashbook/model"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

type RecordEntry struct {
	EntryDate    string           `json:"entry_date"`
	DocumentType string           `json:"document_type"`
	Amount       *decimal.Decimal `json:"amount"`
	VatRate      *int64           `json:"vat_rate"`
	Description  string           `json:"description"`
	Reference    string           `json:"reference"`
	ReceiptID    string           `json:"receipt_id"`
	Force        bool             `json:"force"`
}

type CancelEntry struct {
	Reason string `json:"reason"`
}

type CheckDuplicates struct {
	EntryDate    string           `json:"entry_date"`
	DocumentType string           `json:"document_type"`
	Amount       *decimal.Decimal `json:"amount"`
	Description  string           `json:"description"`
}

var dateRule = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	return validateDateFormat(model.DateLayout, s)
})

func (e *RecordEntry) ValidateRecordEntry() error {
	return validation.ValidateStruct(e,
		validation.Field(&e.EntryDate, validation.Required, dateRule),
		validation.Field(&e.DocumentType, validation.Required),
		validation.Field(&e.Amount, validation.NotNil),
		validation.Field(&e.Description, validation.Required),
	)
}

func (e *RecordEntry) ToRecordEntryRequest(tenantID, userID string) cashbook.RecordEntryRequest {
	req := cashbook.RecordEntryRequest{
		TenantID:     tenantID,
		EntryDate:    parseDate(e.EntryDate),
		DocumentType: model.DocumentType(strings.TrimSpace(e.DocumentType)),
		Description:  e.Description,
		Reference:    e.Reference,
		ReceiptID:    strings.TrimSpace(e.ReceiptID),
		CreatedBy:    userID,
		Force:        e.Force,
	}
	if e.Amount != nil {
		req.Amount = *e.Amount
	}
	if e.VatRate != nil {
		req.VatRate = *e.VatRate
	}
	return req
}

func (e *CancelEntry) ValidateCancelEntry() error {
	return validation.ValidateStruct(e,
		validation.Field(&e.Reason, validation.Required),
	)
}

func (e *CancelEntry) ToCancelEntryRequest(tenantID, entryID, userID string) cashbook.CancelEntryRequest {
	return cashbook.CancelEntryRequest{
		TenantID:    tenantID,
		EntryID:     entryID,
		Reason:      e.Reason,
		CancelledBy: userID,
	}
}

func (d *CheckDuplicates) ValidateCheckDuplicates() error {
	return validation.ValidateStruct(d,
		validation.Field(&d.EntryDate, validation.Required, dateRule),
		validation.Field(&d.DocumentType, validation.Required),
		validation.Field(&d.Amount, validation.NotNil),
	)
}

func (d *CheckDuplicates) ToDuplicateCheck(tenantID string) model.DuplicateCheck {
	check := model.DuplicateCheck{
		TenantID:     tenantID,
		EntryDate:    parseDate(d.EntryDate),
		DocumentType: model.DocumentType(strings.TrimSpace(d.DocumentType)),
		Description:  d.Description,
	}
	if d.Amount != nil {
		check.Amount = *d.Amount
	}
	return check
}

// parseDate expects input that already passed dateRule.
func parseDate(s string) time.Time {
	date, _ := time.Parse(model.DateLayout, strings.TrimSpace(s))
	return date
}
