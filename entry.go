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

package cashbook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/blnkfinance/cashbook/database"
	"github.com/blnkfinance/cashbook/internal/apierror"
	"github.com/blnkfinance/cashbook/model"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// RecordEntryRequest is a cash movement as entered by a user. Amount is the gross amount,
// always positive except for cash count corrections, which carry their sign.
type RecordEntryRequest struct {
	TenantID     string             `json:"tenant_id"`
	EntryDate    time.Time          `json:"entry_date"`
	DocumentType model.DocumentType `json:"document_type"`
	Amount       decimal.Decimal    `json:"amount"`
	VatRate      int64              `json:"vat_rate"`
	Description  string             `json:"description"`
	Reference    string             `json:"reference"`
	ReceiptID    string             `json:"receipt_id"`
	CreatedBy    string             `json:"created_by"`
	Force        bool               `json:"force"`
}

func (r *RecordEntryRequest) validate(today time.Time) error {
	err := validation.ValidateStruct(r,
		validation.Field(&r.TenantID, validation.Required),
		validation.Field(&r.DocumentType, validation.Required, validDocumentType),
		validation.Field(&r.EntryDate, validation.Required, notAfter(today)),
		validation.Field(&r.Amount, validAmount(r.DocumentType)),
		validation.Field(&r.VatRate, validVatRate(r.DocumentType)),
		validation.Field(&r.Description, notBlank, validUTF8, validation.RuneLength(1, 500)),
		validation.Field(&r.Reference, validUTF8, validation.RuneLength(0, 100)),
	)
	if err != nil {
		return invalidInput(err)
	}
	return nil
}

// RecordEntry appends a new entry to the tenant's chain. Unless req.Force is set, a probable
// double entry is refused with DUPLICATE_SUSPECTED carrying the DuplicateCheckResult.
func (c *Cashbook) RecordEntry(ctx context.Context, req RecordEntryRequest) (*model.Entry, error) {
	ctx, span := tracer.Start(ctx, "RecordEntry")
	defer span.End()

	req.EntryDate = calendarDate(req.EntryDate)
	req.Description = strings.TrimSpace(req.Description)
	req.Reference = strings.TrimSpace(req.Reference)
	if err := req.validate(c.today()); err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("tenant.id", req.TenantID),
		attribute.String("entry.document_type", string(req.DocumentType)),
	)

	if !req.Force {
		result := c.CheckForDuplicates(ctx, model.DuplicateCheck{
			TenantID:     req.TenantID,
			EntryDate:    req.EntryDate,
			Amount:       req.Amount,
			Description:  req.Description,
			DocumentType: req.DocumentType,
		})
		if result.IsDuplicate {
			err := apierror.NewAPIError(apierror.ErrDuplicateSuspected,
				fmt.Sprintf("Possible duplicate of entry %d: %s", result.MatchingEntry.DocumentNumber, result.MatchReason), result)
			span.RecordError(err)
			return nil, err
		}
	}

	var entry *model.Entry
	err := c.withTenantLock(ctx, req.TenantID, func() error {
		var err error
		entry, err = c.datasource.AppendEntry(ctx, req.TenantID, c.buildEntry(req))
		return err
	})
	if err != nil {
		return nil, logAndRecordError(span, "failed to record entry: ", err)
	}

	span.SetAttributes(attribute.Int64("entry.document_number", entry.DocumentNumber))
	logrus.WithFields(logrus.Fields{
		"tenant_id":       entry.TenantID,
		"document_number": entry.DocumentNumber,
		"document_type":   entry.DocumentType,
		"amount":          model.FormatAmount(entry.Amount),
	}).Info("cashbook entry recorded")
	c.emit(EventEntryRecorded, entry)

	return entry, nil
}

// buildEntry turns the request into the next link of the chain held by the store.
func (c *Cashbook) buildEntry(req RecordEntryRequest) database.AppendFunc {
	return func(head model.ChainHead) (*model.Entry, error) {
		amount, err := model.SignedAmount(req.DocumentType, req.Amount)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
		}
		net, vat := model.SplitVAT(amount, req.VatRate)

		return c.link(head, &model.Entry{
			EntryID:      model.GenerateUUIDWithSuffix("cbe"),
			TenantID:     req.TenantID,
			EntryDate:    req.EntryDate,
			DocumentType: req.DocumentType,
			Amount:       amount,
			VatRate:      req.VatRate,
			VatAmount:    vat,
			NetAmount:    net,
			Description:  req.Description,
			Reference:    req.Reference,
			ReceiptID:    req.ReceiptID,
			CreatedBy:    req.CreatedBy,
		})
	}
}

// link completes e as the entry following head: document number, running balance,
// previous hash and hash. Expenses that would leave the cash balance negative are refused.
func (c *Cashbook) link(head model.ChainHead, e *model.Entry) (*model.Entry, error) {
	e.DocumentNumber = head.NextDocumentNumber()
	e.PreviousHash = head.LastHash
	e.CashBalance = head.Balance.Add(e.Amount)

	if e.DocumentType == model.DocumentTypeExpense && e.CashBalance.IsNegative() {
		return nil, apierror.NewAPIError(apierror.ErrBusinessRule,
			fmt.Sprintf("Expense of %s exceeds the cash balance of %s", model.FormatAmount(e.Amount.Abs()), model.FormatAmount(head.Balance)), nil)
	}

	e.CreatedAt = model.CanonicalTimestamp(c.now())
	hash, err := e.ComputeHash()
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Entry cannot be hashed", err)
	}
	e.Hash = hash
	return e, nil
}

// GetEntry retrieves an entry by its ID.
func (c *Cashbook) GetEntry(ctx context.Context, tenantID, entryID string) (*model.Entry, error) {
	ctx, span := tracer.Start(ctx, "GetEntry")
	defer span.End()

	entry, err := c.datasource.GetEntry(ctx, tenantID, entryID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return entry, nil
}

// ListEntries returns the tenant's entries matching filter in document number order.
func (c *Cashbook) ListEntries(ctx context.Context, tenantID string, filter model.EntryFilter) ([]model.Entry, error) {
	ctx, span := tracer.Start(ctx, "ListEntries")
	defer span.End()

	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "from must not be after to", nil)
	}
	if filter.DocumentType != "" && !filter.DocumentType.Valid() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Unknown document type %q", filter.DocumentType), nil)
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "limit and offset must not be negative", nil)
	}

	entries, err := c.datasource.ListEntries(ctx, tenantID, filter)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return entries, nil
}

// GetCurrentBalance is the authoritative balance: the sum over every entry of the tenant.
func (c *Cashbook) GetCurrentBalance(ctx context.Context, tenantID string) (decimal.Decimal, error) {
	ctx, span := tracer.Start(ctx, "GetCurrentBalance")
	defer span.End()

	balance, err := c.datasource.GetCurrentBalance(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		return decimal.Zero, err
	}
	return balance, nil
}

// GetLastEntryHash returns the tenant's chain tip, or the genesis hash for an empty chain.
func (c *Cashbook) GetLastEntryHash(ctx context.Context, tenantID string) (string, error) {
	ctx, span := tracer.Start(ctx, "GetLastEntryHash")
	defer span.End()

	hash, err := c.datasource.GetLastEntryHash(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return hash, nil
}

// ChainStatus is the tail of a tenant's cashbook as committed.
type ChainStatus struct {
	TenantID           string          `json:"tenant_id"`
	Balance            decimal.Decimal `json:"balance"`
	LastHash           string          `json:"last_hash"`
	NextDocumentNumber int64           `json:"next_document_number"`
}

func (c *Cashbook) GetChainStatus(ctx context.Context, tenantID string) (*ChainStatus, error) {
	ctx, span := tracer.Start(ctx, "GetChainStatus")
	defer span.End()

	balance, err := c.GetCurrentBalance(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	lastHash, err := c.GetLastEntryHash(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	next, err := c.datasource.GetNextDocumentNumber(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &ChainStatus{TenantID: tenantID, Balance: balance, LastHash: lastHash, NextDocumentNumber: next}, nil
}
