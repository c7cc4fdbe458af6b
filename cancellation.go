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
	"github.com/blnkfinance/cashbook/model"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

type CancelEntryRequest struct {
	TenantID    string `json:"tenant_id"`
	EntryID     string `json:"entry_id"`
	Reason      string `json:"reason"`
	CancelledBy string `json:"cancelled_by"`
}

func (r *CancelEntryRequest) validate() error {
	err := validation.ValidateStruct(r,
		validation.Field(&r.TenantID, validation.Required),
		validation.Field(&r.EntryID, validation.Required),
		validation.Field(&r.Reason, notBlank, validUTF8, validation.RuneLength(1, 500)),
	)
	if err != nil {
		return invalidInput(err)
	}
	return nil
}

// CancellationResult holds both sides of a cancellation.
type CancellationResult struct {
	Reversal *model.Entry `json:"reversal"`
	Original *model.Entry `json:"original"`
}

// CancelEntry reverses an entry. Nothing is deleted: a reversal with the negated amounts is
// appended to the chain and the original is flagged cancelled in the same store transaction.
func (c *Cashbook) CancelEntry(ctx context.Context, req CancelEntryRequest) (*CancellationResult, error) {
	ctx, span := tracer.Start(ctx, "CancelEntry")
	defer span.End()

	req.Reason = strings.TrimSpace(req.Reason)
	if err := req.validate(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("tenant.id", req.TenantID), attribute.String("entry.id", req.EntryID))

	cancellation := model.Cancellation{
		CancelledAt: model.CanonicalTimestamp(c.now()),
		CancelledBy: req.CancelledBy,
		Reason:      req.Reason,
	}

	result := &CancellationResult{}
	err := c.withTenantLock(ctx, req.TenantID, func() error {
		var err error
		result.Reversal, result.Original, err = c.datasource.CancelEntry(ctx, req.TenantID, req.EntryID, cancellation, c.buildReversal(req.CancelledBy))
		return err
	})
	if err != nil {
		return nil, logAndRecordError(span, "failed to cancel entry: ", err)
	}

	logrus.WithFields(logrus.Fields{
		"tenant_id":       req.TenantID,
		"document_number": result.Original.DocumentNumber,
		"reversal_number": result.Reversal.DocumentNumber,
	}).Info("cashbook entry cancelled")
	c.emit(EventEntryCancelled, result)

	return result, nil
}

func (c *Cashbook) buildReversal(createdBy string) database.ReversalFunc {
	return func(head model.ChainHead, original *model.Entry) (*model.Entry, error) {
		return c.link(head, reversalOf(original, c.today(), createdBy))
	}
}

// reversalOf synthesizes the entry offsetting original. It is dated on the day of the
// cancellation, since the original's period may already be closed.
func reversalOf(original *model.Entry, date time.Time, createdBy string) *model.Entry {
	return &model.Entry{
		EntryID:         model.GenerateUUIDWithSuffix("cbe"),
		TenantID:        original.TenantID,
		EntryDate:       date,
		DocumentType:    original.DocumentType.Reversed(),
		Amount:          original.Amount.Neg(),
		VatRate:         original.VatRate,
		VatAmount:       original.VatAmount.Neg(),
		NetAmount:       original.NetAmount.Neg(),
		Description:     fmt.Sprintf("%s%s (Beleg-Nr. %d)", model.ReversalPrefix, original.Description, original.DocumentNumber),
		Reference:       fmt.Sprintf("%s%d", model.ReversalReferencePrefix, original.DocumentNumber),
		ReceiptID:       original.ReceiptID,
		ReversesEntryID: original.EntryID,
		CreatedBy:       createdBy,
	}
}
