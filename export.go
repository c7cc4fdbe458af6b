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
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/blnkfinance/cashbook/model"
)

const exportPageSize = 500

var exportHeader = []string{
	"document_number", "entry_date", "document_type", "amount", "vat_rate", "vat_amount", "net_amount",
	"description", "reference", "cash_balance", "receipt_id", "reverses_entry_id",
	"is_cancelled", "cancelled_at", "cancelled_by", "cancellation_reason",
	"created_by", "created_at", "previous_hash", "hash", "id",
}

func exportRow(e *model.Entry) []string {
	var cancelledAt string
	if e.CancelledAt != nil {
		cancelledAt = e.CancelledAt.UTC().Format(time.RFC3339Nano)
	}
	return []string{
		strconv.FormatInt(e.DocumentNumber, 10),
		e.EntryDate.Format(model.DateLayout),
		string(e.DocumentType),
		model.FormatAmount(e.Amount),
		strconv.FormatInt(e.VatRate, 10),
		model.FormatAmount(e.VatAmount),
		model.FormatAmount(e.NetAmount),
		e.Description,
		e.Reference,
		model.FormatAmount(e.CashBalance),
		e.ReceiptID,
		e.ReversesEntryID,
		strconv.FormatBool(e.IsCancelled),
		cancelledAt,
		e.CancelledBy,
		e.CancellationReason,
		e.CreatedBy,
		model.CanonicalTimestamp(e.CreatedAt).Format(time.RFC3339Nano),
		e.PreviousHash,
		e.Hash,
		e.EntryID,
	}
}

// ExportCSV writes the tenant's entries matching filter as CSV, one row per entry with every
// stored field. Without a limit the whole selection is written page by page.
func (c *Cashbook) ExportCSV(ctx context.Context, tenantID string, filter model.EntryFilter, w io.Writer) error {
	ctx, span := tracer.Start(ctx, "ExportCSV")
	defer span.End()

	writer := csv.NewWriter(w)
	if err := writer.Write(exportHeader); err != nil {
		return logAndRecordError(span, "failed to write csv header: ", err)
	}

	page := filter
	paged := filter.Limit == 0
	if paged {
		page.Limit = exportPageSize
	}
	for {
		entries, err := c.ListEntries(ctx, tenantID, page)
		if err != nil {
			span.RecordError(err)
			return err
		}
		for i := range entries {
			if err := writer.Write(exportRow(&entries[i])); err != nil {
				return logAndRecordError(span, "failed to write csv row: ", err)
			}
		}
		if !paged || len(entries) < page.Limit {
			break
		}
		page.Offset += len(entries)
	}

	writer.Flush()
	return writer.Error()
}
