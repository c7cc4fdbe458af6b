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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blnkfinance/cashbook/internal/apierror"
	"github.com/blnkfinance/cashbook/model"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("cashbook.database")

const entryColumns = `id, entry_id, tenant_id, entry_date, document_number, document_type, amount,
	vat_rate, vat_amount, net_amount, description, reference, cash_balance, previous_hash, hash,
	receipt_id, COALESCE(reverses_entry_id, ''), created_by, created_at,
	is_cancelled, cancelled_at, cancelled_by, cancellation_reason`

type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (*model.Entry, error) {
	var e model.Entry
	var documentType string
	var cancelledAt sql.NullTime
	err := row.Scan(
		&e.ID, &e.EntryID, &e.TenantID, &e.EntryDate, &e.DocumentNumber, &documentType, &e.Amount,
		&e.VatRate, &e.VatAmount, &e.NetAmount, &e.Description, &e.Reference, &e.CashBalance, &e.PreviousHash, &e.Hash,
		&e.ReceiptID, &e.ReversesEntryID, &e.CreatedBy, &e.CreatedAt,
		&e.IsCancelled, &cancelledAt, &e.CancelledBy, &e.CancellationReason,
	)
	if err != nil {
		return nil, err
	}
	e.DocumentType = model.DocumentType(documentType)
	e.EntryDate = time.Date(e.EntryDate.Year(), e.EntryDate.Month(), e.EntryDate.Day(), 0, 0, 0, 0, time.UTC)
	if cancelledAt.Valid {
		t := cancelledAt.Time
		e.CancelledAt = &t
	}
	return &e, nil
}

func scanEntries(rows *sql.Rows) ([]model.Entry, error) {
	defer rows.Close()
	entries := []model.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan entry data", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over entries", err)
	}
	return entries, nil
}

// mapStoreError translates driver errors into API errors.
func mapStoreError(err error, message string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation":
			return apierror.NewAPIError(apierror.ErrConflict, message+": record already exists", err)
		case "raise_exception":
			return apierror.NewAPIError(apierror.ErrConflict, pqErr.Message, err)
		case "serialization_failure", "lock_not_available":
			return apierror.NewAPIError(apierror.ErrConflict, message+": concurrent write, retry", err)
		default:
			return apierror.NewAPIError(apierror.ErrInternalServer, "Database error occurred", err)
		}
	}
	var apiErr apierror.APIError
	if errors.As(err, &apiErr) {
		return err
	}
	return apierror.NewAPIError(apierror.ErrInternalServer, message, err)
}

// lockChainHead takes the per-tenant write lock. Every append and every closing write of a
// tenant serializes on this row; other tenants never contend.
func lockChainHead(ctx context.Context, tx *sql.Tx, tenantID string) (model.ChainHead, error) {
	head := model.ChainHead{TenantID: tenantID}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO cashbook_chain_heads (tenant_id)
		VALUES ($1)
		ON CONFLICT (tenant_id) DO NOTHING
	`, tenantID)
	if err != nil {
		return head, mapStoreError(err, "Failed to initialize chain head")
	}

	err = tx.QueryRowContext(ctx, `
		SELECT last_document_number, last_hash
		FROM cashbook_chain_heads
		WHERE tenant_id = $1
		FOR UPDATE
	`, tenantID).Scan(&head.LastDocumentNumber, &head.LastHash)
	if err != nil {
		return head, mapStoreError(err, "Failed to lock chain head")
	}
	return head, nil
}

func currentBalance(ctx context.Context, q querier, tenantID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := q.QueryRowContext(ctx, `SELECT get_current_cash_balance($1)`, tenantID).Scan(&balance)
	if err != nil {
		return decimal.Zero, mapStoreError(err, "Failed to compute cash balance")
	}
	return balance, nil
}

func lockHeadWithBalance(ctx context.Context, tx *sql.Tx, tenantID string) (model.ChainHead, error) {
	head, err := lockChainHead(ctx, tx, tenantID)
	if err != nil {
		return head, err
	}
	head.Balance, err = currentBalance(ctx, tx, tenantID)
	return head, err
}

func isPeriodFinalized(ctx context.Context, q querier, tenantID string, year, month int) (bool, error) {
	var finalized bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM cashbook_monthly_closings
			WHERE tenant_id = $1 AND year = $2 AND month = $3 AND status = 'finalized'
		)
	`, tenantID, year, month).Scan(&finalized)
	if err != nil {
		return false, mapStoreError(err, "Failed to check closing status")
	}
	return finalized, nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, e *model.Entry) error {
	var cancelledAt interface{}
	if e.CancelledAt != nil {
		cancelledAt = *e.CancelledAt
	}
	err := tx.QueryRowContext(ctx, `
		INSERT INTO cashbook_entries (
			entry_id, tenant_id, entry_date, document_number, document_type, amount,
			vat_rate, vat_amount, net_amount, description, reference, cash_balance, previous_hash, hash,
			receipt_id, reverses_entry_id, created_by, created_at,
			is_cancelled, cancelled_at, cancelled_by, cancellation_reason
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NULLIF($16, ''), $17, $18, $19, $20, $21, $22)
		RETURNING id
	`,
		e.EntryID, e.TenantID, e.EntryDate.Format(model.DateLayout), e.DocumentNumber, string(e.DocumentType), e.Amount,
		e.VatRate, e.VatAmount, e.NetAmount, e.Description, e.Reference, e.CashBalance, e.PreviousHash, e.Hash,
		e.ReceiptID, e.ReversesEntryID, e.CreatedBy, model.CanonicalTimestamp(e.CreatedAt),
		e.IsCancelled, cancelledAt, e.CancelledBy, e.CancellationReason,
	).Scan(&e.ID)
	if err != nil {
		return mapStoreError(err, "Failed to record entry")
	}
	return nil
}

func advanceChainHead(ctx context.Context, tx *sql.Tx, e *model.Entry) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE cashbook_chain_heads
		SET last_document_number = $2, last_hash = $3, updated_at = NOW()
		WHERE tenant_id = $1
	`, e.TenantID, e.DocumentNumber, e.Hash)
	if err != nil {
		return mapStoreError(err, "Failed to advance chain head")
	}
	return nil
}

// appendLocked builds, re-validates and inserts the next entry while the chain head is locked.
func appendLocked(ctx context.Context, tx *sql.Tx, tenantID string, head model.ChainHead, build func(model.ChainHead) (*model.Entry, error)) (*model.Entry, error) {
	entry, err := build(head)
	if err != nil {
		return nil, err
	}
	if err := ValidateAppend(head, tenantID, entry); err != nil {
		return nil, err
	}

	finalized, err := isPeriodFinalized(ctx, tx, tenantID, entry.EntryDate.Year(), int(entry.EntryDate.Month()))
	if err != nil {
		return nil, err
	}
	if finalized {
		return nil, periodFinalizedError(entry)
	}

	if entry.EntryID == "" {
		entry.EntryID = model.GenerateUUIDWithSuffix("cbe")
	}
	if err := insertEntry(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := advanceChainHead(ctx, tx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (d Datasource) AppendEntry(ctx context.Context, tenantID string, build AppendFunc) (*model.Entry, error) {
	ctx, span := tracer.Start(ctx, "Appending entry to db", trace.WithAttributes(attribute.String("tenant.id", tenantID)))
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	head, err := lockHeadWithBalance(ctx, tx, tenantID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	entry, err := appendLocked(ctx, tx, tenantID, head, build)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}

	span.SetAttributes(attribute.Int64("entry.document_number", entry.DocumentNumber))
	return entry, nil
}

func (d Datasource) CancelEntry(ctx context.Context, tenantID, entryID string, cancellation model.Cancellation, build ReversalFunc) (*model.Entry, *model.Entry, error) {
	ctx, span := tracer.Start(ctx, "Cancelling entry in db", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("entry.id", entryID),
	))
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	head, err := lockHeadWithBalance(ctx, tx, tenantID)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}

	original, err := scanEntry(tx.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM cashbook_entries
		WHERE tenant_id = $1 AND entry_id = $2
		FOR UPDATE
	`, tenantID, entryID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Entry with ID '%s' not found", entryID), err)
		}
		span.RecordError(err)
		return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve entry", err)
	}
	if err := ValidateCancellation(original, cancellation); err != nil {
		return nil, nil, err
	}

	reversal, err := appendLocked(ctx, tx, tenantID, head, func(head model.ChainHead) (*model.Entry, error) {
		reversal, err := build(head, original)
		if err != nil {
			return nil, err
		}
		if err := ValidateReversal(original, reversal); err != nil {
			return nil, err
		}
		return reversal, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}

	cancelledAt := model.CanonicalTimestamp(cancellation.CancelledAt)
	result, err := tx.ExecContext(ctx, `
		UPDATE cashbook_entries
		SET is_cancelled = TRUE, cancelled_at = $3, cancelled_by = $4, cancellation_reason = $5
		WHERE tenant_id = $1 AND entry_id = $2 AND is_cancelled = FALSE
	`, tenantID, entryID, cancelledAt, cancellation.CancelledBy, cancellation.Reason)
	if err != nil {
		span.RecordError(err)
		return nil, nil, mapStoreError(err, "Failed to flag cancelled entry")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected != 1 {
		return nil, nil, apierror.NewAPIError(apierror.ErrConflict, "Entry was cancelled concurrently", nil)
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}

	original.IsCancelled = true
	original.CancelledAt = &cancelledAt
	original.CancelledBy = cancellation.CancelledBy
	original.CancellationReason = cancellation.Reason
	return reversal, original, nil
}

func (d Datasource) GetEntry(ctx context.Context, tenantID, entryID string) (*model.Entry, error) {
	ctx, span := tracer.Start(ctx, "Fetching entry from db")
	defer span.End()

	entry, err := scanEntry(d.Conn.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM cashbook_entries
		WHERE tenant_id = $1 AND entry_id = $2
	`, tenantID, entryID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Entry with ID '%s' not found", entryID), err)
		}
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve entry", err)
	}
	return entry, nil
}

// likeEscaper makes a search term match literally inside an ILIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func (d Datasource) ListEntries(ctx context.Context, tenantID string, filter model.EntryFilter) ([]model.Entry, error) {
	ctx, span := tracer.Start(ctx, "Listing entries from db")
	defer span.End()

	query := `SELECT ` + entryColumns + ` FROM cashbook_entries WHERE tenant_id = $1`
	args := []interface{}{tenantID}

	if !filter.IncludeCancelled {
		query += " AND is_cancelled = FALSE"
	}
	if filter.From != nil {
		args = append(args, filter.From.Format(model.DateLayout))
		query += fmt.Sprintf(" AND entry_date >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, filter.To.Format(model.DateLayout))
		query += fmt.Sprintf(" AND entry_date <= $%d", len(args))
	}
	if filter.DocumentType != "" {
		args = append(args, string(filter.DocumentType))
		query += fmt.Sprintf(" AND document_type = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+likeEscaper.Replace(filter.Search)+"%")
		query += fmt.Sprintf(" AND (description ILIKE $%d ESCAPE '\\' OR reference ILIKE $%d ESCAPE '\\')", len(args), len(args))
	}
	if filter.ReceiptID != "" {
		args = append(args, filter.ReceiptID)
		query += fmt.Sprintf(" AND receipt_id = $%d", len(args))
	}
	query += " ORDER BY document_number ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve entries", err)
	}
	return scanEntries(rows)
}

func (d Datasource) GetEntriesForChain(ctx context.Context, tenantID string) ([]model.Entry, error) {
	ctx, span := tracer.Start(ctx, "Fetching chain from db")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM cashbook_entries
		WHERE tenant_id = $1
		ORDER BY document_number ASC
	`, tenantID)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve entries", err)
	}
	return scanEntries(rows)
}

func (d Datasource) GetEntriesInDateRange(ctx context.Context, tenantID string, from, to time.Time) ([]model.Entry, error) {
	ctx, span := tracer.Start(ctx, "Fetching entries in date range from db")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM cashbook_entries
		WHERE tenant_id = $1 AND is_cancelled = FALSE AND entry_date BETWEEN $2 AND $3
		ORDER BY document_number ASC
	`, tenantID, from.Format(model.DateLayout), to.Format(model.DateLayout))
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve entries", err)
	}
	return scanEntries(rows)
}

func (d Datasource) GetCurrentBalance(ctx context.Context, tenantID string) (decimal.Decimal, error) {
	ctx, span := tracer.Start(ctx, "Fetching cash balance from db")
	defer span.End()

	return currentBalance(ctx, d.Conn, tenantID)
}

func (d Datasource) GetLastEntryHash(ctx context.Context, tenantID string) (string, error) {
	var hash string
	err := d.Conn.QueryRowContext(ctx, `
		SELECT hash
		FROM cashbook_entries
		WHERE tenant_id = $1
		ORDER BY document_number DESC
		LIMIT 1
	`, tenantID).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.GenesisHash, nil
		}
		return "", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve last entry hash", err)
	}
	return hash, nil
}

func (d Datasource) GetNextDocumentNumber(ctx context.Context, tenantID string) (int64, error) {
	var next int64
	err := d.Conn.QueryRowContext(ctx, `SELECT get_next_document_number($1)`, tenantID).Scan(&next)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve next document number", err)
	}
	return next, nil
}
