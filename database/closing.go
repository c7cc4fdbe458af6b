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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/blnkfinance/cashbook/internal/apierror"
	"github.com/blnkfinance/cashbook/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const closingColumns = `id, closing_id, tenant_id, year, month, status, opening_balance, total_income,
	total_expense, calculated_balance, counted_balance, difference, transaction_count, denomination_details,
	notes, difference_explanation, chain_tip_hash, seal_hash, created_by, created_at, updated_at,
	finalized_by, finalized_at`

func scanClosing(row scanner) (*model.MonthlyClosing, error) {
	var c model.MonthlyClosing
	var status string
	var denominations []byte
	var finalizedAt sql.NullTime
	err := row.Scan(
		&c.ID, &c.ClosingID, &c.TenantID, &c.Year, &c.Month, &status, &c.OpeningBalance, &c.TotalIncome,
		&c.TotalExpense, &c.CalculatedBalance, &c.CountedBalance, &c.Difference, &c.TransactionCount, &denominations,
		&c.Notes, &c.DifferenceExplanation, &c.ChainTipHash, &c.SealHash, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
		&c.FinalizedBy, &finalizedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = model.ClosingStatus(status)
	if len(denominations) > 0 {
		if err := json.Unmarshal(denominations, &c.DenominationDetails); err != nil {
			return nil, err
		}
	}
	if finalizedAt.Valid {
		t := finalizedAt.Time
		c.FinalizedAt = &t
	}
	return &c, nil
}

// periodTotals mirrors model.ComputePeriodTotals as a single aggregate over the tenant's entries.
func periodTotals(ctx context.Context, q querier, tenantID string, year, month int) (model.PeriodTotals, error) {
	start, end := model.PeriodBounds(year, month)
	var totals model.PeriodTotals
	err := q.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE entry_date < $2 OR (entry_date <= $3 AND document_type = 'opening_balance')), 0),
			COALESCE(SUM(amount) FILTER (WHERE entry_date BETWEEN $2 AND $3 AND document_type <> 'opening_balance' AND amount > 0), 0),
			COALESCE(SUM(-amount) FILTER (WHERE entry_date BETWEEN $2 AND $3 AND document_type <> 'opening_balance' AND amount < 0), 0),
			COUNT(*) FILTER (WHERE entry_date BETWEEN $2 AND $3)
		FROM cashbook_entries
		WHERE tenant_id = $1
	`, tenantID, start.Format(model.DateLayout), end.Format(model.DateLayout)).Scan(
		&totals.OpeningBalance, &totals.TotalIncome, &totals.TotalExpense, &totals.TransactionCount,
	)
	if err != nil {
		return totals, mapStoreError(err, "Failed to compute period totals")
	}
	return totals, nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return model.CanonicalTimestamp(*t)
}

func (d Datasource) SaveClosingDraft(ctx context.Context, draft *model.MonthlyClosing) (*model.MonthlyClosing, error) {
	ctx, span := tracer.Start(ctx, "Saving closing draft to db", trace.WithAttributes(
		attribute.String("tenant.id", draft.TenantID),
		attribute.Int("closing.year", draft.Year),
		attribute.Int("closing.month", draft.Month),
	))
	defer span.End()

	denominations, err := json.Marshal(draft.DenominationDetails)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal denominations", err)
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// hold the chain lock so no entry lands in the period while its totals are read
	if _, err := lockChainHead(ctx, tx, draft.TenantID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	existing, err := scanClosing(tx.QueryRowContext(ctx, `
		SELECT `+closingColumns+`
		FROM cashbook_monthly_closings
		WHERE tenant_id = $1 AND year = $2 AND month = $3
		FOR UPDATE
	`, draft.TenantID, draft.Year, draft.Month))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve closing", err)
	}
	if existing != nil && existing.IsFinalized() {
		return nil, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Closing for %04d-%02d is already finalized", draft.Year, draft.Month), nil)
	}

	totals, err := periodTotals(ctx, tx, draft.TenantID, draft.Year, draft.Month)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	draft.ApplyTotals(totals)
	draft.Status = model.ClosingStatusDraft

	if existing != nil {
		draft.ID = existing.ID
		draft.ClosingID = existing.ClosingID
		draft.CreatedAt = existing.CreatedAt
		draft.CreatedBy = existing.CreatedBy
		_, err = tx.ExecContext(ctx, `
			UPDATE cashbook_monthly_closings
			SET opening_balance = $2, total_income = $3, total_expense = $4, calculated_balance = $5,
				counted_balance = $6, difference = $7, transaction_count = $8, denomination_details = $9,
				notes = $10, updated_at = $11
			WHERE closing_id = $1 AND status = 'draft'
		`, draft.ClosingID, draft.OpeningBalance, draft.TotalIncome, draft.TotalExpense, draft.CalculatedBalance,
			draft.CountedBalance, draft.Difference, draft.TransactionCount, denominations,
			draft.Notes, model.CanonicalTimestamp(draft.UpdatedAt))
		if err != nil {
			span.RecordError(err)
			return nil, mapStoreError(err, "Failed to update closing draft")
		}
	} else {
		if draft.ClosingID == "" {
			draft.ClosingID = model.GenerateUUIDWithSuffix("cls")
		}
		err = tx.QueryRowContext(ctx, `
			INSERT INTO cashbook_monthly_closings (
				closing_id, tenant_id, year, month, status, opening_balance, total_income, total_expense,
				calculated_balance, counted_balance, difference, transaction_count, denomination_details,
				notes, created_by, created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
			RETURNING id
		`, draft.ClosingID, draft.TenantID, draft.Year, draft.Month, string(draft.Status), draft.OpeningBalance,
			draft.TotalIncome, draft.TotalExpense, draft.CalculatedBalance, draft.CountedBalance, draft.Difference,
			draft.TransactionCount, denominations, draft.Notes, draft.CreatedBy,
			model.CanonicalTimestamp(draft.CreatedAt), model.CanonicalTimestamp(draft.UpdatedAt)).Scan(&draft.ID)
		if err != nil {
			span.RecordError(err)
			return nil, mapStoreError(err, "Failed to create closing draft")
		}
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return draft, nil
}

func (d Datasource) FinalizeClosing(ctx context.Context, tenantID, closingID string, finalize FinalizeFunc) (*model.MonthlyClosing, error) {
	ctx, span := tracer.Start(ctx, "Finalizing closing in db", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("closing.id", closingID),
	))
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	head, err := lockChainHead(ctx, tx, tenantID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	closing, err := scanClosing(tx.QueryRowContext(ctx, `
		SELECT `+closingColumns+`
		FROM cashbook_monthly_closings
		WHERE tenant_id = $1 AND closing_id = $2
		FOR UPDATE
	`, tenantID, closingID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Closing with ID '%s' not found", closingID), err)
		}
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve closing", err)
	}
	if closing.IsFinalized() {
		return nil, apierror.NewAPIError(apierror.ErrConflict, "Closing is already finalized", nil)
	}

	totals, err := periodTotals(ctx, tx, tenantID, closing.Year, closing.Month)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := finalize(closing, totals, head.LastHash); err != nil {
		return nil, err
	}
	if !closing.IsFinalized() || closing.SealHash == "" {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Closing was not sealed", nil)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE cashbook_monthly_closings
		SET status = $3, difference_explanation = $4, chain_tip_hash = $5, seal_hash = $6,
			finalized_by = $7, finalized_at = $8, updated_at = $8
		WHERE tenant_id = $1 AND closing_id = $2 AND status = 'draft'
	`, tenantID, closingID, string(closing.Status), closing.DifferenceExplanation, closing.ChainTipHash,
		closing.SealHash, closing.FinalizedBy, nullableTime(closing.FinalizedAt))
	if err != nil {
		span.RecordError(err)
		return nil, mapStoreError(err, "Failed to finalize closing")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected != 1 {
		return nil, apierror.NewAPIError(apierror.ErrConflict, "Closing was finalized concurrently", nil)
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return closing, nil
}

func (d Datasource) GetClosing(ctx context.Context, tenantID, closingID string) (*model.MonthlyClosing, error) {
	ctx, span := tracer.Start(ctx, "Fetching closing from db")
	defer span.End()

	closing, err := scanClosing(d.Conn.QueryRowContext(ctx, `
		SELECT `+closingColumns+`
		FROM cashbook_monthly_closings
		WHERE tenant_id = $1 AND closing_id = $2
	`, tenantID, closingID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Closing with ID '%s' not found", closingID), err)
		}
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve closing", err)
	}
	return closing, nil
}

func (d Datasource) GetClosingByPeriod(ctx context.Context, tenantID string, year, month int) (*model.MonthlyClosing, error) {
	closing, err := scanClosing(d.Conn.QueryRowContext(ctx, `
		SELECT `+closingColumns+`
		FROM cashbook_monthly_closings
		WHERE tenant_id = $1 AND year = $2 AND month = $3
	`, tenantID, year, month))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("No closing for %04d-%02d", year, month), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve closing", err)
	}
	return closing, nil
}

func (d Datasource) ListClosings(ctx context.Context, tenantID string) ([]model.MonthlyClosing, error) {
	ctx, span := tracer.Start(ctx, "Listing closings from db")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+closingColumns+`
		FROM cashbook_monthly_closings
		WHERE tenant_id = $1
		ORDER BY year DESC, month DESC
	`, tenantID)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve closings", err)
	}
	defer rows.Close()

	closings := []model.MonthlyClosing{}
	for rows.Next() {
		c, err := scanClosing(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan closing data", err)
		}
		closings = append(closings, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over closings", err)
	}
	return closings, nil
}

func (d Datasource) IsPeriodFinalized(ctx context.Context, tenantID string, year, month int) (bool, error) {
	return isPeriodFinalized(ctx, d.Conn, tenantID, year, month)
}
