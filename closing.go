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

type CreateClosingRequest struct {
	TenantID       string           `json:"tenant_id"`
	Year           int              `json:"year"`
	Month          int              `json:"month"`
	CountedBalance *decimal.Decimal `json:"counted_balance"`
	Denominations  map[string]int64 `json:"denominations"`
	Notes          string           `json:"notes"`
	CreatedBy      string           `json:"created_by"`
}

type FinalizeClosingRequest struct {
	TenantID              string `json:"tenant_id"`
	ClosingID             string `json:"closing_id"`
	DifferenceExplanation string `json:"difference_explanation"`
	FinalizedBy           string `json:"finalized_by"`
}

// countedBalance validates the counted cash and resolves it against the denomination breakdown.
func (r *CreateClosingRequest) countedBalance() (decimal.Decimal, map[string]int64, error) {
	denominations, err := model.NormalizeDenominations(r.Denominations)
	if err != nil {
		return decimal.Zero, nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), map[string]string{"denominations": err.Error()})
	}

	if r.CountedBalance == nil {
		if denominations == nil {
			return decimal.Zero, nil, apierror.NewAPIError(apierror.ErrInvalidInput,
				"counted_balance or denominations is required", map[string]string{"counted_balance": "cannot be blank"})
		}
		return model.DenominationTotal(denominations), denominations, nil
	}

	counted := *r.CountedBalance
	if err := currencyAmount(counted); err != nil {
		return decimal.Zero, nil, apierror.NewAPIError(apierror.ErrInvalidInput, "counted_balance: "+err.Error(), map[string]string{"counted_balance": err.Error()})
	}
	if counted.IsNegative() {
		return decimal.Zero, nil, apierror.NewAPIError(apierror.ErrInvalidInput, "counted_balance: must not be negative", map[string]string{"counted_balance": "must not be negative"})
	}
	if denominations != nil {
		total := model.DenominationTotal(denominations)
		if counted.Sub(total).Abs().GreaterThan(model.BalanceEpsilon) {
			msg := fmt.Sprintf("denominations add up to %s, not the counted balance of %s", model.FormatAmount(total), model.FormatAmount(counted))
			return decimal.Zero, nil, apierror.NewAPIError(apierror.ErrInvalidInput, msg, map[string]string{"denominations": msg})
		}
	}
	return counted, denominations, nil
}

func (c *Cashbook) validateClosingPeriod(tenantID string, year, month int) error {
	err := validation.Errors{
		"tenant_id": validation.Validate(tenantID, validation.Required),
		"year":      validation.Validate(year, validation.Required, validation.Min(2000), validation.Max(9999)),
		"month":     validation.Validate(month, validation.Required, validation.Min(1), validation.Max(12)),
	}.Filter()
	if err != nil {
		return invalidInput(err)
	}

	start, _ := model.PeriodBounds(year, month)
	if start.After(c.today()) {
		return apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Period %04d-%02d lies in the future", year, month), nil)
	}
	return nil
}

// CreateMonthlyClosing computes the period totals and stores them as the draft closing of the
// month. Re-running it updates the same draft; a finalized period is rejected.
func (c *Cashbook) CreateMonthlyClosing(ctx context.Context, req CreateClosingRequest) (*model.MonthlyClosing, error) {
	ctx, span := tracer.Start(ctx, "CreateMonthlyClosing")
	defer span.End()

	if err := c.validateClosingPeriod(req.TenantID, req.Year, req.Month); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := validation.Validate(req.Notes, validUTF8); err != nil {
		err = apierror.NewAPIError(apierror.ErrInvalidInput, "notes: "+err.Error(), map[string]string{"notes": err.Error()})
		span.RecordError(err)
		return nil, err
	}
	counted, denominations, err := req.countedBalance()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("tenant.id", req.TenantID),
		attribute.String("closing.period", fmt.Sprintf("%04d-%02d", req.Year, req.Month)),
	)

	now := c.now().UTC()
	draft := &model.MonthlyClosing{
		TenantID:            req.TenantID,
		Year:                req.Year,
		Month:               req.Month,
		Status:              model.ClosingStatusDraft,
		CountedBalance:      counted,
		DenominationDetails: denominations,
		Notes:               strings.TrimSpace(req.Notes),
		CreatedBy:           req.CreatedBy,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	closing, err := c.datasource.SaveClosingDraft(ctx, draft)
	if err != nil {
		return nil, logAndRecordError(span, "failed to save closing draft: ", err)
	}

	logrus.WithFields(logrus.Fields{
		"tenant_id":  closing.TenantID,
		"closing_id": closing.ClosingID,
		"difference": model.FormatAmount(closing.Difference),
	}).Info("monthly closing drafted")
	c.emit(EventClosingDrafted, closing.Summary())

	return closing, nil
}

// FinalizeMonthlyClosing seals a draft. An explanation is required when the counted balance
// differs from the calculated one by more than a cent, and the ledger must not have changed
// since the draft was computed.
func (c *Cashbook) FinalizeMonthlyClosing(ctx context.Context, req FinalizeClosingRequest) (*model.MonthlyClosing, error) {
	ctx, span := tracer.Start(ctx, "FinalizeMonthlyClosing")
	defer span.End()

	err := validation.Errors{
		"tenant_id":              validation.Validate(req.TenantID, validation.Required),
		"closing_id":             validation.Validate(req.ClosingID, validation.Required),
		"difference_explanation": validation.Validate(req.DifferenceExplanation, validUTF8),
	}.Filter()
	if err != nil {
		err = invalidInput(err)
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("tenant.id", req.TenantID), attribute.String("closing.id", req.ClosingID))

	closing, err := c.datasource.FinalizeClosing(ctx, req.TenantID, req.ClosingID, c.sealClosing(req))
	if err != nil {
		return nil, logAndRecordError(span, "failed to finalize closing: ", err)
	}

	logrus.WithFields(logrus.Fields{
		"tenant_id":  closing.TenantID,
		"closing_id": closing.ClosingID,
		"seal_hash":  closing.SealHash,
	}).Info("monthly closing finalized")
	c.emit(EventClosingFinalized, closing)

	return closing, nil
}

// sealClosing runs inside the finalizing transaction with totals and chain tip read there.
func (c *Cashbook) sealClosing(req FinalizeClosingRequest) database.FinalizeFunc {
	return func(closing *model.MonthlyClosing, totals model.PeriodTotals, chainTip string) error {
		if closing.IsFinalized() {
			return apierror.NewAPIError(apierror.ErrConflict, "Closing is already finalized", nil)
		}
		if !closing.Totals().Equal(totals) {
			return apierror.NewAPIError(apierror.ErrConflict,
				"Ledger changed since the draft was computed, re-run the closing before finalizing", totals)
		}

		explanation := strings.TrimSpace(req.DifferenceExplanation)
		if closing.RequiresExplanation() && explanation == "" {
			return apierror.NewAPIError(apierror.ErrInvalidInput,
				fmt.Sprintf("A difference explanation is required for a difference of %s", model.FormatAmount(closing.Difference)),
				map[string]string{"difference_explanation": "cannot be blank"})
		}

		finalizedAt := model.CanonicalTimestamp(c.now())
		closing.Status = model.ClosingStatusFinalized
		closing.DifferenceExplanation = explanation
		closing.ChainTipHash = chainTip
		closing.FinalizedBy = req.FinalizedBy
		closing.FinalizedAt = &finalizedAt
		closing.UpdatedAt = finalizedAt

		seal, err := closing.ComputeSeal()
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to seal closing", err)
		}
		closing.SealHash = seal
		return nil
	}
}

// finalizedCacheTTL bounds how long finalized closings and periods stay in the cache.
const finalizedCacheTTL = 24 * time.Hour

func closingCacheKey(tenantID, closingID string) string {
	return fmt.Sprintf("cashbook:closing:%s:%s", tenantID, closingID)
}

func finalizedPeriodCacheKey(tenantID string, year, month int) string {
	return fmt.Sprintf("cashbook:finalized-period:%s:%04d-%02d", tenantID, year, month)
}

// GetClosing retrieves a closing by its ID. Finalized closings never change and are served from
// the cache when redis is configured.
func (c *Cashbook) GetClosing(ctx context.Context, tenantID, closingID string) (*model.MonthlyClosing, error) {
	ctx, span := tracer.Start(ctx, "GetClosing")
	defer span.End()

	key := closingCacheKey(tenantID, closingID)
	if c.cache != nil {
		var cached model.MonthlyClosing
		if err := c.cache.Get(ctx, key, &cached); err != nil {
			logrus.WithField("key", key).Warn("closing cache read failed: ", err)
		} else if cached.ClosingID != "" {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return &cached, nil
		}
	}

	closing, err := c.datasource.GetClosing(ctx, tenantID, closingID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if c.cache != nil && closing.IsFinalized() {
		if err := c.cache.Set(ctx, key, closing, finalizedCacheTTL); err != nil {
			logrus.WithField("key", key).Warn("closing cache write failed: ", err)
		}
	}
	return closing, nil
}

// isPeriodFinalized answers from the cache once a period is known to be finalized. Open
// periods are always read from the store.
func (c *Cashbook) isPeriodFinalized(ctx context.Context, tenantID string, year, month int) (bool, error) {
	key := finalizedPeriodCacheKey(tenantID, year, month)
	if c.cache != nil {
		var finalized bool
		if err := c.cache.Get(ctx, key, &finalized); err != nil {
			logrus.WithField("key", key).Warn("period cache read failed: ", err)
		} else if finalized {
			return true, nil
		}
	}

	finalized, err := c.datasource.IsPeriodFinalized(ctx, tenantID, year, month)
	if err != nil {
		return false, err
	}
	if c.cache != nil && finalized {
		if err := c.cache.Set(ctx, key, true, finalizedCacheTTL); err != nil {
			logrus.WithField("key", key).Warn("period cache write failed: ", err)
		}
	}
	return finalized, nil
}

// ListClosings returns the tenant's closings, latest period first.
func (c *Cashbook) ListClosings(ctx context.Context, tenantID string) ([]model.MonthlyClosing, error) {
	ctx, span := tracer.Start(ctx, "ListClosings")
	defer span.End()

	closings, err := c.datasource.ListClosings(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return closings, nil
}

// VerifyClosingSeal recomputes the seal of a finalized closing and checks that the chain tip it
// was sealed against is still part of the tenant's chain.
func (c *Cashbook) VerifyClosingSeal(ctx context.Context, tenantID, closingID string) (*model.SealVerification, error) {
	ctx, span := tracer.Start(ctx, "VerifyClosingSeal")
	defer span.End()

	closing, err := c.datasource.GetClosing(ctx, tenantID, closingID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !closing.IsFinalized() {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest, "Only finalized closings carry a seal", nil)
	}

	computed, err := closing.ComputeSeal()
	if err != nil {
		return nil, logAndRecordError(span, "failed to compute seal: ", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to compute seal", err))
	}

	found := closing.ChainTipHash == model.GenesisHash
	if !found {
		entries, err := c.datasource.GetEntriesForChain(ctx, tenantID)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		for i := range entries {
			if entries[i].Hash == closing.ChainTipHash {
				found = true
				break
			}
		}
	}

	return &model.SealVerification{
		ClosingID:     closing.ClosingID,
		IsValid:       computed == closing.SealHash && found,
		StoredSeal:    closing.SealHash,
		ComputedSeal:  computed,
		ChainTipHash:  closing.ChainTipHash,
		ChainTipFound: found,
	}, nil
}

// CanDeleteReceipt tells the receipt store whether a stored receipt may be removed. A receipt
// referenced by any entry, cancelled or not, in a finalized period must be kept.
func (c *Cashbook) CanDeleteReceipt(ctx context.Context, tenantID, receiptID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "CanDeleteReceipt")
	defer span.End()

	if strings.TrimSpace(receiptID) == "" {
		return false, apierror.NewAPIError(apierror.ErrInvalidInput, "receipt_id is required", nil)
	}

	entries, err := c.datasource.ListEntries(ctx, tenantID, model.EntryFilter{ReceiptID: receiptID, IncludeCancelled: true})
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	for _, e := range entries {
		finalized, err := c.isPeriodFinalized(ctx, tenantID, e.EntryDate.Year(), int(e.EntryDate.Month()))
		if err != nil {
			span.RecordError(err)
			return false, err
		}
		if finalized {
			return false, nil
		}
	}
	return true, nil
}
