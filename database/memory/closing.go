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

package memory

import (
	"context"
	"fmt"

	"github.com/blnkfinance/cashbook/database"
	"github.com/blnkfinance/cashbook/internal/apierror"
	"github.com/blnkfinance/cashbook/model"
)

func copyClosing(c *model.MonthlyClosing) *model.MonthlyClosing {
	out := *c
	if c.DenominationDetails != nil {
		out.DenominationDetails = make(map[string]int64, len(c.DenominationDetails))
		for face, quantity := range c.DenominationDetails {
			out.DenominationDetails[face] = quantity
		}
	}
	if c.FinalizedAt != nil {
		t := *c.FinalizedAt
		out.FinalizedAt = &t
	}
	return &out
}

func (s *Store) SaveClosingDraft(ctx context.Context, draft *model.MonthlyClosing) (*model.MonthlyClosing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := s.book(draft.TenantID)
	b.mu.Lock()
	defer b.mu.Unlock()

	key := period{draft.Year, draft.Month}
	var existing *model.MonthlyClosing
	if id, ok := b.periods[key]; ok {
		existing = b.closings[id]
	}
	if existing != nil && existing.IsFinalized() {
		return nil, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Closing for %04d-%02d is already finalized", draft.Year, draft.Month), nil)
	}

	saved := copyClosing(draft)
	saved.ApplyTotals(model.ComputePeriodTotals(b.entries, draft.Year, draft.Month))
	saved.Status = model.ClosingStatusDraft
	if existing != nil {
		saved.ID = existing.ID
		saved.ClosingID = existing.ClosingID
		saved.CreatedAt = existing.CreatedAt
		saved.CreatedBy = existing.CreatedBy
	} else {
		saved.ID = s.nextRowID()
		if saved.ClosingID == "" {
			saved.ClosingID = model.GenerateUUIDWithSuffix("cls")
		}
	}

	b.closings[saved.ClosingID] = saved
	b.periods[key] = saved.ClosingID
	return copyClosing(saved), nil
}

func (s *Store) FinalizeClosing(ctx context.Context, tenantID, closingID string, finalize database.FinalizeFunc) (*model.MonthlyClosing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := s.book(tenantID)
	b.mu.Lock()
	defer b.mu.Unlock()

	current, ok := b.closings[closingID]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Closing with ID '%s' not found", closingID), nil)
	}
	if current.IsFinalized() {
		return nil, apierror.NewAPIError(apierror.ErrConflict, "Closing is already finalized", nil)
	}

	working := copyClosing(current)
	totals := model.ComputePeriodTotals(b.entries, working.Year, working.Month)
	if err := finalize(working, totals, b.head(tenantID).LastHash); err != nil {
		return nil, err
	}
	if !working.IsFinalized() || working.SealHash == "" {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Closing was not sealed", nil)
	}

	// only the finalization fields may change
	sealed := copyClosing(current)
	sealed.Status = working.Status
	sealed.DifferenceExplanation = working.DifferenceExplanation
	sealed.ChainTipHash = working.ChainTipHash
	sealed.SealHash = working.SealHash
	sealed.FinalizedBy = working.FinalizedBy
	sealed.FinalizedAt = working.FinalizedAt
	if working.FinalizedAt != nil {
		sealed.UpdatedAt = *working.FinalizedAt
	}

	b.closings[closingID] = sealed
	return copyClosing(sealed), nil
}

func (s *Store) GetClosing(_ context.Context, tenantID, closingID string) (*model.MonthlyClosing, error) {
	b := s.book(tenantID)
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.closings[closingID]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Closing with ID '%s' not found", closingID), nil)
	}
	return copyClosing(c), nil
}

func (s *Store) GetClosingByPeriod(_ context.Context, tenantID string, year, month int) (*model.MonthlyClosing, error) {
	b := s.book(tenantID)
	b.mu.Lock()
	defer b.mu.Unlock()

	id, ok := b.periods[period{year, month}]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("No closing for %04d-%02d", year, month), nil)
	}
	return copyClosing(b.closings[id]), nil
}

func (s *Store) ListClosings(_ context.Context, tenantID string) ([]model.MonthlyClosing, error) {
	b := s.book(tenantID)
	b.mu.Lock()
	defer b.mu.Unlock()

	closings := make([]model.MonthlyClosing, 0, len(b.closings))
	for _, c := range b.closings {
		closings = append(closings, *copyClosing(c))
	}
	sortClosings(closings)
	return closings, nil
}

func (s *Store) IsPeriodFinalized(_ context.Context, tenantID string, year, month int) (bool, error) {
	b := s.book(tenantID)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isFinalized(year, month), nil
}
