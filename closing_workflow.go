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
	"sync"

	"github.com/blnkfinance/cashbook/internal/apierror"
	"github.com/blnkfinance/cashbook/model"
	"github.com/shopspring/decimal"
)

type WorkflowState string

const (
	WorkflowSelectingPeriod WorkflowState = "selecting_period"
	WorkflowCountingCash    WorkflowState = "counting_cash"
	WorkflowReviewing       WorkflowState = "reviewing"
	WorkflowFinalized       WorkflowState = "finalized"
)

// ClosingWorkflow walks one user through a monthly closing:
// selecting_period -> counting_cash -> reviewing (draft persisted) -> finalized.
// A recount from reviewing returns to reviewing with the draft updated.
type ClosingWorkflow struct {
	mu       sync.Mutex
	cashbook *Cashbook
	tenantID string
	userID   string
	state    WorkflowState
	year     int
	month    int
	closing  *model.MonthlyClosing
}

func (c *Cashbook) NewClosingWorkflow(tenantID, userID string) *ClosingWorkflow {
	return &ClosingWorkflow{
		cashbook: c,
		tenantID: tenantID,
		userID:   userID,
		state:    WorkflowSelectingPeriod,
	}
}

// ResumeClosingWorkflow picks up a stored closing: a draft resumes in reviewing,
// a finalized closing in finalized.
func (c *Cashbook) ResumeClosingWorkflow(ctx context.Context, tenantID, userID, closingID string) (*ClosingWorkflow, error) {
	closing, err := c.GetClosing(ctx, tenantID, closingID)
	if err != nil {
		return nil, err
	}
	w := c.NewClosingWorkflow(tenantID, userID)
	w.year, w.month = closing.Year, closing.Month
	w.closing = closing
	w.state = WorkflowReviewing
	if closing.IsFinalized() {
		w.state = WorkflowFinalized
	}
	return w, nil
}

func (w *ClosingWorkflow) State() WorkflowState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Closing is the persisted draft or finalized closing. It is nil until a count was submitted,
// unless the selected period already had an open draft.
func (w *ClosingWorkflow) Closing() *model.MonthlyClosing {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closing
}

func (w *ClosingWorkflow) expect(action string, allowed ...WorkflowState) error {
	for _, s := range allowed {
		if w.state == s {
			return nil
		}
	}
	return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Cannot %s while the closing is %s", action, w.state), nil)
}

// SelectPeriod chooses the month to close. The period may be changed until cash is counted.
func (w *ClosingWorkflow) SelectPeriod(ctx context.Context, year, month int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.expect("select a period", WorkflowSelectingPeriod, WorkflowCountingCash); err != nil {
		return err
	}
	if err := w.cashbook.validateClosingPeriod(w.tenantID, year, month); err != nil {
		return err
	}
	existing, err := w.cashbook.datasource.GetClosingByPeriod(ctx, w.tenantID, year, month)
	if err != nil && !apierror.Is(err, apierror.ErrNotFound) {
		return err
	}
	if existing != nil && existing.IsFinalized() {
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Closing for %04d-%02d is already finalized", year, month), nil)
	}

	// an open draft for the period is recounted, not duplicated
	w.year, w.month = year, month
	w.closing = existing
	w.state = WorkflowCountingCash
	return nil
}

// SubmitCount records the physical cash count and persists the draft for review.
func (w *ClosingWorkflow) SubmitCount(ctx context.Context, counted *decimal.Decimal, denominations map[string]int64, notes string) (*model.MonthlyClosing, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.expect("submit a cash count", WorkflowCountingCash, WorkflowReviewing); err != nil {
		return nil, err
	}
	closing, err := w.cashbook.CreateMonthlyClosing(ctx, CreateClosingRequest{
		TenantID:       w.tenantID,
		Year:           w.year,
		Month:          w.month,
		CountedBalance: counted,
		Denominations:  denominations,
		Notes:          notes,
		CreatedBy:      w.userID,
	})
	if err != nil {
		return nil, err
	}

	w.closing = closing
	w.state = WorkflowReviewing
	return closing, nil
}

// Finalize seals the reviewed draft. On failure the workflow stays in reviewing so the
// explanation can be supplied or the cash recounted.
func (w *ClosingWorkflow) Finalize(ctx context.Context, differenceExplanation string) (*model.MonthlyClosing, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.expect("finalize", WorkflowReviewing); err != nil {
		return nil, err
	}
	closing, err := w.cashbook.FinalizeMonthlyClosing(ctx, FinalizeClosingRequest{
		TenantID:              w.tenantID,
		ClosingID:             w.closing.ClosingID,
		DifferenceExplanation: differenceExplanation,
		FinalizedBy:           w.userID,
	})
	if err != nil {
		return nil, err
	}

	w.closing = closing
	w.state = WorkflowFinalized
	return closing, nil
}
