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
	"fmt"

	"github.com/blnkfinance/cashbook/internal/apierror"
	"github.com/blnkfinance/cashbook/model"
)

// ValidateAppend checks a built entry against the head the store itself locked.
// The store refuses any entry whose chain link or hash it cannot reproduce.
func ValidateAppend(head model.ChainHead, tenantID string, e *model.Entry) error {
	if e == nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "No entry to append", nil)
	}
	if e.TenantID != tenantID {
		return apierror.NewAPIError(apierror.ErrBadRequest, "Entry belongs to a different tenant", nil)
	}
	if e.DocumentNumber != head.NextDocumentNumber() {
		return apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Document number %d does not follow %d", e.DocumentNumber, head.LastDocumentNumber), nil)
	}
	if e.PreviousHash != head.LastHash {
		return apierror.NewAPIError(apierror.ErrConflict, "Previous hash does not match the chain tip", nil)
	}
	hash, err := e.ComputeHash()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "Entry cannot be hashed", err)
	}
	if hash != e.Hash {
		return apierror.NewAPIError(apierror.ErrConflict, "Entry hash does not match its content", nil)
	}
	if !e.CashBalance.Equal(head.Balance.Add(e.Amount)) {
		return apierror.NewAPIError(apierror.ErrConflict, "Cash balance does not follow the current balance", nil)
	}
	if e.DocumentType == model.DocumentTypeExpense && e.CashBalance.IsNegative() {
		return apierror.NewAPIError(apierror.ErrBusinessRule, "Expense would make the cash balance negative", nil)
	}
	return nil
}

// ValidateCancellation checks that original may still be reversed.
func ValidateCancellation(original *model.Entry, c model.Cancellation) error {
	if original.IsCancelled {
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Entry %d is already cancelled", original.DocumentNumber), nil)
	}
	if original.IsReversal() {
		return apierror.NewAPIError(apierror.ErrBusinessRule, "A reversal entry cannot be cancelled", nil)
	}
	if c.Reason == "" {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "Cancellation reason is required", nil)
	}
	return nil
}

// ValidateReversal checks that reversal exactly offsets original.
func ValidateReversal(original, reversal *model.Entry) error {
	if reversal.ReversesEntryID != original.EntryID {
		return apierror.NewAPIError(apierror.ErrBadRequest, "Reversal does not reference the cancelled entry", nil)
	}
	if !reversal.Amount.Equal(original.Amount.Neg()) {
		return apierror.NewAPIError(apierror.ErrBadRequest, "Reversal amount does not offset the cancelled entry", nil)
	}
	return nil
}

func periodFinalizedError(e *model.Entry) error {
	return apierror.NewAPIError(apierror.ErrBusinessRule,
		fmt.Sprintf("Period %s is closed and finalized", e.EntryDate.Format("2006-01")), nil)
}
