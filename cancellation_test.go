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
	"testing"

	"github.com/blnkfinance/cashbook/internal/apierror"
	"github.com/blnkfinance/cashbook/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cancel(c *Cashbook, entryID, reason string) (*CancellationResult, error) {
	return c.CancelEntry(context.Background(), CancelEntryRequest{
		TenantID:    testTenant,
		EntryID:     entryID,
		Reason:      reason,
		CancelledBy: "user_2",
	})
}

func TestCancelEntry_BooksReversal(t *testing.T) {
	ctx := context.Background()
	c, _ := newMemoryCashbook(t)
	record(t, c, "2024-06-01", model.DocumentTypeIncome, "300.00")

	original, err := c.RecordEntry(ctx, RecordEntryRequest{
		TenantID:     testTenant,
		EntryDate:    day("2024-06-03"),
		DocumentType: model.DocumentTypeExpense,
		Amount:       dec("119.00"),
		VatRate:      19,
		Description:  "Werkzeug",
		ReceiptID:    "rcpt_9",
		Force:        true,
	})
	require.NoError(t, err)

	result, err := cancel(c, original.EntryID, "  Falsch erfasst ")
	require.NoError(t, err)

	reversal := result.Reversal
	assert.Equal(t, int64(3), reversal.DocumentNumber)
	assert.Equal(t, model.DocumentTypeIncome, reversal.DocumentType)
	assert.True(t, dec("119.00").Equal(reversal.Amount))
	assert.True(t, dec("100.00").Equal(reversal.NetAmount))
	assert.True(t, dec("19.00").Equal(reversal.VatAmount))
	assert.Equal(t, original.EntryID, reversal.ReversesEntryID)
	assert.Equal(t, "rcpt_9", reversal.ReceiptID)
	assert.Equal(t, "REVERSAL: Werkzeug (Beleg-Nr. 2)", reversal.Description)
	assert.Equal(t, "REVERSAL-2", reversal.Reference)
	assert.Equal(t, day("2024-06-15"), reversal.EntryDate)
	assert.Equal(t, original.Hash, reversal.PreviousHash)
	assert.Equal(t, "user_2", reversal.CreatedBy)
	assert.True(t, reversal.IsReversal())

	assert.True(t, result.Original.IsCancelled)
	assert.Equal(t, "Falsch erfasst", result.Original.CancellationReason)
	assert.Equal(t, "user_2", result.Original.CancelledBy)
	require.NotNil(t, result.Original.CancelledAt)

	// the original keeps its hash and the chain stays intact
	assert.Equal(t, original.Hash, result.Original.Hash)
	verification, err := c.VerifyChain(ctx, testTenant)
	require.NoError(t, err)
	assert.True(t, verification.IsValid)
	assert.Equal(t, 3, verification.TotalEntries)

	balance, err := c.GetCurrentBalance(ctx, testTenant)
	require.NoError(t, err)
	assert.True(t, dec("300.00").Equal(balance))

	all, err := c.ListEntries(ctx, testTenant, model.EntryFilter{IncludeCancelled: true})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCancelEntry_Twice(t *testing.T) {
	c, _ := newMemoryCashbook(t)
	entry := record(t, c, "2024-06-01", model.DocumentTypeIncome, "10.00")

	_, err := cancel(c, entry.EntryID, "Tippfehler")
	require.NoError(t, err)

	_, err = cancel(c, entry.EntryID, "Tippfehler")
	assertCode(t, err, apierror.ErrConflict)

	balance, err := c.GetCurrentBalance(context.Background(), testTenant)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestCancelEntry_ReversalCannotBeCancelled(t *testing.T) {
	c, _ := newMemoryCashbook(t)
	entry := record(t, c, "2024-06-01", model.DocumentTypeIncome, "10.00")

	result, err := cancel(c, entry.EntryID, "Tippfehler")
	require.NoError(t, err)

	_, err = cancel(c, result.Reversal.EntryID, "Storno vom Storno")
	assertCode(t, err, apierror.ErrBusinessRule)
}

func TestCancelEntry_Validation(t *testing.T) {
	c, _ := newMemoryCashbook(t)
	entry := record(t, c, "2024-06-01", model.DocumentTypeIncome, "10.00")

	_, err := cancel(c, entry.EntryID, "   ")
	assertCode(t, err, apierror.ErrInvalidInput)

	_, err = cancel(c, entry.EntryID, "Falsch\xff")
	assertCode(t, err, apierror.ErrInvalidInput)

	_, err = cancel(c, "", "Tippfehler")
	assertCode(t, err, apierror.ErrInvalidInput)

	_, err = cancel(c, "cbe_missing", "Tippfehler")
	assertCode(t, err, apierror.ErrNotFound)
}

func TestCancelEntry_IncomeReversalRespectsBalance(t *testing.T) {
	ctx := context.Background()
	c, _ := newMemoryCashbook(t)
	income := record(t, c, "2024-06-01", model.DocumentTypeIncome, "100.00")
	record(t, c, "2024-06-02", model.DocumentTypeExpense, "80.00")

	_, err := cancel(c, income.EntryID, "Doppelt gebucht")
	assertCode(t, err, apierror.ErrBusinessRule)

	stored, err := c.GetEntry(ctx, testTenant, income.EntryID)
	require.NoError(t, err)
	assert.False(t, stored.IsCancelled)

	entries, err := c.ListEntries(ctx, testTenant, model.EntryFilter{IncludeCancelled: true})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestCancelEntry_OriginalInFinalizedPeriod(t *testing.T) {
	ctx := context.Background()
	c, _ := newMemoryCashbook(t)
	entry := record(t, c, "2024-05-10", model.DocumentTypeIncome, "40.00")
	finalizeMonth(t, c, 2024, 5, "40.00", "")

	// the reversal is booked in June, so a closed May does not block it
	result, err := cancel(c, entry.EntryID, "Falscher Betrag")
	require.NoError(t, err)
	assert.Equal(t, 6, int(result.Reversal.EntryDate.Month()))

	balance, err := c.GetCurrentBalance(ctx, testTenant)
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), fmt.Sprintf("balance %s", balance))
}
