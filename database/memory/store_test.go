package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/blnkfinance/cashbook/internal/apierror"
	"github.com/blnkfinance/cashbook/model"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var may2 = time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

func builder(t *testing.T, date time.Time, documentType model.DocumentType, amount string) func(head model.ChainHead) (*model.Entry, error) {
	return func(head model.ChainHead) (*model.Entry, error) {
		signed := decimal.RequireFromString(amount)
		e := &model.Entry{
			TenantID:       head.TenantID,
			EntryDate:      date,
			DocumentNumber: head.NextDocumentNumber(),
			DocumentType:   documentType,
			Amount:         signed,
			NetAmount:      signed,
			VatAmount:      decimal.Zero,
			Description:    gofakeit.Sentence(3),
			CashBalance:    head.Balance.Add(signed),
			PreviousHash:   head.LastHash,
			CreatedAt:      time.Now(),
		}
		hash, err := e.ComputeHash()
		if err != nil {
			return nil, err
		}
		e.Hash = hash
		return e, nil
	}
}

func TestAppendEntry_ChainsEntries(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	first, err := store.AppendEntry(ctx, "tenant_1", builder(t, may2, model.DocumentTypeOpeningBalance, "100"))
	require.NoError(t, err)
	second, err := store.AppendEntry(ctx, "tenant_1", builder(t, may2, model.DocumentTypeExpense, "-40"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.DocumentNumber)
	assert.Equal(t, model.GenesisHash, first.PreviousHash)
	assert.Equal(t, int64(2), second.DocumentNumber)
	assert.Equal(t, first.Hash, second.PreviousHash)
	assert.NotEmpty(t, second.EntryID)

	balance, err := store.GetCurrentBalance(ctx, "tenant_1")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(60).Equal(balance))

	hash, err := store.GetLastEntryHash(ctx, "tenant_1")
	require.NoError(t, err)
	assert.Equal(t, second.Hash, hash)

	next, err := store.GetNextDocumentNumber(ctx, "tenant_1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), next)
}

func TestAppendEntry_RejectsNegativeBalance(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_, err := store.AppendEntry(ctx, "tenant_1", builder(t, may2, model.DocumentTypeExpense, "-0.01"))
	assert.True(t, apierror.Is(err, apierror.ErrBusinessRule))

	entries, err := store.GetEntriesForChain(ctx, "tenant_1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAppendEntry_RejectsForgedLink(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_, err := store.AppendEntry(ctx, "tenant_1", func(head model.ChainHead) (*model.Entry, error) {
		head.LastDocumentNumber = 41
		return builder(t, may2, model.DocumentTypeIncome, "10")(head)
	})
	assert.True(t, apierror.Is(err, apierror.ErrConflict))
}

func TestAppendEntry_ConcurrentWritersStayGapless(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	const writers = 25
	var wg sync.WaitGroup
	errs := make(chan error, writers*2)
	for i := 0; i < writers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := store.AppendEntry(ctx, "tenant_a", builder(t, may2, model.DocumentTypeIncome, "1.50"))
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := store.AppendEntry(ctx, "tenant_b", builder(t, may2, model.DocumentTypeIncome, "2"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for _, tenant := range []string{"tenant_a", "tenant_b"} {
		entries, err := store.GetEntriesForChain(ctx, tenant)
		require.NoError(t, err)
		require.Len(t, entries, writers)
		for i, e := range entries {
			assert.Equal(t, int64(i+1), e.DocumentNumber)
		}
		result := model.VerifyChain(entries)
		assert.True(t, result.IsValid, tenant)
		assert.Equal(t, writers, result.VerifiedEntries)
	}

	balance, err := store.GetCurrentBalance(ctx, "tenant_a")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("37.50").Equal(balance))
}

func reverse(t *testing.T) func(head model.ChainHead, original *model.Entry) (*model.Entry, error) {
	return func(head model.ChainHead, original *model.Entry) (*model.Entry, error) {
		e, err := builder(t, may2, original.DocumentType.Reversed(), original.Amount.Neg().String())(head)
		if err != nil {
			return nil, err
		}
		e.ReversesEntryID = original.EntryID
		return e, nil
	}
}

func TestCancelEntry_AppendsReversalAndFlagsOriginal(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	original, err := store.AppendEntry(ctx, "tenant_1", builder(t, may2, model.DocumentTypeIncome, "25"))
	require.NoError(t, err)

	cancellation := model.Cancellation{CancelledAt: time.Now(), CancelledBy: "user_1", Reason: "Doppelt erfasst"}
	reversal, cancelled, err := store.CancelEntry(ctx, "tenant_1", original.EntryID, cancellation, reverse(t))
	require.NoError(t, err)

	assert.Equal(t, original.EntryID, reversal.ReversesEntryID)
	assert.True(t, cancelled.IsCancelled)
	require.NotNil(t, cancelled.CancelledAt)

	entries, err := store.GetEntriesForChain(ctx, "tenant_1")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.True(t, model.VerifyChain(entries).IsValid)

	_, _, err = store.CancelEntry(ctx, "tenant_1", original.EntryID, cancellation, reverse(t))
	assert.True(t, apierror.Is(err, apierror.ErrConflict))

	_, _, err = store.CancelEntry(ctx, "tenant_1", reversal.EntryID, cancellation, reverse(t))
	assert.True(t, apierror.Is(err, apierror.ErrBusinessRule))
}

func TestCancelEntry_FailedReversalLeavesOriginalUntouched(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	original, err := store.AppendEntry(ctx, "tenant_1", builder(t, may2, model.DocumentTypeIncome, "25"))
	require.NoError(t, err)

	boom := errors.New("boom")
	_, _, err = store.CancelEntry(ctx, "tenant_1", original.EntryID,
		model.Cancellation{CancelledAt: time.Now(), Reason: "x"},
		func(head model.ChainHead, _ *model.Entry) (*model.Entry, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	stored, err := store.GetEntry(ctx, "tenant_1", original.EntryID)
	require.NoError(t, err)
	assert.False(t, stored.IsCancelled)

	entries, err := store.GetEntriesForChain(ctx, "tenant_1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestListEntries_Filters(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		date := time.Date(2024, 5, i, 0, 0, 0, 0, time.UTC)
		_, err := store.AppendEntry(ctx, "tenant_1", func(head model.ChainHead) (*model.Entry, error) {
			e, err := builder(t, date, model.DocumentTypeIncome, "10")(head)
			if err != nil {
				return nil, err
			}
			e.Description = fmt.Sprintf("Verkauf %d", i)
			hash, err := e.ComputeHash()
			e.Hash = hash
			return e, err
		})
		require.NoError(t, err)
	}

	from := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC)
	entries, err := store.ListEntries(ctx, "tenant_1", model.EntryFilter{From: &from, To: &to})
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	entries, err = store.ListEntries(ctx, "tenant_1", model.EntryFilter{Search: "verkauf 5"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(5), entries[0].DocumentNumber)

	entries, err = store.ListEntries(ctx, "tenant_1", model.EntryFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(2), entries[0].DocumentNumber)

	window, err := store.GetEntriesInDateRange(ctx, "tenant_1", from, from)
	require.NoError(t, err)
	assert.Len(t, window, 1)
}

func TestReturnedEntriesAreCopies(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	e, err := store.AppendEntry(ctx, "tenant_1", builder(t, may2, model.DocumentTypeIncome, "10"))
	require.NoError(t, err)
	e.Description = "mutated by caller"

	stored, err := store.GetEntry(ctx, "tenant_1", e.EntryID)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated by caller", stored.Description)
}

func TestTamper_EditsStoredEntryInPlace(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	e, err := store.AppendEntry(ctx, "tenant_1", builder(t, may2, model.DocumentTypeIncome, "10"))
	require.NoError(t, err)

	require.True(t, store.Tamper("tenant_1", e.EntryID, func(stored *model.Entry) { stored.Description = "altered" }))
	stored, err := store.GetEntry(ctx, "tenant_1", e.EntryID)
	require.NoError(t, err)
	assert.Equal(t, "altered", stored.Description)
	assert.Equal(t, e.Hash, stored.Hash)

	assert.False(t, store.Tamper("tenant_1", "ent_missing", func(*model.Entry) {}))
	assert.False(t, store.Tamper("tenant_2", e.EntryID, func(*model.Entry) {}))
}

func TestClosingLifecycle(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_, err := store.AppendEntry(ctx, "tenant_1", builder(t, time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), model.DocumentTypeOpeningBalance, "1000"))
	require.NoError(t, err)
	_, err = store.AppendEntry(ctx, "tenant_1", builder(t, may2, model.DocumentTypeIncome, "500"))
	require.NoError(t, err)
	_, err = store.AppendEntry(ctx, "tenant_1", builder(t, may2, model.DocumentTypeExpense, "-200"))
	require.NoError(t, err)

	draft, err := store.SaveClosingDraft(ctx, &model.MonthlyClosing{
		TenantID: "tenant_1", Year: 2024, Month: 5, CountedBalance: decimal.NewFromInt(1295),
	})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1300).Equal(draft.CalculatedBalance))
	assert.True(t, decimal.NewFromInt(-5).Equal(draft.Difference))

	again, err := store.SaveClosingDraft(ctx, &model.MonthlyClosing{
		TenantID: "tenant_1", Year: 2024, Month: 5, CountedBalance: decimal.NewFromInt(1300),
	})
	require.NoError(t, err)
	assert.Equal(t, draft.ClosingID, again.ClosingID)
	closings, err := store.ListClosings(ctx, "tenant_1")
	require.NoError(t, err)
	assert.Len(t, closings, 1)

	tip, err := store.GetLastEntryHash(ctx, "tenant_1")
	require.NoError(t, err)
	sealed, err := store.FinalizeClosing(ctx, "tenant_1", draft.ClosingID,
		func(c *model.MonthlyClosing, totals model.PeriodTotals, chainTip string) error {
			assert.Equal(t, tip, chainTip)
			now := time.Now()
			c.Status = model.ClosingStatusFinalized
			c.FinalizedAt = &now
			c.ChainTipHash = chainTip
			c.Notes = "ignored"
			seal, err := c.ComputeSeal()
			c.SealHash = seal
			return err
		})
	require.NoError(t, err)
	assert.True(t, sealed.IsFinalized())
	assert.Empty(t, sealed.Notes)

	byPeriod, err := store.GetClosingByPeriod(ctx, "tenant_1", 2024, 5)
	require.NoError(t, err)
	assert.Equal(t, draft.ClosingID, byPeriod.ClosingID)
	assert.True(t, byPeriod.IsFinalized())
	_, err = store.GetClosingByPeriod(ctx, "tenant_1", 2024, 4)
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))

	finalized, err := store.IsPeriodFinalized(ctx, "tenant_1", 2024, 5)
	require.NoError(t, err)
	assert.True(t, finalized)

	_, err = store.SaveClosingDraft(ctx, &model.MonthlyClosing{TenantID: "tenant_1", Year: 2024, Month: 5})
	assert.True(t, apierror.Is(err, apierror.ErrConflict))

	_, err = store.AppendEntry(ctx, "tenant_1", builder(t, may2, model.DocumentTypeIncome, "1"))
	assert.True(t, apierror.Is(err, apierror.ErrBusinessRule))

	_, err = store.AppendEntry(ctx, "tenant_1", builder(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), model.DocumentTypeIncome, "1"))
	assert.NoError(t, err)
}
