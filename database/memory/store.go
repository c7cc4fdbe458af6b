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

// Package memory is an in-process database.IDataSource. It keeps the Postgres store's
// guarantees: one writer per tenant, re-validated chain links, finalized periods closed to writes.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blnkfinance/cashbook/database"
	"github.com/blnkfinance/cashbook/internal/apierror"
	"github.com/blnkfinance/cashbook/model"
	"github.com/shopspring/decimal"
)

type period struct {
	year  int
	month int
}

// tenantBook is the complete state of one tenant, guarded by its own mutex.
type tenantBook struct {
	mu       sync.Mutex
	entries  []model.Entry
	byID     map[string]int
	closings map[string]*model.MonthlyClosing
	periods  map[period]string
}

type Store struct {
	mu      sync.Mutex
	tenants map[string]*tenantBook
	seq     int64
}

func NewStore() *Store {
	return &Store{tenants: make(map[string]*tenantBook)}
}

// book returns the tenant's state, creating it on first use.
func (s *Store) book(tenantID string) *tenantBook {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.tenants[tenantID]
	if !ok {
		b = &tenantBook{
			byID:     make(map[string]int),
			closings: make(map[string]*model.MonthlyClosing),
			periods:  make(map[period]string),
		}
		s.tenants[tenantID] = b
	}
	return b
}

func (s *Store) nextRowID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

func (b *tenantBook) head(tenantID string) model.ChainHead {
	head := model.ChainHead{TenantID: tenantID, LastHash: model.GenesisHash, Balance: decimal.Zero}
	if n := len(b.entries); n > 0 {
		head.LastDocumentNumber = b.entries[n-1].DocumentNumber
		head.LastHash = b.entries[n-1].Hash
	}
	head.Balance = b.balance()
	return head
}

func (b *tenantBook) balance() decimal.Decimal {
	total := decimal.Zero
	for i := range b.entries {
		total = total.Add(b.entries[i].Amount)
	}
	return total
}

func (b *tenantBook) isFinalized(year, month int) bool {
	id, ok := b.periods[period{year, month}]
	if !ok {
		return false
	}
	return b.closings[id].IsFinalized()
}

// appendLocked validates and stores the entry. The tenant mutex must be held.
func (s *Store) appendLocked(b *tenantBook, tenantID string, head model.ChainHead, e *model.Entry) (*model.Entry, error) {
	if err := database.ValidateAppend(head, tenantID, e); err != nil {
		return nil, err
	}
	if b.isFinalized(e.EntryDate.Year(), int(e.EntryDate.Month())) {
		return nil, apierror.NewAPIError(apierror.ErrBusinessRule,
			fmt.Sprintf("Period %s is closed and finalized", e.EntryDate.Format("2006-01")), nil)
	}
	if e.EntryID == "" {
		e.EntryID = model.GenerateUUIDWithSuffix("cbe")
	}
	if _, exists := b.byID[e.EntryID]; exists {
		return nil, apierror.NewAPIError(apierror.ErrConflict, "Entry with this ID already exists", nil)
	}

	stored := *e
	stored.ID = s.nextRowID()
	stored.CreatedAt = model.CanonicalTimestamp(stored.CreatedAt)
	b.entries = append(b.entries, stored)
	b.byID[stored.EntryID] = len(b.entries) - 1
	return copyEntry(stored), nil
}

func copyEntry(e model.Entry) *model.Entry {
	if e.CancelledAt != nil {
		t := *e.CancelledAt
		e.CancelledAt = &t
	}
	return &e
}

func (s *Store) AppendEntry(ctx context.Context, tenantID string, build database.AppendFunc) (*model.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := s.book(tenantID)
	b.mu.Lock()
	defer b.mu.Unlock()

	head := b.head(tenantID)
	e, err := build(head)
	if err != nil {
		return nil, err
	}
	return s.appendLocked(b, tenantID, head, e)
}

func (s *Store) CancelEntry(ctx context.Context, tenantID, entryID string, cancellation model.Cancellation, build database.ReversalFunc) (*model.Entry, *model.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	b := s.book(tenantID)
	b.mu.Lock()
	defer b.mu.Unlock()

	idx, ok := b.byID[entryID]
	if !ok {
		return nil, nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Entry with ID '%s' not found", entryID), nil)
	}
	original := copyEntry(b.entries[idx])
	if err := database.ValidateCancellation(original, cancellation); err != nil {
		return nil, nil, err
	}

	head := b.head(tenantID)
	reversal, err := build(head, original)
	if err != nil {
		return nil, nil, err
	}
	if err := database.ValidateReversal(original, reversal); err != nil {
		return nil, nil, err
	}
	stored, err := s.appendLocked(b, tenantID, head, reversal)
	if err != nil {
		return nil, nil, err
	}

	cancelledAt := model.CanonicalTimestamp(cancellation.CancelledAt)
	flagged := &b.entries[idx]
	flagged.IsCancelled = true
	flagged.CancelledAt = &cancelledAt
	flagged.CancelledBy = cancellation.CancelledBy
	flagged.CancellationReason = cancellation.Reason

	return stored, copyEntry(*flagged), nil
}

func (s *Store) GetEntry(_ context.Context, tenantID, entryID string) (*model.Entry, error) {
	b := s.book(tenantID)
	b.mu.Lock()
	defer b.mu.Unlock()

	idx, ok := b.byID[entryID]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Entry with ID '%s' not found", entryID), nil)
	}
	return copyEntry(b.entries[idx]), nil
}

func matches(e *model.Entry, filter model.EntryFilter) bool {
	if !filter.IncludeCancelled && e.IsCancelled {
		return false
	}
	if filter.From != nil && e.EntryDate.Before(model.TruncateDate(*filter.From, time.UTC)) {
		return false
	}
	if filter.To != nil && e.EntryDate.After(model.TruncateDate(*filter.To, time.UTC)) {
		return false
	}
	if filter.DocumentType != "" && e.DocumentType != filter.DocumentType {
		return false
	}
	if filter.Search != "" {
		needle := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(e.Description), needle) && !strings.Contains(strings.ToLower(e.Reference), needle) {
			return false
		}
	}
	if filter.ReceiptID != "" && e.ReceiptID != filter.ReceiptID {
		return false
	}
	return true
}

func (s *Store) ListEntries(_ context.Context, tenantID string, filter model.EntryFilter) ([]model.Entry, error) {
	b := s.book(tenantID)
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := []model.Entry{}
	skipped := 0
	for i := range b.entries {
		if !matches(&b.entries[i], filter) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		entries = append(entries, *copyEntry(b.entries[i]))
		if filter.Limit > 0 && len(entries) == filter.Limit {
			break
		}
	}
	return entries, nil
}

func (s *Store) GetEntriesForChain(_ context.Context, tenantID string) ([]model.Entry, error) {
	b := s.book(tenantID)
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := make([]model.Entry, 0, len(b.entries))
	for i := range b.entries {
		entries = append(entries, *copyEntry(b.entries[i]))
	}
	return entries, nil
}

func (s *Store) GetEntriesInDateRange(_ context.Context, tenantID string, from, to time.Time) ([]model.Entry, error) {
	from = model.TruncateDate(from, time.UTC)
	to = model.TruncateDate(to, time.UTC)

	b := s.book(tenantID)
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := []model.Entry{}
	for i := range b.entries {
		e := &b.entries[i]
		if e.IsCancelled || e.EntryDate.Before(from) || e.EntryDate.After(to) {
			continue
		}
		entries = append(entries, *copyEntry(*e))
	}
	return entries, nil
}

func (s *Store) GetCurrentBalance(_ context.Context, tenantID string) (decimal.Decimal, error) {
	b := s.book(tenantID)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance(), nil
}

func (s *Store) GetLastEntryHash(_ context.Context, tenantID string) (string, error) {
	b := s.book(tenantID)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.head(tenantID).LastHash, nil
}

func (s *Store) GetNextDocumentNumber(_ context.Context, tenantID string) (int64, error) {
	b := s.book(tenantID)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.head(tenantID).NextDocumentNumber(), nil
}

// Tamper is a test hook: it overwrites a stored entry in place, bypassing every guard, to
// simulate an out-of-band edit of the underlying storage. It is not part of IDataSource and
// no production code path calls it.
func (s *Store) Tamper(tenantID, entryID string, mutate func(e *model.Entry)) bool {
	b := s.book(tenantID)
	b.mu.Lock()
	defer b.mu.Unlock()

	idx, ok := b.byID[entryID]
	if !ok {
		return false
	}
	mutate(&b.entries[idx])
	return true
}

var _ database.IDataSource = (*Store)(nil)

func sortClosings(closings []model.MonthlyClosing) {
	sort.Slice(closings, func(i, j int) bool {
		if closings[i].Year != closings[j].Year {
			return closings[i].Year > closings[j].Year
		}
		return closings[i].Month > closings[j].Month
	})
}
