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
	"time"

	"github.com/blnkfinance/cashbook/model"
	"github.com/shopspring/decimal"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	entry   // Interface for ledger entry operations
	closing // Interface for monthly closing operations
}

// AppendFunc builds the next entry of a chain from the head locked by the store.
// It runs inside the store transaction and must not perform I/O of its own.
type AppendFunc func(head model.ChainHead) (*model.Entry, error)

// ReversalFunc builds the entry that reverses original, chained onto head.
type ReversalFunc func(head model.ChainHead, original *model.Entry) (*model.Entry, error)

// FinalizeFunc seals a draft closing. It receives the period totals and chain tip read in the
// finalizing transaction and mutates closing in place.
type FinalizeFunc func(closing *model.MonthlyClosing, totals model.PeriodTotals, chainTip string) error

// entry defines methods for handling ledger entries.
type entry interface {
	AppendEntry(ctx context.Context, tenantID string, build AppendFunc) (*model.Entry, error)                                                           // Appends an entry under the tenant chain lock
	CancelEntry(ctx context.Context, tenantID, entryID string, cancellation model.Cancellation, build ReversalFunc) (*model.Entry, *model.Entry, error) // Appends a reversal and flags the original atomically
	GetEntry(ctx context.Context, tenantID, entryID string) (*model.Entry, error)                                                                       // Retrieves an entry by ID
	ListEntries(ctx context.Context, tenantID string, filter model.EntryFilter) ([]model.Entry, error)                                                  // Lists entries matching a filter
	GetEntriesForChain(ctx context.Context, tenantID string) ([]model.Entry, error)                                                                     // Retrieves every entry in insertion order
	GetEntriesInDateRange(ctx context.Context, tenantID string, from, to time.Time) ([]model.Entry, error)                                              // Retrieves non-cancelled entries dated within [from, to]
	GetCurrentBalance(ctx context.Context, tenantID string) (decimal.Decimal, error)                                                                    // Sums every entry of the tenant
	GetLastEntryHash(ctx context.Context, tenantID string) (string, error)                                                                              // Returns the chain tip or the genesis hash
	GetNextDocumentNumber(ctx context.Context, tenantID string) (int64, error)                                                                          // Returns the number the next entry will receive
}

// closing defines methods for handling monthly closings.
type closing interface {
	SaveClosingDraft(ctx context.Context, draft *model.MonthlyClosing) (*model.MonthlyClosing, error)                      // Computes period totals and upserts the draft
	FinalizeClosing(ctx context.Context, tenantID, closingID string, finalize FinalizeFunc) (*model.MonthlyClosing, error) // Seals a draft closing
	GetClosing(ctx context.Context, tenantID, closingID string) (*model.MonthlyClosing, error)                             // Retrieves a closing by ID
	GetClosingByPeriod(ctx context.Context, tenantID string, year, month int) (*model.MonthlyClosing, error)               // Retrieves the closing of a period
	ListClosings(ctx context.Context, tenantID string) ([]model.MonthlyClosing, error)                                     // Lists closings, latest period first
	IsPeriodFinalized(ctx context.Context, tenantID string, year, month int) (bool, error)                                 // Reports whether a period is sealed
}
