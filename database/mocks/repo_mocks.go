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
package mocks

import (
	"context"
	"time"

	"github.com/blnkfinance/cashbook/database"
	"github.com/blnkfinance/cashbook/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

func entryArg(args mock.Arguments, i int) *model.Entry {
	e, _ := args.Get(i).(*model.Entry)
	return e
}

func closingArg(args mock.Arguments, i int) *model.MonthlyClosing {
	c, _ := args.Get(i).(*model.MonthlyClosing)
	return c
}

// Entry methods

func (m *MockDataSource) AppendEntry(ctx context.Context, tenantID string, build database.AppendFunc) (*model.Entry, error) {
	args := m.Called(ctx, tenantID, build)
	return entryArg(args, 0), args.Error(1)
}

func (m *MockDataSource) CancelEntry(ctx context.Context, tenantID, entryID string, cancellation model.Cancellation, build database.ReversalFunc) (*model.Entry, *model.Entry, error) {
	args := m.Called(ctx, tenantID, entryID, cancellation, build)
	return entryArg(args, 0), entryArg(args, 1), args.Error(2)
}

func (m *MockDataSource) GetEntry(ctx context.Context, tenantID, entryID string) (*model.Entry, error) {
	args := m.Called(ctx, tenantID, entryID)
	return entryArg(args, 0), args.Error(1)
}

func (m *MockDataSource) ListEntries(ctx context.Context, tenantID string, filter model.EntryFilter) ([]model.Entry, error) {
	args := m.Called(ctx, tenantID, filter)
	entries, _ := args.Get(0).([]model.Entry)
	return entries, args.Error(1)
}

func (m *MockDataSource) GetEntriesForChain(ctx context.Context, tenantID string) ([]model.Entry, error) {
	args := m.Called(ctx, tenantID)
	entries, _ := args.Get(0).([]model.Entry)
	return entries, args.Error(1)
}

func (m *MockDataSource) GetEntriesInDateRange(ctx context.Context, tenantID string, from, to time.Time) ([]model.Entry, error) {
	args := m.Called(ctx, tenantID, from, to)
	entries, _ := args.Get(0).([]model.Entry)
	return entries, args.Error(1)
}

func (m *MockDataSource) GetCurrentBalance(ctx context.Context, tenantID string) (decimal.Decimal, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockDataSource) GetLastEntryHash(ctx context.Context, tenantID string) (string, error) {
	args := m.Called(ctx, tenantID)
	return args.String(0), args.Error(1)
}

func (m *MockDataSource) GetNextDocumentNumber(ctx context.Context, tenantID string) (int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(int64), args.Error(1)
}

// Closing methods

func (m *MockDataSource) SaveClosingDraft(ctx context.Context, draft *model.MonthlyClosing) (*model.MonthlyClosing, error) {
	args := m.Called(ctx, draft)
	return closingArg(args, 0), args.Error(1)
}

func (m *MockDataSource) FinalizeClosing(ctx context.Context, tenantID, closingID string, finalize database.FinalizeFunc) (*model.MonthlyClosing, error) {
	args := m.Called(ctx, tenantID, closingID, finalize)
	return closingArg(args, 0), args.Error(1)
}

func (m *MockDataSource) GetClosing(ctx context.Context, tenantID, closingID string) (*model.MonthlyClosing, error) {
	args := m.Called(ctx, tenantID, closingID)
	return closingArg(args, 0), args.Error(1)
}

func (m *MockDataSource) GetClosingByPeriod(ctx context.Context, tenantID string, year, month int) (*model.MonthlyClosing, error) {
	args := m.Called(ctx, tenantID, year, month)
	return closingArg(args, 0), args.Error(1)
}

func (m *MockDataSource) ListClosings(ctx context.Context, tenantID string) ([]model.MonthlyClosing, error) {
	args := m.Called(ctx, tenantID)
	closings, _ := args.Get(0).([]model.MonthlyClosing)
	return closings, args.Error(1)
}

func (m *MockDataSource) IsPeriodFinalized(ctx context.Context, tenantID string, year, month int) (bool, error) {
	args := m.Called(ctx, tenantID, year, month)
	return args.Bool(0), args.Error(1)
}

var _ database.IDataSource = (*MockDataSource)(nil)
