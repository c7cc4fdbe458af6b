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

package model

import (
	"testing"
	"time"

	"github.com/blnkfinance/cashbook/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/wacul/ptr"
)

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestValidateRecordEntry(t *testing.T) {
	tests := []struct {
		name    string
		entry   RecordEntry
		wantErr bool
	}{
		{
			name:  "valid",
			entry: RecordEntry{EntryDate: "2024-05-01", DocumentType: "expense", Amount: amount("12.50"), Description: "Porto"},
		},
		{
			name:    "missing amount",
			entry:   RecordEntry{EntryDate: "2024-05-01", DocumentType: "expense", Description: "Porto"},
			wantErr: true,
		},
		{
			name:    "timestamp instead of date",
			entry:   RecordEntry{EntryDate: "2024-05-01T10:00:00Z", DocumentType: "expense", Amount: amount("1"), Description: "Porto"},
			wantErr: true,
		},
		{
			name:    "missing description",
			entry:   RecordEntry{EntryDate: "2024-05-01", DocumentType: "expense", Amount: amount("1")},
			wantErr: true,
		},
		{
			name:    "missing type",
			entry:   RecordEntry{EntryDate: "2024-05-01", Amount: amount("1"), Description: "Porto"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.ValidateRecordEntry()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestToRecordEntryRequest(t *testing.T) {
	entry := RecordEntry{
		EntryDate:    "2024-05-01",
		DocumentType: " expense ",
		Amount:       amount("119.00"),
		VatRate:      ptr.Int64(19),
		Description:  "Werkzeug",
		ReceiptID:    " rcpt_1 ",
		Force:        true,
	}

	req := entry.ToRecordEntryRequest("tenant_1", "user_1")
	assert.Equal(t, "tenant_1", req.TenantID)
	assert.Equal(t, "user_1", req.CreatedBy)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), req.EntryDate)
	assert.Equal(t, model.DocumentTypeExpense, req.DocumentType)
	assert.True(t, decimal.RequireFromString("119").Equal(req.Amount))
	assert.Equal(t, int64(19), req.VatRate)
	assert.Equal(t, "rcpt_1", req.ReceiptID)
	assert.True(t, req.Force)

	entry.VatRate = nil
	assert.Zero(t, entry.ToRecordEntryRequest("tenant_1", "user_1").VatRate)
}

func TestValidateCreateClosing(t *testing.T) {
	assert.NoError(t, (&CreateClosing{Year: 2024, Month: 5, CountedBalance: amount("10")}).ValidateCreateClosing())
	assert.NoError(t, (&CreateClosing{Year: 2024, Month: 5, Denominations: map[string]int64{"10.00": 1}}).ValidateCreateClosing())
	assert.Error(t, (&CreateClosing{Year: 2024, Month: 5}).ValidateCreateClosing())
	assert.Error(t, (&CreateClosing{Year: 2024, Month: 0, CountedBalance: amount("10")}).ValidateCreateClosing())
	assert.Error(t, (&CreateClosing{Month: 5, CountedBalance: amount("10")}).ValidateCreateClosing())
}

func TestValidateCancelEntry(t *testing.T) {
	assert.NoError(t, (&CancelEntry{Reason: "Tippfehler"}).ValidateCancelEntry())
	assert.Error(t, (&CancelEntry{}).ValidateCancelEntry())
}

func TestToDuplicateCheck(t *testing.T) {
	d := CheckDuplicates{EntryDate: "2024-05-01", DocumentType: "income", Amount: amount("5"), Description: "Kaffee"}
	assert.NoError(t, d.ValidateCheckDuplicates())

	check := d.ToDuplicateCheck("tenant_1")
	assert.Equal(t, "tenant_1", check.TenantID)
	assert.Equal(t, model.DocumentTypeIncome, check.DocumentType)
	assert.True(t, decimal.NewFromInt(5).Equal(check.Amount))
}
