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
	"github.com/blnkfinance/cashbook"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

type CreateClosing struct {
	Year           int              `json:"year"`
	Month          int              `json:"month"`
	CountedBalance *decimal.Decimal `json:"counted_balance"`
	Denominations  map[string]int64 `json:"denominations"`
	Notes          string           `json:"notes"`
}

type FinalizeClosing struct {
	DifferenceExplanation string `json:"difference_explanation"`
}

func (c *CreateClosing) ValidateCreateClosing() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Year, validation.Required),
		validation.Field(&c.Month, validation.Required, validation.Min(1), validation.Max(12)),
		validation.Field(&c.CountedBalance, validation.When(len(c.Denominations) == 0,
			validation.NotNil.Error("counted_balance is required when no denominations are given"))),
	)
}

func (c *CreateClosing) ToCreateClosingRequest(tenantID, userID string) cashbook.CreateClosingRequest {
	return cashbook.CreateClosingRequest{
		TenantID:       tenantID,
		Year:           c.Year,
		Month:          c.Month,
		CountedBalance: c.CountedBalance,
		Denominations:  c.Denominations,
		Notes:          c.Notes,
		CreatedBy:      userID,
	}
}

func (f *FinalizeClosing) ToFinalizeClosingRequest(tenantID, closingID, userID string) cashbook.FinalizeClosingRequest {
	return cashbook.FinalizeClosingRequest{
		TenantID:              tenantID,
		ClosingID:             closingID,
		DifferenceExplanation: f.DifferenceExplanation,
		FinalizedBy:           userID,
	}
}
