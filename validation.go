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
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/blnkfinance/cashbook/internal/apierror"
	"github.com/blnkfinance/cashbook/model"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

// maxAmount is the largest absolute value a NUMERIC(14,2) column holds.
var maxAmount = decimal.RequireFromString("999999999999.99")

// invalidInput turns an ozzo validation error into an INVALID_INPUT APIError with
// the per-field messages as details.
func invalidInput(err error) error {
	var fields validation.Errors
	if errors.As(err, &fields) {
		details := make(map[string]string, len(fields))
		for field, fieldErr := range fields {
			details[field] = fieldErr.Error()
		}
		return apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), details)
	}
	return apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
}

var notBlank = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return errors.New("cannot be blank")
	}
	return nil
})

// validUTF8 rejects text that json encoding would silently rewrite before hashing.
var validUTF8 = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if !utf8.ValidString(s) {
		return errors.New("must be valid UTF-8")
	}
	return nil
})

var validDocumentType = validation.By(func(value interface{}) error {
	t, _ := value.(model.DocumentType)
	if !t.Valid() {
		return fmt.Errorf("must be one of %s, %s, %s, %s", model.DocumentTypeIncome, model.DocumentTypeExpense,
			model.DocumentTypeCashCount, model.DocumentTypeOpeningBalance)
	}
	return nil
})

func validVatRate(t model.DocumentType) validation.Rule {
	return validation.By(func(value interface{}) error {
		rate, _ := value.(int64)
		if !model.ValidVatRate(rate) {
			return fmt.Errorf("must be one of %v", model.AllowedVatRates)
		}
		if rate != 0 && (t == model.DocumentTypeCashCount || t == model.DocumentTypeOpeningBalance) {
			return fmt.Errorf("must be 0 for %s entries", t)
		}
		return nil
	})
}

func currencyAmount(d decimal.Decimal) error {
	if !d.Equal(model.RoundCurrency(d)) {
		return errors.New("must have at most two decimal places")
	}
	if d.Abs().GreaterThan(maxAmount) {
		return errors.New("exceeds the maximum amount")
	}
	return nil
}

// validAmount requires a positive amount, or a non-zero signed correction for cash counts.
func validAmount(t model.DocumentType) validation.Rule {
	return validation.By(func(value interface{}) error {
		amount, _ := value.(decimal.Decimal)
		if err := currencyAmount(amount); err != nil {
			return err
		}
		if t == model.DocumentTypeCashCount {
			if amount.IsZero() {
				return errors.New("must not be zero")
			}
			return nil
		}
		if !amount.IsPositive() {
			return errors.New("must be greater than zero")
		}
		return nil
	})
}

func notAfter(today time.Time) validation.Rule {
	return validation.By(func(value interface{}) error {
		date, _ := value.(time.Time)
		if date.After(today) {
			return fmt.Errorf("must not be after %s", today.Format(model.DateLayout))
		}
		return nil
	})
}
