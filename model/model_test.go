package model

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestGenerateUUIDWithSuffix(t *testing.T) {
	id := GenerateUUIDWithSuffix("cbe")
	assert.True(t, strings.HasPrefix(id, "cbe_"))
	assert.Len(t, id, len("cbe_")+36)
}

func TestSplitVAT(t *testing.T) {
	tests := []struct {
		amount string
		rate   int64
		net    string
		vat    string
	}{
		{"119.00", 19, "100.00", "19.00"},
		{"107.00", 7, "100.00", "7.00"},
		{"50.00", 0, "50.00", "0.00"},
		{"-119.00", 19, "-100.00", "-19.00"},
		{"10.00", 19, "8.40", "1.60"},
		{"0.99", 7, "0.93", "0.06"},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			net, vat := SplitVAT(dec(tt.amount), tt.rate)
			assert.True(t, dec(tt.net).Equal(net), "net: want %s got %s", tt.net, net)
			assert.True(t, dec(tt.vat).Equal(vat), "vat: want %s got %s", tt.vat, vat)
			assert.True(t, net.Add(vat).Equal(dec(tt.amount)))
		})
	}
}

func TestSignedAmount(t *testing.T) {
	amount, err := SignedAmount(DocumentTypeIncome, dec("20"))
	require.NoError(t, err)
	assert.True(t, amount.Equal(dec("20")))

	amount, err = SignedAmount(DocumentTypeExpense, dec("20"))
	require.NoError(t, err)
	assert.True(t, amount.Equal(dec("-20")))

	amount, err = SignedAmount(DocumentTypeCashCount, dec("-3.5"))
	require.NoError(t, err)
	assert.True(t, amount.Equal(dec("-3.5")))

	_, err = SignedAmount(DocumentType("transfer"), dec("1"))
	assert.ErrorIs(t, err, ErrUnknownDocumentType)
}

func TestDocumentTypeReversed(t *testing.T) {
	assert.Equal(t, DocumentTypeExpense, DocumentTypeIncome.Reversed())
	assert.Equal(t, DocumentTypeIncome, DocumentTypeExpense.Reversed())
	assert.Equal(t, DocumentTypeExpense, DocumentTypeOpeningBalance.Reversed())
	assert.Equal(t, DocumentTypeCashCount, DocumentTypeCashCount.Reversed())
}

func TestValidVatRate(t *testing.T) {
	assert.True(t, ValidVatRate(0))
	assert.True(t, ValidVatRate(7))
	assert.True(t, ValidVatRate(19))
	assert.False(t, ValidVatRate(16))
}

func TestTruncateDate(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	// 23:30 UTC on April 30th is already May 1st in Berlin
	ts := time.Date(2024, 4, 30, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), TruncateDate(ts, berlin))
	assert.Equal(t, time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), TruncateDate(ts, nil))
}

func TestNormalizeDenominations(t *testing.T) {
	out, err := NormalizeDenominations(map[string]int64{"50": 2, "0.5": 3, "0.50": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"50.00": 2, "0.50": 4}, out)
	assert.True(t, dec("102.00").Equal(DenominationTotal(out)))

	_, err = NormalizeDenominations(map[string]int64{"3.00": 1})
	assert.Error(t, err)

	_, err = NormalizeDenominations(map[string]int64{"10.00": -1})
	assert.Error(t, err)

	_, err = NormalizeDenominations(map[string]int64{"zehn": 1})
	assert.Error(t, err)

	out, err = NormalizeDenominations(nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}
