package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLineTotal(t *testing.T) {
	tests := []struct {
		name     string
		price    string
		quantity int
		want     string
	}{
		{"whole units", "10.00", 5, "50.00"},
		{"cents", "2.35", 3, "7.05"},
		{"no float drift", "0.10", 3, "0.30"},
		{"rounds to cents", "1.005", 1, "1.01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LineTotal(decimal.RequireFromString(tt.price), tt.quantity)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestSumLines(t *testing.T) {
	lines := []*LineItem{
		{TotalPrice: decimal.RequireFromString("50.00")},
		{TotalPrice: decimal.RequireFromString("7.05")},
		{TotalPrice: decimal.RequireFromString("0.30")},
	}

	assert.Equal(t, "57.35", SumLines(lines).StringFixed(2))
	assert.True(t, SumLines(nil).IsZero())
}
