package shared

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCalculateLineTotals(t *testing.T) {
	subtotal, cost := CalculateLineTotals(3, decimal.RequireFromString("12.50"), decimal.RequireFromString("8.20"))
	assert.True(t, subtotal.Equal(decimal.RequireFromString("37.50")), subtotal.String())
	assert.True(t, cost.Equal(decimal.RequireFromString("24.60")), cost.String())
}

func TestCalculateProfitRatio(t *testing.T) {
	ratio := CalculateProfitRatio(decimal.NewFromInt(1), decimal.NewFromInt(3))
	assert.Equal(t, "0.3333", ratio.String())
	assert.True(t, CalculateProfitRatio(decimal.NewFromInt(5), decimal.Zero).IsZero())
}
