package shared

import "github.com/shopspring/decimal"

// CalculateLineTotals returns the sale subtotal and the cost of a line.
func CalculateLineTotals(quantity int, unitPrice, unitCost decimal.Decimal) (subtotal, cost decimal.Decimal) {
	qty := decimal.NewFromInt(int64(quantity))
	subtotal = unitPrice.Mul(qty)
	cost = unitCost.Mul(qty)
	return
}

// CalculateProfitRatio returns profit / cost, or zero when cost is zero.
func CalculateProfitRatio(profit, cost decimal.Decimal) decimal.Decimal {
	if cost.IsZero() {
		return decimal.Zero
	}
	return profit.DivRound(cost, 4)
}
