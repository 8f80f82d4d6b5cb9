// Package pnl computes profit-and-loss with exact decimal arithmetic.
//
// All functions are pure. A zero denominator yields 0 instead of an error.
package pnl

import "github.com/shopspring/decimal"

// PercentPlaces is the number of fractional digits kept for percentages.
// Matches the NUMERIC(38,8) percent columns.
const PercentPlaces = 8

// ValuePlaces is the number of fractional digits kept for USD values.
// Matches the NUMERIC(38,18) value columns.
const ValuePlaces = 18

var hundred = decimal.NewFromInt(100)

// Percent returns num / den * 100 rounded to PercentPlaces, or 0 when den is 0.
func Percent(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return num.Mul(hundred).DivRound(den, PercentPlaces)
}

// PerSwap returns the PNL of one swap against its entry value.
func PerSwap(toAmountUSD, currentValueUSD decimal.Decimal) (pnlUSD, pnlPercent decimal.Decimal) {
	pnlUSD = currentValueUSD.Sub(toAmountUSD)
	return pnlUSD, Percent(pnlUSD, toAmountUSD)
}

// Aggregate returns the rollup PNL for summed completed swaps.
func Aggregate(sumPnlUSD, sumInvestedUSD decimal.Decimal) (totalPnlUSD, totalPnlPercent decimal.Decimal) {
	return sumPnlUSD, Percent(sumPnlUSD, sumInvestedUSD)
}

// AvgSwapSize returns totalVolume / totalSwaps, or 0 when there are no swaps.
func AvgSwapSize(totalVolume decimal.Decimal, totalSwaps int64) decimal.Decimal {
	if totalSwaps == 0 {
		return decimal.Zero
	}
	return totalVolume.DivRound(decimal.NewFromInt(totalSwaps), PercentPlaces)
}

// MarkToMarket values a token-native amount at a USD price, rounded to ValuePlaces.
func MarkToMarket(amount, priceUSD decimal.Decimal) decimal.Decimal {
	return amount.Mul(priceUSD).Round(ValuePlaces)
}
