package domain

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNumericLimit_Check(t *testing.T) {
	tests := []struct {
		name  string
		limit NumericLimit
		value string
		ok    bool
	}{
		{"usd at scale", USDLimit, "0.000000000000000001", true},
		{"usd beyond scale", USDLimit, "0.0000000000000000001", false},
		{"trailing zeros ignored", USDLimit, "1.50000000000000000000", true},
		{"usd max integer digits", USDLimit, strings.Repeat("9", 20) + ".5", true},
		{"usd too many integer digits", USDLimit, "1" + strings.Repeat("0", 20), false},
		{"negative usd", USDLimit, "-12.25", true},
		{"gas used whole", GasUsedLimit, "21000", true},
		{"gas used written with zero fraction", GasUsedLimit, "21000.0", true},
		{"gas used fractional", GasUsedLimit, "21000.5", false},
		{"token amount large", TokenAmountLimit, strings.Repeat("9", 60), true},
		{"token amount too large", TokenAmountLimit, strings.Repeat("9", 61), false},
		{"percent beyond scale", PercentLimit, "12.123456789", false},
		{"zero", PercentLimit, "0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.limit.Check(decimal.RequireFromString(tt.value))
			if (err == nil) != tt.ok {
				t.Errorf("Check(%s) = %v, want ok=%v", tt.value, err, tt.ok)
			}
		})
	}
}

func TestSwapMark_Fits(t *testing.T) {
	ok := SwapMark{
		CurrentValueUSD: decimal.RequireFromString("150"),
		PnlUSD:          decimal.RequireFromString("50"),
		PnlPercent:      decimal.RequireFromString("50"),
	}
	if !ok.Fits() {
		t.Errorf("expected %+v to fit", ok)
	}

	overflow := ok
	overflow.CurrentValueUSD = decimal.RequireFromString("1" + strings.Repeat("0", 21))
	if overflow.Fits() {
		t.Errorf("expected overflowing current value to be rejected")
	}
}
