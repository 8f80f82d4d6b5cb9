package pnl

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPerSwap(t *testing.T) {
	tests := []struct {
		name        string
		toAmount    string
		current     string
		wantPnl     string
		wantPercent string
	}{
		{"gain", "100", "110", "10", "10.00"},
		{"loss", "200", "150", "-50", "-25"},
		{"zero entry", "0", "5", "5", "0"},
		{"flat", "42.5", "42.5", "0", "0"},
		{"repeating fraction", "3", "4", "1", "33.33333333"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pnl, pct := PerSwap(dec(tt.toAmount), dec(tt.current))
			if !pnl.Equal(dec(tt.wantPnl)) {
				t.Errorf("pnlUSD = %s, want %s", pnl, tt.wantPnl)
			}
			if !pct.Equal(dec(tt.wantPercent)) {
				t.Errorf("pnlPercent = %s, want %s", pct, tt.wantPercent)
			}
		})
	}
}

func TestPerSwap_NoFloatDrift(t *testing.T) {
	// 0.1 + 0.2 style inputs must stay exact.
	pnl, _ := PerSwap(dec("0.1"), dec("0.3"))
	if !pnl.Equal(dec("0.2")) {
		t.Errorf("pnlUSD = %s, want 0.2", pnl)
	}
}

func TestAggregate(t *testing.T) {
	total, pct := Aggregate(dec("30"), dec("600"))
	if !total.Equal(dec("30")) {
		t.Errorf("totalPnlUSD = %s, want 30", total)
	}
	if !pct.Equal(dec("5")) {
		t.Errorf("totalPnlPercent = %s, want 5", pct)
	}

	total, pct = Aggregate(dec("-7"), decimal.Zero)
	if !total.Equal(dec("-7")) {
		t.Errorf("totalPnlUSD = %s, want -7", total)
	}
	if !pct.IsZero() {
		t.Errorf("totalPnlPercent = %s, want 0 for zero investment", pct)
	}
}

func TestAvgSwapSize(t *testing.T) {
	if got := AvgSwapSize(dec("900"), 3); !got.Equal(dec("300")) {
		t.Errorf("AvgSwapSize = %s, want 300", got)
	}
	if got := AvgSwapSize(dec("900"), 0); !got.IsZero() {
		t.Errorf("AvgSwapSize with no swaps = %s, want 0", got)
	}
}

func TestMarkToMarket(t *testing.T) {
	got := MarkToMarket(dec("0.285"), dec("3850.12"))
	if !got.Equal(dec("1097.2842")) {
		t.Errorf("MarkToMarket = %s, want 1097.2842", got)
	}

	// 18 + 18 fractional digits collapse to the stored scale.
	got = MarkToMarket(dec("0.000000000000000003"), dec("0.5"))
	if !got.Equal(dec("0.000000000000000002")) {
		t.Errorf("MarkToMarket = %s, want 0.000000000000000002", got)
	}
}
