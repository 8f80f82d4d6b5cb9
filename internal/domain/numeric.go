package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// NumericLimit is the range of a NUMERIC(precision, scale) column.
type NumericLimit struct {
	Precision int
	Scale     int
}

// Column ranges of the swaps table. Values outside them would be rounded or
// rejected by PostgreSQL, so every backend refuses them up front.
var (
	TokenAmountLimit = NumericLimit{Precision: 78, Scale: 18}
	USDLimit         = NumericLimit{Precision: 38, Scale: 18}
	PercentLimit     = NumericLimit{Precision: 38, Scale: 8}
	GasUsedLimit     = NumericLimit{Precision: 78, Scale: 0}
)

// Check returns nil when d is stored exactly by the column, or an error
// naming the violated bound.
func (l NumericLimit) Check(d decimal.Decimal) error {
	if !d.Equal(d.Truncate(int32(l.Scale))) {
		if l.Scale == 0 {
			return errors.New("must be a whole number")
		}
		return fmt.Errorf("more than %d fractional digits", l.Scale)
	}
	if intDigits(d) > l.Precision-l.Scale {
		return fmt.Errorf("more than %d integer digits", l.Precision-l.Scale)
	}
	return nil
}

// Fits reports whether d is stored exactly by the column.
func (l NumericLimit) Fits(d decimal.Decimal) bool {
	return l.Check(d) == nil
}

func intDigits(d decimal.Decimal) int {
	whole := d.Truncate(0).Abs()
	if whole.IsZero() {
		return 0
	}
	return len(whole.String())
}

// Fits reports whether every field of the mark is stored exactly.
func (m SwapMark) Fits() bool {
	return USDLimit.Fits(m.CurrentValueUSD) && USDLimit.Fits(m.PnlUSD) && PercentLimit.Fits(m.PnlPercent)
}
