package ledger

import (
	"strings"

	"github.com/shopspring/decimal"

	"swap-ledger/internal/domain"
)

// CanonicalAddress returns the lower-cased form addresses are keyed by.
func CanonicalAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// buildSwap validates caller input and converts it into an unsaved PENDING swap.
// Token-native amounts are required. USD legs default to 0 when empty.
func buildSwap(in domain.NewSwap) (*domain.Swap, error) {
	sw := &domain.Swap{
		UserAddress: CanonicalAddress(in.UserAddress),
		GroupID:     strings.TrimSpace(in.GroupID),
		FromToken:   strings.TrimSpace(in.FromToken),
		ToToken:     strings.TrimSpace(in.ToToken),
		Status:      domain.SwapStatusPending,
	}

	required := []struct {
		field string
		value string
	}{
		{"userAddress", sw.UserAddress},
		{"fromToken", sw.FromToken},
		{"toToken", sw.ToToken},
		{"fromAmount", in.FromAmount},
		{"toAmount", in.ToAmount},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return nil, &ValidationError{Field: r.field, Reason: "is required"}
		}
	}

	var err error
	if sw.FromAmount, err = parseAmount("fromAmount", in.FromAmount, domain.TokenAmountLimit, false); err != nil {
		return nil, err
	}
	if sw.ToAmount, err = parseAmount("toAmount", in.ToAmount, domain.TokenAmountLimit, false); err != nil {
		return nil, err
	}
	if sw.FromAmountUSD, err = parseAmount("fromAmountUsd", in.FromAmountUSD, domain.USDLimit, true); err != nil {
		return nil, err
	}
	if sw.ToAmountUSD, err = parseAmount("toAmountUsd", in.ToAmountUSD, domain.USDLimit, true); err != nil {
		return nil, err
	}
	if sw.GasUsed, err = parseOptional("gasUsed", in.GasUsed, domain.GasUsedLimit); err != nil {
		return nil, err
	}
	if sw.GasPrice, err = parseOptional("gasPrice", in.GasPrice, domain.TokenAmountLimit); err != nil {
		return nil, err
	}
	return sw, nil
}

// parseAmount parses a non-negative decimal string that its column stores exactly.
func parseAmount(field, raw string, limit domain.NumericLimit, emptyIsZero bool) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" && emptyIsZero {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &ValidationError{Field: field, Reason: "not a decimal number"}
	}
	if d.IsNegative() {
		return decimal.Zero, &ValidationError{Field: field, Reason: "must not be negative"}
	}
	if err := limit.Check(d); err != nil {
		return decimal.Zero, &ValidationError{Field: field, Reason: err.Error()}
	}
	return d, nil
}

func parseOptional(field, raw string, limit domain.NumericLimit) (decimal.NullDecimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := parseAmount(field, raw, limit, false)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func validatePage(limit, offset int) error {
	if limit < 0 {
		return &ValidationError{Field: "limit", Reason: "must not be negative"}
	}
	if offset < 0 {
		return &ValidationError{Field: "offset", Reason: "must not be negative"}
	}
	return nil
}

// clampLimit applies a default to a zero limit and caps it at max.
func clampLimit(limit, def, max int) int {
	if limit == 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
