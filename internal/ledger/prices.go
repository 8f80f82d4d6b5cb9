package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

// ParsePrices converts a token to decimal-string price map. Negative prices
// are left for UpdateAllPnl to reject.
func ParsePrices(raw map[string]string) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(raw))
	for token, value := range raw {
		d, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, &ValidationError{Field: "prices." + token, Reason: "not a decimal number"}
		}
		prices[token] = d
	}
	return prices, nil
}

// LoadPriceFile reads a JSON object of token identifier to USD price. Values
// may be JSON strings or numbers.
func LoadPriceFile(path string) (map[string]decimal.Decimal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read price file: %w", err)
	}
	var raw map[string]json.Number
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse price file %s: %w", path, err)
	}
	values := make(map[string]string, len(raw))
	for token, n := range raw {
		values[token] = n.String()
	}
	return ParsePrices(values)
}
