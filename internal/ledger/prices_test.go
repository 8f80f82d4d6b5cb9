package ledger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPriceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.json")
	body := `{"ETH": "2500.5", "0xAbC": 1.25, "DOGE": 0}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write prices: %v", err)
	}

	prices, err := LoadPriceFile(path)
	if err != nil {
		t.Fatalf("LoadPriceFile failed: %v", err)
	}
	if len(prices) != 3 {
		t.Fatalf("expected 3 prices, got %d", len(prices))
	}
	if !prices["ETH"].Equal(dec("2500.5")) {
		t.Errorf("ETH: got %s", prices["ETH"])
	}
	if !prices["0xAbC"].Equal(dec("1.25")) {
		t.Errorf("keys must be kept verbatim, got %v", prices)
	}
	if !prices["DOGE"].IsZero() {
		t.Errorf("DOGE: got %s", prices["DOGE"])
	}
}

func TestLoadPriceFile_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadPriceFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"ETH": "cheap"}`), 0o644); err != nil {
		t.Fatalf("write prices: %v", err)
	}
	if _, err := LoadPriceFile(bad); err == nil {
		t.Error("expected error for non-numeric price")
	}
}

func TestParsePrices_Invalid(t *testing.T) {
	_, err := ParsePrices(map[string]string{"ETH": "1e"})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Field != "prices.ETH" {
		t.Errorf("field = %q", ve.Field)
	}
}
