package valueobject

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewMoney(t *testing.T) {
	t.Run("rounds to currency scale half-even", func(t *testing.T) {
		m, err := NewMoneyFromString("10.005", "USD")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m.Amount().String() != "10" {
			t.Errorf("expected 10.00 (half-even), got %s", m.Amount().String())
		}

		m2, _ := NewMoneyFromString("10.015", "USD")
		if m2.Amount().String() != "10.02" {
			t.Errorf("expected 10.02 (half-even), got %s", m2.Amount().String())
		}
	})

	t.Run("zero-scale currency", func(t *testing.T) {
		m, err := NewMoneyFromString("100.4", "JPY")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m.Amount().String() != "100" {
			t.Errorf("expected 100, got %s", m.Amount().String())
		}
	})

	t.Run("crypto scale", func(t *testing.T) {
		m, err := NewMoneyFromString("0.123456789", "BTC")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m.Amount().String() != "0.12345679" {
			t.Errorf("expected 8-place rounding, got %s", m.Amount().String())
		}
	})

	t.Run("rejects unsupported currency", func(t *testing.T) {
		_, err := NewMoneyFromString("1", "XXX")
		if err == nil {
			t.Error("expected error for unsupported currency")
		}
	})

	t.Run("rejects malformed amount", func(t *testing.T) {
		_, err := NewMoneyFromString("abc", "USD")
		if err == nil {
			t.Error("expected error for malformed amount")
		}
	})
}

func TestMoneyArithmetic(t *testing.T) {
	t.Run("add same currency", func(t *testing.T) {
		a := MustMoney("10.50", "EUR")
		b := MustMoney("4.25", "EUR")
		sum, err := a.Add(b)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !sum.Equals(MustMoney("14.75", "EUR")) {
			t.Errorf("expected 14.75 EUR, got %s", sum)
		}
	})

	t.Run("add mismatched currency fails", func(t *testing.T) {
		a := MustMoney("10", "EUR")
		b := MustMoney("10", "USD")
		if _, err := a.Add(b); err == nil {
			t.Error("expected currency mismatch error")
		}
	})

	t.Run("sub can go negative", func(t *testing.T) {
		a := MustMoney("5", "USD")
		b := MustMoney("7.50", "USD")
		diff, err := a.Sub(b)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !diff.IsNegative() {
			t.Error("expected negative result")
		}
	})

	t.Run("immutability", func(t *testing.T) {
		a := MustMoney("10", "USD")
		_ = a.Neg()
		_, _ = a.Add(MustMoney("5", "USD"))
		if a.Amount().String() != "10" {
			t.Errorf("receiver mutated: %s", a.Amount().String())
		}
	})

	t.Run("percentage rounds half-even", func(t *testing.T) {
		// 0.25% of 1000.00 = 2.50
		fee := MustMoney("1000.00", "USD").Percentage(decimal.RequireFromString("0.25"))
		if !fee.Equals(MustMoney("2.50", "USD")) {
			t.Errorf("expected 2.50 USD, got %s", fee)
		}
	})
}

func TestMoneyConvert(t *testing.T) {
	t.Run("converts at rate and rounds to target scale", func(t *testing.T) {
		usd := MustMoney("100.00", "USD")
		eur, err := usd.Convert(decimal.RequireFromString("0.9137"), "EUR")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !eur.Equals(MustMoney("91.37", "EUR")) {
			t.Errorf("expected 91.37 EUR, got %s", eur)
		}
	})

	t.Run("target scale governs rounding", func(t *testing.T) {
		usd := MustMoney("1.00", "USD")
		jpy, err := usd.Convert(decimal.RequireFromString("147.335"), "JPY")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// 147.335 rounds half-even at scale 0 to 147
		if jpy.Amount().String() != "147" {
			t.Errorf("expected 147 JPY, got %s", jpy.Amount().String())
		}
	})

	t.Run("rejects non-positive rate", func(t *testing.T) {
		usd := MustMoney("1", "USD")
		if _, err := usd.Convert(decimal.Zero, "EUR"); err == nil {
			t.Error("expected error for zero rate")
		}
		if _, err := usd.Convert(decimal.NewFromInt(-1), "EUR"); err == nil {
			t.Error("expected error for negative rate")
		}
	})

	t.Run("crypto to fiat keeps guard precision", func(t *testing.T) {
		btc := MustMoney("0.00012345", "BTC")
		usd, err := btc.Convert(decimal.RequireFromString("65000"), "USD")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// 0.00012345 * 65000 = 8.02425 -> 8.02
		if !usd.Equals(MustMoney("8.02", "USD")) {
			t.Errorf("expected 8.02 USD, got %s", usd)
		}
	})
}

func TestMoneyComparison(t *testing.T) {
	a := MustMoney("10", "USD")
	b := MustMoney("20", "USD")

	lt, err := a.LessThan(b)
	if err != nil || !lt {
		t.Errorf("expected a < b, err=%v", err)
	}
	gt, err := b.GreaterThan(a)
	if err != nil || !gt {
		t.Errorf("expected b > a, err=%v", err)
	}
	if _, err := a.Cmp(MustMoney("10", "EUR")); err == nil {
		t.Error("expected mismatch error comparing across currencies")
	}
}

func TestCurrencyRegistry(t *testing.T) {
	if !IsSupportedCurrency("usd") {
		t.Error("lookup should be case-insensitive")
	}
	info, ok := LookupCurrency("BHD")
	if !ok || info.Scale != 3 {
		t.Errorf("expected BHD scale 3, got %+v", info)
	}
	if len(SupportedCurrencies()) == 0 {
		t.Error("expected non-empty currency list")
	}
}
