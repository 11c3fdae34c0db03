package valueobject

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kambio/backend/internal/domain/shared"
)

// CurrencyInfo describes a supported currency and its minor-unit scale.
type CurrencyInfo struct {
	Code   string
	Scale  int32
	Crypto bool
}

// currencyRegistry holds the currencies the platform can hold balances in.
// Fiat currencies round at their ISO 4217 minor-unit scale, crypto
// currencies at eight places.
var currencyRegistry = map[string]CurrencyInfo{
	"USD": {Code: "USD", Scale: 2},
	"EUR": {Code: "EUR", Scale: 2},
	"GBP": {Code: "GBP", Scale: 2},
	"CHF": {Code: "CHF", Scale: 2},
	"RUB": {Code: "RUB", Scale: 2},
	"UAH": {Code: "UAH", Scale: 2},
	"KZT": {Code: "KZT", Scale: 2},
	"TRY": {Code: "TRY", Scale: 2},
	"AED": {Code: "AED", Scale: 2},
	"CNY": {Code: "CNY", Scale: 2},
	"JPY": {Code: "JPY", Scale: 0},
	"BHD": {Code: "BHD", Scale: 3},
	"BTC": {Code: "BTC", Scale: 8, Crypto: true},
	"ETH": {Code: "ETH", Scale: 8, Crypto: true},
	"USDT": {Code: "USDT", Scale: 8, Crypto: true},
	"USDC": {Code: "USDC", Scale: 8, Crypto: true},
}

// conversionGuard is the extra precision carried during currency
// conversion before the final half-even rounding to the target scale.
const conversionGuard int32 = 8

// LookupCurrency returns registry info for a currency code.
func LookupCurrency(code string) (CurrencyInfo, bool) {
	info, ok := currencyRegistry[strings.ToUpper(code)]
	return info, ok
}

// IsSupportedCurrency reports whether the platform knows the currency.
func IsSupportedCurrency(code string) bool {
	_, ok := LookupCurrency(code)
	return ok
}

// SupportedCurrencies returns the registered currency codes.
func SupportedCurrencies() []string {
	codes := make([]string, 0, len(currencyRegistry))
	for code := range currencyRegistry {
		codes = append(codes, code)
	}
	return codes
}

// Money is an immutable monetary amount in a specific currency.
// All arithmetic returns a new value and never mutates the receiver.
// Amounts are kept at the currency's registered scale with banker's
// (half-even) rounding.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// NewMoney creates Money from a decimal amount, rounding to the
// currency's scale.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	info, ok := LookupCurrency(currency)
	if !ok {
		return Money{}, shared.NewDomainError("UNSUPPORTED_CURRENCY", fmt.Sprintf("currency %s is not supported", currency))
	}
	return Money{
		amount:   amount.RoundBank(info.Scale),
		currency: info.Code,
	}, nil
}

// NewMoneyFromString parses a decimal string into Money.
func NewMoneyFromString(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, shared.NewDomainError("INVALID_AMOUNT", fmt.Sprintf("invalid amount %q", amount))
	}
	return NewMoney(d, currency)
}

// MustMoney creates Money and panics on error. Test helper and
// package-level constants only.
func MustMoney(amount, currency string) Money {
	m, err := NewMoneyFromString(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// ZeroMoney returns a zero amount in the given currency.
func ZeroMoney(currency string) (Money, error) {
	return NewMoney(decimal.Zero, currency)
}

// Amount returns the decimal amount.
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the currency code.
func (m Money) Currency() string {
	return m.currency
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsPositive reports whether the amount is strictly positive.
func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

// IsNegative reports whether the amount is strictly negative.
func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

// Add returns m + other. Both operands must share a currency.
func (m Money) Add(other Money) (Money, error) {
	if err := m.requireSameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// Sub returns m - other. Both operands must share a currency.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.requireSameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Sub(other.amount), currency: m.currency}, nil
}

// Neg returns the amount with its sign flipped.
func (m Money) Neg() Money {
	return Money{amount: m.amount.Neg(), currency: m.currency}
}

// Abs returns the absolute amount.
func (m Money) Abs() Money {
	return Money{amount: m.amount.Abs(), currency: m.currency}
}

// Mul multiplies by a factor and rounds half-even to the currency scale.
func (m Money) Mul(factor decimal.Decimal) Money {
	info, _ := LookupCurrency(m.currency)
	return Money{amount: m.amount.Mul(factor).RoundBank(info.Scale), currency: m.currency}
}

// Percentage returns the given percentage of the amount, rounded
// half-even to the currency scale.
func (m Money) Percentage(percent decimal.Decimal) Money {
	return m.Mul(percent.Div(decimal.NewFromInt(100)))
}

// Convert converts to the target currency at the given rate. The
// multiplication is carried at target scale plus guard digits and then
// rounded half-even to the target scale.
func (m Money) Convert(rate decimal.Decimal, targetCurrency string) (Money, error) {
	if !rate.IsPositive() {
		return Money{}, shared.NewDomainError("INVALID_RATE", "exchange rate must be positive")
	}
	info, ok := LookupCurrency(targetCurrency)
	if !ok {
		return Money{}, shared.NewDomainError("UNSUPPORTED_CURRENCY", fmt.Sprintf("currency %s is not supported", targetCurrency))
	}
	raw := m.amount.Mul(rate).Round(info.Scale + conversionGuard)
	return Money{
		amount:   raw.RoundBank(info.Scale),
		currency: info.Code,
	}, nil
}

// Cmp compares m against other: -1 if less, 0 if equal, 1 if greater.
func (m Money) Cmp(other Money) (int, error) {
	if err := m.requireSameCurrency(other); err != nil {
		return 0, err
	}
	return m.amount.Cmp(other.amount), nil
}

// Equals reports whether both amount and currency match.
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// LessThan reports whether m < other in the same currency.
func (m Money) LessThan(other Money) (bool, error) {
	c, err := m.Cmp(other)
	if err != nil {
		return false, err
	}
	return c < 0, nil
}

// GreaterThan reports whether m > other in the same currency.
func (m Money) GreaterThan(other Money) (bool, error) {
	c, err := m.Cmp(other)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}

// String formats the amount at the currency scale.
func (m Money) String() string {
	info, _ := LookupCurrency(m.currency)
	return fmt.Sprintf("%s %s", m.amount.StringFixedBank(info.Scale), m.currency)
}

func (m Money) requireSameCurrency(other Money) error {
	if m.currency != other.currency {
		return shared.NewDomainError("CURRENCY_MISMATCH", fmt.Sprintf("cannot combine %s with %s", m.currency, other.currency))
	}
	return nil
}
