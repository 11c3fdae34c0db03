package exchange

import (
	"github.com/shopspring/decimal"

	"github.com/kambio/backend/internal/domain/shared"
	"github.com/kambio/backend/internal/domain/shared/valueobject"
)

// CommissionPolicy prices the desk's cut of a transaction. Percentage
// is a fraction of the source amount; MinFee is a floor in the source
// currency. The charge is whichever is larger.
type CommissionPolicy struct {
	Percentage decimal.Decimal
	MinFee     decimal.Decimal
	FlatFees   decimal.Decimal
}

// DefaultCommissionPolicy is applied when a tenant has not configured
// its own pricing.
func DefaultCommissionPolicy() CommissionPolicy {
	return CommissionPolicy{
		Percentage: decimal.RequireFromString("0.005"),
		MinFee:     decimal.RequireFromString("1.00"),
		FlatFees:   decimal.Zero,
	}
}

// Validate checks the policy figures
func (p CommissionPolicy) Validate() error {
	if p.Percentage.IsNegative() || p.Percentage.GreaterThan(decimal.NewFromInt(1)) {
		return shared.NewDomainError("INVALID_POLICY", "Commission percentage must be between 0 and 1")
	}
	if p.MinFee.IsNegative() {
		return shared.NewDomainError("INVALID_POLICY", "Minimum fee must not be negative")
	}
	if p.FlatFees.IsNegative() {
		return shared.NewDomainError("INVALID_POLICY", "Flat fees must not be negative")
	}
	return nil
}

// Quote is a fully priced transaction before execution
type Quote struct {
	FromCurrency     string
	ToCurrency       string
	Amount           decimal.Decimal
	Rate             decimal.Decimal
	EquivalentAmount decimal.Decimal
	Commission       decimal.Decimal
	Fees             decimal.Decimal
	GrossDebit       decimal.Decimal
}

// Price computes the quote for exchanging amount of fromCurrency into
// toCurrency at the given rate. The commission is the larger of the
// percentage charge and the minimum fee, rounded to the source
// currency's scale.
func (p CommissionPolicy) Price(amount decimal.Decimal, rate decimal.Decimal, fromCurrency, toCurrency string) (Quote, error) {
	if err := p.Validate(); err != nil {
		return Quote{}, err
	}
	if !amount.IsPositive() {
		return Quote{}, shared.NewDomainError("INVALID_AMOUNT", "Amount must be positive")
	}
	if !rate.IsPositive() {
		return Quote{}, shared.NewDomainError("INVALID_RATE", "Rate must be positive")
	}

	source, err := valueobject.NewMoney(amount, fromCurrency)
	if err != nil {
		return Quote{}, err
	}
	equivalent, err := source.Convert(rate, toCurrency)
	if err != nil {
		return Quote{}, err
	}

	pct := amount.Mul(p.Percentage)
	commission := decimal.Max(pct, p.MinFee)
	commissionMoney, err := valueobject.NewMoney(commission, fromCurrency)
	if err != nil {
		return Quote{}, err
	}
	feesMoney, err := valueobject.NewMoney(p.FlatFees, fromCurrency)
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		FromCurrency:     fromCurrency,
		ToCurrency:       toCurrency,
		Amount:           source.Amount(),
		Rate:             rate,
		EquivalentAmount: equivalent.Amount(),
		Commission:       commissionMoney.Amount(),
		Fees:             feesMoney.Amount(),
		GrossDebit:       source.Amount().Add(commissionMoney.Amount()).Add(feesMoney.Amount()),
	}, nil
}
