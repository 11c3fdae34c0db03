package exchange

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	appledger "github.com/kambio/backend/internal/application/ledger"
	"github.com/kambio/backend/internal/application/tenantctx"
	"github.com/kambio/backend/internal/domain/exchange"
	"github.com/kambio/backend/internal/domain/ledger"
	"github.com/kambio/backend/internal/domain/shared"
)

// resolveAccounts finds or opens the two accounts a transaction moves
// funds between. House accounts are owned by the tenant itself.
func (s *TransactionService) resolveAccounts(ctx context.Context, scope tenantctx.Scope, txn *exchange.Transaction, counterparty *uuid.UUID) (*ledger.Account, *ledger.Account, error) {
	switch txn.Type {
	case exchange.TxnTypeExchange:
		from, err := s.ensureAccount(ctx, scope.TenantID, txn.CustomerID, txn.FromCurrency, ledger.AccountTypeCustomerWallet)
		if err != nil {
			return nil, nil, err
		}
		to, err := s.ensureAccount(ctx, scope.TenantID, txn.CustomerID, txn.ToCurrency, ledger.AccountTypeCustomerWallet)
		if err != nil {
			return nil, nil, err
		}
		return from, to, nil

	case exchange.TxnTypeDeposit:
		from, err := s.houseAccount(ctx, scope.TenantID, txn.FromCurrency, ledger.AccountTypeCash)
		if err != nil {
			return nil, nil, err
		}
		to, err := s.ensureAccount(ctx, scope.TenantID, txn.CustomerID, txn.FromCurrency, ledger.AccountTypeCustomerWallet)
		if err != nil {
			return nil, nil, err
		}
		return from, to, nil

	case exchange.TxnTypeWithdrawal:
		from, err := s.ensureAccount(ctx, scope.TenantID, txn.CustomerID, txn.FromCurrency, ledger.AccountTypeCustomerWallet)
		if err != nil {
			return nil, nil, err
		}
		to, err := s.houseAccount(ctx, scope.TenantID, txn.FromCurrency, ledger.AccountTypeCash)
		if err != nil {
			return nil, nil, err
		}
		return from, to, nil

	case exchange.TxnTypeTransfer:
		if counterparty == nil {
			return nil, nil, shared.NewDomainError("COUNTERPARTY_REQUIRED", "Transfer needs a recipient")
		}
		if _, err := s.userRepo.FindByID(ctx, scope.TenantID, *counterparty); err != nil {
			return nil, nil, shared.NewDomainError("INVALID_COUNTERPARTY", "Recipient not found")
		}
		from, err := s.ensureAccount(ctx, scope.TenantID, txn.CustomerID, txn.FromCurrency, ledger.AccountTypeCustomerWallet)
		if err != nil {
			return nil, nil, err
		}
		to, err := s.ensureAccount(ctx, scope.TenantID, *counterparty, txn.FromCurrency, ledger.AccountTypeCustomerWallet)
		if err != nil {
			return nil, nil, err
		}
		return from, to, nil

	case exchange.TxnTypeRemittanceSend:
		from, err := s.ensureAccount(ctx, scope.TenantID, txn.CustomerID, txn.FromCurrency, ledger.AccountTypeCustomerWallet)
		if err != nil {
			return nil, nil, err
		}
		to, err := s.houseAccount(ctx, scope.TenantID, txn.FromCurrency, ledger.AccountTypeSuspense)
		if err != nil {
			return nil, nil, err
		}
		return from, to, nil

	case exchange.TxnTypeRemittanceRecv:
		// the sending side already converted, payout is single currency
		if txn.IsCrossCurrency() {
			return nil, nil, shared.NewDomainError("INVALID_CURRENCY", "Remittance payout must be in the received currency")
		}
		from, err := s.houseAccount(ctx, scope.TenantID, txn.FromCurrency, ledger.AccountTypeSuspense)
		if err != nil {
			return nil, nil, err
		}
		to, err := s.ensureAccount(ctx, scope.TenantID, txn.CustomerID, txn.FromCurrency, ledger.AccountTypeCustomerWallet)
		if err != nil {
			return nil, nil, err
		}
		return from, to, nil

	default:
		return nil, nil, shared.NewDomainError("INVALID_TYPE", "Unknown transaction type")
	}
}

func (s *TransactionService) ensureAccount(ctx context.Context, tenantID, ownerID uuid.UUID, currency string, accountType ledger.AccountType) (*ledger.Account, error) {
	account, err := s.accountRepo.FindByNaturalKey(ctx, tenantID, ownerID, currency, accountType)
	if err == nil {
		return account, nil
	}
	if !shared.IsCode(err, "NOT_FOUND") {
		return nil, err
	}

	account, err = ledger.NewAccount(tenantID, ownerID, currency, accountType)
	if err != nil {
		return nil, err
	}
	if err := s.accountRepo.Create(ctx, account); err != nil {
		if shared.IsCode(err, "ALREADY_EXISTS") {
			return s.accountRepo.FindByNaturalKey(ctx, tenantID, ownerID, currency, accountType)
		}
		return nil, err
	}
	return account, nil
}

func (s *TransactionService) houseAccount(ctx context.Context, tenantID uuid.UUID, currency string, accountType ledger.AccountType) (*ledger.Account, error) {
	return s.ensureAccount(ctx, tenantID, tenantID, currency, accountType)
}

// buildLines produces the balanced legs for a transaction. Commission
// and fees are charged on top of the amount for outbound types and
// deducted from the credited amount for inbound ones.
func (s *TransactionService) buildLines(ctx context.Context, scope tenantctx.Scope, txn *exchange.Transaction, baseCurrency string) ([]appledger.LineInput, map[uuid.UUID]decimal.Decimal, error) {
	if txn.FromAccountID == nil || txn.ToAccountID == nil {
		return nil, nil, shared.NewDomainError("INVALID_STATE", "Transaction accounts are not resolved")
	}

	fromRate, err := s.baseRateFor(ctx, scope, txn.FromCurrency, baseCurrency)
	if err != nil {
		return nil, nil, err
	}

	commissionID, feeID, err := s.chargeAccounts(ctx, scope, txn)
	if err != nil {
		return nil, nil, err
	}

	switch txn.Type {
	case exchange.TxnTypeExchange:
		return s.exchangeLines(ctx, scope, txn, fromRate, commissionID, feeID)

	case exchange.TxnTypeDeposit:
		lines := []appledger.LineInput{
			{AccountID: *txn.FromAccountID, Side: ledger.SideDebit, Amount: txn.Amount, Currency: txn.FromCurrency, ExchangeRateToBase: fromRate, Description: "cash received"},
			{AccountID: *txn.ToAccountID, Side: ledger.SideCredit, Amount: txn.NetAmount, Currency: txn.FromCurrency, ExchangeRateToBase: fromRate, Description: "wallet deposit"},
		}
		lines = appendCharges(lines, commissionID, feeID, txn, txn.FromCurrency, fromRate)
		return lines, nil, nil

	case exchange.TxnTypeWithdrawal:
		lines := []appledger.LineInput{
			{AccountID: *txn.FromAccountID, Side: ledger.SideDebit, Amount: txn.GrossDebit(), Currency: txn.FromCurrency, ExchangeRateToBase: fromRate, Description: "wallet withdrawal"},
			{AccountID: *txn.ToAccountID, Side: ledger.SideCredit, Amount: txn.Amount, Currency: txn.FromCurrency, ExchangeRateToBase: fromRate, Description: "cash paid out"},
		}
		lines = appendCharges(lines, commissionID, feeID, txn, txn.FromCurrency, fromRate)
		return lines, map[uuid.UUID]decimal.Decimal{*txn.FromAccountID: txn.GrossDebit()}, nil

	case exchange.TxnTypeTransfer:
		lines := []appledger.LineInput{
			{AccountID: *txn.FromAccountID, Side: ledger.SideDebit, Amount: txn.GrossDebit(), Currency: txn.FromCurrency, ExchangeRateToBase: fromRate, Description: "transfer out"},
			{AccountID: *txn.ToAccountID, Side: ledger.SideCredit, Amount: txn.Amount, Currency: txn.FromCurrency, ExchangeRateToBase: fromRate, Description: "transfer in"},
		}
		lines = appendCharges(lines, commissionID, feeID, txn, txn.FromCurrency, fromRate)
		return lines, map[uuid.UUID]decimal.Decimal{*txn.FromAccountID: txn.GrossDebit()}, nil

	case exchange.TxnTypeRemittanceSend:
		lines := []appledger.LineInput{
			{AccountID: *txn.FromAccountID, Side: ledger.SideDebit, Amount: txn.GrossDebit(), Currency: txn.FromCurrency, ExchangeRateToBase: fromRate, Description: "remittance out"},
			{AccountID: *txn.ToAccountID, Side: ledger.SideCredit, Amount: txn.Amount, Currency: txn.FromCurrency, ExchangeRateToBase: fromRate, Description: "held for payout"},
		}
		lines = appendCharges(lines, commissionID, feeID, txn, txn.FromCurrency, fromRate)
		return lines, map[uuid.UUID]decimal.Decimal{*txn.FromAccountID: txn.GrossDebit()}, nil

	case exchange.TxnTypeRemittanceRecv:
		lines := []appledger.LineInput{
			{AccountID: *txn.FromAccountID, Side: ledger.SideDebit, Amount: txn.Amount, Currency: txn.FromCurrency, ExchangeRateToBase: fromRate, Description: "payout released"},
			{AccountID: *txn.ToAccountID, Side: ledger.SideCredit, Amount: txn.NetAmount, Currency: txn.FromCurrency, ExchangeRateToBase: fromRate, Description: "remittance received"},
		}
		lines = appendCharges(lines, commissionID, feeID, txn, txn.FromCurrency, fromRate)
		return lines, nil, nil

	default:
		return nil, nil, shared.NewDomainError("INVALID_TYPE", "Unknown transaction type")
	}
}

// exchangeLines moves the full amount through the liquidity accounts
// of both currencies. The target legs carry the deal-implied base rate
// so both sides convert to identical base totals.
func (s *TransactionService) exchangeLines(ctx context.Context, scope tenantctx.Scope, txn *exchange.Transaction, fromRate decimal.Decimal, commissionID, feeID uuid.UUID) ([]appledger.LineInput, map[uuid.UUID]decimal.Decimal, error) {
	if txn.EquivalentAmount.IsZero() {
		return nil, nil, shared.NewDomainError("INVALID_STATE", "Exchange has no converted amount")
	}

	liqFrom, err := s.houseAccount(ctx, scope.TenantID, txn.FromCurrency, ledger.AccountTypeInternal)
	if err != nil {
		return nil, nil, err
	}
	liqTo, err := s.houseAccount(ctx, scope.TenantID, txn.ToCurrency, ledger.AccountTypeInternal)
	if err != nil {
		return nil, nil, err
	}

	toRate := fromRate.Mul(txn.Amount).DivRound(txn.EquivalentAmount, 12)

	lines := []appledger.LineInput{
		{AccountID: *txn.FromAccountID, Side: ledger.SideDebit, Amount: txn.GrossDebit(), Currency: txn.FromCurrency, ExchangeRateToBase: fromRate, Description: "sold"},
		{AccountID: liqFrom.ID, Side: ledger.SideCredit, Amount: txn.Amount, Currency: txn.FromCurrency, ExchangeRateToBase: fromRate, Description: "liquidity in"},
		{AccountID: liqTo.ID, Side: ledger.SideDebit, Amount: txn.EquivalentAmount, Currency: txn.ToCurrency, ExchangeRateToBase: toRate, Description: "liquidity out"},
		{AccountID: *txn.ToAccountID, Side: ledger.SideCredit, Amount: txn.EquivalentAmount, Currency: txn.ToCurrency, ExchangeRateToBase: toRate, Description: "bought"},
	}
	lines = appendCharges(lines, commissionID, feeID, txn, txn.FromCurrency, fromRate)

	settle := map[uuid.UUID]decimal.Decimal{*txn.FromAccountID: txn.GrossDebit()}
	return lines, settle, nil
}

// chargeAccounts resolves the income accounts a transaction's charges
// credit. Each account is opened only when its charge is due.
func (s *TransactionService) chargeAccounts(ctx context.Context, scope tenantctx.Scope, txn *exchange.Transaction) (uuid.UUID, uuid.UUID, error) {
	var commissionID, feeID uuid.UUID
	if txn.Commission.IsPositive() {
		account, err := s.houseAccount(ctx, scope.TenantID, txn.FromCurrency, ledger.AccountTypeCommission)
		if err != nil {
			return uuid.Nil, uuid.Nil, err
		}
		commissionID = account.ID
	}
	if txn.Fees.IsPositive() {
		account, err := s.houseAccount(ctx, scope.TenantID, txn.FromCurrency, ledger.AccountTypeFee)
		if err != nil {
			return uuid.Nil, uuid.Nil, err
		}
		feeID = account.ID
	}
	return commissionID, feeID, nil
}

// appendCharges credits commission income and fee income on their own
// legs so the two revenue streams stay separable in the ledger.
func appendCharges(lines []appledger.LineInput, commissionID, feeID uuid.UUID, txn *exchange.Transaction, currency string, rate decimal.Decimal) []appledger.LineInput {
	if txn.Commission.IsPositive() {
		lines = append(lines, appledger.LineInput{
			AccountID:          commissionID,
			Side:               ledger.SideCredit,
			Amount:             txn.Commission,
			Currency:           currency,
			ExchangeRateToBase: rate,
			Description:        "commission",
		})
	}
	if txn.Fees.IsPositive() {
		lines = append(lines, appledger.LineInput{
			AccountID:          feeID,
			Side:               ledger.SideCredit,
			Amount:             txn.Fees,
			Currency:           currency,
			ExchangeRateToBase: rate,
			Description:        "fees",
		})
	}
	return lines
}

// baseRateFor returns the multiplier that converts one unit of the
// currency into the tenant's base currency.
func (s *TransactionService) baseRateFor(ctx context.Context, scope tenantctx.Scope, currency, baseCurrency string) (decimal.Decimal, error) {
	if currency == baseCurrency {
		return decimal.NewFromInt(1), nil
	}

	// a quote for base/currency is base units per currency unit, which
	// is exactly the conversion multiplier
	if _, quoted, err := s.rates.Quote(ctx, scope, baseCurrency, currency, exchange.DirectionBuy); err == nil {
		return quoted, nil
	}
	_, quoted, err := s.rates.Quote(ctx, scope, currency, baseCurrency, exchange.DirectionBuy)
	if err != nil {
		return decimal.Zero, err
	}
	if quoted.IsZero() {
		return decimal.Zero, shared.NewDomainError("RATE_UNAVAILABLE", "No conversion rate to the base currency")
	}
	return decimal.NewFromInt(1).DivRound(quoted, 12), nil
}
