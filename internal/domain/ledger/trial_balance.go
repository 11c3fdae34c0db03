package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TrialBalanceRow is the per-account net position at a point in time.
// NetDebit and NetCredit are mutually exclusive; the nonzero one is the
// account's net side.
type TrialBalanceRow struct {
	AccountID     uuid.UUID       `json:"account_id"`
	AccountNumber string          `json:"account_number"`
	AccountType   AccountType     `json:"account_type"`
	Currency      string          `json:"currency"`
	NetDebit      decimal.Decimal `json:"net_debit"`
	NetCredit     decimal.Decimal `json:"net_credit"`
	BaseNet       decimal.Decimal `json:"base_net"` // Signed, debit positive, in base currency
}

// TrialBalanceResult is the outcome of a trial-balance computation
type TrialBalanceResult struct {
	TenantID    uuid.UUID         `json:"tenant_id"`
	AsOf        time.Time         `json:"as_of"`
	Rows        []TrialBalanceRow `json:"rows"`
	TotalDebit  decimal.Decimal   `json:"total_debit"`  // Base currency
	TotalCredit decimal.Decimal   `json:"total_credit"` // Base currency
	Balanced    bool              `json:"balanced"`
	ComputedAt  time.Time         `json:"computed_at"`
}

// Imbalance returns the absolute base-currency difference between total
// debits and credits.
func (r *TrialBalanceResult) Imbalance() decimal.Decimal {
	return r.TotalDebit.Sub(r.TotalCredit).Abs()
}

// ComputeTrialBalance folds posted journal lines into per-account net
// positions. Drafts must not be included in lines; the repository's
// PostedLinesThrough guarantees that. The result balances when total
// base debits equal total base credits within one minor unit of the
// base currency.
func ComputeTrialBalance(tenantID uuid.UUID, asOf time.Time, lines []JournalLine, accounts map[uuid.UUID]*Account, baseCurrency string) *TrialBalanceResult {
	type acc struct {
		debit  decimal.Decimal
		credit decimal.Decimal
		base   decimal.Decimal
	}
	byAccount := make(map[uuid.UUID]*acc)

	totalDebit := decimal.Zero
	totalCredit := decimal.Zero

	for _, line := range lines {
		slot, ok := byAccount[line.AccountID]
		if !ok {
			slot = &acc{}
			byAccount[line.AccountID] = slot
		}
		if line.Side == SideDebit {
			slot.debit = slot.debit.Add(line.Amount)
			slot.base = slot.base.Add(line.BaseAmount())
			totalDebit = totalDebit.Add(line.BaseAmount())
		} else {
			slot.credit = slot.credit.Add(line.Amount)
			slot.base = slot.base.Sub(line.BaseAmount())
			totalCredit = totalCredit.Add(line.BaseAmount())
		}
	}

	rows := make([]TrialBalanceRow, 0, len(byAccount))
	for accountID, slot := range byAccount {
		row := TrialBalanceRow{
			AccountID: accountID,
			BaseNet:   slot.base,
		}
		if account, ok := accounts[accountID]; ok {
			row.AccountNumber = account.AccountNumber
			row.AccountType = account.Type
			row.Currency = account.Currency
		}
		net := slot.debit.Sub(slot.credit)
		if net.IsNegative() {
			row.NetCredit = net.Neg()
		} else {
			row.NetDebit = net
		}
		rows = append(rows, row)
	}

	return &TrialBalanceResult{
		TenantID:    tenantID,
		AsOf:        asOf,
		Rows:        rows,
		TotalDebit:  totalDebit,
		TotalCredit: totalCredit,
		Balanced:    totalDebit.Sub(totalCredit).Abs().LessThanOrEqual(baseTolerance(baseCurrency)),
		ComputedAt:  time.Now(),
	}
}
