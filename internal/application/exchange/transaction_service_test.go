package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appaudit "github.com/kambio/backend/internal/application/audit"
	appledger "github.com/kambio/backend/internal/application/ledger"
	"github.com/kambio/backend/internal/application/tenantctx"
	"github.com/kambio/backend/internal/domain/exchange"
	"github.com/kambio/backend/internal/domain/identity"
	"github.com/kambio/backend/internal/domain/ledger"
	"github.com/kambio/backend/internal/domain/shared"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type orchestratorFixture struct {
	tenant   *identity.Tenant
	customer *identity.User

	adminScope    tenantctx.Scope
	customerScope tenantctx.Scope

	txns     *memTxnRepo
	accounts *memAccountRepo
	journal  *memJournalRepo
	rates    *memRateRepo
	users    *memUserRepo
	tenants  *memTenantRepo
	audits   *memAuditRepo

	recorder  *appaudit.Recorder
	balances  *appledger.BalanceService
	entries   *appledger.JournalService
	rateSvc   *RateService
	published *memEventBus
	svc       *TransactionService
}

func newOrchestratorFixture(t *testing.T, config OrchestratorConfig) *orchestratorFixture {
	t.Helper()

	tenant, err := identity.NewTenant("T0001", "Main Desk", "USD")
	require.NoError(t, err)

	customer, err := identity.NewUser(tenant.ID, "carmen", "Str0ngPass!x", identity.RoleCustomer)
	require.NoError(t, err)
	require.NoError(t, customer.ApproveKYC())

	f := &orchestratorFixture{
		tenant:   tenant,
		customer: customer,
		txns:     newMemTxnRepo(),
		accounts: newMemAccountRepo(),
		journal:  newMemJournalRepo(),
		rates:    &memRateRepo{},
		users:    newMemUserRepo(),
		tenants:  &memTenantRepo{tenant: tenant},
		audits:   &memAuditRepo{},
	}
	require.NoError(t, f.users.Create(context.Background(), customer))

	f.adminScope = tenantctx.NewScope(uuid.New(), tenant.ID, identity.RoleTenantAdmin)
	f.customerScope = tenantctx.NewScope(customer.ID, tenant.ID, identity.RoleCustomer)

	logger := zap.NewNop()
	f.recorder = appaudit.NewRecorder(f.audits, appaudit.DefaultRecorderConfig(), logger)
	t.Cleanup(func() { _ = f.recorder.Close(context.Background()) })

	f.balances = appledger.NewBalanceService(f.accounts, f.tenants, f.recorder, logger)
	f.entries = appledger.NewJournalService(&memScope{accounts: f.accounts, journal: f.journal}, f.tenants, f.recorder, logger)
	f.rateSvc = NewRateService(f.rates, nil, DefaultRateServiceConfig(), f.recorder, logger)
	f.published = &memEventBus{}
	f.svc = NewTransactionService(
		f.txns, f.accounts, f.users, f.tenants,
		f.rateSvc, f.balances, f.entries,
		exchange.DefaultCommissionPolicy(), config,
		f.recorder, f.published, logger,
	)
	return f
}

func (f *orchestratorFixture) seedAccount(t *testing.T, owner uuid.UUID, currency string, accountType ledger.AccountType, balance decimal.Decimal) *ledger.Account {
	t.Helper()
	account, err := ledger.NewAccount(f.tenant.ID, owner, currency, accountType)
	require.NoError(t, err)
	account.Balance = balance
	require.NoError(t, f.accounts.Create(context.Background(), account))
	return account
}

func (f *orchestratorFixture) publishRate(t *testing.T, from, to, buy, sell string) {
	t.Helper()
	_, err := f.rateSvc.Publish(context.Background(), f.adminScope, PublishRateInput{
		FromCurrency:  from,
		ToCurrency:    to,
		BuyRate:       d(buy),
		SellRate:      d(sell),
		Source:        exchange.RateSourceManual,
		EffectiveFrom: time.Now(),
	})
	require.NoError(t, err)
}

func (f *orchestratorFixture) balanceOf(t *testing.T, owner uuid.UUID, currency string, accountType ledger.AccountType) *ledger.Account {
	t.Helper()
	account, err := f.accounts.FindByNaturalKey(context.Background(), f.tenant.ID, owner, currency, accountType)
	require.NoError(t, err)
	return account
}

func TestTransactionService_ExchangeHappyPath(t *testing.T) {
	f := newOrchestratorFixture(t, DefaultOrchestratorConfig())
	f.seedAccount(t, f.customer.ID, "USD", ledger.AccountTypeCustomerWallet, d("1000"))
	f.seedAccount(t, f.tenant.ID, "EUR", ledger.AccountTypeInternal, d("500"))
	f.publishRate(t, "USD", "EUR", "1.10", "1.12")

	txn, err := f.svc.Create(context.Background(), f.customerScope, CreateTransactionInput{
		Type:         exchange.TxnTypeExchange,
		FromCurrency: "USD",
		ToCurrency:   "EUR",
		Amount:       d("110"),
		Description:  "holiday money",
	})
	require.NoError(t, err)
	require.Equal(t, exchange.TxnStatusCompleted, txn.Status)

	assert.True(t, txn.EquivalentAmount.Equal(d("100")), "equivalent %s", txn.EquivalentAmount)
	assert.True(t, txn.Commission.Equal(d("1")), "commission %s", txn.Commission)
	require.NotNil(t, txn.JournalEntryID)

	usdWallet := f.balanceOf(t, f.customer.ID, "USD", ledger.AccountTypeCustomerWallet)
	assert.True(t, usdWallet.Balance.Equal(d("889")), "usd wallet %s", usdWallet.Balance)
	assert.True(t, usdWallet.Frozen.IsZero(), "frozen %s", usdWallet.Frozen)

	eurWallet := f.balanceOf(t, f.customer.ID, "EUR", ledger.AccountTypeCustomerWallet)
	assert.True(t, eurWallet.Balance.Equal(d("100")), "eur wallet %s", eurWallet.Balance)

	liqUSD := f.balanceOf(t, f.tenant.ID, "USD", ledger.AccountTypeInternal)
	assert.True(t, liqUSD.Balance.Equal(d("110")), "usd liquidity %s", liqUSD.Balance)

	liqEUR := f.balanceOf(t, f.tenant.ID, "EUR", ledger.AccountTypeInternal)
	assert.True(t, liqEUR.Balance.Equal(d("400")), "eur liquidity %s", liqEUR.Balance)

	commission := f.balanceOf(t, f.tenant.ID, "USD", ledger.AccountTypeCommission)
	assert.True(t, commission.Balance.Equal(d("1")), "commission %s", commission.Balance)

	entries, err := f.journal.FindBySourceTxn(context.Background(), f.tenant.ID, txn.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.EntryStatusPosted, entries[0].Status)

	types := f.published.eventTypes()
	assert.Contains(t, types, exchange.TransactionCreatedEventType)
	assert.Contains(t, types, exchange.TransactionStatusChangedEventType)
}

func TestTransactionService_IdempotentRetry(t *testing.T) {
	f := newOrchestratorFixture(t, DefaultOrchestratorConfig())
	f.seedAccount(t, f.customer.ID, "USD", ledger.AccountTypeCustomerWallet, d("1000"))
	f.seedAccount(t, f.tenant.ID, "EUR", ledger.AccountTypeInternal, d("500"))
	f.publishRate(t, "USD", "EUR", "1.10", "1.12")

	input := CreateTransactionInput{
		Type:           exchange.TxnTypeExchange,
		FromCurrency:   "USD",
		ToCurrency:     "EUR",
		Amount:         d("110"),
		IdempotencyKey: "req-42",
	}

	first, err := f.svc.Create(context.Background(), f.customerScope, input)
	require.NoError(t, err)

	second, err := f.svc.Create(context.Background(), f.customerScope, input)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, exchange.TxnStatusCompleted, second.Status)

	// the retry moved no money
	usdWallet := f.balanceOf(t, f.customer.ID, "USD", ledger.AccountTypeCustomerWallet)
	assert.True(t, usdWallet.Balance.Equal(d("889")), "usd wallet %s", usdWallet.Balance)

	input.Amount = d("55")
	_, err = f.svc.Create(context.Background(), f.customerScope, input)
	assert.True(t, shared.IsCode(err, "IDEMPOTENCY_CONFLICT"))
}

func TestTransactionService_InsufficientFunds(t *testing.T) {
	f := newOrchestratorFixture(t, DefaultOrchestratorConfig())
	f.seedAccount(t, f.customer.ID, "USD", ledger.AccountTypeCustomerWallet, d("100"))
	f.seedAccount(t, f.tenant.ID, "EUR", ledger.AccountTypeInternal, d("5000"))
	f.publishRate(t, "USD", "EUR", "1.10", "1.12")

	txn, err := f.svc.Create(context.Background(), f.customerScope, CreateTransactionInput{
		Type:         exchange.TxnTypeExchange,
		FromCurrency: "USD",
		ToCurrency:   "EUR",
		Amount:       d("500"),
	})
	require.Error(t, err)
	assert.True(t, shared.IsCode(err, "INSUFFICIENT_FUNDS"))
	require.NotNil(t, txn)
	assert.Equal(t, exchange.TxnStatusFailed, txn.Status)
	assert.Equal(t, "INSUFFICIENT_FUNDS", txn.ErrorCode)

	wallet := f.balanceOf(t, f.customer.ID, "USD", ledger.AccountTypeCustomerWallet)
	assert.True(t, wallet.Frozen.IsZero(), "frozen %s", wallet.Frozen)
	assert.True(t, wallet.Balance.Equal(d("100")))
}

func TestTransactionService_SecondReserveFindsBalanceSpent(t *testing.T) {
	f := newOrchestratorFixture(t, DefaultOrchestratorConfig())
	f.seedAccount(t, f.customer.ID, "USD", ledger.AccountTypeCustomerWallet, d("1000"))
	f.seedAccount(t, f.tenant.ID, "EUR", ledger.AccountTypeInternal, d("5000"))
	f.publishRate(t, "USD", "EUR", "1.10", "1.12")

	input := CreateTransactionInput{
		Type:         exchange.TxnTypeExchange,
		FromCurrency: "USD",
		ToCurrency:   "EUR",
		Amount:       d("600"),
	}

	first, err := f.svc.Create(context.Background(), f.customerScope, input)
	require.NoError(t, err)
	assert.Equal(t, exchange.TxnStatusCompleted, first.Status)

	second, err := f.svc.Create(context.Background(), f.customerScope, input)
	require.Error(t, err)
	assert.True(t, shared.IsCode(err, "INSUFFICIENT_FUNDS"))
	require.NotNil(t, second)
	assert.Equal(t, exchange.TxnStatusFailed, second.Status)

	// only the first transaction moved money
	wallet := f.balanceOf(t, f.customer.ID, "USD", ledger.AccountTypeCustomerWallet)
	assert.True(t, wallet.Frozen.IsZero(), "frozen %s", wallet.Frozen)
	assert.True(t, wallet.Balance.LessThan(d("600")), "balance %s", wallet.Balance)
}

func TestTransactionService_RequiresApprovedKYC(t *testing.T) {
	f := newOrchestratorFixture(t, DefaultOrchestratorConfig())

	pending, err := identity.NewUser(f.tenant.ID, "newcomer", "Str0ngPass!x", identity.RoleCustomer)
	require.NoError(t, err)
	require.NoError(t, f.users.Create(context.Background(), pending))

	txn, err := f.svc.Create(context.Background(), f.adminScope, CreateTransactionInput{
		Type:         exchange.TxnTypeDeposit,
		CustomerID:   pending.ID,
		FromCurrency: "USD",
		ToCurrency:   "USD",
		Amount:       d("100"),
	})
	require.Error(t, err)
	assert.True(t, shared.IsCode(err, "KYC_REQUIRED"))
	assert.Equal(t, exchange.TxnStatusFailed, txn.Status)
}

func TestTransactionService_SingleLimitEnforced(t *testing.T) {
	f := newOrchestratorFixture(t, DefaultOrchestratorConfig())
	f.seedAccount(t, f.customer.ID, "USD", ledger.AccountTypeCustomerWallet, d("100000"))

	txn, err := f.svc.Create(context.Background(), f.customerScope, CreateTransactionInput{
		Type:         exchange.TxnTypeDeposit,
		FromCurrency: "USD",
		ToCurrency:   "USD",
		Amount:       d("6000"),
	})
	require.Error(t, err)
	assert.True(t, shared.IsCode(err, "LIMIT_EXCEEDED"))
	assert.Equal(t, exchange.TxnStatusFailed, txn.Status)
}

func TestTransactionService_DailyCapIsRolling(t *testing.T) {
	f := newOrchestratorFixture(t, DefaultOrchestratorConfig())

	deposit := func(amount string) (*exchange.Transaction, error) {
		return f.svc.Create(context.Background(), f.customerScope, CreateTransactionInput{
			Type:         exchange.TxnTypeDeposit,
			FromCurrency: "USD",
			ToCurrency:   "USD",
			Amount:       d(amount),
		})
	}

	for i := 0; i < 2; i++ {
		txn, err := deposit("4900")
		require.NoError(t, err)
		require.Equal(t, exchange.TxnStatusCompleted, txn.Status)
	}

	txn, err := deposit("300")
	require.Error(t, err)
	assert.True(t, shared.IsCode(err, "LIMIT_EXCEEDED"))
	assert.Equal(t, exchange.TxnStatusFailed, txn.Status)
}

func TestTransactionService_DepositSplitsCommission(t *testing.T) {
	f := newOrchestratorFixture(t, DefaultOrchestratorConfig())

	txn, err := f.svc.Create(context.Background(), f.customerScope, CreateTransactionInput{
		Type:         exchange.TxnTypeDeposit,
		FromCurrency: "USD",
		ToCurrency:   "USD",
		Amount:       d("200"),
	})
	require.NoError(t, err)
	require.Equal(t, exchange.TxnStatusCompleted, txn.Status)

	wallet := f.balanceOf(t, f.customer.ID, "USD", ledger.AccountTypeCustomerWallet)
	assert.True(t, wallet.Balance.Equal(d("199")), "wallet %s", wallet.Balance)

	cash := f.balanceOf(t, f.tenant.ID, "USD", ledger.AccountTypeCash)
	assert.True(t, cash.Balance.Equal(d("200")), "cash %s", cash.Balance)

	commission := f.balanceOf(t, f.tenant.ID, "USD", ledger.AccountTypeCommission)
	assert.True(t, commission.Balance.Equal(d("1")), "commission %s", commission.Balance)
}

func TestTransactionService_SplitsCommissionAndFeeIncome(t *testing.T) {
	f := newOrchestratorFixture(t, DefaultOrchestratorConfig())
	policy := exchange.CommissionPolicy{
		Percentage: d("0.005"),
		MinFee:     d("1.00"),
		FlatFees:   d("2.50"),
	}
	svc := NewTransactionService(
		f.txns, f.accounts, f.users, f.tenants,
		f.rateSvc, f.balances, f.entries,
		policy, DefaultOrchestratorConfig(),
		f.recorder, f.published, zap.NewNop(),
	)
	f.seedAccount(t, f.customer.ID, "USD", ledger.AccountTypeCustomerWallet, d("1000"))
	f.seedAccount(t, f.tenant.ID, "USD", ledger.AccountTypeCash, d("1000"))

	txn, err := svc.Create(context.Background(), f.customerScope, CreateTransactionInput{
		Type:         exchange.TxnTypeWithdrawal,
		FromCurrency: "USD",
		ToCurrency:   "USD",
		Amount:       d("200"),
	})
	require.NoError(t, err)
	require.Equal(t, exchange.TxnStatusCompleted, txn.Status)

	wallet := f.balanceOf(t, f.customer.ID, "USD", ledger.AccountTypeCustomerWallet)
	assert.True(t, wallet.Balance.Equal(d("796.50")), "wallet %s", wallet.Balance)

	commission := f.balanceOf(t, f.tenant.ID, "USD", ledger.AccountTypeCommission)
	assert.True(t, commission.Balance.Equal(d("1")), "commission %s", commission.Balance)

	fees := f.balanceOf(t, f.tenant.ID, "USD", ledger.AccountTypeFee)
	assert.True(t, fees.Balance.Equal(d("2.50")), "fees %s", fees.Balance)
}

func TestTransactionService_WithdrawalPaysFromTill(t *testing.T) {
	f := newOrchestratorFixture(t, DefaultOrchestratorConfig())
	f.seedAccount(t, f.customer.ID, "USD", ledger.AccountTypeCustomerWallet, d("1000"))
	f.seedAccount(t, f.tenant.ID, "USD", ledger.AccountTypeCash, d("1000"))

	txn, err := f.svc.Create(context.Background(), f.customerScope, CreateTransactionInput{
		Type:         exchange.TxnTypeWithdrawal,
		FromCurrency: "USD",
		ToCurrency:   "USD",
		Amount:       d("200"),
	})
	require.NoError(t, err)
	require.Equal(t, exchange.TxnStatusCompleted, txn.Status)

	wallet := f.balanceOf(t, f.customer.ID, "USD", ledger.AccountTypeCustomerWallet)
	assert.True(t, wallet.Balance.Equal(d("799")), "wallet %s", wallet.Balance)
	assert.True(t, wallet.Frozen.IsZero())

	cash := f.balanceOf(t, f.tenant.ID, "USD", ledger.AccountTypeCash)
	assert.True(t, cash.Balance.Equal(d("800")), "cash %s", cash.Balance)
}

func TestTransactionService_TransferCreditsCounterparty(t *testing.T) {
	f := newOrchestratorFixture(t, DefaultOrchestratorConfig())
	f.seedAccount(t, f.customer.ID, "USD", ledger.AccountTypeCustomerWallet, d("1000"))

	recipient, err := identity.NewUser(f.tenant.ID, "benito", "Str0ngPass!x", identity.RoleCustomer)
	require.NoError(t, err)
	require.NoError(t, f.users.Create(context.Background(), recipient))

	txn, err := f.svc.Create(context.Background(), f.customerScope, CreateTransactionInput{
		Type:               exchange.TxnTypeTransfer,
		CounterpartyUserID: &recipient.ID,
		FromCurrency:       "USD",
		ToCurrency:         "USD",
		Amount:             d("50"),
	})
	require.NoError(t, err)
	require.Equal(t, exchange.TxnStatusCompleted, txn.Status)

	sender := f.balanceOf(t, f.customer.ID, "USD", ledger.AccountTypeCustomerWallet)
	assert.True(t, sender.Balance.Equal(d("949")), "sender %s", sender.Balance)

	received := f.balanceOf(t, recipient.ID, "USD", ledger.AccountTypeCustomerWallet)
	assert.True(t, received.Balance.Equal(d("50")), "recipient %s", received.Balance)
}

func TestTransactionService_TransferNeedsCounterparty(t *testing.T) {
	f := newOrchestratorFixture(t, DefaultOrchestratorConfig())
	f.seedAccount(t, f.customer.ID, "USD", ledger.AccountTypeCustomerWallet, d("1000"))

	txn, err := f.svc.Create(context.Background(), f.customerScope, CreateTransactionInput{
		Type:         exchange.TxnTypeTransfer,
		FromCurrency: "USD",
		ToCurrency:   "USD",
		Amount:       d("50"),
	})
	require.Error(t, err)
	assert.True(t, shared.IsCode(err, "COUNTERPARTY_REQUIRED"))
	assert.Equal(t, exchange.TxnStatusFailed, txn.Status)
}

func TestTransactionService_LargeAmountParksForReview(t *testing.T) {
	config := DefaultOrchestratorConfig()
	config.ManualApprovalThreshold = d("100")
	f := newOrchestratorFixture(t, config)
	f.seedAccount(t, f.customer.ID, "USD", ledger.AccountTypeCustomerWallet, d("1000"))
	f.seedAccount(t, f.tenant.ID, "EUR", ledger.AccountTypeInternal, d("500"))
	f.publishRate(t, "USD", "EUR", "1.10", "1.12")

	txn, err := f.svc.Create(context.Background(), f.customerScope, CreateTransactionInput{
		Type:         exchange.TxnTypeExchange,
		FromCurrency: "USD",
		ToCurrency:   "EUR",
		Amount:       d("110"),
	})
	require.NoError(t, err)
	require.Equal(t, exchange.TxnStatusOnHold, txn.Status)

	// nothing moved while parked
	wallet := f.balanceOf(t, f.customer.ID, "USD", ledger.AccountTypeCustomerWallet)
	assert.True(t, wallet.Balance.Equal(d("1000")))
	assert.True(t, wallet.Frozen.IsZero())

	approved, err := f.svc.Review(context.Background(), f.adminScope, ReviewInput{
		TransactionID: txn.ID,
		Approve:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, exchange.TxnStatusCompleted, approved.Status)

	wallet = f.balanceOf(t, f.customer.ID, "USD", ledger.AccountTypeCustomerWallet)
	assert.True(t, wallet.Balance.Equal(d("889")), "wallet %s", wallet.Balance)
}

func TestTransactionService_ReviewReject(t *testing.T) {
	config := DefaultOrchestratorConfig()
	config.ManualApprovalThreshold = d("100")
	f := newOrchestratorFixture(t, config)
	f.seedAccount(t, f.customer.ID, "USD", ledger.AccountTypeCustomerWallet, d("1000"))

	txn, err := f.svc.Create(context.Background(), f.customerScope, CreateTransactionInput{
		Type:         exchange.TxnTypeDeposit,
		FromCurrency: "USD",
		ToCurrency:   "USD",
		Amount:       d("150"),
	})
	require.NoError(t, err)
	require.Equal(t, exchange.TxnStatusOnHold, txn.Status)

	rejected, err := f.svc.Review(context.Background(), f.adminScope, ReviewInput{
		TransactionID: txn.ID,
		Approve:       false,
		Reason:        "source of funds unclear",
	})
	require.NoError(t, err)
	assert.Equal(t, exchange.TxnStatusRejected, rejected.Status)
}

func TestTransactionService_CustomersCannotReview(t *testing.T) {
	f := newOrchestratorFixture(t, DefaultOrchestratorConfig())

	_, err := f.svc.Review(context.Background(), f.customerScope, ReviewInput{
		TransactionID: uuid.New(),
		Approve:       true,
	})
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestTransactionService_CancelParkedTransaction(t *testing.T) {
	config := DefaultOrchestratorConfig()
	config.ManualApprovalThreshold = d("100")
	f := newOrchestratorFixture(t, config)
	f.seedAccount(t, f.customer.ID, "USD", ledger.AccountTypeCustomerWallet, d("1000"))

	txn, err := f.svc.Create(context.Background(), f.customerScope, CreateTransactionInput{
		Type:         exchange.TxnTypeDeposit,
		FromCurrency: "USD",
		ToCurrency:   "USD",
		Amount:       d("150"),
	})
	require.NoError(t, err)
	require.Equal(t, exchange.TxnStatusOnHold, txn.Status)

	cancelled, err := f.svc.Cancel(context.Background(), f.customerScope, CancelInput{
		TransactionID: txn.ID,
		Reason:        "changed my mind",
	})
	require.NoError(t, err)
	assert.Equal(t, exchange.TxnStatusCancelled, cancelled.Status)
}

func TestTransactionService_CustomerCannotCancelForeignTransaction(t *testing.T) {
	config := DefaultOrchestratorConfig()
	config.ManualApprovalThreshold = d("100")
	f := newOrchestratorFixture(t, config)
	f.seedAccount(t, f.customer.ID, "USD", ledger.AccountTypeCustomerWallet, d("1000"))

	txn, err := f.svc.Create(context.Background(), f.customerScope, CreateTransactionInput{
		Type:         exchange.TxnTypeDeposit,
		FromCurrency: "USD",
		ToCurrency:   "USD",
		Amount:       d("150"),
	})
	require.NoError(t, err)
	require.Equal(t, exchange.TxnStatusOnHold, txn.Status)

	other := tenantctx.NewScope(uuid.New(), f.tenant.ID, identity.RoleCustomer)
	_, err = f.svc.Cancel(context.Background(), other, CancelInput{
		TransactionID: txn.ID,
		Reason:        "not mine",
	})
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestTransactionService_CompletedCannotBeCancelled(t *testing.T) {
	f := newOrchestratorFixture(t, DefaultOrchestratorConfig())

	txn, err := f.svc.Create(context.Background(), f.customerScope, CreateTransactionInput{
		Type:         exchange.TxnTypeDeposit,
		FromCurrency: "USD",
		ToCurrency:   "USD",
		Amount:       d("100"),
	})
	require.NoError(t, err)
	require.Equal(t, exchange.TxnStatusCompleted, txn.Status)

	_, err = f.svc.Cancel(context.Background(), f.customerScope, CancelInput{TransactionID: txn.ID})
	assert.Error(t, err)
}

func TestTransactionService_StaleRateRefused(t *testing.T) {
	f := newOrchestratorFixture(t, DefaultOrchestratorConfig())
	f.seedAccount(t, f.customer.ID, "USD", ledger.AccountTypeCustomerWallet, d("1000"))

	_, err := f.rateSvc.Publish(context.Background(), f.adminScope, PublishRateInput{
		FromCurrency:  "USD",
		ToCurrency:    "EUR",
		BuyRate:       d("1.10"),
		SellRate:      d("1.12"),
		Source:        exchange.RateSourceManual,
		EffectiveFrom: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	txn, err := f.svc.Create(context.Background(), f.customerScope, CreateTransactionInput{
		Type:         exchange.TxnTypeExchange,
		FromCurrency: "USD",
		ToCurrency:   "EUR",
		Amount:       d("110"),
	})
	require.Error(t, err)
	assert.True(t, shared.IsCode(err, "RATE_STALE"))
	assert.Equal(t, exchange.TxnStatusFailed, txn.Status)
}

func TestTransactionService_NoRatePublished(t *testing.T) {
	f := newOrchestratorFixture(t, DefaultOrchestratorConfig())
	f.seedAccount(t, f.customer.ID, "USD", ledger.AccountTypeCustomerWallet, d("1000"))

	txn, err := f.svc.Create(context.Background(), f.customerScope, CreateTransactionInput{
		Type:         exchange.TxnTypeExchange,
		FromCurrency: "USD",
		ToCurrency:   "EUR",
		Amount:       d("110"),
	})
	require.Error(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, exchange.TxnStatusFailed, txn.Status)
}

func TestTransactionService_ForeignTenantCannotSee(t *testing.T) {
	f := newOrchestratorFixture(t, DefaultOrchestratorConfig())

	txn, err := f.svc.Create(context.Background(), f.customerScope, CreateTransactionInput{
		Type:         exchange.TxnTypeDeposit,
		FromCurrency: "USD",
		ToCurrency:   "USD",
		Amount:       d("100"),
	})
	require.NoError(t, err)

	foreign := tenantctx.NewScope(uuid.New(), uuid.New(), identity.RoleTenantAdmin)
	_, err = f.svc.Get(context.Background(), foreign, txn.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestTransactionService_StatusHistoryIsComplete(t *testing.T) {
	f := newOrchestratorFixture(t, DefaultOrchestratorConfig())

	txn, err := f.svc.Create(context.Background(), f.customerScope, CreateTransactionInput{
		Type:         exchange.TxnTypeDeposit,
		FromCurrency: "USD",
		ToCurrency:   "USD",
		Amount:       d("100"),
	})
	require.NoError(t, err)

	stored, err := f.txns.FindByID(context.Background(), f.tenant.ID, txn.ID)
	require.NoError(t, err)

	var path []exchange.TransactionStatus
	for _, change := range stored.StatusHistory {
		path = append(path, change.To)
	}
	assert.Equal(t, []exchange.TransactionStatus{
		exchange.TxnStatusPending,
		exchange.TxnStatusVerified,
		exchange.TxnStatusApproved,
		exchange.TxnStatusProcessing,
		exchange.TxnStatusSettled,
		exchange.TxnStatusCompleted,
	}, path)
}
