package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLine(t *testing.T, accountID uuid.UUID, side LineSide, amount, currency, rate string) JournalLine {
	t.Helper()
	line, err := NewJournalLine(accountID, side, d(amount), currency, d(rate), "")
	require.NoError(t, err)
	return line
}

func TestNewJournalLine(t *testing.T) {
	accountID := uuid.New()

	t.Run("valid line", func(t *testing.T) {
		line, err := NewJournalLine(accountID, SideDebit, d("10.00"), "USD", d("1"), "leg")
		require.NoError(t, err)
		assert.Equal(t, SideDebit, line.Side)
		assert.True(t, line.BaseAmount().Equal(d("10.00")))
	})

	t.Run("rejects zero amount", func(t *testing.T) {
		_, err := NewJournalLine(accountID, SideDebit, decimal.Zero, "USD", d("1"), "")
		assert.Error(t, err)
	})

	t.Run("rejects bad side", func(t *testing.T) {
		_, err := NewJournalLine(accountID, LineSide("both"), d("1"), "USD", d("1"), "")
		assert.Error(t, err)
	})

	t.Run("rejects non-positive rate", func(t *testing.T) {
		_, err := NewJournalLine(accountID, SideCredit, d("1"), "USD", decimal.Zero, "")
		assert.Error(t, err)
	})

	t.Run("base amount uses the line rate", func(t *testing.T) {
		line, err := NewJournalLine(accountID, SideDebit, d("100.00"), "EUR", d("1.10"), "")
		require.NoError(t, err)
		assert.True(t, line.BaseAmount().Equal(d("110.00")))
	})
}

func TestNewDraftEntry(t *testing.T) {
	tenantID := uuid.New()
	actor := uuid.New()

	t.Run("balanced single-currency draft", func(t *testing.T) {
		lines := []JournalLine{
			mustLine(t, uuid.New(), SideDebit, "100.00", "USD", "1"),
			mustLine(t, uuid.New(), SideCredit, "100.00", "USD", "1"),
		}

		entry, err := NewDraftEntry(tenantID, EntryTypeTransfer, "internal move", nil, "USD", actor, lines)
		require.NoError(t, err)
		assert.Equal(t, EntryStatusDraft, entry.Status)
		assert.Empty(t, entry.EntryNumber)
		assert.True(t, entry.TotalDebit.Equal(d("100.00")))
		assert.True(t, entry.TotalCredit.Equal(d("100.00")))
		assert.Equal(t, time.Now().Year(), entry.Period.Year)
	})

	t.Run("rejects unbalanced draft", func(t *testing.T) {
		lines := []JournalLine{
			mustLine(t, uuid.New(), SideDebit, "100.00", "USD", "1"),
			mustLine(t, uuid.New(), SideCredit, "99.00", "USD", "1"),
		}

		_, err := NewDraftEntry(tenantID, EntryTypeTransfer, "", nil, "USD", actor, lines)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "differ")
	})

	t.Run("rejects single-line draft", func(t *testing.T) {
		lines := []JournalLine{
			mustLine(t, uuid.New(), SideDebit, "100.00", "USD", "1"),
		}

		_, err := NewDraftEntry(tenantID, EntryTypeTransfer, "", nil, "USD", actor, lines)
		assert.Error(t, err)
	})

	t.Run("multi-currency draft balances per currency and in base", func(t *testing.T) {
		customerUSD := uuid.New()
		liquidityUSD := uuid.New()
		commissionUSD := uuid.New()
		liquidityEUR := uuid.New()
		customerEUR := uuid.New()

		// Exchange of 110 USD into 100 EUR with 1.00 USD commission,
		// base currency USD, EUR booked at 1.10 to base.
		lines := []JournalLine{
			mustLine(t, customerUSD, SideDebit, "111.00", "USD", "1"),
			mustLine(t, liquidityUSD, SideCredit, "110.00", "USD", "1"),
			mustLine(t, commissionUSD, SideCredit, "1.00", "USD", "1"),
			mustLine(t, liquidityEUR, SideDebit, "100.00", "EUR", "1.10"),
			mustLine(t, customerEUR, SideCredit, "100.00", "EUR", "1.10"),
		}

		entry, err := NewDraftEntry(tenantID, EntryTypeExchange, "USD to EUR", nil, "USD", actor, lines)
		require.NoError(t, err)
		assert.Len(t, entry.Lines, 5)
	})

	t.Run("per-currency imbalance rejected even when base balances", func(t *testing.T) {
		// 100 USD debit vs 90.91 EUR credit at 1.10: base nets to ~0
		// but neither currency balances on its own.
		lines := []JournalLine{
			mustLine(t, uuid.New(), SideDebit, "100.00", "USD", "1"),
			mustLine(t, uuid.New(), SideCredit, "90.91", "EUR", "1.10"),
		}

		_, err := NewDraftEntry(tenantID, EntryTypeExchange, "", nil, "USD", actor, lines)
		assert.Error(t, err)
	})

	t.Run("base imbalance beyond one minor unit rejected", func(t *testing.T) {
		// Both currencies balance individually but EUR legs carry
		// different rates to base, leaving a 5.00 USD base gap.
		lines := []JournalLine{
			mustLine(t, uuid.New(), SideDebit, "110.00", "USD", "1"),
			mustLine(t, uuid.New(), SideCredit, "110.00", "USD", "1"),
			mustLine(t, uuid.New(), SideDebit, "100.00", "EUR", "1.10"),
			mustLine(t, uuid.New(), SideCredit, "100.00", "EUR", "1.05"),
		}

		_, err := NewDraftEntry(tenantID, EntryTypeExchange, "", nil, "USD", actor, lines)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "base-currency")
	})
}

func TestJournalEntryLifecycle(t *testing.T) {
	tenantID := uuid.New()
	actor := uuid.New()

	newDraft := func(t *testing.T) *JournalEntry {
		t.Helper()
		lines := []JournalLine{
			mustLine(t, uuid.New(), SideDebit, "100.00", "USD", "1"),
			mustLine(t, uuid.New(), SideCredit, "100.00", "USD", "1"),
		}
		entry, err := NewDraftEntry(tenantID, EntryTypeTransfer, "move", nil, "USD", actor, lines)
		require.NoError(t, err)
		return entry
	}

	t.Run("post assigns number and stamps actor", func(t *testing.T) {
		entry := newDraft(t)

		require.NoError(t, entry.MarkPosted("JE-2026-000001", actor))

		assert.Equal(t, EntryStatusPosted, entry.Status)
		assert.Equal(t, "JE-2026-000001", entry.EntryNumber)
		require.NotNil(t, entry.PostedBy)
		assert.Equal(t, actor, *entry.PostedBy)
		assert.NotNil(t, entry.PostedAt)
	})

	t.Run("double post rejected", func(t *testing.T) {
		entry := newDraft(t)
		require.NoError(t, entry.MarkPosted("JE-2026-000002", actor))

		assert.Error(t, entry.MarkPosted("JE-2026-000003", actor))
	})

	t.Run("cannot reverse a draft", func(t *testing.T) {
		entry := newDraft(t)
		assert.Error(t, entry.MarkReversed(actor))
	})

	t.Run("cancel only applies to drafts", func(t *testing.T) {
		entry := newDraft(t)
		require.NoError(t, entry.MarkPosted("JE-2026-000004", actor))
		assert.Error(t, entry.Cancel())

		draft := newDraft(t)
		require.NoError(t, draft.Cancel())
		assert.Equal(t, EntryStatusCancelled, draft.Status)
	})
}

func TestBuildReversal(t *testing.T) {
	tenantID := uuid.New()
	actor := uuid.New()
	debitAccount := uuid.New()
	creditAccount := uuid.New()

	post := func(t *testing.T) *JournalEntry {
		t.Helper()
		lines := []JournalLine{
			mustLine(t, debitAccount, SideDebit, "100.00", "USD", "1"),
			mustLine(t, creditAccount, SideCredit, "100.00", "USD", "1"),
		}
		entry, err := NewDraftEntry(tenantID, EntryTypeTransfer, "move", nil, "USD", actor, lines)
		require.NoError(t, err)
		require.NoError(t, entry.MarkPosted("JE-2026-000010", actor))
		return entry
	}

	t.Run("reversal swaps sides and links back", func(t *testing.T) {
		entry := post(t)

		reversal, err := entry.BuildReversal(actor, "customer refund", "USD")
		require.NoError(t, err)

		require.NotNil(t, reversal.ReversalOf)
		assert.Equal(t, entry.ID, *reversal.ReversalOf)
		assert.Equal(t, EntryTypeReversal, reversal.Type)
		require.Len(t, reversal.Lines, 2)

		for i, original := range entry.Lines {
			assert.Equal(t, original.AccountID, reversal.Lines[i].AccountID)
			assert.NotEqual(t, original.Side, reversal.Lines[i].Side)
			assert.True(t, original.Amount.Equal(reversal.Lines[i].Amount))
		}
	})

	t.Run("reversal requires a reason", func(t *testing.T) {
		entry := post(t)
		_, err := entry.BuildReversal(actor, "", "USD")
		assert.Error(t, err)
	})

	t.Run("reversal of a draft rejected", func(t *testing.T) {
		lines := []JournalLine{
			mustLine(t, debitAccount, SideDebit, "10.00", "USD", "1"),
			mustLine(t, creditAccount, SideCredit, "10.00", "USD", "1"),
		}
		draft, err := NewDraftEntry(tenantID, EntryTypeTransfer, "", nil, "USD", actor, lines)
		require.NoError(t, err)

		_, err = draft.BuildReversal(actor, "reason", "USD")
		assert.Error(t, err)
	})
}

func TestFormatEntryNumber(t *testing.T) {
	assert.Equal(t, "JE-2026-000001", FormatEntryNumber(2026, 1))
	assert.Equal(t, "JE-2026-012345", FormatEntryNumber(2026, 12345))
}

func TestComputeTrialBalance(t *testing.T) {
	tenantID := uuid.New()

	t.Run("balanced ledger", func(t *testing.T) {
		wallet, err := NewAccount(tenantID, uuid.New(), "USD", AccountTypeCustomerWallet)
		require.NoError(t, err)
		vault, err := NewAccount(tenantID, uuid.New(), "USD", AccountTypeCash)
		require.NoError(t, err)
		accounts := map[uuid.UUID]*Account{wallet.ID: wallet, vault.ID: vault}

		lines := []JournalLine{
			mustLine(t, vault.ID, SideDebit, "500.00", "USD", "1"),
			mustLine(t, wallet.ID, SideCredit, "500.00", "USD", "1"),
			mustLine(t, wallet.ID, SideDebit, "100.00", "USD", "1"),
			mustLine(t, vault.ID, SideCredit, "100.00", "USD", "1"),
		}

		result := ComputeTrialBalance(tenantID, time.Now(), lines, accounts, "USD")

		assert.True(t, result.Balanced)
		assert.True(t, result.Imbalance().IsZero())
		require.Len(t, result.Rows, 2)

		for _, row := range result.Rows {
			switch row.AccountID {
			case vault.ID:
				assert.True(t, row.NetDebit.Equal(d("400.00")))
				assert.True(t, row.NetCredit.IsZero())
			case wallet.ID:
				assert.True(t, row.NetCredit.Equal(d("400.00")))
				assert.True(t, row.NetDebit.IsZero())
			}
		}
	})

	t.Run("imbalance detected", func(t *testing.T) {
		accountID := uuid.New()
		lines := []JournalLine{
			mustLine(t, accountID, SideDebit, "100.00", "USD", "1"),
			mustLine(t, uuid.New(), SideCredit, "90.00", "USD", "1"),
		}

		result := ComputeTrialBalance(tenantID, time.Now(), lines, nil, "USD")

		assert.False(t, result.Balanced)
		assert.True(t, result.Imbalance().Equal(d("10.00")))
	})

	t.Run("empty ledger balances", func(t *testing.T) {
		result := ComputeTrialBalance(tenantID, time.Now(), nil, nil, "USD")
		assert.True(t, result.Balanced)
		assert.Empty(t, result.Rows)
	})
}
