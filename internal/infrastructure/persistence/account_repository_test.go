package persistence

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/kambio/backend/internal/domain/ledger"
	"github.com/kambio/backend/internal/domain/shared"
)

// newMockAccountRepository creates a GormAccountRepository with a mocked SQL connection
func newMockAccountRepository(t *testing.T) (*GormAccountRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormAccountRepository(gormDB), mock, mockDB
}

func TestGormAccountRepository_FindByID(t *testing.T) {
	t.Run("finds existing account", func(t *testing.T) {
		repo, mock, mockDB := newMockAccountRepository(t)
		defer mockDB.Close()

		accountID := uuid.New()
		tenantID := uuid.New()

		rows := sqlmock.NewRows([]string{"id", "tenant_id", "version", "account_number", "owner_user_id", "currency", "type", "status", "balance", "frozen", "pending"}).
			AddRow(accountID, tenantID, 1, "ACC-00000001", uuid.New(), "USD", "customer_wallet", "active", decimal.NewFromInt(100), decimal.Zero, decimal.Zero)

		mock.ExpectQuery(`SELECT \* FROM "ledger_accounts" WHERE id = \$1 AND tenant_id = \$2 ORDER BY .* LIMIT .*`).
			WithArgs(accountID, tenantID, 1).
			WillReturnRows(rows)

		account, err := repo.FindByID(context.Background(), tenantID, accountID)

		assert.NoError(t, err)
		assert.NotNil(t, account)
		assert.Equal(t, accountID, account.ID)
		assert.Equal(t, "USD", account.Currency)
		assert.True(t, account.Balance.Equal(decimal.NewFromInt(100)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns ErrNotFound for missing account", func(t *testing.T) {
		repo, mock, mockDB := newMockAccountRepository(t)
		defer mockDB.Close()

		accountID := uuid.New()
		tenantID := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "ledger_accounts"`).
			WithArgs(accountID, tenantID, 1).
			WillReturnError(gorm.ErrRecordNotFound)

		account, err := repo.FindByID(context.Background(), tenantID, accountID)

		assert.Error(t, err)
		assert.Nil(t, account)
		assert.Equal(t, shared.ErrNotFound, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormAccountRepository_SaveWithLock(t *testing.T) {
	newTestAccount := func(t *testing.T) *ledger.Account {
		account, err := ledger.NewAccount(uuid.New(), uuid.New(), "USD", ledger.AccountTypeCustomerWallet)
		require.NoError(t, err)
		return account
	}

	t.Run("persists when stored version matches", func(t *testing.T) {
		repo, mock, mockDB := newMockAccountRepository(t)
		defer mockDB.Close()

		account := newTestAccount(t)
		require.NoError(t, account.Credit(decimal.NewFromInt(50)))

		mock.ExpectExec(`UPDATE "ledger_accounts" SET .* WHERE id = \$\d+ AND version = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.SaveWithLock(context.Background(), account)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns ErrConcurrencyConflict when another writer won", func(t *testing.T) {
		repo, mock, mockDB := newMockAccountRepository(t)
		defer mockDB.Close()

		account := newTestAccount(t)
		require.NoError(t, account.Credit(decimal.NewFromInt(50)))

		mock.ExpectExec(`UPDATE "ledger_accounts" SET .* WHERE id = \$\d+ AND version = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT count\(\*\) FROM "ledger_accounts" WHERE id = \$1`).
			WithArgs(account.ID).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		err := repo.SaveWithLock(context.Background(), account)

		assert.Equal(t, shared.ErrConcurrencyConflict, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns ErrNotFound when the row is gone", func(t *testing.T) {
		repo, mock, mockDB := newMockAccountRepository(t)
		defer mockDB.Close()

		account := newTestAccount(t)
		require.NoError(t, account.Credit(decimal.NewFromInt(50)))

		mock.ExpectExec(`UPDATE "ledger_accounts" SET .* WHERE id = \$\d+ AND version = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT count\(\*\) FROM "ledger_accounts" WHERE id = \$1`).
			WithArgs(account.ID).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		err := repo.SaveWithLock(context.Background(), account)

		assert.Equal(t, shared.ErrNotFound, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormAccountRepository_FindByNaturalKey(t *testing.T) {
	t.Run("matches on tenant owner currency and type", func(t *testing.T) {
		repo, mock, mockDB := newMockAccountRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()
		ownerID := uuid.New()
		accountID := uuid.New()

		rows := sqlmock.NewRows([]string{"id", "tenant_id", "version", "account_number", "owner_user_id", "currency", "type", "status", "balance", "frozen", "pending"}).
			AddRow(accountID, tenantID, 1, "ACC-00000002", ownerID, "EUR", "customer_wallet", "active", decimal.Zero, decimal.Zero, decimal.Zero)

		mock.ExpectQuery(`SELECT \* FROM "ledger_accounts" WHERE tenant_id = \$1 AND owner_user_id = \$2 AND currency = \$3 AND type = \$4`).
			WithArgs(tenantID, ownerID, "EUR", "customer_wallet", 1).
			WillReturnRows(rows)

		account, err := repo.FindByNaturalKey(context.Background(), tenantID, ownerID, "EUR", ledger.AccountTypeCustomerWallet)

		assert.NoError(t, err)
		assert.Equal(t, accountID, account.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
