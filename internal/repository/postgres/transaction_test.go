package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradielink/backend/internal/domain"
)

func TestTransactionRepository_ListRecent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepository(mock)
	ctx := context.Background()

	t.Run("Newest first", func(t *testing.T) {
		usageType := domain.UsageTypeJobApplication
		rows := pgxmock.NewRows([]string{
			"id", "account_id", "type", "usage_type", "credits", "description",
			"reference_id", "reference_type", "status", "created_at", "expires_at",
		}).
			AddRow(int64(2), int64(7), domain.TransactionTypeUsage, &usageType, 5, "job application",
				"5", "marketplace_job", domain.TransactionStatusCompleted, time.Now(), (*time.Time)(nil)).
			AddRow(int64(1), int64(7), domain.TransactionTypePurchase, (*domain.UsageType)(nil), 55, "standard package",
				"", "", domain.TransactionStatusCompleted, time.Now().Add(-time.Hour), (*time.Time)(nil))

		mock.ExpectQuery(`SELECT id, account_id`).
			WithArgs(int64(7), 20).
			WillReturnRows(rows)

		transactions, err := repo.ListRecent(ctx, 7, 20)
		require.NoError(t, err)
		require.Len(t, transactions, 2)
		assert.Equal(t, domain.TransactionTypeUsage, transactions[0].Type)
		assert.Equal(t, domain.TransactionTypePurchase, transactions[1].Type)
		assert.Nil(t, transactions[1].UsageType)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Empty ledger", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, account_id`).
			WithArgs(int64(8), 20).
			WillReturnRows(pgxmock.NewRows([]string{
				"id", "account_id", "type", "usage_type", "credits", "description",
				"reference_id", "reference_type", "status", "created_at", "expires_at",
			}))

		transactions, err := repo.ListRecent(ctx, 8, 20)
		require.NoError(t, err)
		assert.Empty(t, transactions)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransactionRepository_UsageBreakdown(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepository(mock)
	ctx := context.Background()
	since := time.Now().AddDate(0, 0, -30)

	rows := pgxmock.NewRows([]string{"usage_type", "sum"}).
		AddRow(domain.UsageTypeJobApplication, 25).
		AddRow(domain.UsageTypeProfileBoost, 10)

	mock.ExpectQuery(`SELECT usage_type, COALESCE`).
		WithArgs(int64(7), since).
		WillReturnRows(rows)

	breakdown, err := repo.UsageBreakdown(ctx, 7, since)
	require.NoError(t, err)
	assert.Equal(t, 25, breakdown[domain.UsageTypeJobApplication])
	assert.Equal(t, 10, breakdown[domain.UsageTypeProfileBoost])
	assert.NotContains(t, breakdown, domain.UsageTypePremiumUnlock)

	assert.NoError(t, mock.ExpectationsWereMet())
}
