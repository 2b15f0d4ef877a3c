package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/tradielink/backend/internal/domain"
)

// TransactionRepository reads the append-only credit ledger.
type TransactionRepository struct {
	db DBTX
}

// NewTransactionRepository creates a TransactionRepository.
func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `id, account_id, type, usage_type, credits, description, reference_id, reference_type, status, created_at, expires_at`

// ListRecent returns the account's newest ledger entries, newest first.
func (r *TransactionRepository) ListRecent(ctx context.Context, accountID int64, limit int) ([]*domain.CreditTransaction, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+transactionColumns+`
		 FROM credit_transactions
		 WHERE account_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		accountID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to list transactions for account %d: %w", accountID, err)
	}
	defer rows.Close()

	var transactions []*domain.CreditTransaction
	for rows.Next() {
		t := &domain.CreditTransaction{}
		err := rows.Scan(&t.ID, &t.AccountID, &t.Type, &t.UsageType, &t.Credits, &t.Description,
			&t.ReferenceID, &t.ReferenceType, &t.Status, &t.CreatedAt, &t.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating transactions: %w", err)
	}

	return transactions, nil
}

// UsageBreakdown sums completed usage credits per usage type since the given
// time.
func (r *TransactionRepository) UsageBreakdown(ctx context.Context, accountID int64, since time.Time) (map[domain.UsageType]int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT usage_type, COALESCE(SUM(credits), 0)
		 FROM credit_transactions
		 WHERE account_id = $1 AND type = 'usage' AND status = 'completed'
		   AND usage_type IS NOT NULL AND created_at >= $2
		 GROUP BY usage_type`,
		accountID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to get usage breakdown for account %d: %w", accountID, err)
	}
	defer rows.Close()

	breakdown := make(map[domain.UsageType]int)
	for rows.Next() {
		var usageType domain.UsageType
		var credits int
		if err := rows.Scan(&usageType, &credits); err != nil {
			return nil, fmt.Errorf("repository: failed to scan usage breakdown: %w", err)
		}
		breakdown[usageType] = credits
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating usage breakdown: %w", err)
	}

	return breakdown, nil
}
