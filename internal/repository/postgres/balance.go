package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/tradielink/backend/internal/domain"
)

// BalanceRepository implements domain.BalanceRepository. All mutations run
// inside a database transaction under a per-account advisory lock, with the
// matching credit_transactions row written in the same transaction.
type BalanceRepository struct {
	db  DBTX
	loc *time.Location
}

// NewBalanceRepository creates a BalanceRepository. Usage windows are
// computed as calendar boundaries in loc.
func NewBalanceRepository(db DBTX, loc *time.Location) *BalanceRepository {
	return &BalanceRepository{db: db, loc: loc}
}

const balanceColumns = `account_id, current_balance, total_purchased, total_used, total_refunded, last_purchase_at, last_usage_at`

func scanBalance(row pgx.Row) (*domain.CreditBalance, error) {
	b := &domain.CreditBalance{}
	err := row.Scan(&b.AccountID, &b.CurrentBalance, &b.TotalPurchased, &b.TotalUsed,
		&b.TotalRefunded, &b.LastPurchaseAt, &b.LastUsageAt)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GetOrCreate returns the account's balance row, creating a zero row on
// first access.
func (r *BalanceRepository) GetOrCreate(ctx context.Context, accountID int64) (*domain.CreditBalance, error) {
	_, err := r.db.Exec(ctx,
		`INSERT INTO credit_balances (account_id) VALUES ($1) ON CONFLICT (account_id) DO NOTHING`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to ensure balance row for account %d: %w", accountID, err)
	}

	balance, err := scanBalance(r.db.QueryRow(ctx,
		`SELECT `+balanceColumns+` FROM credit_balances WHERE account_id = $1`,
		accountID,
	))
	if err != nil {
		return nil, fmt.Errorf("repository: failed to get balance for account %d: %w", accountID, err)
	}

	return balance, nil
}

// ledgerEntry carries one credit_transactions insert.
type ledgerEntry struct {
	accountID      int64
	txType         domain.TransactionType
	usageType      *domain.UsageType
	credits        int
	description    string
	referenceID    string
	referenceType  string
	status         domain.TransactionStatus
	idempotencyKey *string
	expiresAt      *time.Time
}

// insertLedger appends one ledger row inside tx. When the entry carries an
// idempotency key and that key already exists, it reports applied == false
// without error.
func insertLedger(ctx context.Context, tx pgx.Tx, e ledgerEntry) (applied bool, err error) {
	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO credit_transactions
		   (account_id, type, usage_type, credits, description, reference_id, reference_type, status, idempotency_key, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING
		 RETURNING id`,
		e.accountID, e.txType, e.usageType, e.credits, e.description,
		e.referenceID, e.referenceType, e.status, e.idempotencyKey, e.expiresAt,
	).Scan(&id)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert %s transaction for account %d: %w", e.txType, e.accountID, err)
	}
	return true, nil
}

// lockAccount serializes balance mutations for one account within tx.
func lockAccount(ctx context.Context, tx pgx.Tx, accountID int64) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, accountID); err != nil {
		return fmt.Errorf("failed to acquire account lock for %d: %w", accountID, err)
	}
	return nil
}

func ensureBalanceRow(ctx context.Context, tx pgx.Tx, accountID int64) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO credit_balances (account_id) VALUES ($1) ON CONFLICT (account_id) DO NOTHING`,
		accountID,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure balance row for account %d: %w", accountID, err)
	}
	return nil
}

// Credit applies a balance-increasing grant (purchase, bonus or refund) and
// its ledger row atomically. A grant whose idempotency key was already
// applied leaves the balance untouched and returns ErrDuplicateTransaction
// alongside the current balance.
func (r *BalanceRepository) Credit(ctx context.Context, accountID int64, grant domain.CreditGrant) (*domain.CreditBalance, error) {
	var purchasedDelta, refundedDelta int
	switch grant.Type {
	case domain.TransactionTypePurchase, domain.TransactionTypeBonus:
		purchasedDelta = grant.Credits
	case domain.TransactionTypeRefund:
		refundedDelta = grant.Credits
	default:
		return nil, fmt.Errorf("repository: %q is not a credit grant type", grant.Type)
	}
	if grant.Credits <= 0 {
		return nil, fmt.Errorf("repository: invalid grant amount %d for account %d", grant.Credits, accountID)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin credit transaction for account %d: %w", accountID, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := lockAccount(ctx, tx, accountID); err != nil {
		return nil, fmt.Errorf("repository: %w", err)
	}
	if err := ensureBalanceRow(ctx, tx, accountID); err != nil {
		return nil, fmt.Errorf("repository: %w", err)
	}

	entry := ledgerEntry{
		accountID:     accountID,
		txType:        grant.Type,
		credits:       grant.Credits,
		description:   grant.Description,
		referenceID:   grant.ReferenceID,
		referenceType: grant.ReferenceType,
		status:        domain.TransactionStatusCompleted,
		expiresAt:     grant.ExpiresAt,
	}
	if grant.IdempotencyKey != "" {
		key := grant.IdempotencyKey
		entry.idempotencyKey = &key
	}

	applied, err := insertLedger(ctx, tx, entry)
	if err != nil {
		return nil, fmt.Errorf("repository: %w", err)
	}
	if !applied {
		// Already granted under this key: report the current balance untouched.
		balance, scanErr := scanBalance(tx.QueryRow(ctx,
			`SELECT `+balanceColumns+` FROM credit_balances WHERE account_id = $1`,
			accountID,
		))
		if scanErr != nil {
			return nil, fmt.Errorf("repository: failed to read balance for duplicate grant: %w", scanErr)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("repository: failed to commit duplicate grant read: %w", err)
		}
		return balance, domain.ErrDuplicateTransaction
	}

	balance, err := scanBalance(tx.QueryRow(ctx,
		`UPDATE credit_balances
		 SET current_balance = current_balance + $2,
		     total_purchased = total_purchased + $3,
		     total_refunded = total_refunded + $4,
		     last_purchase_at = CASE WHEN $3 > 0 THEN NOW() ELSE last_purchase_at END
		 WHERE account_id = $1
		 RETURNING `+balanceColumns,
		accountID, grant.Credits, purchasedDelta, refundedDelta,
	))
	if err != nil {
		return nil, fmt.Errorf("repository: failed to apply grant for account %d: %w", accountID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository: failed to commit grant for account %d: %w", accountID, err)
	}

	return balance, nil
}

// usageWindowCounts counts the account's completed usage transactions of one
// type in the current calendar day and month, in loc. Must run under the
// account lock so two concurrent requests cannot both pass the cap.
func usageWindowCounts(ctx context.Context, tx pgx.Tx, accountID int64, usageType domain.UsageType, loc *time.Location) (day, month int, err error) {
	now := time.Now().In(loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)

	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE created_at >= $3), COUNT(*)
		 FROM credit_transactions
		 WHERE account_id = $1 AND type = 'usage' AND status = 'completed'
		   AND usage_type = $2 AND created_at >= $4`,
		accountID, usageType, dayStart, monthStart,
	).Scan(&day, &month)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count usage for account %d: %w", accountID, err)
	}
	return day, month, nil
}

// applyUsageDebit runs the guarded debit inside tx: account lock, balance
// row, cap re-check, conditional non-negative update, completed usage entry.
// On an insufficient balance it writes a failed ledger row instead and
// returns ErrInsufficientBalance; the caller decides whether to commit that
// record. An exceeded cap mutates nothing.
func applyUsageDebit(ctx context.Context, tx pgx.Tx, accountID int64, debit domain.UsageDebit, loc *time.Location) (*domain.CreditBalance, error) {
	if debit.Credits <= 0 {
		return nil, fmt.Errorf("invalid debit amount %d for account %d", debit.Credits, accountID)
	}

	if err := lockAccount(ctx, tx, accountID); err != nil {
		return nil, err
	}
	if err := ensureBalanceRow(ctx, tx, accountID); err != nil {
		return nil, err
	}

	day, month, err := usageWindowCounts(ctx, tx, accountID, debit.UsageType, loc)
	if err != nil {
		return nil, err
	}
	if (debit.MaxPerDay > 0 && day >= debit.MaxPerDay) ||
		(debit.MaxPerMonth > 0 && month >= debit.MaxPerMonth) {
		return nil, domain.ErrUsageLimitExceeded
	}

	usageType := debit.UsageType
	balance, err := scanBalance(tx.QueryRow(ctx,
		`UPDATE credit_balances
		 SET current_balance = current_balance - $2,
		     total_used = total_used + $2,
		     last_usage_at = NOW()
		 WHERE account_id = $1 AND current_balance >= $2
		 RETURNING `+balanceColumns,
		accountID, debit.Credits,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Record the attempt without a balance change.
			if _, insErr := insertLedger(ctx, tx, ledgerEntry{
				accountID:     accountID,
				txType:        domain.TransactionTypeUsage,
				usageType:     &usageType,
				credits:       debit.Credits,
				description:   debit.Description,
				referenceID:   debit.ReferenceID,
				referenceType: debit.ReferenceType,
				status:        domain.TransactionStatusFailed,
			}); insErr != nil {
				return nil, insErr
			}
			return nil, domain.ErrInsufficientBalance
		}
		return nil, fmt.Errorf("failed to deduct %d credits from account %d: %w", debit.Credits, accountID, err)
	}

	if _, err := insertLedger(ctx, tx, ledgerEntry{
		accountID:     accountID,
		txType:        domain.TransactionTypeUsage,
		usageType:     &usageType,
		credits:       debit.Credits,
		description:   debit.Description,
		referenceID:   debit.ReferenceID,
		referenceType: debit.ReferenceType,
		status:        domain.TransactionStatusCompleted,
	}); err != nil {
		return nil, err
	}

	return balance, nil
}

// DeductForUsage debits the account for one usage action, pairing the
// balance change with its ledger row in one transaction.
func (r *BalanceRepository) DeductForUsage(ctx context.Context, accountID int64, debit domain.UsageDebit) (*domain.CreditBalance, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin debit transaction for account %d: %w", accountID, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	balance, err := applyUsageDebit(ctx, tx, accountID, debit, r.loc)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			// Keep the failed ledger row.
			if commitErr := tx.Commit(ctx); commitErr != nil {
				return nil, fmt.Errorf("repository: failed to commit failed-debit record: %w", commitErr)
			}
			return nil, err
		}
		if errors.Is(err, domain.ErrUsageLimitExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("repository: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository: failed to commit debit for account %d: %w", accountID, err)
	}

	return balance, nil
}

// ExpireAgedCredits sweeps completed purchase and bonus grants whose
// expires_at has passed and applies a compensating expiry entry per grant,
// capped at the account's current balance. Returns how many grants were
// swept.
func (r *BalanceRepository) ExpireAgedCredits(ctx context.Context, now time.Time, limit int) (int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT t.id, t.account_id, t.credits
		 FROM credit_transactions t
		 WHERE t.status = 'completed' AND t.type IN ('purchase', 'bonus')
		   AND t.expires_at IS NOT NULL AND t.expires_at <= $1
		   AND NOT EXISTS (
		     SELECT 1 FROM credit_transactions e
		     WHERE e.type = 'expiry' AND e.reference_type = 'credit_transaction'
		       AND e.reference_id = t.id::text
		   )
		 ORDER BY t.expires_at
		 LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to list expiring grants: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		id        int64
		accountID int64
		credits   int
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.accountID, &c.credits); err != nil {
			return 0, fmt.Errorf("repository: failed to scan expiring grant: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("repository: error iterating expiring grants: %w", err)
	}

	swept := 0
	for _, c := range candidates {
		if err := r.expireGrant(ctx, c.id, c.accountID, c.credits); err != nil {
			return swept, err
		}
		swept++
	}
	return swept, nil
}

func (r *BalanceRepository) expireGrant(ctx context.Context, grantID, accountID int64, credits int) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin expiry transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := lockAccount(ctx, tx, accountID); err != nil {
		return fmt.Errorf("repository: %w", err)
	}

	var current int
	err = tx.QueryRow(ctx,
		`SELECT current_balance FROM credit_balances WHERE account_id = $1`,
		accountID,
	).Scan(&current)
	if err != nil {
		return fmt.Errorf("repository: failed to read balance for expiry of grant %d: %w", grantID, err)
	}

	expire := credits
	if current < expire {
		expire = current
	}

	entry := ledgerEntry{
		accountID:     accountID,
		txType:        domain.TransactionTypeExpiry,
		credits:       credits,
		description:   "credit expiry",
		referenceID:   fmt.Sprintf("%d", grantID),
		referenceType: "credit_transaction",
		status:        domain.TransactionStatusCancelled,
	}
	if expire > 0 {
		entry.credits = expire
		entry.status = domain.TransactionStatusCompleted
		_, err = tx.Exec(ctx,
			`UPDATE credit_balances
			 SET current_balance = current_balance - $2, total_used = total_used + $2
			 WHERE account_id = $1`,
			accountID, expire,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to apply expiry for grant %d: %w", grantID, err)
		}
	}

	if _, err := insertLedger(ctx, tx, entry); err != nil {
		return fmt.Errorf("repository: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit expiry for grant %d: %w", grantID, err)
	}
	return nil
}
