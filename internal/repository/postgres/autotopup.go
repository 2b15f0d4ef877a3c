package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/tradielink/backend/internal/domain"
)

// AutoTopupRepository implements domain.AutoTopupRepository.
type AutoTopupRepository struct {
	db DBTX
}

// NewAutoTopupRepository creates an AutoTopupRepository.
func NewAutoTopupRepository(db DBTX) *AutoTopupRepository {
	return &AutoTopupRepository{db: db}
}

const policyColumns = `account_id, status, trigger_balance, package_type, payment_method_id, failure_count, charge_key, last_triggered_at, updated_at`

func scanPolicy(row pgx.Row) (*domain.AutoTopupPolicy, error) {
	p := &domain.AutoTopupPolicy{}
	err := row.Scan(&p.AccountID, &p.Status, &p.TriggerBalance, &p.PackageType,
		&p.PaymentMethodID, &p.FailureCount, &p.ChargeKey, &p.LastTriggeredAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetPolicy returns the account's auto-topup policy.
func (r *AutoTopupRepository) GetPolicy(ctx context.Context, accountID int64) (*domain.AutoTopupPolicy, error) {
	policy, err := scanPolicy(r.db.QueryRow(ctx,
		`SELECT `+policyColumns+` FROM auto_topup_policies WHERE account_id = $1`,
		accountID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to get auto-topup policy for account %d: %w", accountID, err)
	}
	return policy, nil
}

// UpsertPolicy creates or replaces the account holder's policy settings.
// Failure count is preserved unless the status moves out of suspended.
func (r *AutoTopupRepository) UpsertPolicy(ctx context.Context, policy *domain.AutoTopupPolicy) (*domain.AutoTopupPolicy, error) {
	updated, err := scanPolicy(r.db.QueryRow(ctx,
		`INSERT INTO auto_topup_policies (account_id, status, trigger_balance, package_type, payment_method_id, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 ON CONFLICT (account_id) DO UPDATE
		 SET status = $2, trigger_balance = $3, package_type = $4, payment_method_id = $5, updated_at = NOW()
		 RETURNING `+policyColumns,
		policy.AccountID, policy.Status, policy.TriggerBalance, policy.PackageType, policy.PaymentMethodID,
	))
	if err != nil {
		return nil, fmt.Errorf("repository: failed to upsert auto-topup policy for account %d: %w", policy.AccountID, err)
	}
	return updated, nil
}

// BeginProcessing atomically arms a top-up: enabled -> processing, with the
// charge idempotency key persisted before any gateway call. Returns
// ErrNotFound when the policy is not enabled or another top-up is in flight.
func (r *AutoTopupRepository) BeginProcessing(ctx context.Context, accountID int64, chargeKey string) (*domain.AutoTopupPolicy, error) {
	policy, err := scanPolicy(r.db.QueryRow(ctx,
		`UPDATE auto_topup_policies
		 SET status = 'processing', charge_key = $2, last_triggered_at = NOW(), updated_at = NOW()
		 WHERE account_id = $1 AND status = 'enabled'
		 RETURNING `+policyColumns,
		accountID, chargeKey,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to arm auto-topup for account %d: %w", accountID, err)
	}
	return policy, nil
}

// MarkSucceeded finishes a processing top-up: back to enabled with the
// failure count reset.
func (r *AutoTopupRepository) MarkSucceeded(ctx context.Context, accountID int64) error {
	result, err := r.db.Exec(ctx,
		`UPDATE auto_topup_policies
		 SET status = 'enabled', failure_count = 0, charge_key = NULL, updated_at = NOW()
		 WHERE account_id = $1 AND status = 'processing'`,
		accountID,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to complete auto-topup for account %d: %w", accountID, err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkFailed records a failed top-up attempt, suspending the policy once the
// failure count reaches the limit.
func (r *AutoTopupRepository) MarkFailed(ctx context.Context, accountID int64) (int, bool, error) {
	var failureCount int
	var status domain.AutoTopupStatus
	err := r.db.QueryRow(ctx,
		`UPDATE auto_topup_policies
		 SET failure_count = failure_count + 1,
		     status = CASE WHEN failure_count + 1 >= $2 THEN 'suspended' ELSE 'enabled' END,
		     charge_key = NULL,
		     updated_at = NOW()
		 WHERE account_id = $1 AND status = 'processing'
		 RETURNING failure_count, status`,
		accountID, domain.MaxAutoTopupFailures,
	).Scan(&failureCount, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, domain.ErrNotFound
		}
		return 0, false, fmt.Errorf("repository: failed to record auto-topup failure for account %d: %w", accountID, err)
	}
	return failureCount, status == domain.AutoTopupSuspended, nil
}

// UpdatePaymentMethod stores a new payment method, resets the failure count
// and re-enables a suspended or stuck policy.
func (r *AutoTopupRepository) UpdatePaymentMethod(ctx context.Context, accountID int64, paymentMethodID string) (*domain.AutoTopupPolicy, error) {
	policy, err := scanPolicy(r.db.QueryRow(ctx,
		`UPDATE auto_topup_policies
		 SET payment_method_id = $2, failure_count = 0, charge_key = NULL,
		     status = CASE WHEN status = 'disabled' THEN 'disabled' ELSE 'enabled' END,
		     updated_at = NOW()
		 WHERE account_id = $1
		 RETURNING `+policyColumns,
		accountID, paymentMethodID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to update payment method for account %d: %w", accountID, err)
	}
	return policy, nil
}
