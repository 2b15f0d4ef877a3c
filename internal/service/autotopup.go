package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/tradielink/backend/internal/domain"
	"go.uber.org/zap"
)

// AutoTopupController runs the automatic purchase state machine. The
// processing transition and its charge key are persisted before the gateway
// is called, so a crash mid-charge leaves an idempotency key behind instead
// of a double purchase, and no database lock is ever held across the gateway
// call.
type AutoTopupController struct {
	topupRepo   domain.AutoTopupRepository
	balanceRepo domain.BalanceRepository
	catalog     *PackageCatalog
	gateway     domain.PaymentGateway
	notifier    domain.Notifier
	logger      *zap.Logger
	timeout     time.Duration
}

// NewAutoTopupController creates an AutoTopupController.
func NewAutoTopupController(
	topupRepo domain.AutoTopupRepository,
	balanceRepo domain.BalanceRepository,
	catalog *PackageCatalog,
	gateway domain.PaymentGateway,
	notifier domain.Notifier,
	logger *zap.Logger,
	timeout time.Duration,
) *AutoTopupController {
	return &AutoTopupController{
		topupRepo:   topupRepo,
		balanceRepo: balanceRepo,
		catalog:     catalog,
		gateway:     gateway,
		notifier:    notifier,
		logger:      logger,
		timeout:     timeout,
	}
}

// GetPolicy returns the account's policy.
func (c *AutoTopupController) GetPolicy(ctx context.Context, accountID int64) (*domain.AutoTopupPolicy, error) {
	return c.topupRepo.GetPolicy(ctx, accountID)
}

// Configure creates or replaces the account's policy settings. Re-enabling
// after a suspension is only possible through UpdatePaymentMethod: the
// failure count outlives a disable, so the suspended -> disabled -> enabled
// hop is refused as long as the failing payment method is still on file.
func (c *AutoTopupController) Configure(ctx context.Context, policy *domain.AutoTopupPolicy) (*domain.AutoTopupPolicy, error) {
	if policy.Status != domain.AutoTopupEnabled && policy.Status != domain.AutoTopupDisabled {
		return nil, fmt.Errorf("autotopup service: status %q cannot be set directly", policy.Status)
	}
	if _, err := c.catalog.Lookup(policy.PackageType); err != nil {
		return nil, err
	}
	if policy.TriggerBalance < 0 {
		return nil, fmt.Errorf("autotopup service: trigger balance must not be negative: %w", domain.ErrInvalidInput)
	}

	existing, err := c.topupRepo.GetPolicy(ctx, policy.AccountID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("autotopup service: %w", err)
	}
	if existing != nil && policy.Status == domain.AutoTopupEnabled &&
		(existing.Status == domain.AutoTopupSuspended || existing.FailureCount >= domain.MaxAutoTopupFailures) {
		return nil, domain.ErrAutoTopupSuspended
	}

	updated, err := c.topupRepo.UpsertPolicy(ctx, policy)
	if err != nil {
		return nil, fmt.Errorf("autotopup service: %w", err)
	}
	return updated, nil
}

// UpdatePaymentMethod replaces the stored payment method, clearing the
// failure count and lifting a suspension.
func (c *AutoTopupController) UpdatePaymentMethod(ctx context.Context, accountID int64, paymentMethodID string) (*domain.AutoTopupPolicy, error) {
	if paymentMethodID == "" {
		return nil, fmt.Errorf("autotopup service: payment method id is required: %w", domain.ErrInvalidInput)
	}
	policy, err := c.topupRepo.UpdatePaymentMethod(ctx, accountID, paymentMethodID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("autotopup service: %w", err)
	}
	return policy, nil
}

// TriggerAsync evaluates the account's policy on a background goroutine.
// Called after debits; the request that spent the credits never waits on the
// gateway.
func (c *AutoTopupController) TriggerAsync(accountID int64, currentBalance int) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout+10*time.Second)
		defer cancel()
		if err := c.Evaluate(ctx, accountID, currentBalance); err != nil {
			c.logger.Error("auto-topup evaluation failed",
				zap.Int64("account_id", accountID),
				zap.Error(err))
		}
	}()
}

// Evaluate runs one top-up attempt when the balance has fallen to the
// trigger. BeginProcessing is the single-flight gate: the loser of a
// concurrent evaluation sees no enabled policy and backs off.
func (c *AutoTopupController) Evaluate(ctx context.Context, accountID int64, currentBalance int) error {
	policy, err := c.topupRepo.GetPolicy(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("autotopup service: %w", err)
	}
	if policy.Status != domain.AutoTopupEnabled || currentBalance > policy.TriggerBalance {
		return nil
	}

	pkg, err := c.catalog.Lookup(policy.PackageType)
	if err != nil {
		return fmt.Errorf("autotopup service: policy for account %d references unknown package %q", accountID, policy.PackageType)
	}

	chargeKey := uuid.NewString()
	if _, err := c.topupRepo.BeginProcessing(ctx, accountID, chargeKey); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Another evaluation got there first.
			return nil
		}
		return fmt.Errorf("autotopup service: %w", err)
	}

	charge, err := c.gateway.CreateCharge(ctx, domain.ChargeRequest{
		AmountCents:     pkg.PriceCents,
		Currency:        pkg.Currency,
		PaymentMethodID: policy.PaymentMethodID,
		IdempotencyKey:  chargeKey,
		Metadata: map[string]string{
			"account_id":   strconv.FormatInt(accountID, 10),
			"package_type": pkg.Type,
			"trigger":      "auto_topup",
		},
	})
	if err != nil {
		return c.recordFailure(ctx, accountID, err)
	}

	if _, err := c.balanceRepo.Credit(ctx, accountID, domain.CreditGrant{
		Type:           domain.TransactionTypePurchase,
		Credits:        pkg.TotalCredits(),
		Description:    fmt.Sprintf("auto top-up: %s package", pkg.Type),
		ReferenceID:    charge.ID,
		ReferenceType:  "payment_charge",
		IdempotencyKey: chargeKey,
	}); err != nil && !errors.Is(err, domain.ErrDuplicateTransaction) {
		// The charge went through but crediting failed. Leave the policy in
		// processing so the next evaluation cannot start a second charge;
		// the persisted charge key allows manual reconciliation.
		return fmt.Errorf("autotopup service: charge %s collected but credit failed: %w", charge.ID, err)
	}

	if err := c.topupRepo.MarkSucceeded(ctx, accountID); err != nil {
		return fmt.Errorf("autotopup service: %w", err)
	}

	c.notify(ctx, accountID, domain.NotifyTopupSucceeded, map[string]string{
		"package_type": pkg.Type,
		"credits":      strconv.Itoa(pkg.TotalCredits()),
	})
	return nil
}

func (c *AutoTopupController) recordFailure(ctx context.Context, accountID int64, cause error) error {
	failureCount, suspended, err := c.topupRepo.MarkFailed(ctx, accountID)
	if err != nil {
		return fmt.Errorf("autotopup service: failed to record failure after %v: %w", cause, err)
	}

	kind := domain.NotifyTopupFailed
	if suspended {
		kind = domain.NotifyTopupSuspended
	}
	c.notify(ctx, accountID, kind, map[string]string{
		"failure_count": strconv.Itoa(failureCount),
	})

	c.logger.Warn("auto-topup charge failed",
		zap.Int64("account_id", accountID),
		zap.Int("failure_count", failureCount),
		zap.Bool("suspended", suspended),
		zap.Error(cause))
	return nil
}

func (c *AutoTopupController) notify(ctx context.Context, accountID int64, kind domain.NotificationKind, data map[string]string) {
	if err := c.notifier.Send(ctx, accountID, kind, data); err != nil {
		c.logger.Warn("failed to send auto-topup notification",
			zap.Int64("account_id", accountID),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}
