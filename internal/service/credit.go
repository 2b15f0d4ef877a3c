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

// CreditService owns every credit balance operation: reads, purchases,
// usage debits, refunds and bonuses. Mutations run under a per-operation
// deadline; a timed-out debit fails closed and spends nothing.
type CreditService struct {
	balanceRepo domain.BalanceRepository
	txRepo      domain.TransactionRepository
	policies    *UsagePolicyTable
	catalog     *PackageCatalog
	gateway     domain.PaymentGateway
	alerter     *BalanceAlerter
	topup       *AutoTopupController
	logger      *zap.Logger
	timeout     time.Duration
	txLimit     int
}

// NewCreditService creates a CreditService.
func NewCreditService(
	balanceRepo domain.BalanceRepository,
	txRepo domain.TransactionRepository,
	policies *UsagePolicyTable,
	catalog *PackageCatalog,
	gateway domain.PaymentGateway,
	alerter *BalanceAlerter,
	topup *AutoTopupController,
	logger *zap.Logger,
	timeout time.Duration,
	txLimit int,
) *CreditService {
	return &CreditService{
		balanceRepo: balanceRepo,
		txRepo:      txRepo,
		policies:    policies,
		catalog:     catalog,
		gateway:     gateway,
		alerter:     alerter,
		topup:       topup,
		logger:      logger,
		timeout:     timeout,
		txLimit:     txLimit,
	}
}

// Policies exposes the usage policy table.
func (s *CreditService) Policies() *UsagePolicyTable {
	return s.policies
}

// Packages exposes the purchasable package catalog.
func (s *CreditService) Packages() *PackageCatalog {
	return s.catalog
}

// ListPolicies returns the usage policy table in a stable order.
func (s *CreditService) ListPolicies() []domain.UsagePolicy {
	return s.policies.All()
}

// ListPackages returns the purchasable packages in a stable order.
func (s *CreditService) ListPackages() []domain.CreditPackage {
	return s.catalog.All()
}

// GetBalance returns the account's balance, materializing a zero row on
// first read.
func (s *CreditService) GetBalance(ctx context.Context, accountID int64) (*domain.CreditBalance, error) {
	balance, err := s.balanceRepo.GetOrCreate(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("credit service: failed to get balance for account %d: %w", accountID, err)
	}
	return balance, nil
}

// CheckSufficiency reports whether the account can afford one action of the
// given usage type. Advisory only; DeductCredits re-checks under the lock.
func (s *CreditService) CheckSufficiency(ctx context.Context, accountID int64, usageType domain.UsageType) (bool, int, error) {
	policy, err := s.policies.Lookup(usageType)
	if err != nil {
		return false, 0, err
	}
	balance, err := s.GetBalance(ctx, accountID)
	if err != nil {
		return false, 0, err
	}
	return balance.CurrentBalance >= policy.CreditsRequired, policy.CreditsRequired, nil
}

// DeductCredits debits the account for one usage action and kicks off the
// post-debit hooks (balance alerts, auto-topup evaluation).
func (s *CreditService) DeductCredits(ctx context.Context, accountID int64, usageType domain.UsageType, referenceID, referenceType string) (*domain.CreditBalance, error) {
	policy, err := s.policies.Lookup(usageType)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	balance, err := s.balanceRepo.DeductForUsage(opCtx, accountID, domain.UsageDebit{
		UsageType:     usageType,
		Credits:       policy.CreditsRequired,
		MaxPerDay:     policy.MaxPerDay,
		MaxPerMonth:   policy.MaxPerMonth,
		Description:   string(usageType),
		ReferenceID:   referenceID,
		ReferenceType: referenceType,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) || errors.Is(err, domain.ErrUsageLimitExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("credit service: failed to deduct for account %d: %w", accountID, err)
	}

	s.afterDebit(ctx, accountID, balance.CurrentBalance)
	return balance, nil
}

// afterDebit runs the hooks shared by every path that lowers a balance.
func (s *CreditService) afterDebit(ctx context.Context, accountID int64, currentBalance int) {
	s.alerter.Observe(ctx, accountID, currentBalance)
	s.topup.TriggerAsync(accountID, currentBalance)
}

// ObserveDebit runs the post-debit hooks for a debit applied elsewhere, such
// as the application submission transaction.
func (s *CreditService) ObserveDebit(ctx context.Context, accountID int64, currentBalance int) {
	s.afterDebit(ctx, accountID, currentBalance)
}

// PurchaseCredits charges the payment method and grants the package. The
// charge key doubles as the grant's idempotency key, so a retried purchase
// can collect and credit at most once.
func (s *CreditService) PurchaseCredits(ctx context.Context, accountID int64, packageType, paymentMethodID string) (*domain.CreditBalance, error) {
	pkg, err := s.catalog.Lookup(packageType)
	if err != nil {
		return nil, err
	}
	if paymentMethodID == "" {
		return nil, fmt.Errorf("credit service: payment method id is required: %w", domain.ErrInvalidInput)
	}

	chargeKey := uuid.NewString()
	charge, err := s.gateway.CreateCharge(ctx, domain.ChargeRequest{
		AmountCents:     pkg.PriceCents,
		Currency:        pkg.Currency,
		PaymentMethodID: paymentMethodID,
		IdempotencyKey:  chargeKey,
		Metadata: map[string]string{
			"account_id":   strconv.FormatInt(accountID, 10),
			"package_type": pkg.Type,
		},
	})
	if err != nil {
		if errors.Is(err, domain.ErrPaymentFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("credit service: charge failed for account %d: %w", accountID, err)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	balance, err := s.balanceRepo.Credit(opCtx, accountID, domain.CreditGrant{
		Type:           domain.TransactionTypePurchase,
		Credits:        pkg.TotalCredits(),
		Description:    fmt.Sprintf("%s package purchase", pkg.Type),
		ReferenceID:    charge.ID,
		ReferenceType:  "payment_charge",
		IdempotencyKey: chargeKey,
	})
	if err != nil && !errors.Is(err, domain.ErrDuplicateTransaction) {
		return nil, fmt.Errorf("credit service: charge %s collected but credit failed for account %d: %w", charge.ID, accountID, err)
	}
	return balance, nil
}

// RefundCredits returns previously spent credits. The idempotency key is
// derived from the reference, so the same compensation applied twice credits
// once.
func (s *CreditService) RefundCredits(ctx context.Context, accountID int64, credits int, description, referenceID, referenceType string) (*domain.CreditBalance, error) {
	if credits <= 0 {
		return nil, fmt.Errorf("credit service: invalid refund amount %d", credits)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	balance, err := s.balanceRepo.Credit(opCtx, accountID, domain.CreditGrant{
		Type:           domain.TransactionTypeRefund,
		Credits:        credits,
		Description:    description,
		ReferenceID:    referenceID,
		ReferenceType:  referenceType,
		IdempotencyKey: fmt.Sprintf("refund:%s:%s", referenceType, referenceID),
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateTransaction) {
			return balance, nil
		}
		return nil, fmt.Errorf("credit service: failed to refund %d credits to account %d: %w", credits, accountID, err)
	}
	return balance, nil
}

// AwardBonus grants promotional credits, at most once per reference.
func (s *CreditService) AwardBonus(ctx context.Context, accountID int64, credits int, description, referenceID, referenceType string, expiresAt *time.Time) (*domain.CreditBalance, error) {
	if credits <= 0 {
		return nil, fmt.Errorf("credit service: invalid bonus amount %d", credits)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	balance, err := s.balanceRepo.Credit(opCtx, accountID, domain.CreditGrant{
		Type:           domain.TransactionTypeBonus,
		Credits:        credits,
		Description:    description,
		ReferenceID:    referenceID,
		ReferenceType:  referenceType,
		IdempotencyKey: fmt.Sprintf("bonus:%s:%s", referenceType, referenceID),
		ExpiresAt:      expiresAt,
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateTransaction) {
			return balance, nil
		}
		return nil, fmt.Errorf("credit service: failed to award %d bonus credits to account %d: %w", credits, accountID, err)
	}
	return balance, nil
}

// GetTransactions returns the account's newest ledger entries.
func (s *CreditService) GetTransactions(ctx context.Context, accountID int64, limit int) ([]*domain.CreditTransaction, error) {
	if limit <= 0 {
		limit = s.txLimit
	}
	transactions, err := s.txRepo.ListRecent(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("credit service: failed to list transactions for account %d: %w", accountID, err)
	}
	return transactions, nil
}

// GetDashboard aggregates the balance, recent ledger entries, the last 30
// days of usage and the auto-topup policy.
func (s *CreditService) GetDashboard(ctx context.Context, accountID int64) (*domain.Dashboard, error) {
	balance, err := s.GetBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}

	transactions, err := s.GetTransactions(ctx, accountID, s.txLimit)
	if err != nil {
		return nil, err
	}

	breakdown, err := s.txRepo.UsageBreakdown(ctx, accountID, time.Now().AddDate(0, 0, -30))
	if err != nil {
		return nil, fmt.Errorf("credit service: failed to get usage breakdown for account %d: %w", accountID, err)
	}

	dashboard := &domain.Dashboard{
		Balance:            balance,
		RecentTransactions: transactions,
		UsageBreakdown:     breakdown,
	}

	policy, err := s.topup.GetPolicy(ctx, accountID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("credit service: failed to get auto-topup policy for account %d: %w", accountID, err)
	}
	dashboard.AutoTopup = policy

	return dashboard, nil
}

// ExpireAgedCredits sweeps expired promotional grants. Called by the
// background worker.
func (s *CreditService) ExpireAgedCredits(ctx context.Context, limit int) (int, error) {
	swept, err := s.balanceRepo.ExpireAgedCredits(ctx, time.Now(), limit)
	if err != nil {
		return swept, fmt.Errorf("credit service: credit expiry sweep failed: %w", err)
	}
	return swept, nil
}
