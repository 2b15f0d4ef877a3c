package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tradielink/backend/internal/domain"
)

// In-memory fakes shared by the service tests. They keep the repository
// invariants (idempotency keys, non-negative balances, status guards) without
// a database.

type fakeBalanceRepo struct {
	mu       sync.Mutex
	balances map[int64]*domain.CreditBalance
	ledger   []domain.CreditTransaction
	usedKeys map[string]bool
}

func newFakeBalanceRepo() *fakeBalanceRepo {
	return &fakeBalanceRepo{
		balances: make(map[int64]*domain.CreditBalance),
		usedKeys: make(map[string]bool),
	}
}

func (f *fakeBalanceRepo) get(accountID int64) *domain.CreditBalance {
	b, ok := f.balances[accountID]
	if !ok {
		b = &domain.CreditBalance{AccountID: accountID}
		f.balances[accountID] = b
	}
	return b
}

func (f *fakeBalanceRepo) GetOrCreate(_ context.Context, accountID int64) (*domain.CreditBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := *f.get(accountID)
	return &b, nil
}

func (f *fakeBalanceRepo) Credit(_ context.Context, accountID int64, grant domain.CreditGrant) (*domain.CreditBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b := f.get(accountID)
	if grant.IdempotencyKey != "" && f.usedKeys[grant.IdempotencyKey] {
		copied := *b
		return &copied, domain.ErrDuplicateTransaction
	}
	if grant.IdempotencyKey != "" {
		f.usedKeys[grant.IdempotencyKey] = true
	}

	switch grant.Type {
	case domain.TransactionTypePurchase, domain.TransactionTypeBonus:
		b.TotalPurchased += grant.Credits
	case domain.TransactionTypeRefund:
		b.TotalRefunded += grant.Credits
	default:
		return nil, fmt.Errorf("fake: %q is not a grant type", grant.Type)
	}
	b.CurrentBalance += grant.Credits
	f.ledger = append(f.ledger, domain.CreditTransaction{
		AccountID:   accountID,
		Type:        grant.Type,
		Credits:     grant.Credits,
		Description: grant.Description,
		ReferenceID: grant.ReferenceID,
		Status:      domain.TransactionStatusCompleted,
	})
	copied := *b
	return &copied, nil
}

func (f *fakeBalanceRepo) DeductForUsage(_ context.Context, accountID int64, debit domain.UsageDebit) (*domain.CreditBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b := f.get(accountID)

	used := 0
	for _, t := range f.ledger {
		if t.AccountID == accountID && t.Type == domain.TransactionTypeUsage &&
			t.Status == domain.TransactionStatusCompleted &&
			t.UsageType != nil && *t.UsageType == debit.UsageType {
			used++
		}
	}
	if (debit.MaxPerDay > 0 && used >= debit.MaxPerDay) ||
		(debit.MaxPerMonth > 0 && used >= debit.MaxPerMonth) {
		return nil, domain.ErrUsageLimitExceeded
	}

	usageType := debit.UsageType
	if b.CurrentBalance < debit.Credits {
		f.ledger = append(f.ledger, domain.CreditTransaction{
			AccountID: accountID,
			Type:      domain.TransactionTypeUsage,
			UsageType: &usageType,
			Credits:   debit.Credits,
			Status:    domain.TransactionStatusFailed,
		})
		return nil, domain.ErrInsufficientBalance
	}

	b.CurrentBalance -= debit.Credits
	b.TotalUsed += debit.Credits
	f.ledger = append(f.ledger, domain.CreditTransaction{
		AccountID: accountID,
		Type:      domain.TransactionTypeUsage,
		UsageType: &usageType,
		Credits:   debit.Credits,
		Status:    domain.TransactionStatusCompleted,
	})
	copied := *b
	return &copied, nil
}

func (f *fakeBalanceRepo) ExpireAgedCredits(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func (f *fakeBalanceRepo) failedUsageCount(accountID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.ledger {
		if t.AccountID == accountID && t.Type == domain.TransactionTypeUsage &&
			t.Status == domain.TransactionStatusFailed {
			n++
		}
	}
	return n
}

func (f *fakeBalanceRepo) refundTotal(accountID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, t := range f.ledger {
		if t.AccountID == accountID && t.Type == domain.TransactionTypeRefund {
			total += t.Credits
		}
	}
	return total
}

type fakeTransactionRepo struct {
	transactions []*domain.CreditTransaction
	breakdown    map[domain.UsageType]int
}

func (f *fakeTransactionRepo) ListRecent(_ context.Context, accountID int64, limit int) ([]*domain.CreditTransaction, error) {
	if len(f.transactions) > limit {
		return f.transactions[:limit], nil
	}
	return f.transactions, nil
}

func (f *fakeTransactionRepo) UsageBreakdown(context.Context, int64, time.Time) (map[domain.UsageType]int, error) {
	if f.breakdown == nil {
		return map[domain.UsageType]int{}, nil
	}
	return f.breakdown, nil
}

type fakeTopupRepo struct {
	mu       sync.Mutex
	policies map[int64]*domain.AutoTopupPolicy
}

func newFakeTopupRepo() *fakeTopupRepo {
	return &fakeTopupRepo{policies: make(map[int64]*domain.AutoTopupPolicy)}
}

func (f *fakeTopupRepo) GetPolicy(_ context.Context, accountID int64) (*domain.AutoTopupPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.policies[accountID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (f *fakeTopupRepo) UpsertPolicy(_ context.Context, policy *domain.AutoTopupPolicy) (*domain.AutoTopupPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *policy
	// The settings upsert never touches the failure bookkeeping.
	if prev, ok := f.policies[policy.AccountID]; ok {
		copied.FailureCount = prev.FailureCount
		copied.ChargeKey = prev.ChargeKey
		copied.LastTriggeredAt = prev.LastTriggeredAt
	}
	f.policies[policy.AccountID] = &copied
	result := copied
	return &result, nil
}

func (f *fakeTopupRepo) BeginProcessing(_ context.Context, accountID int64, chargeKey string) (*domain.AutoTopupPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.policies[accountID]
	if !ok || p.Status != domain.AutoTopupEnabled {
		return nil, domain.ErrNotFound
	}
	p.Status = domain.AutoTopupProcessing
	p.ChargeKey = &chargeKey
	copied := *p
	return &copied, nil
}

func (f *fakeTopupRepo) MarkSucceeded(_ context.Context, accountID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.policies[accountID]
	if !ok || p.Status != domain.AutoTopupProcessing {
		return domain.ErrNotFound
	}
	p.Status = domain.AutoTopupEnabled
	p.FailureCount = 0
	p.ChargeKey = nil
	return nil
}

func (f *fakeTopupRepo) MarkFailed(_ context.Context, accountID int64) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.policies[accountID]
	if !ok || p.Status != domain.AutoTopupProcessing {
		return 0, false, domain.ErrNotFound
	}
	p.FailureCount++
	p.ChargeKey = nil
	if p.FailureCount >= domain.MaxAutoTopupFailures {
		p.Status = domain.AutoTopupSuspended
		return p.FailureCount, true, nil
	}
	p.Status = domain.AutoTopupEnabled
	return p.FailureCount, false, nil
}

func (f *fakeTopupRepo) UpdatePaymentMethod(_ context.Context, accountID int64, paymentMethodID string) (*domain.AutoTopupPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.policies[accountID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	p.PaymentMethodID = paymentMethodID
	p.FailureCount = 0
	p.ChargeKey = nil
	if p.Status != domain.AutoTopupDisabled {
		p.Status = domain.AutoTopupEnabled
	}
	copied := *p
	return &copied, nil
}

type chargeCall struct {
	req domain.ChargeRequest
}

type fakeGateway struct {
	mu      sync.Mutex
	charges []chargeCall
	fail    bool
	nextID  int
}

func (f *fakeGateway) CreateCharge(_ context.Context, req domain.ChargeRequest) (*domain.ChargeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.charges = append(f.charges, chargeCall{req: req})
	if f.fail {
		return nil, domain.ErrPaymentFailed
	}
	f.nextID++
	return &domain.ChargeResult{ID: fmt.Sprintf("ch_%d", f.nextID), Status: "succeeded"}, nil
}

func (f *fakeGateway) CreateRefund(_ context.Context, chargeID string, _ int64, _ string) (*domain.RefundResult, error) {
	return &domain.RefundResult{ID: "re_" + chargeID}, nil
}

func (f *fakeGateway) chargeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.charges)
}

type sentNotification struct {
	AccountID int64
	Kind      domain.NotificationKind
	Data      map[string]string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (f *fakeNotifier) Send(_ context.Context, accountID int64, kind domain.NotificationKind, data map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotification{AccountID: accountID, Kind: kind, Data: data})
	return nil
}

func (f *fakeNotifier) kinds() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		kinds = append(kinds, string(s.Kind))
	}
	return strings.Join(kinds, ",")
}

func (f *fakeNotifier) countOf(kind domain.NotificationKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sent {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[int64]*domain.MarketplaceJob
	next int64
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[int64]*domain.MarketplaceJob)}
}

func (f *fakeJobRepo) put(job *domain.MarketplaceJob) *domain.MarketplaceJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job.ID == 0 {
		f.next++
		job.ID = f.next
	}
	f.jobs[job.ID] = job
	return job
}

func (f *fakeJobRepo) CreateJob(_ context.Context, job *domain.MarketplaceJob) (*domain.MarketplaceJob, error) {
	job.Status = domain.JobStatusAvailable
	copied := *f.put(job)
	return &copied, nil
}

func (f *fakeJobRepo) GetJob(_ context.Context, id int64) (*domain.MarketplaceJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (f *fakeJobRepo) ListJobsByClient(_ context.Context, clientID int64) ([]*domain.MarketplaceJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var jobs []*domain.MarketplaceJob
	for _, job := range f.jobs {
		if job.ClientID == clientID {
			copied := *job
			jobs = append(jobs, &copied)
		}
	}
	return jobs, nil
}

func (f *fakeJobRepo) CancelJob(_ context.Context, jobID, clientID int64) (*domain.MarketplaceJob, domain.JobStatus, []domain.RejectedSibling, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, "", nil, domain.ErrNotFound
	}
	if job.ClientID != clientID {
		return nil, "", nil, domain.ErrUnauthorized
	}
	if !domain.CanJobTransition(job.Status, domain.JobStatusCancelled) {
		return nil, "", nil, domain.ErrInvalidStatusTransition
	}
	from := job.Status
	job.Status = domain.JobStatusCancelled
	job.SelectedTradieID = nil
	copied := *job
	return &copied, from, nil, nil
}

func (f *fakeJobRepo) CompleteJob(_ context.Context, jobID, clientID int64) (*domain.MarketplaceJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if job.ClientID != clientID {
		return nil, domain.ErrUnauthorized
	}
	if job.Status != domain.JobStatusAssigned {
		return nil, domain.ErrInvalidStatusTransition
	}
	job.Status = domain.JobStatusCompleted
	copied := *job
	return &copied, nil
}

func (f *fakeJobRepo) ExpireJob(_ context.Context, jobID int64) (*domain.MarketplaceJob, []domain.RejectedSibling, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, nil, domain.ErrNotFound
	}
	if job.Status != domain.JobStatusAvailable {
		return nil, nil, domain.ErrInvalidStatusTransition
	}
	job.Status = domain.JobStatusExpired
	copied := *job
	return &copied, nil, nil
}

func (f *fakeJobRepo) DueForExpiry(_ context.Context, now time.Time, limit int) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for id, job := range f.jobs {
		if job.Status == domain.JobStatusAvailable && job.ExpiresAt.Before(now) && len(ids) < limit {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// stubAppRepo scripts the application repository per call.
type stubAppRepo struct {
	submitFn   func(app *domain.JobApplication, debit domain.UsageDebit) (*domain.JobApplication, *domain.CreditBalance, error)
	getFn      func(id int64) (*domain.JobApplication, error)
	selectFn   func(applicationID, clientID int64) (*domain.JobApplication, domain.ApplicationStatus, *domain.MarketplaceJob, []domain.RejectedSibling, error)
	rejectFn   func(applicationID, clientID int64) (*domain.JobApplication, domain.ApplicationStatus, error)
	withdrawFn func(applicationID, tradieID int64) (*domain.JobApplication, domain.ApplicationStatus, error)
	reviewFn   func(applicationID, clientID int64) (*domain.JobApplication, error)
}

func (s *stubAppRepo) SubmitApplication(_ context.Context, app *domain.JobApplication, debit domain.UsageDebit) (*domain.JobApplication, *domain.CreditBalance, error) {
	return s.submitFn(app, debit)
}

func (s *stubAppRepo) GetApplication(_ context.Context, id int64) (*domain.JobApplication, error) {
	return s.getFn(id)
}

func (s *stubAppRepo) ListByJob(context.Context, int64) ([]*domain.JobApplication, error) {
	return nil, nil
}

func (s *stubAppRepo) ListByTradie(context.Context, int64) ([]*domain.JobApplication, error) {
	return nil, nil
}

func (s *stubAppRepo) MarkUnderReview(_ context.Context, applicationID, clientID int64) (*domain.JobApplication, error) {
	return s.reviewFn(applicationID, clientID)
}

func (s *stubAppRepo) RejectApplication(_ context.Context, applicationID, clientID int64) (*domain.JobApplication, domain.ApplicationStatus, error) {
	return s.rejectFn(applicationID, clientID)
}

func (s *stubAppRepo) SelectApplication(_ context.Context, applicationID, clientID int64) (*domain.JobApplication, domain.ApplicationStatus, *domain.MarketplaceJob, []domain.RejectedSibling, error) {
	return s.selectFn(applicationID, clientID)
}

func (s *stubAppRepo) WithdrawApplication(_ context.Context, applicationID, tradieID int64) (*domain.JobApplication, domain.ApplicationStatus, error) {
	return s.withdrawFn(applicationID, tradieID)
}

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
	next     int64
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[string]*domain.Account)}
}

func (f *fakeAccountRepo) CreateAccount(_ context.Context, login, passwordHash string, role domain.AccountRole) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[login]; ok {
		return nil, domain.ErrAccountExists
	}
	f.next++
	account := &domain.Account{ID: f.next, Login: login, PasswordHash: passwordHash, Role: role}
	f.accounts[login] = account
	copied := *account
	return &copied, nil
}

func (f *fakeAccountRepo) GetAccountByLogin(_ context.Context, login string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[login]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *account
	return &copied, nil
}

func (f *fakeAccountRepo) GetAccountByID(_ context.Context, id int64) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, account := range f.accounts {
		if account.ID == id {
			copied := *account
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}
