package domain

import (
	"context"
	"time"
)

// CreditGrant describes a balance-increasing ledger entry (purchase, bonus,
// refund). An IdempotencyKey, when set, makes the grant apply at most once.
type CreditGrant struct {
	Type           TransactionType
	Credits        int
	Description    string
	ReferenceID    string
	ReferenceType  string
	IdempotencyKey string
	ExpiresAt      *time.Time
}

// UsageDebit describes a balance-decreasing usage entry together with the
// caps the repository re-checks under the account lock.
type UsageDebit struct {
	UsageType     UsageType
	Credits       int
	MaxPerDay     int
	MaxPerMonth   int
	Description   string
	ReferenceID   string
	ReferenceType string
}

// AccountRepository persists marketplace identities.
type AccountRepository interface {
	CreateAccount(ctx context.Context, login, passwordHash string, role AccountRole) (*Account, error)
	GetAccountByLogin(ctx context.Context, login string) (*Account, error)
	GetAccountByID(ctx context.Context, id int64) (*Account, error)
}

// BalanceRepository owns the CreditBalance row and its paired ledger writes.
// Every mutation appends the matching CreditTransaction in the same unit of
// work, so the two are never observed out of sync.
type BalanceRepository interface {
	GetOrCreate(ctx context.Context, accountID int64) (*CreditBalance, error)
	Credit(ctx context.Context, accountID int64, grant CreditGrant) (*CreditBalance, error)
	DeductForUsage(ctx context.Context, accountID int64, debit UsageDebit) (*CreditBalance, error)
	ExpireAgedCredits(ctx context.Context, now time.Time, limit int) (int, error)
}

// TransactionRepository reads the append-only ledger.
type TransactionRepository interface {
	ListRecent(ctx context.Context, accountID int64, limit int) ([]*CreditTransaction, error)
	UsageBreakdown(ctx context.Context, accountID int64, since time.Time) (map[UsageType]int, error)
}

// AutoTopupRepository persists the per-account auto-topup policy and its
// state machine. BeginProcessing is the single-flight guard: it atomically
// moves enabled -> processing and records the charge idempotency key before
// any gateway call, returning ErrNotFound when no transition happened.
type AutoTopupRepository interface {
	GetPolicy(ctx context.Context, accountID int64) (*AutoTopupPolicy, error)
	UpsertPolicy(ctx context.Context, policy *AutoTopupPolicy) (*AutoTopupPolicy, error)
	BeginProcessing(ctx context.Context, accountID int64, chargeKey string) (*AutoTopupPolicy, error)
	MarkSucceeded(ctx context.Context, accountID int64) error
	MarkFailed(ctx context.Context, accountID int64) (failureCount int, suspended bool, err error)
	UpdatePaymentMethod(ctx context.Context, accountID int64, paymentMethodID string) (*AutoTopupPolicy, error)
}

// JobRepository persists marketplace jobs. Status changes are conditional
// updates; the fan-out methods close open applications in the same database
// transaction and return what the refunds need.
type JobRepository interface {
	CreateJob(ctx context.Context, job *MarketplaceJob) (*MarketplaceJob, error)
	GetJob(ctx context.Context, id int64) (*MarketplaceJob, error)
	ListJobsByClient(ctx context.Context, clientID int64) ([]*MarketplaceJob, error)
	CancelJob(ctx context.Context, jobID, clientID int64) (*MarketplaceJob, JobStatus, []RejectedSibling, error)
	CompleteJob(ctx context.Context, jobID, clientID int64) (*MarketplaceJob, error)
	ExpireJob(ctx context.Context, jobID int64) (*MarketplaceJob, []RejectedSibling, error)
	DueForExpiry(ctx context.Context, now time.Time, limit int) ([]int64, error)
}

// ApplicationRepository persists job applications. SubmitApplication performs
// the whole submission as one unit: job availability check, usage-cap check
// and debit under the account lock, application insert, ledger row.
type ApplicationRepository interface {
	SubmitApplication(ctx context.Context, app *JobApplication, debit UsageDebit) (*JobApplication, *CreditBalance, error)
	GetApplication(ctx context.Context, id int64) (*JobApplication, error)
	ListByJob(ctx context.Context, jobID int64) ([]*JobApplication, error)
	ListByTradie(ctx context.Context, tradieID int64) ([]*JobApplication, error)
	MarkUnderReview(ctx context.Context, applicationID, clientID int64) (*JobApplication, error)
	RejectApplication(ctx context.Context, applicationID, clientID int64) (*JobApplication, ApplicationStatus, error)
	SelectApplication(ctx context.Context, applicationID, clientID int64) (*JobApplication, ApplicationStatus, *MarketplaceJob, []RejectedSibling, error)
	WithdrawApplication(ctx context.Context, applicationID, tradieID int64) (*JobApplication, ApplicationStatus, error)
}

// ChargeRequest is the payment-gateway charge contract. Idempotent per
// IdempotencyKey so retries cannot double-charge.
type ChargeRequest struct {
	AmountCents     int64
	Currency        string
	PaymentMethodID string
	IdempotencyKey  string
	Metadata        map[string]string
}

// ChargeResult is the gateway's answer to a charge request.
type ChargeResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// RefundResult is the gateway's answer to a refund request.
type RefundResult struct {
	ID string `json:"id"`
}

// PaymentGateway is the external payment collaborator.
type PaymentGateway interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	CreateRefund(ctx context.Context, chargeID string, amountCents int64, reason string) (*RefundResult, error)
}

// NotificationKind selects the message template on the dispatcher side.
type NotificationKind string

const (
	NotifyLowBalance       NotificationKind = "low_balance"
	NotifyCriticalBalance  NotificationKind = "critical_balance"
	NotifyTopupSucceeded   NotificationKind = "auto_topup_succeeded"
	NotifyTopupFailed      NotificationKind = "auto_topup_failed"
	NotifyTopupSuspended   NotificationKind = "auto_topup_suspended"
	NotifyNewApplication   NotificationKind = "new_application"
	NotifyApplicationWon   NotificationKind = "application_selected"
	NotifyApplicationLost  NotificationKind = "application_rejected"
	NotifyApplicationGone  NotificationKind = "application_withdrawn"
	NotifyJobCancelled     NotificationKind = "job_cancelled"
	NotifyJobExpired       NotificationKind = "job_expired"
	NotifyJobCompleted     NotificationKind = "job_completed"
)

// Notifier is the external notification dispatcher. Delivery is
// fire-and-forget: failures are logged by callers, never propagated.
type Notifier interface {
	Send(ctx context.Context, accountID int64, kind NotificationKind, data map[string]string) error
}
