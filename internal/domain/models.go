package domain

import "time"

// AccountRole distinguishes the two sides of the marketplace.
type AccountRole string

const (
	RoleClient AccountRole = "client"
	RoleTradie AccountRole = "tradie"
)

// Account is a client or tradie identity holding a credit balance.
type Account struct {
	ID           int64       `json:"id"`
	Login        string      `json:"login"`
	PasswordHash string      `json:"-"`
	Role         AccountRole `json:"role"`
	CreatedAt    time.Time   `json:"created_at"`
}

// CreditBalance is the per-account balance row. The reconciliation identity
// CurrentBalance == TotalPurchased + TotalRefunded - TotalUsed holds after
// every mutation, and CurrentBalance never goes negative.
type CreditBalance struct {
	AccountID      int64      `json:"account_id"`
	CurrentBalance int        `json:"current_balance"`
	TotalPurchased int        `json:"total_purchased"`
	TotalUsed      int        `json:"total_used"`
	TotalRefunded  int        `json:"total_refunded"`
	LastPurchaseAt *time.Time `json:"last_purchase_at,omitempty"`
	LastUsageAt    *time.Time `json:"last_usage_at,omitempty"`
}

// TransactionType classifies ledger entries by their balance effect.
type TransactionType string

const (
	TransactionTypePurchase TransactionType = "purchase"
	TransactionTypeUsage    TransactionType = "usage"
	TransactionTypeRefund   TransactionType = "refund"
	TransactionTypeBonus    TransactionType = "bonus"
	TransactionTypeExpiry   TransactionType = "expiry"
)

// TransactionStatus is the lifecycle of a ledger entry. Completed entries are
// never mutated; compensation happens through new entries.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// CreditTransaction is one append-only ledger entry. Credits is always
// positive; the sign of the balance effect follows from Type.
type CreditTransaction struct {
	ID             int64             `json:"id"`
	AccountID      int64             `json:"account_id"`
	Type           TransactionType   `json:"type"`
	UsageType      *UsageType        `json:"usage_type,omitempty"`
	Credits        int               `json:"credits"`
	Description    string            `json:"description"`
	ReferenceID    string            `json:"reference_id,omitempty"`
	ReferenceType  string            `json:"reference_type,omitempty"`
	Status         TransactionStatus `json:"status"`
	IdempotencyKey *string           `json:"-"`
	CreatedAt      time.Time         `json:"created_at"`
	ExpiresAt      *time.Time        `json:"expires_at,omitempty"`
}

// UsageType is a categorized credit-consuming action with its own cost and caps.
type UsageType string

const (
	UsageTypeJobApplication UsageType = "job_application"
	UsageTypeProfileBoost   UsageType = "profile_boost"
	UsageTypePremiumUnlock  UsageType = "premium_unlock"
)

// UsagePolicy declares the cost and calendar-window caps for one usage type.
// A cap of zero means unlimited.
type UsagePolicy struct {
	Type            UsageType `json:"type"`
	CreditsRequired int       `json:"credits_required"`
	MaxPerDay       int       `json:"max_per_day"`
	MaxPerMonth     int       `json:"max_per_month"`
}

// AutoTopupStatus is the auto-topup policy state machine.
type AutoTopupStatus string

const (
	AutoTopupDisabled   AutoTopupStatus = "disabled"
	AutoTopupEnabled    AutoTopupStatus = "enabled"
	AutoTopupProcessing AutoTopupStatus = "processing"
	AutoTopupSuspended  AutoTopupStatus = "suspended"
)

// MaxAutoTopupFailures is the consecutive-failure count that suspends a policy.
const MaxAutoTopupFailures = 3

// AutoTopupPolicy is the optional per-account automatic purchase policy.
// FailureCount >= MaxAutoTopupFailures implies Status == suspended.
type AutoTopupPolicy struct {
	AccountID       int64           `json:"account_id"`
	Status          AutoTopupStatus `json:"status"`
	TriggerBalance  int             `json:"trigger_balance"`
	PackageType     string          `json:"package_type"`
	PaymentMethodID string          `json:"payment_method_id"`
	FailureCount    int             `json:"failure_count"`
	ChargeKey       *string         `json:"-"`
	LastTriggeredAt *time.Time      `json:"last_triggered_at,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// CreditPackage is a purchasable credit bundle.
type CreditPackage struct {
	Type         string `json:"type"`
	Credits      int    `json:"credits"`
	BonusCredits int    `json:"bonus_credits"`
	PriceCents   int64  `json:"price_cents"`
	Currency     string `json:"currency"`
}

// TotalCredits is the amount granted on purchase: base plus bonus.
func (p CreditPackage) TotalCredits() int {
	return p.Credits + p.BonusCredits
}

// JobStatus is the marketplace job state machine.
type JobStatus string

const (
	JobStatusAvailable JobStatus = "available"
	JobStatusAssigned  JobStatus = "assigned"
	JobStatusCompleted JobStatus = "completed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusExpired   JobStatus = "expired"
)

// UrgencyLevel rates how soon a job needs doing.
type UrgencyLevel string

const (
	UrgencyStandard  UrgencyLevel = "standard"
	UrgencyUrgent    UrgencyLevel = "urgent"
	UrgencyEmergency UrgencyLevel = "emergency"
)

// MarketplaceJob is a posted job. SelectedTradieID is set if and only if the
// job is assigned or completed.
type MarketplaceJob struct {
	ID               int64        `json:"id"`
	ClientID         int64        `json:"client_id"`
	JobType          string       `json:"job_type"`
	Location         string       `json:"location"`
	UrgencyLevel     UrgencyLevel `json:"urgency_level"`
	EstimatedBudget  int64        `json:"estimated_budget"`
	Status           JobStatus    `json:"status"`
	DateRequired     time.Time    `json:"date_required"`
	ExpiresAt        time.Time    `json:"expires_at"`
	ApplicationCount int          `json:"application_count"`
	SelectedTradieID *int64       `json:"selected_tradie_id,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// ApplicationStatus is the job application state machine.
type ApplicationStatus string

const (
	ApplicationStatusSubmitted   ApplicationStatus = "submitted"
	ApplicationStatusUnderReview ApplicationStatus = "under_review"
	ApplicationStatusSelected    ApplicationStatus = "selected"
	ApplicationStatusRejected    ApplicationStatus = "rejected"
	ApplicationStatusWithdrawn   ApplicationStatus = "withdrawn"
)

// JobApplication is one tradie's bid on a job. CreditsUsed is fixed at
// creation time and is the exact refund amount when the application loses.
type JobApplication struct {
	ID               int64             `json:"id"`
	MarketplaceJobID int64             `json:"marketplace_job_id"`
	TradieID         int64             `json:"tradie_id"`
	CustomQuote      int64             `json:"custom_quote"`
	ProposedTimeline string            `json:"proposed_timeline"`
	CreditsUsed      int               `json:"credits_used"`
	Status           ApplicationStatus `json:"status"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// RejectedSibling describes one application closed by a selection,
// cancellation or expiry fan-out, carrying what its refund needs.
type RejectedSibling struct {
	ApplicationID int64
	TradieID      int64
	CreditsUsed   int
	From          ApplicationStatus
}

// Dashboard aggregates an account's credit state for the dashboard endpoint.
type Dashboard struct {
	Balance            *CreditBalance       `json:"balance"`
	RecentTransactions []*CreditTransaction `json:"recent_transactions"`
	UsageBreakdown     map[UsageType]int    `json:"usage_breakdown"`
	AutoTopup          *AutoTopupPolicy     `json:"auto_topup,omitempty"`
}
