package domain

import "errors"

// Account errors
var (
	ErrAccountExists      = errors.New("account already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidInput       = errors.New("invalid input")
)

// Credit errors
var (
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrUsageLimitExceeded   = errors.New("usage limit exceeded")
	ErrDuplicateTransaction = errors.New("transaction already applied for idempotency key")
	ErrUnknownUsageType     = errors.New("unknown usage type")
	ErrUnknownPackage       = errors.New("unknown credit package")
)

// Workflow errors
var (
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrJobNotAvailable         = errors.New("job is no longer available")
	ErrJobExpired              = errors.New("job has expired")
	ErrDuplicateApplication    = errors.New("application already submitted for this job")
	ErrUnauthorized            = errors.New("actor does not own this resource")
	ErrNotFound                = errors.New("not found")
)

// External collaborator errors
var (
	ErrPaymentFailed      = errors.New("payment failed")
	ErrAutoTopupSuspended = errors.New("auto-topup is suspended")
)
