package domain

// Error codes for the uniform workflow result shape.
const (
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeUsageLimitExceeded  = "USAGE_LIMIT_EXCEEDED"
	CodeInvalidTransition   = "INVALID_STATUS_TRANSITION"
	CodeJobNotAvailable     = "JOB_NOT_AVAILABLE"
	CodeJobExpired          = "JOB_EXPIRED"
	CodeDuplicateApp        = "DUPLICATE_APPLICATION"
	CodePaymentFailed       = "PAYMENT_FAILED"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeNotFound            = "NOT_FOUND"
	CodeValidation          = "VALIDATION_ERROR"
	CodeSystemError         = "SYSTEM_ERROR"
)

// Result is the uniform shape every workflow entry point returns.
type Result struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Code    string   `json:"code,omitempty"`
	Data    any      `json:"data,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// OK builds a success result.
func OK(message string, data any) Result {
	return Result{Success: true, Message: message, Data: data}
}

// Fail builds a failure result with a machine-readable code.
func Fail(code, message string, errs ...string) Result {
	return Result{Success: false, Message: message, Code: code, Errors: errs}
}
