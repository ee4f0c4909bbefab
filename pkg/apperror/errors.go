package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Validation (VAL) ----

// Validation returns a 400 validation error with a caller-supplied message.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

func ErrInvalidAmount() *AppError {
	return New("VAL_002", "Invalid amount", http.StatusBadRequest)
}

func ErrSelfTransfer() *AppError {
	return New("VAL_003", "Sender and recipient must differ", http.StatusBadRequest)
}

func ErrCurrencyMismatch() *AppError {
	return New("VAL_004", "Wallet currencies do not match", http.StatusBadRequest)
}

func ErrAmountCapExceeded() *AppError {
	return New("VAL_005", "Amount exceeds platform cap", http.StatusBadRequest)
}

// ---- Wallet & Transfer (PAY) ----

func ErrInsufficientFunds() *AppError {
	return New("PAY_001", "Insufficient balance in wallet", http.StatusBadRequest)
}

func ErrNotFound(entity string) *AppError {
	return New("PAY_002", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ErrDuplicateRequest covers an unexpired idempotency key presented again.
func ErrDuplicateRequest() *AppError {
	return New("PAY_003", "Duplicate operation request", http.StatusConflict)
}

// ErrBalanceConflict covers a lost compare-and-swap race after bounded retries.
func ErrBalanceConflict() *AppError {
	return New("PAY_004", "Concurrent balance modification, retry the operation", http.StatusConflict)
}

// ---- Containment (SEC) ----

func ErrWalletBlocked() *AppError {
	return New("SEC_001", "Wallet is blocked", http.StatusForbidden)
}

func ErrFraudBlocked() *AppError {
	return New("SEC_002", "Operation blocked by fraud controls", http.StatusForbidden)
}

func ErrInvalidPin() *AppError {
	return New("SEC_003", "Invalid wallet PIN", http.StatusForbidden)
}

func ErrInvalidToken() *AppError {
	return New("SEC_004", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrOperatorRequired() *AppError {
	return New("SEC_005", "Operator role required", http.StatusForbidden)
}

// ---- Operations (OPS) ----

// ErrPanicActive is returned by every mutating entry point while the
// emergency freeze is on.
func ErrPanicActive() *AppError {
	return New("OPS_001", "Platform is in emergency freeze, operations suspended", http.StatusServiceUnavailable)
}

func ErrQuarantineAlreadyResolved() *AppError {
	return New("OPS_002", "Quarantined transaction already resolved", http.StatusConflict)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// TransientStoreError marks a retryable storage failure.
func TransientStoreError(err error) *AppError {
	return Wrap("SYS_002", "Temporary storage error, retry the operation", http.StatusServiceUnavailable, err)
}

// CriticalInconsistency marks a debit whose credit and compensation both
// failed. The caller only ever sees the opaque message; the detail goes to
// the alert bus.
func CriticalInconsistency(err error) *AppError {
	return Wrap("SYS_003", "Internal server error", http.StatusInternalServerError, err)
}
