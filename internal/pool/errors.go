package pool

import (
	"errors"
	"fmt"

	"bondingCurve/internal/curve"
	"bondingCurve/internal/fixedpoint"
)

// Code is a stable rejection reason reported to callers.
type Code string

const (
	CodeDomain                 Code = "DOMAIN_ERROR"
	CodeOverflow               Code = "OVERFLOW"
	CodeInvalidAmount          Code = "INVALID_AMOUNT"
	CodeExceedsMaxSupply       Code = "EXCEEDS_MAX_SUPPLY"
	CodeInsufficientBalance    Code = "INSUFFICIENT_BALANCE"
	CodeCurveCompleted         Code = "CURVE_COMPLETED"
	CodeSlippageExceeded       Code = "SLIPPAGE_EXCEEDED"
	CodeNotReadyForLaunch      Code = "NOT_READY_FOR_LAUNCH"
	CodeInvalidCurve           Code = "INVALID_CURVE"
	CodeInvalidRequest         Code = "INVALID_REQUEST"
	CodePoolNotFound           Code = "POOL_NOT_FOUND"
	CodeContention             Code = "CONTENTION"
	CodePersistenceUnavailable Code = "PERSISTENCE_UNAVAILABLE"
	CodeIdempotencyMismatch    Code = "IDEMPOTENCY_MISMATCH"
	CodeSubmissionFailed       Code = "SUBMISSION_FAILED"
)

// TradeError is a rejected or failed pool operation. Two TradeErrors match
// under errors.Is when their codes are equal.
type TradeError struct {
	Code    Code
	Message string
	Err     error
}

func (e *TradeError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *TradeError) Unwrap() error { return e.Err }

func (e *TradeError) Is(target error) bool {
	t, ok := target.(*TradeError)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is matching.
var (
	ErrDomain                 = &TradeError{Code: CodeDomain}
	ErrOverflow               = &TradeError{Code: CodeOverflow}
	ErrInvalidAmount          = &TradeError{Code: CodeInvalidAmount}
	ErrExceedsMaxSupply       = &TradeError{Code: CodeExceedsMaxSupply}
	ErrInsufficientBalance    = &TradeError{Code: CodeInsufficientBalance}
	ErrCurveCompleted         = &TradeError{Code: CodeCurveCompleted}
	ErrSlippageExceeded       = &TradeError{Code: CodeSlippageExceeded}
	ErrNotReadyForLaunch      = &TradeError{Code: CodeNotReadyForLaunch}
	ErrInvalidCurve           = &TradeError{Code: CodeInvalidCurve}
	ErrInvalidRequest         = &TradeError{Code: CodeInvalidRequest}
	ErrPoolNotFound           = &TradeError{Code: CodePoolNotFound}
	ErrContention             = &TradeError{Code: CodeContention}
	ErrPersistenceUnavailable = &TradeError{Code: CodePersistenceUnavailable}
	ErrIdempotencyMismatch    = &TradeError{Code: CodeIdempotencyMismatch}
	ErrSubmissionFailed       = &TradeError{Code: CodeSubmissionFailed}
)

// Reject builds a TradeError with a formatted message.
func Reject(code Code, format string, args ...any) *TradeError {
	return &TradeError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to an underlying error.
func Wrap(code Code, err error) *TradeError {
	return &TradeError{Code: code, Err: err}
}

// CodeOf returns the stable code carried by err, classifying arithmetic and
// curve errors. It returns "" for nil and for errors it does not know.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var te *TradeError
	if errors.As(err, &te) {
		return te.Code
	}
	switch {
	case errors.Is(err, curve.ErrInvalidAmount):
		return CodeInvalidAmount
	case errors.Is(err, curve.ErrInvalidParams):
		return CodeInvalidCurve
	case errors.Is(err, fixedpoint.ErrOverflow):
		return CodeOverflow
	case errors.Is(err, fixedpoint.ErrDomain), errors.Is(err, fixedpoint.ErrDivisionByZero):
		return CodeDomain
	}
	return ""
}

// classify turns an error from the pricing path into a TradeError.
func classify(err error) *TradeError {
	var te *TradeError
	if errors.As(err, &te) {
		return te
	}
	code := CodeOf(err)
	if code == "" {
		code = CodeDomain
	}
	return Wrap(code, err)
}
