package payment

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAmount is returned for non-positive or overflowing order amounts.
	ErrInvalidAmount = errors.New("payment: invalid amount")
	// ErrInvalidRequest is returned when a verification request is missing a field.
	ErrInvalidRequest = errors.New("payment: incomplete verification request")
	// ErrVerification matches every *Failure through errors.Is.
	ErrVerification = errors.New("payment: verification failed")
)

// Kind classifies a verification failure.
type Kind string

const (
	SignatureRejectedByGateway Kind = "signature_rejected_by_gateway"
	NotCaptured                Kind = "not_captured"
	OrderMismatch              Kind = "order_mismatch"
	AmountMismatch             Kind = "amount_mismatch"
	SignatureMismatch          Kind = "signature_mismatch"
)

// Failure is a recovered verification outcome. It never carries signature
// material.
type Failure struct {
	Kind      Kind
	OrderID   string
	PaymentID string
}

func (f *Failure) Error() string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("payment: verification failed: %s (order %s, payment %s)", f.Kind, f.OrderID, f.PaymentID)
}

// Is lets errors.Is(err, ErrVerification) match any failure kind.
func (f *Failure) Is(target error) bool {
	return target == ErrVerification
}

// FailureKind extracts the failure kind from err, if it is a verification failure.
func FailureKind(err error) (Kind, bool) {
	var f *Failure
	if errors.As(err, &f) && f != nil {
		return f.Kind, true
	}
	return "", false
}

// InfrastructureError wraps a collaborator failure: unreachable gateway,
// unexpected response shape or an unavailable secret.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("payment: %s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error { return e.Err }

// IsInfrastructure reports whether err is (or wraps) an InfrastructureError.
func IsInfrastructure(err error) bool {
	var target *InfrastructureError
	return errors.As(err, &target)
}
