package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pgi/internal/deferred"
	"github.com/noah-isme/backend-pgi/internal/payment"
	"github.com/noah-isme/backend-pgi/internal/session"
)

// Rejection messages carried by Promises.
const (
	MsgOrderFailed        = "Order Failed"
	MsgVerificationFailed = "Verification Failed"
	MsgAuthorized         = "Authorized"
	MsgUnauthorized       = "Unauthorized"
	MsgConnectionFailed   = "Connection Failed"
)

// ErrUnauthorized rejects an IsAuthorized promise whose session holds no valid payment.
var ErrUnauthorized = errors.New(MsgUnauthorized)

// Promises exposes the Service operations as deferred results. Every returned
// result is already resolved or rejected; handlers fire when the caller calls
// Settle.
type Promises struct {
	Service *Service
	// Logger receives unhandled rejections; nil uses the global logger.
	Logger *zerolog.Logger
}

// Order creates an order: 200 with the result, or 400 "Order Failed".
func (p Promises) Order(ctx context.Context, in OrderInput) *deferred.Result[payment.OrderResult] {
	res := newResult[payment.OrderResult](p.Logger)
	if !p.connected() {
		res.Reject(http.StatusBadRequest, errors.New(MsgConnectionFailed))
		return res
	}
	order, err := p.Service.CreateOrder(ctx, in)
	if err != nil {
		res.Reject(http.StatusBadRequest, fmt.Errorf("%s: %w", MsgOrderFailed, err))
		return res
	}
	res.Resolve(http.StatusOK, order)
	return res
}

// VerifySignature verifies the payment and, with session authorization
// enabled, binds it to a fresh session on t: 200 with the verified payment, or
// 400 "Verification Failed".
func (p Promises) VerifySignature(ctx context.Context, t session.Transport, req payment.VerificationRequest) *deferred.Result[payment.VerifiedPayment] {
	res := newResult[payment.VerifiedPayment](p.Logger)
	if !p.connected() {
		res.Reject(http.StatusBadRequest, errors.New(MsgConnectionFailed))
		return res
	}
	vp, err := p.Service.VerifyAndAuthorize(ctx, t, req)
	if err != nil {
		res.Reject(http.StatusBadRequest, fmt.Errorf("%s: %w", MsgVerificationFailed, err))
		return res
	}
	res.Resolve(http.StatusOK, vp)
	return res
}

// IsAuthorized resolves 200 with the stored payment when sessionID is
// authorized and rejects 401 "Unauthorized" otherwise.
func (p Promises) IsAuthorized(ctx context.Context, sessionID string) *deferred.Result[payment.VerifiedPayment] {
	res := newResult[payment.VerifiedPayment](p.Logger)
	if !p.connected() {
		res.Reject(http.StatusBadRequest, errors.New(MsgConnectionFailed))
		return res
	}
	vp, ok, err := p.Service.IsAuthorized(ctx, sessionID)
	switch {
	case err != nil:
		res.Reject(http.StatusUnauthorized, fmt.Errorf("%s: %w", MsgUnauthorized, err))
	case !ok:
		res.Reject(http.StatusUnauthorized, ErrUnauthorized)
	default:
		res.Resolve(http.StatusOK, vp)
	}
	return res
}

// ResetAuthorization clears the session's authorization.
func (p Promises) ResetAuthorization(ctx context.Context, sessionID string) *deferred.Result[bool] {
	res := newResult[bool](p.Logger)
	if !p.connected() {
		res.Reject(http.StatusBadRequest, errors.New(MsgConnectionFailed))
		return res
	}
	if err := p.Service.ResetAuthorization(ctx, sessionID); err != nil {
		res.Reject(http.StatusBadRequest, err)
		return res
	}
	res.Resolve(http.StatusOK, true)
	return res
}

func (p Promises) connected() bool {
	return p.Service != nil && p.Service.Gateway != nil && p.Service.Pipeline != nil
}

func newResult[T any](logger *zerolog.Logger) *deferred.Result[T] {
	res := deferred.New[T]()
	if logger != nil {
		res.WithLogger(*logger)
	}
	return res
}
