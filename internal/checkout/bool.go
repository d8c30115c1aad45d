package checkout

import (
	"context"

	"github.com/noah-isme/backend-pgi/internal/payment"
	"github.com/noah-isme/backend-pgi/internal/session"
)

// Bool adapts Service to callers that only need a yes/no answer. Errors are
// logged by the service and collapse to false.
type Bool struct {
	Service *Service
}

// VerifySignature reports whether the payment verified (and, when enabled,
// was bound to a fresh session on t).
func (b Bool) VerifySignature(ctx context.Context, t session.Transport, req payment.VerificationRequest) (payment.VerifiedPayment, bool) {
	if b.Service == nil {
		return payment.VerifiedPayment{}, false
	}
	vp, err := b.Service.VerifyAndAuthorize(ctx, t, req)
	if err != nil {
		return payment.VerifiedPayment{}, false
	}
	return vp, true
}

// IsAuthorized reports whether sessionID holds a valid verified payment.
func (b Bool) IsAuthorized(ctx context.Context, sessionID string) (payment.VerifiedPayment, bool) {
	if b.Service == nil {
		return payment.VerifiedPayment{}, false
	}
	vp, ok, err := b.Service.IsAuthorized(ctx, sessionID)
	if err != nil || !ok {
		return payment.VerifiedPayment{}, false
	}
	return vp, true
}
