package payment

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/backend-pgi/internal/obs"
)

// VerificationRequest is the caller-supplied, untrusted payment triple plus
// the amount the caller expects to have been paid, in minor units.
type VerificationRequest struct {
	OrderID        string
	PaymentID      string
	Signature      string
	ExpectedAmount int64
}

// SignatureChecker recomputes the gateway signature locally.
type SignatureChecker interface {
	Verify(orderID, paymentID, claimed string) (bool, error)
}

// Pipeline runs the payment verification checks in a fixed order and stops at
// the first failure:
//
//  1. gateway signature confirmation
//  2. capture status, then order binding
//  3. exact amount match
//  4. independent HMAC recomputation
type Pipeline struct {
	Gateway   Gateway
	Signature SignatureChecker
	Logger    zerolog.Logger
}

// Verify returns a VerifiedPayment, a *Failure (matching ErrVerification),
// ErrInvalidRequest, or an *InfrastructureError.
func (p *Pipeline) Verify(ctx context.Context, req VerificationRequest) (VerifiedPayment, error) {
	if p == nil || p.Gateway == nil || p.Signature == nil {
		return VerifiedPayment{}, errors.New("payment pipeline not configured")
	}
	ctx, span := otel.Tracer("payment.Pipeline").Start(ctx, "Pipeline.Verify")
	defer span.End()

	req.OrderID = strings.TrimSpace(req.OrderID)
	req.PaymentID = strings.TrimSpace(req.PaymentID)
	req.Signature = strings.TrimSpace(req.Signature)
	span.SetAttributes(
		attribute.String("order.id", req.OrderID),
		attribute.String("payment.id", req.PaymentID),
		attribute.Int64("payment.expected_amount", req.ExpectedAmount),
	)

	verified, err := p.run(ctx, req)
	result := resultLabel(err)
	span.SetAttributes(attribute.String("payment.verification.result", result))
	if obs.PaymentVerificationTotal != nil {
		obs.PaymentVerificationTotal.WithLabelValues(result).Inc()
	}
	logger := p.Logger.With().Str("order_id", req.OrderID).Str("payment_id", req.PaymentID).Logger()
	switch {
	case err == nil:
		logger.Info().Int64("amount", verified.amount).Msg("payment_verified")
	case IsInfrastructure(err):
		span.RecordError(err)
		span.SetStatus(codes.Error, "gateway failure")
		logger.Error().Err(err).Msg("payment_verification_error")
	default:
		logger.Warn().Str("result", result).Msg("payment_verification_failed")
	}
	return verified, err
}

func (p *Pipeline) run(ctx context.Context, req VerificationRequest) (VerifiedPayment, error) {
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" || req.ExpectedAmount <= 0 {
		return VerifiedPayment{}, ErrInvalidRequest
	}
	fail := func(kind Kind) (VerifiedPayment, error) {
		return VerifiedPayment{}, &Failure{Kind: kind, OrderID: req.OrderID, PaymentID: req.PaymentID}
	}

	ok, err := p.Gateway.VerifySignature(ctx, req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		return VerifiedPayment{}, infra("verify signature", err)
	}
	if !ok {
		return fail(SignatureRejectedByGateway)
	}

	payment, err := p.Gateway.FetchPayment(ctx, req.PaymentID)
	if err != nil {
		return VerifiedPayment{}, infra("fetch payment", err)
	}
	if strings.TrimSpace(payment.Status) == "" || payment.Amount < 0 {
		return VerifiedPayment{}, infra("fetch payment", errors.New("unexpected payment shape"))
	}
	if payment.Status != StatusCaptured {
		return fail(NotCaptured)
	}
	if payment.OrderID != req.OrderID {
		return fail(OrderMismatch)
	}
	if payment.Amount != req.ExpectedAmount {
		return fail(AmountMismatch)
	}

	match, err := p.Signature.Verify(req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		return VerifiedPayment{}, infra("recompute signature", err)
	}
	if !match {
		return fail(SignatureMismatch)
	}

	return VerifiedPayment{
		paymentID: req.PaymentID,
		orderID:   req.OrderID,
		amount:    payment.Amount,
		currency:  payment.Currency,
		captured:  true,
		signature: req.Signature,
	}, nil
}

func infra(op string, err error) error {
	var existing *InfrastructureError
	if errors.As(err, &existing) {
		return err
	}
	return &InfrastructureError{Op: op, Err: err}
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if kind, ok := FailureKind(err); ok {
		return string(kind)
	}
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return "error"
}
