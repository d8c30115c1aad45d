package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-pgi/internal/obs"
	"github.com/noah-isme/backend-pgi/internal/payment"
	"github.com/noah-isme/backend-pgi/internal/session"
)

// OrderInput is the caller-facing order request. Amount is in major units.
type OrderInput struct {
	Amount   int64
	Currency string
	Notes    map[string]string
	Receipt  string
}

// Service is the direct-return facade over order creation, payment
// verification and session authorization.
type Service struct {
	Gateway  payment.Gateway
	Builder  payment.OrderBuilder
	Pipeline *payment.Pipeline
	Guard    *session.Guard
	// KeyID is the publishable key id returned to the frontend.
	KeyID  string
	Logger zerolog.Logger
}

var errNotConfigured = errors.New("checkout service not configured")

// CreateOrder validates in and creates the order with the gateway. Invalid
// amounts are rejected with payment.ErrInvalidAmount before any gateway call.
func (s *Service) CreateOrder(ctx context.Context, in OrderInput) (payment.OrderResult, error) {
	if s == nil || s.Gateway == nil {
		return payment.OrderResult{}, errNotConfigured
	}
	ctx, span := otel.Tracer("checkout.Service").Start(ctx, "Service.CreateOrder")
	defer span.End()

	start := time.Now()
	currency := "unknown"
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("payment.order.result", result),
			attribute.Float64("payment.order.duration_ms", obs.DurationMillis(time.Since(start))),
		)
		if obs.PaymentOrderTotal != nil {
			obs.PaymentOrderTotal.WithLabelValues(currency, result).Inc()
		}
	}()

	req, err := s.Builder.Build(in.Amount, in.Currency, in.Notes, in.Receipt)
	if err != nil {
		result = "invalid_amount"
		return payment.OrderResult{}, err
	}
	currency = req.Currency
	span.SetAttributes(
		attribute.Int64("payment.order.amount", req.Amount),
		attribute.String("payment.order.currency", req.Currency),
		attribute.String("payment.order.receipt", req.Receipt),
	)

	order, err := s.Gateway.CreateOrder(ctx, req)
	if err != nil {
		span.RecordError(err)
		s.Logger.Error().Err(err).Str("receipt", req.Receipt).Msg("create_order_failed")
		if payment.IsInfrastructure(err) {
			return payment.OrderResult{}, err
		}
		return payment.OrderResult{}, &payment.InfrastructureError{Op: "create order", Err: err}
	}
	result = "success"
	s.Logger.Info().Str("order_id", order.ID).Str("receipt", req.Receipt).Int64("amount", req.Amount).Msg("order_created")
	return payment.OrderResult{
		OrderID:  order.ID,
		Receipt:  req.Receipt,
		Amount:   req.Amount,
		Currency: req.Currency,
		Key:      s.KeyID,
	}, nil
}

// VerifyPayment runs the verification pipeline.
func (s *Service) VerifyPayment(ctx context.Context, req payment.VerificationRequest) (payment.VerifiedPayment, error) {
	if s == nil || s.Pipeline == nil {
		return payment.VerifiedPayment{}, errNotConfigured
	}
	return s.Pipeline.Verify(ctx, req)
}

// VerifyAndAuthorize verifies the payment and, when session authorization is
// enabled, begins a fresh session on t and binds the payment to it.
func (s *Service) VerifyAndAuthorize(ctx context.Context, t session.Transport, req payment.VerificationRequest) (payment.VerifiedPayment, error) {
	vp, err := s.VerifyPayment(ctx, req)
	if err != nil {
		return payment.VerifiedPayment{}, err
	}
	if s.Guard == nil || !s.Guard.Enabled {
		return vp, nil
	}
	ticket, err := s.Guard.Begin(ctx, t)
	if err != nil {
		return payment.VerifiedPayment{}, err
	}
	if err := s.Guard.Authorize(ctx, ticket, vp); err != nil {
		return payment.VerifiedPayment{}, err
	}
	return vp, nil
}

// IsAuthorized reports whether sessionID holds a still-valid verified payment.
func (s *Service) IsAuthorized(ctx context.Context, sessionID string) (payment.VerifiedPayment, bool, error) {
	if s == nil {
		return payment.VerifiedPayment{}, false, errNotConfigured
	}
	return s.Guard.IsAuthorized(ctx, sessionID)
}

// ResetAuthorization clears the authorization stored for sessionID.
func (s *Service) ResetAuthorization(ctx context.Context, sessionID string) error {
	if s == nil {
		return errNotConfigured
	}
	return s.Guard.Reset(ctx, sessionID)
}
