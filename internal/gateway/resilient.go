package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/noah-isme/backend-pgi/internal/obs"
	"github.com/noah-isme/backend-pgi/internal/payment"
	"github.com/noah-isme/backend-pgi/internal/resilience"
)

// Resilient guards a gateway with a circuit breaker. Only transport errors
// count as failures; a rejected signature is a successful call. Read calls are
// retried up to Retries times with jittered exponential backoff. Order
// creation is never retried.
type Resilient struct {
	Next      payment.Gateway
	Breaker   *resilience.Breaker
	Retries   int
	RetryBase time.Duration
}

func (r Resilient) CreateOrder(ctx context.Context, req payment.OrderRequest) (payment.GatewayOrder, error) {
	var out payment.GatewayOrder
	err := r.call(ctx, "create_order", false, func(ctx context.Context) error {
		var err error
		out, err = r.Next.CreateOrder(ctx, req)
		return err
	})
	return out, err
}

func (r Resilient) VerifySignature(ctx context.Context, orderID, paymentID, sig string) (bool, error) {
	var ok bool
	err := r.call(ctx, "verify_signature", true, func(ctx context.Context) error {
		var err error
		ok, err = r.Next.VerifySignature(ctx, orderID, paymentID, sig)
		return err
	})
	return ok, err
}

func (r Resilient) FetchPayment(ctx context.Context, paymentID string) (payment.GatewayPayment, error) {
	var out payment.GatewayPayment
	err := r.call(ctx, "fetch_payment", true, func(ctx context.Context) error {
		var err error
		out, err = r.Next.FetchPayment(ctx, paymentID)
		return err
	})
	return out, err
}

func (r Resilient) call(ctx context.Context, op string, retryable bool, fn func(context.Context) error) error {
	attempts := 1
	if retryable && r.Retries > 0 {
		attempts += r.Retries
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(resilience.Backoff(r.RetryBase, attempt-1, 0.2))
			select {
			case <-ctx.Done():
				timer.Stop()
				return &payment.InfrastructureError{Op: op, Err: ctx.Err()}
			case <-timer.C:
			}
		}
		err = r.once(ctx, op, fn)
		if err == nil || errors.Is(err, resilience.ErrOpenCircuit) {
			return err
		}
	}
	return err
}

func (r Resilient) once(ctx context.Context, op string, fn func(context.Context) error) error {
	if r.Breaker != nil && !r.Breaker.Allow(ctx) {
		observe(op, "open", 0)
		return &payment.InfrastructureError{Op: op, Err: resilience.ErrOpenCircuit}
	}
	start := time.Now()
	err := fn(ctx)
	if r.Breaker != nil {
		r.Breaker.Report(ctx, err == nil)
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	observe(op, result, time.Since(start))
	return err
}

func observe(op, result string, d time.Duration) {
	if obs.GatewayCallDuration == nil {
		return
	}
	obs.GatewayCallDuration.WithLabelValues(op, result).Observe(obs.DurationMillis(d))
}
