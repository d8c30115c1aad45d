package checkout_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pgi/internal/checkout"
	"github.com/noah-isme/backend-pgi/internal/deferred"
	"github.com/noah-isme/backend-pgi/internal/payment"
)

func TestPromiseOrderResolves(t *testing.T) {
	f := newFixture(t, false)
	p := checkout.Promises{Service: f.svc}

	var got payment.OrderResult
	var status int
	finally := 0
	err := p.Order(context.Background(), checkout.OrderInput{Amount: 500}).
		Then(func(ev deferred.Event[payment.OrderResult], out payment.OrderResult) {
			got = out
			status = ev.Status
			require.True(t, ev.Credential)
		}, func(deferred.Event[payment.OrderResult], error) {
			t.Fatal("failure handler must not run")
		}).
		Finally(func(deferred.Event[payment.OrderResult]) { finally++ }).
		Settle()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, int64(50000), got.Amount)
	require.Equal(t, 1, finally)
}

func TestPromiseOrderRejectsInvalidAmount(t *testing.T) {
	f := newFixture(t, false)
	p := checkout.Promises{Service: f.svc}

	var failure error
	var status int
	err := p.Order(context.Background(), checkout.OrderInput{Amount: 0}).
		Catch(func(ev deferred.Event[payment.OrderResult], err error) {
			failure = err
			status = ev.Status
		}).
		Settle()
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, status)
	require.ErrorIs(t, failure, payment.ErrInvalidAmount)
	require.Contains(t, failure.Error(), checkout.MsgOrderFailed)
}

func TestPromiseConnectionFailed(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	p := checkout.Promises{Logger: &logger}

	err := p.Order(context.Background(), checkout.OrderInput{Amount: 1}).Settle()
	var unhandled *deferred.UnhandledRejectionError
	require.True(t, errors.As(err, &unhandled))
	require.Equal(t, http.StatusBadRequest, unhandled.Status)
	require.EqualError(t, unhandled.Err, checkout.MsgConnectionFailed)
	require.Contains(t, buf.String(), "deferred_unhandled_rejection")
}

func TestPromiseVerifyAndAuthorizationFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	p := checkout.Promises{Service: f.svc}

	order, err := f.svc.CreateOrder(ctx, checkout.OrderInput{Amount: 500})
	require.NoError(t, err)
	co, err := f.sandbox.Capture(ctx, order.OrderID)
	require.NoError(t, err)

	var failed error
	require.NoError(t, p.VerifySignature(ctx, &memTransport{store: f.store}, payment.VerificationRequest{
		OrderID: co.OrderID, PaymentID: co.PaymentID, Signature: co.Signature, ExpectedAmount: 40000,
	}).Catch(func(_ deferred.Event[payment.VerifiedPayment], err error) { failed = err }).Settle())
	require.ErrorIs(t, failed, payment.ErrVerification)
	require.Contains(t, failed.Error(), checkout.MsgVerificationFailed)

	transport := &memTransport{store: f.store}
	var verified payment.VerifiedPayment
	require.NoError(t, p.VerifySignature(ctx, transport, payment.VerificationRequest{
		OrderID: co.OrderID, PaymentID: co.PaymentID, Signature: co.Signature, ExpectedAmount: 50000,
	}).OnSuccess(func(_ deferred.Event[payment.VerifiedPayment], vp payment.VerifiedPayment) { verified = vp }).Settle())
	require.Equal(t, co.PaymentID, verified.PaymentID())

	status := 0
	require.NoError(t, p.IsAuthorized(ctx, transport.id).
		Then(func(ev deferred.Event[payment.VerifiedPayment], _ payment.VerifiedPayment) { status = ev.Status }, nil).
		Settle())
	require.Equal(t, http.StatusOK, status)

	reset := false
	require.NoError(t, p.ResetAuthorization(ctx, transport.id).
		OnSuccess(func(_ deferred.Event[bool], ok bool) { reset = ok }).
		Settle())
	require.True(t, reset)

	var denied error
	require.NoError(t, p.IsAuthorized(ctx, transport.id).
		Catch(func(ev deferred.Event[payment.VerifiedPayment], err error) {
			status = ev.Status
			denied = err
		}).
		Settle())
	require.Equal(t, http.StatusUnauthorized, status)
	require.ErrorIs(t, denied, checkout.ErrUnauthorized)
}

func TestBoolAdapter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	b := checkout.Bool{Service: f.svc}

	order, err := f.svc.CreateOrder(ctx, checkout.OrderInput{Amount: 3})
	require.NoError(t, err)
	co, err := f.sandbox.Capture(ctx, order.OrderID)
	require.NoError(t, err)

	_, ok := b.VerifySignature(ctx, &memTransport{store: f.store}, payment.VerificationRequest{
		OrderID: co.OrderID, PaymentID: co.PaymentID, Signature: co.Signature, ExpectedAmount: 299,
	})
	require.False(t, ok)

	transport := &memTransport{store: f.store}
	vp, ok := b.VerifySignature(ctx, transport, payment.VerificationRequest{
		OrderID: co.OrderID, PaymentID: co.PaymentID, Signature: co.Signature, ExpectedAmount: 300,
	})
	require.True(t, ok)
	require.Equal(t, int64(300), vp.Amount())

	_, ok = b.IsAuthorized(ctx, transport.id)
	require.True(t, ok)
	_, ok = b.IsAuthorized(ctx, "unknown")
	require.False(t, ok)

	_, ok = checkout.Bool{}.IsAuthorized(ctx, transport.id)
	require.False(t, ok)
}
