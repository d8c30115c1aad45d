package payment_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pgi/internal/payment"
	"github.com/noah-isme/backend-pgi/internal/secret"
	"github.com/noah-isme/backend-pgi/internal/signature"
)

func request(orderID, paymentID, sig string, amount int64) payment.VerificationRequest {
	return payment.VerificationRequest{OrderID: orderID, PaymentID: paymentID, Signature: sig, ExpectedAmount: amount}
}

func TestVerifySuccess(t *testing.T) {
	gw := capturedGateway("order_1", "pay_1", 50000)
	vp, err := newPipeline(gw).Verify(context.Background(), request("order_1", "pay_1", sign("order_1", "pay_1"), 50000))
	require.NoError(t, err)
	require.Equal(t, "pay_1", vp.PaymentID())
	require.Equal(t, "order_1", vp.OrderID())
	require.Equal(t, int64(50000), vp.Amount())
	require.True(t, vp.Captured())
	require.Equal(t, 1, gw.verifyCalls)
	require.Equal(t, 1, gw.fetchCalls)

	raw, err := json.Marshal(vp)
	require.NoError(t, err)
	require.NotContains(t, string(raw), sign("order_1", "pay_1"))
}

func TestVerifyGatewayRejectionShortCircuits(t *testing.T) {
	gw := capturedGateway("order_1", "pay_1", 50000)
	gw.signatureOK = false

	_, err := newPipeline(gw).Verify(context.Background(), request("order_1", "pay_1", sign("order_1", "pay_1"), 50000))
	kind, ok := payment.FailureKind(err)
	require.True(t, ok)
	require.Equal(t, payment.SignatureRejectedByGateway, kind)
	require.ErrorIs(t, err, payment.ErrVerification)
	require.Equal(t, 1, gw.verifyCalls)
	require.Zero(t, gw.fetchCalls)
}

func TestVerifyNotCaptured(t *testing.T) {
	gw := capturedGateway("order_1", "pay_1", 50000)
	gw.payment.Status = "authorized"

	_, err := newPipeline(gw).Verify(context.Background(), request("order_1", "pay_1", sign("order_1", "pay_1"), 50000))
	kind, _ := payment.FailureKind(err)
	require.Equal(t, payment.NotCaptured, kind)
}

func TestVerifyOrderMismatch(t *testing.T) {
	gw := capturedGateway("order_other", "pay_1", 50000)

	_, err := newPipeline(gw).Verify(context.Background(), request("order_1", "pay_1", sign("order_1", "pay_1"), 50000))
	kind, _ := payment.FailureKind(err)
	require.Equal(t, payment.OrderMismatch, kind)
}

func TestVerifyAmountMismatchDespiteValidSignature(t *testing.T) {
	gw := capturedGateway("order_1", "pay_1", 50000)

	_, err := newPipeline(gw).Verify(context.Background(), request("order_1", "pay_1", sign("order_1", "pay_1"), 40000))
	kind, _ := payment.FailureKind(err)
	require.Equal(t, payment.AmountMismatch, kind)

	_, err = newPipeline(gw).Verify(context.Background(), request("order_1", "pay_1", sign("order_1", "pay_1"), 50001))
	kind, _ = payment.FailureKind(err)
	require.Equal(t, payment.AmountMismatch, kind)
}

func TestVerifyForgedSignatureCaughtLocally(t *testing.T) {
	// The gateway confirms the signature, but the independent HMAC disagrees.
	gw := capturedGateway("order_1", "pay_1", 50000)

	_, err := newPipeline(gw).Verify(context.Background(), request("order_1", "pay_1", "forged", 50000))
	kind, _ := payment.FailureKind(err)
	require.Equal(t, payment.SignatureMismatch, kind)
	require.NotContains(t, err.Error(), sign("order_1", "pay_1"))
	require.NotContains(t, err.Error(), testSecret)
}

func TestVerifyFailurePrecedence(t *testing.T) {
	// Not captured, wrong order and wrong amount at once: capture wins.
	gw := capturedGateway("order_other", "pay_1", 1)
	gw.payment.Status = "failed"

	_, err := newPipeline(gw).Verify(context.Background(), request("order_1", "pay_1", "forged", 50000))
	kind, _ := payment.FailureKind(err)
	require.Equal(t, payment.NotCaptured, kind)

	gw.payment.Status = payment.StatusCaptured
	_, err = newPipeline(gw).Verify(context.Background(), request("order_1", "pay_1", "forged", 50000))
	kind, _ = payment.FailureKind(err)
	require.Equal(t, payment.OrderMismatch, kind)
}

func TestVerifyInfrastructureFailuresPropagate(t *testing.T) {
	down := errors.New("dial tcp: connection refused")

	gw := capturedGateway("order_1", "pay_1", 50000)
	gw.signatureErr = down
	_, err := newPipeline(gw).Verify(context.Background(), request("order_1", "pay_1", sign("order_1", "pay_1"), 50000))
	require.True(t, payment.IsInfrastructure(err))
	require.ErrorIs(t, err, down)
	require.NotErrorIs(t, err, payment.ErrVerification)
	require.Zero(t, gw.fetchCalls)

	gw = capturedGateway("order_1", "pay_1", 50000)
	gw.fetchErr = down
	_, err = newPipeline(gw).Verify(context.Background(), request("order_1", "pay_1", sign("order_1", "pay_1"), 50000))
	require.True(t, payment.IsInfrastructure(err))

	gw = capturedGateway("order_1", "pay_1", 50000)
	gw.payment.Status = ""
	_, err = newPipeline(gw).Verify(context.Background(), request("order_1", "pay_1", sign("order_1", "pay_1"), 50000))
	require.True(t, payment.IsInfrastructure(err))
}

func TestVerifyWithoutSecretIsInfrastructureFailure(t *testing.T) {
	key := secret.New("RZP_KEY_SECRET", testSecret)
	key.Scrub()
	p := &payment.Pipeline{Gateway: capturedGateway("order_1", "pay_1", 50000), Signature: signature.Verifier{Key: key}}

	_, err := p.Verify(context.Background(), request("order_1", "pay_1", sign("order_1", "pay_1"), 50000))
	require.True(t, payment.IsInfrastructure(err))
	require.ErrorIs(t, err, secret.ErrUnavailable)
}

func TestVerifyRejectsIncompleteRequest(t *testing.T) {
	cases := []payment.VerificationRequest{
		request("", "pay_1", "sig", 100),
		request("order_1", " ", "sig", 100),
		request("order_1", "pay_1", "", 100),
		request("order_1", "pay_1", "sig", 0),
	}
	for _, c := range cases {
		gw := capturedGateway("order_1", "pay_1", 100)
		_, err := newPipeline(gw).Verify(context.Background(), c)
		require.ErrorIs(t, err, payment.ErrInvalidRequest)
		require.Zero(t, gw.verifyCalls)
	}
}
