package payment_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/noah-isme/backend-pgi/internal/payment"
	"github.com/noah-isme/backend-pgi/internal/secret"
	"github.com/noah-isme/backend-pgi/internal/signature"
)

const testSecret = "test_key_secret"

func sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

type fakeGateway struct {
	signatureOK  bool
	signatureErr error
	payment      payment.GatewayPayment
	fetchErr     error
	order        payment.GatewayOrder
	createErr    error

	verifyCalls int
	fetchCalls  int
	createCalls int
	lastCreate  payment.OrderRequest
}

func (g *fakeGateway) CreateOrder(_ context.Context, req payment.OrderRequest) (payment.GatewayOrder, error) {
	g.createCalls++
	g.lastCreate = req
	return g.order, g.createErr
}

func (g *fakeGateway) VerifySignature(_ context.Context, _, _, _ string) (bool, error) {
	g.verifyCalls++
	return g.signatureOK, g.signatureErr
}

func (g *fakeGateway) FetchPayment(_ context.Context, _ string) (payment.GatewayPayment, error) {
	g.fetchCalls++
	return g.payment, g.fetchErr
}

func capturedGateway(orderID, paymentID string, amount int64) *fakeGateway {
	return &fakeGateway{
		signatureOK: true,
		payment: payment.GatewayPayment{
			ID:       paymentID,
			OrderID:  orderID,
			Status:   payment.StatusCaptured,
			Amount:   amount,
			Currency: "INR",
		},
	}
}

func newPipeline(gw payment.Gateway) *payment.Pipeline {
	return &payment.Pipeline{
		Gateway:   gw,
		Signature: signature.Verifier{Key: secret.New("RZP_KEY_SECRET", testSecret)},
	}
}
