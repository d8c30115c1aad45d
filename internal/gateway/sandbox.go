package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-pgi/internal/payment"
	"github.com/noah-isme/backend-pgi/internal/secret"
	"github.com/noah-isme/backend-pgi/internal/signature"
)

var (
	// ErrOrderNotFound is returned for unknown order ids.
	ErrOrderNotFound = errors.New("gateway: order not found")
	// ErrPaymentNotFound is returned for unknown payment ids.
	ErrPaymentNotFound = errors.New("gateway: payment not found")
)

// Checkout is what the hosted checkout hands back to the browser after a payment.
type Checkout struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

// Sandbox is an in-process gateway that signs payments with the same scheme
// as the hosted one. It never performs network calls.
type Sandbox struct {
	Signer signature.Verifier

	mu       sync.Mutex
	orders   map[string]payment.GatewayOrder
	payments map[string]payment.GatewayPayment
}

// NewSandbox returns a Sandbox signing with key.
func NewSandbox(key *secret.Key) *Sandbox {
	return &Sandbox{
		Signer:   signature.Verifier{Key: key},
		orders:   map[string]payment.GatewayOrder{},
		payments: map[string]payment.GatewayPayment{},
	}
}

func newID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
}

func (s *Sandbox) CreateOrder(_ context.Context, req payment.OrderRequest) (payment.GatewayOrder, error) {
	if req.Amount <= 0 {
		return payment.GatewayOrder{}, fmt.Errorf("gateway: amount must be positive, got %d", req.Amount)
	}
	order := payment.GatewayOrder{
		ID:       newID("order_"),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = order
	return order, nil
}

func (s *Sandbox) VerifySignature(_ context.Context, orderID, paymentID, sig string) (bool, error) {
	return s.Signer.Verify(orderID, paymentID, sig)
}

func (s *Sandbox) FetchPayment(_ context.Context, paymentID string) (payment.GatewayPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[paymentID]
	if !ok {
		return payment.GatewayPayment{}, ErrPaymentNotFound
	}
	return p, nil
}

// Capture simulates a successful, auto-captured customer payment for orderID.
func (s *Sandbox) Capture(ctx context.Context, orderID string) (Checkout, error) {
	return s.pay(ctx, orderID, payment.StatusCaptured)
}

// Authorize simulates a payment whose funds were authorised but not captured.
func (s *Sandbox) Authorize(ctx context.Context, orderID string) (Checkout, error) {
	return s.pay(ctx, orderID, "authorized")
}

func (s *Sandbox) pay(_ context.Context, orderID, status string) (Checkout, error) {
	s.mu.Lock()
	order, ok := s.orders[orderID]
	if !ok {
		s.mu.Unlock()
		return Checkout{}, ErrOrderNotFound
	}
	p := payment.GatewayPayment{
		ID:       newID("pay_"),
		OrderID:  order.ID,
		Status:   status,
		Amount:   order.Amount,
		Currency: order.Currency,
	}
	s.payments[p.ID] = p
	if status == payment.StatusCaptured {
		order.Status = "paid"
		s.orders[order.ID] = order
	}
	s.mu.Unlock()

	sig, err := s.Signer.Sign(order.ID, p.ID)
	if err != nil {
		return Checkout{}, err
	}
	return Checkout{OrderID: order.ID, PaymentID: p.ID, Signature: sig}, nil
}
