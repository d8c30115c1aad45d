package payment

import (
	"context"
)

// StatusCaptured is the gateway status of a payment whose funds were collected.
const StatusCaptured = "captured"

// OrderRequest is the normalised order handed to the gateway.
type OrderRequest struct {
	// Amount is in minor currency units.
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
	// AutoCapture asks the gateway to capture on successful authorisation.
	AutoCapture bool
}

// GatewayOrder is the gateway's view of a created order.
type GatewayOrder struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
	Status   string
}

// GatewayPayment is the gateway's current record of a payment.
type GatewayPayment struct {
	ID       string
	OrderID  string
	Status   string
	Amount   int64
	Currency string
}

// Gateway abstracts the payment processor SDK. Errors returned by any method
// are infrastructure failures; a signature the gateway disagrees with is
// reported as ok == false with a nil error.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error)
	VerifySignature(ctx context.Context, orderID, paymentID, signature string) (ok bool, err error)
	FetchPayment(ctx context.Context, paymentID string) (GatewayPayment, error)
}
