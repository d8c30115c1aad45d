package payment

import "encoding/json"

// VerifiedPayment is produced by Pipeline.Verify after every check passed.
// Its fields are unexported so callers cannot fabricate one.
type VerifiedPayment struct {
	paymentID string
	orderID   string
	amount    int64
	currency  string
	captured  bool
	signature string
}

func (v VerifiedPayment) PaymentID() string { return v.paymentID }
func (v VerifiedPayment) OrderID() string { return v.orderID }

// Amount is in minor currency units.
func (v VerifiedPayment) Amount() int64 { return v.amount }
func (v VerifiedPayment) Currency() string { return v.currency }
func (v VerifiedPayment) Captured() bool { return v.captured }

// Signature is the client-supplied signature that passed both checks.
func (v VerifiedPayment) Signature() string { return v.signature }

// IsZero reports whether v is the zero value, i.e. not produced by a pipeline.
func (v VerifiedPayment) IsZero() bool { return v.paymentID == "" }

type verifiedJSON struct {
	PaymentID string `json:"payment_id"`
	OrderID   string `json:"order_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency,omitempty"`
	Captured  bool   `json:"captured"`
}

// MarshalJSON omits the signature.
func (v VerifiedPayment) MarshalJSON() ([]byte, error) {
	return json.Marshal(verifiedJSON{
		PaymentID: v.paymentID,
		OrderID:   v.orderID,
		Amount:    v.amount,
		Currency:  v.currency,
		Captured:  v.captured,
	})
}
