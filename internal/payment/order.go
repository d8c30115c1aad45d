package payment

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

// DefaultCurrency is used when an order omits its currency.
const DefaultCurrency = "INR"

// minorUnitFactor converts major currency units to minor units.
const minorUnitFactor = 100

// OrderResult is the frontend-safe summary of a created order. It never holds
// the secret key; Key is the publishable key id.
type OrderResult struct {
	OrderID  string `json:"order_id"`
	Receipt  string `json:"receipt"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Key      string `json:"key"`
}

// OrderBuilder validates and normalises order-creation input.
type OrderBuilder struct {
	DefaultCurrency string
	Now             func() time.Time
	Suffix          func() int
}

// Build validates amount (major units) and returns a request carrying the
// amount in minor units. currency and receipt are optional.
func (b OrderBuilder) Build(amount int64, currency string, notes map[string]string, receipt string) (OrderRequest, error) {
	if amount <= 0 || amount > math.MaxInt64/minorUnitFactor {
		return OrderRequest{}, fmt.Errorf("%w [%d]", ErrInvalidAmount, amount)
	}
	cur := strings.ToUpper(strings.TrimSpace(currency))
	if cur == "" {
		cur = strings.ToUpper(strings.TrimSpace(b.DefaultCurrency))
	}
	if cur == "" {
		cur = DefaultCurrency
	}
	rcpt := strings.TrimSpace(receipt)
	if rcpt == "" {
		rcpt = b.receipt()
	}
	copied := make(map[string]string, len(notes))
	for k, v := range notes {
		copied[k] = v
	}
	return OrderRequest{
		Amount:      amount * minorUnitFactor,
		Currency:    cur,
		Receipt:     rcpt,
		Notes:       copied,
		AutoCapture: true,
	}, nil
}

// receipt combines the wall clock with a two-digit random suffix. Collisions
// within one second are possible and must be tolerated downstream.
func (b OrderBuilder) receipt() string {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	suffix := b.Suffix
	if suffix == nil {
		suffix = func() int { return rand.Intn(100) }
	}
	return fmt.Sprintf("%d%02d", now().Unix(), suffix()%100)
}
