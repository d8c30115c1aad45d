package checkout_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pgi/internal/checkout"
	"github.com/noah-isme/backend-pgi/internal/gateway"
	"github.com/noah-isme/backend-pgi/internal/payment"
	"github.com/noah-isme/backend-pgi/internal/secret"
	"github.com/noah-isme/backend-pgi/internal/session"
	"github.com/noah-isme/backend-pgi/internal/signature"
)

type fixture struct {
	sandbox *gateway.Sandbox
	store   *session.MemoryStore
	svc     *checkout.Service
}

func newFixture(t *testing.T, sessions bool) fixture {
	t.Helper()
	key := secret.New("RZP_KEY_SECRET", "checkout_secret")
	sb := gateway.NewSandbox(key)
	pipeline := &payment.Pipeline{Gateway: sb, Signature: signature.Verifier{Key: key}}
	store := session.NewMemoryStore()
	return fixture{
		sandbox: sb,
		store:   store,
		svc: &checkout.Service{
			Gateway: sb,
			Builder: payment.OrderBuilder{
				Now:    func() time.Time { return time.Unix(1700000000, 0) },
				Suffix: func() int { return 7 },
			},
			Pipeline: pipeline,
			Guard:    &session.Guard{Enabled: sessions, Store: store, Verifier: pipeline},
			KeyID:    "rzp_test_key",
		},
	}
}

type countingGateway struct {
	payment.Gateway
	creates int
	err     error
}

func (g *countingGateway) CreateOrder(ctx context.Context, req payment.OrderRequest) (payment.GatewayOrder, error) {
	g.creates++
	if g.err != nil {
		return payment.GatewayOrder{}, g.err
	}
	return g.Gateway.CreateOrder(ctx, req)
}

func TestCreateOrderNormalisesAmountAndCurrency(t *testing.T) {
	f := newFixture(t, false)

	out, err := f.svc.CreateOrder(context.Background(), checkout.OrderInput{Amount: 500})
	require.NoError(t, err)
	require.NotEmpty(t, out.OrderID)
	require.Equal(t, int64(50000), out.Amount)
	require.Equal(t, "INR", out.Currency)
	require.Equal(t, "170000000007", out.Receipt)
	require.Equal(t, "rzp_test_key", out.Key)
}

func TestCreateOrderRejectsInvalidAmountWithoutGatewayCall(t *testing.T) {
	f := newFixture(t, false)
	gw := &countingGateway{Gateway: f.sandbox}
	f.svc.Gateway = gw

	for _, amount := range []int64{0, -5} {
		_, err := f.svc.CreateOrder(context.Background(), checkout.OrderInput{Amount: amount})
		require.ErrorIs(t, err, payment.ErrInvalidAmount)
	}
	require.Zero(t, gw.creates)
}

func TestCreateOrderWrapsGatewayFailure(t *testing.T) {
	f := newFixture(t, false)
	f.svc.Gateway = &countingGateway{Gateway: f.sandbox, err: errors.New("dial tcp: refused")}

	_, err := f.svc.CreateOrder(context.Background(), checkout.OrderInput{Amount: 10})
	require.Error(t, err)
	require.True(t, payment.IsInfrastructure(err))
}

// Order for 500, forged signature, short amount, then a successful
// authorization that is reset.
func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	order, err := f.svc.CreateOrder(ctx, checkout.OrderInput{Amount: 500})
	require.NoError(t, err)
	require.Equal(t, int64(50000), order.Amount)
	require.Equal(t, "INR", order.Currency)

	co, err := f.sandbox.Capture(ctx, order.OrderID)
	require.NoError(t, err)

	forged := []byte(co.Signature)
	if forged[0] == 'a' {
		forged[0] = 'b'
	} else {
		forged[0] = 'a'
	}
	// The sandbox confirms with the same key, so flip only the local check.
	f.svc.Pipeline.Signature = signature.Verifier{Key: secret.New("RZP_KEY_SECRET", "other_secret")}
	_, err = f.svc.VerifyPayment(ctx, payment.VerificationRequest{
		OrderID: co.OrderID, PaymentID: co.PaymentID, Signature: co.Signature, ExpectedAmount: 50000,
	})
	kind, ok := payment.FailureKind(err)
	require.True(t, ok)
	require.Equal(t, payment.SignatureMismatch, kind)

	_, err = f.svc.VerifyPayment(ctx, payment.VerificationRequest{
		OrderID: co.OrderID, PaymentID: co.PaymentID, Signature: string(forged), ExpectedAmount: 50000,
	})
	kind, ok = payment.FailureKind(err)
	require.True(t, ok)
	require.Equal(t, payment.SignatureRejectedByGateway, kind)

	f.svc.Pipeline.Signature = signature.Verifier{Key: secret.New("RZP_KEY_SECRET", "checkout_secret")}
	_, err = f.svc.VerifyPayment(ctx, payment.VerificationRequest{
		OrderID: co.OrderID, PaymentID: co.PaymentID, Signature: co.Signature, ExpectedAmount: 40000,
	})
	kind, ok = payment.FailureKind(err)
	require.True(t, ok)
	require.Equal(t, payment.AmountMismatch, kind)

	transport := &memTransport{store: f.store}
	vp, err := f.svc.VerifyAndAuthorize(ctx, transport, payment.VerificationRequest{
		OrderID: co.OrderID, PaymentID: co.PaymentID, Signature: co.Signature, ExpectedAmount: 50000,
	})
	require.NoError(t, err)
	require.Equal(t, int64(50000), vp.Amount())

	got, authorized, err := f.svc.IsAuthorized(ctx, transport.id)
	require.NoError(t, err)
	require.True(t, authorized)
	require.Equal(t, co.PaymentID, got.PaymentID())

	require.NoError(t, f.svc.ResetAuthorization(ctx, transport.id))
	_, authorized, err = f.svc.IsAuthorized(ctx, transport.id)
	require.NoError(t, err)
	require.False(t, authorized)
}

func TestVerifyAndAuthorizeSkipsSessionWhenDisabled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	order, err := f.svc.CreateOrder(ctx, checkout.OrderInput{Amount: 20})
	require.NoError(t, err)
	co, err := f.sandbox.Capture(ctx, order.OrderID)
	require.NoError(t, err)

	vp, err := f.svc.VerifyAndAuthorize(ctx, nil, payment.VerificationRequest{
		OrderID: co.OrderID, PaymentID: co.PaymentID, Signature: co.Signature, ExpectedAmount: 2000,
	})
	require.NoError(t, err)
	require.True(t, vp.Captured())

	_, _, err = f.svc.IsAuthorized(ctx, "anything")
	require.ErrorIs(t, err, session.ErrFeatureDisabled)
	require.ErrorIs(t, f.svc.ResetAuthorization(ctx, "anything"), session.ErrFeatureDisabled)
}

func TestNilServiceReportsNotConfigured(t *testing.T) {
	var svc *checkout.Service
	_, err := svc.CreateOrder(context.Background(), checkout.OrderInput{Amount: 1})
	require.Error(t, err)
	_, err = svc.VerifyPayment(context.Background(), payment.VerificationRequest{})
	require.Error(t, err)
}

// memTransport is an in-memory session transport.
type memTransport struct {
	store session.Store
	id    string
	n     int
}

func (m *memTransport) CurrentID(context.Context) (string, bool) { return m.id, m.id != "" }

func (m *memTransport) Allocate(context.Context) (string, error) {
	m.n++
	m.id = "sess-alloc-" + string(rune('a'+m.n))
	return m.id, nil
}

func (m *memTransport) Regenerate(ctx context.Context) (string, error) {
	m.n++
	next := "sess-regen-" + string(rune('a'+m.n))
	if m.id != "" {
		if err := m.store.Move(ctx, m.id, next); err != nil {
			return "", err
		}
	}
	m.id = next
	return m.id, nil
}
