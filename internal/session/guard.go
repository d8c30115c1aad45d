// Package session binds verified payments to server-issued session ids.
//
// A session moves through Unauthenticated -> Pending (Begin issued a fresh id)
// -> Authorized (Authorize stored a record) and back to Unauthenticated on
// Reset. Records are written only under ids minted by Begin, and any later id
// regeneration invalidates them because the stored SessionID no longer matches.
//
// Authorize and Reset for one session id are serialised through Locker when
// one is configured. Without a Locker, concurrent writers for the same id are
// undefined unless the Store itself is atomic.
package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-pgi/internal/obs"
	"github.com/noah-isme/backend-pgi/internal/payment"
)

var (
	// ErrFeatureDisabled is returned when authorization tracking is used without being enabled.
	ErrFeatureDisabled = errors.New("session: authorization tracking is not enabled")
	// ErrNoSession is returned when Authorize receives a ticket not issued by Begin.
	ErrNoSession = errors.New("session: no server-issued session")
	// ErrUnverified is returned when Authorize receives a zero VerifiedPayment.
	ErrUnverified = errors.New("session: payment not verified")
)

// Verifier re-runs payment verification for a stored record.
type Verifier interface {
	Verify(ctx context.Context, req payment.VerificationRequest) (payment.VerifiedPayment, error)
}

// Locker serialises work for a key.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Ticket is a session id freshly minted by Begin.
type Ticket struct {
	id string
}

// ID returns the session identifier.
func (t Ticket) ID() string { return t.id }

// Guard implements session-bound payment authorization.
type Guard struct {
	Enabled  bool
	Store    Store
	Verifier Verifier
	Locker   Locker
	LockTTL  time.Duration
	Logger   zerolog.Logger
}

// Begin allocates a session id when the client has none, then regenerates it
// unconditionally so a client-chosen id is never trusted.
func (g *Guard) Begin(ctx context.Context, t Transport) (Ticket, error) {
	if t == nil {
		return Ticket{}, errors.New("session: transport not configured")
	}
	if _, ok := t.CurrentID(ctx); !ok {
		if _, err := t.Allocate(ctx); err != nil {
			return Ticket{}, err
		}
	}
	id, err := t.Regenerate(ctx)
	if err != nil {
		return Ticket{}, err
	}
	if strings.TrimSpace(id) == "" {
		return Ticket{}, ErrNoSession
	}
	return Ticket{id: id}, nil
}

// Authorize stores vp under the ticket's session id.
func (g *Guard) Authorize(ctx context.Context, ticket Ticket, vp payment.VerifiedPayment) (err error) {
	defer func() { g.record("authorize", err) }()
	if err := g.ready(); err != nil {
		return err
	}
	if ticket.id == "" {
		return ErrNoSession
	}
	if vp.IsZero() {
		return ErrUnverified
	}
	rec := Record{
		SessionID: ticket.id,
		PaymentID: vp.PaymentID(),
		OrderID:   vp.OrderID(),
		Signature: vp.Signature(),
		Amount:    vp.Amount(),
	}
	return g.withLock(ctx, ticket.id, func(ctx context.Context) error {
		return g.Store.Save(ctx, ticket.id, rec)
	})
}

// IsAuthorized re-validates the record stored for currentID. Mismatches of any
// kind yield false with a nil error; the error is reserved for a disabled
// guard and for infrastructure failures.
func (g *Guard) IsAuthorized(ctx context.Context, currentID string) (payment.VerifiedPayment, bool, error) {
	if err := g.ready(); err != nil {
		g.record("check", err)
		return payment.VerifiedPayment{}, false, err
	}
	ctx, span := otel.Tracer("session.Guard").Start(ctx, "Guard.IsAuthorized")
	defer span.End()

	vp, ok, err := g.check(ctx, strings.TrimSpace(currentID))
	span.SetAttributes(attribute.Bool("session.authorized", ok))
	switch {
	case err != nil:
		span.RecordError(err)
		g.record("check", err)
	case ok:
		g.record("check", nil)
	default:
		if obs.SessionAuthorizationTotal != nil {
			obs.SessionAuthorizationTotal.WithLabelValues("check", "denied").Inc()
		}
	}
	return vp, ok, err
}

func (g *Guard) check(ctx context.Context, id string) (payment.VerifiedPayment, bool, error) {
	if id == "" {
		return payment.VerifiedPayment{}, false, nil
	}
	rec, found, err := g.Store.Load(ctx, id)
	if err != nil {
		return payment.VerifiedPayment{}, false, err
	}
	if !found || rec.PaymentID == "" || rec.OrderID == "" || rec.Signature == "" || rec.Amount <= 0 {
		return payment.VerifiedPayment{}, false, nil
	}
	if subtle.ConstantTimeCompare([]byte(rec.SessionID), []byte(id)) != 1 {
		g.Logger.Warn().Str("order_id", rec.OrderID).Msg("session_id_mismatch")
		return payment.VerifiedPayment{}, false, nil
	}
	vp, err := g.Verifier.Verify(ctx, payment.VerificationRequest{
		OrderID:        rec.OrderID,
		PaymentID:      rec.PaymentID,
		Signature:      rec.Signature,
		ExpectedAmount: rec.Amount,
	})
	if err != nil {
		if payment.IsInfrastructure(err) {
			return payment.VerifiedPayment{}, false, err
		}
		return payment.VerifiedPayment{}, false, nil
	}
	if vp.Amount() != rec.Amount {
		return payment.VerifiedPayment{}, false, nil
	}
	return vp, true, nil
}

// Reset clears the record stored for id.
func (g *Guard) Reset(ctx context.Context, id string) (err error) {
	defer func() { g.record("reset", err) }()
	if err := g.ready(); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	return g.withLock(ctx, id, func(ctx context.Context) error {
		return g.Store.Delete(ctx, id)
	})
}

func (g *Guard) ready() error {
	if g == nil || !g.Enabled {
		return ErrFeatureDisabled
	}
	if g.Store == nil || g.Verifier == nil {
		return errors.New("session: guard not configured")
	}
	return nil
}

func (g *Guard) withLock(ctx context.Context, id string, fn func(context.Context) error) error {
	if g.Locker == nil {
		return fn(ctx)
	}
	ttl := g.LockTTL
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return g.Locker.WithLock(ctx, "pgi:lock:session:"+id, ttl, fn)
}

func (g *Guard) record(op string, err error) {
	if obs.SessionAuthorizationTotal == nil {
		return
	}
	result := "ok"
	switch {
	case errors.Is(err, ErrFeatureDisabled):
		result = "disabled"
	case err != nil:
		result = "error"
	}
	obs.SessionAuthorizationTotal.WithLabelValues(op, result).Inc()
}
