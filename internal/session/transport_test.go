package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCookieTransportIgnoresForeignValues(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "pgi_session", Value: "../../etc/passwd"})
	tr := NewCookieTransport(httptest.NewRecorder(), req, NewMemoryStore(), CookieConfig{})

	_, ok := tr.CurrentID(context.Background())
	require.False(t, ok)
	require.Empty(t, ID(req, ""))
}

func TestCookieTransportRegenerateMovesState(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	rr := httptest.NewRecorder()
	tr := NewCookieTransport(rr, httptest.NewRequest(http.MethodGet, "/", nil), store, CookieConfig{
		Name: "sid", Secure: true, TTL: time.Hour,
	})
	ids := []string{"11111111-1111-1111-1111-111111111111", "22222222-2222-2222-2222-222222222222"}
	tr.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first, err := tr.Allocate(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, first, Record{SessionID: first, PaymentID: "pay_1"}))

	second, err := tr.Regenerate(ctx)
	require.NoError(t, err)
	require.Equal(t, "22222222-2222-2222-2222-222222222222", second)

	rec, found, err := store.Load(ctx, second)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, first, rec.SessionID)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 2)
	last := cookies[len(cookies)-1]
	require.Equal(t, "sid", last.Name)
	require.Equal(t, second, last.Value)
	require.True(t, last.HttpOnly)
	require.True(t, last.Secure)
	require.Equal(t, 3600, last.MaxAge)
}
