package obs_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pgi/internal/obs"
)

func TestRequestLoggerDigestsSessionCookie(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	sessionID := "6f1c2a4e-5b7d-4c39-9e8f-0a1b2c3d4e5f"

	var fromCtx bool
	handler := obs.RequestLogger{Logger: logger, SessionCookie: "pgi_session"}.Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			zerolog.Ctx(r.Context()).Info().Msg("inner")
			fromCtx = zerolog.Ctx(r.Context()).GetLevel() != zerolog.Disabled
			w.WriteHeader(http.StatusAccepted)
		}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/authorization", nil)
	req.AddCookie(&http.Cookie{Name: "pgi_session", Value: sessionID})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, fromCtx)
	require.NotContains(t, buf.String(), sessionID)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &entry))
	require.Equal(t, "http_request", entry["message"])
	require.EqualValues(t, http.StatusAccepted, entry["status"])
	require.Len(t, entry["session"], 12)
}
