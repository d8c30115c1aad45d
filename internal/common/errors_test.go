package common_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pgi/internal/common"
)

func TestWriteErrorUsesAppErrorFields(t *testing.T) {
	rr := httptest.NewRecorder()
	common.WriteError(rr, common.NewAppError("AMOUNT_MISMATCH", "Verification Failed", http.StatusBadRequest, errors.New("inner detail")))

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.JSONEq(t, `{"error":{"code":"AMOUNT_MISMATCH","message":"Verification Failed"}}`, rr.Body.String())
}

func TestWriteErrorHidesPlainErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	common.WriteError(rr, errors.New("redis: connection refused at 10.0.0.3"))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "10.0.0.3")
}
