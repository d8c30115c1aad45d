package checkout

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-pgi/internal/common"
	"github.com/noah-isme/backend-pgi/internal/gateway"
	"github.com/noah-isme/backend-pgi/internal/payment"
	"github.com/noah-isme/backend-pgi/internal/session"
)

// Handler exposes the checkout facade over HTTP.
type Handler struct {
	Svc      *Service
	Store    session.Store
	Cookie   session.CookieConfig
	Validate *validator.Validate
	// Sandbox, when set, enables the simulated customer payment endpoint.
	Sandbox *gateway.Sandbox
}

type orderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency" validate:"omitempty,iso4217"`
	Receipt  string            `json:"receipt" validate:"omitempty,max=40"`
	Notes    map[string]string `json:"notes" validate:"omitempty,max=15,dive,keys,max=256,endkeys,max=256"`
}

type verifyRequest struct {
	OrderID   string `json:"razorpay_order_id" validate:"required"`
	PaymentID string `json:"razorpay_payment_id" validate:"required"`
	Signature string `json:"razorpay_signature" validate:"required,hexadecimal"`
	// Amount is the expected amount in minor units.
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

type sandboxPayRequest struct {
	OrderID string `json:"order_id" validate:"required"`
	Status  string `json:"status" validate:"omitempty,oneof=captured authorized"`
}

// CreateOrder handles POST /orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	var payload orderRequest
	if !h.decode(w, r, &payload, func() { payload.Currency = strings.ToUpper(strings.TrimSpace(payload.Currency)) }) {
		return
	}
	out, err := h.Svc.CreateOrder(r.Context(), OrderInput{
		Amount:   payload.Amount,
		Currency: payload.Currency,
		Notes:    payload.Notes,
		Receipt:  payload.Receipt,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, out)
}

// BeginSession handles POST /session by issuing a fresh session id.
func (h *Handler) BeginSession(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil || h.Svc.Guard == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "session guard not configured", nil)
		return
	}
	if _, err := h.Svc.Guard.Begin(r.Context(), h.transport(w, r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// VerifyPayment handles POST /payments/verify.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	var payload verifyRequest
	if !h.decode(w, r, &payload, nil) {
		return
	}
	vp, err := h.Svc.VerifyAndAuthorize(r.Context(), h.transport(w, r), payment.VerificationRequest{
		OrderID:        payload.OrderID,
		PaymentID:      payload.PaymentID,
		Signature:      payload.Signature,
		ExpectedAmount: payload.Amount,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, vp)
}

// Authorization handles GET /payments/authorization.
func (h *Handler) Authorization(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	vp, ok, err := h.Svc.IsAuthorized(r.Context(), session.ID(r, h.Cookie.Name))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", MsgUnauthorized, nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": vp, "message": MsgAuthorized})
}

// ResetAuthorization handles DELETE /payments/authorization.
func (h *Handler) ResetAuthorization(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	if err := h.Svc.ResetAuthorization(r.Context(), session.ID(r, h.Cookie.Name)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SandboxPay handles POST /sandbox/payments and returns the signed checkout
// triple the hosted page would hand to the browser.
func (h *Handler) SandboxPay(w http.ResponseWriter, r *http.Request) {
	if h.Sandbox == nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "sandbox disabled", nil)
		return
	}
	var payload sandboxPayRequest
	if !h.decode(w, r, &payload, nil) {
		return
	}
	pay := h.Sandbox.Capture
	if payload.Status == "authorized" {
		pay = h.Sandbox.Authorize
	}
	out, err := pay(r.Context(), payload.OrderID)
	if err != nil {
		if errors.Is(err, gateway.ErrOrderNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	common.Data(w, http.StatusCreated, out)
}

func (h *Handler) transport(w http.ResponseWriter, r *http.Request) session.Transport {
	return session.NewCookieTransport(w, r, h.Store, h.Cookie)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any, normalise func()) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	if normalise != nil {
		normalise()
	}
	validate := h.Validate
	if validate == nil {
		validate = defaultValidator
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				details[fe.Field()] = fe.Tag()
			}
			common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid fields", details)
			return false
		}
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	return true
}

var defaultValidator = validator.New(validator.WithRequiredStructEnabled())

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if err == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
		return
	}
	appErr := toAppError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError && h.Svc != nil {
		h.Svc.Logger.Error().Err(err).Str("code", appErr.Code).Msg("checkout_request_failed")
	}
	common.WriteError(w, appErr)
}

// toAppError maps domain errors onto the API error envelope. Verification
// failures expose only their kind.
func toAppError(err error) *common.AppError {
	if kind, ok := payment.FailureKind(err); ok {
		return common.NewAppError(strings.ToUpper(string(kind)), MsgVerificationFailed, http.StatusBadRequest, err)
	}
	switch {
	case errors.Is(err, payment.ErrInvalidAmount):
		return common.NewAppError("INVALID_AMOUNT", "amount must be a positive whole number", http.StatusBadRequest, err)
	case errors.Is(err, payment.ErrInvalidRequest):
		return common.NewAppError("INVALID_REQUEST", "order id, payment id, signature and amount are required", http.StatusBadRequest, err)
	case errors.Is(err, session.ErrFeatureDisabled):
		return common.NewAppError("FEATURE_DISABLED", "session authorization is not enabled", http.StatusNotImplemented, err)
	case errors.Is(err, session.ErrNoSession), errors.Is(err, session.ErrUnverified):
		return common.NewAppError("UNAUTHORIZED", MsgUnauthorized, http.StatusUnauthorized, err)
	case payment.IsInfrastructure(err):
		return common.NewAppError("GATEWAY_UNAVAILABLE", "payment gateway unavailable", http.StatusBadGateway, err)
	case errors.Is(err, errNotConfigured):
		return common.NewAppError("INTERNAL", "checkout service not configured", http.StatusInternalServerError, err)
	}
	return common.NewAppError("INTERNAL", "internal error", http.StatusInternalServerError, err)
}
