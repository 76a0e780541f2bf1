package payment

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/antonminaichev/shop-settlement/internal/logger"
	"github.com/antonminaichev/shop-settlement/internal/middleware"
	"github.com/antonminaichev/shop-settlement/internal/provider"
	"github.com/antonminaichev/shop-settlement/internal/types/order"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) InitPayment(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	var req CheckoutRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	res, err := h.svc.Checkout(r.Context(), id.UserID, req, r.Header.Get("Idempotency-Key"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	res, err := h.svc.Verify(r.Context(), id.UserID, chi.URLParam(r, "reference"))
	if errors.Is(err, ErrAlreadyProcessed) && res != nil {
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "order": res.Order})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Webhook expects middleware.WebhookSignature to have authenticated the body.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	ev, err := provider.ParseEvent(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed event"})
		return
	}

	outcome, err := h.svc.HandleChargeEvent(r.Context(), ev)
	switch {
	case errors.Is(err, ErrOrderNotFound):
		logger.Log.Warn("webhook for unknown reference", "reference", ev.Data.Reference, "event", ev.Name)
		outcome = OutcomeIgnored
	case err != nil:
		logger.Log.Error("webhook processing failed", "reference", ev.Data.Reference, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"received": true, "outcome": outcome})
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	orders, err := h.svc.ListOrders(r.Context(), id.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	if orders == nil {
		orders = []order.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

type paymentStatusRequest struct {
	PaymentStatus order.PaymentStatus `json:"paymentStatus"`
}

func (h *Handler) AdminSetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	var req paymentStatusRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	o, err := h.svc.SetPaymentStatus(r.Context(), id.UserID, chi.URLParam(r, "reference"), req.PaymentStatus)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "payment status updated", "order": o})
}

func writeError(w http.ResponseWriter, err error) {
	var perr *provider.Error
	switch {
	case errors.Is(err, ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrProductNotFound), errors.Is(err, ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrAlreadyProcessed), errors.Is(err, ErrDuplicateRequest), errors.Is(err, ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.As(err, &perr):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "payment provider error"})
	default:
		logger.Log.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": http.StatusText(http.StatusInternalServerError)})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
