package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/safar/checkout-lifecycle/internal/auth"
	"github.com/safar/checkout-lifecycle/internal/lifecycle"
	"github.com/safar/checkout-lifecycle/internal/models"
	"github.com/safar/checkout-lifecycle/internal/store"
)

// Service is the lifecycle surface the handlers expose. *lifecycle.Engine implements it.
type Service interface {
	CreateOrder(ctx context.Context, in lifecycle.CreateOrderInput) (*models.Order, error)
	SubmitPaymentEvidence(ctx context.Context, orderID int64, evidence lifecycle.PaymentEvidence) error
	VerifyPayment(ctx context.Context, capability string, orderID int64, approved bool) error
	UpdateFulfillmentStatus(ctx context.Context, capability string, orderID int64, status models.FulfillmentStatus) error
	GetOrder(ctx context.Context, orderID int64) (*models.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	ListOrders(ctx context.Context, capability string) ([]models.OrderSummary, error)
	ListCustomerOrders(ctx context.Context, customerID int64, cursor string, limit int) (*store.CursorPage, error)
	DeleteOrder(ctx context.Context, capability string, orderID int64) error
	GetPaymentSettings(ctx context.Context) (*models.PaymentSettings, error)
	UpdatePaymentSettings(ctx context.Context, capability string, in models.PaymentSettings) (*models.PaymentSettings, error)
}

type TokenIssuer interface {
	Issue(subject string) (string, error)
}

type Handler struct {
	svc    Service
	tokens TokenIssuer
	admin  auth.Credentials
}

func NewHandler(svc Service, tokens TokenIssuer, admin auth.Credentials) *Handler {
	return &Handler{svc: svc, tokens: tokens, admin: admin}
}

type createOrderResponse struct {
	ID                int64                    `json:"id"`
	OrderNumber       string                   `json:"order_number"`
	PaymentStatus     models.PaymentStatus     `json:"payment_status"`
	FulfillmentStatus models.FulfillmentStatus `json:"fulfillment_status"`
	TotalAmount       string                   `json:"total_amount"`
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var in lifecycle.CreateOrderInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := h.svc.CreateOrder(r.Context(), in)
	if err != nil {
		respondLifecycleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, createOrderResponse{
		ID:                order.ID,
		OrderNumber:       order.OrderNumber,
		PaymentStatus:     order.PaymentStatus,
		FulfillmentStatus: order.FulfillmentStatus,
		TotalAmount:       order.TotalAmount.StringFixed(2),
	})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	order, err := h.svc.GetOrder(r.Context(), id)
	if err != nil {
		respondLifecycleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *Handler) GetOrderByNumber(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.GetOrderByNumber(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		respondLifecycleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *Handler) SubmitPaymentEvidence(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	var evidence lifecycle.PaymentEvidence
	if err := decodeJSON(r, &evidence); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.svc.SubmitPaymentEvidence(r.Context(), id, evidence); err != nil {
		respondLifecycleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListCustomerOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid customer ID")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	page, err := h.svc.ListCustomerOrders(r.Context(), id, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		respondLifecycleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (h *Handler) GetPaymentSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.GetPaymentSettings(r.Context())
	if err != nil {
		respondLifecycleError(w, r, err)
		return
	}
	if settings == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.admin.Check(req.Username, req.Password); err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			slog.Error("admin credential check", "error", err)
		}
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.tokens.Issue(req.Username)
	if err != nil {
		slog.Error("issue admin capability", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.ListOrders(r.Context(), bearerToken(r))
	if err != nil {
		respondLifecycleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	var req struct {
		Approved *bool `json:"approved"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Approved == nil {
		respondError(w, http.StatusBadRequest, "approved must be true or false")
		return
	}

	if err := h.svc.VerifyPayment(r.Context(), bearerToken(r), id, *req.Approved); err != nil {
		respondLifecycleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UpdateFulfillmentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	var req struct {
		Status models.FulfillmentStatus `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.svc.UpdateFulfillmentStatus(r.Context(), bearerToken(r), id, req.Status); err != nil {
		respondLifecycleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	if err := h.svc.DeleteOrder(r.Context(), bearerToken(r), id); err != nil {
		respondLifecycleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UpdatePaymentSettings(w http.ResponseWriter, r *http.Request) {
	var in models.PaymentSettings
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	saved, err := h.svc.UpdatePaymentSettings(r.Context(), bearerToken(r), in)
	if err != nil {
		respondLifecycleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, saved)
}
