package handler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/modahaus/storefront/internal/entities"
	"github.com/modahaus/storefront/internal/service"
	"github.com/modahaus/storefront/pkg/utils"
)

// IdempotencyHeader carries the client-chosen token identifying one logical
// checkout attempt across retries.
const IdempotencyHeader = "Idempotency-Key"

var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

const defaultAdminLimit = 50

type OrderService interface {
	AdmitOrder(ctx context.Context, req service.AdmissionRequest) (service.AdmissionResult, error)
	GetOrderByID(ctx context.Context, orderID string) (entities.Order, error)
	LatestOrders(ctx context.Context, count int) ([]entities.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status entities.OrderStatus) error
}

type HTTPHandler struct {
	logger   *slog.Logger
	validate *validator.Validate
	svc      OrderService
}

func NewHTTPHandler(logger *slog.Logger, svc OrderService) *HTTPHandler {
	return &HTTPHandler{
		logger:   logger.With(slog.String("handler", "http")),
		validate: validator.New(),
		svc:      svc,
	}
}

func (h *HTTPHandler) Init(r chi.Router) {
	r.Post("/api/checkout", h.Checkout)
	r.Get("/api/orders/{order_id}", h.GetOrderByID)
	r.Get("/api/admin/orders", h.LatestOrders)
	r.Patch("/api/admin/orders/{order_id}/status", h.UpdateOrderStatus)
}

// Checkout admits an order. The same Idempotency-Key with the same payload
// replays the original order instead of creating a second one.
func (h *HTTPHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := r.Header.Get(IdempotencyHeader)
	if !tokenPattern.MatchString(token) {
		utils.WriteError(w, "missing or malformed "+IdempotencyHeader+" header", http.StatusBadRequest)
		return
	}

	var req CheckoutRequest
	if err := utils.DecodeBody(r, &req); err != nil {
		utils.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		utils.WriteValidationError(w, err)
		return
	}

	hash, err := payloadHash(req)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to hash checkout payload", slog.Any("error", err))
		utils.WriteError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	res, err := h.svc.AdmitOrder(ctx, req.ToAdmission(token, hash))

	switch {
	case errors.Is(err, entities.ErrIdempotencyConflict):
		utils.WriteError(w, "idempotency token was already used with a different payload", http.StatusConflict)
		return
	case errors.Is(err, entities.ErrBackendUnavailable):
		utils.WriteError(w, "storage backend unavailable", http.StatusServiceUnavailable)
		return
	case errors.Is(err, entities.ErrNumberExhausted):
		// safe to resubmit with the same token
		utils.WriteError(w, "could not allocate an order number, please retry", http.StatusServiceUnavailable)
		return
	case err != nil:
		h.logger.ErrorContext(ctx, "failed to admit order",
			slog.Any("error", err), slog.String("token", token))
		utils.WriteError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	status := http.StatusCreated
	if res.Outcome == service.OutcomeExisting {
		status = http.StatusOK
	}
	utils.WriteJSON(w, OrderEntityToJSON(res.Order), status)
}

func (h *HTTPHandler) GetOrderByID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := chi.URLParam(r, "order_id")

	if err := h.validate.Var(orderID, "required"); err != nil {
		utils.WriteValidationError(w, err)
		return
	}

	order, err := h.svc.GetOrderByID(ctx, orderID)

	if errors.Is(err, entities.ErrOrderNotFound) {
		utils.WriteError(w, "order not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to get order",
			slog.Any("error", err), slog.String("order_id", orderID))
		utils.WriteError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, OrderEntityToJSON(order), http.StatusOK)
}

func (h *HTTPHandler) LatestOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := defaultAdminLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			utils.WriteError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	orders, err := h.svc.LatestOrders(ctx, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list orders", slog.Any("error", err))
		utils.WriteError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	result := make([]Order, 0, len(orders))
	for _, order := range orders {
		result = append(result, OrderEntityToJSON(order))
	}
	utils.WriteJSON(w, result, http.StatusOK)
}

func (h *HTTPHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := chi.URLParam(r, "order_id")

	var req StatusUpdate
	if err := utils.DecodeBody(r, &req); err != nil {
		utils.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		utils.WriteValidationError(w, err)
		return
	}

	err := h.svc.UpdateOrderStatus(ctx, orderID, entities.OrderStatus(req.Status))

	switch {
	case errors.Is(err, entities.ErrInvalidStatus):
		utils.WriteError(w, "unknown order status", http.StatusBadRequest)
	case errors.Is(err, entities.ErrOrderNotFound):
		utils.WriteError(w, "order not found", http.StatusNotFound)
	case errors.Is(err, entities.ErrBackendUnavailable):
		utils.WriteError(w, "storage backend unavailable", http.StatusServiceUnavailable)
	case err != nil:
		h.logger.ErrorContext(ctx, "failed to update order status",
			slog.Any("error", err), slog.String("order_id", orderID))
		utils.WriteError(w, "internal server error", http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// payloadHash digests the semantically relevant checkout fields for token
// conflict detection. Marshaling the decoded struct canonicalizes field
// order, so formatting differences in the raw body do not change the hash.
func payloadHash(req CheckoutRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
