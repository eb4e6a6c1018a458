package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
	"github.com/alanyoungcy/binaryoptions/internal/server/middleware"
	"github.com/alanyoungcy/binaryoptions/internal/service"
)

// BinaryOrderService defines the methods that the binary order handler
// requires from the service layer.
type BinaryOrderService interface {
	Create(ctx context.Context, in service.CreateOrderInput) (domain.BinaryOrder, error)
	Cancel(ctx context.Context, userID, id string, percentage *decimal.Decimal) (domain.BinaryOrder, error)
	Get(ctx context.Context, userID, id string) (domain.BinaryOrder, error)
	List(ctx context.Context, userID string, filter domain.OrderFilter) ([]domain.BinaryOrder, error)
}

// BinaryOrderHandler serves /api/exchange/binary/order.
type BinaryOrderHandler struct {
	orders BinaryOrderService
	logger *slog.Logger
}

// NewBinaryOrderHandler creates a BinaryOrderHandler.
func NewBinaryOrderHandler(orders BinaryOrderService, logger *slog.Logger) *BinaryOrderHandler {
	return &BinaryOrderHandler{
		orders: orders,
		logger: logger.With(slog.String("handler", "binary_order")),
	}
}

type createOrderRequest struct {
	Currency string          `json:"currency"`
	Pair     string          `json:"pair"`
	Amount   decimal.Decimal `json:"amount"`
	Side     string          `json:"side"`
	Type     string          `json:"type"`
	ClosedAt time.Time       `json:"closedAt"`
	IsDemo   bool            `json:"isDemo"`
}

type cancelOrderRequest struct {
	Percentage *decimal.Decimal `json:"percentage"`
}

type orderResponse struct {
	Message string            `json:"message"`
	Order   service.OrderView `json:"order"`
}

type listOrdersResponse struct {
	Orders []service.OrderView `json:"orders"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

// CreateOrder places a binary order and debits the stake.
// POST /api/exchange/binary/order
func (h *BinaryOrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Type == "" {
		req.Type = string(domain.OrderTypeRiseFall)
	}

	order, err := h.orders.Create(r.Context(), service.CreateOrderInput{
		UserID:   userID,
		Currency: strings.ToUpper(req.Currency),
		Pair:     strings.ToUpper(req.Pair),
		Amount:   req.Amount,
		Side:     domain.OrderSide(strings.ToUpper(req.Side)),
		Type:     domain.OrderType(strings.ToUpper(req.Type)),
		ClosedAt: req.ClosedAt,
		IsDemo:   req.IsDemo,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "create order", err)
		return
	}
	writeJSON(w, http.StatusCreated, orderResponse{
		Message: "Binary order created successfully",
		Order:   service.NewOrderView(order),
	})
}

// CancelOrder closes a pending order early.
// DELETE /api/exchange/binary/order/{id}
func (h *BinaryOrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req cancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.orders.Cancel(r.Context(), userID, id, req.Percentage)
	if err != nil {
		writeServiceError(w, r, h.logger, "cancel order", err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{
		Message: "Binary order cancelled",
		Order:   service.NewOrderView(order),
	})
}

// GetOrder returns one of the caller's orders.
// GET /api/exchange/binary/order/{id}
func (h *BinaryOrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	order, err := h.orders.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get order", err)
		return
	}
	writeJSON(w, http.StatusOK, service.NewOrderView(order))
}

// ListOrders returns the caller's orders, optionally filtered by status.
// GET /api/exchange/binary/order?status=PENDING&limit=50&offset=0
func (h *BinaryOrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	opts := parseListOpts(r)
	filter := domain.OrderFilter{
		Status:   domain.OrderStatus(strings.ToUpper(r.URL.Query().Get("status"))),
		ListOpts: opts,
	}

	orders, err := h.orders.List(r.Context(), userID, filter)
	if err != nil {
		writeServiceError(w, r, h.logger, "list orders", err)
		return
	}
	views := make([]service.OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, service.NewOrderView(o))
	}
	writeJSON(w, http.StatusOK, listOrdersResponse{Orders: views, Limit: opts.Limit, Offset: opts.Offset})
}
