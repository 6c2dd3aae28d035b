// internal/service/order/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"stocksaga/internal/pkg/logger"
	"stocksaga/internal/service/order/application"
	"stocksaga/internal/service/order/domain"
)

const serviceName = "orders-service"

// OrderHandler 订单服务的 HTTP 处理器。
type OrderHandler struct {
	service *application.Service
}

func NewOrderHandler(service *application.Service) *OrderHandler {
	return &OrderHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *OrderHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/orders", h.ordersHandler)
	mux.HandleFunc("/orders/", h.orderHandler)
}

type createOrderRequest struct {
	CustomerName string `json:"customerName"`
	Items        []struct {
		ProductID int64 `json:"productId"`
		Quantity  int   `json:"quantity"`
	} `json:"items"`
}

type orderItemResponse struct {
	ProductID int64   `json:"productId"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

type orderResponse struct {
	OrderID      int64               `json:"orderId"`
	CustomerName string              `json:"customerName"`
	Items        []orderItemResponse `json:"items"`
	Total        float64             `json:"total"`
	Status       string              `json:"status"`
	CreatedAt    time.Time           `json:"createdAt"`
}

func toOrderResponse(o *domain.Order) orderResponse {
	resp := orderResponse{
		OrderID:      o.ID,
		CustomerName: o.CustomerName,
		Total:        o.Total,
		Status:       string(o.Status),
		CreatedAt:    o.CreatedAt,
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	return resp
}

// ordersHandler 处理 POST /orders 与 GET /orders。
func (h *OrderHandler) ordersHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	switch r.Method {
	case http.MethodPost:
		h.createOrder(ctx, w, r)
	case http.MethodGet:
		h.listOrders(ctx, w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *OrderHandler) createOrder(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(serviceName).Start(ctx, "orders.CreateOrder")
	defer span.End()

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	items := make([]application.CreateOrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, application.CreateOrderItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	span.SetAttributes(attribute.Int("order.items", len(items)))

	order, err := h.service.Create(ctx, req.CustomerName, items)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *OrderHandler) listOrders(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(serviceName).Start(ctx, "orders.ListOrders")
	defer span.End()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	orders, err := h.service.List(ctx, limit, offset)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

// orderHandler 处理 /orders/{id} 及其子资源 /reserve、/cancel。
func (h *OrderHandler) orderHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	rest := strings.TrimPrefix(r.URL.Path, "/orders/")
	parts := strings.SplitN(rest, "/", 2)
	orderID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || orderID <= 0 {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		h.getOrder(ctx, w, orderID)
	case action == "reserve" && r.Method == http.MethodPost:
		h.reserveOrder(ctx, w, orderID)
	case action == "cancel" && r.Method == http.MethodPost:
		h.cancelOrder(ctx, w, orderID)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (h *OrderHandler) getOrder(ctx context.Context, w http.ResponseWriter, orderID int64) {
	ctx, span := otel.Tracer(serviceName).Start(ctx, "orders.GetOrder")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", orderID))

	order, err := h.service.Get(ctx, orderID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) reserveOrder(ctx context.Context, w http.ResponseWriter, orderID int64) {
	ctx, span := otel.Tracer(serviceName).Start(ctx, "orders.ReserveOrder")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", orderID))

	order, err := h.service.Reserve(ctx, orderID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) cancelOrder(ctx context.Context, w http.ResponseWriter, orderID int64) {
	ctx, span := otel.Tracer(serviceName).Start(ctx, "orders.CancelOrder")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", orderID))

	order, err := h.service.Cancel(ctx, orderID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrProductNotFound):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrOrderNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrInventoryUnavailable):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		logger.Ctx(ctx).Error().Err(err).Msg("request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Logger.Error().Err(err).Msg("failed to encode response")
	}
}
