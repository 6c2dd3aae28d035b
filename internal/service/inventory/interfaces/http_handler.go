// internal/service/inventory/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"stocksaga/internal/pkg/logger"
	"stocksaga/internal/service/inventory/application"
	"stocksaga/internal/service/inventory/domain"
)

const serviceName = "inventory-service"

// StockHandler 库存服务的 HTTP 处理器。
type StockHandler struct {
	service *application.Service
}

func NewStockHandler(service *application.Service) *StockHandler {
	return &StockHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *StockHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/reserve_stock", h.reserveStockHandler)
	mux.HandleFunc("/release_stock", h.releaseStockHandler)
	mux.HandleFunc("/stock", h.getStockHandler)
	mux.HandleFunc("/stock/init", h.initStockHandler)
}

type reserveStockRequest struct {
	OrderID int64 `json:"orderId"`
	Items   []struct {
		ProductID int64 `json:"productId"`
		Quantity  int   `json:"quantity"`
	} `json:"items"`
}

type reserveStockResponse struct {
	OrderID  int64  `json:"orderId"`
	Reserved bool   `json:"reserved"`
	Reason   string `json:"reason,omitempty"`
}

func (h *StockHandler) reserveStockHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer(serviceName).Start(ctx, "inventory.ReserveStock")
	defer span.End()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req reserveStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	span.SetAttributes(
		attribute.Int64("order.id", req.OrderID),
		attribute.Int("order.items", len(req.Items)),
	)

	lines := make([]domain.ReserveLine, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, domain.ReserveLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	result, err := h.service.Reserve(ctx, req.OrderID, lines)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, reserveStockResponse{
		OrderID:  req.OrderID,
		Reserved: result.Reserved,
		Reason:   result.Reason,
	})
}

type releaseStockRequest struct {
	OrderID int64 `json:"orderId"`
}

type releaseStockResponse struct {
	OrderID  int64 `json:"orderId"`
	Released bool  `json:"released"`
}

func (h *StockHandler) releaseStockHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer(serviceName).Start(ctx, "inventory.ReleaseStock")
	defer span.End()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req releaseStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.Int64("order.id", req.OrderID))

	released, err := h.service.Release(ctx, req.OrderID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, releaseStockResponse{OrderID: req.OrderID, Released: released})
}

type stockResponse struct {
	ProductID int64 `json:"productId"`
	Available int   `json:"available"`
	Reserved  int   `json:"reserved"`
}

func (h *StockHandler) getStockHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer(serviceName).Start(ctx, "inventory.GetStock")
	defer span.End()

	productID, err := strconv.ParseInt(r.URL.Query().Get("productId"), 10, 64)
	if err != nil {
		http.Error(w, "invalid productId", http.StatusBadRequest)
		return
	}
	item, err := h.service.GetStock(ctx, productID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, stockResponse{
		ProductID: item.ProductID,
		Available: item.Available,
		Reserved:  item.Reserved,
	})
}

type initStockRequest struct {
	ProductID int64 `json:"productId"`
}

// initStockHandler 幂等初始化台账行（默认库存），通常只在联调和
// 补数场景使用；线上依赖 product-created 广播完成初始化。
func (h *StockHandler) initStockHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer(serviceName).Start(ctx, "inventory.InitStock")
	defer span.End()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req initStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	item, err := h.service.EnsureStockItem(ctx, req.ProductID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, stockResponse{
		ProductID: item.ProductID,
		Available: item.Available,
		Reserved:  item.Reserved,
	})
}

// writeError 把领域错误映射为 HTTP 状态码：参数问题 400，查询缺失 404，
// 其余一律 500（业务失败不会走到这里，它们是正常响应）。
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrStockItemNotFound), errors.Is(err, domain.ErrReservationNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
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
