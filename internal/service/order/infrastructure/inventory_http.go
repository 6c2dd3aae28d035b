// internal/service/order/infrastructure/inventory_http.go
package infrastructure

import (
	"context"
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"

	"stocksaga/internal/pkg/httpclient"
	"stocksaga/internal/pkg/logger"
	"stocksaga/internal/pkg/nacos"
	"stocksaga/internal/service/order/domain"
	"stocksaga/internal/service/order/domain/port"
)

const inventoryServiceName = "inventory-service"

// HTTPInventoryClient 通过 HTTP 调用库存服务的同步预占接口。
// 地址解析优先 Nacos 服务发现，未启用或查询失败时退回静态地址。
type HTTPInventoryClient struct {
	client  *httpclient.Client
	nacos   *nacos.Client // 可为 nil
	baseURL string
}

func NewHTTPInventoryClient(client *httpclient.Client, nacosClient *nacos.Client, baseURL string) *HTTPInventoryClient {
	return &HTTPInventoryClient{client: client, nacos: nacosClient, baseURL: baseURL}
}

func (c *HTTPInventoryClient) resolve(ctx context.Context) string {
	if c.nacos != nil {
		ip, port, err := c.nacos.DiscoverServiceInstance(inventoryServiceName)
		if err == nil {
			return fmt.Sprintf("http://%s:%d", ip, port)
		}
		logger.Ctx(ctx).Warn().Err(err).Msg("nacos discovery failed, using static inventory address")
	}
	return c.baseURL
}

type reserveStockRequest struct {
	OrderID int64              `json:"orderId"`
	Items   []reserveStockItem `json:"items"`
}

type reserveStockItem struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type reserveStockResponse struct {
	Reserved bool   `json:"reserved"`
	Reason   string `json:"reason"`
}

func (c *HTTPInventoryClient) ReserveStock(ctx context.Context, orderID int64, items []domain.OrderItem) (port.ReserveOutcome, error) {
	req := reserveStockRequest{OrderID: orderID}
	for _, it := range items {
		req.Items = append(req.Items, reserveStockItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	var resp reserveStockResponse
	url := c.resolve(ctx) + "/reserve_stock"
	if err := c.client.PostJSON(ctx, url, req, &resp); err != nil {
		return port.ReserveOutcome{}, mapTransportError(err)
	}
	return port.ReserveOutcome{Reserved: resp.Reserved, Reason: resp.Reason}, nil
}

type releaseStockRequest struct {
	OrderID int64 `json:"orderId"`
}

type releaseStockResponse struct {
	Released bool `json:"released"`
}

func (c *HTTPInventoryClient) ReleaseStock(ctx context.Context, orderID int64) (bool, error) {
	var resp releaseStockResponse
	url := c.resolve(ctx) + "/release_stock"
	if err := c.client.PostJSON(ctx, url, releaseStockRequest{OrderID: orderID}, &resp); err != nil {
		return false, mapTransportError(err)
	}
	return resp.Released, nil
}

// mapTransportError 4xx 说明请求本身不成立，5xx 与网络错误视为瞬时故障。
func mapTransportError(err error) error {
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 {
		return pkgerrors.Wrap(domain.ErrInvalidArgument, statusErr.Body)
	}
	return pkgerrors.Wrap(domain.ErrInventoryUnavailable, err.Error())
}
