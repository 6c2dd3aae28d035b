// internal/service/order/domain/errors.go
package domain

import "github.com/pkg/errors"

var (
	// ErrInvalidArgument 请求在结构上就不成立（空客户名、空明细、非正数量）。
	ErrInvalidArgument = errors.New("order: invalid argument")

	// ErrOrderNotFound 订单不存在。
	ErrOrderNotFound = errors.New("order: not found")

	// ErrProductNotFound 商品影子表里没有该商品。
	ErrProductNotFound = errors.New("order: product not found")

	// ErrInventoryUnavailable 库存服务暂时联系不上，调用方可重试。
	ErrInventoryUnavailable = errors.New("order: inventory service unavailable")
)
