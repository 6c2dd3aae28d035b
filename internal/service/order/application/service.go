// internal/service/order/application/service.go
//
// 订单 Saga 的应用服务。订单创建后通过 order-created 事件触发库存
// 异步预占，也可以通过同步接口当场预占；库存侧的回执
// （stock-reserved / stock-reservation-failed）把订单推进到终态。
package application

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"stocksaga/internal/pkg/logger"
	"stocksaga/internal/pkg/mq"
	"stocksaga/internal/service/order/domain"
	"stocksaga/internal/service/order/domain/port"
)

var (
	ordersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Number of orders accepted.",
	})

	orderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Order state transitions by target state.",
	}, []string{"to"})
)

// Service 订单应用服务。
type Service struct {
	uow       domain.UnitOfWork
	orders    domain.OrderRepository // 事务外的只读访问
	publisher port.OrderEventsPublisher
	inventory port.InventoryClient
}

func NewService(
	uow domain.UnitOfWork,
	orders domain.OrderRepository,
	publisher port.OrderEventsPublisher,
	inventory port.InventoryClient,
) *Service {
	return &Service{
		uow:       uow,
		orders:    orders,
		publisher: publisher,
		inventory: inventory,
	}
}

// CreateOrderItem 下单明细，价格从商品影子表取。
type CreateOrderItem struct {
	ProductID int64
	Quantity  int
}

// Create 创建订单并发布 OrderCreated，库存侧据此异步预占。
func (s *Service) Create(ctx context.Context, customerName string, items []CreateOrderItem) (*domain.Order, error) {
	var (
		order   *domain.Order
		pending []func(context.Context)
	)
	err := s.uow.InTx(ctx, func(r domain.Repos) error {
		orderItems := make([]domain.OrderItem, 0, len(items))
		for _, it := range items {
			product, err := r.Catalog.FindByProductID(ctx, it.ProductID)
			if err != nil {
				return err
			}
			orderItems = append(orderItems, domain.OrderItem{
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				UnitPrice: product.Price,
			})
		}
		var err error
		order, err = domain.NewOrder(customerName, orderItems)
		if err != nil {
			return err
		}
		if err := r.Orders.Create(ctx, order); err != nil {
			return err
		}

		evt := domain.OrderCreatedEvent{OrderID: order.ID}
		for _, it := range order.Items {
			evt.Items = append(evt.Items, domain.OrderItemEvent{ProductID: it.ProductID, Quantity: it.Quantity})
		}
		pending = append(pending, func(ctx context.Context) {
			if err := s.publisher.PublishOrderCreated(ctx, evt); err != nil {
				logger.Ctx(ctx).Error().Err(err).Int64("order_id", evt.OrderID).Msg("failed to publish OrderCreated event")
			}
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.flush(ctx, pending)

	ordersCreatedTotal.Inc()
	logger.Ctx(ctx).Info().Int64("order_id", order.ID).Float64("total", order.Total).Msg("order created")
	return order, nil
}

// Get 查询单个订单。
func (s *Service) Get(ctx context.Context, orderID int64) (*domain.Order, error) {
	if orderID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return s.orders.FindByID(ctx, orderID)
}

// List 按创建时间倒序分页。
func (s *Service) List(ctx context.Context, limit, offset int) ([]*domain.Order, error) {
	return s.orders.List(ctx, limit, offset)
}

// Reserve 同步预占路径：当场调库存服务并把订单推进到终态。
// 预占成功订单进入 RESERVED；业务失败订单取消；库存服务联系不上时
// 返回 ErrInventoryUnavailable，订单停留在 CREATED，调用方可重试。
func (s *Service) Reserve(ctx context.Context, orderID int64) (*domain.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	// 终态订单直接返回当前状态，重复调用无二次效果。
	if order.IsTerminal() {
		return order, nil
	}

	outcome, err := s.inventory.ReserveStock(ctx, orderID, order.Items)
	if err != nil {
		return nil, err
	}
	if outcome.Reserved {
		if err := s.transition(ctx, orderID, (*domain.Order).MarkReserved); err != nil {
			return nil, err
		}
	} else {
		logger.Ctx(ctx).Warn().Int64("order_id", orderID).Str("reason", outcome.Reason).Msg("stock reservation rejected, cancelling order")
		if err := s.cancelAndNotify(ctx, orderID); err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, orderID)
}

// Cancel 取消订单并发布 OrderCancelled，库存侧据此释放预占。
// 已处于终态的订单不受影响。
func (s *Service) Cancel(ctx context.Context, orderID int64) (*domain.Order, error) {
	if orderID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if err := s.cancelAndNotify(ctx, orderID); err != nil {
		return nil, err
	}
	return s.Get(ctx, orderID)
}

// HandleStockReserved 消费 stock-reserved：订单进入 RESERVED。
func (s *Service) HandleStockReserved(ctx context.Context, ref mq.MessageRef, evt domain.StockReservedEvent) error {
	return s.handleInboxed(ctx, ref, func(r domain.Repos) error {
		return s.transitionInTx(ctx, r, evt.OrderID, (*domain.Order).MarkReserved, nil)
	})
}

// HandleStockReservationFailed 消费 stock-reservation-failed：取消订单。
// 只有本次投递真正完成了取消迁移才发布 OrderCancelled，已取消的
// 订单不再补发。
func (s *Service) HandleStockReservationFailed(ctx context.Context, ref mq.MessageRef, evt domain.StockReservationFailedEvent) error {
	var pending []func(context.Context)
	err := s.handleInboxed(ctx, ref, func(r domain.Repos) error {
		logger.Ctx(ctx).Warn().Int64("order_id", evt.OrderID).Str("reason", evt.Reason).Msg("stock reservation failed, cancelling order")
		return s.transitionInTx(ctx, r, evt.OrderID, (*domain.Order).MarkCancelled, &pending)
	})
	if err != nil {
		return err
	}
	s.flush(ctx, pending)
	return nil
}

// HandleStockReleased 消费 stock-released：订单侧只记账，不改状态。
func (s *Service) HandleStockReleased(ctx context.Context, ref mq.MessageRef, evt domain.StockReleasedEvent) error {
	return s.handleInboxed(ctx, ref, func(r domain.Repos) error {
		logger.Ctx(ctx).Info().Int64("order_id", evt.OrderID).Msg("stock reservation released")
		return nil
	})
}

// HandleProductCreated 消费 product-created：维护本地商品影子表。
func (s *Service) HandleProductCreated(ctx context.Context, ref mq.MessageRef, evt domain.ProductCreatedEvent) error {
	return s.handleInboxed(ctx, ref, func(r domain.Repos) error {
		return r.Catalog.Upsert(ctx, &domain.Product{
			ProductID: evt.ProductID,
			Name:      evt.Name,
			Price:     evt.Price,
		})
	})
}

// handleInboxed 收件箱判定与 fn 在同一事务，重复投递静默吸收。
func (s *Service) handleInboxed(ctx context.Context, ref mq.MessageRef, fn func(r domain.Repos) error) error {
	return s.uow.InTx(ctx, func(r domain.Repos) error {
		fresh, err := r.Inbox.TryConsume(ctx, ref)
		if err != nil {
			return err
		}
		if !fresh {
			logger.Ctx(ctx).Debug().Str("topic", ref.Topic).Int64("offset", ref.Offset).Msg("duplicate delivery absorbed")
			return nil
		}
		return fn(r)
	})
}

// transitionInTx 读取订单、应用迁移并在发生迁移时落库。迟到的回执
// 落在终态订单上是正常情况，静默跳过；pending 非 nil 且完成取消迁移
// 时追加 OrderCancelled 发布。
func (s *Service) transitionInTx(ctx context.Context, r domain.Repos, orderID int64, apply func(*domain.Order) bool, pending *[]func(context.Context)) error {
	order, err := r.Orders.FindByID(ctx, orderID)
	if err == domain.ErrOrderNotFound {
		// 回执先于订单落库的乱序场景理论上不存在（订单先创建才有
		// 事件），只能是脏数据，记日志后吸收。
		logger.Ctx(ctx).Error().Int64("order_id", orderID).Msg("received stock outcome for unknown order")
		return nil
	}
	if err != nil {
		return err
	}
	if !apply(order) {
		logger.Ctx(ctx).Info().Int64("order_id", orderID).Str("status", string(order.Status)).Msg("order already in terminal state, ignoring outcome")
		return nil
	}
	if err := r.Orders.UpdateStatus(ctx, orderID, order.Status); err != nil {
		return err
	}
	orderTransitionsTotal.WithLabelValues(string(order.Status)).Inc()

	if pending != nil && order.Status == domain.OrderCancelled {
		evt := domain.OrderCancelledEvent{OrderID: orderID}
		*pending = append(*pending, func(ctx context.Context) {
			if err := s.publisher.PublishOrderCancelled(ctx, evt); err != nil {
				logger.Ctx(ctx).Error().Err(err).Int64("order_id", orderID).Msg("failed to publish OrderCancelled event")
			}
		})
	}
	return nil
}

func (s *Service) transition(ctx context.Context, orderID int64, apply func(*domain.Order) bool) error {
	return s.uow.InTx(ctx, func(r domain.Repos) error {
		return s.transitionInTx(ctx, r, orderID, apply, nil)
	})
}

func (s *Service) cancelAndNotify(ctx context.Context, orderID int64) error {
	var pending []func(context.Context)
	err := s.uow.InTx(ctx, func(r domain.Repos) error {
		return s.transitionInTx(ctx, r, orderID, (*domain.Order).MarkCancelled, &pending)
	})
	if err != nil {
		return err
	}
	s.flush(ctx, pending)
	return nil
}

func (s *Service) flush(ctx context.Context, pending []func(context.Context)) {
	for _, fn := range pending {
		fn(ctx)
	}
}
