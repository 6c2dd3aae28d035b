// internal/service/inventory/application/service.go
//
// 预占编排器：对外提供 Reserve / Release 两个核心能力，以及各消息
// 通道的幂等处理器。
//
// 事务边界约定：所有业务变更（台账扣减、预占记录、收件箱判定）在
// 单个数据库事务里完成；事件发布收集为闭包，提交成功后才执行。
// 发布失败只记日志，不回滚业务效果。
package application

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"stocksaga/internal/pkg/logger"
	"stocksaga/internal/pkg/mq"
	"stocksaga/internal/service/inventory/domain"
	"stocksaga/internal/service/inventory/domain/port"
)

var (
	reservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_reservations_total",
		Help: "Stock reservation attempts by outcome.",
	}, []string{"outcome"})

	releasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_releases_total",
		Help: "Stock release attempts by outcome.",
	}, []string{"outcome"})

	lowStockEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "low_stock_events_total",
		Help: "Number of low-stock threshold crossings detected.",
	})
)

// ReserveResult 预占的业务结果。业务失败（库存不足、商品不存在）
// 不是错误：Reserved=false 且 Reason 给出失败原因。
type ReserveResult struct {
	Reserved bool
	Reason   string
}

// Service 库存预占编排器。
type Service struct {
	uow       domain.UnitOfWork
	ledger    domain.StockLedger // 事务外的只读台账
	publisher port.StockEventsPublisher
	cache     port.StockCache

	defaultStock      int
	lowStockThreshold int
}

func NewService(
	uow domain.UnitOfWork,
	ledger domain.StockLedger,
	publisher port.StockEventsPublisher,
	cache port.StockCache,
	defaultStock int,
	lowStockThreshold int,
) *Service {
	return &Service{
		uow:               uow,
		ledger:            ledger,
		publisher:         publisher,
		cache:             cache,
		defaultStock:      defaultStock,
		lowStockThreshold: lowStockThreshold,
	}
}

// Reserve 为订单预占库存：全部行一起成功，或者全部不生效。
// 同一订单的重复调用按首次结果返回，不产生二次效果。
func (s *Service) Reserve(ctx context.Context, orderID int64, lines []domain.ReserveLine) (ReserveResult, error) {
	var (
		result  ReserveResult
		pending []func(context.Context)
	)
	attempt := func() error {
		pending = nil
		return s.uow.InTx(ctx, func(r domain.Repos) error {
			var err error
			result, err = s.reserveInTx(ctx, r, orderID, lines, &pending)
			return err
		})
	}
	err := attempt()
	if err == domain.ErrReservationExists {
		// 输掉了同一订单的并发竞争：本次事务已回滚，重读一次，
		// 幂等检查会返回赢家的首次结果。
		err = attempt()
	}
	if err != nil {
		return ReserveResult{}, err
	}
	s.flush(ctx, pending)
	return result, nil
}

// reserveInTx 在给定事务中执行预占流程，把待发布事件追加到 pending。
// 调用方负责收件箱判定（若经由消息通道触达）。
func (s *Service) reserveInTx(ctx context.Context, r domain.Repos, orderID int64, lines []domain.ReserveLine, pending *[]func(context.Context)) (ReserveResult, error) {
	if err := domain.ValidateReserveLines(orderID, lines); err != nil {
		return ReserveResult{}, err
	}

	// 幂等：同一订单已有预占记录则直接返回首次结果。
	existing, err := r.Reservations.FindByOrderID(ctx, orderID)
	if err == nil {
		reservationsTotal.WithLabelValues("duplicate").Inc()
		logger.Ctx(ctx).Info().Int64("order_id", orderID).
			Str("status", string(existing.Status)).
			Msg("duplicate reservation request, returning first outcome")
		return ReserveResult{Reserved: existing.Status == domain.ReservationReserved}, nil
	}
	if err != domain.ErrReservationNotFound {
		return ReserveResult{}, err
	}

	// 同一商品的多行合并为一次扣减，保持首次出现的顺序。
	aggregated := aggregateLines(lines)

	// 先校验所有行，再扣减：校验失败时事务里没有任何台账变更，
	// 收件箱记录（若有）照常提交，失败事件恰好发布一次。
	for _, line := range aggregated {
		item, err := r.Ledger.FindByProductID(ctx, line.ProductID)
		if err == domain.ErrStockItemNotFound {
			return s.reserveFailed(ctx, orderID, domain.ReasonProductNotFound, pending), nil
		}
		if err != nil {
			return ReserveResult{}, err
		}
		if item.Available < line.Quantity {
			return s.reserveFailed(ctx, orderID, domain.ReasonInsufficientStock, pending), nil
		}
	}

	// 扣减阶段仍可能因并发提交而条件不成立；此时返回错误回滚
	// 整个事务，消息重投后会在校验阶段落到干净的失败路径。
	for _, line := range aggregated {
		if err := r.Ledger.Claim(ctx, line.ProductID, line.Quantity); err != nil {
			return ReserveResult{}, err
		}
	}

	reservation := domain.NewStockReservation(orderID, lines)
	if err := r.Reservations.Create(ctx, reservation); err != nil {
		return ReserveResult{}, err
	}

	now := time.Now().UTC()
	items := make([]domain.OrderItemEvent, 0, len(lines))
	for _, line := range lines {
		items = append(items, domain.OrderItemEvent{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	reserved := domain.StockReservedEvent{OrderID: orderID, OccurredAt: now, Items: items}
	*pending = append(*pending, func(ctx context.Context) {
		if err := s.publisher.PublishStockReserved(ctx, reserved); err != nil {
			logger.Ctx(ctx).Error().Err(err).Int64("order_id", orderID).Msg("failed to publish StockReserved event")
		}
	})

	// 低水位告警：仅在本次扣减令 available 自上而下穿越阈值时发出，
	// 每个商品至多一次。必须回读扣减后的台账（事务可见自己的更新），
	// 再按 before = after + 本次数量 反推：校验阶段读到的快照可能
	// 已被并发提交压低，用它推算会算错穿越点。
	for _, line := range aggregated {
		item, err := r.Ledger.FindByProductID(ctx, line.ProductID)
		if err != nil {
			return ReserveResult{}, err
		}
		availableAfter := item.Available
		availableBefore := availableAfter + line.Quantity
		if availableBefore > s.lowStockThreshold && availableAfter <= s.lowStockThreshold {
			evt := domain.LowStockEvent{
				ProductID:  line.ProductID,
				Available:  availableAfter,
				Threshold:  s.lowStockThreshold,
				OccurredAt: now,
			}
			*pending = append(*pending, func(ctx context.Context) {
				lowStockEventsTotal.Inc()
				logger.Ctx(ctx).Warn().Int64("product_id", evt.ProductID).
					Int("available", evt.Available).Int("threshold", evt.Threshold).
					Msg("stock dropped below threshold")
				if err := s.publisher.PublishLowStock(ctx, evt); err != nil {
					logger.Ctx(ctx).Error().Err(err).Int64("product_id", evt.ProductID).Msg("failed to publish LowStock event")
				}
			})
		}
	}

	*pending = append(*pending, s.invalidation(aggregated))

	reservationsTotal.WithLabelValues("reserved").Inc()
	logger.Ctx(ctx).Info().Int64("order_id", orderID).Int("lines", len(lines)).Msg("stock reserved")
	return ReserveResult{Reserved: true}, nil
}

func (s *Service) reserveFailed(ctx context.Context, orderID int64, reason string, pending *[]func(context.Context)) ReserveResult {
	switch reason {
	case domain.ReasonInsufficientStock:
		reservationsTotal.WithLabelValues("insufficient_stock").Inc()
	case domain.ReasonProductNotFound:
		reservationsTotal.WithLabelValues("product_not_found").Inc()
	}
	logger.Ctx(ctx).Warn().Int64("order_id", orderID).Str("reason", reason).Msg("stock reservation failed")

	evt := domain.StockReservationFailedEvent{OrderID: orderID, OccurredAt: time.Now().UTC(), Reason: reason}
	*pending = append(*pending, func(ctx context.Context) {
		if err := s.publisher.PublishStockReservationFailed(ctx, evt); err != nil {
			logger.Ctx(ctx).Error().Err(err).Int64("order_id", orderID).Msg("failed to publish StockReservationFailed event")
		}
	})
	return ReserveResult{Reserved: false, Reason: reason}
}

// Release 释放订单的预占。返回值表示"该订单的预占现在处于已释放状态"：
// 不存在预占返回 false，已释放过返回 true，重复调用无二次效果。
func (s *Service) Release(ctx context.Context, orderID int64) (bool, error) {
	if orderID <= 0 {
		return false, domain.ErrInvalidArgument
	}
	var (
		released bool
		pending  []func(context.Context)
	)
	err := s.uow.InTx(ctx, func(r domain.Repos) error {
		var err error
		released, err = s.releaseInTx(ctx, r, orderID, &pending)
		return err
	})
	if err != nil {
		return false, err
	}
	s.flush(ctx, pending)
	return released, nil
}

func (s *Service) releaseInTx(ctx context.Context, r domain.Repos, orderID int64, pending *[]func(context.Context)) (bool, error) {
	reservation, err := r.Reservations.FindByOrderID(ctx, orderID)
	if err == domain.ErrReservationNotFound {
		releasesTotal.WithLabelValues("not_found").Inc()
		logger.Ctx(ctx).Info().Int64("order_id", orderID).Msg("no reservation to release")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if reservation.Status == domain.ReservationReleased {
		releasesTotal.WithLabelValues("already_released").Inc()
		return true, nil
	}

	products := make([]domain.ReserveLine, 0, len(reservation.Items))
	for _, item := range reservation.Items {
		// Release 的前置条件不成立说明台账与预占记录已对不上，
		// ErrLedgerInvariant 原样上抛，事务回滚。
		if err := r.Ledger.Release(ctx, item.ProductID, item.Quantity); err != nil {
			return false, err
		}
		products = append(products, domain.ReserveLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	if err := r.Reservations.MarkReleased(ctx, orderID); err != nil {
		return false, err
	}

	evt := domain.StockReleasedEvent{OrderID: orderID, OccurredAt: time.Now().UTC()}
	*pending = append(*pending, func(ctx context.Context) {
		if err := s.publisher.PublishStockReleased(ctx, evt); err != nil {
			logger.Ctx(ctx).Error().Err(err).Int64("order_id", orderID).Msg("failed to publish StockReleased event")
		}
	})
	*pending = append(*pending, s.invalidation(products))

	releasesTotal.WithLabelValues("released").Inc()
	logger.Ctx(ctx).Info().Int64("order_id", orderID).Msg("stock reservation released")
	return true, nil
}

// EnsureStockItem 幂等初始化台账行，不覆盖既有计数器。
func (s *Service) EnsureStockItem(ctx context.Context, productID int64) (*domain.StockItem, error) {
	var item *domain.StockItem
	err := s.uow.InTx(ctx, func(r domain.Repos) error {
		var err error
		item, err = r.Ledger.EnsureExists(ctx, productID, s.defaultStock)
		return err
	})
	return item, err
}

// GetStock 查询台账，旁路缓存。
func (s *Service) GetStock(ctx context.Context, productID int64) (*domain.StockItem, error) {
	if productID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if item, ok, err := s.cache.Get(ctx, productID); err == nil && ok {
		return item, nil
	} else if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Int64("product_id", productID).Msg("stock cache read failed, falling back to db")
	}
	item, err := s.ledger.FindByProductID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, item); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Int64("product_id", productID).Msg("stock cache write failed")
	}
	return item, nil
}

// HandleOrderCreated 消费 order-created：收件箱判定与预占在同一事务。
func (s *Service) HandleOrderCreated(ctx context.Context, ref mq.MessageRef, evt domain.OrderCreatedEvent) error {
	lines := make([]domain.ReserveLine, 0, len(evt.Items))
	for _, it := range evt.Items {
		lines = append(lines, domain.ReserveLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	var pending []func(context.Context)
	attempt := func() error {
		pending = nil
		return s.uow.InTx(ctx, func(r domain.Repos) error {
			fresh, err := r.Inbox.TryConsume(ctx, ref)
			if err != nil {
				return err
			}
			if !fresh {
				logger.Ctx(ctx).Debug().Str("topic", ref.Topic).Int64("offset", ref.Offset).Msg("duplicate delivery absorbed")
				return nil
			}
			_, err = s.reserveInTx(ctx, r, evt.OrderID, lines, &pending)
			if err == domain.ErrInvalidArgument {
				// 畸形事件重投多少次也不会变好，吸收掉（收件箱记录保留）
				logger.Ctx(ctx).Error().Int64("order_id", evt.OrderID).Msg("malformed order event, absorbing")
				return nil
			}
			return err
		})
	}
	err := attempt()
	if err == domain.ErrReservationExists {
		// 与同步预占路径竞争同一订单：回滚后重读，按首次结果收尾
		err = attempt()
	}
	if err != nil {
		return err
	}
	s.flush(ctx, pending)
	return nil
}

// HandleOrderCancelled 消费 order-cancelled：幂等释放预占。
func (s *Service) HandleOrderCancelled(ctx context.Context, ref mq.MessageRef, evt domain.OrderCancelledEvent) error {
	var pending []func(context.Context)
	err := s.uow.InTx(ctx, func(r domain.Repos) error {
		fresh, err := r.Inbox.TryConsume(ctx, ref)
		if err != nil {
			return err
		}
		if !fresh {
			return nil
		}
		_, err = s.releaseInTx(ctx, r, evt.OrderID, &pending)
		return err
	})
	if err != nil {
		return err
	}
	s.flush(ctx, pending)
	return nil
}

// HandleProductCreated 消费 product-created：按默认库存初始化台账。
func (s *Service) HandleProductCreated(ctx context.Context, ref mq.MessageRef, evt domain.ProductCreatedEvent) error {
	return s.uow.InTx(ctx, func(r domain.Repos) error {
		fresh, err := r.Inbox.TryConsume(ctx, ref)
		if err != nil {
			return err
		}
		if !fresh {
			return nil
		}
		item, err := r.Ledger.EnsureExists(ctx, evt.ProductID, s.defaultStock)
		if err != nil {
			return err
		}
		logger.Ctx(ctx).Info().Int64("product_id", item.ProductID).Int("available", item.Available).Msg("stock item initialized")
		return nil
	})
}

// flush 按入队顺序执行提交后的动作。
func (s *Service) flush(ctx context.Context, pending []func(context.Context)) {
	for _, fn := range pending {
		fn(ctx)
	}
}

func (s *Service) invalidation(lines []domain.ReserveLine) func(context.Context) {
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	return func(ctx context.Context) {
		if err := s.cache.Invalidate(ctx, ids...); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("stock cache invalidation failed")
		}
	}
}

// aggregateLines 合并同一商品的多行，保持首次出现的顺序。
func aggregateLines(lines []domain.ReserveLine) []domain.ReserveLine {
	index := make(map[int64]int, len(lines))
	out := make([]domain.ReserveLine, 0, len(lines))
	for _, line := range lines {
		if i, ok := index[line.ProductID]; ok {
			out[i].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(out)
		out = append(out, line)
	}
	return out
}
