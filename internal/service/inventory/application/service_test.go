package application

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocksaga/internal/pkg/mq"
	"stocksaga/internal/service/inventory/domain"
)

// ---- 内存实现，供编排器测试使用 ----

type fakeLedger struct {
	items map[int64]*domain.StockItem

	// 首次 Claim 前执行一次，用于模拟并发事务抢先扣减
	beforeClaim func()
}

func newFakeLedger(items ...*domain.StockItem) *fakeLedger {
	l := &fakeLedger{items: make(map[int64]*domain.StockItem)}
	for _, item := range items {
		l.items[item.ProductID] = item
	}
	return l
}

func (l *fakeLedger) FindByProductID(ctx context.Context, productID int64) (*domain.StockItem, error) {
	item, ok := l.items[productID]
	if !ok {
		return nil, domain.ErrStockItemNotFound
	}
	copied := *item
	return &copied, nil
}

func (l *fakeLedger) EnsureExists(ctx context.Context, productID int64, defaultStock int) (*domain.StockItem, error) {
	if item, ok := l.items[productID]; ok {
		copied := *item
		return &copied, nil
	}
	item := &domain.StockItem{ProductID: productID, Available: defaultStock}
	l.items[productID] = item
	copied := *item
	return &copied, nil
}

func (l *fakeLedger) Claim(ctx context.Context, productID int64, quantity int) error {
	if l.beforeClaim != nil {
		hook := l.beforeClaim
		l.beforeClaim = nil
		hook()
	}
	if quantity <= 0 {
		return domain.ErrInvalidArgument
	}
	item, ok := l.items[productID]
	if !ok {
		return domain.ErrStockItemNotFound
	}
	if item.Available < quantity {
		return domain.ErrInsufficientStock
	}
	item.Available -= quantity
	item.Reserved += quantity
	return nil
}

func (l *fakeLedger) Release(ctx context.Context, productID int64, quantity int) error {
	item, ok := l.items[productID]
	if !ok || item.Reserved < quantity {
		return domain.ErrLedgerInvariant
	}
	item.Available += quantity
	item.Reserved -= quantity
	return nil
}

type fakeReservations struct {
	byOrder map[int64]*domain.StockReservation

	// 首次 Create 前执行一次，用于模拟并发事务抢先写入同一订单
	beforeCreate func()
}

func newFakeReservations() *fakeReservations {
	return &fakeReservations{byOrder: make(map[int64]*domain.StockReservation)}
}

func (s *fakeReservations) FindByOrderID(ctx context.Context, orderID int64) (*domain.StockReservation, error) {
	r, ok := s.byOrder[orderID]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	return r, nil
}

func (s *fakeReservations) Create(ctx context.Context, reservation *domain.StockReservation) error {
	if s.beforeCreate != nil {
		hook := s.beforeCreate
		s.beforeCreate = nil
		hook()
	}
	if _, ok := s.byOrder[reservation.OrderID]; ok {
		return domain.ErrReservationExists
	}
	s.byOrder[reservation.OrderID] = reservation
	return nil
}

func (s *fakeReservations) MarkReleased(ctx context.Context, orderID int64) error {
	r, ok := s.byOrder[orderID]
	if !ok {
		return domain.ErrReservationNotFound
	}
	r.Status = domain.ReservationReleased
	return nil
}

type fakeInbox struct {
	seen map[string]struct{}
}

func newFakeInbox() *fakeInbox {
	return &fakeInbox{seen: make(map[string]struct{})}
}

func (i *fakeInbox) TryConsume(ctx context.Context, ref mq.MessageRef) (bool, error) {
	key := fmt.Sprintf("%s/%d/%d", ref.Topic, ref.Partition, ref.Offset)
	if _, ok := i.seen[key]; ok {
		return false, nil
	}
	i.seen[key] = struct{}{}
	return true, nil
}

type fakeUow struct {
	repos domain.Repos
}

func (u *fakeUow) InTx(ctx context.Context, fn func(r domain.Repos) error) error {
	return fn(u.repos)
}

// rollbackUow 在闭包返回错误时恢复台账快照，模拟真实事务的回滚。
type rollbackUow struct {
	repos  domain.Repos
	ledger *fakeLedger
}

func (u *rollbackUow) InTx(ctx context.Context, fn func(r domain.Repos) error) error {
	snapshot := make(map[int64]domain.StockItem, len(u.ledger.items))
	for id, item := range u.ledger.items {
		snapshot[id] = *item
	}
	if err := fn(u.repos); err != nil {
		for id, item := range snapshot {
			copied := item
			u.ledger.items[id] = &copied
		}
		return err
	}
	return nil
}

type capturingPublisher struct {
	reserved []domain.StockReservedEvent
	failed   []domain.StockReservationFailedEvent
	released []domain.StockReleasedEvent
	lowStock []domain.LowStockEvent
}

func (p *capturingPublisher) PublishStockReserved(ctx context.Context, event domain.StockReservedEvent) error {
	p.reserved = append(p.reserved, event)
	return nil
}

func (p *capturingPublisher) PublishStockReservationFailed(ctx context.Context, event domain.StockReservationFailedEvent) error {
	p.failed = append(p.failed, event)
	return nil
}

func (p *capturingPublisher) PublishStockReleased(ctx context.Context, event domain.StockReleasedEvent) error {
	p.released = append(p.released, event)
	return nil
}

func (p *capturingPublisher) PublishLowStock(ctx context.Context, event domain.LowStockEvent) error {
	p.lowStock = append(p.lowStock, event)
	return nil
}

type noopCache struct{}

func (noopCache) Get(ctx context.Context, productID int64) (*domain.StockItem, bool, error) {
	return nil, false, nil
}
func (noopCache) Set(ctx context.Context, item *domain.StockItem) error { return nil }

func (noopCache) Invalidate(ctx context.Context, productIDs ...int64) error { return nil }

type fixture struct {
	ledger       *fakeLedger
	reservations *fakeReservations
	inbox        *fakeInbox
	publisher    *capturingPublisher
	service      *Service
}

func newFixture(threshold int, items ...*domain.StockItem) *fixture {
	ledger := newFakeLedger(items...)
	reservations := newFakeReservations()
	inbox := newFakeInbox()
	publisher := &capturingPublisher{}
	uow := &fakeUow{repos: domain.Repos{Ledger: ledger, Reservations: reservations, Inbox: inbox}}
	return &fixture{
		ledger:       ledger,
		reservations: reservations,
		inbox:        inbox,
		publisher:    publisher,
		service:      NewService(uow, ledger, publisher, noopCache{}, 100, threshold),
	}
}

// ---- Reserve ----

func TestReserveClaimsAllLinesAndEmitsStockReserved(t *testing.T) {
	f := newFixture(2, &domain.StockItem{ProductID: 1, Available: 10})

	result, err := f.service.Reserve(context.Background(), 100, []domain.ReserveLine{{ProductID: 1, Quantity: 4}})
	require.NoError(t, err)
	assert.True(t, result.Reserved)
	assert.Empty(t, result.Reason)

	assert.Equal(t, 6, f.ledger.items[1].Available)
	assert.Equal(t, 4, f.ledger.items[1].Reserved)

	reservation := f.reservations.byOrder[100]
	require.NotNil(t, reservation)
	assert.Equal(t, domain.ReservationReserved, reservation.Status)
	assert.Equal(t, []domain.ReservationItem{{ProductID: 1, Quantity: 4}}, reservation.Items)

	require.Len(t, f.publisher.reserved, 1)
	assert.Equal(t, int64(100), f.publisher.reserved[0].OrderID)
	assert.Empty(t, f.publisher.lowStock)
}

func TestReserveIsIdempotentPerOrder(t *testing.T) {
	f := newFixture(0, &domain.StockItem{ProductID: 1, Available: 10})

	first, err := f.service.Reserve(context.Background(), 100, []domain.ReserveLine{{ProductID: 1, Quantity: 4}})
	require.NoError(t, err)
	require.True(t, first.Reserved)

	second, err := f.service.Reserve(context.Background(), 100, []domain.ReserveLine{{ProductID: 1, Quantity: 4}})
	require.NoError(t, err)
	assert.True(t, second.Reserved)

	// 第二次调用不产生任何新效果
	assert.Equal(t, 6, f.ledger.items[1].Available)
	assert.Equal(t, 4, f.ledger.items[1].Reserved)
	assert.Len(t, f.publisher.reserved, 1)
}

func TestReserveInsufficientStockLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(0, &domain.StockItem{ProductID: 1, Available: 6, Reserved: 4})

	result, err := f.service.Reserve(context.Background(), 101, []domain.ReserveLine{{ProductID: 1, Quantity: 20}})
	require.NoError(t, err)
	assert.False(t, result.Reserved)
	assert.Equal(t, domain.ReasonInsufficientStock, result.Reason)

	assert.Equal(t, 6, f.ledger.items[1].Available)
	assert.Equal(t, 4, f.ledger.items[1].Reserved)
	assert.NotContains(t, f.reservations.byOrder, int64(101))

	require.Len(t, f.publisher.failed, 1)
	assert.Equal(t, domain.ReasonInsufficientStock, f.publisher.failed[0].Reason)
}

func TestReserveAllOrNothingAcrossLines(t *testing.T) {
	f := newFixture(0,
		&domain.StockItem{ProductID: 1, Available: 10},
		&domain.StockItem{ProductID: 2, Available: 1},
	)

	result, err := f.service.Reserve(context.Background(), 100, []domain.ReserveLine{
		{ProductID: 1, Quantity: 4},
		{ProductID: 2, Quantity: 5},
	})
	require.NoError(t, err)
	assert.False(t, result.Reserved)

	// 校验先于扣减，第一行也不得生效
	assert.Equal(t, 10, f.ledger.items[1].Available)
	assert.Equal(t, 0, f.ledger.items[1].Reserved)
	assert.Equal(t, 1, f.ledger.items[2].Available)
}

func TestReserveUnknownProductFailsWithProductNotFound(t *testing.T) {
	f := newFixture(0, &domain.StockItem{ProductID: 1, Available: 10})

	result, err := f.service.Reserve(context.Background(), 100, []domain.ReserveLine{{ProductID: 9, Quantity: 1}})
	require.NoError(t, err)
	assert.False(t, result.Reserved)
	assert.Equal(t, domain.ReasonProductNotFound, result.Reason)

	require.Len(t, f.publisher.failed, 1)
	assert.Equal(t, domain.ReasonProductNotFound, f.publisher.failed[0].Reason)
}

func TestReserveEmptyLinesIsInvalidArgument(t *testing.T) {
	f := newFixture(0, &domain.StockItem{ProductID: 1, Available: 10})

	_, err := f.service.Reserve(context.Background(), 100, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	// 台账与发布器都不应被触碰
	assert.Equal(t, 10, f.ledger.items[1].Available)
	assert.Empty(t, f.publisher.failed)
}

func TestReserveInvalidOrderIDIsInvalidArgument(t *testing.T) {
	f := newFixture(0)

	_, err := f.service.Reserve(context.Background(), 0, []domain.ReserveLine{{ProductID: 1, Quantity: 1}})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestReserveMergesDuplicateLines(t *testing.T) {
	f := newFixture(0, &domain.StockItem{ProductID: 1, Available: 10})

	result, err := f.service.Reserve(context.Background(), 100, []domain.ReserveLine{
		{ProductID: 1, Quantity: 4},
		{ProductID: 1, Quantity: 3},
	})
	require.NoError(t, err)
	assert.True(t, result.Reserved)
	assert.Equal(t, 3, f.ledger.items[1].Available)
	assert.Equal(t, 7, f.ledger.items[1].Reserved)
}

func TestReserveLosingCreateRaceReturnsFirstOutcome(t *testing.T) {
	f := newFixture(0, &domain.StockItem{ProductID: 1, Available: 10})
	f.service = NewService(
		&rollbackUow{
			repos:  domain.Repos{Ledger: f.ledger, Reservations: f.reservations, Inbox: f.inbox},
			ledger: f.ledger,
		},
		f.ledger, f.publisher, noopCache{}, 100, 0,
	)

	// 对手事务在本事务写预占记录前抢先提交了同一订单
	f.reservations.beforeCreate = func() {
		f.reservations.byOrder[100] = domain.NewStockReservation(100, []domain.ReserveLine{{ProductID: 1, Quantity: 4}})
	}

	result, err := f.service.Reserve(context.Background(), 100, []domain.ReserveLine{{ProductID: 1, Quantity: 4}})
	require.NoError(t, err)
	assert.True(t, result.Reserved)

	// 败方的扣减已随事务回滚，重试按赢家的首次结果返回，不再发事件
	assert.Equal(t, 10, f.ledger.items[1].Available)
	assert.Equal(t, 0, f.ledger.items[1].Reserved)
	assert.Empty(t, f.publisher.reserved)
}

// ---- 低水位告警 ----

func TestLowStockFiresOnlyOnCrossing(t *testing.T) {
	f := newFixture(6, &domain.StockItem{ProductID: 1, Available: 10})

	// 10 -> 6 穿越阈值 6
	result, err := f.service.Reserve(context.Background(), 100, []domain.ReserveLine{{ProductID: 1, Quantity: 4}})
	require.NoError(t, err)
	require.True(t, result.Reserved)
	require.Len(t, f.publisher.lowStock, 1)
	assert.Equal(t, int64(1), f.publisher.lowStock[0].ProductID)
	assert.Equal(t, 6, f.publisher.lowStock[0].Available)
	assert.Equal(t, 6, f.publisher.lowStock[0].Threshold)

	// 6 -> 4 仍在阈值之下，不再告警
	result, err = f.service.Reserve(context.Background(), 101, []domain.ReserveLine{{ProductID: 1, Quantity: 2}})
	require.NoError(t, err)
	require.True(t, result.Reserved)
	assert.Len(t, f.publisher.lowStock, 1)
}

func TestLowStockNotFiredAboveThreshold(t *testing.T) {
	f := newFixture(5, &domain.StockItem{ProductID: 1, Available: 10})

	result, err := f.service.Reserve(context.Background(), 100, []domain.ReserveLine{{ProductID: 1, Quantity: 4}})
	require.NoError(t, err)
	require.True(t, result.Reserved)
	// 10 -> 6，阈值 5：未到达阈值之下
	assert.Empty(t, f.publisher.lowStock)
}

func TestLowStockCrossingReadsLedgerAfterClaim(t *testing.T) {
	f := newFixture(5, &domain.StockItem{ProductID: 1, Available: 10})

	// 校验通过后、扣减前，并发事务提交把 available 压到 7。
	// 真实穿越是 7 -> 4；用校验阶段的快照推算会得出 10 -> 7，漏掉告警。
	f.ledger.beforeClaim = func() {
		f.ledger.items[1].Available -= 3
		f.ledger.items[1].Reserved += 3
	}

	result, err := f.service.Reserve(context.Background(), 100, []domain.ReserveLine{{ProductID: 1, Quantity: 3}})
	require.NoError(t, err)
	require.True(t, result.Reserved)

	require.Len(t, f.publisher.lowStock, 1)
	assert.Equal(t, 4, f.publisher.lowStock[0].Available)
	assert.Equal(t, 5, f.publisher.lowStock[0].Threshold)
}

// ---- Release ----

func TestReleaseRestoresCountersAndIsIdempotent(t *testing.T) {
	f := newFixture(0, &domain.StockItem{ProductID: 1, Available: 10})

	_, err := f.service.Reserve(context.Background(), 100, []domain.ReserveLine{{ProductID: 1, Quantity: 4}})
	require.NoError(t, err)

	released, err := f.service.Release(context.Background(), 100)
	require.NoError(t, err)
	assert.True(t, released)
	assert.Equal(t, 10, f.ledger.items[1].Available)
	assert.Equal(t, 0, f.ledger.items[1].Reserved)
	assert.Equal(t, domain.ReservationReleased, f.reservations.byOrder[100].Status)
	require.Len(t, f.publisher.released, 1)

	// 第二次释放：true 且计数器不再变动
	released, err = f.service.Release(context.Background(), 100)
	require.NoError(t, err)
	assert.True(t, released)
	assert.Equal(t, 10, f.ledger.items[1].Available)
	assert.Len(t, f.publisher.released, 1)
}

func TestReleaseUnknownOrderReturnsFalse(t *testing.T) {
	f := newFixture(0)

	released, err := f.service.Release(context.Background(), 999)
	require.NoError(t, err)
	assert.False(t, released)
	assert.Empty(t, f.publisher.released)
}

func TestReleasePropagatesLedgerInvariantViolation(t *testing.T) {
	f := newFixture(0, &domain.StockItem{ProductID: 1, Available: 10})

	_, err := f.service.Reserve(context.Background(), 100, []domain.ReserveLine{{ProductID: 1, Quantity: 4}})
	require.NoError(t, err)

	// 人为破坏台账，模拟与预占记录不一致的数据
	f.ledger.items[1].Reserved = 0

	_, err = f.service.Release(context.Background(), 100)
	assert.ErrorIs(t, err, domain.ErrLedgerInvariant)
}

// ---- 消息处理器（收件箱保护） ----

func TestHandleOrderCreatedReservesOnce(t *testing.T) {
	f := newFixture(0, &domain.StockItem{ProductID: 1, Available: 10})

	ref := mq.MessageRef{Topic: "order-created", Partition: 0, Offset: 42}
	evt := domain.OrderCreatedEvent{OrderID: 100, Items: []domain.OrderItemEvent{{ProductID: 1, Quantity: 4}}}

	require.NoError(t, f.service.HandleOrderCreated(context.Background(), ref, evt))
	assert.Equal(t, 6, f.ledger.items[1].Available)

	// 同一条消息重投：收件箱吸收，无二次效果
	require.NoError(t, f.service.HandleOrderCreated(context.Background(), ref, evt))
	assert.Equal(t, 6, f.ledger.items[1].Available)
	assert.Len(t, f.publisher.reserved, 1)
}

func TestHandleOrderCreatedDistinctOffsetsStillIdempotentPerOrder(t *testing.T) {
	f := newFixture(0, &domain.StockItem{ProductID: 1, Available: 10})

	evt := domain.OrderCreatedEvent{OrderID: 100, Items: []domain.OrderItemEvent{{ProductID: 1, Quantity: 4}}}

	// 生产者重试导致同一订单出现在两个 offset 上：预占记录兜底
	require.NoError(t, f.service.HandleOrderCreated(context.Background(), mq.MessageRef{Topic: "order-created", Offset: 1}, evt))
	require.NoError(t, f.service.HandleOrderCreated(context.Background(), mq.MessageRef{Topic: "order-created", Offset: 2}, evt))

	assert.Equal(t, 6, f.ledger.items[1].Available)
	assert.Len(t, f.publisher.reserved, 1)
}

func TestHandleOrderCancelledReleasesReservation(t *testing.T) {
	f := newFixture(0, &domain.StockItem{ProductID: 1, Available: 10})

	_, err := f.service.Reserve(context.Background(), 100, []domain.ReserveLine{{ProductID: 1, Quantity: 4}})
	require.NoError(t, err)

	ref := mq.MessageRef{Topic: "order-cancelled", Offset: 7}
	require.NoError(t, f.service.HandleOrderCancelled(context.Background(), ref, domain.OrderCancelledEvent{OrderID: 100}))
	assert.Equal(t, 10, f.ledger.items[1].Available)

	require.NoError(t, f.service.HandleOrderCancelled(context.Background(), ref, domain.OrderCancelledEvent{OrderID: 100}))
	assert.Len(t, f.publisher.released, 1)
}

func TestHandleProductCreatedProvisionsDefaultStock(t *testing.T) {
	f := newFixture(0)

	ref := mq.MessageRef{Topic: "product-created", Offset: 3}
	require.NoError(t, f.service.HandleProductCreated(context.Background(), ref, domain.ProductCreatedEvent{ProductID: 7}))

	item := f.ledger.items[7]
	require.NotNil(t, item)
	assert.Equal(t, 100, item.Available)
	assert.Equal(t, 0, item.Reserved)
}

// ---- 查询 ----

func TestGetStockFallsBackToLedger(t *testing.T) {
	f := newFixture(0, &domain.StockItem{ProductID: 1, Available: 10, Reserved: 2})

	item, err := f.service.GetStock(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 10, item.Available)
	assert.Equal(t, 2, item.Reserved)

	_, err = f.service.GetStock(context.Background(), 404)
	assert.ErrorIs(t, err, domain.ErrStockItemNotFound)
}
