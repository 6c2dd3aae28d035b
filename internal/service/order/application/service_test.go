package application

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocksaga/internal/pkg/mq"
	"stocksaga/internal/service/order/domain"
	"stocksaga/internal/service/order/domain/port"
)

// ---- 内存实现 ----

type fakeOrders struct {
	byID   map[int64]*domain.Order
	nextID int64
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{byID: make(map[int64]*domain.Order), nextID: 1}
}

func (r *fakeOrders) FindByID(ctx context.Context, orderID int64) (*domain.Order, error) {
	o, ok := r.byID[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	copied := *o
	return &copied, nil
}

func (r *fakeOrders) List(ctx context.Context, limit, offset int) ([]*domain.Order, error) {
	out := make([]*domain.Order, 0, len(r.byID))
	for _, o := range r.byID {
		copied := *o
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeOrders) Create(ctx context.Context, order *domain.Order) error {
	order.ID = r.nextID
	r.nextID++
	copied := *order
	r.byID[order.ID] = &copied
	return nil
}

func (r *fakeOrders) UpdateStatus(ctx context.Context, orderID int64, status domain.OrderStatus) error {
	o, ok := r.byID[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.Status = status
	return nil
}

type fakeCatalog struct {
	byID map[int64]*domain.Product
}

func newFakeCatalog(products ...*domain.Product) *fakeCatalog {
	c := &fakeCatalog{byID: make(map[int64]*domain.Product)}
	for _, p := range products {
		c.byID[p.ProductID] = p
	}
	return c
}

func (c *fakeCatalog) FindByProductID(ctx context.Context, productID int64) (*domain.Product, error) {
	p, ok := c.byID[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return p, nil
}

func (c *fakeCatalog) Upsert(ctx context.Context, product *domain.Product) error {
	c.byID[product.ProductID] = product
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

type capturingPublisher struct {
	created   []domain.OrderCreatedEvent
	cancelled []domain.OrderCancelledEvent
}

func (p *capturingPublisher) PublishOrderCreated(ctx context.Context, event domain.OrderCreatedEvent) error {
	p.created = append(p.created, event)
	return nil
}

func (p *capturingPublisher) PublishOrderCancelled(ctx context.Context, event domain.OrderCancelledEvent) error {
	p.cancelled = append(p.cancelled, event)
	return nil
}

type stubInventory struct {
	outcome port.ReserveOutcome
	err     error
	calls   int
}

func (s *stubInventory) ReserveStock(ctx context.Context, orderID int64, items []domain.OrderItem) (port.ReserveOutcome, error) {
	s.calls++
	return s.outcome, s.err
}

func (s *stubInventory) ReleaseStock(ctx context.Context, orderID int64) (bool, error) {
	return true, nil
}

type fixture struct {
	orders    *fakeOrders
	catalog   *fakeCatalog
	publisher *capturingPublisher
	inventory *stubInventory
	service   *Service
}

func newFixture(products ...*domain.Product) *fixture {
	orders := newFakeOrders()
	catalog := newFakeCatalog(products...)
	publisher := &capturingPublisher{}
	inventory := &stubInventory{}
	uow := &fakeUow{repos: domain.Repos{Orders: orders, Catalog: catalog, Inbox: newFakeInbox()}}
	return &fixture{
		orders:    orders,
		catalog:   catalog,
		publisher: publisher,
		inventory: inventory,
		service:   NewService(uow, orders, publisher, inventory),
	}
}

func (f *fixture) createOrder(t *testing.T) *domain.Order {
	t.Helper()
	order, err := f.service.Create(context.Background(), "alice", []CreateOrderItem{{ProductID: 1, Quantity: 2}})
	require.NoError(t, err)
	return order
}

// ---- Create ----

func TestCreatePricesItemsFromCatalogAndPublishesOrderCreated(t *testing.T) {
	f := newFixture(&domain.Product{ProductID: 1, Name: "widget", Price: 9.5})

	order := f.createOrder(t)
	assert.Equal(t, domain.OrderCreated, order.Status)
	assert.Equal(t, 19.0, order.Total)
	assert.Equal(t, 9.5, order.Items[0].UnitPrice)

	require.Len(t, f.publisher.created, 1)
	assert.Equal(t, order.ID, f.publisher.created[0].OrderID)
	require.Len(t, f.publisher.created[0].Items, 1)
	assert.Equal(t, int64(1), f.publisher.created[0].Items[0].ProductID)
}

func TestCreateUnknownProductFails(t *testing.T) {
	f := newFixture()

	_, err := f.service.Create(context.Background(), "alice", []CreateOrderItem{{ProductID: 9, Quantity: 1}})
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
	assert.Empty(t, f.publisher.created)
}

// ---- 同步预占 ----

func TestReserveMarksOrderReservedOnSuccess(t *testing.T) {
	f := newFixture(&domain.Product{ProductID: 1, Price: 1})
	order := f.createOrder(t)
	f.inventory.outcome = port.ReserveOutcome{Reserved: true}

	result, err := f.service.Reserve(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderReserved, result.Status)
	assert.Empty(t, f.publisher.cancelled)
}

func TestReserveCancelsOrderOnBusinessFailure(t *testing.T) {
	f := newFixture(&domain.Product{ProductID: 1, Price: 1})
	order := f.createOrder(t)
	f.inventory.outcome = port.ReserveOutcome{Reserved: false, Reason: "INSUFFICIENT_STOCK"}

	result, err := f.service.Reserve(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, result.Status)
	require.Len(t, f.publisher.cancelled, 1)
	assert.Equal(t, order.ID, f.publisher.cancelled[0].OrderID)
}

func TestReserveLeavesOrderCreatedWhenInventoryUnavailable(t *testing.T) {
	f := newFixture(&domain.Product{ProductID: 1, Price: 1})
	order := f.createOrder(t)
	f.inventory.err = domain.ErrInventoryUnavailable

	_, err := f.service.Reserve(context.Background(), order.ID)
	assert.ErrorIs(t, err, domain.ErrInventoryUnavailable)

	current, err := f.service.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCreated, current.Status)
}

func TestReserveOnTerminalOrderIsNoop(t *testing.T) {
	f := newFixture(&domain.Product{ProductID: 1, Price: 1})
	order := f.createOrder(t)
	require.NoError(t, f.orders.UpdateStatus(context.Background(), order.ID, domain.OrderReserved))

	result, err := f.service.Reserve(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderReserved, result.Status)
	assert.Zero(t, f.inventory.calls)
}

// ---- Cancel ----

func TestCancelPublishesOrderCancelledOnce(t *testing.T) {
	f := newFixture(&domain.Product{ProductID: 1, Price: 1})
	order := f.createOrder(t)

	result, err := f.service.Cancel(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, result.Status)
	require.Len(t, f.publisher.cancelled, 1)

	// 重复取消不再补发事件
	result, err = f.service.Cancel(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, result.Status)
	assert.Len(t, f.publisher.cancelled, 1)
}

// ---- 库存回执 ----

func TestHandleStockReservedAdvancesOrder(t *testing.T) {
	f := newFixture(&domain.Product{ProductID: 1, Price: 1})
	order := f.createOrder(t)

	ref := mq.MessageRef{Topic: "stock-reserved", Offset: 5}
	evt := domain.StockReservedEvent{OrderID: order.ID}
	require.NoError(t, f.service.HandleStockReserved(context.Background(), ref, evt))

	current, _ := f.service.Get(context.Background(), order.ID)
	assert.Equal(t, domain.OrderReserved, current.Status)

	// 重投被收件箱吸收
	require.NoError(t, f.service.HandleStockReserved(context.Background(), ref, evt))
	current, _ = f.service.Get(context.Background(), order.ID)
	assert.Equal(t, domain.OrderReserved, current.Status)
}

func TestHandleStockReservationFailedCancelsAndNotifiesOnce(t *testing.T) {
	f := newFixture(&domain.Product{ProductID: 1, Price: 1})
	order := f.createOrder(t)

	evt := domain.StockReservationFailedEvent{OrderID: order.ID, Reason: "INSUFFICIENT_STOCK"}
	require.NoError(t, f.service.HandleStockReservationFailed(context.Background(), mq.MessageRef{Topic: "stock-reservation-failed", Offset: 1}, evt))

	current, _ := f.service.Get(context.Background(), order.ID)
	assert.Equal(t, domain.OrderCancelled, current.Status)
	require.Len(t, f.publisher.cancelled, 1)

	// 另一个 offset 上的重复回执：订单已是终态，不再补发取消事件
	require.NoError(t, f.service.HandleStockReservationFailed(context.Background(), mq.MessageRef{Topic: "stock-reservation-failed", Offset: 2}, evt))
	assert.Len(t, f.publisher.cancelled, 1)
}

func TestLateFailureAfterCancelDoesNotResurrectOrder(t *testing.T) {
	f := newFixture(&domain.Product{ProductID: 1, Price: 1})
	order := f.createOrder(t)

	_, err := f.service.Cancel(context.Background(), order.ID)
	require.NoError(t, err)

	evt := domain.StockReservedEvent{OrderID: order.ID}
	require.NoError(t, f.service.HandleStockReserved(context.Background(), mq.MessageRef{Topic: "stock-reserved", Offset: 9}, evt))

	current, _ := f.service.Get(context.Background(), order.ID)
	assert.Equal(t, domain.OrderCancelled, current.Status)
}

func TestHandleStockReservedForUnknownOrderIsAbsorbed(t *testing.T) {
	f := newFixture()

	evt := domain.StockReservedEvent{OrderID: 12345}
	err := f.service.HandleStockReserved(context.Background(), mq.MessageRef{Topic: "stock-reserved", Offset: 1}, evt)
	assert.NoError(t, err)
}

// ---- 商品影子表 ----

func TestHandleProductCreatedUpsertsCatalog(t *testing.T) {
	f := newFixture()

	evt := domain.ProductCreatedEvent{ProductID: 7, Name: "gadget", Price: 3.25}
	require.NoError(t, f.service.HandleProductCreated(context.Background(), mq.MessageRef{Topic: "product-created", Offset: 1}, evt))

	p, err := f.catalog.FindByProductID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "gadget", p.Name)
	assert.Equal(t, 3.25, p.Price)
}
