package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/domain/model"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/logger"
	"storefront/internal/testutil"
	"storefront/internal/usecase"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeGateway struct {
	mu   sync.Mutex
	reqs []usecase.SessionRequest
	err  error
}

func (g *fakeGateway) CreateSession(ctx context.Context, req usecase.SessionRequest) (usecase.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return usecase.CheckoutSession{}, g.err
	}
	g.reqs = append(g.reqs, req)
	return usecase.CheckoutSession{ID: "cs_test", URL: "https://pay.example.com/cs_test"}, nil
}

func (g *fakeGateway) last() usecase.SessionRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reqs[len(g.reqs)-1]
}

type memoryMarker struct {
	mu   sync.Mutex
	refs map[string]int64
	err  error
}

func newMemoryMarker() *memoryMarker {
	return &memoryMarker{refs: map[string]int64{}}
}

func (m *memoryMarker) Lookup(ctx context.Context, ref string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, false, m.err
	}
	id, ok := m.refs[ref]
	return id, ok, nil
}

func (m *memoryMarker) Mark(ctx context.Context, ref string, orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.refs[ref] = orderID
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []usecase.OrderConfirmed
	err  error
}

func (n *recordingNotifier) NotifyOrderConfirmed(ctx context.Context, msg usecase.OrderConfirmed) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return n.err
}

func (n *recordingNotifier) sent() []usecase.OrderConfirmed {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]usecase.OrderConfirmed(nil), n.msgs...)
}

var errGatewayDown = errors.New("gateway down")

const cartTTL = 14 * 24 * time.Hour

type testEnv struct {
	db       *gorm.DB
	clock    *fixedClock
	carts    *usecase.CartUsecase
	checkout *usecase.CheckoutUsecase
	orders   *usecase.OrderUsecase
	gateway  *fakeGateway
	marker   *memoryMarker
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	gormDB := testutil.NewDB(t)
	clock := &fixedClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	log := logger.Discard()

	cartRepo := infraRepo.NewCartGormRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	stockRepo := infraRepo.NewStockGormRepository(gormDB)
	tx := infraRepo.NewTxManagerGorm(gormDB)

	carts := usecase.NewCartUsecase(tx, cartRepo, cartRepo, productRepo, clock, cartTTL, log)
	gw := &fakeGateway{}
	checkout := usecase.NewCheckoutUsecase(productRepo, stockRepo, carts, gw, usecase.CheckoutOptions{
		Currency:   "jpy",
		SuccessURL: "http://localhost:3000/checkout/success",
		CancelURL:  "http://localhost:3000/cart",
	}, log)

	marker := newMemoryMarker()
	notifier := &recordingNotifier{}
	orders := usecase.NewOrderUsecase(
		tx,
		infraRepo.NewOrderGormRepository(gormDB),
		infraRepo.NewOrderItemGormRepository(gormDB),
		marker,
		notifier,
		carts,
		clock,
		log,
	)

	return &testEnv{
		db:       gormDB,
		clock:    clock,
		carts:    carts,
		checkout: checkout,
		orders:   orders,
		gateway:  gw,
		marker:   marker,
		notifier: notifier,
	}
}

func (e *testEnv) product(t *testing.T, id int64, name string, price int64) model.Product {
	t.Helper()
	p := model.Product{ID: id, Name: name, Price: price, IsActive: true}
	require.NoError(t, e.db.Create(&p).Error)
	return p
}

func (e *testEnv) setPrice(t *testing.T, productID int64, price int64) {
	t.Helper()
	require.NoError(t, e.db.Model(&model.Product{}).Where("id = ?", productID).Update("price", price).Error)
}

func (e *testEnv) cartItems(t *testing.T, token string) map[int64]model.CartItem {
	t.Helper()
	var cart model.Cart
	require.NoError(t, e.db.Where("token = ?", token).First(&cart).Error)

	var items []model.CartItem
	require.NoError(t, e.db.Where("cart_id = ?", cart.ID).Find(&items).Error)

	out := make(map[int64]model.CartItem, len(items))
	for _, it := range items {
		out[it.ProductID] = it
	}
	return out
}

func (e *testEnv) countOrders(t *testing.T, ref string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&model.Order{}).Where("payment_reference_id = ?", ref).Count(&n).Error)
	return n
}

func (e *testEnv) cartExists(t *testing.T, token string) bool {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&model.Cart{}).Where("token = ?", token).Count(&n).Error)
	return n > 0
}
