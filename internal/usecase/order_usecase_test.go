package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"storefront/internal/domain/model"
	"storefront/internal/testutil"
	"storefront/internal/usecase"
	"storefront/internal/webhook"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ゲートウェイに渡した明細からpayment.completedを組み立てる
func (e *testEnv) paymentFromLastSession(t *testing.T, ref string, email string) webhook.PaymentCompleted {
	t.Helper()

	req := e.gateway.last()
	p := webhook.PaymentCompleted{
		PaymentReferenceID: ref,
		PaymentStatus:      "paid",
		Currency:           "JPY",
		ClientReferenceID:  req.ClientReferenceID,
		Customer:           webhook.Customer{Email: email, Name: "Hanako"},
		ShippingAddress:    model.PostalAddress{Name: "Hanako", Line1: "1-2-3", City: "Tokyo", PostalCode: "100-0001", Country: "JP"},
		Shipping:           webhook.Shipping{Amount: 500, Description: "standard"},
	}
	for _, l := range req.Lines {
		p.AmountTotal += l.UnitPrice * l.Quantity
		p.LineItems = append(p.LineItems, webhook.LineItem{
			Description: l.Name,
			Quantity:    l.Quantity,
			Metadata:    l.Metadata.ToMap(),
		})
	}
	p.AmountTotal += p.Shipping.Amount
	return p
}

func paymentFor(ref string, lines ...webhook.LineItem) webhook.PaymentCompleted {
	return webhook.PaymentCompleted{
		PaymentReferenceID: ref,
		PaymentStatus:      "paid",
		Currency:           "jpy",
		Customer:           webhook.Customer{Email: "guest@example.com"},
		LineItems:          lines,
	}
}

func lineFor(rec model.StockRecord, qty int64, price int64) webhook.LineItem {
	return webhook.LineItem{
		Description: "item",
		Quantity:    qty,
		Metadata: model.LineMetadata{
			ProductID:     rec.ProductID,
			Variant:       rec.Variant,
			StockRecordID: rec.ID,
			UnitPrice:     price,
		}.ToMap(),
	}
}

func (e *testEnv) movements(t *testing.T, ref string) []model.StockMovement {
	t.Helper()
	var out []model.StockMovement
	require.NoError(t, e.db.Where("payment_reference_id = ?", ref).Find(&out).Error)
	return out
}

func TestOrder_CartToOrderEndToEnd(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.product(t, 7, "Tee", 1400)
	rec := testutil.SeedStock(t, e.db, 7, "Large", 10)

	cart, err := e.carts.AddItem(ctx, "", 0, usecase.CartLineInput{ProductID: 7, Variant: "Large", Quantity: 2})
	require.NoError(t, err)
	_, err = e.checkout.CreateSession(ctx, usecase.CheckoutInput{Token: cart.Token})
	require.NoError(t, err)
	assert.Equal(t, int64(10), testutil.AvailableUnits(t, e.db, rec.ID))

	res, err := e.orders.ProcessPaymentCompleted(ctx, e.paymentFromLastSession(t, "pay_1", "guest@example.com"))
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	e.orders.WaitNotifications()

	var order model.Order
	require.NoError(t, e.db.First(&order, res.OrderID).Error)
	assert.Equal(t, "pay_1", order.PaymentReferenceID)
	assert.Equal(t, "jpy", order.Currency)
	assert.Equal(t, int64(3300), order.TotalAmount)
	assert.Equal(t, int64(500), order.ShippingCost)
	assert.Equal(t, "Tokyo", order.ShippingAddress.City)
	assert.Nil(t, order.UserID)
	assert.False(t, order.Fulfilled)

	var items []model.OrderItem
	require.NoError(t, e.db.Where("order_id = ?", res.OrderID).Find(&items).Error)
	require.Len(t, items, 1)
	assert.Equal(t, int64(2), items[0].Quantity)
	assert.Equal(t, int64(1400), items[0].UnitPrice)
	assert.Equal(t, "Large", items[0].VariantDescriptor)
	assert.Equal(t, "Tee", items[0].ProductNameSnapshot)

	assert.Equal(t, int64(8), testutil.AvailableUnits(t, e.db, rec.ID))
	mv := e.movements(t, "pay_1")
	require.Len(t, mv, 1)
	assert.Equal(t, int64(-2), mv[0].Delta)
	assert.Equal(t, model.StockMovementReasonOrder, mv[0].Reason)

	sent := e.notifier.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, res.OrderID, sent[0].OrderID)
	assert.Equal(t, "guest@example.com", sent[0].CustomerEmail)

	assert.False(t, e.cartExists(t, cart.Token))
}

func TestOrder_RedeliveryIsNoop(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.product(t, 1, "Tee", 1400)
	rec := testutil.SeedStock(t, e.db, 1, "", 5)
	p := paymentFor("pay_dup", lineFor(rec, 2, 1400))

	first, err := e.orders.ProcessPaymentCompleted(ctx, p)
	require.NoError(t, err)

	// Redisの目印が無くてもDBで弾く
	e.marker.refs = map[string]int64{}
	second, err := e.orders.ProcessPaymentCompleted(ctx, p)
	require.NoError(t, err)
	e.orders.WaitNotifications()

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, int64(1), e.countOrders(t, "pay_dup"))
	assert.Equal(t, int64(3), testutil.AvailableUnits(t, e.db, rec.ID))
	assert.Len(t, e.movements(t, "pay_dup"), 1)
	assert.Len(t, e.notifier.sent(), 1)
}

func TestOrder_MarkerShortCircuits(t *testing.T) {
	e := newTestEnv(t)
	e.marker.refs["pay_seen"] = 99

	res, err := e.orders.ProcessPaymentCompleted(context.Background(), paymentFor("pay_seen"))
	require.NoError(t, err)
	assert.Equal(t, usecase.OrderResult{OrderID: 99, Duplicate: true}, res)
	assert.Equal(t, int64(0), e.countOrders(t, "pay_seen"))
}

func TestOrder_MarkerFailureFallsBackToDB(t *testing.T) {
	e := newTestEnv(t)
	e.product(t, 1, "Tee", 1400)
	rec := testutil.SeedStock(t, e.db, 1, "", 5)
	e.marker.err = errors.New("redis down")

	res, err := e.orders.ProcessPaymentCompleted(context.Background(), paymentFor("pay_nomarker", lineFor(rec, 1, 1400)))
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, int64(4), testutil.AvailableUnits(t, e.db, rec.ID))
}

func TestOrder_ConcurrentDuplicateDelivery(t *testing.T) {
	e := newTestEnv(t)
	e.product(t, 1, "Tee", 1400)
	rec := testutil.SeedStock(t, e.db, 1, "", 10)
	p := paymentFor("pay_race", lineFor(rec, 3, 1400))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.orders.ProcessPaymentCompleted(context.Background(), p)
			mu.Lock()
			defer mu.Unlock()
			if err == nil && !res.Duplicate {
				created++
			}
		}()
	}
	wg.Wait()
	e.orders.WaitNotifications()

	assert.Equal(t, 1, created)
	assert.Equal(t, int64(1), e.countOrders(t, "pay_race"))
	assert.Equal(t, int64(7), testutil.AvailableUnits(t, e.db, rec.ID))
}

func TestOrder_UnderflowRollsBackEverything(t *testing.T) {
	e := newTestEnv(t)
	e.product(t, 1, "Tee", 1400)
	e.product(t, 2, "Mug", 800)
	tee := testutil.SeedStock(t, e.db, 1, "", 5)
	mug := testutil.SeedStock(t, e.db, 2, "", 1)

	_, err := e.orders.ProcessPaymentCompleted(context.Background(),
		paymentFor("pay_short", lineFor(tee, 2, 1400), lineFor(mug, 2, 800)))

	pe, ok := usecase.AsProcessingError(err)
	require.True(t, ok)
	assert.False(t, pe.Permanent)
	assert.ErrorIs(t, err, usecase.ErrStockUnderflow)

	assert.Equal(t, int64(0), e.countOrders(t, "pay_short"))
	assert.Equal(t, int64(5), testutil.AvailableUnits(t, e.db, tee.ID))
	assert.Equal(t, int64(1), testutil.AvailableUnits(t, e.db, mug.ID))
	assert.Empty(t, e.movements(t, "pay_short"))
	assert.Empty(t, e.notifier.sent())
}

func TestOrder_UnderflowSucceedsOnRedeliveryAfterRestock(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.product(t, 1, "Tee", 1400)
	rec := testutil.SeedStock(t, e.db, 1, "", 1)
	payment := paymentFor("pay_restock", lineFor(rec, 3, 1400))

	_, err := e.orders.ProcessPaymentCompleted(ctx, payment)
	require.ErrorIs(t, err, usecase.ErrStockUnderflow)

	//入荷
	require.NoError(t, e.db.Model(&model.StockRecord{}).Where("id = ?", rec.ID).Update("available_units", 5).Error)

	res, err := e.orders.ProcessPaymentCompleted(ctx, payment)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	e.orders.WaitNotifications()

	assert.Equal(t, int64(1), e.countOrders(t, "pay_restock"))
	assert.Equal(t, int64(2), testutil.AvailableUnits(t, e.db, rec.ID))
}

func TestOrder_MetadataMismatchIsPermanent(t *testing.T) {
	e := newTestEnv(t)
	e.product(t, 1, "Tee", 1400)
	e.product(t, 2, "Mug", 800)
	tee := testutil.SeedStock(t, e.db, 1, "Large", 5)

	cases := map[string]webhook.LineItem{
		"other product":   {Quantity: 1, Metadata: model.LineMetadata{ProductID: 2, Variant: "Large", StockRecordID: tee.ID, UnitPrice: 800}.ToMap()},
		"other variant":   {Quantity: 1, Metadata: model.LineMetadata{ProductID: 1, Variant: "Small", StockRecordID: tee.ID, UnitPrice: 1400}.ToMap()},
		"unknown record":  {Quantity: 1, Metadata: model.LineMetadata{ProductID: 1, Variant: "Large", StockRecordID: 999, UnitPrice: 1400}.ToMap()},
		"broken metadata": {Quantity: 1, Metadata: map[string]string{model.MetaProductID: "x"}},
	}
	for name, li := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := e.orders.ProcessPaymentCompleted(context.Background(), paymentFor("pay_"+name, li))
			pe, ok := usecase.AsProcessingError(err)
			require.True(t, ok, "err=%v", err)
			assert.True(t, pe.Permanent)
			assert.Equal(t, int64(5), testutil.AvailableUnits(t, e.db, tee.ID))
		})
	}
}

func TestOrder_AttachesMatchingUser(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.product(t, 1, "Tee", 1400)
	rec := testutil.SeedStock(t, e.db, 1, "", 5)
	user := testutil.SeedUser(t, e.db, "taro@example.com")

	p := paymentFor("pay_user", lineFor(rec, 1, 1400))
	p.Customer.Email = "Taro@Example.com"
	res, err := e.orders.ProcessPaymentCompleted(ctx, p)
	require.NoError(t, err)

	var order model.Order
	require.NoError(t, e.db.First(&order, res.OrderID).Error)
	require.NotNil(t, order.UserID)
	assert.Equal(t, user.ID, *order.UserID)

	list, err := e.orders.ListMyOrders(ctx, user.ID, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.Total)
	assert.Equal(t, 20, list.Limit)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "pay_user", list.Items[0].PaymentReferenceID)
	require.Len(t, list.Items[0].Items, 1)
	assert.Equal(t, "Tee", list.Items[0].Items[0].Name)
}

func TestOrder_ConcurrentSalesNeverOversell(t *testing.T) {
	e := newTestEnv(t)
	e.product(t, 1, "Tee", 1400)
	rec := testutil.SeedStock(t, e.db, 1, "", 5)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref := "pay_sale_" + string(rune('a'+i))
			_, err := e.orders.ProcessPaymentCompleted(context.Background(), paymentFor(ref, lineFor(rec, 2, 1400)))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
				return
			}
			if errors.Is(err, usecase.ErrStockUnderflow) {
				rejected++
			}
		}(i)
	}
	wg.Wait()
	e.orders.WaitNotifications()

	assert.Equal(t, 2, ok)
	assert.Equal(t, 6, rejected)
	assert.Equal(t, int64(1), testutil.AvailableUnits(t, e.db, rec.ID))
}

func TestOrder_NotifierFailureDoesNotFail(t *testing.T) {
	e := newTestEnv(t)
	e.product(t, 1, "Tee", 1400)
	rec := testutil.SeedStock(t, e.db, 1, "", 5)
	e.notifier.err = errors.New("broker down")

	res, err := e.orders.ProcessPaymentCompleted(context.Background(), paymentFor("pay_notify", lineFor(rec, 1, 1400)))
	require.NoError(t, err)
	e.orders.WaitNotifications()

	assert.NotZero(t, res.OrderID)
	assert.Len(t, e.notifier.sent(), 1)
	assert.Equal(t, int64(1), e.countOrders(t, "pay_notify"))
}

func TestOrder_ListRequiresUser(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.orders.ListMyOrders(context.Background(), 0, 1, 20)
	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, 401, he.Status)
}
