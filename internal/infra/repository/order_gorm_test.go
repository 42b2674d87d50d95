package repository_test

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/domain/model"
	infraRepo "storefront/internal/infra/repository"
	repo "storefront/internal/repository"
	"storefront/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderGormRepository_CreateAndFindByPaymentReference(t *testing.T) {
	ctx := context.Background()
	gormDB := testutil.NewDB(t)
	orders := infraRepo.NewOrderGormRepository(gormDB)
	items := infraRepo.NewOrderItemGormRepository(gormDB)

	_, found, err := orders.FindByPaymentReference(ctx, "pi_123")
	require.NoError(t, err)
	assert.False(t, found)

	id, err := orders.Create(ctx, model.Order{
		CustomerEmail:      "buyer@example.com",
		TotalAmount:        2800,
		Currency:           "jpy",
		PaymentStatus:      "paid",
		PaymentReferenceID: "pi_123",
		ShippingAddress:    model.PostalAddress{City: "Tokyo", Country: "JP"},
	})
	require.NoError(t, err)
	require.NoError(t, items.CreateBulk(ctx, id, []model.OrderItem{
		{ProductID: 7, StockRecordID: 1, VariantDescriptor: "Large", ProductNameSnapshot: "Tee", UnitPrice: 1400, Quantity: 2},
	}))

	got, found, err := orders.FindByPaymentReference(ctx, "pi_123")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id, got.ID)
	assert.False(t, got.Fulfilled)
	assert.Equal(t, "Tokyo", got.ShippingAddress.City)

	lines, err := items.ListByOrderID(ctx, id)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, int64(1400), lines[0].UnitPrice)
}

func TestOrderGormRepository_Create_RejectsSamePaymentReference(t *testing.T) {
	ctx := context.Background()
	orders := infraRepo.NewOrderGormRepository(testutil.NewDB(t))

	o := model.Order{CustomerEmail: "a@example.com", Currency: "jpy", PaymentStatus: "paid", PaymentReferenceID: "pi_dup"}
	_, err := orders.Create(ctx, o)
	require.NoError(t, err)

	_, err = orders.Create(ctx, o)
	assert.Error(t, err)
}

func TestOrderGormRepository_ListByUserID(t *testing.T) {
	ctx := context.Background()
	orders := infraRepo.NewOrderGormRepository(testutil.NewDB(t))
	uid := int64(5)

	for _, ref := range []string{"pi_a", "pi_b"} {
		_, err := orders.Create(ctx, model.Order{UserID: &uid, CustomerEmail: "u@example.com", Currency: "jpy", PaymentStatus: "paid", PaymentReferenceID: ref})
		require.NoError(t, err)
	}
	_, err := orders.Create(ctx, model.Order{CustomerEmail: "guest@example.com", Currency: "jpy", PaymentStatus: "paid", PaymentReferenceID: "pi_guest"})
	require.NoError(t, err)

	list, total, err := orders.ListByUserID(ctx, uid, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, list, 2)
	assert.Equal(t, "pi_b", list[0].PaymentReferenceID)
}

func TestTxManagerGorm_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	gormDB := testutil.NewDB(t)
	p := testutil.SeedProduct(t, gormDB, "Tee", 1400)
	s := testutil.SeedStock(t, gormDB, p.ID, "", 5)

	tm := infraRepo.NewTxManagerGorm(gormDB)
	boom := errors.New("boom")

	err := tm.WithinTx(ctx, func(r repo.TxRepos) error {
		if _, err := r.Orders().Create(ctx, model.Order{CustomerEmail: "x@example.com", Currency: "jpy", PaymentStatus: "paid", PaymentReferenceID: "pi_rb"}); err != nil {
			return err
		}
		if _, err := r.Stock().DecreaseIfEnough(ctx, s.ID, 2); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, found, err := infraRepo.NewOrderGormRepository(gormDB).FindByPaymentReference(ctx, "pi_rb")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, int64(5), testutil.AvailableUnits(t, gormDB, s.ID))
}

func TestUserGormRepository_FindByEmail(t *testing.T) {
	ctx := context.Background()
	gormDB := testutil.NewDB(t)
	u := testutil.SeedUser(t, gormDB, "Buyer@Example.com")

	users := infraRepo.NewUserGormRepository(gormDB)

	got, err := users.FindByEmail(ctx, "buyer@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = users.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, repo.ErrUserNotFound)
}
