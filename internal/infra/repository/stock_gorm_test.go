package repository_test

import (
	"context"
	"testing"

	"storefront/internal/domain/model"
	infraRepo "storefront/internal/infra/repository"
	repo "storefront/internal/repository"
	"storefront/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStockGormRepository_FindForLine(t *testing.T) {
	ctx := context.Background()
	gormDB := testutil.NewDB(t)
	p := testutil.SeedProduct(t, gormDB, "Tee", 1400)
	productLevel := testutil.SeedStock(t, gormDB, p.ID, "", 3)
	large := testutil.SeedStock(t, gormDB, p.ID, "Large", 10)

	r := infraRepo.NewStockGormRepository(gormDB)

	got, err := r.FindForLine(ctx, p.ID, "Large")
	require.NoError(t, err)
	assert.Equal(t, large.ID, got.ID)
	assert.Equal(t, int64(10), got.AvailableUnits)

	got, err = r.FindForLine(ctx, p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, productLevel.ID, got.ID)

	_, err = r.FindForLine(ctx, p.ID, "Small")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestStockGormRepository_DecreaseIfEnough(t *testing.T) {
	ctx := context.Background()
	gormDB := testutil.NewDB(t)
	p := testutil.SeedProduct(t, gormDB, "Mug", 800)
	s := testutil.SeedStock(t, gormDB, p.ID, "", 5)

	r := infraRepo.NewStockGormRepository(gormDB)

	ok, err := r.DecreaseIfEnough(ctx, s.ID, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(2), testutil.AvailableUnits(t, gormDB, s.ID))

	//足りない場合は減らさない
	ok, err = r.DecreaseIfEnough(ctx, s.ID, 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(2), testutil.AvailableUnits(t, gormDB, s.ID))

	//ちょうど0まで
	ok, err = r.DecreaseIfEnough(ctx, s.ID, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(0), testutil.AvailableUnits(t, gormDB, s.ID))

	_, err = r.DecreaseIfEnough(ctx, s.ID, 0)
	assert.Error(t, err)
}

func TestStockGormRepository_CreateMovement(t *testing.T) {
	ctx := context.Background()
	gormDB := testutil.NewDB(t)
	p := testutil.SeedProduct(t, gormDB, "Cap", 500)
	s := testutil.SeedStock(t, gormDB, p.ID, "", 5)

	r := infraRepo.NewStockGormRepository(gormDB)
	require.NoError(t, r.CreateMovement(ctx, model.StockMovement{
		StockRecordID:      s.ID,
		ProductID:          p.ID,
		Delta:              -2,
		Reason:             model.StockMovementReasonOrder,
		PaymentReferenceID: "pi_1",
	}))

	var got []model.StockMovement
	require.NoError(t, gormDB.Where("stock_record_id = ?", s.ID).Find(&got).Error)
	require.Len(t, got, 1)
	assert.Equal(t, int64(-2), got[0].Delta)
	assert.Equal(t, "pi_1", got[0].PaymentReferenceID)
}
