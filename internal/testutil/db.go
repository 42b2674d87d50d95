// Package testutil はテスト用のDBとシードデータを用意する。
package testutil

import (
	"testing"

	"storefront/internal/domain/model"
	"storefront/internal/infra/db"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// インメモリSQLiteにマイグレーション済みのDBを作る
// 接続を1本に絞るのでトランザクションは直列に実行される
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	gormDB, err := gorm.Open(sqlite.Open(":memory:"), db.Config())
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(gormDB))
	return gormDB
}

func SeedProduct(t *testing.T, gormDB *gorm.DB, name string, price int64) model.Product {
	t.Helper()

	p := model.Product{Name: name, Price: price, IsActive: true}
	require.NoError(t, gormDB.Create(&p).Error)
	return p
}

func SeedStock(t *testing.T, gormDB *gorm.DB, productID int64, variant string, units int64) model.StockRecord {
	t.Helper()

	s := model.StockRecord{ProductID: productID, Variant: variant, AvailableUnits: units}
	require.NoError(t, gormDB.Create(&s).Error)
	return s
}

func SeedUser(t *testing.T, gormDB *gorm.DB, email string) model.User {
	t.Helper()

	u := model.User{Email: email, PasswordHash: "x", Role: model.RoleUser, IsActive: true}
	require.NoError(t, gormDB.Create(&u).Error)
	return u
}

// 現在の在庫数
func AvailableUnits(t *testing.T, gormDB *gorm.DB, stockRecordID int64) int64 {
	t.Helper()

	var s model.StockRecord
	require.NoError(t, gormDB.First(&s, stockRecordID).Error)
	return s.AvailableUnits
}
