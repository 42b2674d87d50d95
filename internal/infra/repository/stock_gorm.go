package repository

import (
	"context"
	"errors"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type StockGormRepository struct {
	db *gorm.DB
}

func NewStockGormRepository(db *gorm.DB) *StockGormRepository {
	return &StockGormRepository{db: db}
}

// (product, variant)の在庫を取得
func (r *StockGormRepository) FindForLine(ctx context.Context, productID int64, variant string) (model.StockRecord, error) {
	var s model.StockRecord
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND variant = ?", productID, variant).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.StockRecord{}, repo.ErrNotFound
	}
	if err != nil {
		return model.StockRecord{}, err
	}
	return s, nil
}

func (r *StockGormRepository) FindByID(ctx context.Context, stockRecordID int64) (model.StockRecord, error) {
	var s model.StockRecord
	err := r.db.WithContext(ctx).First(&s, stockRecordID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.StockRecord{}, repo.ErrNotFound
	}
	if err != nil {
		return model.StockRecord{}, err
	}
	return s, nil
}

func (r *StockGormRepository) ListByProductID(ctx context.Context, productID int64) ([]model.StockRecord, error) {
	var out []model.StockRecord
	if err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("variant asc").
		Find(&out).Error; err != nil {
		return []model.StockRecord{}, err
	}
	return out, nil
}

// 在庫が足りるときだけ減らす
// 読んでから書くのではなく、条件付きUPDATE1本で行ロックを取る
func (r *StockGormRepository) DecreaseIfEnough(ctx context.Context, stockRecordID int64, qty int64) (bool, error) {
	if qty <= 0 {
		return false, errors.New("invalid quantity")
	}

	res := r.db.WithContext(ctx).
		Model(&model.StockRecord{}).
		Where("id = ? AND available_units >= ?", stockRecordID, qty).
		Update("available_units", gorm.Expr("available_units - ?", qty))

	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	return true, nil
}

// 増減履歴作成
func (r *StockGormRepository) CreateMovement(ctx context.Context, m model.StockMovement) error {
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return err
	}
	return nil
}
