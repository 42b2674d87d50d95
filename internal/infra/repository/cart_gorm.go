package repository

import (
	"context"
	"errors"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CartGormRepository struct {
	db *gorm.DB
}

// DI
func NewCartGormRepository(db *gorm.DB) *CartGormRepository {
	return &CartGormRepository{db: db}
}

// トークンでカートを取得（期限切れかどうかは呼び出し側で判定）
func (r *CartGormRepository) FindByToken(ctx context.Context, token string) (model.Cart, error) {
	var cart model.Cart

	err := r.db.WithContext(ctx).
		Where("token = ?", token).
		First(&cart).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Cart{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Cart{}, err
	}
	return cart, nil
}

// ユーザーの期限内カートのうち一番新しいもの
func (r *CartGormRepository) FindLatestByUserID(ctx context.Context, userID int64, now time.Time) (model.Cart, error) {
	var cart model.Cart

	err := r.db.WithContext(ctx).
		Where("user_id = ? AND expires_at > ?", userID, now).
		Order("id desc").
		First(&cart).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Cart{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Cart{}, err
	}
	return cart, nil
}

func (r *CartGormRepository) Create(ctx context.Context, cart model.Cart) (model.Cart, error) {
	if err := r.db.WithContext(ctx).Create(&cart).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return model.Cart{}, repo.ErrDuplicate
		}
		return model.Cart{}, err
	}
	return cart, nil
}

// carts.expires_atを更新
func (r *CartGormRepository) Touch(ctx context.Context, cartID int64, expiresAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&model.Cart{}).
		Where("id = ?", cartID).
		Update("expires_at", expiresAt)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *CartGormRepository) AttachUser(ctx context.Context, cartID int64, userID int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.Cart{}).
		Where("id = ?", cartID).
		Update("user_id", userID)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 明細ごとカートを削除
func (r *CartGormRepository) Delete(ctx context.Context, cartID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("cart_id = ?", cartID).Delete(&model.CartItem{}).Error; err != nil {
			return err
		}

		res := tx.Delete(&model.Cart{}, cartID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repo.ErrNotFound
		}
		return nil
	})
}

// カート明細を一覧取得
func (r *CartGormRepository) ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error) {
	var items []model.CartItem

	if err := r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Order("id asc").
		Find(&items).Error; err != nil {
		return []model.CartItem{}, err
	}

	return items, nil
}

// 同一(product, variant)は数量を上書き
func (r *CartGormRepository) SetLine(ctx context.Context, cartID int64, productID int64, variant string, qty int64, unitPrice int64) error {
	return r.upsertLine(ctx, cartID, productID, variant, qty, unitPrice, func(current int64) int64 {
		return qty
	})
}

// 同一(product, variant)は数量加算
func (r *CartGormRepository) AddToLine(ctx context.Context, cartID int64, productID int64, variant string, addQty int64, unitPrice int64) error {
	return r.upsertLine(ctx, cartID, productID, variant, addQty, unitPrice, func(current int64) int64 {
		return current + addQty
	})
}

func (r *CartGormRepository) upsertLine(
	ctx context.Context,
	cartID int64,
	productID int64,
	variant string,
	qty int64,
	unitPrice int64,
	nextQty func(current int64) int64,
) error {
	if qty <= 0 {
		return errors.New("invalid quantity")
	}
	if unitPrice < 0 {
		return errors.New("invalid price")
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item model.CartItem

		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("cart_id = ? AND product_id = ? AND variant = ?", cartID, productID, variant).
			First(&item).Error

		if err == nil {
			// 既存ありだったら数量と価格を更新
			res := tx.Model(&model.CartItem{}).
				Where("id = ?", item.ID).
				Updates(map[string]interface{}{
					"quantity":            nextQty(item.Quantity),
					"unit_price_snapshot": unitPrice,
				})

			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return repo.ErrNotFound
			}
			return nil
		}

		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		//無い場合は新規作成
		now := time.Now()
		newItem := model.CartItem{
			CartID:            cartID,
			ProductID:         productID,
			Variant:           variant,
			Quantity:          qty,
			UnitPriceSnapshot: unitPrice,
			CreatedAt:         now,
			UpdatedAt:         now,
		}

		return tx.Create(&newItem).Error
	})
}

// 価格スナップショットだけ更新
func (r *CartGormRepository) UpdatePrice(ctx context.Context, cartItemID int64, unitPrice int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.CartItem{}).
		Where("id = ?", cartItemID).
		Update("unit_price_snapshot", unitPrice)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 明細を削除
func (r *CartGormRepository) DeleteLine(ctx context.Context, cartID int64, productID int64, variant string) error {
	res := r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ? AND variant = ?", cartID, productID, variant).
		Delete(&model.CartItem{})

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 指定カートの明細を全削除
func (r *CartGormRepository) DeleteByCartID(ctx context.Context, cartID int64) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&model.CartItem{}).Error
}
