package model

import "time"

// カートの明細
// (cart, product, variant)で1行。UnitPriceSnapshotはキャッシュなので決済前に必ず更新する。
type CartItem struct {
	ID                int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CartID            int64     `gorm:"not null;uniqueIndex:idx_cart_item_line" json:"cart_id"`
	ProductID         int64     `gorm:"not null;uniqueIndex:idx_cart_item_line" json:"product_id"`
	Variant           string    `gorm:"type:varchar(100);not null;default:'';uniqueIndex:idx_cart_item_line" json:"variant"`
	Quantity          int64     `gorm:"not null" json:"quantity"`
	UnitPriceSnapshot int64     `gorm:"not null;column:unit_price_snapshot" json:"unit_price_snapshot"`
	CreatedAt         time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
