package model

import "time"

// 在庫数の唯一の正。
// Variantが空なら商品単位、値があればバリエーション単位（"Large" など）。
type StockRecord struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID      int64     `gorm:"not null;uniqueIndex:idx_stock_product_variant" json:"product_id"`
	Variant        string    `gorm:"type:varchar(100);not null;default:'';uniqueIndex:idx_stock_product_variant" json:"variant"`
	AvailableUnits int64     `gorm:"not null;check:available_units >= 0" json:"available_units"`
	CreatedAt      time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// 表示用のバリエーション名
func (s StockRecord) VariantLabel() string {
	return VariantLabel(s.Variant)
}

// 商品単位の在庫は "default" と表示する
func VariantLabel(variant string) string {
	if variant == "" {
		return "default"
	}
	return variant
}
