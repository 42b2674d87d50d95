package model

import "time"

type StockMovementReason string

const (
	// 決済完了による出庫
	StockMovementReasonOrder StockMovementReason = "ORDER"
)

// 在庫増減の履歴
type StockMovement struct {
	ID                 int64               `gorm:"primaryKey;autoIncrement" json:"id"`
	StockRecordID      int64               `gorm:"not null;index" json:"stock_record_id"`
	ProductID          int64               `gorm:"not null;index" json:"product_id"`
	Delta              int64               `gorm:"not null" json:"delta"`
	Reason             StockMovementReason `gorm:"type:varchar(50);not null" json:"reason"`
	PaymentReferenceID string              `gorm:"type:varchar(255);index" json:"payment_reference_id"`
	CreatedAt          time.Time           `gorm:"not null;autoCreateTime" json:"created_at"`
}
