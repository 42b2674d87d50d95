package model

import "time"

// 決済確定1件につき1つだけ作られる注文
// PaymentReferenceIDが冪等キー
type Order struct {
	ID                  int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID              *int64        `gorm:"index" json:"user_id"`
	CustomerEmail       string        `gorm:"type:varchar(255);not null;index" json:"customer_email"`
	CustomerName        string        `gorm:"type:varchar(255)" json:"customer_name"`
	TotalAmount         int64         `gorm:"not null" json:"total_amount"`
	Currency            string        `gorm:"type:varchar(3);not null" json:"currency"`
	ShippingAddress     PostalAddress `gorm:"embedded;embeddedPrefix:shipping_" json:"shipping_address"`
	BillingAddress      PostalAddress `gorm:"embedded;embeddedPrefix:billing_" json:"billing_address"`
	PaymentStatus       string        `gorm:"type:varchar(50);not null" json:"payment_status"`
	PaymentReferenceID  string        `gorm:"type:varchar(255);not null;uniqueIndex" json:"payment_reference_id"`
	ShippingCost        int64         `gorm:"not null;default:0" json:"shipping_cost"`
	ShippingDescription string        `gorm:"type:varchar(255)" json:"shipping_description"`
	Fulfilled           bool          `gorm:"not null;default:false" json:"fulfilled"`
	CreatedAt           time.Time     `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time     `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
