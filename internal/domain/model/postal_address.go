package model

// 注文に埋め込む住所（配送先・請求先）
// 決済ゲートウェイから受け取った値をそのまま保存する。
type PostalAddress struct {
	Name       string `gorm:"type:varchar(255)" json:"name"`
	Line1      string `gorm:"type:varchar(255)" json:"line1"`
	Line2      string `gorm:"type:varchar(255)" json:"line2"`
	City       string `gorm:"type:varchar(255)" json:"city"`
	State      string `gorm:"type:varchar(100)" json:"state"`
	PostalCode string `gorm:"type:varchar(20)" json:"postal_code"`
	Country    string `gorm:"type:varchar(2)" json:"country"`
}
