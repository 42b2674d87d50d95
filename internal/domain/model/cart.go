package model

import "time"

// トークン1つにつき生きているカートは1つ
// UserIDがnilなら匿名カート
type Cart struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Token     string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"-"`
	UserID    *int64    `gorm:"index" json:"user_id"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (c Cart) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
