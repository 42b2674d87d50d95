package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

type CartRepository interface {
	FindByToken(ctx context.Context, token string) (model.Cart, error)
	// ユーザーに紐づく一番新しい期限内カート
	FindLatestByUserID(ctx context.Context, userID int64, now time.Time) (model.Cart, error)
	Create(ctx context.Context, cart model.Cart) (model.Cart, error)
	// 有効期限を延ばす
	Touch(ctx context.Context, cartID int64, expiresAt time.Time) error
	AttachUser(ctx context.Context, cartID int64, userID int64) error
	// カートと明細を削除
	Delete(ctx context.Context, cartID int64) error
}
