package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error)
	// payment_reference_idが重複したらErrDuplicate
	Create(ctx context.Context, order model.Order) (int64, error)

	//冪等キーで検索
	FindByPaymentReference(ctx context.Context, reference string) (model.Order, bool, error)
}
