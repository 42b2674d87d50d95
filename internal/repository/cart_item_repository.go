package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type CartItemRepository interface {
	ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error)
	// 同一(product, variant)は数量を上書き
	SetLine(ctx context.Context, cartID int64, productID int64, variant string, qty int64, unitPrice int64) error
	// 同一(product, variant)は数量を加算
	AddToLine(ctx context.Context, cartID int64, productID int64, variant string, addQty int64, unitPrice int64) error
	UpdatePrice(ctx context.Context, cartItemID int64, unitPrice int64) error
	DeleteLine(ctx context.Context, cartID int64, productID int64, variant string) error
	DeleteByCartID(ctx context.Context, cartID int64) error
}
