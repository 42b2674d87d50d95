package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type StockRepository interface {
	// variantが空なら商品単位の在庫を返す
	FindForLine(ctx context.Context, productID int64, variant string) (model.StockRecord, error)

	FindByID(ctx context.Context, stockRecordID int64) (model.StockRecord, error)

	// 商品のバリエーション別在庫（variant昇順）
	ListByProductID(ctx context.Context, productID int64) ([]model.StockRecord, error)

	// 在庫が足りるときだけ減算（1本の条件付きUPDATE）
	DecreaseIfEnough(ctx context.Context, stockRecordID int64, qty int64) (bool, error)

	// 増減履歴作成
	CreateMovement(ctx context.Context, movement model.StockMovement) error
}
