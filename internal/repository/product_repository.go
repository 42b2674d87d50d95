package repository

import (
	"context"
	"errors"

	"storefront/internal/domain/model"
)

var ErrNotFound = errors.New("not found")

// 同じ一意キーの行がすでにある（注文の二重作成など）
var ErrDuplicate = errors.New("duplicate")

// GET /products の検索条件
type ProductListQuery struct {
	Page     int
	Limit    int
	Q        string
	MinPrice *int64
	MaxPrice *int64
	Sort     string // new / price_asc / price_desc
}

// カタログ価格の参照
type ProductRepository interface {
	FindByID(ctx context.Context, id int64) (model.Product, error)

	// 公開中の商品だけを返す
	ListPublic(ctx context.Context, q ProductListQuery) ([]model.Product, int64, error)
}
