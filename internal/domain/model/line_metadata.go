package model

import (
	"errors"
	"fmt"
	"strconv"
)

// 決済ゲートウェイの明細に付けて往復させる照合用メタデータのキー
const (
	MetaProductID     = "product_id"
	MetaVariant       = "variant"
	MetaStockRecordID = "stock_record_id"
	MetaUnitPrice     = "unit_price"
)

var ErrInvalidLineMetadata = errors.New("invalid line metadata")

// 照合用メタデータ
// ゲートウェイからは文字列のmapとしてそのまま返ってくる。
type LineMetadata struct {
	ProductID     int64
	Variant       string
	StockRecordID int64
	UnitPrice     int64
}

func (m LineMetadata) ToMap() map[string]string {
	return map[string]string{
		MetaProductID:     strconv.FormatInt(m.ProductID, 10),
		MetaVariant:       m.Variant,
		MetaStockRecordID: strconv.FormatInt(m.StockRecordID, 10),
		MetaUnitPrice:     strconv.FormatInt(m.UnitPrice, 10),
	}
}

// ゲートウェイから戻ったmapを復元する。variantは空でもよい
func ParseLineMetadata(raw map[string]string) (LineMetadata, error) {
	productID, err := parsePositive(raw, MetaProductID)
	if err != nil {
		return LineMetadata{}, err
	}
	stockRecordID, err := parsePositive(raw, MetaStockRecordID)
	if err != nil {
		return LineMetadata{}, err
	}

	priceRaw, ok := raw[MetaUnitPrice]
	if !ok {
		return LineMetadata{}, fmt.Errorf("%w: %s missing", ErrInvalidLineMetadata, MetaUnitPrice)
	}
	price, err := strconv.ParseInt(priceRaw, 10, 64)
	if err != nil || price < 0 {
		return LineMetadata{}, fmt.Errorf("%w: %s=%q", ErrInvalidLineMetadata, MetaUnitPrice, priceRaw)
	}

	return LineMetadata{
		ProductID:     productID,
		Variant:       raw[MetaVariant],
		StockRecordID: stockRecordID,
		UnitPrice:     price,
	}, nil
}

func parsePositive(raw map[string]string, key string) (int64, error) {
	v, ok := raw[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s missing", ErrInvalidLineMetadata, key)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidLineMetadata, key, v)
	}
	return n, nil
}
