package usecase

import (
	"errors"
	"fmt"
)

// handlerでHTTPステータスに変換するエラー
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

// 在庫不足。クライアントがメッセージをそのままパースするので文言は変えない
type StockShortfallError struct {
	ProductName string
	Variant     string
	Available   int64
}

func (e *StockShortfallError) Error() string {
	return fmt.Sprintf("Not enough stock for %s in %s. Only %d left.", e.ProductName, e.Variant, e.Available)
}

func AsStockShortfall(err error) (*StockShortfallError, bool) {
	var se *StockShortfallError
	ok := errors.As(err, &se)
	return se, ok
}

// 注文確定の失敗
// Permanentなら再送しても結果は変わらない（不正なペイロード、メタデータ不一致）
type ProcessingError struct {
	Reference string
	Permanent bool
	Err       error
}

func (e *ProcessingError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("process payment %s (%s): %v", e.Reference, kind, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

func AsProcessingError(err error) (*ProcessingError, bool) {
	var pe *ProcessingError
	ok := errors.As(err, &pe)
	return pe, ok
}

var (
	// 在庫が決済の間に売り切れた
	ErrStockUnderflow = errors.New("stock underflow")
	// メタデータの在庫レコードが商品・バリエーションと合わない
	ErrStockMismatch = errors.New("stock record does not match line metadata")
)
