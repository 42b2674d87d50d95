package usecase

import (
	"context"
	"time"
)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// 決済ゲートウェイ。グローバルなクライアントは持たずに注入する
type PaymentGateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (CheckoutSession, error)
}

type SessionRequest struct {
	Currency          string
	SuccessURL        string
	CancelURL         string
	ShippingRateID    string
	ClientReferenceID string // カートトークン。決済完了時にカートを片付けるのに使う
	CustomerEmail     string
	Lines             []CheckoutLineItem
}

type CheckoutSession struct {
	ID  string `json:"session_id"`
	URL string `json:"url"`
}

// 処理済みの決済参照IDを覚えておく高速パス
// 正はDBのユニーク制約なので、ここが落ちても処理は続ける
type ProcessedMarker interface {
	Lookup(ctx context.Context, paymentReferenceID string) (orderID int64, found bool, err error)
	Mark(ctx context.Context, paymentReferenceID string, orderID int64) error
}

// 注文確定の通知先（メール送信などは下流が担当）
type OrderNotifier interface {
	NotifyOrderConfirmed(ctx context.Context, msg OrderConfirmed) error
}

type OrderConfirmed struct {
	OrderID            int64                `json:"order_id"`
	PaymentReferenceID string               `json:"payment_reference_id"`
	CustomerEmail      string               `json:"customer_email"`
	CustomerName       string               `json:"customer_name"`
	TotalAmount        int64                `json:"total_amount"`
	Currency           string               `json:"currency"`
	Items              []OrderConfirmedItem `json:"items"`
	ConfirmedAt        time.Time            `json:"confirmed_at"`
}

type OrderConfirmedItem struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Variant   string `json:"variant"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int64  `json:"quantity"`
}
