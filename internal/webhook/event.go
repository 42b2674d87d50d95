package webhook

import (
	"encoding/json"
	"errors"
	"fmt"

	"storefront/internal/domain/model"
)

// 処理対象のイベント種別
const TypePaymentCompleted = "payment.completed"

var ErrMalformedPayload = errors.New("malformed event payload")

// 通知の外側。Dataは種別ごとに中身が違う
type Event struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    json.RawMessage `json:"data"`
}

type Customer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type Shipping struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

// 購入明細。Metadataは決済作成時に付けた照合用の値がそのまま返ってくる
type LineItem struct {
	Description string            `json:"description"`
	Quantity    int64             `json:"quantity"`
	Metadata    map[string]string `json:"metadata"`
}

type PaymentCompleted struct {
	PaymentReferenceID string              `json:"payment_reference_id"`
	PaymentStatus      string              `json:"payment_status"`
	AmountTotal        int64               `json:"amount_total"`
	Currency           string              `json:"currency"`
	ClientReferenceID  string              `json:"client_reference_id"`
	Customer           Customer            `json:"customer"`
	ShippingAddress    model.PostalAddress `json:"shipping_address"`
	BillingAddress     model.PostalAddress `json:"billing_address"`
	Shipping           Shipping            `json:"shipping"`
	LineItems          []LineItem          `json:"line_items"`
}

// payment.completedのDataを取り出す
func DecodePaymentCompleted(ev Event) (PaymentCompleted, error) {
	if ev.Type != TypePaymentCompleted {
		return PaymentCompleted{}, fmt.Errorf("%w: unexpected type %q", ErrMalformedPayload, ev.Type)
	}

	var p PaymentCompleted
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		return PaymentCompleted{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.PaymentReferenceID == "" {
		return PaymentCompleted{}, fmt.Errorf("%w: payment_reference_id missing", ErrMalformedPayload)
	}
	if p.Customer.Email == "" {
		return PaymentCompleted{}, fmt.Errorf("%w: customer email missing", ErrMalformedPayload)
	}
	if len(p.LineItems) == 0 {
		return PaymentCompleted{}, fmt.Errorf("%w: no line items", ErrMalformedPayload)
	}
	for i, li := range p.LineItems {
		if li.Quantity <= 0 {
			return PaymentCompleted{}, fmt.Errorf("%w: line %d quantity %d", ErrMalformedPayload, i, li.Quantity)
		}
	}
	return p, nil
}
