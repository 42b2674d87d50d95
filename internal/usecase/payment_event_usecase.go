package usecase

import (
	"context"
	"log/slog"

	"storefront/internal/webhook"
)

type PaymentCompletedProcessor interface {
	ProcessPaymentCompleted(ctx context.Context, p webhook.PaymentCompleted) (OrderResult, error)
}

// PaymentEventUsecase は検証済みイベントを種別ごとに振り分ける
type PaymentEventUsecase struct {
	orders PaymentCompletedProcessor
	log    *slog.Logger
}

func NewPaymentEventUsecase(orders PaymentCompletedProcessor, log *slog.Logger) *PaymentEventUsecase {
	return &PaymentEventUsecase{orders: orders, log: log}
}

// 知らない種別は受け取って何もしない
func (u *PaymentEventUsecase) Handle(ctx context.Context, ev webhook.Event) error {
	switch ev.Type {
	case webhook.TypePaymentCompleted:
		p, err := webhook.DecodePaymentCompleted(ev)
		if err != nil {
			return &ProcessingError{Reference: ev.ID, Permanent: true, Err: err}
		}

		res, err := u.orders.ProcessPaymentCompleted(ctx, p)
		if err != nil {
			return err
		}
		if res.Duplicate {
			u.log.InfoContext(ctx, "payment already processed",
				"event_id", ev.ID, "payment_reference_id", p.PaymentReferenceID, "order_id", res.OrderID)
		}
		return nil

	default:
		u.log.InfoContext(ctx, "webhook event ignored", "event_id", ev.ID, "type", ev.Type)
		return nil
	}
}
