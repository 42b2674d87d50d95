package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"storefront/internal/usecase"
	"storefront/internal/webhook"

	"github.com/labstack/echo/v4"
)

// 1リクエストで読む本文の上限
const maxWebhookBody = 1 << 20

type PaymentEventHandler interface {
	Handle(ctx context.Context, ev webhook.Event) error
}

// POST /webhooks/payment
// 署名を検証してからイベントを処理する。2xx以外はゲートウェイが再送する
type WebhookHandler struct {
	events    PaymentEventHandler
	secret    string
	tolerance time.Duration
	now       func() time.Time
	log       *slog.Logger
}

func NewWebhookHandler(events PaymentEventHandler, secret string, tolerance time.Duration, log *slog.Logger) *WebhookHandler {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &WebhookHandler{
		events:    events,
		secret:    secret,
		tolerance: tolerance,
		now:       time.Now,
		log:       log,
	}
}

type webhookAck struct {
	Received bool `json:"received"`
}

func (h *WebhookHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/webhooks/payment", h.receive)
}

func (h *WebhookHandler) receive(c echo.Context) error {
	ctx := c.Request().Context()

	//署名は生の本文に対して計算されているのでBindしない
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	ev, err := webhook.Verify(body, c.Request().Header.Get(webhook.SignatureHeader), h.secret, h.now(), h.tolerance)
	if err != nil {
		//理由はレスポンスに出さない
		h.log.WarnContext(ctx, "webhook rejected", "err", err, "remote_ip", c.RealIP())
		return c.NoContent(http.StatusBadRequest)
	}

	if err := h.events.Handle(ctx, ev); err != nil {
		status := http.StatusInternalServerError
		ref := ev.ID
		var pe *usecase.ProcessingError
		if errors.As(err, &pe) {
			ref = pe.Reference
			if pe.Permanent {
				status = http.StatusUnprocessableEntity
			}
		}
		h.log.ErrorContext(ctx, "webhook processing failed",
			"event_id", ev.ID, "payment_reference_id", ref, "status", status, "err", err)
		return c.JSON(status, ErrorResponse{Error: http.StatusText(status)})
	}

	return c.JSON(http.StatusOK, webhookAck{Received: true})
}
