package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
	"storefront/internal/webhook"
)

// 通知1件あたりの上限
const defaultNotifyTimeout = 10 * time.Second

// 決済完了後のカート片付け
type CartDiscarder interface {
	DiscardByToken(ctx context.Context, token string) error
}

type OrderUsecase struct {
	tx       repo.TransactionManager
	orders   repo.OrderRepository
	items    repo.OrderItemRepository
	marker   ProcessedMarker
	notifier OrderNotifier
	carts    CartDiscarder
	clock    Clock
	log      *slog.Logger

	notifyTimeout time.Duration
	pending       sync.WaitGroup
}

// markerとcartsはnilでもよい
func NewOrderUsecase(
	tx repo.TransactionManager,
	orders repo.OrderRepository,
	items repo.OrderItemRepository,
	marker ProcessedMarker,
	notifier OrderNotifier,
	carts CartDiscarder,
	clock Clock,
	log *slog.Logger,
) *OrderUsecase {
	return &OrderUsecase{
		tx:            tx,
		orders:        orders,
		items:         items,
		marker:        marker,
		notifier:      notifier,
		carts:         carts,
		clock:         clock,
		log:           log,
		notifyTimeout: defaultNotifyTimeout,
	}
}

type OrderResult struct {
	OrderID   int64 `json:"order_id"`
	Duplicate bool  `json:"duplicate"`
}

type OrderItemOutput struct {
	ProductID int64  `json:"product_id"`
	Variant   string `json:"variant"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
}

type OrderOutput struct {
	ID                 int64               `json:"id"`
	PaymentReferenceID string              `json:"payment_reference_id"`
	PaymentStatus      string              `json:"payment_status"`
	TotalAmount        int64               `json:"total_amount"`
	Currency           string              `json:"currency"`
	ShippingCost       int64               `json:"shipping_cost"`
	ShippingAddress    model.PostalAddress `json:"shipping_address"`
	Fulfilled          bool                `json:"fulfilled"`
	CreatedAt          time.Time           `json:"created_at"`
	Items              []OrderItemOutput   `json:"items"`
}

type OrderListOutput struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// トランザクションを巻き戻して重複扱いにするための目印
var errAlreadyMaterialized = errors.New("order already materialized")

// 解決済みの1行
type resolvedLine struct {
	meta        model.LineMetadata
	quantity    int64
	description string
}

// ProcessPaymentCompleted は決済完了イベントから注文を1件だけ作る。
// 注文・明細・在庫減算は1トランザクションで、どれか失敗すれば全部戻す。
// 同じpayment_reference_idの再送は何もしない
func (u *OrderUsecase) ProcessPaymentCompleted(ctx context.Context, p webhook.PaymentCompleted) (OrderResult, error) {
	ref := p.PaymentReferenceID

	if u.marker != nil {
		orderID, found, err := u.marker.Lookup(ctx, ref)
		if err != nil {
			u.log.WarnContext(ctx, "processed marker lookup failed", "payment_reference_id", ref, "err", err)
		} else if found {
			return OrderResult{OrderID: orderID, Duplicate: true}, nil
		}
	}

	existing, found, err := u.orders.FindByPaymentReference(ctx, ref)
	if err != nil {
		return OrderResult{}, &ProcessingError{Reference: ref, Err: err}
	}
	if found {
		u.mark(ctx, ref, existing.ID)
		return OrderResult{OrderID: existing.ID, Duplicate: true}, nil
	}

	lines := make([]resolvedLine, 0, len(p.LineItems))
	for _, li := range p.LineItems {
		meta, err := model.ParseLineMetadata(li.Metadata)
		if err != nil {
			return OrderResult{}, &ProcessingError{Reference: ref, Permanent: true, Err: err}
		}
		if li.Quantity <= 0 {
			return OrderResult{}, &ProcessingError{Reference: ref, Permanent: true, Err: fmt.Errorf("invalid quantity %d", li.Quantity)}
		}
		lines = append(lines, resolvedLine{meta: meta, quantity: li.Quantity, description: li.Description})
	}

	var (
		orderID   int64
		items     []model.OrderItem
		confirmed time.Time
	)

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//メールが一致するアカウントがあれば紐づける（無ければゲスト注文）
		var userID *int64
		user, err := r.Users().FindByEmail(ctx, p.Customer.Email)
		switch {
		case err == nil && user != nil:
			id := user.ID
			userID = &id
		case errors.Is(err, repo.ErrUserNotFound):
		case err != nil:
			return err
		}

		confirmed = u.clock.Now()
		orderID, err = r.Orders().Create(ctx, model.Order{
			UserID:              userID,
			CustomerEmail:       strings.TrimSpace(p.Customer.Email),
			CustomerName:        p.Customer.Name,
			TotalAmount:         p.AmountTotal,
			Currency:            strings.ToLower(p.Currency),
			ShippingAddress:     p.ShippingAddress,
			BillingAddress:      p.BillingAddress,
			PaymentStatus:       p.PaymentStatus,
			PaymentReferenceID:  ref,
			ShippingCost:        p.Shipping.Amount,
			ShippingDescription: p.Shipping.Description,
			Fulfilled:           false,
		})
		if errors.Is(err, repo.ErrDuplicate) {
			return errAlreadyMaterialized
		}
		if err != nil {
			return err
		}

		items = make([]model.OrderItem, 0, len(lines))
		for _, l := range lines {
			item, err := u.materializeLine(ctx, r, ref, l)
			if err != nil {
				return err
			}
			items = append(items, item)
		}

		return r.OrderItems().CreateBulk(ctx, orderID, items)
	})

	if errors.Is(err, errAlreadyMaterialized) {
		//並行して届いた同じイベントが先にコミットした
		existing, found, ferr := u.orders.FindByPaymentReference(ctx, ref)
		if ferr != nil || !found {
			return OrderResult{}, &ProcessingError{Reference: ref, Err: fmt.Errorf("duplicate order not readable: %v", ferr)}
		}
		u.mark(ctx, ref, existing.ID)
		return OrderResult{OrderID: existing.ID, Duplicate: true}, nil
	}
	if err != nil {
		//在庫不足は入荷後の再送で通るので一時的な失敗として返す
		permanent := errors.Is(err, ErrStockMismatch)
		return OrderResult{}, &ProcessingError{Reference: ref, Permanent: permanent, Err: err}
	}

	u.log.InfoContext(ctx, "order created", "order_id", orderID, "payment_reference_id", ref, "lines", len(items))

	u.mark(ctx, ref, orderID)
	if u.carts != nil && p.ClientReferenceID != "" {
		if err := u.carts.DiscardByToken(ctx, p.ClientReferenceID); err != nil {
			u.log.WarnContext(ctx, "cart cleanup failed", "payment_reference_id", ref, "err", err)
		}
	}
	u.notify(ctx, OrderConfirmed{
		OrderID:            orderID,
		PaymentReferenceID: ref,
		CustomerEmail:      p.Customer.Email,
		CustomerName:       p.Customer.Name,
		TotalAmount:        p.AmountTotal,
		Currency:           strings.ToLower(p.Currency),
		Items:              toConfirmedItems(items),
		ConfirmedAt:        confirmed,
	})

	return OrderResult{OrderID: orderID}, nil
}

// メタデータから在庫レコードを引き直して減算し、明細を作る
func (u *OrderUsecase) materializeLine(ctx context.Context, r repo.TxRepos, ref string, l resolvedLine) (model.OrderItem, error) {
	rec, err := r.Stock().FindByID(ctx, l.meta.StockRecordID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.OrderItem{}, fmt.Errorf("%w: stock record %d not found", ErrStockMismatch, l.meta.StockRecordID)
	}
	if err != nil {
		return model.OrderItem{}, err
	}
	if rec.ProductID != l.meta.ProductID || rec.Variant != l.meta.Variant {
		return model.OrderItem{}, fmt.Errorf("%w: stock record %d is product %d/%q", ErrStockMismatch, rec.ID, rec.ProductID, rec.Variant)
	}

	//名前は表示用のスナップショット。商品が消えていたら明細の説明を使う
	name := l.description
	p, err := r.Products().FindByID(ctx, l.meta.ProductID)
	switch {
	case err == nil:
		name = p.Name
	case errors.Is(err, repo.ErrNotFound):
	default:
		return model.OrderItem{}, err
	}

	ok, err := r.Stock().DecreaseIfEnough(ctx, rec.ID, l.quantity)
	if err != nil {
		return model.OrderItem{}, err
	}
	if !ok {
		return model.OrderItem{}, fmt.Errorf("%w: %s in %s, wanted %d", ErrStockUnderflow, name, rec.VariantLabel(), l.quantity)
	}

	if err := r.Stock().CreateMovement(ctx, model.StockMovement{
		StockRecordID:      rec.ID,
		ProductID:          rec.ProductID,
		Delta:              -l.quantity,
		Reason:             model.StockMovementReasonOrder,
		PaymentReferenceID: ref,
	}); err != nil {
		return model.OrderItem{}, err
	}

	return model.OrderItem{
		ProductID:           rec.ProductID,
		StockRecordID:       rec.ID,
		VariantDescriptor:   rec.Variant,
		ProductNameSnapshot: name,
		UnitPrice:           l.meta.UnitPrice,
		Quantity:            l.quantity,
	}, nil
}

func (u *OrderUsecase) mark(ctx context.Context, ref string, orderID int64) {
	if u.marker == nil {
		return
	}
	if err := u.marker.Mark(ctx, ref, orderID); err != nil {
		u.log.WarnContext(ctx, "processed marker write failed", "payment_reference_id", ref, "err", err)
	}
}

// 通知は待たない。失敗してもログだけ
func (u *OrderUsecase) notify(ctx context.Context, msg OrderConfirmed) {
	if u.notifier == nil {
		return
	}

	u.pending.Add(1)
	go func() {
		defer u.pending.Done()

		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.notifyTimeout)
		defer cancel()

		if err := u.notifier.NotifyOrderConfirmed(nctx, msg); err != nil {
			u.log.Error("order notification failed",
				"order_id", msg.OrderID, "payment_reference_id", msg.PaymentReferenceID, "err", err)
		}
	}()
}

// 送信中の通知が終わるまで待つ（シャットダウン用）
func (u *OrderUsecase) WaitNotifications() {
	u.pending.Wait()
}

// ListMyOrders はログインユーザーの注文履歴
func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID int64, page int, limit int) (OrderListOutput, error) {
	if userID <= 0 {
		return OrderListOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 50 {
		limit = 20
	}

	orders, total, err := u.orders.ListByUserID(ctx, userID, page, limit)
	if err != nil {
		return OrderListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	outs := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		items, err := u.items.ListByOrderID(ctx, o.ID)
		if err != nil {
			return OrderListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}
		outs = append(outs, toOrderOutput(o, items))
	}

	return OrderListOutput{Items: outs, Total: total, Page: page, Limit: limit}, nil
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID: it.ProductID,
			Variant:   it.VariantDescriptor,
			Name:      it.ProductNameSnapshot,
			Price:     it.UnitPrice,
			Quantity:  it.Quantity,
		})
	}

	return OrderOutput{
		ID:                 o.ID,
		PaymentReferenceID: o.PaymentReferenceID,
		PaymentStatus:      o.PaymentStatus,
		TotalAmount:        o.TotalAmount,
		Currency:           o.Currency,
		ShippingCost:       o.ShippingCost,
		ShippingAddress:    o.ShippingAddress,
		Fulfilled:          o.Fulfilled,
		CreatedAt:          o.CreatedAt,
		Items:              outItems,
	}
}

func toConfirmedItems(items []model.OrderItem) []OrderConfirmedItem {
	out := make([]OrderConfirmedItem, 0, len(items))
	for _, it := range items {
		out = append(out, OrderConfirmedItem{
			ProductID: it.ProductID,
			Name:      it.ProductNameSnapshot,
			Variant:   it.VariantDescriptor,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		})
	}
	return out
}
