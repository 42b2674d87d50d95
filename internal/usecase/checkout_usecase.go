package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"golang.org/x/sync/errgroup"
)

// 行の解決を並列にするときの上限
const defaultResolveConcurrency = 8

// 決済セッションに載せる1行。保存はしない
type CheckoutLineItem struct {
	Name      string
	Quantity  int64
	UnitPrice int64
	Currency  string
	Metadata  model.LineMetadata
}

type CheckoutOptions struct {
	Currency       string
	SuccessURL     string
	CancelURL      string
	ShippingRateID string
	Concurrency    int
}

type CheckoutInput struct {
	Token         string
	UserID        int64
	CustomerEmail string
	// 指定があればカートの代わりにこちらを使う。この場合カートはそのまま残る
	Lines []CartLineInput
}

// CheckoutUsecase はカートから価格付きの明細を作り、決済セッションを発行する。
// 在庫はこの時点では確認するだけで減らさない
type CheckoutUsecase struct {
	products repo.ProductRepository
	stock    repo.StockRepository
	carts    *CartUsecase
	gateway  PaymentGateway
	opts     CheckoutOptions
	log      *slog.Logger
}

func NewCheckoutUsecase(
	products repo.ProductRepository,
	stock repo.StockRepository,
	carts *CartUsecase,
	gateway PaymentGateway,
	opts CheckoutOptions,
	log *slog.Logger,
) *CheckoutUsecase {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultResolveConcurrency
	}
	return &CheckoutUsecase{
		products: products,
		stock:    stock,
		carts:    carts,
		gateway:  gateway,
		opts:     opts,
		log:      log,
	}
}

// BuildLineItems は各行の在庫レコードを引いて、カタログ価格と照合用メタデータを付ける。
// 同じ(product, variant)が複数行あれば数量を合算して在庫と比べる。
// 1行でも在庫が足りなければ全体を失敗にする（入力順で最初の行を返す）
func (u *CheckoutUsecase) BuildLineItems(ctx context.Context, lines []CartLineInput) ([]CheckoutLineItem, error) {
	if len(lines) == 0 {
		return nil, NewHTTPError(http.StatusBadRequest, "cart empty")
	}
	normalized := make([]CartLineInput, len(lines))
	wanted := make(map[lineKey]int64, len(lines))
	for i, in := range lines {
		in.Variant = strings.TrimSpace(in.Variant)
		if err := validateLine(in); err != nil {
			return nil, err
		}
		normalized[i] = in
		wanted[keyOf(in)] += in.Quantity
	}

	out := make([]CheckoutLineItem, len(normalized))
	lineErrs := make([]error, len(normalized))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.opts.Concurrency)

	for i, in := range normalized {
		g.Go(func() error {
			item, err := u.resolveLine(gctx, in, wanted[keyOf(in)])
			if err != nil {
				if isLineError(err) {
					lineErrs[i] = err
					return nil
				}
				return err
			}
			out[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	for _, err := range lineErrs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

type lineKey struct {
	productID int64
	variant   string
}

func keyOf(in CartLineInput) lineKey {
	return lineKey{productID: in.ProductID, variant: in.Variant}
}

// wantedは同じ在庫レコードを引く行の合計数量
func (u *CheckoutUsecase) resolveLine(ctx context.Context, in CartLineInput, wanted int64) (CheckoutLineItem, error) {
	p, err := u.products.FindByID(ctx, in.ProductID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && !p.IsActive) {
		return CheckoutLineItem{}, NewHTTPError(http.StatusBadRequest, "invalid product")
	}
	if err != nil {
		return CheckoutLineItem{}, err
	}

	rec, err := u.stock.FindForLine(ctx, in.ProductID, in.Variant)
	if errors.Is(err, repo.ErrNotFound) {
		//在庫レコードが無いのは在庫0と同じ
		return CheckoutLineItem{}, &StockShortfallError{
			ProductName: p.Name,
			Variant:     model.VariantLabel(in.Variant),
			Available:   0,
		}
	}
	if err != nil {
		return CheckoutLineItem{}, err
	}

	if wanted > rec.AvailableUnits {
		return CheckoutLineItem{}, &StockShortfallError{
			ProductName: p.Name,
			Variant:     rec.VariantLabel(),
			Available:   rec.AvailableUnits,
		}
	}

	return CheckoutLineItem{
		Name:      p.Name,
		Quantity:  in.Quantity,
		UnitPrice: p.Price,
		Currency:  u.opts.Currency,
		Metadata: model.LineMetadata{
			ProductID:     p.ID,
			Variant:       rec.Variant,
			StockRecordID: rec.ID,
			UnitPrice:     p.Price,
		},
	}, nil
}

// 利用者に返す検証エラー（それ以外はDBなどの失敗）
func isLineError(err error) bool {
	if _, ok := AsStockShortfall(err); ok {
		return true
	}
	_, ok := AsHTTPError(err)
	return ok
}

// CreateSession はカート（または指定された行）から決済セッションを作る
func (u *CheckoutUsecase) CreateSession(ctx context.Context, in CheckoutInput) (CheckoutSession, error) {
	lines := in.Lines
	//指定された行で買うときはカートと紐付けない（決済後にカートを消さない）
	clientRef := ""

	if len(lines) == 0 {
		cart, cartLines, err := u.carts.Snapshot(ctx, in.Token, in.UserID)
		if err != nil {
			return CheckoutSession{}, err
		}
		lines = cartLines
		clientRef = cart.Token
	}

	items, err := u.BuildLineItems(ctx, lines)
	if err != nil {
		return CheckoutSession{}, err
	}

	session, err := u.gateway.CreateSession(ctx, SessionRequest{
		Currency:          u.opts.Currency,
		SuccessURL:        u.opts.SuccessURL,
		CancelURL:         u.opts.CancelURL,
		ShippingRateID:    u.opts.ShippingRateID,
		ClientReferenceID: clientRef,
		CustomerEmail:     strings.TrimSpace(in.CustomerEmail),
		Lines:             items,
	})
	if err != nil {
		u.log.ErrorContext(ctx, "create checkout session failed", "err", err, "lines", len(items))
		return CheckoutSession{}, NewHTTPError(http.StatusBadGateway, "payment gateway unavailable")
	}
	return session, nil
}
