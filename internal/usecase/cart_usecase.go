package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/google/uuid"
)

// CartUsecase はカートトークン単位のカート操作とログイン時のマージ。
// 価格は常にカタログから取り直し、クライアントの価格は信用しない。
type CartUsecase struct {
	tx       repo.TransactionManager
	carts    repo.CartRepository
	items    repo.CartItemRepository
	products repo.ProductRepository
	clock    Clock
	ttl      time.Duration
	log      *slog.Logger
	newToken func() string
}

func NewCartUsecase(
	tx repo.TransactionManager,
	carts repo.CartRepository,
	items repo.CartItemRepository,
	products repo.ProductRepository,
	clock Clock,
	ttl time.Duration,
	log *slog.Logger,
) *CartUsecase {
	return &CartUsecase{
		tx:       tx,
		carts:    carts,
		items:    items,
		products: products,
		clock:    clock,
		ttl:      ttl,
		log:      log,
		newToken: uuid.NewString,
	}
}

// 1行分の入力。variantが空なら商品単位
type CartLineInput struct {
	ProductID int64  `json:"product_id"`
	Variant   string `json:"variant"`
	Quantity  int64  `json:"quantity"`
}

type CartItemResponse struct {
	ProductID int64  `json:"product_id"`
	Variant   string `json:"variant"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
	Subtotal  int64  `json:"subtotal"`
}

// Tokenはcookieに入れるのでJSONには出さない
type CartResponse struct {
	Token     string             `json:"-"`
	Items     []CartItemResponse `json:"items"`
	Total     int64              `json:"total"`
	ExpiresAt *time.Time         `json:"expires_at,omitempty"`
}

// 期限内のカートを探す。期限切れは削除して見つからない扱い
// ユーザーに紐づいたカートは本人しか使えない
func (u *CartUsecase) find(ctx context.Context, token string, userID int64) (model.Cart, bool, error) {
	now := u.clock.Now()

	if token != "" {
		cart, err := u.carts.FindByToken(ctx, token)
		switch {
		case errors.Is(err, repo.ErrNotFound):
		case err != nil:
			return model.Cart{}, false, err
		case cart.IsExpired(now):
			if err := u.carts.Delete(ctx, cart.ID); err != nil && !errors.Is(err, repo.ErrNotFound) {
				return model.Cart{}, false, err
			}
		case cart.UserID != nil && *cart.UserID != userID:
			//他人のカートは見せない
		default:
			return cart, true, nil
		}
	}

	if userID > 0 {
		cart, err := u.carts.FindLatestByUserID(ctx, userID, now)
		if err == nil {
			return cart, true, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return model.Cart{}, false, err
		}
	}

	return model.Cart{}, false, nil
}

// Resolve はトークンのカートを返す。無い・期限切れなら新しいトークンで作り直す
func (u *CartUsecase) Resolve(ctx context.Context, token string, userID int64) (model.Cart, error) {
	cart, found, err := u.find(ctx, token, userID)
	if err != nil {
		return model.Cart{}, err
	}
	if found {
		return cart, nil
	}

	c := model.Cart{
		Token:     u.newToken(),
		ExpiresAt: u.clock.Now().Add(u.ttl),
	}
	if userID > 0 {
		uid := userID
		c.UserID = &uid
	}
	return u.carts.Create(ctx, c)
}

// GetCart は価格を最新化して返す。カートが無ければ作らずに空を返す
func (u *CartUsecase) GetCart(ctx context.Context, token string, userID int64) (CartResponse, error) {
	cart, found, err := u.find(ctx, token, userID)
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !found {
		return CartResponse{Items: []CartItemResponse{}}, nil
	}

	return u.buildCartResponse(ctx, cart, true)
}

// AddItem は同じ(product, variant)なら数量を加算
func (u *CartUsecase) AddItem(ctx context.Context, token string, userID int64, in CartLineInput) (CartResponse, error) {
	return u.mutateLine(ctx, token, userID, in, u.items.AddToLine)
}

// SetItem は数量を上書き
func (u *CartUsecase) SetItem(ctx context.Context, token string, userID int64, in CartLineInput) (CartResponse, error) {
	return u.mutateLine(ctx, token, userID, in, u.items.SetLine)
}

func (u *CartUsecase) mutateLine(
	ctx context.Context,
	token string,
	userID int64,
	in CartLineInput,
	write func(ctx context.Context, cartID int64, productID int64, variant string, qty int64, unitPrice int64) error,
) (CartResponse, error) {
	in.Variant = strings.TrimSpace(in.Variant)
	if err := validateLine(in); err != nil {
		return CartResponse{}, err
	}

	p, err := u.products.FindByID(ctx, in.ProductID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && !p.IsActive) {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid product")
	}
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	cart, err := u.Resolve(ctx, token, userID)
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if err := write(ctx, cart.ID, in.ProductID, in.Variant, in.Quantity, p.Price); err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	cart, err = u.touch(ctx, cart)
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return u.buildCartResponse(ctx, cart, false)
}

// RemoveItem は1行削除
func (u *CartUsecase) RemoveItem(ctx context.Context, token string, userID int64, productID int64, variant string) (CartResponse, error) {
	if productID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}

	cart, found, err := u.find(ctx, token, userID)
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !found {
		return CartResponse{}, NewHTTPError(http.StatusNotFound, "not found")
	}

	if err := u.items.DeleteLine(ctx, cart.ID, productID, strings.TrimSpace(variant)); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return CartResponse{}, NewHTTPError(http.StatusNotFound, "not found")
		}
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	cart, err = u.touch(ctx, cart)
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return u.buildCartResponse(ctx, cart, false)
}

// Clear はカートごと破棄する
func (u *CartUsecase) Clear(ctx context.Context, token string, userID int64) error {
	cart, found, err := u.find(ctx, token, userID)
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !found {
		return nil
	}

	if err := u.carts.Delete(ctx, cart.ID); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

// 決済完了後の片付け。ユーザーを問わずトークンだけで消す
func (u *CartUsecase) DiscardByToken(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	cart, err := u.carts.FindByToken(ctx, token)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	err = u.carts.Delete(ctx, cart.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	return err
}

// SyncFromClient はクライアント側のカートで行ごとに数量を上書きする。
// 価格はカタログの現在値。存在しない商品の行はスキップ
func (u *CartUsecase) SyncFromClient(ctx context.Context, token string, userID int64, lines []CartLineInput) (CartResponse, error) {
	normalized := make([]CartLineInput, len(lines))
	for i, in := range lines {
		in.Variant = strings.TrimSpace(in.Variant)
		if err := validateLine(in); err != nil {
			return CartResponse{}, err
		}
		normalized[i] = in
	}

	cart, err := u.Resolve(ctx, token, userID)
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		for _, in := range normalized {
			p, ok, err := u.liveProduct(ctx, r.Products(), in)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := r.CartItems().SetLine(ctx, cart.ID, in.ProductID, in.Variant, in.Quantity, p.Price); err != nil {
				return err
			}
		}
		return r.Carts().Touch(ctx, cart.ID, u.clock.Now().Add(u.ttl))
	})
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	cart.ExpiresAt = u.clock.Now().Add(u.ttl)
	return u.buildCartResponse(ctx, cart, false)
}

// Merge は行ごとに数量を足し込む。同じ行を2回マージすれば2倍になる
// 戻り値は取り込んだ行数
func (u *CartUsecase) Merge(ctx context.Context, target model.Cart, lines []CartLineInput) (int, error) {
	merged := 0
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		n, err := u.mergeInto(ctx, r, target.ID, lines)
		if err != nil {
			return err
		}
		merged = n
		return r.Carts().Touch(ctx, target.ID, u.clock.Now().Add(u.ttl))
	})
	if err != nil {
		return 0, err
	}
	return merged, nil
}

// MergeOnLogin は匿名カートをログインユーザーのカートに取り込む。
// ユーザーのカートが無ければ匿名カートをそのまま引き継ぐ。
// 匿名カートが空なら何もしない（消さない）
func (u *CartUsecase) MergeOnLogin(ctx context.Context, userID int64, anonymousToken string) (model.Cart, error) {
	if userID <= 0 {
		return model.Cart{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	now := u.clock.Now()
	expiresAt := now.Add(u.ttl)
	var result model.Cart

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var source *model.Cart
		if anonymousToken != "" {
			c, err := r.Carts().FindByToken(ctx, anonymousToken)
			switch {
			case errors.Is(err, repo.ErrNotFound):
			case err != nil:
				return err
			case c.IsExpired(now):
				if err := r.Carts().Delete(ctx, c.ID); err != nil {
					return err
				}
			case c.UserID == nil:
				source = &c
			case *c.UserID == userID:
				//もう本人のカート
				if err := r.Carts().Touch(ctx, c.ID, expiresAt); err != nil {
					return err
				}
				c.ExpiresAt = expiresAt
				result = c
				return nil
			}
		}

		target, err := r.Carts().FindLatestByUserID(ctx, userID, now)
		hasTarget := err == nil
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return err
		}

		switch {
		case !hasTarget && source == nil:
			uid := userID
			created, err := r.Carts().Create(ctx, model.Cart{Token: u.newToken(), UserID: &uid, ExpiresAt: expiresAt})
			if err != nil {
				return err
			}
			result = created
			return nil

		case !hasTarget:
			if err := r.Carts().AttachUser(ctx, source.ID, userID); err != nil {
				return err
			}
			if err := r.Carts().Touch(ctx, source.ID, expiresAt); err != nil {
				return err
			}
			uid := userID
			source.UserID = &uid
			source.ExpiresAt = expiresAt
			result = *source
			return nil

		case source == nil:
			result = target
			return nil
		}

		items, err := r.CartItems().ListByCartID(ctx, source.ID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			result = target
			return nil
		}

		lines := make([]CartLineInput, 0, len(items))
		for _, it := range items {
			lines = append(lines, CartLineInput{ProductID: it.ProductID, Variant: it.Variant, Quantity: it.Quantity})
		}
		if _, err := u.mergeInto(ctx, r, target.ID, lines); err != nil {
			return err
		}
		if err := r.Carts().Delete(ctx, source.ID); err != nil {
			return err
		}
		if err := r.Carts().Touch(ctx, target.ID, expiresAt); err != nil {
			return err
		}
		target.ExpiresAt = expiresAt
		result = target
		return nil
	})
	if err != nil {
		return model.Cart{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return result, nil
}

// 現在のカートの中身をチェックアウト用の行にする
func (u *CartUsecase) Snapshot(ctx context.Context, token string, userID int64) (model.Cart, []CartLineInput, error) {
	cart, found, err := u.find(ctx, token, userID)
	if err != nil {
		return model.Cart{}, nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !found {
		return model.Cart{}, nil, nil
	}

	items, err := u.items.ListByCartID(ctx, cart.ID)
	if err != nil {
		return model.Cart{}, nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	lines := make([]CartLineInput, 0, len(items))
	for _, it := range items {
		lines = append(lines, CartLineInput{ProductID: it.ProductID, Variant: it.Variant, Quantity: it.Quantity})
	}
	return cart, lines, nil
}

// 行ごとに加算。不正な行はスキップしてログだけ残す
func (u *CartUsecase) mergeInto(ctx context.Context, r repo.TxRepos, cartID int64, lines []CartLineInput) (int, error) {
	merged := 0
	for _, in := range lines {
		in.Variant = strings.TrimSpace(in.Variant)
		if in.Quantity < 1 || in.ProductID <= 0 {
			u.log.WarnContext(ctx, "merge line skipped",
				"cart_id", cartID, "product_id", in.ProductID, "quantity", in.Quantity, "reason", "invalid line")
			continue
		}

		p, ok, err := u.liveProduct(ctx, r.Products(), in)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}

		if err := r.CartItems().AddToLine(ctx, cartID, in.ProductID, in.Variant, in.Quantity, p.Price); err != nil {
			return 0, err
		}
		merged++
	}
	return merged, nil
}

// 販売中の商品を引く。無い・非公開ならスキップ扱い
func (u *CartUsecase) liveProduct(ctx context.Context, products repo.ProductRepository, in CartLineInput) (model.Product, bool, error) {
	p, err := products.FindByID(ctx, in.ProductID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && !p.IsActive) {
		u.log.WarnContext(ctx, "cart line skipped",
			"product_id", in.ProductID, "variant", in.Variant, "reason", "product unavailable")
		return model.Product{}, false, nil
	}
	if err != nil {
		return model.Product{}, false, err
	}
	return p, true, nil
}

func (u *CartUsecase) touch(ctx context.Context, cart model.Cart) (model.Cart, error) {
	expiresAt := u.clock.Now().Add(u.ttl)
	if err := u.carts.Touch(ctx, cart.ID, expiresAt); err != nil {
		return model.Cart{}, err
	}
	cart.ExpiresAt = expiresAt
	return cart, nil
}

// cartの明細をまとめてCartResponseを作る。
// refreshがtrueならスナップショット価格をカタログ価格に合わせて保存する
func (u *CartUsecase) buildCartResponse(ctx context.Context, cart model.Cart, refresh bool) (CartResponse, error) {
	items, err := u.items.ListByCartID(ctx, cart.ID)
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	respItems := make([]CartItemResponse, 0, len(items))
	var total int64 = 0

	for _, it := range items {
		p, err := u.products.FindByID(ctx, it.ProductID)
		if errors.Is(err, repo.ErrNotFound) || (err == nil && !p.IsActive) {
			continue
		}
		if err != nil {
			return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}

		price := it.UnitPriceSnapshot
		if refresh && price != p.Price {
			if err := u.items.UpdatePrice(ctx, it.ID, p.Price); err != nil {
				return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
			}
			price = p.Price
		}

		respItems = append(respItems, CartItemResponse{
			ProductID: it.ProductID,
			Variant:   it.Variant,
			Name:      p.Name,
			Price:     price,
			Quantity:  it.Quantity,
			Subtotal:  price * it.Quantity,
		})
		total += price * it.Quantity
	}

	expiresAt := cart.ExpiresAt
	return CartResponse{
		Token:     cart.Token,
		Items:     respItems,
		Total:     total,
		ExpiresAt: &expiresAt,
	}, nil
}

func validateLine(in CartLineInput) error {
	if in.ProductID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}
	if in.Quantity < 1 {
		return NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}
	if len(in.Variant) > 100 {
		return NewHTTPError(http.StatusBadRequest, "invalid variant")
	}
	return nil
}
