package handler

import (
	"net/http"
	"time"

	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// カートトークンを入れるcookie名
const CartCookieName = "cart_token"

// /cartのHTTP。ゲストも使えるのでトークンはcookieで受け渡す
type CartHandler struct {
	uc           *usecase.CartUsecase
	ttl          time.Duration
	cookieSecure bool
}

// DI
func NewCartHandler(uc *usecase.CartUsecase, ttl time.Duration, cookieSecure bool) *CartHandler {
	return &CartHandler{uc: uc, ttl: ttl, cookieSecure: cookieSecure}
}

type SyncCartRequest struct {
	Items []usecase.CartLineInput `json:"items"`
}

type RemoveCartItemRequest struct {
	ProductID int64  `json:"product_id"`
	Variant   string `json:"variant"`
}

// /cart, /cart/items を登録
func (h *CartHandler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.getCart)
	g.PUT("", h.syncCart)
	g.DELETE("", h.clearCart)
	g.POST("/items", h.addItem)
	g.PUT("/items", h.setItem)
	g.DELETE("/items", h.removeItem)
}

func (h *CartHandler) getCart(c echo.Context) error {
	userID, _ := getUserIDFromContext(c)

	out, err := h.uc.GetCart(c.Request().Context(), cartToken(c), userID)
	if err != nil {
		return writeError(c, err)
	}
	return h.respond(c, out)
}

func (h *CartHandler) addItem(c echo.Context) error {
	userID, _ := getUserIDFromContext(c)

	var req usecase.CartLineInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.AddItem(c.Request().Context(), cartToken(c), userID, req)
	if err != nil {
		return writeError(c, err)
	}
	return h.respond(c, out)
}

func (h *CartHandler) setItem(c echo.Context) error {
	userID, _ := getUserIDFromContext(c)

	var req usecase.CartLineInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.SetItem(c.Request().Context(), cartToken(c), userID, req)
	if err != nil {
		return writeError(c, err)
	}
	return h.respond(c, out)
}

func (h *CartHandler) removeItem(c echo.Context) error {
	userID, _ := getUserIDFromContext(c)

	var req RemoveCartItemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.RemoveItem(c.Request().Context(), cartToken(c), userID, req.ProductID, req.Variant)
	if err != nil {
		return writeError(c, err)
	}
	return h.respond(c, out)
}

// クライアント側で持っていたカートをまとめて反映する
func (h *CartHandler) syncCart(c echo.Context) error {
	userID, _ := getUserIDFromContext(c)

	var req SyncCartRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.SyncFromClient(c.Request().Context(), cartToken(c), userID, req.Items)
	if err != nil {
		return writeError(c, err)
	}
	return h.respond(c, out)
}

func (h *CartHandler) clearCart(c echo.Context) error {
	userID, _ := getUserIDFromContext(c)

	if err := h.uc.Clear(c.Request().Context(), cartToken(c), userID); err != nil {
		return writeError(c, err)
	}
	h.expireCookie(c)
	return c.NoContent(http.StatusNoContent)
}

// トークンが決まったらcookieを貼り直してから返す
func (h *CartHandler) respond(c echo.Context, out usecase.CartResponse) error {
	if out.Token != "" {
		setCartCookie(c, out.Token, h.ttl, h.cookieSecure)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) expireCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     CartCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func cartToken(c echo.Context) string {
	ck, err := c.Cookie(CartCookieName)
	if err != nil {
		return ""
	}
	return ck.Value
}

func setCartCookie(c echo.Context, token string, ttl time.Duration, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     CartCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(ttl),
	})
}
