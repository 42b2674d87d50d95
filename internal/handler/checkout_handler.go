package handler

import (
	"net/http"

	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// POST /checkout
type CheckoutHandler struct {
	uc *usecase.CheckoutUsecase
}

func NewCheckoutHandler(uc *usecase.CheckoutUsecase) *CheckoutHandler {
	return &CheckoutHandler{uc: uc}
}

// itemsを省略するとcookieのカートを使う
type CheckoutRequest struct {
	Email string                  `json:"email"`
	Items []usecase.CartLineInput `json:"items"`
}

func (h *CheckoutHandler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.create)
}

func (h *CheckoutHandler) create(c echo.Context) error {
	userID, _ := getUserIDFromContext(c)

	var req CheckoutRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
		}
	}

	session, err := h.uc.CreateSession(c.Request().Context(), usecase.CheckoutInput{
		Token:         cartToken(c),
		UserID:        userID,
		CustomerEmail: req.Email,
		Lines:         req.Items,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, session)
}
