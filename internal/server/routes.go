package server

import (
	"storefront/internal/handler"
	"storefront/internal/middleware"
	"storefront/internal/repository"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	Auth     *handler.AuthHandler
	Products *handler.ProductHandler
	Cart     *handler.CartHandler
	Checkout *handler.CheckoutHandler
	Orders   *handler.OrderHandler
	Webhook  *handler.WebhookHandler
	Health   *handler.HealthHandler
}

// RegisterRoutes はURLとハンドラを結びつける
// カートとチェックアウトはゲストも使えるのでJWTは任意
func RegisterRoutes(e *echo.Echo, h Handlers, jwtSecret string, userRepo repository.UserRepository) {
	h.Health.RegisterRoutes(e)
	h.Webhook.RegisterRoutes(e)
	h.Products.RegisterRoutes(e)
	h.Auth.RegisterRoutes(e.Group("/auth"))

	guest := []echo.MiddlewareFunc{
		middleware.OptionalAuthJWT(jwtSecret),
		middleware.TokenVersionGuard(userRepo, true),
	}
	h.Cart.RegisterRoutes(e.Group("/cart", guest...))
	h.Checkout.RegisterRoutes(e.Group("/checkout", guest...))

	h.Orders.RegisterRoutes(e.Group("/orders",
		middleware.AuthJWT(jwtSecret),
		middleware.TokenVersionGuard(userRepo, false),
	))
}
