package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"storefront/internal/handler"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/logger"
	"storefront/internal/middleware"
	"storefront/internal/testutil"
	"storefront/internal/usecase"
	auth "storefront/internal/usecase/auth_usecase"
	"storefront/internal/validator"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	jwtSecret     = "jwt-test-secret"
	webhookSecret = "whsec_test"
	cartTTL       = 14 * 24 * time.Hour
)

type stubGateway struct {
	mu   sync.Mutex
	reqs []usecase.SessionRequest
}

func (g *stubGateway) CreateSession(ctx context.Context, req usecase.SessionRequest) (usecase.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reqs = append(g.reqs, req)
	return usecase.CheckoutSession{ID: "cs_1", URL: "https://pay.example.com/cs_1"}, nil
}

func (g *stubGateway) last() usecase.SessionRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reqs[len(g.reqs)-1]
}

type app struct {
	e       *echo.Echo
	db      *gorm.DB
	gateway *stubGateway
	orders  *usecase.OrderUsecase
}

// DBから下は本物、ゲートウェイだけ差し替える
func newApp(t *testing.T) *app {
	t.Helper()

	gormDB := testutil.NewDB(t)
	log := logger.Discard()
	clock := usecase.SystemClock{}

	userRepo := infraRepo.NewUserGormRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	stockRepo := infraRepo.NewStockGormRepository(gormDB)
	cartRepo := infraRepo.NewCartGormRepository(gormDB)
	tx := infraRepo.NewTxManagerGorm(gormDB)

	gw := &stubGateway{}
	carts := usecase.NewCartUsecase(tx, cartRepo, cartRepo, productRepo, clock, cartTTL, log)
	checkout := usecase.NewCheckoutUsecase(productRepo, stockRepo, carts, gw, usecase.CheckoutOptions{Currency: "jpy"}, log)
	orders := usecase.NewOrderUsecase(tx,
		infraRepo.NewOrderGormRepository(gormDB),
		infraRepo.NewOrderItemGormRepository(gormDB),
		nil, nil, carts, clock, log)
	events := usecase.NewPaymentEventUsecase(orders, log)

	credentials := validator.NewCredentialsValidator()
	registerUC := auth.NewRegisterUserUsecase(userRepo, credentials, auth.NewBcryptPasswordHasher(4), clock)
	loginUC := auth.NewLoginUsecase(userRepo, credentials, auth.NewBcryptPasswordVerifier(), auth.NewJWTIssuer(jwtSecret), carts, clock)

	e := echo.New()
	handler.NewWebhookHandler(events, webhookSecret, 0, log).RegisterRoutes(e)
	handler.NewProductHandler(usecase.NewProductUsecase(productRepo, stockRepo)).RegisterRoutes(e)
	handler.NewAuthHandler(registerUC, loginUC, cartTTL, false).RegisterRoutes(e.Group("/auth"))
	handler.NewCartHandler(carts, cartTTL, false).RegisterRoutes(e.Group("/cart", middleware.OptionalAuthJWT(jwtSecret)))
	handler.NewCheckoutHandler(checkout).RegisterRoutes(e.Group("/checkout", middleware.OptionalAuthJWT(jwtSecret)))
	handler.NewOrderHandler(orders).RegisterRoutes(e.Group("/orders", middleware.AuthJWT(jwtSecret)))

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	handler.NewHealthHandler(sqlDB).RegisterRoutes(e)

	return &app{e: e, db: gormDB, gateway: gw, orders: orders}
}

type reqOpt func(r *http.Request)

func withCookie(name, value string) reqOpt {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: name, Value: value}) }
}

func withHeader(name, value string) reqOpt {
	return func(r *http.Request) { r.Header.Set(name, value) }
}

func (a *app) do(t *testing.T, method, path, body string, opts ...reqOpt) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, o := range opts {
		o(req)
	}

	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func cookieValue(rec *httptest.ResponseRecorder, name string) string {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}
