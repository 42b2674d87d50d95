package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/infra/cache"
	"storefront/internal/infra/db"
	"storefront/internal/infra/gateway"
	"storefront/internal/infra/notify"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/logger"
	"storefront/internal/server"
	"storefront/internal/usecase"
	auth "storefront/internal/usecase/auth_usecase"
	"storefront/internal/validator"

	"github.com/joho/godotenv"
)

// 終了時に待つ上限
const shutdownTimeout = 30 * time.Second

func main() {
	// .envは無くてもよい（本番は環境変数で渡す）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Service:   "storefront-api",
		Env:       cfg.GoEnv,
		Level:     cfg.LogLevel,
		AddSource: !cfg.IsProd(),
	})

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	//DB接続
	gormDB, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := db.Migrate(gormDB); err != nil {
		return err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	//Repository（GORM実装）生成
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	stockRepo := infraRepo.NewStockGormRepository(gormDB)
	cartRepo := infraRepo.NewCartGormRepository(gormDB)
	orderRepo := infraRepo.NewOrderGormRepository(gormDB)
	orderItemRepo := infraRepo.NewOrderItemGormRepository(gormDB)
	tx := infraRepo.NewTxManagerGorm(gormDB)

	clock := usecase.SystemClock{}

	//処理済みマーカー（Redis）。無ければDBだけで重複を判定する
	var marker usecase.ProcessedMarker
	if cfg.RedisURL != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		marker = cache.NewProcessedMarker(rdb)
	}

	//注文確定の通知先
	var notifier usecase.OrderNotifier = notify.NewLogNotifier(log)
	if len(cfg.KafkaBrokers) > 0 {
		kn := notify.NewKafkaNotifier(cfg.NotifyTopic, cfg.KafkaBrokers...)
		defer func() {
			if err := kn.Close(); err != nil {
				log.Error("kafka writer close failed", "err", err)
			}
		}()
		notifier = kn
	}

	//決済ゲートウェイ
	var gw usecase.PaymentGateway = gateway.Disabled{}
	if cfg.GatewayBaseURL != "" {
		gw = gateway.NewClient(gateway.Options{
			BaseURL: cfg.GatewayBaseURL,
			APIKey:  cfg.GatewayAPIKey,
			Timeout: cfg.GatewayTimeout,
		}, log)
	} else {
		log.Warn("GATEWAY_BASE_URL is empty; checkout is disabled")
	}

	//Usecase生成
	carts := usecase.NewCartUsecase(tx, cartRepo, cartRepo, productRepo, clock, cfg.CartTTL, log)
	checkout := usecase.NewCheckoutUsecase(productRepo, stockRepo, carts, gw, usecase.CheckoutOptions{
		Currency:       cfg.Currency,
		SuccessURL:     cfg.FEURL + "/checkout/success",
		CancelURL:      cfg.FEURL + "/cart",
		ShippingRateID: cfg.ShippingRateID,
	}, log)
	orders := usecase.NewOrderUsecase(tx, orderRepo, orderItemRepo, marker, notifier, carts, clock, log)
	events := usecase.NewPaymentEventUsecase(orders, log)

	credentials := validator.NewCredentialsValidator()
	registerUC := auth.NewRegisterUserUsecase(userRepo, credentials, auth.NewBcryptPasswordHasher(12), clock)
	loginUC := auth.NewLoginUsecase(userRepo, credentials, auth.NewBcryptPasswordVerifier(), auth.NewJWTIssuer(cfg.JWTSecret), carts, clock)

	//Handler生成
	e := server.New(log, []string{cfg.FEURL})
	server.RegisterRoutes(e, server.Handlers{
		Auth:     handler.NewAuthHandler(registerUC, loginUC, cfg.CartTTL, cfg.CookieSecure),
		Products: handler.NewProductHandler(usecase.NewProductUsecase(productRepo, stockRepo)),
		Cart:     handler.NewCartHandler(carts, cfg.CartTTL, cfg.CookieSecure),
		Checkout: handler.NewCheckoutHandler(checkout),
		Orders:   handler.NewOrderHandler(orders),
		Webhook:  handler.NewWebhookHandler(events, cfg.WebhookSecret, cfg.WebhookTolerance, log),
		Health:   handler.NewHealthHandler(sqlDB),
	}, cfg.JWTSecret, userRepo)

	//Server起動
	addr := ":" + strings.TrimPrefix(cfg.Port, ":")
	log.Info("server starting", "addr", addr)

	return server.Start(ctx, e, addr, func(base context.Context) error {
		sctx, cancel := context.WithTimeout(base, shutdownTimeout)
		defer cancel()

		log.Info("shutting down")
		err := e.Shutdown(sctx)
		//送信中の注文通知を待ってからKafkaを閉じる
		orders.WaitNotifications()
		return err
	})
}
