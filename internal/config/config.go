package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	DatabaseURL string // DATABASE_URLかPOSTGRES_*から組み立てたDSN

	JWTSecret     string // JWT署名シークレット
	WebhookSecret string // 決済ゲートウェイと共有する署名鍵

	GoEnv    string // dev/prod
	LogLevel string // debug/info/warn/error
	FEURL    string // フロントURL（決済後の戻り先、CORS）

	Currency         string
	CartTTL          time.Duration // カートの有効期限（更新のたびに延長）
	WebhookTolerance time.Duration // 署名タイムスタンプの許容ずれ

	GatewayBaseURL string // 空ならゲートウェイ呼び出しは無効
	GatewayAPIKey  string
	GatewayTimeout time.Duration
	ShippingRateID string

	RedisURL     string   // 空なら処理済みマーカーを使わない
	KafkaBrokers []string // 空なら通知はログのみ
	NotifyTopic  string

	CookieSecure bool
}

// Loadは環境変数
func Load() (Config, error) {
	cfg := Config{
		Port: os.Getenv("PORT"),

		JWTSecret:     os.Getenv("JWT_SECRET"),
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),

		GoEnv:    getenv("GO_ENV", "dev"),
		LogLevel: getenv("LOG_LEVEL", "info"),
		FEURL:    strings.TrimRight(getenv("FE_URL", "http://localhost:3000"), "/"),

		Currency: strings.ToLower(getenv("CURRENCY", "jpy")),

		GatewayBaseURL: strings.TrimRight(os.Getenv("GATEWAY_BASE_URL"), "/"),
		GatewayAPIKey:  os.Getenv("GATEWAY_API_KEY"),
		ShippingRateID: os.Getenv("SHIPPING_RATE_ID"),

		RedisURL:    os.Getenv("REDIS_URL"),
		NotifyTopic: getenv("NOTIFY_TOPIC", "order-confirmed"),
	}

	var err error
	if cfg.CartTTL, err = durationOr("CART_TTL", 14*24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.WebhookTolerance, err = durationOr("WEBHOOK_TOLERANCE", 5*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.GatewayTimeout, err = durationOr("GATEWAY_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.CookieSecure, err = boolOr("COOKIE_SECURE", true); err != nil {
		return Config{}, err
	}
	cfg.KafkaBrokers = splitList(os.Getenv("KAFKA_BROKERS"))

	if cfg.DatabaseURL, err = databaseURL(); err != nil {
		return Config{}, err
	}

	//必須チェック
	if cfg.Port == "" {
		return Config{}, fmt.Errorf("PORT is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.WebhookSecret == "" {
		return Config{}, fmt.Errorf("WEBHOOK_SECRET is required")
	}

	return cfg, nil
}

func (c Config) IsProd() bool {
	return c.GoEnv == "prod"
}

// DATABASE_URL があれば最優先で使う
func databaseURL() (string, error) {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn, nil
	}

	for _, key := range []string{"POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB", "POSTGRES_HOST"} {
		if os.Getenv(key) == "" {
			return "", fmt.Errorf("%s is required", key)
		}
	}
	pgPort, err := mustAtoi("POSTGRES_PORT")
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		os.Getenv("POSTGRES_HOST"),
		pgPort,
		os.Getenv("POSTGRES_USER"),
		os.Getenv("POSTGRES_PASSWORD"),
		os.Getenv("POSTGRES_DB"),
		getenv("POSTGRES_SSLMODE", "disable"),
	), nil
}

func getenv(key string, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func mustAtoi(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func durationOr(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be duration: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func boolOr(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be bool: %w", key, err)
	}
	return b, nil
}

// カンマ区切り。空要素は捨てる
func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
