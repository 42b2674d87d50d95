package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// 処理済みマーカーの保持期間。ゲートウェイの再送期間より長くする
const defaultMarkerTTL = 72 * time.Hour

// REDIS_URLからクライアントを作って疎通確認する
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// 処理済みのpayment_reference_id -> order_id
type ProcessedMarker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewProcessedMarker(client *redis.Client) *ProcessedMarker {
	return &ProcessedMarker{
		client: client,
		ttl:    defaultMarkerTTL,
	}
}

func (m *ProcessedMarker) Lookup(ctx context.Context, paymentReferenceID string) (int64, bool, error) {
	v, err := m.client.Get(ctx, markerKey(paymentReferenceID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get failed: %w", err)
	}

	orderID, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt marker %q: %w", v, err)
	}
	return orderID, true, nil
}

func (m *ProcessedMarker) Mark(ctx context.Context, paymentReferenceID string, orderID int64) error {
	if err := m.client.Set(ctx, markerKey(paymentReferenceID), strconv.FormatInt(orderID, 10), m.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func markerKey(paymentReferenceID string) string {
	return fmt.Sprintf("payment:processed:%s", paymentReferenceID)
}
