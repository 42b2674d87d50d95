package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"storefront/internal/usecase"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
)

var ErrNotConfigured = errors.New("payment gateway not configured")

// ゲートウェイが4xxを返した（入力の問題なのでブレーカーは開けない）
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Body)
}

type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// 決済セッション作成APIのHTTPクライアント。サーキットブレーカー付き
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker[usecase.CheckoutSession]
	newKey  func() string
}

func NewClient(opts Options, log *slog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[usecase.CheckoutSession](gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var se *StatusError
			return err == nil || errors.As(err, &se)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		baseURL: opts.BaseURL,
		apiKey:  opts.APIKey,
		http:    &http.Client{Timeout: opts.Timeout},
		cb:      cb,
		newKey:  uuid.NewString,
	}
}

type sessionLine struct {
	Name       string            `json:"name"`
	Quantity   int64             `json:"quantity"`
	UnitAmount int64             `json:"unit_amount"`
	Currency   string            `json:"currency"`
	Metadata   map[string]string `json:"metadata"`
}

type sessionRequest struct {
	Mode              string        `json:"mode"`
	Currency          string        `json:"currency"`
	SuccessURL        string        `json:"success_url"`
	CancelURL         string        `json:"cancel_url"`
	ClientReferenceID string        `json:"client_reference_id,omitempty"`
	CustomerEmail     string        `json:"customer_email,omitempty"`
	ShippingRateID    string        `json:"shipping_rate_id,omitempty"`
	LineItems         []sessionLine `json:"line_items"`
}

type sessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (c *Client) CreateSession(ctx context.Context, req usecase.SessionRequest) (usecase.CheckoutSession, error) {
	body := sessionRequest{
		Mode:              "payment",
		Currency:          req.Currency,
		SuccessURL:        req.SuccessURL,
		CancelURL:         req.CancelURL,
		ClientReferenceID: req.ClientReferenceID,
		CustomerEmail:     req.CustomerEmail,
		ShippingRateID:    req.ShippingRateID,
		LineItems:         make([]sessionLine, 0, len(req.Lines)),
	}
	for _, l := range req.Lines {
		body.LineItems = append(body.LineItems, sessionLine{
			Name:       l.Name,
			Quantity:   l.Quantity,
			UnitAmount: l.UnitPrice,
			Currency:   l.Currency,
			Metadata:   l.Metadata.ToMap(),
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return usecase.CheckoutSession{}, fmt.Errorf("marshal session request: %w", err)
	}

	// リトライされても同じセッションになるようにキーは1回の呼び出しで固定
	idemKey := c.newKey()

	return c.cb.Execute(func() (usecase.CheckoutSession, error) {
		return c.post(ctx, payload, idemKey)
	})
}

func (c *Client) post(ctx context.Context, payload []byte, idemKey string) (usecase.CheckoutSession, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkout/sessions", bytes.NewReader(payload))
	if err != nil {
		return usecase.CheckoutSession{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Idempotency-Key", idemKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return usecase.CheckoutSession{}, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return usecase.CheckoutSession{}, fmt.Errorf("read gateway response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return usecase.CheckoutSession{}, fmt.Errorf("gateway returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		return usecase.CheckoutSession{}, &StatusError{Status: resp.StatusCode, Body: string(raw)}
	}

	var out sessionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return usecase.CheckoutSession{}, fmt.Errorf("decode gateway response: %w", err)
	}
	if out.ID == "" || out.URL == "" {
		return usecase.CheckoutSession{}, errors.New("gateway response missing id or url")
	}
	return usecase.CheckoutSession{ID: out.ID, URL: out.URL}, nil
}

// GATEWAY_BASE_URL未設定のとき
type Disabled struct{}

func (Disabled) CreateSession(ctx context.Context, req usecase.SessionRequest) (usecase.CheckoutSession, error) {
	return usecase.CheckoutSession{}, ErrNotConfigured
}
