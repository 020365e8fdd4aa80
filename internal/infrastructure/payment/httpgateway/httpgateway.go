package httpgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	authPath       = "/payment/auth"
	headerAPIKey   = "X-Api-Key"
	headerSecret   = "X-Secret-Key"
	statusSuccess  = "success"
	statusFailure  = "failure"
	maxReplyBytes  = 1 << 20
	defaultTimeout = 10 * time.Second
)

type Config struct {
	BaseURL   string
	APIKey    string
	SecretKey string
	Currency  string
	// Timeout bounds a single HTTP exchange. The coordinator applies its own deadline on top.
	Timeout time.Duration
}

type authRequest struct {
	ConversationID string          `json:"conversationId"`
	Price          decimal.Decimal `json:"price"`
	PaidPrice      decimal.Decimal `json:"paidPrice"`
	Currency       string          `json:"currency"`
	Installment    int             `json:"installment"`
}

type authReply struct {
	Status       string `json:"status"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
	AuthCode     string `json:"authCode"`
}

// Client charges a remote processor over JSON/HTTP.
type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config, hc *http.Client) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("httpgateway: base url is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Currency == "" {
		cfg.Currency = "TRY"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: hc}, nil
}

// Charge returns Approved or Declined for any answer the processor gave.
// Network errors, non-2xx replies and unreadable bodies come back as errors.
func (c *Client) Charge(ctx context.Context, ch dompay.Charge) (dompay.Result, error) {
	body, err := json.Marshal(authRequest{
		ConversationID: ch.OrderID,
		Price:          ch.Amount,
		PaidPrice:      ch.Amount,
		Currency:       c.cfg.Currency,
		Installment:    1,
	})
	if err != nil {
		return dompay.Result{}, fmt.Errorf("httpgateway: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+authPath, bytes.NewReader(body))
	if err != nil {
		return dompay.Result{}, fmt.Errorf("httpgateway: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerAPIKey, c.cfg.APIKey)
	req.Header.Set(headerSecret, c.cfg.SecretKey)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return dompay.Result{}, fmt.Errorf("httpgateway: call processor: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return dompay.Result{}, fmt.Errorf("httpgateway: read reply: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return dompay.Result{}, fmt.Errorf("httpgateway: processor returned %d", resp.StatusCode)
	}

	var reply authReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return dompay.Result{}, fmt.Errorf("httpgateway: decode reply: %w", err)
	}
	switch strings.ToLower(reply.Status) {
	case statusSuccess:
		code := reply.AuthCode
		if code == "" {
			code = reply.ErrorCode
		}
		return dompay.Approved(code), nil
	case statusFailure:
		reason := fmt.Sprintf("payment failed. errorCode=%s, errorMessage=%s", reply.ErrorCode, reply.ErrorMessage)
		return dompay.Declined(reply.ErrorCode, reason), nil
	default:
		return dompay.Result{}, fmt.Errorf("httpgateway: unknown status %q", reply.Status)
	}
}
