// internal/pkg/marketclient/client.go
//
// Package marketclient talks to the upstream marketplace REST API on behalf of the
// authenticated caller. Every failure is returned as a taxonomy error from
// internal/pkg/errors so callers can branch with errors.Is.
package marketclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"boost-service/internal/domain/boost"
	xerrors "boost-service/internal/pkg/errors"
	"boost-service/internal/pkg/identity"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Observer records upstream call latency per operation and outcome code.
type Observer interface {
	ObserveUpstream(operation, outcome string, elapsed time.Duration)
}

// Client is a client for the marketplace API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	observer   Observer
}

// NewClient creates a new marketplace API client.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *Client) SetObserver(o Observer) { c.observer = o }

// ========== READS ==========

// ListPricing returns the promotion tier catalog.
func (c *Client) ListPricing(ctx context.Context) ([]boost.PricingTier, error) {
	var tiers []boost.PricingTier
	if err := c.do(ctx, "list_pricing", http.MethodGet, "/boosts/pricing", nil, nil, &tiers); err != nil {
		return nil, err
	}
	return tiers, nil
}

// GetSubscriptionCredits returns the caller's credit snapshot.
func (c *Client) GetSubscriptionCredits(ctx context.Context) (*boost.SubscriptionCredit, error) {
	var credits boost.SubscriptionCredit
	if err := c.do(ctx, "subscription_credits", http.MethodGet, "/boosts/subscription-credits", nil, nil, &credits); err != nil {
		return nil, err
	}
	return &credits, nil
}

// GetWallet returns the caller's wallet balance.
func (c *Client) GetWallet(ctx context.Context) (*boost.Wallet, error) {
	var wallet boost.Wallet
	if err := c.do(ctx, "wallet", http.MethodGet, "/wallet", nil, nil, &wallet); err != nil {
		return nil, err
	}
	return &wallet, nil
}

// CalculatePrice asks the upstream for the authoritative price of (type, days).
func (c *Client) CalculatePrice(ctx context.Context, t boost.Type, durationDays int) (*boost.Quote, error) {
	q := url.Values{}
	q.Set("type", string(t))
	q.Set("durationDays", strconv.Itoa(durationDays))

	var quote boost.Quote
	if err := c.do(ctx, "calculate_price", http.MethodGet, "/boosts/calculate-price?"+q.Encode(), nil, nil, &quote); err != nil {
		return nil, err
	}
	// The upstream answers with the price only; the pair it was computed for is ours.
	quote.Type = t
	quote.DurationDays = durationDays
	return &quote, nil
}

// ListMyBoosts returns every boost owned by the caller.
func (c *Client) ListMyBoosts(ctx context.Context) ([]boost.Boost, error) {
	var boosts []boost.Boost
	if err := c.do(ctx, "my_boosts", http.MethodGet, "/boosts/my-boosts", nil, nil, &boosts); err != nil {
		return nil, err
	}
	return boosts, nil
}

// ListExternalServices returns the external payment providers.
func (c *Client) ListExternalServices(ctx context.Context) ([]boost.PaymentProvider, error) {
	var providers []boost.PaymentProvider
	if err := c.do(ctx, "external_services", http.MethodGet, "/payments/external-services", nil, nil, &providers); err != nil {
		return nil, err
	}
	return providers, nil
}

// ========== WRITES ==========

// CreateBoost submits a purchase. idempotencyKey lets the upstream collapse retries of
// the same attempt. The result holds either the created boost or a redirect URL.
func (c *Client) CreateBoost(ctx context.Context, req boost.CreateBoostRequest, idempotencyKey string) (*boost.CreateBoostResult, error) {
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}

	var raw json.RawMessage
	if err := c.do(ctx, "create_boost", http.MethodPost, "/boosts", req, headers, &raw); err != nil {
		return nil, err
	}

	var shape struct {
		RedirectURL string       `json:"redirectUrl"`
		Boost       *boost.Boost `json:"boost"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, fmt.Errorf("%w: failed to decode create-boost response: %v", xerrors.ErrNetwork, err)
	}
	if shape.RedirectURL != "" {
		return &boost.CreateBoostResult{RedirectURL: shape.RedirectURL}, nil
	}
	if shape.Boost != nil && shape.Boost.ID != "" {
		return &boost.CreateBoostResult{Boost: shape.Boost}, nil
	}

	var created boost.Boost
	if err := json.Unmarshal(raw, &created); err != nil {
		return nil, fmt.Errorf("%w: failed to decode created boost: %v", xerrors.ErrNetwork, err)
	}
	if created.ID == "" {
		return nil, xerrors.Wrap(xerrors.ErrInternal, "create-boost response carried neither a boost nor a redirect")
	}
	return &boost.CreateBoostResult{Boost: &created}, nil
}

// ========== TRANSPORT ==========

func (c *Client) do(ctx context.Context, op, method, path string, body interface{}, headers map[string]string, out interface{}) (err error) {
	if c.baseURL == "" {
		return xerrors.Wrap(xerrors.ErrInternal, "marketplace base url is empty")
	}

	start := time.Now()
	defer func() {
		if c.observer != nil {
			outcome := "ok"
			if err != nil {
				outcome = xerrors.Code(err)
			}
			c.observer.ObserveUpstream(op, outcome, time.Since(start))
		}
	}()

	var reader io.Reader
	if body != nil {
		payload, mErr := json.Marshal(body)
		if mErr != nil {
			return fmt.Errorf("failed to marshal request: %w", mErr)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p, ok := identity.FromContext(ctx); ok && p.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.Token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("marketplace request failed",
			zap.String("operation", op),
			zap.String("path", path),
			zap.Error(err))
		return fmt.Errorf("%w: %s %s: %v", xerrors.ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: reading %s response: %v", xerrors.ErrNetwork, path, err)
	}

	if resp.StatusCode >= 400 {
		apiErr := parseAPIError(resp.StatusCode, data)
		c.logger.Info("marketplace returned error",
			zap.String("operation", op),
			zap.Int("status", resp.StatusCode),
			zap.String("code", apiErr.Code))
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(unwrapData(data), out); err != nil {
		return fmt.Errorf("%w: failed to decode %s response: %v", xerrors.ErrNetwork, op, err)
	}
	return nil
}

// unwrapData strips an optional {"data": ...} envelope.
func unwrapData(data []byte) []byte {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return data
	}
	trimmed := bytes.TrimSpace(env.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return data
	}
	return trimmed
}

// ========== ERRORS ==========

// APIError is an upstream error response. It unwraps to the matching taxonomy sentinel.
type APIError struct {
	Status  int
	Code    string
	Message string
	kind    error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("marketplace %d %s: %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("marketplace %d: %s", e.Status, msg)
}

func (e *APIError) Unwrap() error { return e.kind }

func parseAPIError(status int, data []byte) *APIError {
	var body struct {
		Message string          `json:"message"`
		Code    string          `json:"code"`
		Error   json.RawMessage `json:"error"`
	}
	_ = json.Unmarshal(data, &body)

	// Some endpoints nest {message, code} under "error", others put a string there.
	if len(body.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		}
		if json.Unmarshal(body.Error, &nested) == nil {
			if body.Message == "" {
				body.Message = nested.Message
			}
			if body.Code == "" {
				body.Code = nested.Code
			}
		} else {
			var s string
			if json.Unmarshal(body.Error, &s) == nil && body.Message == "" {
				body.Message = s
			}
		}
	}

	return &APIError{
		Status:  status,
		Code:    body.Code,
		Message: body.Message,
		kind:    classify(status, body.Code),
	}
}

// classify maps an upstream status and error code to the taxonomy. Codes win over
// status because the upstream reuses 400 for several business failures.
func classify(status int, code string) error {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "VALIDATION_ERROR":
		return xerrors.ErrValidation
	case "INSUFFICIENT_BALANCE", "INSUFFICIENT_FUNDS":
		return xerrors.ErrInsufficientFunds
	case "NO_SUBSCRIPTION_CREDITS", "CREDIT_EXHAUSTED":
		return xerrors.ErrCreditExhausted
	case "GATEWAY_ERROR", "PAYMENT_GATEWAY_ERROR":
		return xerrors.ErrGateway
	}

	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return xerrors.ErrValidation
	case http.StatusUnauthorized:
		return xerrors.ErrUnauthorized
	case http.StatusPaymentRequired:
		return xerrors.ErrInsufficientFunds
	case http.StatusForbidden:
		return xerrors.ErrForbidden
	case http.StatusNotFound:
		return xerrors.ErrNotFound
	case http.StatusConflict:
		return xerrors.ErrConflict
	case http.StatusTooManyRequests:
		return xerrors.ErrRateLimited
	case http.StatusBadGateway:
		return xerrors.ErrGateway
	}
	if status >= 500 {
		return xerrors.ErrNetwork
	}
	return xerrors.ErrBadRequest
}
