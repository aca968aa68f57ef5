package paymob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Domenick1991/travelbooking/config"
)

// Auth tokens are valid for an hour; refresh a little earlier.
const tokenTTL = 50 * time.Minute

type Customer struct {
	Name  string
	Email string
	Phone string
}

type SessionRequest struct {
	AmountCents       int64
	Currency          string
	MerchantReference string
	Customer          Customer
}

type Session struct {
	IframeURL string
	OrderID   string
}

// Error is a non-2xx answer from the Paymob API.
type Error struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("paymob %s: status %d: %s", e.Operation, e.StatusCode, e.Message)
}

type Client struct {
	baseURL       string
	apiKey        string
	integrationID int64
	iframeID      int64
	sessionTTL    time.Duration
	httpClient    *http.Client
	tokens        *tokenLoader
}

func NewClient(cfg config.PaymobConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	}
	c := &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		integrationID: cfg.IntegrationID,
		iframeID:      cfg.IframeID,
		sessionTTL:    time.Duration(cfg.SessionTTLSeconds) * time.Second,
		httpClient:    httpClient,
	}
	c.tokens = newTokenLoader(tokenTTL, c.authenticate)
	return c
}

// CreateIframeSession registers an order and a payment key and returns the hosted page URL.
func (c *Client) CreateIframeSession(ctx context.Context, req SessionRequest) (*Session, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var order struct {
		ID int64 `json:"id"`
	}
	err = c.post(ctx, "create order", "/api/ecommerce/orders", map[string]any{
		"auth_token":        token,
		"delivery_needed":   false,
		"amount_cents":      req.AmountCents,
		"currency":          req.Currency,
		"merchant_order_id": req.MerchantReference,
		"items":             []any{},
	}, &order)
	if err != nil {
		return nil, c.invalidateOnAuth(err)
	}

	first, last := splitName(req.Customer.Name)
	var key struct {
		Token string `json:"token"`
	}
	err = c.post(ctx, "create payment key", "/api/acceptance/payment_keys", map[string]any{
		"auth_token":     token,
		"amount_cents":   req.AmountCents,
		"expiration":     int64(c.sessionTTL.Seconds()),
		"order_id":       order.ID,
		"currency":       req.Currency,
		"integration_id": c.integrationID,
		"billing_data": map[string]string{
			"first_name":      first,
			"last_name":       last,
			"email":           orNA(req.Customer.Email),
			"phone_number":    orNA(req.Customer.Phone),
			"apartment":       "NA",
			"floor":           "NA",
			"street":          "NA",
			"building":        "NA",
			"shipping_method": "NA",
			"postal_code":     "NA",
			"city":            "NA",
			"country":         "NA",
			"state":           "NA",
		},
	}, &key)
	if err != nil {
		return nil, c.invalidateOnAuth(err)
	}

	return &Session{
		IframeURL: fmt.Sprintf("%s/api/acceptance/iframes/%d?payment_token=%s", c.baseURL, c.iframeID, key.Token),
		OrderID:   strconv.FormatInt(order.ID, 10),
	}, nil
}

func (c *Client) authenticate(ctx context.Context) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.post(ctx, "authenticate", "/api/auth/tokens", map[string]string{"api_key": c.apiKey}, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", &Error{Operation: "authenticate", StatusCode: http.StatusOK, Message: "empty token"}
	}
	return resp.Token, nil
}

func (c *Client) invalidateOnAuth(err error) error {
	var pe *Error
	if errors.As(err, &pe) && pe.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate()
	}
	return err
}

func (c *Client) post(ctx context.Context, operation, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("paymob %s: marshal request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("paymob %s: build request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("paymob %s: %w", operation, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("paymob %s: read response: %w", operation, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Operation: operation, StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("paymob %s: decode response: %w", operation, err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Detail != "" {
			return parsed.Detail
		}
	}
	return strings.TrimSpace(string(body))
}

func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "NA", "NA"
	case 1:
		return parts[0], "NA"
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

func orNA(s string) string {
	if s == "" {
		return "NA"
	}
	return s
}
