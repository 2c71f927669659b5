package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/karhabty/karhabty-backend/internal/config"
)

// Client talks to the payment provider over HTTP. All calls share one
// http.Client with the configured timeout; a timed-out call is surfaced as
// ErrTimeout and never retried here.
type Client struct {
	baseURL    string
	apiKey     string
	hmacSecret string
	iframeID   string
	httpClient *http.Client
	log        *logrus.Logger
}

func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	return &Client{
		baseURL:    cfg.GatewayBaseURL,
		apiKey:     cfg.GatewayAPIKey,
		hmacSecret: cfg.GatewayHMACSecret,
		iframeID:   cfg.IframeID,
		httpClient: &http.Client{Timeout: cfg.GatewayTimeout},
		log:        log,
	}
}

// Authenticate exchanges the merchant API key for a short-lived auth token.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.postJSON(ctx, "/auth/tokens", map[string]string{"api_key": c.apiKey}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("gateway: empty auth token")
	}
	return resp.Token, nil
}

// CreateOrder registers an order and returns the gateway-assigned order id.
// The merchant reference is echoed back on webhooks and is our
// reconciliation key; the order id is not.
func (c *Client) CreateOrder(ctx context.Context, authToken string, amountCents int64, merchantRef string) (int64, error) {
	body := map[string]interface{}{
		"auth_token":        authToken,
		"delivery_needed":   false,
		"amount_cents":      amountCents,
		"currency":          "EGP",
		"merchant_order_id": merchantRef,
		"items":             []interface{}{},
	}
	var resp struct {
		ID int64 `json:"id"`
	}
	if err := c.postJSON(ctx, "/ecommerce/orders", body, &resp); err != nil {
		return 0, err
	}
	if resp.ID == 0 {
		return 0, fmt.Errorf("gateway: order not created")
	}
	return resp.ID, nil
}

// CreatePaymentKey obtains a payment token scoped to one order and one
// integration. Pass the saved-card token when charging a stored card.
func (c *Client) CreatePaymentKey(ctx context.Context, authToken string, orderID, amountCents int64, integrationID string, billing BillingData, savedCardToken string) (string, error) {
	body := map[string]interface{}{
		"auth_token":   authToken,
		"amount_cents": amountCents,
		"expiration":   3600,
		"order_id":     orderID,
		"currency":     "EGP",
		"billing_data": map[string]string{
			"first_name":   orDash(billing.FirstName),
			"last_name":    orDash(billing.LastName),
			"email":        orDash(billing.Email),
			"phone_number": orDash(billing.PhoneNumber),
			"street":       "NA",
			"building":     "NA",
			"floor":        "NA",
			"apartment":    "NA",
			"city":         "NA",
			"country":      "NA",
		},
		"integration_id": integrationID,
	}
	if savedCardToken != "" {
		body["token"] = savedCardToken
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.postJSON(ctx, "/acceptance/payment_keys", body, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("gateway: empty payment key")
	}
	return resp.Token, nil
}

// PayCardToken performs the synchronous charge of a saved card.
func (c *Client) PayCardToken(ctx context.Context, savedCardToken, paymentKey string) (*ChargeResult, error) {
	body := map[string]interface{}{
		"source": map[string]string{
			"identifier": savedCardToken,
			"subtype":    "TOKEN",
		},
		"payment_token": paymentKey,
	}
	var resp struct {
		ID      int64 `json:"id"`
		Success bool  `json:"success"`
		Pending bool  `json:"pending"`
		Order   struct {
			ID int64 `json:"id"`
		} `json:"order"`
		Data struct {
			Message string `json:"message"`
		} `json:"data"`
	}
	if err := c.postJSON(ctx, "/acceptance/payments/pay", body, &resp); err != nil {
		return nil, err
	}
	return &ChargeResult{
		Success:       resp.Success,
		Pending:       resp.Pending,
		TransactionID: fmt.Sprintf("%d", resp.ID),
		OrderID:       resp.Order.ID,
		Message:       resp.Data.Message,
	}, nil
}

// IframeURL builds the hosted-payment page URL for a payment key.
func (c *Client) IframeURL(paymentKey string) string {
	return fmt.Sprintf("%s/acceptance/iframes/%s?payment_token=%s", c.baseURL, c.iframeID, paymentKey)
}

// ChargeSavedCard implements the PaymentGateway port: auth, order, key, pay.
func (c *Client) ChargeSavedCard(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	orderID, err := c.CreateOrder(ctx, token, req.AmountCents, req.MerchantRef)
	if err != nil {
		return nil, err
	}
	paymentKey, err := c.CreatePaymentKey(ctx, token, orderID, req.AmountCents, req.IntegrationID, req.Billing, req.CardToken)
	if err != nil {
		return nil, err
	}
	result, err := c.PayCardToken(ctx, req.CardToken, paymentKey)
	if err != nil {
		return nil, err
	}
	result.OrderID = orderID
	return result, nil
}

// HostedPaymentURL implements the PaymentGateway port: auth, order, key,
// iframe URL. The charge itself completes asynchronously via the webhook.
func (c *Client) HostedPaymentURL(ctx context.Context, req IntentRequest) (string, int64, error) {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return "", 0, err
	}
	orderID, err := c.CreateOrder(ctx, token, req.AmountCents, req.MerchantRef)
	if err != nil {
		return "", 0, err
	}
	paymentKey, err := c.CreatePaymentKey(ctx, token, orderID, req.AmountCents, req.IntegrationID, req.Billing, "")
	if err != nil {
		return "", 0, err
	}
	return c.IframeURL(paymentKey), orderID, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			c.log.WithFields(logrus.Fields{"path": path, "elapsed": time.Since(start)}).Warn("gateway call timed out")
			return ErrTimeout
		}
		return fmt.Errorf("gateway: %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("gateway: %s: reading response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("gateway: %s: status %d: %s", path, resp.StatusCode, string(raw))
	}
	return json.Unmarshal(raw, out)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func orDash(s string) string {
	if s == "" {
		return "NA"
	}
	return s
}
