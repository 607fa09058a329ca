// Package paymentprovider реализует HTTP-клиент биллинга (Stripe API).
// Исходящие вызовы ограничены таймаутом и не ретраятся: ошибка
// возвращается вызывающему как upstream_unavailable.
package paymentprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/magabrotheeeer/access-gate/internal/apperr"
)

const defaultAPIURL = "https://api.stripe.com/v1"

// Client — клиент API биллинга.
type Client struct {
	secretKey  string
	apiURL     string
	httpClient *http.Client
}

// NewClient создаёт новый клиент биллинга с таймаутом на запрос.
func NewClient(secretKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		secretKey:  secretKey,
		apiURL:     defaultAPIURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetAPIURL переопределяет адрес API. Используется в тестах.
func (c *Client) SetAPIURL(apiURL string) {
	c.apiURL = strings.TrimRight(apiURL, "/")
}

// CreateCustomer создаёт клиента биллинга для пользователя.
func (c *Client) CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error) {
	const op = "paymentprovider.CreateCustomer"

	form := url.Values{}
	form.Set("email", params.Email)
	form.Set("metadata[user_uid]", params.UserUID)

	var customer Customer
	if err := c.postForm(ctx, "/customers", form, &customer); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &customer, nil
}

// CreateCheckoutSession создаёт checkout-сессию подписки и возвращает URL
// для перенаправления пользователя.
func (c *Client) CreateCheckoutSession(ctx context.Context, params CreateCheckoutSessionParams) (*CheckoutSession, error) {
	const op = "paymentprovider.CreateCheckoutSession"

	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("customer", params.CustomerID)
	form.Set("line_items[0][price]", params.PriceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	form.Set("client_reference_id", params.ClientReferenceID)
	form.Set("metadata[user_uid]", params.UserUID)
	form.Set("subscription_data[metadata][user_uid]", params.UserUID)

	var session CheckoutSession
	if err := c.postForm(ctx, "/checkout/sessions", form, &session); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &session, nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstreamUnavailable, "billing provider call failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return apperr.New(apperr.KindUpstreamUnavailable,
			"billing provider returned "+resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return apperr.Wrap(apperr.KindUpstreamUnavailable, "billing provider response malformed", err)
	}
	return nil
}
