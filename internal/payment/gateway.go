package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// Client wraps the gateway's preference-creation and payment-lookup APIs. It
// is an explicit instance constructed with credentials; nothing in this
// package holds global state.
type Client struct {
	BaseURL     string
	AccessToken string
	HTTP        *http.Client
	MaxAttempts int
	RetryWait   time.Duration
}

func NewClient(baseURL, accessToken string) *Client {
	return &Client{
		BaseURL:     baseURL,
		AccessToken: accessToken,
		HTTP:        &http.Client{Timeout: 10 * time.Second},
		MaxAttempts: 3,
		RetryWait:   500 * time.Millisecond,
	}
}

func (c *Client) CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error) {
	var pref Preference
	if err := c.do(ctx, http.MethodPost, "/checkout/preferences", req, &pref); err != nil {
		return nil, err
	}
	return &pref, nil
}

// paymentWire matches the gateway response; the payment id comes over the
// wire as a number.
type paymentWire struct {
	ID                json.Number     `json:"id"`
	Status            Status          `json:"status"`
	StatusDetail      string          `json:"status_detail"`
	ExternalReference string          `json:"external_reference"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
}

func (w paymentWire) payment() *Payment {
	return &Payment{
		ID:                w.ID.String(),
		Status:            w.Status,
		StatusDetail:      w.StatusDetail,
		ExternalReference: w.ExternalReference,
		TransactionAmount: w.TransactionAmount,
	}
}

// FetchPayment is the authoritative status lookup used by reconciliation.
func (c *Client) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var w paymentWire
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(paymentID), nil, &w); err != nil {
		return nil, err
	}
	return w.payment(), nil
}

// SearchPaymentByReference finds the newest payment carrying the given
// external reference (our order id). Returns (nil, nil) when the gateway has
// no payment for it yet.
func (c *Client) SearchPaymentByReference(ctx context.Context, ref string) (*Payment, error) {
	var res struct {
		Results []paymentWire `json:"results"`
	}
	path := "/v1/payments/search?sort=date_created&criteria=desc&external_reference=" + url.QueryEscape(ref)
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	if len(res.Results) == 0 {
		return nil, nil
	}
	return res.Results[0].payment(), nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = b
	}

	attempts := c.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	wait := c.RetryWait

	var last *GatewayError
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return &GatewayError{Kind: KindTimeout, Message: ctx.Err().Error()}
			case <-time.After(wait):
			}
			wait *= 2
		}

		gerr, done := c.attempt(ctx, method, path, body, out)
		if done {
			return nil
		}
		if !gerr.Transient() {
			return gerr
		}
		last = gerr
	}
	return last
}

// attempt runs one HTTP round trip; done=true means success.
func (c *Client) attempt(ctx context.Context, method, path string, body []byte, out any) (gerr *GatewayError, done bool) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return &GatewayError{Kind: KindRejected, Message: err.Error()}, false
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		kind := KindUnavailable
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() || errors.Is(err, context.DeadlineExceeded) {
			kind = KindTimeout
		}
		return &GatewayError{Kind: kind, Message: err.Error()}, false
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil, true
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &GatewayError{Kind: KindRejected, StatusCode: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}, false
		}
		return nil, true
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &GatewayError{Kind: KindUnavailable, StatusCode: resp.StatusCode, Message: string(b)}, false
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &GatewayError{Kind: KindRejected, StatusCode: resp.StatusCode, Message: string(b)}, false
	}
}
