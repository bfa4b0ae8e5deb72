package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/taskpay/internal/errs"
)

// Config holds custodial gateway connection settings.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client talks to a custodial wallet gateway over its JSON API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type errorResponse struct {
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}

type balanceResponse struct {
	Address string          `json:"address"`
	Balance decimal.Decimal `json:"balance"`
}

type rateResponse struct {
	Base  string          `json:"base"`
	Quote string          `json:"quote"`
	Rate  decimal.Decimal `json:"rate"`
}

// Pay submits a transfer. The idempotency key is sent both in the body and
// as the Idempotency-Key header.
func (c *Client) Pay(ctx context.Context, req PayRequest) (*Receipt, error) {
	if req.IdempotencyKey == "" {
		return nil, errs.Validation("pay", "idempotency key is required")
	}

	var receipt Receipt
	if err := c.do(ctx, http.MethodPost, "/v1/payments", req.IdempotencyKey, req, &receipt); err != nil {
		return nil, errs.Wallet("pay", err)
	}
	if receipt.ID == "" {
		return nil, errs.Wallet("pay", &PaymentError{Reason: ReasonRejected, Detail: "gateway returned no receipt id"})
	}
	return &receipt, nil
}

func (c *Client) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	var br balanceResponse
	if err := c.do(ctx, http.MethodGet, "/v1/balances/"+url.PathEscape(address), "", nil, &br); err != nil {
		return decimal.Zero, errs.Wallet("get balance", err)
	}
	return br.Balance, nil
}

// ExchangeRate returns how many units of quote one unit of base costs.
func (c *Client) ExchangeRate(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	q := url.Values{"base": {base}, "quote": {quote}}
	var rr rateResponse
	if err := c.do(ctx, http.MethodGet, "/v1/rates?"+q.Encode(), "", nil, &rr); err != nil {
		return decimal.Zero, errs.Wallet("exchange rate", err)
	}
	if !rr.Rate.IsPositive() {
		return decimal.Zero, errs.Wallet("exchange rate", &PaymentError{Reason: ReasonUnavailable, Detail: "non-positive rate " + rr.Rate.String()})
	}
	return rr.Rate, nil
}

func (c *Client) do(ctx context.Context, method, path, idempotencyKey string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var er errorResponse
		json.NewDecoder(resp.Body).Decode(&er)
		reason := er.Reason
		if reason == "" {
			reason = ReasonRejected
			if resp.StatusCode >= 500 {
				reason = ReasonUnavailable
			}
		}
		return &PaymentError{Reason: reason, Status: resp.StatusCode, Detail: er.Message}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// transportError classifies a failed round trip as a timeout or a network error.
func transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &PaymentError{Reason: ReasonTimeout, Detail: err.Error()}
	}
	return &PaymentError{Reason: ReasonNetwork, Detail: err.Error()}
}
