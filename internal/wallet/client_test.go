package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/taskpay/internal/errs"
)

const testAddress = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

func TestClientPay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/payments" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization = %q", got)
		}
		if got := r.Header.Get("Idempotency-Key"); got != "intent-1" {
			t.Errorf("idempotency key header = %q", got)
		}

		var req PayRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.ToAddress != testAddress || !req.AmountFiat.Equal(decimal.NewFromInt(10)) {
			t.Errorf("unexpected body: %+v", req)
		}
		json.NewEncoder(w).Encode(Receipt{ID: "rcpt-1", Amount: decimal.RequireFromString("0.003125"), Asset: "ETH"})
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL + "/", Token: "secret"})
	receipt, err := c.Pay(context.Background(), PayRequest{
		ToAddress:      testAddress,
		AmountFiat:     decimal.NewFromInt(10),
		Currency:       "EUR",
		Asset:          "ETH",
		IdempotencyKey: "intent-1",
	})
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if receipt.ID != "rcpt-1" || !receipt.Amount.Equal(decimal.RequireFromString("0.003125")) {
		t.Errorf("receipt = %+v", receipt)
	}
}

func TestClientPayRequiresIdempotencyKey(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1"})

	_, err := c.Pay(context.Background(), PayRequest{ToAddress: testAddress, AmountFiat: decimal.NewFromInt(1)})
	if !errors.Is(err, errs.ErrValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestClientPayErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantReason string
	}{
		{"insufficient funds", http.StatusPaymentRequired, `{"reason":"insufficient_funds"}`, ReasonInsufficientFunds},
		{"invalid address", http.StatusUnprocessableEntity, `{"reason":"invalid_address","message":"bad checksum"}`, ReasonInvalidAddress},
		{"client error without body", http.StatusBadRequest, ``, ReasonRejected},
		{"server error without body", http.StatusBadGateway, ``, ReasonUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := NewClient(Config{BaseURL: server.URL})
			_, err := c.Pay(context.Background(), PayRequest{ToAddress: testAddress, AmountFiat: decimal.NewFromInt(1), IdempotencyKey: "k"})
			if !errors.Is(err, errs.ErrWallet) {
				t.Fatalf("err = %v, want wallet error", err)
			}
			var pe *PaymentError
			if !errors.As(err, &pe) {
				t.Fatalf("err = %v, want *PaymentError inside", err)
			}
			if pe.Reason != tt.wantReason || pe.Status != tt.status {
				t.Errorf("payment error = %+v, want reason %q status %d", pe, tt.wantReason, tt.status)
			}
		})
	}
}

func TestClientPayTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewClient(Config{BaseURL: server.URL})
	_, err := c.Pay(ctx, PayRequest{ToAddress: testAddress, AmountFiat: decimal.NewFromInt(1), IdempotencyKey: "k"})
	var pe *PaymentError
	if !errors.As(err, &pe) || pe.Reason != ReasonTimeout {
		t.Errorf("err = %v, want timeout payment error", err)
	}
}

func TestClientNetworkError(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1"})

	_, err := c.GetBalance(context.Background(), testAddress)
	var pe *PaymentError
	if !errors.As(err, &pe) || pe.Reason != ReasonNetwork {
		t.Errorf("err = %v, want network payment error", err)
	}
}

func TestClientBalanceAndRate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/balances/" + testAddress:
			json.NewEncoder(w).Encode(map[string]any{"address": testAddress, "balance": "1.25"})
		case "/v1/rates":
			if r.URL.Query().Get("base") != "ETH" || r.URL.Query().Get("quote") != "EUR" {
				t.Errorf("unexpected query %q", r.URL.RawQuery)
			}
			json.NewEncoder(w).Encode(map[string]any{"base": "ETH", "quote": "EUR", "rate": "3150.40"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL})
	balance, err := c.GetBalance(context.Background(), testAddress)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("1.25")) {
		t.Errorf("balance = %s, want 1.25", balance)
	}

	rate, err := c.ExchangeRate(context.Background(), "ETH", "EUR")
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if !rate.Equal(decimal.RequireFromString("3150.4")) {
		t.Errorf("rate = %s, want 3150.4", rate)
	}
}

func TestClientRejectsNonPositiveRate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"rate": "0"})
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL})
	if _, err := c.ExchangeRate(context.Background(), "ETH", "EUR"); !errors.Is(err, errs.ErrWallet) {
		t.Errorf("err = %v, want wallet error", err)
	}
}
