package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestSimulatedPay(t *testing.T) {
	g := NewSimulated(decimal.NewFromInt(3200), decimal.NewFromInt(1))
	ctx := context.Background()

	req := PayRequest{ToAddress: testAddress, AmountFiat: decimal.NewFromInt(10), Asset: "ETH", IdempotencyKey: "k1"}
	r1, err := g.Pay(ctx, req)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if !r1.Amount.Equal(decimal.RequireFromString("0.003125")) {
		t.Errorf("amount = %s, want 0.003125", r1.Amount)
	}

	// Same key returns the same receipt without moving funds twice.
	r2, err := g.Pay(ctx, req)
	if err != nil {
		t.Fatalf("repeat pay: %v", err)
	}
	if r2.ID != r1.ID {
		t.Errorf("repeat receipt = %s, want %s", r2.ID, r1.ID)
	}

	balance, _ := g.GetBalance(ctx, testAddress)
	if !balance.Equal(decimal.RequireFromString("0.003125")) {
		t.Errorf("balance = %s, want 0.003125", balance)
	}
}

func TestSimulatedPayFailures(t *testing.T) {
	g := NewSimulated(decimal.NewFromInt(3200), decimal.RequireFromString("0.001"))
	ctx := context.Background()

	var pe *PaymentError
	_, err := g.Pay(ctx, PayRequest{ToAddress: testAddress, AmountFiat: decimal.NewFromInt(10), IdempotencyKey: "big"})
	if !errors.As(err, &pe) || pe.Reason != ReasonInsufficientFunds {
		t.Errorf("err = %v, want insufficient funds", err)
	}

	_, err = g.Pay(ctx, PayRequest{ToAddress: "0x123", AmountFiat: decimal.NewFromInt(1), IdempotencyKey: "bad"})
	if !errors.As(err, &pe) || pe.Reason != ReasonInvalidAddress {
		t.Errorf("err = %v, want invalid address", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = g.Pay(cancelled, PayRequest{ToAddress: testAddress, AmountFiat: decimal.NewFromInt(1), IdempotencyKey: "late"})
	if !errors.As(err, &pe) || pe.Reason != ReasonTimeout {
		t.Errorf("err = %v, want timeout", err)
	}
}

func TestSimulatedSetRate(t *testing.T) {
	g := NewSimulated(decimal.NewFromInt(3200), decimal.NewFromInt(1))
	g.SetRate(decimal.NewFromInt(4000))

	rate, _ := g.ExchangeRate(context.Background(), "ETH", "EUR")
	if !rate.Equal(decimal.NewFromInt(4000)) {
		t.Errorf("rate = %s, want 4000", rate)
	}
}
