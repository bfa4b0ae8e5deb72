package wallet

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/taskpay/internal/errs"
)

// Simulated is an in-process gateway for local development. It holds a
// single custodial balance in crypto units, converts at a fixed rate and
// honours idempotency keys.
type Simulated struct {
	mu       sync.Mutex
	rate     decimal.Decimal
	funds    decimal.Decimal
	balances map[string]decimal.Decimal
	receipts map[string]*Receipt
}

func NewSimulated(rate, funds decimal.Decimal) *Simulated {
	return &Simulated{
		rate:     rate,
		funds:    funds,
		balances: make(map[string]decimal.Decimal),
		receipts: make(map[string]*Receipt),
	}
}

func (s *Simulated) Pay(ctx context.Context, req PayRequest) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wallet("pay", &PaymentError{Reason: ReasonTimeout, Detail: err.Error()})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.receipts[req.IdempotencyKey]; ok {
		return r, nil
	}

	addr, err := ValidateAddress(req.ToAddress)
	if err != nil {
		return nil, errs.Wallet("pay", &PaymentError{Reason: ReasonInvalidAddress, Detail: err.Error()})
	}
	amount := req.AmountFiat.DivRound(s.rate, 6)
	if amount.GreaterThan(s.funds) {
		return nil, errs.Wallet("pay", &PaymentError{Reason: ReasonInsufficientFunds})
	}

	s.funds = s.funds.Sub(amount)
	s.balances[addr] = s.balances[addr].Add(amount)
	r := &Receipt{ID: uuid.NewString(), Amount: amount, Asset: req.Asset}
	s.receipts[req.IdempotencyKey] = r
	return r, nil
}

func (s *Simulated) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	addr, err := ValidateAddress(address)
	if err != nil {
		return decimal.Zero, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[addr], nil
}

func (s *Simulated) ExchangeRate(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate, nil
}

// SetRate changes the conversion rate used by later payments.
func (s *Simulated) SetRate(rate decimal.Decimal) {
	s.mu.Lock()
	s.rate = rate
	s.mu.Unlock()
}
