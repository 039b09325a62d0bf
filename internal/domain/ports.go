package domain

import (
	"context"
	"time"
)

// AccountSnapshot is the current state of the trading account.
type AccountSnapshot struct {
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Profit     float64 `json:"profit"`
	Margin     float64 `json:"margin"`
	MarginFree float64 `json:"margin_free"`
	Currency   string  `json:"currency"`
}

// Bar is a single one-minute price bar.
type Bar struct {
	Time  time.Time `json:"time"`
	Close float64   `json:"close"`
}

// InstrumentInfo describes a tradable symbol.
type InstrumentInfo struct {
	ContractSize   float64 `json:"contract_size"`
	Point          float64 `json:"point"`
	Digits         int     `json:"digits"`
	BaseCurrency   string  `json:"currency_base"`
	ProfitCurrency string  `json:"currency_profit"`
}

// SessionProvider is an authenticated connection to a brokerage terminal.
// Implementations are external; the evaluator only consumes this interface.
type SessionProvider interface {
	Login(ctx context.Context, login, password, server string) error
	AccountSnapshot(ctx context.Context) (AccountSnapshot, error)
	DealHistory(ctx context.Context, from time.Time) ([]Deal, error)
	ClosedPositions(ctx context.Context, from time.Time) ([]Position, error)
	MinuteBars(ctx context.Context, symbol string, from, to time.Time) ([]Bar, error)
	InstrumentInfo(ctx context.Context, symbol string) (InstrumentInfo, error)
	Close(ctx context.Context) error
}

// SecretSource resolves the webhook signing secret for a tenant.
type SecretSource interface {
	WebhookSecret(ctx context.Context, owner string) (string, error)
}
