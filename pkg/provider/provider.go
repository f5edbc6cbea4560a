// Package provider is the boundary to the external payment provider that
// moves real money: account verification, transfers into a connected
// account, payouts from that account, and balance queries.
//
// Amounts cross this boundary in minor units (cents).
package provider

//go:generate mockgen -source=provider.go -destination=mock/provider.go -package=mock

import (
	"context"
	"errors"
	"fmt"
)

type Provider interface {
	GetAccountInfo(ctx context.Context, accountID string) (*AccountInfo, error)
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	CreatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error)
	GetBalance(ctx context.Context, accountID string) (*Balance, error)
}

type AccountInfo struct {
	AccountID          string `json:"account_id"`
	OnboardingComplete bool   `json:"onboarding_complete"`
	ChargesEnabled     bool   `json:"charges_enabled"`
	PayoutsEnabled     bool   `json:"payouts_enabled"`
	DetailsSubmitted   bool   `json:"details_submitted"`
}

type TransferRequest struct {
	Destination    string
	Amount         int64
	Currency       string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

type TransferResult struct {
	ID          string `json:"id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Destination string `json:"destination"`
}

type PayoutRequest struct {
	AccountID      string
	Amount         int64
	Currency       string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

type PayoutResult struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type Funds struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type Balance struct {
	Available []Funds `json:"available"`
	Pending   []Funds `json:"pending"`
}

// Error is a failure reported by the provider. Code is the provider's error
// code when it sent one.
type Error struct {
	Op        string
	Code      string
	Message   string
	RequestID string
	Err       error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError returns the *Error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
