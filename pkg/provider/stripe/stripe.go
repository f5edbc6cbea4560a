// Package stripe implements provider.Provider on Stripe Connect.
package stripe

import (
	"context"
	"errors"
	"strings"

	"creatorpay/pkg/config"
	"creatorpay/pkg/provider"

	stripeapi "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/account"
	"github.com/stripe/stripe-go/v82/balance"
	"github.com/stripe/stripe-go/v82/payout"
	"github.com/stripe/stripe-go/v82/transfer"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("provider.stripe",
	fx.Provide(
		fx.Annotate(New, fx.As(new(provider.Provider))),
	),
)

type Client struct {
	currency string
}

func New(cfg *config.Config) *Client {
	if cfg.Stripe.SecretKey == "" {
		zap.L().Warn("stripe secret key is empty, provider calls will fail")
	}
	stripeapi.Key = cfg.Stripe.SecretKey

	currency := strings.ToLower(cfg.Stripe.Currency)
	if currency == "" {
		currency = "eur"
	}
	return &Client{currency: currency}
}

func (c *Client) GetAccountInfo(ctx context.Context, accountID string) (*provider.AccountInfo, error) {
	params := &stripeapi.AccountParams{}
	params.Context = ctx

	acct, err := account.GetByID(accountID, params)
	if err != nil {
		return nil, wrap("account.get", err)
	}

	return &provider.AccountInfo{
		AccountID:          acct.ID,
		OnboardingComplete: acct.DetailsSubmitted && acct.ChargesEnabled,
		ChargesEnabled:     acct.ChargesEnabled,
		PayoutsEnabled:     acct.PayoutsEnabled,
		DetailsSubmitted:   acct.DetailsSubmitted,
	}, nil
}

func (c *Client) Transfer(ctx context.Context, req provider.TransferRequest) (*provider.TransferResult, error) {
	params := &stripeapi.TransferParams{
		Amount:      stripeapi.Int64(req.Amount),
		Currency:    stripeapi.String(c.currencyOr(req.Currency)),
		Destination: stripeapi.String(req.Destination),
		Description: stripeapi.String(req.Description),
		Metadata:    req.Metadata,
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	t, err := transfer.New(params)
	if err != nil {
		return nil, wrap("transfer.create", err)
	}

	res := &provider.TransferResult{
		ID:       t.ID,
		Amount:   t.Amount,
		Currency: string(t.Currency),
	}
	if t.Destination != nil {
		res.Destination = t.Destination.ID
	}
	return res, nil
}

func (c *Client) CreatePayout(ctx context.Context, req provider.PayoutRequest) (*provider.PayoutResult, error) {
	params := &stripeapi.PayoutParams{
		Amount:      stripeapi.Int64(req.Amount),
		Currency:    stripeapi.String(c.currencyOr(req.Currency)),
		Description: stripeapi.String(req.Description),
		Metadata:    req.Metadata,
	}
	params.Context = ctx
	params.SetStripeAccount(req.AccountID)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	po, err := payout.New(params)
	if err != nil {
		return nil, wrap("payout.create", err)
	}

	return &provider.PayoutResult{
		ID:       po.ID,
		Amount:   po.Amount,
		Currency: string(po.Currency),
		Status:   string(po.Status),
	}, nil
}

func (c *Client) GetBalance(ctx context.Context, accountID string) (*provider.Balance, error) {
	params := &stripeapi.BalanceParams{}
	params.Context = ctx
	if accountID != "" {
		params.SetStripeAccount(accountID)
	}

	b, err := balance.Get(params)
	if err != nil {
		return nil, wrap("balance.get", err)
	}

	out := &provider.Balance{}
	for _, a := range b.Available {
		out.Available = append(out.Available, provider.Funds{Amount: a.Amount, Currency: string(a.Currency)})
	}
	for _, a := range b.Pending {
		out.Pending = append(out.Pending, provider.Funds{Amount: a.Amount, Currency: string(a.Currency)})
	}
	return out, nil
}

func (c *Client) currencyOr(currency string) string {
	if currency != "" {
		return strings.ToLower(currency)
	}
	return c.currency
}

func wrap(op string, err error) error {
	var se *stripeapi.Error
	if errors.As(err, &se) {
		return &provider.Error{
			Op:        op,
			Code:      string(se.Code),
			Message:   se.Msg,
			RequestID: se.RequestID,
			Err:       err,
		}
	}
	return &provider.Error{Op: op, Message: err.Error(), Err: err}
}
