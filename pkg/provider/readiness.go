package provider

import (
	"context"
	"fmt"
)

const (
	ReasonOnboardingIncomplete = "Stripe Connect onboarding not completed"
	ReasonPayoutsDisabled      = "Payouts not enabled on Stripe Connect account"
	ReasonChargesDisabled      = "Charges not enabled on Stripe Connect account"
	ReasonDetailsMissing       = "Account details not submitted to Stripe"
)

type Readiness struct {
	Ready  bool   `json:"ready"`
	Reason string `json:"reason,omitempty"`
}

// Check applies the four readiness conditions in order and reports the first
// that fails.
func (a *AccountInfo) Check() Readiness {
	switch {
	case !a.OnboardingComplete:
		return Readiness{Reason: ReasonOnboardingIncomplete}
	case !a.PayoutsEnabled:
		return Readiness{Reason: ReasonPayoutsDisabled}
	case !a.ChargesEnabled:
		return Readiness{Reason: ReasonChargesDisabled}
	case !a.DetailsSubmitted:
		return Readiness{Reason: ReasonDetailsMissing}
	default:
		return Readiness{Ready: true}
	}
}

// Verifier answers whether a connected account can currently receive payouts.
type Verifier interface {
	Verify(ctx context.Context, accountID string) Readiness
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, accountID string) Readiness

func (f VerifierFunc) Verify(ctx context.Context, accountID string) Readiness {
	return f(ctx, accountID)
}

// Direct returns a Verifier that always asks the provider.
func Direct(p Provider) Verifier {
	return VerifierFunc(func(ctx context.Context, accountID string) Readiness {
		return verify(ctx, p, accountID)
	})
}

func verify(ctx context.Context, p Provider, accountID string) Readiness {
	info, err := p.GetAccountInfo(ctx, accountID)
	if err != nil {
		return Readiness{Reason: fmt.Sprintf("Failed to verify Stripe account: %v", err)}
	}
	return info.Check()
}
