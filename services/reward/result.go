package reward

import (
	"fmt"

	"creatorpay/pkg/money"
)

// Reasons a view did not earn.
const (
	ReasonVideoNotFound = "video_not_found"
	ReasonOwnVideo      = "own_video"
	ReasonNoActivePool  = "no_active_pool"
	ReasonPoolDepleted  = "pool_depleted"
	ReasonAlreadyEarned = "already_earned"
	ReasonWatchTooShort = "watch_too_short"
	ReasonWalletLocked  = "wallet_locked"
)

const (
	msgVideoNotFound = "Video not found"
	msgOwnVideo      = "You cannot earn rewards from your own videos"
	msgNoActivePool  = "This video does not have an active reward pool"
	msgPoolDepleted  = "Reward pool is depleted"
	msgAlreadyEarned = "You already earned rewards from this video"
	msgWalletLocked  = "Your wallet is locked and cannot receive rewards"
)

// ViewResult is the outcome of a view submission. A view that does not earn
// is a normal result, not an error.
type ViewResult struct {
	Earned       bool         `json:"earned"`
	Amount       money.Amount `json:"amount,omitempty"`
	Reason       string       `json:"reason,omitempty"`
	Message      string       `json:"message"`
	PoolDepleted bool         `json:"pool_depleted,omitempty"`
}

func notEarned(reason, message string) *ViewResult {
	return &ViewResult{Reason: reason, Message: message}
}

func watchTooShort(s Settings) *ViewResult {
	return notEarned(ReasonWatchTooShort, fmt.Sprintf(
		"You must watch at least %d seconds or %d%% of the video to earn rewards",
		int(s.MinWatchSeconds), int(s.MinWatchPercentage),
	))
}

func earned(amount money.Amount, depleted bool) *ViewResult {
	return &ViewResult{
		Earned:       true,
		Amount:       amount,
		Message:      fmt.Sprintf("You earned €%s for watching this video!", amount.Decimal().StringFixed(4)),
		PoolDepleted: depleted,
	}
}
