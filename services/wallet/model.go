package wallet

import (
	"time"

	"creatorpay/pkg/money"
)

// Wallet is the platform-side ledger balance of a user. One row per user,
// created lazily on the first credit and never deleted.
type Wallet struct {
	ID             string       `gorm:"column:id;primaryKey" json:"id"`
	UserID         string       `gorm:"column:user_id;uniqueIndex;not null" json:"user_id"`
	Balance        money.Amount `gorm:"column:balance;not null;default:0;check:chk_wallets_balance,balance >= 0;index:idx_wallets_eligible,priority:1" json:"balance"`
	TotalEarned    money.Amount `gorm:"column:total_earned;not null;default:0" json:"total_earned"`
	TotalWithdrawn money.Amount `gorm:"column:total_withdrawn;not null;default:0" json:"total_withdrawn"`
	Currency       string       `gorm:"column:currency;size:3;not null;default:'eur'" json:"currency"`
	IsLocked       bool         `gorm:"column:is_locked;not null;default:false;index:idx_wallets_eligible,priority:2" json:"is_locked"`
	LockReason     string       `gorm:"column:lock_reason" json:"lock_reason,omitempty"`
	LockedAt       *time.Time   `gorm:"column:locked_at" json:"locked_at,omitempty"`
	CreatedAt      time.Time    `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// Movement is the outcome of a balance mutation.
type Movement struct {
	Wallet        *Wallet
	BalanceBefore money.Amount
	BalanceAfter  money.Amount
}

type ListRequest struct {
	Locked *bool
	Limit  int
	Offset int
}
