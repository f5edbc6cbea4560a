package transaction

import (
	"time"

	"creatorpay/pkg/money"

	"gorm.io/datatypes"
)

type Type string

const (
	TypeDeposit       Type = "deposit"
	TypeWithdrawal    Type = "withdrawal"
	TypeBoostPurchase Type = "boost-purchase"
	TypeRewardEarned  Type = "reward-earned"
	TypePayout        Type = "payout"
	TypeRefund        Type = "refund"
)

func (t Type) String() string { return string(t) }

func (t Type) IsValid() bool {
	switch t {
	case TypeDeposit, TypeWithdrawal, TypeBoostPurchase, TypeRewardEarned, TypePayout, TypeRefund:
		return true
	default:
		return false
	}
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

type PaymentMethod string

const (
	MethodStripe        PaymentMethod = "stripe"
	MethodWallet        PaymentMethod = "wallet"
	MethodReward        PaymentMethod = "reward"
	MethodStripeConnect PaymentMethod = "stripe-connect"
)

func (m PaymentMethod) String() string { return string(m) }

func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodStripe, MethodWallet, MethodReward, MethodStripeConnect:
		return true
	default:
		return false
	}
}

// Transaction is an immutable record of a money movement on a user's wallet.
type Transaction struct {
	ID              string         `gorm:"column:id;primaryKey" json:"id"`
	TransactionCode string         `gorm:"column:transaction_code;uniqueIndex;not null" json:"transaction_code"`
	UserID          string         `gorm:"column:user_id;index:idx_transactions_user_created,priority:1;not null" json:"user_id"`
	Type            Type           `gorm:"column:type;size:32;not null" json:"type"`
	Amount          money.Amount   `gorm:"column:amount;not null" json:"amount"`
	BalanceBefore   money.Amount   `gorm:"column:balance_before;not null" json:"balance_before"`
	BalanceAfter    money.Amount   `gorm:"column:balance_after;not null" json:"balance_after"`
	Status          Status         `gorm:"column:status;size:16;not null" json:"status"`
	PaymentMethod   PaymentMethod  `gorm:"column:payment_method;size:32" json:"payment_method"`
	ReferenceID     string         `gorm:"column:reference_id;index" json:"reference_id,omitempty"`
	Description     string         `gorm:"column:description" json:"description,omitempty"`
	Metadata        datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime;index:idx_transactions_user_created,priority:2" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

type RecordParams struct {
	UserID        string
	Type          Type
	Amount        money.Amount
	BalanceBefore money.Amount
	BalanceAfter  money.Amount
	Status        Status
	PaymentMethod PaymentMethod
	ReferenceID   string
	Description   string
	Metadata      map[string]any
}
