package payout

import (
	"time"

	"creatorpay/pkg/db"
	"creatorpay/pkg/money"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPaid       Status = "paid"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusPaid, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsOpen reports whether a payout still blocks a new one for the same user.
func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusProcessing
}

// Payout moves money from a user's wallet to their connected account and on
// to their bank. At most one payout per user is open at a time.
type Payout struct {
	ID                     string         `gorm:"column:id;primaryKey" json:"id"`
	UserID                 string         `gorm:"column:user_id;not null;index" json:"user_id"`
	Amount                 money.Amount   `gorm:"column:amount;not null" json:"amount"`
	Currency               string         `gorm:"column:currency;size:3;not null" json:"currency"`
	Status                 Status         `gorm:"column:status;size:16;not null;default:'pending';index:idx_payouts_retry,priority:1" json:"status"`
	IdempotencyKey         string         `gorm:"column:idempotency_key;uniqueIndex;not null" json:"idempotency_key"`
	RetryCount             int            `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	MaxRetries             int            `gorm:"column:max_retries;not null;default:3" json:"max_retries"`
	NextRetryAt            *time.Time     `gorm:"column:next_retry_at;index:idx_payouts_retry,priority:2" json:"next_retry_at,omitempty"`
	StripeConnectAccountID string         `gorm:"column:stripe_connect_account_id" json:"stripe_connect_account_id"`
	StripeTransferID       string         `gorm:"column:stripe_transfer_id" json:"stripe_transfer_id,omitempty"`
	StripePayoutID         string         `gorm:"column:stripe_payout_id" json:"stripe_payout_id,omitempty"`
	BatchID                string         `gorm:"column:batch_id;index" json:"batch_id,omitempty"`
	FailureReason          string         `gorm:"column:failure_reason" json:"failure_reason,omitempty"`
	FailureDetails         datatypes.JSON `gorm:"column:failure_details" json:"failure_details,omitempty"`
	Description            string         `gorm:"column:description" json:"description"`
	Metadata               datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	ScheduledDate          *time.Time     `gorm:"column:scheduled_date" json:"scheduled_date,omitempty"`
	ProcessingAt           *time.Time     `gorm:"column:processing_at" json:"processing_at,omitempty"`
	PaidAt                 *time.Time     `gorm:"column:paid_at" json:"paid_at,omitempty"`
	FailedAt               *time.Time     `gorm:"column:failed_at" json:"failed_at,omitempty"`
	CancelledAt            *time.Time     `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt              time.Time      `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
	UpdatedAt              time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelSuccess Level = "success"
)

func (l Level) String() string { return string(l) }

func (l Level) IsValid() bool {
	switch l {
	case LevelInfo, LevelWarning, LevelError, LevelSuccess:
		return true
	default:
		return false
	}
}

type Action string

const (
	ActionInitiated          Action = "initiated"
	ActionProcessing         Action = "processing"
	ActionRetryScheduled     Action = "retry_scheduled"
	ActionRetryAttempted     Action = "retry_attempted"
	ActionStripeCall         Action = "stripe_call"
	ActionStripeSuccess      Action = "stripe_success"
	ActionStripeError        Action = "stripe_error"
	ActionCompleted          Action = "completed"
	ActionFailed             Action = "failed"
	ActionCancelled          Action = "cancelled"
	ActionValidationError    Action = "validation_error"
	ActionAccountError       Action = "account_error"
	ActionBalanceUpdate      Action = "balance_update"
	ActionTransactionCreated Action = "transaction_created"
)

func (a Action) String() string { return string(a) }

func (a Action) IsValid() bool {
	switch a {
	case ActionInitiated, ActionProcessing, ActionRetryScheduled, ActionRetryAttempted,
		ActionStripeCall, ActionStripeSuccess, ActionStripeError, ActionCompleted,
		ActionFailed, ActionCancelled, ActionValidationError, ActionAccountError,
		ActionBalanceUpdate, ActionTransactionCreated:
		return true
	default:
		return false
	}
}

// PayoutLog is one append-only audit entry. PayoutID is empty for requests
// rejected before a payout row existed.
type PayoutLog struct {
	ID               string         `gorm:"column:id;primaryKey" json:"id"`
	PayoutID         string         `gorm:"column:payout_id;index" json:"payout_id,omitempty"`
	UserID           string         `gorm:"column:user_id;index" json:"user_id"`
	Level            Level          `gorm:"column:level;size:16;not null;index" json:"level"`
	Action           Action         `gorm:"column:action;size:32;not null;index" json:"action"`
	Message          string         `gorm:"column:message;not null" json:"message"`
	Data             datatypes.JSON `gorm:"column:data" json:"data,omitempty"`
	ErrorCode        string         `gorm:"column:error_code" json:"error_code,omitempty"`
	ErrorMessage     string         `gorm:"column:error_message" json:"error_message,omitempty"`
	ErrorStack       string         `gorm:"column:error_stack" json:"error_stack,omitempty"`
	StripeTransferID string         `gorm:"column:stripe_transfer_id" json:"stripe_transfer_id,omitempty"`
	StripePayoutID   string         `gorm:"column:stripe_payout_id" json:"stripe_payout_id,omitempty"`
	StripeRequestID  string         `gorm:"column:stripe_request_id" json:"stripe_request_id,omitempty"`
	RetryAttempt     int            `gorm:"column:retry_attempt;not null;default:0" json:"retry_attempt"`
	BatchID          string         `gorm:"column:batch_id;index" json:"batch_id,omitempty"`
	DurationMs       int64          `gorm:"column:duration_ms;not null;default:0" json:"duration_ms,omitempty"`
	CreatedAt        time.Time      `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}

// Models lists every table owned by this package, for migrations.
func Models() []any {
	return []any{&Payout{}, &PayoutLog{}}
}

// Indexes keeps at most one open payout per user.
func Indexes() []db.PartialIndex {
	return []db.PartialIndex{{
		Name:    "idx_payouts_open_user",
		Table:   "payouts",
		Columns: []string{"user_id"},
		Where:   "status = 'pending' OR status = 'processing'",
	}}
}
