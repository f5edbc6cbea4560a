package account

import "time"

// CreatorAccount links a platform user to a Stripe Connect account.
type CreatorAccount struct {
	ID                     string    `gorm:"column:id;primaryKey" json:"id"`
	UserID                 string    `gorm:"column:user_id;uniqueIndex;not null" json:"user_id"`
	StripeConnectAccountID string    `gorm:"column:stripe_connect_account_id;index" json:"stripe_connect_account_id"`
	CreatedAt              time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
