package payout

import (
	"time"

	"creatorpay/pkg/config"
	"creatorpay/pkg/money"
)

// Settings are the payout constants, built once from config.
type Settings struct {
	MinimumPayout    money.Amount
	MaxRetries       int
	RetryBaseDelay   time.Duration
	QueueMaxRetry    int
	QueueBackoffBase time.Duration
	BatchConcurrency int
	// StaleProcessingAfter is how long a processing claim is honoured before
	// another worker may take it over.
	StaleProcessingAfter time.Duration
	TaskTimeout          time.Duration
	Currency             string
	Description          string
}

func NewSettings(cfg *config.Config) Settings {
	m := cfg.Monetization
	s := Settings{
		MinimumPayout:        money.FromFloat(m.MinimumPayout),
		MaxRetries:           m.MaxRetries,
		RetryBaseDelay:       m.RetryBaseDelay,
		QueueMaxRetry:        m.QueueMaxRetry,
		QueueBackoffBase:     m.QueueBackoffBase,
		BatchConcurrency:     m.BatchConcurrency,
		StaleProcessingAfter: cfg.Worker.TaskTimeout,
		TaskTimeout:          cfg.Worker.TaskTimeout,
		Currency:             cfg.Stripe.Currency,
		Description:          cfg.Stripe.PlatformDescription,
	}
	if s.BatchConcurrency <= 0 {
		s.BatchConcurrency = 1
	}
	if s.StaleProcessingAfter <= 0 {
		s.StaleProcessingAfter = 10 * time.Minute
	}
	if s.Currency == "" {
		s.Currency = "eur"
	}
	return s
}

// RetryDelay is 2^retryCount × RetryBaseDelay, where retryCount already
// includes the failure being handled: 10m, 20m, ... with the default base.
func (s Settings) RetryDelay(retryCount int) time.Duration {
	if retryCount > 16 {
		retryCount = 16
	}
	return time.Duration(1<<uint(retryCount)) * s.RetryBaseDelay
}
