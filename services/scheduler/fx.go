package scheduler

import (
	"creatorpay/services/payout"

	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(providePayouts, NewScheduler),
	fx.Invoke(StartScheduler),
)

func providePayouts(s *payout.Service) Payouts {
	return s
}
