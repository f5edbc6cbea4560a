package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"creatorpay/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Payouts is the part of the payout service the scheduler drives.
type Payouts interface {
	TriggerBatch(ctx context.Context, kind string) (string, error)
	RetryDuePayouts(ctx context.Context) (int, error)
}

type Scheduler struct {
	payouts Payouts
	loc     *time.Location
	weekday time.Weekday
	hour    int
	minute  int
	sweep   bool
	now     func() time.Time
}

func NewScheduler(cfg *config.Config, payouts Payouts) (*Scheduler, error) {
	sc := cfg.Scheduler

	loc, err := time.LoadLocation(sc.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler timezone %q: %w", sc.Timezone, err)
	}
	weekday, err := parseWeekday(sc.Weekday)
	if err != nil {
		return nil, err
	}
	if sc.Hour < 0 || sc.Hour > 23 || sc.Minute < 0 || sc.Minute > 59 {
		return nil, fmt.Errorf("invalid scheduler time %02d:%02d", sc.Hour, sc.Minute)
	}

	return &Scheduler{
		payouts: payouts,
		loc:     loc,
		weekday: weekday,
		hour:    sc.Hour,
		minute:  sc.Minute,
		sweep:   sc.RetrySweep,
		now:     time.Now,
	}, nil
}

// StartScheduler runs the weekly batch trigger and the hourly retry sweep for
// the lifetime of the process.
func StartScheduler(lc fx.Lifecycle, cfg *config.Config, s *Scheduler) {
	if !cfg.Scheduler.Enable {
		zap.L().Info("[Scheduler] disabled")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.loop(ctx, "weekly payout batch", func(now time.Time) time.Time {
					return nextWeeklyRunTime(now.In(s.loc), s.weekday, s.hour, s.minute)
				}, s.runWeekly)
			}()

			if s.sweep {
				wg.Add(1)
				go func() {
					defer wg.Done()
					s.loop(ctx, "payout retry sweep", func(now time.Time) time.Time {
						return nextHourlyRunTime(now.In(s.loc))
					}, s.runSweep)
				}()
			}
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			wg.Wait()
			return nil
		},
	})
}

func (s *Scheduler) loop(ctx context.Context, name string, next func(time.Time) time.Time, job func(context.Context)) {
	zap.L().Info("[Scheduler] started", zap.String("job", name))

	for {
		now := s.now()
		at := next(now)
		wait := at.Sub(now)
		zap.L().Info("[Scheduler] next run scheduled",
			zap.String("job", name),
			zap.Time("next_run", at),
			zap.Duration("sleep_for", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			job(ctx)
		case <-ctx.Done():
			timer.Stop()
			zap.L().Warn("[Scheduler] stopped", zap.String("job", name))
			return
		}
	}
}

func (s *Scheduler) runWeekly(ctx context.Context) {
	start := s.now()
	batchID, err := s.payouts.TriggerBatch(ctx, "weekly")
	if err != nil {
		zap.L().Error("[Scheduler] failed to trigger weekly payout batch", zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] weekly payout batch triggered",
		zap.String("batch_id", batchID),
		zap.Duration("duration", time.Since(start)),
	)
}

func (s *Scheduler) runSweep(ctx context.Context) {
	n, err := s.payouts.RetryDuePayouts(ctx)
	if err != nil {
		zap.L().Error("[Scheduler] retry sweep failed", zap.Error(err))
		return
	}
	zap.L().Info("[Scheduler] retry sweep finished", zap.Int("enqueued", n))
}

// nextWeeklyRunTime returns the first weekday at hour:minute strictly after
// now, in now's location.
func nextWeeklyRunTime(now time.Time, weekday time.Weekday, hour, minute int) time.Time {
	days := (int(weekday) - int(now.Weekday()) + 7) % 7
	next := time.Date(now.Year(), now.Month(), now.Day()+days, hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

// nextHourlyRunTime returns the start of the next hour in now's location.
func nextHourlyRunTime(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), now.Hour()+1, 0, 0, 0, now.Location())
}

func parseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(s, d.String()) || strings.EqualFold(s, d.String()[:3]) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid scheduler weekday %q", s)
}
