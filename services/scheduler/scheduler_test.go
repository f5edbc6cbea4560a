package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"creatorpay/pkg/config"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakePayouts struct {
	batches []string
	sweeps  int
	err     error
}

func (f *fakePayouts) TriggerBatch(ctx context.Context, kind string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.batches = append(f.batches, kind)
	return kind + "_batch", nil
}

func (f *fakePayouts) RetryDuePayouts(ctx context.Context) (int, error) {
	f.sweeps++
	return 2, f.err
}

func TestNextWeeklyRunTime(t *testing.T) {
	london, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)

	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"sunday evening", time.Date(2026, 10, 18, 20, 0, 0, 0, london), time.Date(2026, 10, 19, 9, 0, 0, 0, london)},
		{"monday before nine", time.Date(2026, 10, 19, 8, 59, 0, 0, london), time.Date(2026, 10, 19, 9, 0, 0, 0, london)},
		{"monday at nine", time.Date(2026, 10, 19, 9, 0, 0, 0, london), time.Date(2026, 10, 26, 9, 0, 0, 0, london)},
		{"wednesday", time.Date(2026, 10, 21, 12, 0, 0, 0, london), time.Date(2026, 10, 26, 9, 0, 0, 0, london)},
		{"across dst change", time.Date(2026, 10, 24, 12, 0, 0, 0, london), time.Date(2026, 10, 26, 9, 0, 0, 0, london)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := nextWeeklyRunTime(tc.now, time.Monday, 9, 0)
			require.True(t, tc.want.Equal(got), "got %s want %s", got, tc.want)
			require.Equal(t, time.Monday, got.Weekday())
		})
	}
}

func TestNextHourlyRunTime(t *testing.T) {
	now := time.Date(2026, 10, 19, 23, 30, 15, 0, time.UTC)
	require.Equal(t, time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC), nextHourlyRunTime(now))

	now = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC), nextHourlyRunTime(now))
}

func TestNewScheduler(t *testing.T) {
	cfg := config.Default()
	s, err := NewScheduler(cfg, &fakePayouts{})
	require.NoError(t, err)
	require.Equal(t, time.Monday, s.weekday)
	require.Equal(t, 9, s.hour)
	require.Equal(t, "Europe/London", s.loc.String())

	cfg.Scheduler.Weekday = "fri"
	s, err = NewScheduler(cfg, &fakePayouts{})
	require.NoError(t, err)
	require.Equal(t, time.Friday, s.weekday)

	cfg.Scheduler.Weekday = "someday"
	_, err = NewScheduler(cfg, &fakePayouts{})
	require.Error(t, err)

	cfg = config.Default()
	cfg.Scheduler.Timezone = "Mars/Olympus"
	_, err = NewScheduler(cfg, &fakePayouts{})
	require.Error(t, err)
}

func TestJobs(t *testing.T) {
	p := &fakePayouts{}
	s, err := NewScheduler(config.Default(), p)
	require.NoError(t, err)

	s.runWeekly(context.Background())
	s.runSweep(context.Background())
	require.Equal(t, []string{"weekly"}, p.batches)
	require.Equal(t, 1, p.sweeps)

	p.err = errors.New("redis down")
	s.runWeekly(context.Background())
	require.Len(t, p.batches, 1)
}

func TestLoopStopsOnCancel(t *testing.T) {
	s, err := NewScheduler(config.Default(), &fakePayouts{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	runs := 0
	go func() {
		s.loop(ctx, "test", func(now time.Time) time.Time { return now.Add(time.Hour) }, func(context.Context) { runs++ })
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
	require.Zero(t, runs)
}
