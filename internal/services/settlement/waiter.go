package settlement

import (
    "context"
    "time"

    "github.com/jonboulle/clockwork"
    "github.com/sethvargo/go-retry"
    "go.uber.org/zap"

    "orderbridge/internal/domain"
)

// Schedule is a fixed poll schedule: one unconditional warm-up pause, then at
// most Attempts reads spaced Interval apart. Worst case the wait lasts
// Warmup + (Attempts-1)*Interval plus the reads themselves.
type Schedule struct {
    Warmup   time.Duration
    Interval time.Duration
    Attempts int
}

// ReadFunc reads the target value. ok is false while the value is absent.
type ReadFunc func(ctx context.Context) (value float64, ok bool, err error)

// Waiter polls for a value that an external automation fills in after a
// trigger. It never fails: an exhausted budget yields an abandoned settlement.
type Waiter struct {
    clock    clockwork.Clock
    schedule Schedule
    log      *zap.SugaredLogger
}

func NewWaiter(clock clockwork.Clock, schedule Schedule, log *zap.SugaredLogger) *Waiter {
    if schedule.Attempts < 1 { schedule.Attempts = 1 }
    if schedule.Interval <= 0 { schedule.Interval = time.Second }
    return &Waiter{clock: clock, schedule: schedule, log: log}
}

func (w *Waiter) Wait(ctx context.Context, read ReadFunc) domain.Settlement {
    s := domain.Settlement{State: domain.SettlementPending}
    w.log.Infow("waiting for settlement", "warmup", w.schedule.Warmup, "interval", w.schedule.Interval, "attempts", w.schedule.Attempts)
    if err := Pause(ctx, w.clock, w.schedule.Warmup); err != nil {
        s.State = domain.SettlementAbandoned
        return s
    }

    backoff := retry.WithMaxRetries(uint64(w.schedule.Attempts-1), retry.NewConstant(w.schedule.Interval))
    for {
        s.Attempts++
        value, ok, err := read(ctx)
        switch {
        case err != nil:
            w.log.Warnw("settlement read failed", "attempt", s.Attempts, "error", err)
        case ok:
            s.State = domain.SettlementResolved
            s.Value = value
            w.log.Infow("settlement resolved", "attempt", s.Attempts, "value", value)
            return s
        default:
            w.log.Infow("settlement not available yet", "attempt", s.Attempts, "of", w.schedule.Attempts)
        }

        next, stop := backoff.Next()
        if stop {
            break
        }
        if err := Pause(ctx, w.clock, next); err != nil {
            break
        }
    }
    s.State = domain.SettlementAbandoned
    w.log.Warnw("settlement abandoned", "attempts", s.Attempts)
    return s
}

// Pause blocks for d on clock, returning early with the context's error.
func Pause(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
    if d <= 0 {
        return ctx.Err()
    }
    select {
    case <-ctx.Done():
        return ctx.Err()
    case <-clock.After(d):
        return nil
    }
}
