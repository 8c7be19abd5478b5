package settlement_test

import (
    "context"
    "sync/atomic"
    "testing"
    "time"

    "github.com/cockroachdb/errors"
    "github.com/jonboulle/clockwork"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "orderbridge/internal/domain"
    "orderbridge/internal/logging"
    "orderbridge/internal/services/settlement"
)

var schedule = settlement.Schedule{Warmup: 30 * time.Second, Interval: 15 * time.Second, Attempts: 3}

// sleepCounter counts every pause taken on the fake clock.
type sleepCounter struct {
    *clockwork.FakeClock
    sleeps atomic.Int32
}

func (c *sleepCounter) After(d time.Duration) <-chan time.Time {
    c.sleeps.Add(1)
    return c.FakeClock.After(d)
}

// sequence returns a reader that yields the given results in order and
// reports absent once they run out.
func sequence(results ...*float64) (settlement.ReadFunc, *atomic.Int32) {
    var calls atomic.Int32
    return func(ctx context.Context) (float64, bool, error) {
        n := int(calls.Add(1)) - 1
        if n >= len(results) || results[n] == nil {
            return 0, false, nil
        }
        return *results[n], true, nil
    }, &calls
}

func ptr(f float64) *float64 { return &f }

// drive runs Wait in the background and advances the fake clock through the
// warm-up and exactly sleeps intervals.
func drive(t *testing.T, clock *sleepCounter, read settlement.ReadFunc, sleeps int) domain.Settlement {
    t.Helper()
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()

    done := make(chan domain.Settlement, 1)
    w := settlement.NewWaiter(clock, schedule, logging.Nop())
    go func() { done <- w.Wait(ctx, read) }()

    require.NoError(t, clock.BlockUntilContext(ctx, 1))
    clock.Advance(schedule.Warmup)
    for i := 0; i < sleeps; i++ {
        require.NoError(t, clock.BlockUntilContext(ctx, 1))
        clock.Advance(schedule.Interval)
    }
    select {
    case s := <-done:
        return s
    case <-ctx.Done():
        t.Fatal("waiter did not finish")
    }
    return domain.Settlement{}
}

func TestWait_ResolvesOnThirdAttempt(t *testing.T) {
    clock := &sleepCounter{FakeClock: clockwork.NewFakeClock()}
    read, calls := sequence(nil, nil, ptr(1200))

    s := drive(t, clock, read, 2)

    assert.True(t, s.Resolved())
    assert.Equal(t, 1200.0, s.Value)
    assert.Equal(t, 3, s.Attempts)
    assert.EqualValues(t, 3, calls.Load())
    assert.EqualValues(t, 3, clock.sleeps.Load(), "warm-up plus exactly two inter-attempt sleeps")
}

func TestWait_AbandonsAfterBudget(t *testing.T) {
    clock := &sleepCounter{FakeClock: clockwork.NewFakeClock()}
    read, calls := sequence()

    s := drive(t, clock, read, 2)

    assert.False(t, s.Resolved())
    assert.Equal(t, domain.SettlementAbandoned, s.State)
    assert.EqualValues(t, 3, calls.Load())
    assert.EqualValues(t, 3, clock.sleeps.Load())
}

func TestWait_FirstReadResolves(t *testing.T) {
    clock := &sleepCounter{FakeClock: clockwork.NewFakeClock()}
    read, _ := sequence(ptr(0))

    s := drive(t, clock, read, 0)

    assert.True(t, s.Resolved(), "zero is a present value")
    assert.Equal(t, 1, s.Attempts)
    assert.EqualValues(t, 1, clock.sleeps.Load())
}

func TestWait_ReadErrorsCountAsAbsent(t *testing.T) {
    var calls atomic.Int32
    read := func(ctx context.Context) (float64, bool, error) {
        if calls.Add(1) == 1 {
            return 0, false, errors.New("503 service unavailable")
        }
        return 42, true, nil
    }
    clock := &sleepCounter{FakeClock: clockwork.NewFakeClock()}

    s := drive(t, clock, read, 1)

    assert.True(t, s.Resolved())
    assert.Equal(t, 2, s.Attempts)
}

func TestWait_CancelledContext(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    cancel()
    read, calls := sequence(ptr(1))

    s := settlement.NewWaiter(clockwork.NewFakeClock(), schedule, logging.Nop()).Wait(ctx, read)

    assert.Equal(t, domain.SettlementAbandoned, s.State)
    assert.EqualValues(t, 0, calls.Load())
}

func TestPause(t *testing.T) {
    clock := clockwork.NewFakeClock()
    ctx := context.Background()
    require.NoError(t, settlement.Pause(ctx, clock, 0))

    done := make(chan error, 1)
    go func() { done <- settlement.Pause(ctx, clock, time.Minute) }()
    require.NoError(t, clock.BlockUntilContext(ctx, 1))
    clock.Advance(time.Minute)
    require.NoError(t, <-done)
}
