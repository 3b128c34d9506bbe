package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/clock"
)

var testStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type limitedResult struct {
	limited bool
	hint    string
}

func (r limitedResult) RateLimited() bool      { return r.limited }
func (r limitedResult) RetryAfterHint() string { return r.hint }

// invocations records the order and simulated time of action calls.
type invocations struct {
	mu    sync.Mutex
	names []string
	times []time.Time
}

func (inv *invocations) add(name string, at time.Time) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.names = append(inv.names, name)
	inv.times = append(inv.times, at)
}

func (inv *invocations) snapshot() ([]string, []time.Time) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return append([]string(nil), inv.names...), append([]time.Time(nil), inv.times...)
}

func waitFuture(t *testing.T, f *Future) (any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return f.Wait(ctx)
}

func blockUntilWaiting(t *testing.T, fake *clock.Fake) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, fake.BlockUntilContext(ctx, 1))
}

func requirePending(t *testing.T, f *Future) {
	t.Helper()
	select {
	case <-f.Done():
		t.Fatal("future resolved early")
	case <-time.After(20 * time.Millisecond):
	}
}

// gate submits an urgent action that blocks the admission loop until the
// returned release func is called.
func gate(t *testing.T, s *Scheduler) (*Future, func()) {
	t.Helper()
	started := make(chan struct{})
	release := make(chan struct{})
	future := s.Submit("gate", PriorityUrgent, func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return nil, nil
	})
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("gate action never started")
	}
	return future, func() { close(release) }
}

func TestSchedulerSingleRequest(t *testing.T) {
	s := NewScheduler()
	defer s.Close()

	value, err := waitFuture(t, s.Submit("chat.postMessage", PriorityNormal, func(ctx context.Context) (any, error) {
		return "ok", nil
	}))
	require.NoError(t, err)
	require.Equal(t, "ok", value)
}

func TestSchedulerDeliversActionError(t *testing.T) {
	s := NewScheduler()
	defer s.Close()

	boom := errors.New("boom")
	_, err := waitFuture(t, s.Submit("users.list", PriorityNormal, func(ctx context.Context) (any, error) {
		return nil, boom
	}))
	require.ErrorIs(t, err, boom)
}

func TestSchedulerBudgetDefersOverflow(t *testing.T) {
	fake := clock.NewFake(testStart)
	s := NewScheduler(
		WithClock(fake),
		WithBudgets(Budgets{"conversations.list": 20}),
	)
	defer s.Close()

	inv := &invocations{}
	futures := make([]*Future, 21)
	for i := range futures {
		futures[i] = s.Submit("conversations.list", PriorityNormal, func(ctx context.Context) (any, error) {
			inv.add("conversations.list", fake.Now())
			return nil, nil
		})
	}

	for _, f := range futures[:20] {
		_, err := waitFuture(t, f)
		require.NoError(t, err)
	}
	blockUntilWaiting(t, fake)

	fake.Advance(59 * time.Second)
	requirePending(t, futures[20])

	fake.Advance(2 * time.Second)
	_, err := waitFuture(t, futures[20])
	require.NoError(t, err)

	_, times := inv.snapshot()
	require.Len(t, times, 21)
	for _, ts := range times[:20] {
		require.Equal(t, testStart, ts)
	}
	require.False(t, times[20].Before(testStart.Add(Window)))
}

func TestSchedulerPriorityOrder(t *testing.T) {
	s := NewScheduler()
	defer s.Close()

	gated, release := gate(t, s)
	inv := &invocations{}
	low := s.Submit("users.list", PriorityBackground, func(ctx context.Context) (any, error) {
		inv.add("background", time.Time{})
		return nil, nil
	})
	high := s.Submit("users.list", PriorityUrgent, func(ctx context.Context) (any, error) {
		inv.add("urgent", time.Time{})
		return nil, nil
	})
	release()

	for _, f := range []*Future{gated, low, high} {
		_, err := waitFuture(t, f)
		require.NoError(t, err)
	}
	names, _ := inv.snapshot()
	require.Equal(t, []string{"urgent", "background"}, names)
}

func TestSchedulerPriorityRecheckedAfterBudgetWait(t *testing.T) {
	fake := clock.NewFake(testStart)
	s := NewScheduler(
		WithClock(fake),
		WithBudgets(Budgets{"chat.postMessage": 1}),
	)
	defer s.Close()

	inv := &invocations{}
	submit := func(name string, priority int) *Future {
		return s.Submit("chat.postMessage", priority, func(ctx context.Context) (any, error) {
			inv.add(name, fake.Now())
			return nil, nil
		})
	}

	_, err := waitFuture(t, submit("first", PriorityNormal))
	require.NoError(t, err)

	background := submit("background", PriorityBackground)
	blockUntilWaiting(t, fake)
	urgent := submit("urgent", PriorityUrgent)

	fake.Advance(Window + time.Second)
	_, err = waitFuture(t, urgent)
	require.NoError(t, err)
	requirePending(t, background)

	blockUntilWaiting(t, fake)
	fake.Advance(Window + time.Second)
	_, err = waitFuture(t, background)
	require.NoError(t, err)

	names, times := inv.snapshot()
	require.Equal(t, []string{"first", "urgent", "background"}, names)
	require.True(t, times[1].After(testStart.Add(Window)))
	require.True(t, times[2].Sub(times[1]) >= Window)
}

func TestSchedulerFIFOWithinPriority(t *testing.T) {
	s := NewScheduler()
	defer s.Close()

	gated, release := gate(t, s)
	inv := &invocations{}
	var futures []*Future
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		futures = append(futures, s.Submit("reactions.add", PriorityNormal, func(ctx context.Context) (any, error) {
			inv.add(name, time.Time{})
			return nil, nil
		}))
	}
	release()

	_, err := waitFuture(t, gated)
	require.NoError(t, err)
	for _, f := range futures {
		_, err := waitFuture(t, f)
		require.NoError(t, err)
	}
	names, _ := inv.snapshot()
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, names)
}

func TestSchedulerRateLimitPausesAndRetries(t *testing.T) {
	fake := clock.NewFake(testStart)
	core, logs := observer.New(zap.DebugLevel)
	s := NewScheduler(WithClock(fake), WithLogger(zap.New(core)))
	defer s.Close()

	var calls atomic.Int32
	future := s.Submit("chat.postMessage", PriorityHigh, func(ctx context.Context) (any, error) {
		if calls.Add(1) == 1 {
			return limitedResult{limited: true, hint: "5"}, nil
		}
		return limitedResult{}, nil
	})

	blockUntilWaiting(t, fake)
	require.Equal(t, int32(1), calls.Load())

	fake.Advance(4 * time.Second)
	requirePending(t, future)
	require.Equal(t, int32(1), calls.Load())

	fake.Advance(time.Second)
	value, err := waitFuture(t, future)
	require.NoError(t, err)
	require.Equal(t, limitedResult{}, value)
	require.Equal(t, int32(2), calls.Load())

	warnings := logs.FilterMessage("rate limited, pausing admission").All()
	require.Len(t, warnings, 1)
	require.Equal(t, zap.WarnLevel, warnings[0].Level)
	fields := warnings[0].ContextMap()
	require.Equal(t, "chat.postMessage", fields["method"])
	require.Equal(t, 5*time.Second, fields["retry_after"])
}

func TestSchedulerRateLimitDefaultsToOneSecond(t *testing.T) {
	fake := clock.NewFake(testStart)
	s := NewScheduler(WithClock(fake))
	defer s.Close()

	var calls atomic.Int32
	future := s.Submit("conversations.history", PriorityNormal, func(ctx context.Context) (any, error) {
		if calls.Add(1) == 1 {
			return limitedResult{limited: true, hint: "soon"}, nil
		}
		return "page", nil
	})

	blockUntilWaiting(t, fake)
	requirePending(t, future)

	fake.Advance(time.Second)
	value, err := waitFuture(t, future)
	require.NoError(t, err)
	require.Equal(t, "page", value)
}

func TestSchedulerRequeuesRateLimitedItemAtFront(t *testing.T) {
	fake := clock.NewFake(testStart)
	s := NewScheduler(WithClock(fake))
	defer s.Close()

	inv := &invocations{}
	var calls atomic.Int32
	limited := s.Submit("chat.postMessage", PriorityBackground, func(ctx context.Context) (any, error) {
		inv.add("limited", fake.Now())
		if calls.Add(1) == 1 {
			return limitedResult{limited: true, hint: "3"}, nil
		}
		return nil, nil
	})
	blockUntilWaiting(t, fake)

	other := s.Submit("users.list", PriorityUrgent, func(ctx context.Context) (any, error) {
		inv.add("other", fake.Now())
		return nil, nil
	})
	requirePending(t, other)

	fake.Advance(3 * time.Second)
	for _, f := range []*Future{limited, other} {
		_, err := waitFuture(t, f)
		require.NoError(t, err)
	}

	names, times := inv.snapshot()
	require.Equal(t, []string{"limited", "limited", "other"}, names)
	require.Equal(t, testStart.Add(3*time.Second), times[1])
	require.Equal(t, testStart.Add(3*time.Second), times[2])
}

func TestSchedulerQueueDelayWarning(t *testing.T) {
	fake := clock.NewFake(testStart)
	core, logs := observer.New(zap.DebugLevel)
	s := NewScheduler(
		WithClock(fake),
		WithLogger(zap.New(core)),
		WithBudgets(Budgets{"pins.add": 1}),
	)
	defer s.Close()

	first := s.Submit("pins.add", PriorityNormal, func(ctx context.Context) (any, error) { return nil, nil })
	second := s.Submit("pins.add", PriorityNormal, func(ctx context.Context) (any, error) { return nil, nil })

	_, err := waitFuture(t, first)
	require.NoError(t, err)
	blockUntilWaiting(t, fake)
	require.Equal(t, 0, logs.FilterMessage("queue delay").Len())

	fake.Advance(61 * time.Second)
	_, err = waitFuture(t, second)
	require.NoError(t, err)

	delays := logs.FilterMessage("queue delay").All()
	require.Len(t, delays, 1)
	fields := delays[0].ContextMap()
	require.Equal(t, "pins.add", fields["method"])
	require.Equal(t, 61*time.Second, fields["waited"])
	require.EqualValues(t, 1, fields["queue_depth"])
}

func TestSchedulerRollingWindowNeverExceedsBudget(t *testing.T) {
	fake := clock.NewFake(testStart)
	s := NewScheduler(WithClock(fake), WithBudgets(Budgets{"search.messages": 3}))
	defer s.Close()

	inv := &invocations{}
	futures := make([]*Future, 10)
	for i := range futures {
		futures[i] = s.Submit("search.messages", PriorityNormal, func(ctx context.Context) (any, error) {
			inv.add("search.messages", fake.Now())
			return nil, nil
		})
	}

	deadline := time.Now().Add(5 * time.Second)
	for _, f := range futures {
		for {
			select {
			case <-f.Done():
			default:
				require.True(t, time.Now().Before(deadline), "scheduler did not drain")
				if fake.Waiters() > 0 {
					fake.Advance(7 * time.Second)
				} else {
					time.Sleep(time.Millisecond)
				}
				continue
			}
			break
		}
	}

	_, times := inv.snapshot()
	require.Len(t, times, 10)
	for i, end := range times {
		inWindow := 0
		for _, ts := range times {
			if ts.After(end.Add(-Window)) && !ts.After(end) {
				inWindow++
			}
		}
		require.LessOrEqual(t, inWindow, 3, "window ending at admission %d", i)
	}
}

func TestSchedulerRecoversPanics(t *testing.T) {
	s := NewScheduler()
	defer s.Close()

	_, err := waitFuture(t, s.Submit("chat.update", PriorityNormal, func(ctx context.Context) (any, error) {
		panic("kaboom")
	}))
	require.ErrorContains(t, err, "kaboom")

	value, err := waitFuture(t, s.Submit("chat.update", PriorityNormal, func(ctx context.Context) (any, error) {
		return 42, nil
	}))
	require.NoError(t, err)
	require.Equal(t, 42, value)
}

func TestSchedulerClose(t *testing.T) {
	s := NewScheduler()

	started := make(chan struct{})
	inflight := s.Submit("conversations.history", PriorityNormal, func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	<-started
	queued := s.Submit("conversations.history", PriorityNormal, func(ctx context.Context) (any, error) {
		return nil, nil
	})

	s.Close()
	s.Close()

	_, err := waitFuture(t, queued)
	require.ErrorIs(t, err, ErrSchedulerClosed)
	_, err = waitFuture(t, inflight)
	require.ErrorIs(t, err, context.Canceled)

	_, err = waitFuture(t, s.Submit("auth.test", PriorityUrgent, func(ctx context.Context) (any, error) {
		return nil, nil
	}))
	require.ErrorIs(t, err, ErrSchedulerClosed)
}

func TestSchedulerRejectsNilAction(t *testing.T) {
	s := NewScheduler()
	defer s.Close()

	_, err := waitFuture(t, s.Submit("auth.test", PriorityUrgent, nil))
	require.Error(t, err)
}

func TestFutureWaitHonorsContext(t *testing.T) {
	s := NewScheduler()
	defer s.Close()

	_, release := gate(t, s)
	defer release()

	future := s.Submit("users.list", PriorityNormal, func(ctx context.Context) (any, error) { return nil, nil })
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := future.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDoReturnsTypedResult(t *testing.T) {
	s := NewScheduler()
	defer s.Close()

	name, err := Do(context.Background(), s, "users.profile.get", PriorityNormal, func(ctx context.Context) (string, error) {
		return "ada", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ada", name)
}

func TestSnapshot(t *testing.T) {
	fake := clock.NewFake(testStart)
	s := NewScheduler(WithClock(fake), WithBudgets(Budgets{"pins.add": 2, "pins.remove": 5}))
	defer s.Close()

	var futures []*Future
	for range 3 {
		futures = append(futures, s.Submit("pins.add", PriorityNormal, func(ctx context.Context) (any, error) { return nil, nil }))
	}
	for _, f := range futures[:2] {
		_, err := waitFuture(t, f)
		require.NoError(t, err)
	}
	blockUntilWaiting(t, fake)

	stats := s.Snapshot()
	require.Equal(t, 1, stats.QueueDepth)
	require.True(t, stats.PausedUntil.IsZero())
	require.Equal(t, []MethodStats{
		{Method: "pins.add", Budget: 2, InWindow: 2, Queued: 1},
		{Method: "pins.remove", Budget: 5},
	}, stats.Methods)
}

func TestSchedulerBudgetMargin(t *testing.T) {
	s := NewScheduler(WithBudgets(Budgets{"chat.postMessage": 300}), WithBudgetMargin(0.5))
	defer s.Close()

	limit, ok := s.budgets.Limit("chat.postMessage")
	require.True(t, ok)
	require.Equal(t, 150, limit)
}
