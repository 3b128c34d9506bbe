package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/clock"
)

// Request priorities. Lower values are admitted first.
const (
	PriorityUrgent     = 0
	PriorityHigh       = 1
	PriorityNormal     = 2
	PriorityBackground = 3
)

const (
	// DefaultDelayThreshold is how long an item may wait at the head of the
	// queue before a queue delay warning is logged.
	DefaultDelayThreshold = 10 * time.Second

	// DefaultSafetyMargin is added to budget waits so the oldest admission
	// has left the window when the scheduler wakes up.
	DefaultSafetyMargin = 100 * time.Millisecond
)

// ErrSchedulerClosed is returned for work submitted to, or still queued in, a
// closed scheduler.
var ErrSchedulerClosed = errors.New("scheduler is closed")

// Action performs one logical remote call.
type Action func(ctx context.Context) (any, error)

// RateLimitSignal is implemented by action results that can report a
// "too many requests" rejection from the remote side.
type RateLimitSignal interface {
	RateLimited() bool
	RetryAfterHint() string
}

// Recorder receives scheduling observations for metrics.
type Recorder interface {
	RecordAdmission(method string, queued time.Duration)
	RecordRateLimited(method string, delay time.Duration)
	RecordQueueDelay(method string, wait time.Duration, depth int)
}

type nopRecorder struct{}

func (nopRecorder) RecordAdmission(string, time.Duration)       {}
func (nopRecorder) RecordRateLimited(string, time.Duration)     {}
func (nopRecorder) RecordQueueDelay(string, time.Duration, int) {}

type workItem struct {
	method     string
	action     Action
	priority   int
	enqueuedAt time.Time
	seq        uint64
	future     *Future
}

func (a *workItem) before(b *workItem) bool {
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	if !a.enqueuedAt.Equal(b.enqueuedAt) {
		return a.enqueuedAt.Before(b.enqueuedAt)
	}
	return a.seq < b.seq
}

// Scheduler serializes outbound calls through a single priority queue,
// enforcing per-method rolling budgets and pausing all admission when the
// remote side reports rate limiting.
type Scheduler struct {
	clock     clock.Clock
	logger    core.Logger
	recorder  Recorder
	budgets   Budgets
	threshold time.Duration
	margin    time.Duration
	ratio     float64

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	queue      []*workItem
	requeued   *workItem
	windows    map[string]window
	pauseUntil time.Time
	running    bool
	closed     bool
	seq        uint64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithBudgets sets the per-method budget table. Defaults to DefaultBudgets.
func WithBudgets(b Budgets) Option {
	return func(s *Scheduler) { s.budgets = b.Clone() }
}

// WithClock sets the clock used for timestamps and waits.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = clock.OrSystem(c) }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l core.Logger) Option {
	return func(s *Scheduler) { s.logger = core.LoggerOrNop(l) }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithDelayThreshold sets the queue delay warning threshold.
func WithDelayThreshold(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.threshold = d
		}
	}
}

// WithSafetyMargin sets the extra wait added to budget waits.
func WithSafetyMargin(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.margin = d
		}
	}
}

// WithBudgetMargin scales every budget by ratio (0-1] to leave headroom
// below the published limits.
func WithBudgetMargin(ratio float64) Option {
	return func(s *Scheduler) { s.ratio = ratio }
}

// NewScheduler creates an idle scheduler. The admission loop starts on the
// first Submit and stops whenever the queue drains.
func NewScheduler(opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		clock:     clock.System{},
		logger:    core.LoggerOrNop(nil),
		recorder:  nopRecorder{},
		budgets:   DefaultBudgets.Clone(),
		threshold: DefaultDelayThreshold,
		margin:    DefaultSafetyMargin,
		ctx:       ctx,
		cancel:    cancel,
		windows:   make(map[string]window),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ratio > 0 {
		s.budgets = s.budgets.WithMargin(s.ratio)
	}
	return s
}

// Submit queues action under method and priority and returns a Future for
// its eventual outcome. It never blocks on scheduling.
func (s *Scheduler) Submit(method string, priority int, action Action) *Future {
	future := newFuture()
	if action == nil {
		future.resolve(nil, fmt.Errorf("submit %s: action is required", method))
		return future
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		future.resolve(nil, ErrSchedulerClosed)
		return future
	}

	s.seq++
	item := &workItem{
		method:     method,
		action:     action,
		priority:   priority,
		enqueuedAt: s.clock.Now(),
		seq:        s.seq,
		future:     future,
	}
	idx := sort.Search(len(s.queue), func(i int) bool { return item.before(s.queue[i]) })
	s.queue = slices.Insert(s.queue, idx, item)

	start := !s.running
	s.running = true
	s.mu.Unlock()

	if start {
		go s.run()
	}
	return future
}

// Close stops admission. Queued items fail with ErrSchedulerClosed and the
// context passed to an in-flight action is cancelled.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	pending := s.queue
	if s.requeued != nil {
		pending = append([]*workItem{s.requeued}, pending...)
	}
	s.queue = nil
	s.requeued = nil
	s.mu.Unlock()

	s.cancel()
	for _, item := range pending {
		item.future.resolve(nil, ErrSchedulerClosed)
	}
}

func (s *Scheduler) run() {
	for {
		item, wait, ok := s.next()
		if !ok {
			return
		}
		if wait > 0 {
			select {
			case <-s.ctx.Done():
				return
			case <-s.clock.After(wait):
			}
			continue
		}
		s.execute(item)
	}
}

// next returns the item to admit, or a wait before the head may be
// reconsidered. ok is false once the loop should stop.
func (s *Scheduler) next() (item *workItem, wait time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, 0, false
	}

	head := s.head()
	if head == nil {
		s.running = false
		return nil, 0, false
	}

	now := s.clock.Now()
	if s.pauseUntil.After(now) {
		return nil, s.pauseUntil.Sub(now), true
	}

	depth := s.depth()
	if waited := now.Sub(head.enqueuedAt); waited > s.threshold {
		s.logger.Warn("queue delay",
			zap.String("method", head.method),
			zap.Duration("waited", waited),
			zap.Int("queue_depth", depth))
		s.recorder.RecordQueueDelay(head.method, waited, depth)
	}

	w := s.windows[head.method].prune(now)
	if limit, limited := s.budgets.Limit(head.method); limited && len(w) >= limit {
		s.windows[head.method] = w
		wait := w.waitFor(now) + s.margin
		s.logger.Debug("method budget exhausted",
			zap.String("method", head.method),
			zap.Int("budget", limit),
			zap.Duration("wait", wait))
		return nil, wait, true
	}

	s.popHead()
	s.windows[head.method] = append(w, now)
	s.recorder.RecordAdmission(head.method, now.Sub(head.enqueuedAt))
	return head, 0, true
}

func (s *Scheduler) execute(item *workItem) {
	value, err := s.invoke(item)
	if err == nil {
		if signal, ok := value.(RateLimitSignal); ok && signal.RateLimited() {
			delay := ParseRetryAfter(signal.RetryAfterHint())

			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				item.future.resolve(nil, ErrSchedulerClosed)
				return
			}
			s.pauseUntil = s.clock.Now().Add(delay)
			s.requeued = item
			s.mu.Unlock()

			s.logger.Warn("rate limited, pausing admission",
				zap.String("method", item.method),
				zap.Duration("retry_after", delay))
			s.recorder.RecordRateLimited(item.method, delay)
			return
		}
	}
	item.future.resolve(value, err)
}

func (s *Scheduler) invoke(item *workItem) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled action panicked",
				zap.String("method", item.method),
				zap.Any("panic", r))
			value, err = nil, fmt.Errorf("%s: action panicked: %v", item.method, r)
		}
	}()
	return item.action(s.ctx)
}

func (s *Scheduler) head() *workItem {
	if s.requeued != nil {
		return s.requeued
	}
	if len(s.queue) == 0 {
		return nil
	}
	return s.queue[0]
}

func (s *Scheduler) popHead() {
	if s.requeued != nil {
		s.requeued = nil
		return
	}
	s.queue[0] = nil
	s.queue = s.queue[1:]
}

func (s *Scheduler) depth() int {
	n := len(s.queue)
	if s.requeued != nil {
		n++
	}
	return n
}
