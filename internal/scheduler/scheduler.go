// Package scheduler runs keyed tasks in strict FIFO order under a
// runtime-adjustable concurrency cap, optionally spacing consecutive starts.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"imgscraper/pkg/logger"
	"imgscraper/pkg/ratelimit"
)

var (
	// ErrDuplicateTask is returned when a key was already submitted to this scheduler
	ErrDuplicateTask = errors.New("task already submitted")
	// ErrClosed is returned by Submit after Close
	ErrClosed = errors.New("scheduler is closed")
	// ErrInvalidConcurrency is returned for a capacity below one
	ErrInvalidConcurrency = errors.New("concurrency must be at least 1")
)

// Task is a unit of work. The context is cancelled when the scheduler closes.
type Task func(ctx context.Context)

// Options configures a Scheduler
type Options struct {
	Concurrency      int
	MinStartInterval time.Duration
	Logger           logger.Logger
}

// Stats is a point-in-time snapshot of the scheduler counters
type Stats struct {
	Capacity  int
	Active    int
	Pending   int
	Started   int
	Completed int
	Peak      int
}

type queuedTask struct {
	key  string
	task Task
}

// Scheduler is a FIFO queue drained by a counting limiter of capacity K.
// Admission and release happen under one mutex, so active never exceeds
// the capacity in force at admission time.
type Scheduler struct {
	mu       sync.Mutex
	capacity int
	active   int
	queue    []queuedTask
	seen     map[string]struct{}
	closed   bool

	started   int
	completed int
	peak      int

	// closed and replaced whenever active or queue shrink
	changed chan struct{}

	spacer *ratelimit.Spacer
	ctx    context.Context
	cancel context.CancelFunc
	logger logger.Logger
}

// New creates a scheduler. A concurrency below one is treated as one.
func New(opts Options) *Scheduler {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		capacity: opts.Concurrency,
		seen:     make(map[string]struct{}),
		changed:  make(chan struct{}),
		spacer:   ratelimit.NewSpacer(opts.MinStartInterval),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.OrGlobal(opts.Logger).WithField("component", "scheduler"),
	}
}

// Submit enqueues task under key. Each key is accepted at most once.
func (s *Scheduler) Submit(key string, task Task) error {
	if task == nil {
		return fmt.Errorf("nil task for key %q", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, dup := s.seen[key]; dup {
		s.logger.DebugWithFields("Duplicate task rejected", map[string]interface{}{
			"key": key,
		})
		return ErrDuplicateTask
	}
	s.seen[key] = struct{}{}
	s.queue = append(s.queue, queuedTask{key: key, task: task})

	s.admitLocked()
	return nil
}

// admitLocked starts queued tasks while slots are free. Caller holds s.mu.
func (s *Scheduler) admitLocked() {
	for !s.closed && s.active < s.capacity && len(s.queue) > 0 {
		next := s.queue[0]
		s.queue[0] = queuedTask{}
		s.queue = s.queue[1:]

		s.active++
		s.started++
		if s.active > s.peak {
			s.peak = s.active
		}

		// Reserving here keeps start order equal to admission order
		delay := s.spacer.Reserve()

		s.logger.DebugWithFields("Task admitted", map[string]interface{}{
			"key":     next.key,
			"active":  s.active,
			"pending": len(s.queue),
			"delay":   delay,
		})

		go s.run(next, delay)
	}
}

func (s *Scheduler) run(qt queuedTask, delay time.Duration) {
	defer s.release(qt.key)

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorWithFields("Task panicked", map[string]interface{}{
				"key":   qt.key,
				"panic": fmt.Sprint(r),
			})
		}
	}()

	qt.task(s.ctx)
}

func (s *Scheduler) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active--
	s.completed++

	s.logger.DebugWithFields("Task released", map[string]interface{}{
		"key":       key,
		"active":    s.active,
		"completed": s.completed,
	})

	s.admitLocked()
	s.notifyLocked()
}

func (s *Scheduler) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// SetConcurrency changes K. Running tasks are unaffected; a larger K admits
// queued tasks immediately, a smaller one takes effect as slots free up.
func (s *Scheduler) SetConcurrency(k int) error {
	if k < 1 {
		return ErrInvalidConcurrency
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if k == s.capacity {
		return nil
	}
	s.logger.InfoWithFields("Concurrency changed", map[string]interface{}{
		"from": s.capacity,
		"to":   k,
	})
	s.capacity = k
	s.admitLocked()
	return nil
}

// Concurrency returns the current capacity
func (s *Scheduler) Concurrency() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capacity
}

// SetMinStartInterval changes the spacing between consecutive task starts
func (s *Scheduler) SetMinStartInterval(d time.Duration) {
	s.spacer.SetInterval(d)
}

// MinStartInterval returns the current start spacing
func (s *Scheduler) MinStartInterval() time.Duration {
	return s.spacer.Interval()
}

// Wait blocks until nothing is queued or running, or ctx is done
func (s *Scheduler) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.active == 0 && len(s.queue) == 0 {
			s.mu.Unlock()
			return nil
		}
		ch := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Close stops admissions, drops queued tasks and cancels the context handed
// to running tasks. It does not wait for them; use Wait for that.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	dropped := len(s.queue)
	s.queue = nil
	s.cancel()

	s.logger.DebugWithFields("Scheduler closed", map[string]interface{}{
		"dropped": dropped,
		"active":  s.active,
	})
	s.notifyLocked()
}

// Closed reports whether Close was called
func (s *Scheduler) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Stats returns a snapshot of the counters
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Capacity:  s.capacity,
		Active:    s.active,
		Pending:   len(s.queue),
		Started:   s.started,
		Completed: s.completed,
		Peak:      s.peak,
	}
}
