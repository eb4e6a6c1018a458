// Package scheduler runs one-shot deferred callbacks keyed by id from a
// single timer loop backed by a min-heap.
package scheduler

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Func is invoked once per fired entry. The scheduler does not retry; a
// callback that wants another attempt calls Schedule again for its id.
type Func func(ctx context.Context, id string)

// Config tunes the scheduler.
type Config struct {
	// MaxConcurrent bounds callbacks running at the same time. Zero means 16.
	MaxConcurrent int
}

// Scheduler keeps at most one pending entry per id. An entry stays
// registered until its callback returns, unless it is cancelled or
// replaced first.
type Scheduler struct {
	fn     Func
	sem    *semaphore.Weighted
	logger *slog.Logger

	mu      sync.Mutex
	queue   entryHeap
	entries map[string]*entry
	seq     uint64
	wake    chan struct{}
	wg      sync.WaitGroup
}

// New creates a Scheduler that invokes fn for every fired entry.
func New(fn Func, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 16
	}
	return &Scheduler{
		fn:      fn,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger:  logger.With(slog.String("component", "scheduler")),
		entries: make(map[string]*entry),
		wake:    make(chan struct{}, 1),
	}
}

// Schedule arms id to fire at fireAt, replacing any existing entry for id.
// A fireAt in the past fires on the next loop iteration.
func (s *Scheduler) Schedule(id string, fireAt time.Time) {
	s.mu.Lock()
	if old, ok := s.entries[id]; ok && old.index >= 0 {
		heap.Remove(&s.queue, old.index)
	}
	s.seq++
	e := &entry{id: id, fireAt: fireAt, seq: s.seq}
	s.entries[id] = e
	heap.Push(&s.queue, e)
	s.mu.Unlock()
	s.notify()
}

// Cancel removes the entry for id. It reports whether an entry existed. A
// callback that is already running is not interrupted.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		if e.index >= 0 {
			heap.Remove(&s.queue, e.index)
		}
		delete(s.entries, id)
	}
	s.mu.Unlock()
	if ok {
		s.notify()
	}
	return ok
}

// Has reports whether id is registered, either waiting or running.
func (s *Scheduler) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// Len returns the number of registered entries.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Run drives the timer loop until ctx is cancelled, then waits for running
// callbacks to return. Callbacks receive a context that is not cancelled
// with ctx so an in-flight settlement can commit.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scheduler started", slog.Int("pending", s.Len()))
	defer s.wg.Wait()

	cbCtx := context.WithoutCancel(ctx)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		e, wait := s.next(time.Now())
		if e != nil {
			if err := s.sem.Acquire(ctx, 1); err != nil {
				s.requeue(e)
				return nil
			}
			s.wg.Add(1)
			go s.fire(cbCtx, e)
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", slog.Int("pending", s.Len()))
			return nil
		case <-s.wake:
		case <-timer.C:
		}
	}
}

// next pops the earliest due entry, or returns how long to wait for one.
func (s *Scheduler) next(now time.Time) (*entry, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, time.Hour
	}
	head := s.queue[0]
	if d := head.fireAt.Sub(now); d > 0 {
		return nil, d
	}
	return heap.Pop(&s.queue).(*entry), 0
}

// requeue puts back an entry popped while shutting down.
func (s *Scheduler) requeue(e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries[e.id] == e {
		heap.Push(&s.queue, e)
	}
}

func (s *Scheduler) fire(ctx context.Context, e *entry) {
	defer s.wg.Done()
	defer s.sem.Release(1)
	defer s.finish(e)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled callback panicked",
				slog.String("id", e.id),
				slog.Any("panic", r),
			)
		}
	}()

	if !s.current(e) {
		return
	}
	s.fn(ctx, e.id)
}

func (s *Scheduler) current(e *entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[e.id] == e
}

// finish drops the registry entry unless the callback rescheduled its id.
func (s *Scheduler) finish(e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries[e.id] == e {
		delete(s.entries, e.id)
	}
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
