package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Scheduler owns background tasks bound to one context. Stop cancels every
// pending timer and waits for running tasks to return.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zerolog.Logger

	mu      sync.Mutex
	stopped bool
}

func NewScheduler(parent context.Context, logger *zerolog.Logger) *Scheduler {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	ctx, cancel := context.WithCancel(parent)
	return &Scheduler{ctx: ctx, cancel: cancel, logger: logger}
}

// Context is cancelled when the scheduler stops.
func (s *Scheduler) Context() context.Context {
	return s.ctx
}

// Go runs fn in a tracked goroutine.
func (s *Scheduler) Go(name string, fn func(ctx context.Context)) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.recoverTask(name)
		fn(s.ctx)
	}()
	return true
}

// After runs fn once delay has elapsed unless the scheduler stops first.
func (s *Scheduler) After(name string, delay time.Duration, fn func(ctx context.Context)) bool {
	return s.Go(name, func(ctx context.Context) {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			fn(ctx)
		}
	})
}

// Every runs fn immediately and then once per period until the scheduler
// stops. The next run is timed from the end of the previous one.
func (s *Scheduler) Every(name string, period time.Duration, fn func(ctx context.Context)) bool {
	return s.Go(name, func(ctx context.Context) {
		for {
			fn(ctx)

			timer := time.NewTimer(period)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	})
}

// Stop cancels all tasks and blocks until they exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) recoverTask(name string) {
	if r := recover(); r != nil {
		s.logger.Error().Interface("panic", r).Str("task", name).Msg("scheduled task panicked")
	}
}
