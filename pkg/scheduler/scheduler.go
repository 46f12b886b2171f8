package scheduler

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Clock abstracts time.Now so components and tests agree on "now".
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System is the wall clock.
var System Clock = systemClock{}

// FakeClock is a manually advanced clock for tests.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a fake clock frozen at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Scheduler runs named recurring jobs on real tickers. It is shared
// process-wide and injected into every module context.
type Scheduler struct {
	clock  Clock
	logger zerolog.Logger

	mu      sync.Mutex
	stopped bool
	jobs    int
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler using the given clock.
func NewScheduler(clock Clock, logger zerolog.Logger) *Scheduler {
	if clock == nil {
		clock = System
	}
	return &Scheduler{
		clock:  clock,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Clock returns the scheduler's clock.
func (s *Scheduler) Clock() Clock { return s.clock }

// Every runs fn every interval until the returned cancel function is
// called or the scheduler stops. Panics in fn are contained and logged
// so one misbehaving job cannot take the process down.
func (s *Scheduler) Every(name string, interval time.Duration, fn func()) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancelCh := make(chan struct{})
	var once sync.Once
	cancel = func() { once.Do(func() { close(cancelCh) }) }

	if s.stopped {
		return cancel
	}

	s.wg.Add(1)
	s.jobs++
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.jobs--
			s.mu.Unlock()
		}()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.runJob(name, fn)
			case <-cancelCh:
				return
			case <-s.stopCh:
				return
			}
		}
	}()
	return cancel
}

func (s *Scheduler) runJob(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("job", name).Any("panic", r).Msg("scheduled job panicked")
		}
	}()
	fn()
}

// ActiveJobs returns the number of jobs currently scheduled.
func (s *Scheduler) ActiveJobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs
}

// Stop cancels every job and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
}
