package monitor

import (
	"sync"
	"time"
)

// CancelFunc stops a scheduled recurring job. Safe to call more than once;
// after it returns, the job never fires again.
type CancelFunc func()

// Scheduler owns recurring job execution. The monitor never touches timers
// directly, so tests can swap in a ManualScheduler and drive poll cycles
// deterministically.
type Scheduler interface {
	// Schedule runs fn every interval until the returned CancelFunc is called.
	Schedule(interval time.Duration, fn func()) CancelFunc
}

// TickerScheduler runs jobs on real wall-clock tickers, one goroutine per job.
type TickerScheduler struct{}

// NewTickerScheduler returns the production scheduler.
func NewTickerScheduler() TickerScheduler { return TickerScheduler{} }

func (TickerScheduler) Schedule(interval time.Duration, fn func()) CancelFunc {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				select {
				case <-done:
					// Cancelled between tick delivery and execution.
					return
				default:
				}
				fn()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

// ManualScheduler drives jobs by explicit Tick calls instead of wall-clock
// time. Jobs run synchronously inside Tick, so a test observes every side
// effect before its next assertion.
type ManualScheduler struct {
	mu     sync.Mutex
	jobs   map[int]func()
	nextID int
}

// NewManualScheduler creates an empty manual scheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{jobs: make(map[int]func())}
}

func (s *ManualScheduler) Schedule(interval time.Duration, fn func()) CancelFunc {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.jobs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.jobs, id)
			s.mu.Unlock()
		})
	}
}

// Tick fires every registered job once, in registration order.
func (s *ManualScheduler) Tick() {
	s.mu.Lock()
	ids := make([]int, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	// Deterministic order for tests
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if ids[j] < ids[i] {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.jobs[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// JobCount returns the number of live recurring jobs.
func (s *ManualScheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
