package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TradePull/pkg/logger"
)

// TaskFunc is one scheduled unit of work. Implementations are expected
// to be short relative to their interval and to honor ctx.
type TaskFunc func(ctx context.Context)

type handle struct {
	name      string
	interval  time.Duration
	stop      chan struct{}
	done      chan struct{}
	startedAt time.Time
}

// Scheduler runs named tasks on fixed intervals, one worker per name.
// Panics inside a task are caught and logged; the next interval still
// fires. Stop is cooperative and bounded because sleeps are sliced at
// one-second granularity.
type Scheduler struct {
	logger *logger.Logger

	mu    sync.Mutex
	tasks map[string]*handle
}

func New(lgr *logger.Logger) *Scheduler {
	return &Scheduler{
		logger: lgr,
		tasks:  make(map[string]*handle),
	}
}

// Start spawns a worker for name. A name can have at most one live
// worker; starting a duplicate is an error.
func (s *Scheduler) Start(name string, interval time.Duration, fn TaskFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("task %q already running", name)
	}

	h := &handle{
		name:      name,
		interval:  interval,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}
	s.tasks[name] = h

	go s.run(h, fn)
	s.logger.Info("task started",
		logger.String("task", name),
		logger.Duration("interval", interval))
	return nil
}

// Stop signals the named worker and waits up to five seconds for it to
// exit.
func (s *Scheduler) Stop(name string) error {
	s.mu.Lock()
	h, ok := s.tasks[name]
	if ok {
		delete(s.tasks, name)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("task %q not running", name)
	}

	close(h.stop)
	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		return fmt.Errorf("task %q did not stop in time", name)
	}
	s.logger.Info("task stopped", logger.String("task", name))
	return nil
}

// StopAll stops every running task.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	s.mu.Unlock()

	for _, name := range names {
		if err := s.Stop(name); err != nil {
			s.logger.Warn("stop task", logger.String("task", name), logger.Error(err))
		}
	}
}

// Running lists the names of live tasks.
func (s *Scheduler) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	return names
}

func (s *Scheduler) run(h *handle, fn TaskFunc) {
	defer close(h.done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-h.stop
		cancel()
	}()

	for {
		s.runSafely(h.name, ctx, fn)
		if !s.sleep(h) {
			return
		}
	}
}

// sleep waits one interval in slices so a stop completes promptly.
func (s *Scheduler) sleep(h *handle) bool {
	deadline := time.Now().Add(h.interval)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		slice := remaining
		if slice > time.Second {
			slice = time.Second
		}
		select {
		case <-h.stop:
			return false
		case <-time.After(slice):
		}
	}
}

func (s *Scheduler) runSafely(name string, ctx context.Context, fn TaskFunc) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panicked",
				logger.String("task", name),
				logger.Any("panic", r))
		}
	}()
	fn(ctx)
}
