// Package reload runs the bridge reload on a cron schedule.
//
// Binding never retries a device that failed to connect; a scheduled
// reload is how an operator opts into periodic retries of declarations
// that are still unbound.
package reload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nerrad567/lightbridge/internal/registry"
)

// defaultRunTimeout bounds one scheduled reload.
const defaultRunTimeout = time.Minute

// ErrEmptySchedule is returned by New for an empty schedule.
var ErrEmptySchedule = errors.New("reload: schedule is empty")

// Reloader is the operation run on schedule.
type Reloader interface {
	Reload(ctx context.Context) ([]*registry.Resource, error)
}

// Logger defines the logging interface used by the scheduler.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Scheduler runs Reloader.Reload on a cron schedule. Runs never overlap: a
// tick that fires while the previous reload is still running is skipped.
type Scheduler struct {
	cron     *cron.Cron
	reloader Reloader
	logger   Logger
	timeout  time.Duration

	ctx  context.Context
	mu   sync.Mutex
	runs atomic.Uint64
}

// New parses schedule (standard five-field cron or a descriptor such as
// "@every 5m") and returns a stopped scheduler.
func New(schedule string, reloader Reloader, logger Logger) (*Scheduler, error) {
	if schedule == "" {
		return nil, ErrEmptySchedule
	}
	if logger == nil {
		logger = noopLogger{}
	}

	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DiscardLogger),
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
		reloader: reloader,
		logger:   logger,
		timeout:  defaultRunTimeout,
		ctx:      context.Background(),
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("reload schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Run starts the schedule and blocks until ctx is cancelled, then waits
// for a reload in progress to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("reload scheduler started", "next", s.Next())

	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

// Next returns the time of the next scheduled reload.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Runs returns the number of reloads started by the schedule.
func (s *Scheduler) Runs() uint64 {
	return s.runs.Load()
}

func (s *Scheduler) run() {
	s.runs.Add(1)

	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	added, err := s.reloader.Reload(ctx)
	if err != nil {
		s.logger.Warn("scheduled reload failed", "error", err)
		return
	}
	if len(added) > 0 {
		s.logger.Info("scheduled reload bound new resources", "added", len(added))
	}
}
