// Package scheduler drives the bridge: a short poll refreshing every node, a
// long poll emitting the heartbeat and re-running discovery, and at most one
// background discovery task at any time.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jake-scott/flair-bridge/internal/pkg/logging"
	"github.com/jake-scott/flair-bridge/internal/pkg/nodes"
)

const (
	DefaultShortPoll = 30 * time.Second
	DefaultLongPoll  = 300 * time.Second
)

type Walker interface {
	Walk(ctx context.Context) ([]nodes.Descriptor, error)
}

// Target is what the scheduler drives
type Target interface {
	ApplyDiscovery(ctx context.Context, descs []nodes.Descriptor)
	SyncAll(ctx context.Context)
	Heartbeat(ctx context.Context)
}

type Scheduler struct {
	walker Walker
	target Target
	short  time.Duration
	long   time.Duration

	// discovery tasks run under base so shutdown cancels them
	base   context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	done chan struct{}
	wg   sync.WaitGroup
}

func New(walker Walker, target Target) *Scheduler {
	base, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		walker: walker,
		target: target,
		short:  DefaultShortPoll,
		long:   DefaultLongPoll,
		base:   base,
		cancel: cancel,
	}
}

// WithIntervals returns a new scheduler with the given poll cadences; zero
// keeps the current value.  The receiver is left untouched.
func (s *Scheduler) WithIntervals(short, long time.Duration) *Scheduler {
	ns := New(s.walker, s.target)
	ns.short, ns.long = s.short, s.long

	if short > 0 {
		ns.short = short
	}
	if long > 0 {
		ns.long = long
	}
	return ns
}

// Discovering reports whether a discovery task is in flight
func (s *Scheduler) Discovering() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight()
}

// must hold s.mu
func (s *Scheduler) inFlight() bool {
	if s.done == nil {
		return false
	}

	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Discover starts a background discovery task.  It returns false, and does
// nothing else, when a task is already running.  ctx only supplies logging
// fields; the task outlives it.
func (s *Scheduler) Discover(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight() {
		logging.Logger(ctx).Info("Discovery is still in progress")
		return false
	}

	if s.base.Err() != nil {
		logging.Logger(ctx).Debug("Scheduler stopped, not starting discovery")
		return false
	}

	runID := uuid.New().String()
	logging.Logger(ctx).WithField("runid", runID).Info("Starting discovery")

	done := make(chan struct{})
	s.done = done

	taskCtx := logging.WithRunID(s.base, runID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)

		s.discover(taskCtx)
	}()

	return true
}

func (s *Scheduler) discover(ctx context.Context) {
	log := logging.Logger(ctx)
	start := time.Now()

	descs, err := s.walker.Walk(ctx)
	if err != nil {
		log.WithError(err).Error("Discovery failed")
		return
	}

	if ctx.Err() != nil {
		log.Info("Discovery cancelled")
		return
	}

	s.target.ApplyDiscovery(ctx, descs)
	log.Infof("Discovery finished in %v", time.Since(start).Round(time.Millisecond))
}

// ShortPoll refreshes every node unless discovery is running
func (s *Scheduler) ShortPoll(ctx context.Context) {
	if s.Discovering() {
		logging.Logger(ctx).Debug("Skipping short poll while discovery in progress")
		return
	}

	s.target.SyncAll(ctx)
}

// LongPoll toggles the heartbeat and re-runs discovery
func (s *Scheduler) LongPoll(ctx context.Context) {
	s.target.Heartbeat(ctx)
	s.Discover(ctx)
}

// Run discovers and sends a heartbeat, then polls until ctx is done.  A
// running discovery task is cancelled and waited for before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	log := logging.Logger(ctx)
	log.Infof("Polling every %v (short) and %v (long)", s.short, s.long)

	s.Discover(ctx)
	s.target.Heartbeat(ctx)

	short := time.NewTicker(s.short)
	defer short.Stop()
	long := time.NewTicker(s.long)
	defer long.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Scheduler shutting down")
			s.Stop()
			return nil
		case <-short.C:
			s.ShortPoll(ctx)
		case <-long.C:
			s.LongPoll(ctx)
		}
	}
}

// Stop cancels any running discovery task and waits for it
func (s *Scheduler) Stop() {
	// under the lock so no task can start once Wait begins
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()

	s.Wait()
}

// Wait blocks until no discovery task is running
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
