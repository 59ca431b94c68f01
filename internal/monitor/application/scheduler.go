package application

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	devices "vitalwatch-cloud/internal/devices/domain"
	"vitalwatch-cloud/internal/observability/metrics"
)

// ErrTickInProgress is returned when a tick fires while the previous
// one is still running. Overlapping ticks are skipped, not queued.
var ErrTickInProgress = errors.New("scheduler: tick in progress")

const (
	defaultTickInterval  = 5 * time.Second
	defaultShutdownGrace = 5 * time.Second
)

// Scheduler drives the periodic monitoring cycle: each tick snapshots
// the eligible device set and fans out one pipeline per device.
type Scheduler struct {
	registry devices.Registry
	pipeline *Pipeline
	interval time.Duration
	workers  int
	grace    time.Duration
	logger   *log.Logger

	running  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// SchedulerOption customizes the scheduler.
type SchedulerOption func(*Scheduler)

// WithInterval overrides the tick interval.
func WithInterval(interval time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithWorkerCap bounds per-tick pipeline concurrency. Zero means one
// goroutine per device, which is fine at this fleet scale.
func WithWorkerCap(workers int) SchedulerOption {
	return func(s *Scheduler) {
		if workers > 0 {
			s.workers = workers
		}
	}
}

// WithShutdownGrace bounds how long Stop waits for an in-flight tick.
func WithShutdownGrace(grace time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if grace > 0 {
			s.grace = grace
		}
	}
}

// NewScheduler constructs a scheduler.
func NewScheduler(registry devices.Registry, pipeline *Pipeline, logger *log.Logger, opts ...SchedulerOption) (*Scheduler, error) {
	if registry == nil {
		return nil, errors.New("scheduler: nil registry")
	}
	if pipeline == nil {
		return nil, errors.New("scheduler: nil pipeline")
	}
	if logger == nil {
		return nil, errors.New("scheduler: nil logger")
	}
	scheduler := &Scheduler{
		registry: registry,
		pipeline: pipeline,
		interval: defaultTickInterval,
		grace:    defaultShutdownGrace,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(scheduler)
	}
	return scheduler, nil
}

// Start runs the tick loop until the context is cancelled or Stop is
// called. Run it in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil {
		return
	}
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case now := <-ticker.C:
			if err := s.Tick(ctx, now.UTC()); err != nil && !errors.Is(err, ErrTickInProgress) {
				s.logger.Printf("tick error: ts=%s err=%v", now.UTC().Format(time.RFC3339), err)
			}
			// Drain a fire that accumulated while the tick ran so an
			// overrun skips the missed tick instead of queueing it.
			select {
			case <-ticker.C:
			default:
			}
		}
	}
}

// Stop halts the timer and waits for an in-flight tick, bounded by the
// shutdown grace and the caller's context. Safe to call more than once.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.stopOnce.Do(func() { close(s.stop) })
	timer := time.NewTimer(s.grace)
	defer timer.Stop()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.New("scheduler: shutdown grace elapsed")
	}
}

// Tick runs one monitoring cycle: snapshot the eligible devices, then
// run each device's pipeline concurrently and wait for all of them.
// A registry failure aborts the tick early; a single device's failure
// is logged and never prevents siblings from completing.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) error {
	if s == nil {
		return errors.New("scheduler: nil scheduler")
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrTickInProgress
	}
	defer s.running.Store(false)

	started := time.Now()

	eligible, err := s.registry.ListEligible(ctx)
	if err != nil {
		metrics.ObserveTick("registry_error", time.Since(started), 0)
		s.logger.Printf("registry query failed: ts=%s err=%v", now.Format(time.RFC3339), err)
		return err
	}
	if len(eligible) == 0 {
		metrics.ObserveTick("success", time.Since(started), 0)
		return nil
	}

	tickCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-tickCtx.Done():
		}
	}()

	var sem chan struct{}
	if s.workers > 0 {
		sem = make(chan struct{}, s.workers)
	}

	var wg sync.WaitGroup
	var failures atomic.Int64
	for _, device := range eligible {
		wg.Add(1)
		go func(device devices.Device) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			defer func() {
				if r := recover(); r != nil {
					failures.Add(1)
					metrics.IncPipelineFailure("panic")
					s.logger.Printf("device pipeline panic: device=%s ts=%s panic=%v", device.ID, now.Format(time.RFC3339), r)
				}
			}()
			if err := s.pipeline.Run(tickCtx, device); err != nil {
				failures.Add(1)
				s.logger.Printf("device pipeline failed: device=%s ts=%s err=%v", device.ID, now.Format(time.RFC3339), err)
			}
		}(device)
	}
	wg.Wait()

	result := "success"
	if failures.Load() > 0 {
		result = "partial"
	}
	metrics.ObserveTick(result, time.Since(started), len(eligible))
	return nil
}
