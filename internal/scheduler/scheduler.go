// Package scheduler drives the relay pipeline on a fixed period and never
// lets two cycles overlap.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/insurance-relay/internal/relay"
)

// Runner is one unit of work, normally (*relay.Pipeline).RunOnce.
type Runner interface {
	RunOnce(ctx context.Context) relay.Result
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) relay.Result

func (f RunnerFunc) RunOnce(ctx context.Context) relay.Result { return f(ctx) }

// Observer is told about every finished cycle and every skipped tick.
type Observer interface {
	ObserveCycle(res relay.Result, elapsed time.Duration)
	ObserveSkip()
}

// Options configures a Scheduler.
type Options struct {
	Interval time.Duration
	// CycleTimeout bounds a single run so hung I/O cannot hold the busy
	// flag forever. Zero disables the deadline.
	CycleTimeout time.Duration
	// RunOnStart fires one cycle immediately instead of waiting a full interval.
	RunOnStart bool
	Logger     *zap.Logger
	Observers  []Observer
}

// Scheduler owns the busy flag. Nothing else may set or clear it.
type Scheduler struct {
	runner       Runner
	interval     time.Duration
	cycleTimeout time.Duration
	runOnStart   bool
	logger       *zap.Logger
	observers    []Observer

	busy atomic.Bool
	wg   sync.WaitGroup
}

func New(runner Runner, opts Options) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("scheduler: nil runner")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("scheduler: interval must be positive, got %s", opts.Interval)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		runner:       runner,
		interval:     opts.Interval,
		cycleTimeout: opts.CycleTimeout,
		runOnStart:   opts.RunOnStart,
		logger:       logger.Named("scheduler"),
		observers:    opts.Observers,
	}, nil
}

// Busy reports whether a cycle is in flight.
func (s *Scheduler) Busy() bool { return s.busy.Load() }

// Run ticks until ctx is done, then waits for the in-flight cycle to return.
// Cancelling ctx stops new ticks; a running cycle finishes on its own deadline.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.wg.Wait()

	s.logger.Info("scheduler started",
		zap.Duration("interval", s.interval),
		zap.Duration("cycle_timeout", s.cycleTimeout))

	if s.runOnStart {
		s.Tick(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick starts a cycle unless one is already running. It returns false for a
// skipped tick. The cycle itself runs on its own goroutine.
func (s *Scheduler) Tick(ctx context.Context) bool {
	if !s.busy.CompareAndSwap(false, true) {
		s.logger.Info("skipped, previous cycle still running")
		for _, o := range s.observers {
			o.ObserveSkip()
		}
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.busy.Store(false)
		s.cycle(ctx)
	}()
	return true
}

// Wait blocks until the cycle started by the last Tick has returned.
func (s *Scheduler) Wait() { s.wg.Wait() }

func (s *Scheduler) cycle(ctx context.Context) {
	// Shutdown must not cut a cycle short between send and delete; only
	// the cycle deadline bounds it.
	ctx = context.WithoutCancel(ctx)
	if s.cycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cycleTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("cycle panicked",
				zap.Any("panic", r),
				zap.Duration("elapsed", time.Since(start)),
				zap.Stack("stack"))
		}
	}()

	res := s.runner.RunOnce(ctx)
	elapsed := time.Since(start)
	s.report(res, elapsed)
	for _, o := range s.observers {
		o.ObserveCycle(res, elapsed)
	}
}

func (s *Scheduler) report(res relay.Result, elapsed time.Duration) {
	fields := []zap.Field{
		zap.String("outcome", res.Outcome.String()),
		zap.Duration("elapsed", elapsed),
	}
	if res.MessageID != "" {
		fields = append(fields, zap.String("message_id", res.MessageID))
	}
	if res.PatientID != "" {
		fields = append(fields, zap.String("patient_id", res.PatientID))
	}

	switch res.Outcome {
	case relay.OutcomeNoMessage:
		s.logger.Debug("no message", fields...)
	case relay.OutcomeDelivered:
		s.logger.Info("message processed", fields...)
	default:
		s.logger.Warn("cycle errored", append(fields, zap.Error(res.Err))...)
	}
}
