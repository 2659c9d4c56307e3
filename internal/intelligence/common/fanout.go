// Package common holds the concurrency primitives shared by the pipeline
// stages: a generic, index-aligned fan-out with a bounded semaphore and a
// per-unit deadline.
package common

import (
	"context"
	stdliberrors "errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/turtacn/livecare/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/livecare/internal/infrastructure/monitoring/prometheus"
)

// ---------------------------------------------------------------------------
// Sentinel Errors
// ---------------------------------------------------------------------------

// ErrUnitPanicked wraps the value recovered from a panicking unit.
var ErrUnitPanicked = stdliberrors.New("fan-out unit panicked")

// ---------------------------------------------------------------------------
// UnitStatus
// ---------------------------------------------------------------------------

// UnitStatus is the outcome of one fan-out unit.
type UnitStatus int

const (
	UnitSucceeded UnitStatus = iota
	UnitFailed
	UnitTimedOut
	UnitCancelled
	UnitPanicked
)

func (s UnitStatus) String() string {
	switch s {
	case UnitSucceeded:
		return "SUCCEEDED"
	case UnitFailed:
		return "FAILED"
	case UnitTimedOut:
		return "TIMED_OUT"
	case UnitCancelled:
		return "CANCELLED"
	case UnitPanicked:
		return "PANICKED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

func (s UnitStatus) outcome() string {
	switch s {
	case UnitSucceeded:
		return prometheus.OutcomeOK
	case UnitTimedOut:
		return prometheus.OutcomeTimeout
	case UnitPanicked:
		return prometheus.OutcomePanic
	default:
		return prometheus.OutcomeError
	}
}

// ---------------------------------------------------------------------------
// Generic types
// ---------------------------------------------------------------------------

// UnitFunc processes one input under its own deadline.
type UnitFunc[In, Out any] func(ctx context.Context, in In) (Out, error)

// Result is the slot for inputs[Index]. Value is the zero value unless
// Status is UnitSucceeded.
type Result[Out any] struct {
	Index    int
	Value    Out
	Err      error
	Status   UnitStatus
	Duration time.Duration
}

// OK reports whether the unit succeeded.
func (r Result[Out]) OK() bool { return r.Status == UnitSucceeded }

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

const (
	DefaultConcurrency = 8
	DefaultUnitTimeout = 20 * time.Second
)

type fanoutConfig struct {
	stage       string
	concurrency int
	unitTimeout time.Duration
	logger      logging.Logger
	metrics     *prometheus.PipelineMetrics
}

// Option configures Run.
type Option func(*fanoutConfig)

// WithStage names the fan-out in logs and metrics.
func WithStage(name string) Option {
	return func(c *fanoutConfig) { c.stage = name }
}

// WithConcurrency bounds the number of units in flight. n <= 0 starts every
// unit at once.
func WithConcurrency(n int) Option {
	return func(c *fanoutConfig) { c.concurrency = n }
}

// WithUnitTimeout sets the deadline applied to each unit. d <= 0 keeps the default.
func WithUnitTimeout(d time.Duration) Option {
	return func(c *fanoutConfig) {
		if d > 0 {
			c.unitTimeout = d
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(c *fanoutConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithMetrics(m *prometheus.PipelineMetrics) Option {
	return func(c *fanoutConfig) { c.metrics = m }
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

// Run applies fn to every input concurrently and returns one Result per
// input, in input order. A failing, slow or panicking unit affects only its
// own slot. Cancelling ctx marks units that have not started as cancelled.
func Run[In, Out any](ctx context.Context, inputs []In, fn UnitFunc[In, Out], opts ...Option) []Result[Out] {
	cfg := &fanoutConfig{
		stage:       "fanout",
		concurrency: DefaultConcurrency,
		unitTimeout: DefaultUnitTimeout,
		logger:      logging.NewNopLogger(),
	}
	for _, o := range opts {
		o(cfg)
	}

	results := make([]Result[Out], len(inputs))
	if len(inputs) == 0 {
		return results
	}

	slots := cfg.concurrency
	if slots <= 0 || slots > len(inputs) {
		slots = len(inputs)
	}
	sem := make(chan struct{}, slots)
	var wg sync.WaitGroup
	for i := range inputs {
		wg.Add(1)
		go func(idx int, in In) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = Result[Out]{Index: idx, Err: ctx.Err(), Status: UnitCancelled}
				cfg.metrics.RecordFanoutUnit(cfg.stage, UnitCancelled.outcome())
				return
			}

			results[idx] = runUnit(ctx, idx, in, fn, cfg)
			cfg.metrics.RecordFanoutUnit(cfg.stage, results[idx].Status.outcome())
		}(i, inputs[i])
	}
	wg.Wait()
	return results
}

type unitOutcome[Out any] struct {
	value     Out
	err       error
	recovered interface{}
	stack     []byte
}

// runUnit waits for fn or the unit deadline, whichever comes first. A unit
// that ignores its context is abandoned when the deadline passes.
func runUnit[In, Out any](parent context.Context, idx int, in In, fn UnitFunc[In, Out], cfg *fanoutConfig) Result[Out] {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, cfg.unitTimeout)
	defer cancel()

	done := make(chan unitOutcome[Out], 1)
	go func() {
		var o unitOutcome[Out]
		defer func() {
			if r := recover(); r != nil {
				o = unitOutcome[Out]{recovered: r, stack: debug.Stack()}
			}
			done <- o
		}()
		o.value, o.err = fn(ctx, in)
	}()

	res := Result[Out]{Index: idx}
	var err error
	select {
	case o := <-done:
		if o.recovered != nil {
			res.Err = fmt.Errorf("%w: %v", ErrUnitPanicked, o.recovered)
			res.Status = UnitPanicked
			res.Duration = time.Since(start)
			cfg.logger.Error("fan-out unit panicked",
				logging.String("stage", cfg.stage),
				logging.Int("index", idx),
				logging.Any("panic", o.recovered),
				logging.String("stack", string(o.stack)))
			return res
		}
		if o.err == nil {
			res.Value = o.value
			res.Status = UnitSucceeded
			res.Duration = time.Since(start)
			return res
		}
		err = o.err
	case <-ctx.Done():
		err = ctx.Err()
	}

	res.Err = err
	res.Status = classify(parent, err)
	res.Duration = time.Since(start)
	cfg.logger.Warn("fan-out unit failed",
		logging.String("stage", cfg.stage),
		logging.Int("index", idx),
		logging.String("status", res.Status.String()),
		logging.Duration("elapsed", res.Duration),
		logging.Err(err))
	return res
}

func classify(parent context.Context, err error) UnitStatus {
	switch {
	case parent.Err() != nil:
		return UnitCancelled
	case stdliberrors.Is(err, context.DeadlineExceeded):
		return UnitTimedOut
	case stdliberrors.Is(err, context.Canceled):
		return UnitCancelled
	default:
		return UnitFailed
	}
}

// Values returns the successful values in input order, dropping failed slots.
func Values[Out any](results []Result[Out]) []Out {
	out := make([]Out, 0, len(results))
	for _, r := range results {
		if r.OK() {
			out = append(out, r.Value)
		}
	}
	return out
}
