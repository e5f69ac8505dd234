package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Step is one stage of a pipeline. Steps receive the shared state and may
// modify it.
type Step[T any] interface {
	// Do executes the step. A returned error fails the state's run.
	Do(ctx context.Context, state *T) error

	// Name returns the step's name for logging.
	Name() string
}

// ErrStepPanic is wrapped by the StepError of a step that panicked.
var ErrStepPanic = errors.New("step panicked")

// StepError reports the step that failed.
type StepError struct {
	Step string
	Err  error
}

// Error implements error.
func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

// Unwrap returns the step's error.
func (e *StepError) Unwrap() error {
	return e.Err
}

// funcStep adapts a function to Step.
type funcStep[T any] struct {
	name string
	fn   func(ctx context.Context, state *T) error
}

func (s funcStep[T]) Do(ctx context.Context, state *T) error { return s.fn(ctx, state) }
func (s funcStep[T]) Name() string                           { return s.name }

// NewStep returns a Step that calls fn.
func NewStep[T any](name string, fn func(ctx context.Context, state *T) error) Step[T] {
	return funcStep[T]{name: name, fn: fn}
}

// settings holds the options shared by every Pipeline instantiation.
type settings struct {
	logger  *slog.Logger
	subject string
}

// Option configures a Pipeline.
type Option func(*settings)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithSubject sets the value logged as "subject" with every step, such as
// an announcement title.
func WithSubject(subject string) Option {
	return func(s *settings) {
		s.subject = subject
	}
}

// Pipeline executes steps in order over a state of type T.
type Pipeline[T any] struct {
	steps []Step[T]
	settings
}

// New creates an empty Pipeline.
func New[T any](opts ...Option) *Pipeline[T] {
	p := &Pipeline[T]{steps: make([]Step[T], 0)}
	for _, opt := range opts {
		opt(&p.settings)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline[T]) AddStep(step Step[T]) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline[T]) AddSteps(steps ...Step[T]) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all steps in sequence. Cancellation is checked before each
// step; steps handle their own timeouts.
//
// The first failing step ends the run with a *StepError. A panicking step
// is reported the same way, wrapping ErrStepPanic.
func (p *Pipeline[T]) Execute(ctx context.Context, state *T) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"subject", p.subject,
				"reason", err,
			)
			return err
		}

		start := time.Now()
		if err := runStep(ctx, step, state); err != nil {
			p.logger.Warn("step failed",
				"step", step.Name(),
				"subject", p.subject,
				"error", err,
			)
			return &StepError{Step: step.Name(), Err: err}
		}
		p.logger.Debug("step completed",
			"step", step.Name(),
			"subject", p.subject,
			"elapsed", time.Since(start),
		)
	}
	return nil
}

// runStep calls step.Do and turns a panic into an error.
func runStep[T any](ctx context.Context, step Step[T], state *T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrStepPanic, r)
		}
	}()
	return step.Do(ctx, state)
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
