// Package saga runs a fixed sequence of money movement steps and, when a step
// fails, undoes the completed ones in reverse order. New flows are added by
// declaring their steps and undo actions.
package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/walletflow/walletflow/internal/failure"
)

// State names the state a flow reaches when a step succeeds.
type State string

// Step is one forward action and its compensation. A nil Undo means the step
// has nothing to revert.
type Step struct {
	Name State
	Do   func(ctx context.Context) error
	Undo func(ctx context.Context) error
}

// CompensationPolicy bounds how hard the saga tries to revert completed steps.
type CompensationPolicy struct {
	Attempts  int           // Tries per undo, including the first
	BaseDelay time.Duration // Backoff base between transport failures
	Timeout   time.Duration // Budget for the whole compensation pass
}

// DefaultCompensationPolicy fills zero policy fields.
var DefaultCompensationPolicy = CompensationPolicy{Attempts: 3, BaseDelay: 100 * time.Millisecond, Timeout: 15 * time.Second}

func (p CompensationPolicy) withDefaults() CompensationPolicy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultCompensationPolicy.Attempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultCompensationPolicy.Timeout
	}
	return p
}

// Saga is a sequential flow. It is not safe for concurrent Runs; build one per
// movement.
type Saga struct {
	name   string
	kind   error
	policy CompensationPolicy
	logger *slog.Logger
	steps  []Step
	sleep  func(context.Context, time.Duration) error
}

// New creates an empty saga. kind is the error reported when the flow fails
// after its completed steps were reverted, for example failure.ErrTransferFailed.
func New(name string, kind error, policy CompensationPolicy, logger *slog.Logger) *Saga {
	if logger == nil {
		logger = slog.Default()
	}
	return &Saga{
		name:   name,
		kind:   kind,
		policy: policy.withDefaults(),
		logger: logger,
		sleep:  sleepContext,
	}
}

// Then appends a step.
func (s *Saga) Then(name State, do, undo func(ctx context.Context) error) *Saga {
	s.steps = append(s.steps, Step{Name: name, Do: do, Undo: undo})
	return s
}

// Outcome records how far a run got.
type Outcome struct {
	Completed       []State
	Failed          State // Step that failed, empty on success
	Cause           error // Error returned by the failed step
	Compensated     bool  // Every completed undo succeeded
	CompensationErr error

	name string
	kind error
}

// Succeeded reports whether every step completed.
func (o Outcome) Succeeded() bool { return o.Cause == nil }

// Err classifies the outcome:
//   - nil when every step completed,
//   - the step's own error when nothing had to be reverted,
//   - the saga kind wrapping the cause when completed steps were reverted,
//   - failure.ErrCompensationFailed when any revert failed.
func (o Outcome) Err() error {
	switch {
	case o.Cause == nil:
		return nil
	case o.CompensationErr != nil:
		return failure.Wrap(failure.ErrCompensationFailed,
			fmt.Errorf("%w; compensation: %w", o.Cause, o.CompensationErr),
			fmt.Sprintf("%s failed at %s and could not be reverted", o.name, o.Failed))
	case !o.Compensated:
		return o.Cause
	default:
		return failure.Wrap(o.kind, o.Cause, fmt.Sprintf("%s failed at %s", o.name, o.Failed))
	}
}

// Run executes the steps in order. A caller cancellation stops forward
// progress but does not cut compensation short.
func (s *Saga) Run(ctx context.Context) Outcome {
	out := Outcome{name: s.name, kind: s.kind}
	var done []Step

	for _, step := range s.steps {
		if err := step.Do(ctx); err != nil {
			out.Failed = step.Name
			out.Cause = err
			break
		}
		done = append(done, step)
		out.Completed = append(out.Completed, step.Name)
	}
	if out.Cause == nil {
		return out
	}

	var undo []Step
	for _, step := range done {
		if step.Undo != nil {
			undo = append(undo, step)
		}
	}
	if len(undo) == 0 {
		return out
	}

	s.logger.WarnContext(ctx, "compensating",
		slog.String("flow", s.name),
		slog.String("failed_step", string(out.Failed)),
		slog.String("error", out.Cause.Error()),
	)

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.policy.Timeout)
	defer cancel()

	var errs []error
	for i := len(undo) - 1; i >= 0; i-- {
		if err := s.compensate(cctx, undo[i]); err != nil {
			errs = append(errs, fmt.Errorf("undo %s: %w", undo[i].Name, err))
		}
	}
	if len(errs) > 0 {
		out.CompensationErr = errors.Join(errs...)
		return out
	}
	out.Compensated = true
	return out
}

// compensate retries the undo only while it fails with a transport error.
func (s *Saga) compensate(ctx context.Context, step Step) error {
	var err error
	for attempt := 0; attempt < s.policy.Attempts; attempt++ {
		if err = step.Undo(ctx); err == nil {
			return nil
		}
		if !failure.IsTransport(err) {
			return err
		}
		if attempt+1 == s.policy.Attempts {
			break
		}
		s.logger.WarnContext(ctx, "compensation attempt failed",
			slog.String("flow", s.name),
			slog.String("step", string(step.Name)),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
		if serr := s.sleep(ctx, backoffDelay(s.policy.BaseDelay, attempt)); serr != nil {
			return fmt.Errorf("%w (compensation budget exhausted: %v)", err, serr)
		}
	}
	return err
}
