// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/sleapenv/sleapenv/internal/env"
	"github.com/sleapenv/sleapenv/internal/issue"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/sleapenv/sleapenv/internal/pipeline"

const (
	// StatusSucceeded means the step or run completed.
	StatusSucceeded Status = "succeeded"
	// StatusFailed means the step or run stopped on an error.
	StatusFailed Status = "failed"
	// StatusNotRun marks steps after a failure.
	StatusNotRun Status = "not-run"
)

var (
	// ErrDuplicateStep is returned by New when two steps share a name.
	ErrDuplicateStep = errors.New("duplicate step")
	// ErrStepNotInPipeline is returned by Only for names the pipeline lacks.
	ErrStepNotInPipeline = errors.New("step not in pipeline")
)

type (
	// Status is the outcome of a step or a run.
	Status string

	// StepReport is the outcome of one step.
	StepReport struct {
		Name     StepName
		Status   Status
		Duration time.Duration
		Err      error
	}

	// Result is the outcome of a run. A failed run names the first faulting step.
	Result struct {
		Status     Status
		Steps      []StepReport
		FailedStep StepName
	}

	// Option configures a Pipeline.
	Option func(*Pipeline)

	// Pipeline is an ordered, immutable list of steps.
	Pipeline struct {
		steps  []Step
		tracer trace.Tracer
		now    func() time.Time
	}
)

// Succeeded reports whether every step ran and succeeded.
func (r *Result) Succeeded() bool { return r.Status == StatusSucceeded }

// WithTracerProvider sets the provider step spans are recorded with.
// The default is the global provider, a no-op unless the program installs one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Pipeline) { p.tracer = tp.Tracer(tracerName) }
}

// WithClock sets the time source used for step durations.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New returns a pipeline running steps in canonical order regardless of the
// order given. Unknown or duplicate step names are rejected.
func New(steps []Step, opts ...Option) (*Pipeline, error) {
	seen := make(map[StepName]bool, len(steps))
	for _, s := range steps {
		if err := s.Name().Validate(); err != nil {
			return nil, err
		}
		if seen[s.Name()] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStep, s.Name())
		}
		seen[s.Name()] = true
	}

	ordered := slices.Clone(steps)
	slices.SortStableFunc(ordered, func(a, b Step) int { return a.Name().index() - b.Name().index() })

	p := &Pipeline{
		steps:  ordered,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Steps returns the step names in run order.
func (p *Pipeline) Steps() []StepName {
	names := make([]StepName, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return names
}

// Only returns a pipeline restricted to names, still in canonical order.
// No names returns p unchanged.
func (p *Pipeline) Only(names ...StepName) (*Pipeline, error) {
	if len(names) == 0 {
		return p, nil
	}
	have := p.Steps()
	for _, n := range names {
		if err := n.Validate(); err != nil {
			return nil, err
		}
		if !slices.Contains(have, n) {
			return nil, fmt.Errorf("%w: %s", ErrStepNotInPipeline, n)
		}
	}

	sub := &Pipeline{tracer: p.tracer, now: p.now}
	for _, s := range p.steps {
		if slices.Contains(names, s.Name()) {
			sub.steps = append(sub.steps, s)
		}
	}
	return sub, nil
}

// Run executes the steps serially against e. It stops at the first failing
// step and returns the partial result together with a *StepError.
func (p *Pipeline) Run(ctx context.Context, e *env.Environment) (*Result, error) {
	res := &Result{Status: StatusSucceeded, Steps: make([]StepReport, 0, len(p.steps))}
	logger := e.Logger()

	for i, s := range p.steps {
		logger.Info("step started", "step", s.Name())
		start := p.now()
		err := p.runStep(ctx, s, e)
		report := StepReport{Name: s.Name(), Status: StatusSucceeded, Duration: p.now().Sub(start), Err: err}

		if err != nil {
			report.Status = StatusFailed
			res.Steps = append(res.Steps, report)
			for _, rest := range p.steps[i+1:] {
				res.Steps = append(res.Steps, StepReport{Name: rest.Name(), Status: StatusNotRun})
			}
			res.Status = StatusFailed
			res.FailedStep = s.Name()
			logger.Error("step failed", "step", s.Name(), "err", err)
			return res, err
		}

		res.Steps = append(res.Steps, report)
		logger.Info("step finished", "step", s.Name(), "duration", report.Duration.Round(time.Millisecond))
	}

	return res, nil
}

func (p *Pipeline) runStep(ctx context.Context, s Step, e *env.Environment) (err error) {
	ctx, span := p.tracer.Start(ctx, "step."+string(s.Name()),
		trace.WithAttributes(attribute.String("step", string(s.Name()))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	fail := func(phase Phase, cause error) error {
		kind := issue.KindOf(cause)
		if kind == "" {
			kind = s.Kind()
		}
		span.SetAttributes(attribute.String("phase", string(phase)), attribute.String("kind", string(kind)))
		return &StepError{Step: s.Name(), Phase: phase, Kind: kind, Err: cause}
	}

	if err := ctx.Err(); err != nil {
		return fail(PhaseCheck, err)
	}
	if c, ok := s.(Checker); ok {
		if err := c.Check(ctx, e); err != nil {
			return fail(PhaseCheck, err)
		}
	}
	if err := s.Apply(ctx, e); err != nil {
		return fail(PhaseApply, err)
	}
	if v, ok := s.(Verifier); ok {
		if err := v.Verify(ctx, e); err != nil {
			return fail(PhaseVerify, err)
		}
	}
	return nil
}
