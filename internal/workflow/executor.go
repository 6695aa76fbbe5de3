// Package workflow runs the resolved action pipeline for one event,
// with per-action retries and partial failure isolation.
package workflow

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voicebridge/voicebridge/internal/adapter"
	"github.com/voicebridge/voicebridge/internal/domain"
	"github.com/voicebridge/voicebridge/internal/logging"
	"github.com/voicebridge/voicebridge/internal/rules"
)

// Options bounds retries and per-action time.
type Options struct {
	// MaxAttempts caps attempts per action, first try included.
	MaxAttempts int
	// RetryBase is the first backoff delay; each retry doubles it up to
	// RetryMax. Jitter of up to half the delay is added.
	RetryBase time.Duration
	RetryMax  time.Duration
	// ActionTimeout bounds a single adapter call.
	ActionTimeout time.Duration
}

// Executor drives one run at a time; the dispatcher owns cross-run
// concurrency.
type Executor struct {
	registry *adapter.Registry
	opts     Options
	log      *logging.Logger

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an executor over the given adapter registry.
func New(registry *adapter.Registry, opts Options, log *logging.Logger) *Executor {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 500 * time.Millisecond
	}
	if opts.RetryMax < opts.RetryBase {
		opts.RetryMax = opts.RetryBase
	}
	return &Executor{
		registry: registry,
		opts:     opts,
		log:      log.Sub("executor"),
		sleep:    sleepCtx,
	}
}

// Execute runs every step of the effective configuration and finishes
// the run with its terminal status. Steps in the same dependency level
// run concurrently; a failed step marks its dependents skipped without
// touching unrelated steps.
func (e *Executor) Execute(ctx context.Context, run *domain.WorkflowRun, eff *rules.EffectiveConfig, ev *domain.ConversationEvent) {
	rlog := e.log.WithRun(run.ID)

	if eff.NoOp() {
		run.Finish(domain.RunCompleted)
		rlog.Debug().Str("trigger", eff.Trigger).Msg("no-op resolution")
		return
	}

	levels := dependencyLevels(eff.Steps)

	var mu sync.Mutex
	failed := map[string]bool{}

	cancelled := false
	for _, level := range levels {
		if run.Cancelled() || ctx.Err() != nil {
			cancelled = true
			break
		}

		var g errgroup.Group
		for _, step := range level {
			mu.Lock()
			blocked := dependencyFailed(step, failed)
			mu.Unlock()
			if blocked {
				run.Record(step.Name, 0, domain.ActionSkipped, fmt.Errorf("dependency failed"))
				mu.Lock()
				failed[step.Name] = true
				mu.Unlock()
				continue
			}

			g.Go(func() error {
				if err := e.runStep(ctx, run, step, ev); err != nil {
					mu.Lock()
					failed[step.Name] = true
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	run.Finish(finalStatus(eff.Steps, run, cancelled || run.Cancelled()))
	rlog.Info().
		Str("status", string(run.Status)).
		Str("template", eff.Template).
		Int("steps", len(eff.Steps)).
		Msg("run finished")
}

// runStep performs one step with bounded retries. Only transient
// failures are retried.
func (e *Executor) runStep(ctx context.Context, run *domain.WorkflowRun, step rules.ResolvedStep, ev *domain.ConversationEvent) error {
	a, ok := e.registry.Get(step.Capability)
	if !ok {
		err := fmt.Errorf("no adapter registered for capability %q", step.Capability)
		run.Record(step.Name, 1, domain.ActionFailed, err)
		return err
	}

	results := make(map[string]domain.Outcome, len(step.DependsOn))
	for _, dep := range step.DependsOn {
		if out, ok := run.OutcomeOf(dep); ok {
			results[dep] = out
		}
	}
	inv := adapter.Invocation{
		Step:       step.Name,
		Capability: step.Capability,
		Params:     step.Params,
		Event:      ev,
		Results:    results,
	}

	var lastErr error
	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		run.Record(step.Name, attempt, domain.ActionRunning, nil)

		out, err := e.performOnce(ctx, a, inv)
		if err == nil {
			run.SetOutcome(step.Name, out)
			run.Record(step.Name, attempt, domain.ActionSucceeded, nil)
			return nil
		}
		lastErr = err

		if !adapter.IsTransient(err) || attempt == e.opts.MaxAttempts {
			break
		}
		if run.Cancelled() {
			break
		}

		run.Record(step.Name, attempt, domain.ActionRetrying, err)
		if serr := e.sleep(ctx, e.backoff(attempt)); serr != nil {
			lastErr = serr
			break
		}
	}

	run.Record(step.Name, e.lastAttempt(run, step.Name), domain.ActionFailed, lastErr)
	return lastErr
}

func (e *Executor) performOnce(ctx context.Context, a adapter.Adapter, inv adapter.Invocation) (domain.Outcome, error) {
	// A superseded run lets the in-flight call finish; only the action
	// timeout and process shutdown bound it.
	if e.opts.ActionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.ActionTimeout)
		defer cancel()
	}
	return a.Perform(ctx, inv)
}

// backoff returns the delay before the given attempt's retry:
// exponential from RetryBase, capped at RetryMax, with jitter up to
// half the delay.
func (e *Executor) backoff(attempt int) time.Duration {
	d := e.opts.RetryBase << (attempt - 1)
	if d > e.opts.RetryMax || d <= 0 {
		d = e.opts.RetryMax
	}
	return d + rand.N(d/2+1)
}

func (e *Executor) lastAttempt(run *domain.WorkflowRun, step string) int {
	last := 1
	for _, a := range run.Attempts() {
		if a.Action == step && a.Attempt > last {
			last = a.Attempt
		}
	}
	return last
}

// dependencyLevels orders steps into levels where every step's
// dependencies sit in an earlier level. Load-time validation guarantees
// dependencies only point backwards.
func dependencyLevels(steps []rules.ResolvedStep) [][]rules.ResolvedStep {
	depth := make(map[string]int, len(steps))
	for _, s := range steps {
		d := 0
		for _, dep := range s.DependsOn {
			if dd, ok := depth[dep]; ok && dd+1 > d {
				d = dd + 1
			}
		}
		depth[s.Name] = d
	}

	maxDepth := 0
	for _, d := range depth {
		if d > maxDepth {
			maxDepth = d
		}
	}
	levels := make([][]rules.ResolvedStep, maxDepth+1)
	for _, s := range steps {
		d := depth[s.Name]
		levels[d] = append(levels[d], s)
	}
	return levels
}

func dependencyFailed(step rules.ResolvedStep, failed map[string]bool) bool {
	for _, dep := range step.DependsOn {
		if failed[dep] {
			return true
		}
	}
	return false
}

// finalStatus derives the run's terminal status from the per-step
// results.
func finalStatus(steps []rules.ResolvedStep, run *domain.WorkflowRun, cancelled bool) domain.RunStatus {
	if cancelled {
		return domain.RunCancelled
	}

	anyFailed := false
	anySkipped := false
	for _, s := range steps {
		status, ok := run.LastStatusOf(s.Name)
		if !ok {
			anySkipped = true
			continue
		}
		switch status {
		case domain.ActionFailed:
			anyFailed = true
		case domain.ActionSkipped:
			anySkipped = true
		}
	}

	switch {
	case anySkipped:
		return domain.RunAborted
	case anyFailed:
		return domain.RunPartial
	default:
		return domain.RunCompleted
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
