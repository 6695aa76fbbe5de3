// Package dispatch accepts normalized events, resolves them against the
// current config snapshot, and drives asynchronous workflow runs.
package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/voicebridge/voicebridge/internal/configstore"
	"github.com/voicebridge/voicebridge/internal/domain"
	"github.com/voicebridge/voicebridge/internal/logging"
	"github.com/voicebridge/voicebridge/internal/rules"
	"github.com/voicebridge/voicebridge/internal/store"
	"github.com/voicebridge/voicebridge/internal/workflow"
)

// ErrUnknownAgent indicates the event names no configured agent.
var ErrUnknownAgent = errors.New("unknown agent")

// Options bounds the dispatcher.
type Options struct {
	// MaxConcurrentRuns caps runs executing at once; further accepted
	// events wait for a slot.
	MaxConcurrentRuns int
}

// Notifier observes finished runs (e.g. the gateway's event stream).
type Notifier func(rec store.RunRecord)

// Dispatcher is the pipeline between the gateway and the executor.
// Resolution happens synchronously at accept time against the snapshot
// current at arrival; execution happens on a background goroutine.
type Dispatcher struct {
	configs  *configstore.Store
	executor *workflow.Executor
	archive  store.Store
	log      *logging.Logger

	sem chan struct{}
	wg  sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]*domain.WorkflowRun
	notify   Notifier
}

// New creates a dispatcher.
func New(configs *configstore.Store, executor *workflow.Executor, archive store.Store, opts Options, log *logging.Logger) *Dispatcher {
	if opts.MaxConcurrentRuns < 1 {
		opts.MaxConcurrentRuns = 32
	}
	return &Dispatcher{
		configs:  configs,
		executor: executor,
		archive:  archive,
		log:      log.Sub("dispatch"),
		sem:      make(chan struct{}, opts.MaxConcurrentRuns),
		inflight: make(map[string]*domain.WorkflowRun),
	}
}

// SetNotifier registers the finished-run observer. Call before serving.
func (d *Dispatcher) SetNotifier(n Notifier) {
	d.notify = n
}

// Dispatch accepts one event. It resolves synchronously and schedules
// execution; the returned run is still in progress. A redelivered event
// cancels the in-flight run it supersedes and starts a fresh one; a
// redelivery with no in-flight run is acknowledged without a new run
// (nil, nil).
func (d *Dispatcher) Dispatch(ctx context.Context, ev *domain.ConversationEvent) (*domain.WorkflowRun, error) {
	snap := d.configs.Snapshot()
	if snap == nil {
		return nil, configstore.ErrNotFound
	}

	agent, ok := snap.Agent(ev.AgentID)
	if !ok {
		agent, ok = snap.AgentByPlatformID(ev.AgentID)
	}
	if !ok {
		return nil, ErrUnknownAgent
	}

	first, err := d.archive.MarkEvent(ctx, ev.ID, ev.ReceivedAt)
	if err != nil {
		return nil, err
	}
	if !first {
		if !d.supersede(ev.ID) {
			d.log.Debug().Str("event", ev.ID).Msg("duplicate delivery ignored")
			return nil, nil
		}
		d.log.Info().Str("event", ev.ID).Msg("duplicate delivery supersedes in-flight run")
	}

	eff, err := rules.Resolve(agent, snap.Matrix, ev.Type, ev)
	if err != nil {
		return nil, err
	}

	run := domain.NewWorkflowRun(uuid.New().String(), *ev)
	d.mu.Lock()
	d.inflight[ev.ID] = run
	d.mu.Unlock()

	// Execution outlives the delivery request that carried the event.
	d.wg.Add(1)
	go d.execute(context.WithoutCancel(ctx), run, eff, ev)

	return run, nil
}

// supersede cancels the in-flight run for an event id. Reports whether
// one was found.
func (d *Dispatcher) supersede(eventID string) bool {
	d.mu.Lock()
	run, ok := d.inflight[eventID]
	d.mu.Unlock()
	if ok {
		run.Cancel()
	}
	return ok
}

func (d *Dispatcher) execute(ctx context.Context, run *domain.WorkflowRun, eff *rules.EffectiveConfig, ev *domain.ConversationEvent) {
	defer d.wg.Done()

	d.sem <- struct{}{}
	defer func() { <-d.sem }()

	d.executor.Execute(ctx, run, eff, ev)

	d.mu.Lock()
	if d.inflight[ev.ID] == run {
		delete(d.inflight, ev.ID)
	}
	d.mu.Unlock()

	if err := d.archive.SaveRun(ctx, run); err != nil {
		d.log.Error().Err(err).Str("run", run.ID).Msg("failed to archive run")
	}
	if d.notify != nil {
		d.notify(snapshotRecord(run))
	}
}

// InflightCount returns the number of runs not yet finished.
func (d *Dispatcher) InflightCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

// Drain waits for all accepted runs to finish or for ctx to expire.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func snapshotRecord(run *domain.WorkflowRun) store.RunRecord {
	return store.RunRecord{
		ID:         run.ID,
		EventID:    run.EventID,
		AgentID:    run.AgentID,
		EventType:  run.EventType,
		Status:     run.Status,
		Error:      run.Error,
		Attempts:   run.Attempts(),
		Outcomes:   run.Outcomes(),
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
}
