// Package pipeline drives a screenshot-to-solution run through its stages
// and owns the cancellation tokens of the main and debug queues.
//
//	run.started
//	  → run.problem_extracted      (stage 1, extraction model, screenshots)
//	  → run.edge_cases_extracted   (stage 2)
//	  → run.solution_thinking      (stage 3)
//	  → run.approach_developed     (stage 4, thoughts + pseudocode)
//	  → run.code_generated         (stage 5)
//	  → run.succeeded              (stage 6 complexity folded into the result)
//	or run.failed / run.cancelled, exactly once.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/forge-ai/solver/services/solver/internal/provider"
	"github.com/forge-ai/solver/shared/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultLanguage is used when a request names no language.
const DefaultLanguage = "python"

// ErrCancelled is wrapped by the error Solve and Debug return for an aborted run.
var ErrCancelled = errors.New("run cancelled")

// BindingSource hands out the provider binding a run captures at start.
type BindingSource interface {
	Active() (*provider.Binding, error)
}

// SolveRequest starts an initial run.
type SolveRequest struct {
	Images   []provider.Image
	Language string
}

// Solution is the result of a completed run.
type Solution struct {
	RunID    string        `json:"run_id"`
	Provider provider.Name `json:"provider"`
	RunContext
	Thoughts []string `json:"thoughts"`
}

// Snapshot is a copy of the latest run on a queue.
type Snapshot struct {
	RunID   string     `json:"run_id,omitempty"`
	State   State      `json:"state"`
	Context RunContext `json:"context"`
}

// run is one execution on a queue. The executing goroutine owns its working
// context; readers only see what commit published.
type run struct {
	id    string
	queue string
	token *Token

	mu    sync.Mutex
	state State
	rc    RunContext
}

func (r *run) advance(to State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.state.next(to); err != nil {
		return err
	}
	r.state = to
	return nil
}

// finish moves a run straight to a terminal state. Debug runs have a single
// step and use this instead of advance.
func (r *run) finish(to State) {
	r.mu.Lock()
	if !r.state.Terminal() {
		r.state = to
	}
	r.mu.Unlock()
}

func (r *run) commit(rc *RunContext) {
	r.mu.Lock()
	r.rc = rc.clone()
	r.mu.Unlock()
}

func (r *run) finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Terminal()
}

func (r *run) snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{RunID: r.id, State: r.state, Context: r.rc.clone()}
}

// Orchestrator sequences the stages of a run and streams its events, in
// order, on a single channel. Sends block until the listener takes them, so
// the listener must keep draining until Close.
type Orchestrator struct {
	bindings BindingSource
	out      chan<- events.RunEvent

	done      chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	runs map[string]*run
}

// NewOrchestrator creates an orchestrator that emits on out. A nil out
// discards events.
func NewOrchestrator(bindings BindingSource, out chan<- events.RunEvent) *Orchestrator {
	return &Orchestrator{
		bindings: bindings,
		out:      out,
		done:     make(chan struct{}),
		runs:     make(map[string]*run),
	}
}

// Close cancels every run and stops blocking on the event channel.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.Reset()
		close(o.done)
	})
}

// Solve runs the full pipeline on the main queue. A run already in flight on
// that queue is cancelled first.
func (o *Orchestrator) Solve(ctx context.Context, req SolveRequest) (*Solution, error) {
	language := languageOr(req.Language)
	r := o.begin(ctx, events.QueueMain, language)
	defer r.token.release()

	binding, err := o.bindings.Active()
	if err != nil {
		return nil, o.failRun(r, StateIdle, provider.Classify(r.token.Context(), "", err))
	}
	if len(req.Images) == 0 {
		return nil, o.failRun(r, StateIdle, provider.Errorf(provider.KindGeneric, binding.Provider, "no screenshots to process"))
	}
	if r.token.Cancelled() {
		return nil, o.cancelRun(r, StateIdle)
	}

	in := stageInput{client: binding.Client, models: binding.Models, images: req.Images}
	o.emit(r, events.RunStarted, events.RunStartedPayload{
		Language:    language,
		Provider:    string(binding.Provider),
		Screenshots: len(req.Images),
	})
	log.Info().
		Str("run", r.id).
		Str("provider", string(binding.Provider)).
		Str("language", language).
		Int("screenshots", len(req.Images)).
		Msg("run started")

	rc := RunContext{Language: language}
	for _, st := range stages {
		if r.token.Cancelled() {
			return nil, o.cancelRun(r, st.state)
		}
		if err := r.advance(st.state); err != nil {
			return nil, err
		}

		started := time.Now()
		log.Debug().Str("run", r.id).Str("stage", st.state.String()).Msg("stage started")
		payload, err := st.exec(r.token.Context(), in, &rc)
		if r.token.Cancelled() {
			return nil, o.cancelRun(r, st.state)
		}
		if err != nil {
			e := provider.Classify(r.token.Context(), binding.Provider, err)
			if e.Kind == provider.KindCancelled {
				return nil, o.cancelRun(r, st.state)
			}
			return nil, o.failStage(r, st, e)
		}

		r.commit(&rc)
		log.Info().
			Str("run", r.id).
			Str("stage", st.state.String()).
			Dur("took", time.Since(started)).
			Msg("stage complete")
		if st.event != "" {
			o.emit(r, st.event, payload)
		}
	}

	if err := r.advance(StateDone); err != nil {
		return nil, err
	}
	sol := &Solution{
		RunID:      r.id,
		Provider:   binding.Provider,
		RunContext: rc.clone(),
		Thoughts:   rc.CombinedThoughts(),
	}
	o.emit(r, events.RunSucceeded, events.RunSucceededPayload{
		Code:            rc.Code,
		Thoughts:        sol.Thoughts,
		TimeComplexity:  rc.TimeComplexity,
		SpaceComplexity: rc.SpaceComplexity,
	})
	log.Info().Str("run", r.id).Str("time", rc.TimeComplexity).Str("space", rc.SpaceComplexity).Msg("run succeeded")
	return sol, nil
}

// Debug runs the single-stage follow-up on the debug queue. It never touches
// the main queue's run.
func (o *Orchestrator) Debug(ctx context.Context, req DebugRequest) (*DebugResult, error) {
	language := languageOr(req.Language)
	r := o.begin(ctx, events.QueueDebug, language)
	defer r.token.release()

	binding, err := o.bindings.Active()
	if err != nil {
		return nil, o.failDebug(r, provider.Classify(r.token.Context(), "", err))
	}
	if req.Problem.Empty() {
		return nil, o.failDebug(r, provider.Errorf(provider.KindGeneric, binding.Provider, "no problem to debug, run a solve first"))
	}
	if r.token.Cancelled() {
		return nil, o.cancelRun(r, StateIdle)
	}

	rc := RunContext{Language: language, Problem: req.Problem, Code: req.PreviousCode}
	r.commit(&rc)

	o.emit(r, events.DebugStarted, events.DebugStartedPayload{
		Language:    language,
		Provider:    string(binding.Provider),
		Screenshots: len(req.Images),
	})
	log.Info().Str("run", r.id).Str("provider", string(binding.Provider)).Int("screenshots", len(req.Images)).Msg("debug started")

	in := stageInput{client: binding.Client, models: binding.Models, images: req.Images}
	res, err := analyzeDebug(r.token.Context(), in, req, language)
	if r.token.Cancelled() {
		return nil, o.cancelRun(r, StateIdle)
	}
	if err != nil {
		e := provider.Classify(r.token.Context(), binding.Provider, err)
		if e.Kind == provider.KindCancelled {
			return nil, o.cancelRun(r, StateIdle)
		}
		return nil, o.failDebug(r, e)
	}

	res.RunID = r.id
	rc.Code = res.Code
	rc.TimeComplexity, rc.SpaceComplexity = res.TimeComplexity, res.SpaceComplexity
	r.commit(&rc)
	r.finish(StateDone)

	o.emit(r, events.DebugSucceeded, events.DebugSucceededPayload{
		Code:            res.Code,
		DebugAnalysis:   res.DebugAnalysis,
		Thoughts:        res.Thoughts,
		TimeComplexity:  res.TimeComplexity,
		SpaceComplexity: res.SpaceComplexity,
	})
	log.Info().Str("run", r.id).Int("thoughts", len(res.Thoughts)).Msg("debug succeeded")
	return res, nil
}

// Cancel aborts the in-flight run on queue. It reports whether there was one.
func (o *Orchestrator) Cancel(queue string) bool {
	o.mu.Lock()
	r := o.runs[queue]
	o.mu.Unlock()
	if r == nil || r.finished() {
		return false
	}
	log.Info().Str("run", r.id).Str("queue", queue).Msg("cancelling run")
	r.token.Cancel()
	return true
}

// Reset cancels both queues and forgets their runs.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	runs := o.runs
	o.runs = make(map[string]*run)
	o.mu.Unlock()
	for _, r := range runs {
		r.token.Cancel()
	}
}

// Snapshot returns the state and context of the latest run on queue.
func (o *Orchestrator) Snapshot(queue string) Snapshot {
	o.mu.Lock()
	r := o.runs[queue]
	o.mu.Unlock()
	if r == nil {
		return Snapshot{State: StateIdle}
	}
	return r.snapshot()
}

// Running reports whether a run on queue is still in flight.
func (o *Orchestrator) Running(queue string) bool {
	o.mu.Lock()
	r := o.runs[queue]
	o.mu.Unlock()
	return r != nil && !r.finished()
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func (o *Orchestrator) begin(ctx context.Context, queue, language string) *run {
	r := &run{
		id:    uuid.New().String(),
		queue: queue,
		token: NewToken(ctx),
		rc:    RunContext{Language: language},
	}
	o.mu.Lock()
	prev := o.runs[queue]
	o.runs[queue] = r
	o.mu.Unlock()

	if prev != nil && !prev.finished() {
		log.Info().Str("run", prev.id).Str("queue", queue).Msg("new run supersedes in-flight run")
		prev.token.Cancel()
	}
	return r
}

func (o *Orchestrator) cancelRun(r *run, at State) error {
	r.mu.Lock()
	r.state = StateCancelled
	r.rc = RunContext{Language: r.rc.Language}
	r.mu.Unlock()

	kind := events.RunCancelled
	if r.queue == events.QueueDebug {
		kind = events.DebugCancelled
	}
	log.Info().Str("run", r.id).Str("queue", r.queue).Str("stage", at.String()).Msg("run cancelled")
	o.emit(r, kind, events.RunCancelledPayload{Stage: at.String()})
	return &provider.Error{Kind: provider.KindCancelled, Err: ErrCancelled}
}

func (o *Orchestrator) failRun(r *run, at State, e *provider.Error) error {
	if e.Kind == provider.KindCancelled {
		return o.cancelRun(r, at)
	}
	r.finish(StateError)
	o.logFailure(r, at.String(), e)
	o.emit(r, events.RunFailed, events.RunFailedPayload{
		Stage:          at.String(),
		Message:        provider.Guidance(e),
		Classification: string(e.Kind),
	})
	return e
}

// failStage reports a stage failure. Extraction failures get the dedicated
// guidance message; later stages say which step failed.
func (o *Orchestrator) failStage(r *run, st stage, e *provider.Error) error {
	if st.state == StateExtracting {
		return o.failRun(r, st.state, e)
	}
	r.finish(StateError)
	o.logFailure(r, st.state.String(), e)
	o.emit(r, events.RunFailed, events.RunFailedPayload{
		Stage:          st.state.String(),
		Message:        fmt.Sprintf("Failed to %s: %s", st.action, e.Error()),
		Classification: string(e.Kind),
	})
	return e
}

func (o *Orchestrator) failDebug(r *run, e *provider.Error) error {
	if e.Kind == provider.KindCancelled {
		return o.cancelRun(r, StateIdle)
	}
	r.finish(StateError)
	o.logFailure(r, "debug", e)
	o.emit(r, events.DebugFailed, events.DebugFailedPayload{
		Message:        provider.Guidance(e),
		Classification: string(e.Kind),
	})
	return e
}

func (o *Orchestrator) logFailure(r *run, stage string, e *provider.Error) {
	log.Error().
		Str("run", r.id).
		Str("queue", r.queue).
		Str("stage", stage).
		Str("provider", string(e.Provider)).
		Str("classification", string(e.Kind)).
		Str("error", e.Error()).
		Msg("run failed")
}

func (o *Orchestrator) emit(r *run, kind string, payload any) {
	if o.out == nil {
		return
	}
	select {
	case o.out <- events.RunEvent{RunID: r.id, Queue: r.queue, Kind: kind, Payload: payload}:
	case <-o.done:
	}
}

func languageOr(lang string) string {
	if lang = strings.TrimSpace(lang); lang != "" {
		return lang
	}
	return DefaultLanguage
}
