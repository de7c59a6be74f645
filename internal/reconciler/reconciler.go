package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/livinlefevreloca/seqtrigger/internal/detector"
	"github.com/livinlefevreloca/seqtrigger/internal/marker"
	"github.com/livinlefevreloca/seqtrigger/internal/notify"
	"github.com/livinlefevreloca/seqtrigger/internal/proc"
	"github.com/livinlefevreloca/seqtrigger/internal/stats"
	"github.com/livinlefevreloca/seqtrigger/internal/statusstore"
	"github.com/livinlefevreloca/seqtrigger/internal/submitter"
	"github.com/livinlefevreloca/seqtrigger/internal/window"
)

// Store is the read side of the status store
type Store interface {
	Query(ctx context.Context, filter statusstore.Filter) (*statusstore.Result, error)
}

// Detector classifies an analysis
type Detector interface {
	Detect(analysis statusstore.AnalysisRecord) detector.State
}

// JobSubmitter generates configs and submits downstream jobs
type JobSubmitter interface {
	CheckExecutables() error
	GenerateConfig(ctx context.Context, job submitter.Job) error
	HasSamplesheet(job submitter.Job) (bool, error)
	SubmitJobs(ctx context.Context, job submitter.Job) error
	SubmitCommands(job submitter.Job) []proc.Command
	Rollback(job submitter.Job) error
}

// Clock abstracts time for testing
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Options controls a reconciliation pass
type Options struct {
	Pipeline        string
	DaysBack        int
	DryRun          bool
	BreakAfterFirst bool
}

// PassContext identifies one pass and is threaded through every notification
type PassContext struct {
	CorrelationID string
	Window        window.Window
	DryRun        bool
}

// Reconciler drives every analysis in the polling window to a terminal state
type Reconciler struct {
	opts      Options
	store     Store
	detector  Detector
	submitter JobSubmitter
	notifier  notify.Dispatcher
	clock     Clock
	logger    *slog.Logger

	// Optional state recorder for testing
	recorder *StateRecorder
}

// New creates a Reconciler
func New(
	opts Options,
	store Store,
	det Detector,
	sub JobSubmitter,
	notifier notify.Dispatcher,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		opts:      opts,
		store:     store,
		detector:  det,
		submitter: sub,
		notifier:  notifier,
		clock:     realClock{},
		logger:    logger,
	}
}

// WithClock replaces the wall clock
func (r *Reconciler) WithClock(clock Clock) *Reconciler {
	r.clock = clock
	return r
}

// WithRecorder records every state transition into rec
func (r *Reconciler) WithRecorder(rec *StateRecorder) *Reconciler {
	r.recorder = rec
	return r
}

// RunPass performs one reconciliation pass. Errors are pass-fatal: a missing
// executable, an unreachable store, or cancellation. Per-analysis failures are
// escalated through the notifier and counted in the returned summary.
func (r *Reconciler) RunPass(ctx context.Context) (*stats.PassSummary, error) {
	if err := r.submitter.CheckExecutables(); err != nil {
		return nil, err
	}

	w, err := window.Select(r.clock.Now(), r.opts.DaysBack)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate correlation id: %w", err)
	}
	pc := PassContext{CorrelationID: id.String(), Window: w, DryRun: r.opts.DryRun}
	summary := stats.NewPassSummary(pc.CorrelationID, w, pc.DryRun, r.clock.Now())

	logger := r.logger.With("correlation_id", pc.CorrelationID)
	logger.Info("starting pass", "window", w.String(), "dry_run", pc.DryRun)

	result, err := r.store.Query(ctx, statusstore.Filter{Window: w})
	if err != nil {
		return summary, fmt.Errorf("failed to query status store: %w", err)
	}

	summary.Quarantined = len(result.Quarantined)
	for _, q := range result.Quarantined {
		logger.Warn("skipping malformed run record", "run_id", q.RunID, "reason", q.Reason)
	}
	logger.Info("found runs", "count", len(result.Runs))

	// Cancellation is only observed between runs. Work started for a run
	// finishes so a submitted member is never rolled back.
	work := context.WithoutCancel(ctx)

	for i, run := range result.Runs {
		if err := ctx.Err(); err != nil {
			summary.Finish(r.clock.Now())
			return summary, err
		}

		summary.AddRun()
		for idx, analysis := range run.Analyses {
			final := r.reconcileAnalysis(work, pc, run, idx, analysis)
			summary.Record(final.Name(), isFailure(final))
		}

		if r.opts.BreakAfterFirst {
			summary.Halted = i < len(result.Runs)-1
			logger.Info("stopping after first run", "run_id", run.RunID)
			break
		}
	}

	summary.Finish(r.clock.Now())
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	logger.Info("pass complete", "summary", summary)
	return summary, nil
}

// evaluation carries everything known about the analysis being driven
type evaluation struct {
	pc       PassContext
	key      string
	runID    string
	analysis statusstore.AnalysisRecord
	job      submitter.Job
	logger   *slog.Logger
	state    State
}

// reconcileAnalysis runs one analysis through the state machine and returns
// its terminal state
func (r *Reconciler) reconcileAnalysis(
	ctx context.Context,
	pc PassContext,
	run statusstore.RunRecord,
	idx int,
	analysis statusstore.AnalysisRecord,
) State {
	e := &evaluation{
		pc:       pc,
		key:      fmt.Sprintf("%s/%d", run.RunID, idx),
		runID:    run.RunID,
		analysis: analysis,
		job:      submitter.Job{RunID: run.RunID, OutDir: analysis.OutDir},
		logger: r.logger.With(
			"run_id", run.RunID,
			"analysis_id", analysis.AnalysisID,
			"out_dir", analysis.OutDir,
			"correlation_id", pc.CorrelationID),
		state: &EvaluatingState{},
	}
	r.record(e)

	for {
		switch state := e.state.(type) {
		case *EvaluatingState:
			r.transitionTo(e, r.runEvaluating(e, state))
		case *ReadyState:
			r.transitionTo(e, r.runReady(ctx, e, state))
		case *ConfigGeneratedState:
			r.transitionTo(e, r.runConfigGenerated(ctx, e, state))
		default:
			return e.state
		}
	}
}

func (r *Reconciler) transitionTo(e *evaluation, next State) {
	from := e.state.Name()
	e.state = next
	r.record(e)

	e.logger.Debug("state transition", "from", from, "to", next.Name())
}

func (r *Reconciler) record(e *evaluation) {
	if r.recorder != nil {
		r.recorder.Record(e.key, e.state)
	}
}

func (r *Reconciler) runEvaluating(e *evaluation, state *EvaluatingState) State {
	switch r.detector.Detect(e.analysis) {
	case detector.ReadyForDownstream:
		e.logger.Info("starting downstream analysis")
		return state.ToReady()
	case detector.AlreadySubmitted:
		return state.ToAlreadySubmitted()
	case detector.UpstreamFailed:
		e.logger.Info("upstream analysis failed, nothing to trigger")
		return state.ToUpstreamFailed()
	default:
		return state.ToUpstreamPending()
	}
}

func (r *Reconciler) runReady(ctx context.Context, e *evaluation, state *ReadyState) State {
	err := r.submitter.GenerateConfig(ctx, e.job)
	if errors.Is(err, marker.ErrExists) {
		e.logger.Info("marker claimed by another process")
		return state.ToAlreadySubmitted()
	}
	if err != nil {
		e.logger.Error("config generation failed", "error", err)
		r.escalate(ctx, e, err.Error())
		return state.ToConfigFailed(err)
	}
	return state.ToConfigGenerated()
}

func (r *Reconciler) runConfigGenerated(ctx context.Context, e *evaluation, state *ConfigGeneratedState) State {
	ok, err := r.submitter.HasSamplesheet(e.job)
	if err != nil {
		e.logger.Error("cannot check samplesheet", "error", err)
		r.rollback(e)
		r.escalate(ctx, e, err.Error())
		return state.ToSubmitFailed(err)
	}
	if !ok {
		return r.deferSubmission(ctx, e, state)
	}

	if e.pc.DryRun {
		for _, cmd := range r.submitter.SubmitCommands(e.job) {
			e.logger.Warn("dry run, skipped submission", "command", cmd.String())
		}
		r.rollback(e)
		return state.ToDryRunValidated()
	}

	err = r.submitter.SubmitJobs(ctx, e.job)
	if errors.Is(err, submitter.ErrMissingSamplesheet) {
		return r.deferSubmission(ctx, e, state)
	}
	if err != nil {
		e.logger.Error("job submission failed", "error", err)
		r.rollback(e)
		r.escalate(ctx, e, err.Error())
		return state.ToSubmitFailed(err)
	}

	e.logger.Info("downstream jobs submitted")
	return state.ToSubmitted()
}

func (r *Reconciler) deferSubmission(ctx context.Context, e *evaluation, state *ConfigGeneratedState) State {
	e.logger.Warn("samplesheet missing, deferring submission")
	r.rollback(e)
	r.escalate(ctx, e, "samplesheet missing")
	return state.ToDeferred()
}

func (r *Reconciler) rollback(e *evaluation) {
	if err := r.submitter.Rollback(e.job); err != nil {
		e.logger.Error("failed to remove marker", "error", err)
	}
}

func (r *Reconciler) escalate(ctx context.Context, e *evaluation, reason string) {
	path := e.analysis.OutDir
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	r.notifier.Notify(ctx, notify.Notification{
		Pipeline:      r.opts.Pipeline,
		Success:       false,
		CorrelationID: e.pc.CorrelationID,
		ContextPath:   path,
		RunID:         e.runID,
		Reason:        reason,
	})
}

func isFailure(state State) bool {
	switch state.(type) {
	case *ConfigFailedState, *SubmitFailedState:
		return true
	default:
		return false
	}
}
