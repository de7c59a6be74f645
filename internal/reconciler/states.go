package reconciler

// State is the interface that all analysis states must implement
type State interface {
	Name() string
}

// Transition is one recorded state change
type Transition struct {
	Key   string // run_id/analysis index
	State string
}

// StateRecorder tracks state transitions for testing
type StateRecorder struct {
	transitions []Transition
}

func NewStateRecorder() *StateRecorder {
	return &StateRecorder{transitions: make([]Transition, 0)}
}

func (r *StateRecorder) Record(key string, state State) {
	r.transitions = append(r.transitions, Transition{Key: key, State: state.Name()})
}

// Path returns the states visited by the analysis identified by key
func (r *StateRecorder) Path(key string) []string {
	path := make([]string, 0)
	for _, t := range r.transitions {
		if t.Key == key {
			path = append(path, t.State)
		}
	}
	return path
}

func (r *StateRecorder) Transitions() []Transition {
	return r.transitions
}

// EvaluatingState - analysis read from the store, state not yet detected
type EvaluatingState struct{}

func (s *EvaluatingState) Name() string { return "evaluating" }
func (s *EvaluatingState) ToUpstreamPending() *UpstreamPendingState {
	return &UpstreamPendingState{}
}
func (s *EvaluatingState) ToUpstreamFailed() *UpstreamFailedState {
	return &UpstreamFailedState{}
}
func (s *EvaluatingState) ToAlreadySubmitted() *AlreadySubmittedState {
	return &AlreadySubmittedState{}
}
func (s *EvaluatingState) ToReady() *ReadyState {
	return &ReadyState{}
}

// ReadyState - upstream succeeded and no marker exists
type ReadyState struct{}

func (s *ReadyState) Name() string { return "ready_for_downstream" }
func (s *ReadyState) ToConfigGenerated() *ConfigGeneratedState {
	return &ConfigGeneratedState{}
}
func (s *ReadyState) ToConfigFailed(err error) *ConfigFailedState {
	return &ConfigFailedState{Err: err}
}

// ToAlreadySubmitted is taken when another process claimed the marker first
func (s *ReadyState) ToAlreadySubmitted() *AlreadySubmittedState {
	return &AlreadySubmittedState{}
}

// ConfigGeneratedState - marker written, submission not yet attempted
type ConfigGeneratedState struct{}

func (s *ConfigGeneratedState) Name() string { return "config_generated" }
func (s *ConfigGeneratedState) ToSubmitted() *SubmittedState {
	return &SubmittedState{}
}
func (s *ConfigGeneratedState) ToSubmitFailed(err error) *SubmitFailedState {
	return &SubmitFailedState{Err: err}
}
func (s *ConfigGeneratedState) ToDeferred() *DeferredState {
	return &DeferredState{}
}
func (s *ConfigGeneratedState) ToDryRunValidated() *DryRunValidatedState {
	return &DryRunValidatedState{}
}

// Terminal States

// UpstreamPendingState - upstream still running, re-evaluated next pass
type UpstreamPendingState struct{}

func (s *UpstreamPendingState) Name() string { return "upstream_pending" }

// UpstreamFailedState - upstream failed, nothing to trigger
type UpstreamFailedState struct{}

func (s *UpstreamFailedState) Name() string { return "upstream_failed" }

// AlreadySubmittedState - marker present, no-op
type AlreadySubmittedState struct{}

func (s *AlreadySubmittedState) Name() string { return "already_submitted" }

// SubmittedState - both submitters succeeded
type SubmittedState struct{}

func (s *SubmittedState) Name() string { return "submitted" }

// ConfigFailedState - config generation failed, marker removed
type ConfigFailedState struct {
	Err error
}

func (s *ConfigFailedState) Name() string { return "config_failed" }

// SubmitFailedState - submission chain failed, marker removed
type SubmitFailedState struct {
	Err error
}

func (s *SubmitFailedState) Name() string { return "submit_failed" }

// DeferredState - samplesheet missing, marker removed so a later pass retries
type DeferredState struct{}

func (s *DeferredState) Name() string { return "deferred" }

// DryRunValidatedState - config generated and discarded, nothing submitted
type DryRunValidatedState struct{}

func (s *DryRunValidatedState) Name() string { return "dry_run_validated" }
