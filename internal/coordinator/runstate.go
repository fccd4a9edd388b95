package coordinator

// Lifecycle transitions for a run. All mutate the receiver in place and
// return a typed Error when the transition is not legal from the current
// status. Terminal states are absorbing until a reset.

// Start moves pending -> running. Calling start on an already running run
// is an idempotent no-op.
func (r *RunState) Start(now int64) error {
	switch r.Status {
	case RunStatusRunning:
		return nil
	case RunStatusPending:
		r.Status = RunStatusRunning
		r.StartedAt = now
		r.LastActivityAt = now
		return nil
	case RunStatusPaused:
		return Errorf(CodeInvalidRunState, "run %s is paused; resume it instead", r.ID)
	default:
		return Errorf(CodeRunCompleted, "run %s is %s", r.ID, r.Status)
	}
}

// Pause moves running -> paused.
func (r *RunState) Pause(now int64) error {
	if r.Status != RunStatusRunning {
		return Errorf(CodeRunNotRunning, "run %s is %s", r.ID, r.Status)
	}
	r.Status = RunStatusPaused
	r.PausedAt = now
	return nil
}

// Resume moves paused -> running. StartedAt is left untouched.
func (r *RunState) Resume(now int64) error {
	if r.Status != RunStatusPaused {
		return Errorf(CodeInvalidRunState, "run %s is %s, not paused", r.ID, r.Status)
	}
	r.Status = RunStatusRunning
	r.PausedAt = 0
	r.LastActivityAt = now
	return nil
}

// Cancel moves any non-terminal state -> cancelled.
func (r *RunState) Cancel(now int64) error {
	if r.Status.IsTerminal() {
		return Errorf(CodeRunCompleted, "run %s is already %s", r.ID, r.Status)
	}
	r.Status = RunStatusCancelled
	r.CompletedAt = now
	return nil
}

// Complete marks the run completed. Used by the scheduler when the frontier
// drains or the page cap is reached.
func (r *RunState) Complete(now int64) {
	if r.Status.IsTerminal() {
		return
	}
	r.Status = RunStatusCompleted
	r.CompletedAt = now
}

// Reset returns the run to pending with fresh stats, keeping its
// configuration. Valid from any state.
func (r *RunState) Reset() {
	r.Status = RunStatusPending
	r.Stats = RunStats{}
	r.Progress = RunProgress{}
	r.StartedAt = 0
	r.PausedAt = 0
	r.CompletedAt = 0
	r.LastActivityAt = 0
	r.Error = ""
}
