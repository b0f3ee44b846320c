package operations

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"
	"time"

	"crunchcli/internal/dataprocessing"
	"crunchcli/internal/files"
	"crunchcli/internal/tolerance"
	"crunchcli/pkg/contracts/domain"
	"crunchcli/pkg/contracts/events"
)

// BatchState holds the runtime state of one batch. Lifecycle fields are
// guarded by a mutex and may be read from any goroutine. The pipeline data
// fields belong to the goroutine running the batch and must not be read until
// the batch is terminal.
type BatchState struct {
	mu        sync.RWMutex
	ID        string
	Request   BatchRequest
	Status    BatchStatus
	StartTime time.Time
	EndTime   *time.Time
	Error     error

	steps     map[string]*StepState
	stepOrder []string
	notify    func(ctx context.Context, event ProgressEvent)

	// Pipeline data, written by one step and read by the next.
	Files           []files.FileInfo
	Catalog         domain.MeasurementTypeCatalog
	Outcomes        []domain.FileOutcome
	Unit            domain.Unit
	Rows            []domain.AggregateRow
	Tolerance       *tolerance.Config
	ToleranceSource string
	OutputPath      string
}

// NewBatchState creates a pending batch with one pending StepState per step.
func NewBatchState(id string, req BatchRequest, steps []Step) *BatchState {
	s := &BatchState{
		ID:      id,
		Request: req,
		Status:  BatchStatusPending,
		steps:   make(map[string]*StepState, len(steps)),
	}
	for _, step := range steps {
		s.steps[step.ID()] = NewStepState(step.ID(), step.Name())
		s.stepOrder = append(s.stepOrder, step.ID())
	}
	return s
}

// Start marks the batch as running
func (s *BatchState) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = BatchStatusRunning
	s.StartTime = time.Now()
}

// Finish records the final status derived from err: nil completes the batch,
// a cancelled context cancels it and anything else fails it.
func (s *BatchState) Finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.Status = statusForError(err)
	s.EndTime = &now
	s.Error = err
}

// GetStatus returns the lifecycle status.
func (s *BatchState) GetStatus() BatchStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// GetStep returns the state of the step with id.
func (s *BatchState) GetStep(id string) (*StepState, bool) {
	st, ok := s.steps[id]
	return st, ok
}

// Progress returns the overall completion in percent, counting finished
// steps and the progress of the active one.
func (s *BatchState) Progress() float64 {
	if len(s.stepOrder) == 0 {
		return 0
	}
	var total float64
	for _, id := range s.stepOrder {
		snap := s.steps[id].Snapshot()
		switch snap.Status {
		case StepStatusCompleted, StepStatusSkipped:
			total += 100
		case StepStatusActive:
			total += snap.Progress
		}
	}
	return total / float64(len(s.stepOrder))
}

// CurrentStep returns the ID of the active step, or "".
func (s *BatchState) CurrentStep() string {
	for _, id := range s.stepOrder {
		if s.steps[id].Snapshot().Status == StepStatusActive {
			return id
		}
	}
	return ""
}

// StepSnapshots returns the step states in pipeline order.
func (s *BatchState) StepSnapshots() []StepSnapshot {
	out := make([]StepSnapshot, 0, len(s.stepOrder))
	for _, id := range s.stepOrder {
		out = append(out, s.steps[id].Snapshot())
	}
	return out
}

// UpdateStep records the progress of stepID and notifies the reporter.
func (s *BatchState) UpdateStep(ctx context.Context, stepID string, progress float64, message string) {
	st, ok := s.steps[stepID]
	if !ok {
		return
	}
	st.UpdateProgress(progress, message)
	s.emit(ctx, stepID, EventStatusProgress, message)
}

func (s *BatchState) emit(ctx context.Context, stepID, status, message string) {
	if s.notify == nil {
		return
	}
	s.notify(ctx, ProgressEvent{
		BatchID:  s.ID,
		Step:     stepID,
		Status:   status,
		Progress: s.Progress(),
		Message:  message,
		Snapshot: s.Snapshot(),
		Time:     time.Now(),
	})
}

// Snapshot returns the client view of the batch.
func (s *BatchState) Snapshot() events.BatchSnapshot {
	steps := s.StepSnapshots()
	snap := events.BatchSnapshot{
		BatchID:     s.ID,
		Progress:    int(s.Progress()),
		CurrentStep: s.CurrentStep(),
		Steps:       make([]events.StepSnapshot, len(steps)),
		UpdatedAt:   time.Now(),
	}
	for i, st := range steps {
		snap.Steps[i] = events.StepSnapshot{
			ID:       st.ID,
			Name:     st.Name,
			Status:   string(st.Status),
			Progress: int(st.Progress),
			Message:  st.Message,
			Error:    st.Error,
			Metadata: st.Metadata,
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	snap.Status = string(s.Status)
	snap.StartedAt = s.StartTime
	snap.CompletedAt = s.EndTime
	if s.Error != nil {
		snap.Error = s.Error.Error()
	}
	return snap
}

// Report summarises a terminal batch.
func (s *BatchState) Report() *BatchReport {
	s.mu.RLock()
	r := &BatchReport{
		ID:        s.ID,
		Status:    s.Status,
		InputDir:  s.Request.InputDir,
		StartedAt: s.StartTime,
	}
	if s.EndTime != nil {
		r.FinishedAt = *s.EndTime
	}
	if s.Error != nil {
		r.Error = s.Error.Error()
	}
	s.mu.RUnlock()

	r.Unit = s.Unit
	r.OutputPath = s.OutputPath
	r.Rows = s.Rows
	r.RowCount = len(s.Rows)
	r.Files = s.Outcomes
	if r.Files == nil {
		r.Files = []domain.FileOutcome{}
	}
	r.Processed, r.Skipped, r.Failed = dataprocessing.BatchResult{Files: s.Outcomes}.Counts()
	r.Ambiguous = dataprocessing.FileNames(s.Catalog.AmbiguousFiles())
	sort.Strings(r.Ambiguous)
	if s.Tolerance != nil {
		r.Tolerance = summarizeTolerance(s.ToleranceSource, s.Rows)
	}
	r.Steps = s.StepSnapshots()
	return r
}

func summarizeTolerance(source string, rows []domain.AggregateRow) *ToleranceSummary {
	sum := &ToleranceSummary{Source: source}
	for _, row := range rows {
		if row.Tolerance == nil {
			continue
		}
		if row.Tolerance.Matched {
			sum.Matched++
		} else {
			sum.Unmatched++
		}
		if row.Tolerance.MeanCheck {
			sum.MeanPass++
		}
		if row.Tolerance.MeanTwoSigmaCheck {
			sum.TwoSigmaPass++
		}
	}
	return sum
}

// statusForError maps a pipeline error onto the final batch status.
func statusForError(err error) BatchStatus {
	switch {
	case err == nil:
		return BatchStatusCompleted
	case stderrors.Is(err, context.Canceled):
		return BatchStatusCancelled
	default:
		return BatchStatusFailed
	}
}
