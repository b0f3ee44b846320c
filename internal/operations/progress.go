package operations

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crunchcli/pkg/contracts/events"
)

// EventStatusProgress marks events that only move a step's progress. Other
// events carry a batch or step status.
const EventStatusProgress = "progress"

// ProgressEvent is emitted whenever a batch or one of its steps changes.
type ProgressEvent struct {
	BatchID  string               `json:"batch_id"`
	Step     string               `json:"step,omitempty"`
	Status   string               `json:"status"`
	Progress float64              `json:"progress"`
	Message  string               `json:"message,omitempty"`
	Snapshot events.BatchSnapshot `json:"snapshot"`
	Time     time.Time            `json:"time"`
}

// ProgressReporter receives batch progress. Implementations must not block
// for long; they are called on the batch goroutine.
type ProgressReporter interface {
	ReportProgress(ctx context.Context, event ProgressEvent)
}

// ReporterFunc adapts a function to ProgressReporter.
type ReporterFunc func(ctx context.Context, event ProgressEvent)

// ReportProgress calls f.
func (f ReporterFunc) ReportProgress(ctx context.Context, event ProgressEvent) {
	f(ctx, event)
}

// MultiReporter fans an event out to several reporters.
type MultiReporter []ProgressReporter

// ReportProgress forwards event to every non-nil reporter.
func (m MultiReporter) ReportProgress(ctx context.Context, event ProgressEvent) {
	for _, r := range m {
		if r != nil {
			r.ReportProgress(ctx, event)
		}
	}
}

// ProgressTracker tracks item progress within one step
type ProgressTracker struct {
	Step      string
	Total     int
	Current   int
	StartTime time.Time
	Message   string
	mu        sync.Mutex
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(step string, total int) *ProgressTracker {
	return &ProgressTracker{
		Step:      step,
		Total:     total,
		StartTime: time.Now(),
	}
}

// Increment increments the current progress by 1
func (p *ProgressTracker) Increment(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Current++
	p.Message = message
}

// GetProgress returns the current progress state
func (p *ProgressTracker) GetProgress() (current, total int, percentage float64, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Total > 0 {
		percentage = float64(p.Current) / float64(p.Total) * 100
	}
	return p.Current, p.Total, percentage, p.Message
}

// GetETA estimates the time remaining from the rate so far
func (p *ProgressTracker) GetETA() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Current == 0 || p.Total == 0 {
		return "calculating..."
	}

	rate := float64(p.Current) / time.Since(p.StartTime).Seconds()
	if rate == 0 {
		return "calculating..."
	}

	remaining := float64(p.Total-p.Current) / rate
	if remaining < 60 {
		return fmt.Sprintf("%.0f seconds", remaining)
	}
	return fmt.Sprintf("%.1f minutes", remaining/60)
}
