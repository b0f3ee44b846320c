package operations

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"crunchcli/pkg/contracts/events"
)

// DefaultBroadcastInterval is the minimum gap between two snapshots of the
// same batch that only report step progress.
const DefaultBroadcastInterval = 100 * time.Millisecond

// StatusBroadcaster forwards batch snapshots to websocket clients. Status
// changes always go out; progress-only updates are thinned to one per
// interval per batch.
type StatusBroadcaster struct {
	mu       sync.Mutex
	hub      WebSocketHub
	logger   *slog.Logger
	interval time.Duration
	lastSent map[string]time.Time
}

// NewStatusBroadcaster creates a new status broadcaster
func NewStatusBroadcaster(hub WebSocketHub, interval time.Duration, logger *slog.Logger) *StatusBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusBroadcaster{
		hub:      hub,
		logger:   logger.With(slog.String("component", "status_broadcaster")),
		interval: interval,
		lastSent: make(map[string]time.Time),
	}
}

// ReportProgress implements ProgressReporter.
func (sb *StatusBroadcaster) ReportProgress(ctx context.Context, event ProgressEvent) {
	if !sb.admit(event) {
		return
	}

	snapshot := event.Snapshot
	snapshot.Message = event.Message

	sb.logger.DebugContext(ctx, "broadcasting batch snapshot",
		slog.String("batch_id", event.BatchID),
		slog.String("status", snapshot.Status),
		slog.Int("progress", snapshot.Progress),
		slog.String("current_step", snapshot.CurrentStep),
	)
	sb.hub.Broadcast(events.MessageTypeBatchSnapshot, snapshot)
}

func (sb *StatusBroadcaster) admit(event ProgressEvent) bool {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	now := event.Time
	if BatchStatus(event.Snapshot.Status).IsTerminal() && event.Step == "" {
		delete(sb.lastSent, event.BatchID)
		return true
	}
	if event.Status == EventStatusProgress && now.Sub(sb.lastSent[event.BatchID]) < sb.interval {
		return false
	}
	sb.lastSent[event.BatchID] = now
	return true
}
