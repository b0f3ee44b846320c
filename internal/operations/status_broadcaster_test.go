package operations

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crunchcli/pkg/contracts/events"
)

type fakeHub struct {
	mu   sync.Mutex
	sent []events.BatchSnapshot
}

func (h *fakeHub) Broadcast(messageType events.MessageType, data any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if messageType == events.MessageTypeBatchSnapshot {
		h.sent = append(h.sent, data.(events.BatchSnapshot))
	}
}

func (h *fakeHub) messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.sent))
	for i, s := range h.sent {
		out[i] = s.Message
	}
	return out
}

func TestStatusBroadcaster_Throttle(t *testing.T) {
	hub := &fakeHub{}
	sb := NewStatusBroadcaster(hub, time.Second, nil)
	ctx := context.Background()
	base := time.Now()

	event := func(step, status, msg string, offset time.Duration, batch BatchStatus) ProgressEvent {
		return ProgressEvent{
			BatchID:  "b1",
			Step:     step,
			Status:   status,
			Message:  msg,
			Time:     base.Add(offset),
			Snapshot: events.BatchSnapshot{BatchID: "b1", Status: string(batch)},
		}
	}

	sb.ReportProgress(ctx, event("", "running", "started", 0, BatchStatusRunning))
	sb.ReportProgress(ctx, event("extract", EventStatusProgress, "p1", 10*time.Millisecond, BatchStatusRunning))
	sb.ReportProgress(ctx, event("extract", string(StepStatusCompleted), "extract done", 20*time.Millisecond, BatchStatusRunning))
	sb.ReportProgress(ctx, event("aggregate", EventStatusProgress, "p2", 2*time.Second, BatchStatusRunning))
	sb.ReportProgress(ctx, event("", "completed", "finished", 2*time.Second+time.Millisecond, BatchStatusCompleted))

	assert.Equal(t, []string{"started", "extract done", "p2", "finished"}, hub.messages())
}

func TestStatusBroadcaster_FromManager(t *testing.T) {
	hub := &fakeHub{}
	sb := NewStatusBroadcaster(hub, DefaultBroadcastInterval, nil)

	_, err := NewManager(ManagerOptions{Reporter: sb}).Execute(context.Background(), BatchRequest{
		InputDir:   writeBatchDir(t),
		SkipExport: true,
	})
	require.NoError(t, err)

	hub.mu.Lock()
	defer hub.mu.Unlock()
	require.NotEmpty(t, hub.sent)
	last := hub.sent[len(hub.sent)-1]
	assert.Equal(t, string(BatchStatusCompleted), last.Status)
	assert.Equal(t, 100, last.Progress)
	assert.Len(t, last.Steps, 6)
}

func TestMultiReporter(t *testing.T) {
	var got []string
	r := MultiReporter{
		ReporterFunc(func(_ context.Context, ev ProgressEvent) { got = append(got, "a:"+ev.Message) }),
		nil,
		ReporterFunc(func(_ context.Context, ev ProgressEvent) { got = append(got, "b:"+ev.Message) }),
	}
	r.ReportProgress(context.Background(), ProgressEvent{Message: "x"})
	assert.Equal(t, []string{"a:x", "b:x"}, got)
}
