package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"crunchcli/internal/infrastructure"
	"crunchcli/pkg/contracts/events"
)

// broadcastBuffer is the number of messages queued for the hub loop before
// Broadcast starts dropping them.
const broadcastBuffer = 256

type outbound struct {
	messageType events.MessageType
	payload     []byte
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan outbound

	mu      sync.RWMutex
	logger  *slog.Logger
	metrics *Metrics

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
}

// NewHub creates a hub. Call Run to start it. metrics may be nil.
func NewHub(logger *slog.Logger, metrics *Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan outbound, broadcastBuffer),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		metrics:    metrics,
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run is the hub loop. It returns when ctx is done or Stop is called, closing
// every client.
func (h *Hub) Run(ctx context.Context) {
	h.started.Store(true)
	defer close(h.done)
	defer h.closeAll(ctx)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("hub shutting down", slog.String("reason", ctx.Err().Error()))
			return
		case <-h.quit:
			h.logger.Info("hub shutting down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()

			cctx := client.context(ctx)
			h.metrics.connected(cctx)
			h.logger.InfoContext(cctx, "client registered",
				slog.Int("total_clients", count),
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr))
			h.greet(cctx, client)

		case client := <-h.unregister:
			h.remove(client.context(ctx), client, "closed")

		case msg := <-h.broadcast:
			h.fanOut(ctx, msg)
		}
	}
}

// Stop ends Run and waits for it to return. It is safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
	if h.started.Load() {
		<-h.done
	}
}

// Register adds client to the hub. It fails once the hub has stopped.
func (h *Hub) Register(client *Client) error {
	select {
	case h.register <- client:
		return nil
	case <-h.done:
		return fmt.Errorf("websocket hub stopped")
	}
}

// Unregister removes client from the hub and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues data for every connected client, wrapped in a message of
// messageType. It never blocks; messages are dropped while the queue is full.
func (h *Hub) Broadcast(messageType events.MessageType, data any) {
	payload, err := encode(messageType, data, "")
	if err != nil {
		h.logger.Error("error marshaling message",
			slog.String("message_type", string(messageType)),
			slog.String("error", err.Error()))
		return
	}

	select {
	case h.broadcast <- outbound{messageType: messageType, payload: payload}:
	default:
		h.metrics.dropped(context.Background(), "hub")
		h.logger.Warn("broadcast queue full, message dropped",
			slog.String("message_type", string(messageType)))
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) fanOut(ctx context.Context, msg outbound) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, client := range clients {
		select {
		case client.send <- msg.payload:
			delivered++
		default:
			h.metrics.dropped(ctx, "client")
			h.logger.WarnContext(client.context(ctx), "client send buffer full, disconnecting",
				slog.String("client_id", client.id))
			h.remove(ctx, client, "slow")
		}
	}
	h.metrics.sent(ctx, string(msg.messageType), delivered)

	h.logger.DebugContext(ctx, "message broadcast",
		slog.String("message_type", string(msg.messageType)),
		slog.Int("clients", delivered),
		slog.Int("message_size", len(msg.payload)))
}

func (h *Hub) greet(ctx context.Context, client *Client) {
	payload, err := encode(events.MessageTypeConnect, map[string]string{
		"status":    "connected",
		"client_id": client.id,
	}, client.traceID)
	if err != nil {
		return
	}
	select {
	case client.send <- payload:
	default:
		h.logger.WarnContext(ctx, "failed to send connection message, client buffer full",
			slog.String("client_id", client.id))
	}
}

func (h *Hub) remove(ctx context.Context, client *Client, reason string) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	count := len(h.clients)
	h.mu.Unlock()

	h.metrics.disconnected(ctx, time.Since(client.connectedAt), reason)
	h.logger.InfoContext(ctx, "client unregistered",
		slog.Int("total_clients", count),
		slog.String("client_id", client.id),
		slog.String("reason", reason),
		slog.Duration("connection_duration", time.Since(client.connectedAt)))
}

func (h *Hub) closeAll(ctx context.Context) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		h.remove(context.WithoutCancel(ctx), client, "shutdown")
	}
}

func encode(messageType events.MessageType, data any, traceID string) ([]byte, error) {
	return json.Marshal(events.WebSocketMessage{
		BaseMessage: events.BaseMessage{
			ID:        uuid.NewString(),
			Type:      messageType,
			Timestamp: time.Now().UTC(),
			TraceID:   traceID,
		},
		Data: data,
	})
}

// traceContext carries the client's trace ID into log records.
func traceContext(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return infrastructure.WithTraceID(ctx, traceID)
}
