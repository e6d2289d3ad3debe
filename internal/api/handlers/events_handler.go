package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/territory-studio/engine/internal/events"
	appErr "github.com/territory-studio/engine/pkg/errors"
	"github.com/territory-studio/engine/pkg/logger"
)

const (
	streamBuffer    = 64
	streamHeartbeat = 25 * time.Second
)

// EventsHandler streams change notifications as server-sent events.
type EventsHandler struct {
	bus       *events.Bus
	heartbeat time.Duration
}

func NewEventsHandler(bus *events.Bus) *EventsHandler {
	return &EventsHandler{bus: bus, heartbeat: streamHeartbeat}
}

// Stream subscribes the client to the bus until it disconnects. A client
// that falls behind by more than the buffer loses events and is told so.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, appErr.New(appErr.CodeInternal, "streaming unsupported"))
		return
	}
	// streams outlive the server write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	clientID := uuid.NewString()
	log := logger.L().With(zap.String("client_id", clientID))

	ch := make(chan events.Event, streamBuffer)
	dropped := make(chan struct{}, 1)
	sub := h.bus.Subscribe(func(_ context.Context, ev events.Event) error {
		select {
		case ch <- ev:
		default:
			select {
			case dropped <- struct{}{}:
			default:
			}
		}
		return nil
	})
	defer h.bus.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "event: hello\ndata: {\"clientId\":%q}\n\n", clientID)
	flusher.Flush()
	log.Info("event stream opened")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	var seq uint64
	for {
		select {
		case <-r.Context().Done():
			log.Info("event stream closed")
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
		case <-dropped:
			log.Warn("event stream lagging, events dropped")
			fmt.Fprint(w, "event: lagged\ndata: {}\n\n")
		case ev := <-ch:
			data, err := json.Marshal(ev)
			if err != nil {
				log.Error("event encode failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
				continue
			}
			seq++
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", seq, ev.Kind, data)
		}
		flusher.Flush()
	}
}
