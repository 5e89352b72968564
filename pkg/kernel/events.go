package kernel

import (
	"fmt"
	"net/http"
	"time"

	"github.com/manthysbr/aule-weather/internal/core/services"
)

// handleConversationSSE streams transition, compose and new_message events
// for one conversation.
func (s *Server) handleConversationSSE(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathParam(w, r, "id")
	if !ok {
		return
	}
	ch, unsub := s.deps.Bus.Subscribe(id)
	defer unsub()
	s.stream(w, r, ch)
}

// handleBroadcastSSE streams every event on the bus.
func (s *Server) handleBroadcastSSE(w http.ResponseWriter, r *http.Request) {
	ch, unsub := s.deps.Bus.SubscribeGlobal()
	defer unsub()
	s.stream(w, r, ch)
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, ch <-chan services.Event) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case evt, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, evt.Data)
			flusher.Flush()
		}
	}
}
