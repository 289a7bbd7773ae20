package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const userEventKeepAliveInterval = 25 * time.Second

func (s *Server) handleUserEvents(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	controller := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	events, unsubscribe := s.realtime.Subscribe(user.ID)
	defer unsubscribe()

	_, _ = fmt.Fprint(w, ": connected\n\n")
	if err := controller.Flush(); err != nil {
		return
	}

	ticker := time.NewTicker(userEventKeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event := <-events:
			body, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, body); err != nil {
				return
			}
			if err := controller.Flush(); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := controller.Flush(); err != nil {
				return
			}
		}
	}
}
