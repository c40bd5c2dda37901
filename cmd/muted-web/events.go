package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// GET /api/sessions/{id}/events
//
// Server-sent events: one "state" event per published snapshot.
// Intermediate snapshots may be skipped under load; the latest is always
// delivered. The stream ends when the client leaves or the session closes.
// An open stream keeps the session from being swept as idle.
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		log.Error().Err(err).Msg("Streaming not supported by response writer")
		return
	}

	states, cancel := sess.Controller.Subscribe()
	defer cancel()
	defer s.sessions.Watch(sess)()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	log.Debug().Str("session", sess.ID).Msg("Event stream opened")
	defer log.Debug().Str("session", sess.ID).Msg("Event stream closed")

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case st, open := <-states:
			if !open {
				fmt.Fprint(w, "event: closed\ndata: {}\n\n")
				rc.Flush()
				return
			}
			payload, err := json.Marshal(newStateView(sess.ID, st))
			if err != nil {
				log.Error().Err(err).Msg("Failed to encode state event")
				return
			}
			if _, err := fmt.Fprintf(w, "event: state\ndata: %s\n\n", payload); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
