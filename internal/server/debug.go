package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/sokinpui/concord.go/internal/color"
)

func (s *HTTPServer) handleCaptureList(w http.ResponseWriter, r *http.Request) {
	if s.captures == nil {
		writeError(w, http.StatusNotFound, "not_found_error", "capture is disabled")
		return
	}

	limit := 20
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request_error", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries := s.captures.List(limit)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"count":    len(entries),
		"captures": entries,
	})
}

func (s *HTTPServer) handleCaptureGet(w http.ResponseWriter, r *http.Request) {
	if s.captures == nil {
		writeError(w, http.StatusNotFound, "not_found_error", "capture is disabled")
		return
	}

	e, ok := s.captures.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found_error", "no capture with that id")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(e)
}

func (s *HTTPServer) handleCaptureStream(w http.ResponseWriter, r *http.Request) {
	if s.captures == nil {
		writeError(w, http.StatusNotFound, "not_found_error", "capture is disabled")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	id := uuid.New().String()
	ch := s.captures.Subscribe(id)
	defer s.captures.Unsubscribe(id)

	log.Printf("-> %s, watcher_id: %s", color.BlueString("Capture watcher attached"), id)
	defer log.Printf("<- %s, watcher_id: %s", color.GreenString("Capture watcher detached"), id)

	// Commit the headers so clients see the stream open before any entry
	// arrives.
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				log.Printf("Error marshalling capture entry: %v", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
