package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sokinpui/concord.go/client"
	"github.com/sokinpui/concord.go/fieldpath"
	"github.com/sokinpui/concord.go/internal/capture"
	"github.com/sokinpui/concord.go/internal/color"
	"github.com/sokinpui/concord.go/internal/config"
	"github.com/sokinpui/concord.go/internal/models"
	"github.com/sokinpui/concord.go/transform"
)

const sentinel = "[DONE]"

// maxRequestBytes bounds what a caller may post to the completions route.
const maxRequestBytes = 10 << 20

type HTTPServer struct {
	cfg      *config.Settings
	client   client.Client
	captures *capture.Ring
}

func NewHTTPServer(cfg *config.Settings, c client.Client, captures *capture.Ring) *HTTPServer {
	return &HTTPServer{
		cfg:      cfg,
		client:   c,
		captures: captures,
	}
}

func (s *HTTPServer) RegisterRoutes(mux *http.ServeMux) {
	// OpenAI compatible surface
	mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("GET /v1/models", s.handleListModels)

	mux.HandleFunc("GET /healthz", s.handleHealthz)

	// Capture inspection
	mux.HandleFunc("GET /debug/captures", s.handleCaptureList)
	mux.HandleFunc("GET /debug/captures/stream", s.handleCaptureStream)
	mux.HandleFunc("GET /debug/captures/{id}", s.handleCaptureGet)
}

type requestInfo struct {
	Model    string
	Stream   bool
	Stripped bool
	Patched  bool
}

// patchRequest prepares an incoming payload for the upstream endpoint:
// the configured model is injected when the request names none, and
// response_format is removed when disabled. Everything else is forwarded
// as received.
func (s *HTTPServer) patchRequest(payload map[string]any) requestInfo {
	var info requestInfo

	if m, ok := payload["model"].(string); ok && m != "" {
		info.Model = m
	} else {
		payload["model"] = s.cfg.ModelID
		info.Model = s.cfg.ModelID
		info.Patched = true
	}

	if s.cfg.DisableResponseFormat {
		if _, ok := payload["response_format"]; ok {
			delete(payload, "response_format")
			info.Stripped = true
			info.Patched = true
		}
	}

	info.Stream, _ = payload["stream"].(bool)
	return info
}

func (s *HTTPServer) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "unable to read request body")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil || payload == nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body")
		return
	}

	info := s.patchRequest(payload)
	id := uuid.New().String()
	log.Printf("-> %s model=%s stream=%t, capture_id: %s", color.BlueString("Chat completion"), info.Model, info.Stream, id)
	if info.Stripped {
		log.Printf("   %s for capture %s", color.YellowString("Dropped response_format"), id)
	}

	// An untouched request goes upstream byte for byte.
	body := raw
	if info.Patched {
		body, err = json.Marshal(payload)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "shim_error", "unable to encode upstream request")
			return
		}
	}

	if info.Stream {
		s.relayStream(w, r, id, info, raw, body)
		return
	}
	s.relayResponse(w, r, id, info, raw, body)
}

func (s *HTTPServer) relayResponse(w http.ResponseWriter, r *http.Request, id string, info requestInfo, reqBody, body []byte) {
	start := time.Now()

	up, err := s.client.ChatRaw(r.Context(), body)
	if err != nil {
		log.Printf("   %s for capture %s: %v", color.RedString("Upstream request failed"), id, err)
		writeError(w, http.StatusBadGateway, "upstream_error", err.Error())
		return
	}

	// Error replies relay verbatim; only success bodies are normalized.
	out, changed := up.Body, false
	if up.Status >= 200 && up.Status < 300 {
		out, changed = transform.ResponseJSON(up.Body)
	}
	if s.cfg.Debug {
		log.Printf("   capture %s: status=%d normalized=%t", id, up.Status, changed)
	}

	ct := up.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(up.Status)
	w.Write(out)

	s.record(&capture.Entry{
		ID:         id,
		Time:       start,
		Method:     r.Method,
		Path:       r.URL.Path,
		Status:     up.Status,
		Model:      info.Model,
		DurationMS: time.Since(start).Milliseconds(),
		Normalized: changed,
		Source:     contentSource(up.Body),
	}, reqBody, out)
}

// contentSource labels where the upstream reply carried its content before
// normalization. Streamed replies are never labeled since chunks are not
// accumulated.
func contentSource(body []byte) string {
	var resp map[string]any
	if json.Unmarshal(body, &resp) != nil {
		return "none"
	}
	msg, text := transform.ContentFields(resp)
	switch {
	case msg != "" && text != "":
		return "both"
	case msg != "":
		return "message"
	case text != "":
		return "text"
	}
	return "none"
}

func (s *HTTPServer) relayStream(w http.ResponseWriter, r *http.Request, id string, info requestInfo, reqBody, body []byte) {
	start := time.Now()

	stream, err := s.client.ChatStream(r.Context(), body)
	if err != nil {
		log.Printf("   %s for capture %s: %v", color.RedString("Upstream request failed"), id, err)
		writeError(w, http.StatusBadGateway, "upstream_error", err.Error())
		return
	}
	defer stream.Close()

	if stream.Status != http.StatusOK {
		ct := stream.Header.Get("Content-Type")
		if ct == "" {
			ct = "application/json"
		}
		w.Header().Set("Content-Type", ct)
		w.WriteHeader(stream.Status)
		io.Copy(w, stream.Body)

		s.record(&capture.Entry{
			ID:         id,
			Time:       start,
			Method:     r.Method,
			Path:       r.URL.Path,
			Status:     stream.Status,
			Model:      info.Model,
			Stream:     true,
			DurationMS: time.Since(start).Milliseconds(),
		}, reqBody, nil)
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
	// Commit the headers so the caller sees the stream open before the
	// first upstream event arrives.
	flusher.Flush()

	normalized := false
	sc := bufio.NewScanner(stream.Body)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	for sc.Scan() {
		select {
		case <-r.Context().Done():
			return
		default:
		}

		line := sc.Text()
		trimmed := strings.TrimSpace(line)

		// Anything that is not a data payload relays as it came.
		if !strings.HasPrefix(trimmed, "data:") {
			fmt.Fprintf(w, "%s\n", line)
			flusher.Flush()
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(trimmed, "data:"))
		if payload == sentinel {
			fmt.Fprintf(w, "%s\n", line)
			flusher.Flush()
			continue
		}

		out, changed := transform.ChunkJSON([]byte(payload))
		normalized = normalized || changed
		fmt.Fprintf(w, "data: %s\n", out)
		flusher.Flush()
	}
	if err := sc.Err(); err != nil {
		log.Printf("   %s for capture %s: %v", color.RedString("Stream relay broke"), id, err)
	}

	s.record(&capture.Entry{
		ID:         id,
		Time:       start,
		Method:     r.Method,
		Path:       r.URL.Path,
		Status:     http.StatusOK,
		Model:      info.Model,
		Stream:     true,
		DurationMS: time.Since(start).Milliseconds(),
		Normalized: normalized,
	}, reqBody, nil)
}

func (s *HTTPServer) handleListModels(w http.ResponseWriter, r *http.Request) {
	up, err := s.client.ModelsRaw(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "upstream_error", err.Error())
		return
	}

	ct := up.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(up.Status)
	w.Write(up.Body)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"model":  s.cfg.ModelID,
	})
}

// record stores a capture entry, honoring the content and payload toggles.
func (s *HTTPServer) record(e *capture.Entry, reqBody, respBody []byte) {
	if s.captures == nil {
		return
	}

	if s.cfg.CaptureContent && respBody != nil {
		var resp map[string]any
		if json.Unmarshal(respBody, &resp) == nil {
			if content, ok := fieldpath.Text(resp, s.cfg.ExtractPath); ok {
				e.Content = content
			} else if _, text := transform.ContentFields(resp); text != "" {
				e.Content = text
			}
		}
	}

	if s.cfg.CapturePayloads {
		e.Request = json.RawMessage(reqBody)
		if respBody != nil {
			e.Response = json.RawMessage(respBody)
		}
	}

	s.captures.Add(e)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Error: models.APIError{Message: msg, Type: kind},
	})
}
