package server

import (
	"log"
	"net/http"
	"time"

	"github.com/sokinpui/concord.go/internal/color"
)

// Handler returns the full route set wrapped with logging and recovery.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return WithLogging(WithRecovery(mux))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming handlers working behind the middleware chain.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func WithLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		label := color.GreenString("Finished")
		switch {
		case rec.status >= 500:
			label = color.RedString("Finished")
		case rec.status >= 400:
			label = color.YellowString("Finished")
		}
		log.Printf("<- %s %s %s %d (%s)", label, r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}

func WithRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("%s handling %s %s: %v", color.RedString("Panic"), r.Method, r.URL.Path, rec)
				writeError(w, http.StatusInternalServerError, "shim_error", "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
