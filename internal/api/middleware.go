package api

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/Chinzzii/docstore/internal/metrics"
)

// RequestIDHeader carries the id assigned to each request.
const RequestIDHeader = "X-Request-Id"

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// withLogging logs method, path and query of every request, tagged with a
// fresh request id, and records request metrics.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqID = uuid.NewString()
		var start = time.Now()
		w.Header().Set(RequestIDHeader, reqID)

		var rec = &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		var elapsed = time.Since(start)
		metrics.RequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.code)).Inc()
		metrics.RequestDuration.WithLabelValues(r.Method).Observe(elapsed.Seconds())

		s.log.WithFields(log.Fields{
			"req_id":   reqID,
			"method":   r.Method,
			"path":     r.URL.Path,
			"query":    r.URL.Query(),
			"status":   rec.code,
			"duration": elapsed,
		}).Info("request")
	})
}

// withCORS applies permissive cross-origin headers to every response, and
// answers preflight requests directly.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var h = w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Expose-Headers", RequestIDHeader)

		if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
			h.Set("Access-Control-Allow-Headers", reqHeaders)
		} else {
			h.Set("Access-Control-Allow-Headers", "Content-Type, "+s.cfg.Auth.Header)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authGate requires the configured shared key on each request, when the
// gate is enabled. A disabled gate passes every request through.
func (s *Server) authGate(next http.Handler) http.Handler {
	if !s.cfg.Auth.Enabled {
		return next
	}
	var want = []byte(s.cfg.Auth.Key)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var got = []byte(r.Header.Get(s.cfg.Auth.Header))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			s.respondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
