package api

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"influencegen/internal/log"
	"influencegen/internal/metrics"
)

// accessLog logs each request and records HTTP metrics under the chi route
// pattern to keep label cardinality bounded.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				path = p
			}
		}
		dur := time.Since(start)
		code := strconv.Itoa(status)
		metrics.HTTPRequests.WithLabelValues(r.Method, path, code).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, path, code).Observe(dur.Seconds())

		s.logger.Info().
			Str(log.FieldRequestID, middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str(log.FieldPath, r.URL.Path).
			Str(log.FieldRemote, clientIP(r)).
			Int("status", status).
			Dur("duration", dur).
			Msg("request")
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error().Interface("panic", rec).Str(log.FieldPath, r.URL.Path).Msg("handler panic")
				writeProblem(w, http.StatusInternalServerError, "Internal error", "", r.URL.Path)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientIP(r)) {
			metrics.CallbackRateLimited.Inc()
			w.Header().Set("Retry-After", "1")
			writeCallbackError(w, http.StatusTooManyRequests, "Rate limit exceeded", "Too many requests. Please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireCallbackAuth rejects every unauthenticated callback with the same
// response, whatever the reason.
func (s *Server) requireCallbackAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.Callbacks.Verify(r) {
			writeCallbackError(w, http.StatusUnauthorized, "Authentication failed", "Invalid or missing authentication token.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the caller address without port. RealIP has already
// applied any X-Forwarded-For / X-Real-IP header.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
