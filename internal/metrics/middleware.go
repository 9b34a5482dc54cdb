package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type httpCollectors struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newHTTPCollectors(reg prometheus.Registerer) (*httpCollectors, error) {
	c := &httpCollectors{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkcheck_http_requests_total",
			Help: "Requests served by the metrics server, labeled by method and code.",
		}, []string{"method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "linkcheck_http_request_duration_seconds",
			Help:    "Latency of requests served by the metrics server, labeled by method and route.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"method", "route"}),
	}
	for _, collector := range []prometheus.Collector{c.requests, c.duration} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register http collector: %w", err)
		}
	}
	return c, nil
}

type requestIDKey struct{}

// RequestID returns the id assigned to the request, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, reqID)))
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					zap.Any("error", rec),
					zap.String("request_id", RequestID(r.Context())),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) instrumentMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		s.httpReq.requests.WithLabelValues(r.Method, strconv.Itoa(ww.status)).Inc()
		s.httpReq.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		s.logger.Debug("request completed",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", ww.status),
			zap.Duration("dur", time.Since(start)),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
