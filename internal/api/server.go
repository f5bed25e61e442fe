package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/insightfulhq/insightful-orders/internal/analytics"
	"github.com/insightfulhq/insightful-orders/internal/config"
	"github.com/insightfulhq/insightful-orders/internal/metrics"
	"github.com/insightfulhq/insightful-orders/internal/ratelimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server exposes the merchant analytics over HTTP alongside health and
// prometheus endpoints. Merchant scope is an explicit query parameter on
// every analytics route.
type Server struct {
	engine        *analytics.Engine
	log           *logrus.Logger
	rps           float64
	defaultWindow string
	limiters      sync.Map // merchant ID -> *ratelimit.Limiter
	httpServer    *http.Server
}

// New creates an API server over the analytics engine.
func New(engine *analytics.Engine, cfg *config.Config, log *logrus.Logger) *Server {
	return &Server{
		engine:        engine,
		log:           log,
		rps:           cfg.AnalyticsRPS,
		defaultWindow: cfg.DefaultWindow,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/metrics/aov", s.handleAOV)
	mux.HandleFunc("/metrics/rfm", s.handleRFM)
	mux.HandleFunc("/metrics/cohorts", s.handleCohorts)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		metrics.RecordHealthCheck(true)
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		metrics.RecordHealthCheck(true)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	// Prometheus scrape endpoint; exact-match, does not shadow /metrics/*.
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// Start runs the HTTP server until it fails or Shutdown is called.
func (s *Server) Start(port int) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	s.log.WithField("port", port).Info("Starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until the context expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleAOV(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	merchantID, ok := s.merchantScope(w, r, "aov", start)
	if !ok {
		return
	}

	window := r.URL.Query().Get("window")
	if window == "" {
		window = s.defaultWindow
	}

	result, err := s.engine.RollingAOV(r.Context(), merchantID, window, time.Time{})
	if err != nil {
		if errors.Is(err, analytics.ErrInvalidWindow) {
			s.clientError(w, "aov", start, err.Error())
			return
		}
		s.serverError(w, r, "aov", start, err)
		return
	}

	metrics.RecordAnalyticsRequest("aov", "ok", time.Since(start))
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRFM(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	merchantID, ok := s.merchantScope(w, r, "rfm", start)
	if !ok {
		return
	}

	result, err := s.engine.RFMScores(r.Context(), merchantID, time.Time{})
	if err != nil {
		s.serverError(w, r, "rfm", start, err)
		return
	}

	metrics.RecordAnalyticsRequest("rfm", "ok", time.Since(start))
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCohorts(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	merchantID, ok := s.merchantScope(w, r, "cohorts", start)
	if !ok {
		return
	}

	from := parseMonthish(r.URL.Query().Get("from"))
	to := parseMonthish(r.URL.Query().Get("to"))

	result, err := s.engine.MonthlyCohorts(r.Context(), merchantID, from, to)
	if err != nil {
		s.serverError(w, r, "cohorts", start, err)
		return
	}

	metrics.RecordAnalyticsRequest("cohorts", "ok", time.Since(start))
	writeJSON(w, http.StatusOK, result)
}

// merchantScope validates the merchant_id parameter and applies the
// per-merchant rate limit. Writes the error response itself when it fails.
func (s *Server) merchantScope(w http.ResponseWriter, r *http.Request, endpoint string, start time.Time) (uint, bool) {
	raw := r.URL.Query().Get("merchant_id")
	if raw == "" {
		s.clientError(w, endpoint, start, "missing merchant_id")
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		s.clientError(w, endpoint, start, fmt.Sprintf("invalid merchant_id: %s", raw))
		return 0, false
	}

	if !s.limiterFor(uint(id)).Allow() {
		metrics.RecordAnalyticsRequest(endpoint, "rate_limited", time.Since(start))
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return 0, false
	}

	return uint(id), true
}

func (s *Server) limiterFor(merchantID uint) *ratelimit.Limiter {
	if l, ok := s.limiters.Load(merchantID); ok {
		return l.(*ratelimit.Limiter)
	}
	l, _ := s.limiters.LoadOrStore(merchantID, ratelimit.New(s.rps))
	return l.(*ratelimit.Limiter)
}

func (s *Server) clientError(w http.ResponseWriter, endpoint string, start time.Time, msg string) {
	metrics.RecordAnalyticsRequest(endpoint, "client_error", time.Since(start))
	writeError(w, http.StatusBadRequest, msg)
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, endpoint string, start time.Time, err error) {
	s.log.WithError(err).WithFields(logrus.Fields{
		"endpoint": endpoint,
		"path":     r.URL.Path,
	}).Error("Analytics query failed")
	metrics.RecordAnalyticsRequest(endpoint, "server_error", time.Since(start))
	writeError(w, http.StatusInternalServerError, "internal error")
}

// parseMonthish parses 'YYYY-MM' or 'YYYY-MM-DD' bounds. Empty or
// unparseable input is treated as absent.
func parseMonthish(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range []string{"2006-01", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
