package http

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"board/internal/middleware/security"
)

// handleHealth performs basic liveness check
func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady pings the job store.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{"store": "ok"}
	status, code := "ready", http.StatusOK
	if err := s.jobs.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "Readiness check failed", "check", "store", "error", err)
		checks["store"] = "failed: " + err.Error()
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": checks})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.tracer.GetMetrics()
	limitMetrics := s.limiter.GetMetrics()
	securityMetrics := s.detector.GetMetrics()
	cacheStats := s.monthCache.Stats()

	w.WriteHeader(http.StatusOK)
	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_server_errors_total", "counter", "Responses with a 5xx status", traceMetrics.ServerErrors)
	metric("http_response_time_avg_microseconds", "gauge", "Average response time", traceMetrics.AverageResponseTime)
	metric("calendar_cache_hits_total", "counter", "Calendar month cache hits", cacheStats.Hits)
	metric("calendar_cache_misses_total", "counter", "Calendar month cache misses", cacheStats.Misses)
	metric("calendar_cache_entries", "gauge", "Cached calendar months", cacheStats.Size)
	metric("rate_limit_rejections_total", "counter", "Requests rejected by the rate limiter", limitMetrics.Rejected)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", limitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("blocked_requests_total", "counter", "Suspicious requests that were blocked", securityMetrics.BlockedRequests)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", fmt.Sprintf("%.0f", s.now().Sub(s.started).Seconds()))
}

// indexHandler serves the banner or, with a static directory, the frontend
// build. Unknown paths fall back to index.html so client routes work.
func (s *Server) indexHandler() http.Handler {
	if s.static == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/" {
				ErrorResponse(http.StatusNotFound, "not found").Write(w)
				return
			}
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte(Banner))
		})
	}

	files := http.FileServerFS(s.static)
	assets := security.StaticAssetMiddleware(31536000)(files)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if name != "" && name != "index.html" {
			if info, err := fs.Stat(s.static, name); err == nil && !info.IsDir() {
				if strings.HasPrefix(name, "static/") {
					assets.ServeHTTP(w, r)
					return
				}
				files.ServeHTTP(w, r)
				return
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				s.logger.WarnContext(r.Context(), "Static file lookup failed", "file", name, "error", err)
			}
		}
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFileFS(w, r, s.static, "index.html")
	})
}
