package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chrisej001/voice-agent/internal/bridge"
	"github.com/chrisej001/voice-agent/internal/config"
	"github.com/chrisej001/voice-agent/internal/metrics"
	"github.com/chrisej001/voice-agent/internal/session"
)

// HTTPServer provides the media stream endpoint plus HTTP API endpoints for
// monitoring and management
type HTTPServer struct {
	server   *http.Server
	logger   *slog.Logger
	config   *config.Config
	bridge   *bridge.Bridge
	registry *session.Registry
	metrics  *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates the inbound HTTP server
func NewHTTPServer(cfg config.ServerConfig, logger *slog.Logger,
	appConfig *config.Config, b *bridge.Bridge, registry *session.Registry, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		bridge:    b,
		registry:  registry,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: /stream connections live as long as the call
		IdleTimeout: 60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Per-call media stream endpoint (websocket upgrade)
	mux.HandleFunc("/stream", h.bridge.HandleStream)

	// Liveness probe
	mux.HandleFunc("/healthz", h.withMetrics("/healthz", h.handleHealthz))

	// Detailed health
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Session monitoring endpoints
	mux.HandleFunc("/sessions", h.withMetrics("/sessions", h.handleSessions))
	mux.HandleFunc("/sessions/", h.withMetrics("/sessions/{id}", h.handleSessionDetail))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		handler(ww, r)

		if h.metrics != nil {
			duration := time.Since(startTime).Seconds()
			h.metrics.RecordHTTPRequest(r.Method, endpoint, fmt.Sprintf("%d", ww.statusCode), duration)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP server...")

	return h.server.Shutdown(ctx)
}

// handleHealthz implements the plain-text liveness probe
func (h *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "voice-agent",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"bridge": map[string]interface{}{
				"status":     "running",
				"live_calls": h.bridge.CallCount(),
			},
			"sessions": map[string]interface{}{
				"status": "running",
				"active": h.registry.Count(),
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleSessions implements the /sessions endpoint
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	infos := h.registry.Snapshot()

	response := map[string]interface{}{
		"total_sessions": len(infos),
		"timestamp":      time.Now().UTC(),
		"sessions":       infos,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleSessionDetail implements the /sessions/{session_id} endpoint
func (h *HTTPServer) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Path[len("/sessions/"):]
	if sessionID == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	s, exists := h.registry.Get(sessionID)
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.GetInfo())
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Return sanitized configuration (remove sensitive data)
	sanitizedConfig := map[string]interface{}{
		"server": map[string]interface{}{
			"port":         h.config.Server.Port,
			"bind_address": h.config.Server.BindAddress,
		},
		"audio": map[string]interface{}{
			"sample_rate": h.config.Audio.SampleRate,
			"channels":    h.config.Audio.Channels,
			"bit_depth":   h.config.Audio.BitDepth,
		},
		"speech": map[string]interface{}{
			"url":               h.config.Speech.URL,
			"voice":             h.config.Speech.Voice,
			"connect_timeout":   h.config.Speech.ConnectTimeout,
			"pre_connect_queue": h.config.Speech.PreConnectQueue,
			// Note: API key is intentionally omitted for security
		},
		"control": map[string]interface{}{
			"url":             h.config.Control.URL,
			"app_name":        h.config.Control.AppName,
			"reconnect_delay": h.config.Control.ReconnectDelay,
			"media_url":       h.config.Control.MediaURL,
		},
		"recording": map[string]interface{}{
			"format": h.config.Recording.Format,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}
