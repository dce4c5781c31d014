package web

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/gnosisguild/siphon/internal/logger"
	"github.com/gnosisguild/siphon/internal/metrics"
	"github.com/gnosisguild/siphon/internal/siphon"
	"github.com/gnosisguild/siphon/internal/state"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer exposes the keeper's operational surface over HTTP
type WebServer struct {
	router     *mux.Router
	port       string
	dispatcher *siphon.Siphon
	persist    bool
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, dispatcher *siphon.Siphon, persist bool) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:     mux.NewRouter(),
		port:       port,
		dispatcher: dispatcher,
		persist:    persist,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// Prometheus scrape endpoint
	ws.router.Handle("/metrics", metrics.Handler()).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/tubes", ws.handleGetTubes).Methods("GET")
	api.HandleFunc("/cycles", ws.handleGetCycles).Methods("GET")
	api.HandleFunc("/cycles/latest", ws.handleGetLatestCycle).Methods("GET")
	api.HandleFunc("/tubes/{name}/cycles", ws.handleGetTubeCycles).Methods("GET")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false
	dbHealthy := true
	if ws.persist {
		if err := state.TestDBConnection(); err != nil {
			dbHealthy = false
			hasErrors = true
		}
	}

	overallStatus := "OK"
	if hasErrors {
		overallStatus = "DEGRADED"
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
		},
		"component": map[string]interface{}{
			"name":    "siphon-keeper",
			"version": "1.0.0",
		},
		"keeper_status": map[string]interface{}{
			"database_enabled": ws.persist,
			"database_healthy": dbHealthy,
			"tubes":            len(ws.dispatcher.Tubes()),
		},
	}

	statusCode := http.StatusOK
	if hasErrors {
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetTubes lists the registered tubes
func (ws *WebServer) handleGetTubes(w http.ResponseWriter, r *http.Request) {
	tubes := ws.dispatcher.Tubes()
	response := map[string]interface{}{
		"tubes": tubes,
		"count": len(tubes),
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetCycles returns recent cycle snapshots
func (ws *WebServer) handleGetCycles(w http.ResponseWriter, r *http.Request) {
	if !ws.persist {
		ws.writeErrorResponse(w, http.StatusNotImplemented, "Cycle history requires database persistence")
		return
	}

	cycles, err := state.GetRecentCycles(ws.parseLimit(r))
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent cycles")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve cycles")
		return
	}

	response := map[string]interface{}{
		"cycles": cycles,
		"count":  len(cycles),
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetLatestCycle returns the most recent cycle snapshot
func (ws *WebServer) handleGetLatestCycle(w http.ResponseWriter, r *http.Request) {
	if !ws.persist {
		ws.writeErrorResponse(w, http.StatusNotImplemented, "Cycle history requires database persistence")
		return
	}

	cycles, err := state.GetRecentCycles(1)
	if err != nil || len(cycles) == 0 {
		webLogger.Error().Err(err).Msg("Failed to get latest cycle")
		ws.writeErrorResponse(w, http.StatusNotFound, "No cycles found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, cycles[0])
}

// handleGetTubeCycles returns recent snapshots for one tube
func (ws *WebServer) handleGetTubeCycles(w http.ResponseWriter, r *http.Request) {
	if !ws.persist {
		ws.writeErrorResponse(w, http.StatusNotImplemented, "Cycle history requires database persistence")
		return
	}

	vars := mux.Vars(r)
	tube := vars["name"]

	cycles, err := state.GetCyclesForTube(tube, ws.parseLimit(r))
	if err != nil {
		webLogger.Error().Err(err).Str("tube", tube).Msg("Failed to get tube cycles")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve cycles")
		return
	}

	response := map[string]interface{}{
		"tube":   tube,
		"cycles": cycles,
		"count":  len(cycles),
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) parseLimit(r *http.Request) int {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}
	return limit
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		webLogger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper captures the status code for logging
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriterWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
