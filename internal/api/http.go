package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/miradorstack/mirador-selfheal/internal/config"
	"github.com/miradorstack/mirador-selfheal/internal/engine"
	"github.com/miradorstack/mirador-selfheal/internal/models"
)

// HomeMessage is returned by GET /.
const HomeMessage = "Self-Healing Microservices ML Anomaly Detection Service Running!"

const maxBodyBytes = 1 << 20

// Analyzer is the detection facade the HTTP API serves.
type Analyzer interface {
	Analyze(ctx context.Context, observations []models.Observation) ([]models.Result, error)
	Info() models.ModelInfo
}

type httpHandlers struct {
	logger   *slog.Logger
	analyzer Analyzer
}

// NewRouter builds the HTTP API with request id, access log, recovery and
// optional rate limiting.
func NewRouter(logger *slog.Logger, analyzer Analyzer, limit config.RateLimitConfig) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &httpHandlers{logger: logger, analyzer: analyzer}

	r := mux.NewRouter()
	r.HandleFunc("/", h.home).Methods(http.MethodGet)
	r.HandleFunc("/self-heal", h.selfHeal).Methods(http.MethodPost)
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.readyz).Methods(http.MethodGet)
	r.HandleFunc("/v1/models", h.models).Methods(http.MethodGet)

	r.Use(RequestID, AccessLog(logger), Recovery(logger))
	if limit.Enabled {
		r.Use(NewRateLimiter(limit.QPS, limit.Burst).Middleware)
	}
	return r
}

func (h *httpHandlers) home(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": HomeMessage})
}

// selfHeal serves POST /self-heal. Every value needs cpu and memory; negative
// or non-finite metrics get 400, an empty values list gets {"results":[]}.
func (h *httpHandlers) selfHeal(w http.ResponseWriter, r *http.Request) {
	var req DetectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	observations, err := req.Observations()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := h.analyzer.Analyze(r.Context(), observations)
	if err != nil {
		code := HTTPStatus(err)
		if code == http.StatusInternalServerError {
			h.logger.Error("detection failed",
				slog.Any("error", err),
				slog.String("request_id", RequestIDFromContext(r.Context())))
			writeError(w, code, "detection failed")
			return
		}
		writeError(w, code, err.Error())
		return
	}
	if results == nil {
		results = []models.Result{}
	}
	writeJSON(w, http.StatusOK, DetectResponse{Results: results})
}

func (h *httpHandlers) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *httpHandlers) readyz(w http.ResponseWriter, _ *http.Request) {
	info := h.analyzer.Info()
	if !info.Ready {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": info.Status})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": info.Status})
}

func (h *httpHandlers) models(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.analyzer.Info())
}

// HTTPStatus maps detection errors onto response codes.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, engine.ErrModelsUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrInvalidObservation):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// HTTPServer serves the REST API.
type HTTPServer struct {
	server   *http.Server
	listener net.Listener
}

// NewHTTPServer binds the configured HTTP address.
func NewHTTPServer(cfg config.ServerConfig, handler http.Handler) (*HTTPServer, error) {
	lis, err := net.Listen("tcp", cfg.HTTPAddress)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.HTTPAddress, err)
	}
	return &HTTPServer{
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		listener: lis,
	}, nil
}

// Start serves until Shutdown; a clean shutdown returns nil.
func (s *HTTPServer) Start() error {
	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Address exposes the bound listener address.
func (s *HTTPServer) Address() string {
	return s.listener.Addr().String()
}
