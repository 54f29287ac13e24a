package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/miradorstack/mirador-selfheal/internal/config"
	"github.com/miradorstack/mirador-selfheal/internal/engine"
	"github.com/miradorstack/mirador-selfheal/internal/models"
)

type stubAnalyzer struct {
	results []models.Result
	err     error
	panics  bool
	info    models.ModelInfo
	got     []models.Observation
}

func (s *stubAnalyzer) Analyze(_ context.Context, obs []models.Observation) ([]models.Result, error) {
	if s.panics {
		panic("boom")
	}
	s.got = obs
	return s.results, s.err
}

func (s *stubAnalyzer) Info() models.ModelInfo { return s.info }

func newTestRouter(a Analyzer, limit config.RateLimitConfig) http.Handler {
	return NewRouter(slog.New(slog.NewTextHandler(io.Discard, nil)), a, limit)
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestHome(t *testing.T) {
	rec := serve(newTestRouter(&stubAnalyzer{}, config.RateLimitConfig{}), http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["message"] != HomeMessage {
		t.Fatalf("unexpected body %v", body)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestSelfHeal(t *testing.T) {
	analyzer := &stubAnalyzer{results: []models.Result{
		models.NewPointResult(models.PointResult{CPUMilli: 500, MemoryMiB: 800, Type: models.LabelNormal, Action: "No action needed"}),
	}}
	rec := serve(newTestRouter(analyzer, config.RateLimitConfig{}), http.MethodPost, "/self-heal", `{"values":[{"cpu":500,"memory":800}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(analyzer.got) != 1 || analyzer.got[0].CPU != 500 || analyzer.got[0].Memory != 800 {
		t.Fatalf("observations not passed through: %+v", analyzer.got)
	}
	results, ok := decodeBody(t, rec)["results"].([]any)
	if !ok || len(results) != 1 {
		t.Fatalf("expected one result, got %s", rec.Body.String())
	}
	if results[0].(map[string]any)["type"] != "Normal" {
		t.Fatalf("unexpected result %v", results[0])
	}
}

func TestSelfHealEmptyValues(t *testing.T) {
	analyzer := &stubAnalyzer{}
	rec := serve(newTestRouter(analyzer, config.RateLimitConfig{}), http.MethodPost, "/self-heal", `{"values":[]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.TrimSpace(rec.Body.String()) != `{"results":[]}` {
		t.Fatalf("expected empty results list, got %s", rec.Body.String())
	}
}

func TestSelfHealBadRequests(t *testing.T) {
	router := newTestRouter(&stubAnalyzer{}, config.RateLimitConfig{})
	for _, body := range []string{`not json`, `{"values":[{"cpu":1}]}`, `{"values":[{"memory":1}]}`} {
		rec := serve(router, http.MethodPost, "/self-heal", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rec.Code)
		}
		if decodeBody(t, rec)["error"] == "" {
			t.Fatalf("body %q: expected error message", body)
		}
	}
}

func TestSelfHealErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{engine.ErrModelsUnavailable, http.StatusServiceUnavailable},
		{engine.ErrInvalidObservation, http.StatusBadRequest},
		{errors.New("forecast exploded"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		router := newTestRouter(&stubAnalyzer{err: tc.err}, config.RateLimitConfig{})
		rec := serve(router, http.MethodPost, "/self-heal", `{"values":[]}`)
		if rec.Code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, rec.Code)
		}
		if _, ok := decodeBody(t, rec)["error"]; !ok {
			t.Fatalf("%v: expected error body", tc.err)
		}
	}
}

func TestReadyz(t *testing.T) {
	ready := newTestRouter(&stubAnalyzer{info: models.ModelInfo{Status: "real", Ready: true}}, config.RateLimitConfig{})
	if rec := serve(ready, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	degraded := newTestRouter(&stubAnalyzer{info: models.ModelInfo{Status: "degraded"}}, config.RateLimitConfig{})
	if rec := serve(degraded, http.MethodGet, "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if rec := serve(degraded, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("liveness should not depend on models, got %d", rec.Code)
	}
}

func TestModelsEndpoint(t *testing.T) {
	info := models.ModelInfo{Status: "real", Ready: true, SeqLen: 10, ErrorThreshold: 2000, Slots: map[string]string{"outlier_scorer": "loaded"}}
	rec := serve(newTestRouter(&stubAnalyzer{info: info}, config.RateLimitConfig{}), http.MethodGet, "/v1/models", "")
	body := decodeBody(t, rec)
	if body["seq_len"] != float64(10) || body["status"] != "real" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	rec := serve(newTestRouter(&stubAnalyzer{panics: true}, config.RateLimitConfig{}), http.MethodPost, "/self-heal", `{"values":[]}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", rec.Code)
	}
}

func TestRequestIDPropagates(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	newTestRouter(&stubAnalyzer{}, config.RateLimitConfig{}).ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Fatalf("expected incoming request id to be echoed, got %q", got)
	}
}

func TestRateLimit(t *testing.T) {
	router := newTestRouter(&stubAnalyzer{}, config.RateLimitConfig{Enabled: true, QPS: 0.001, Burst: 2})
	for i := 0; i < 2; i++ {
		if rec := serve(router, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
	rec := serve(router, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}
