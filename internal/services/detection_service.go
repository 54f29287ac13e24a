package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-selfheal/internal/api"
	"github.com/miradorstack/mirador-selfheal/internal/engine"
	"github.com/miradorstack/mirador-selfheal/internal/metrics"
	"github.com/miradorstack/mirador-selfheal/internal/models"
	"github.com/miradorstack/mirador-selfheal/internal/registry"
	"github.com/miradorstack/mirador-selfheal/internal/utils"
)

// DetectionService is the facade shared by the HTTP API and the gRPC SelfHeal service.
type DetectionService struct {
	logger    *slog.Logger
	detector  *engine.Detector
	latencies *utils.LatencyTracker
}

// NewDetectionService constructs the detection facade.
func NewDetectionService(logger *slog.Logger, detector *engine.Detector) *DetectionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DetectionService{
		logger:    logger,
		detector:  detector,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Analyze runs detection and records metrics.
func (s *DetectionService) Analyze(ctx context.Context, observations []models.Observation) ([]models.Result, error) {
	if s.detector == nil {
		return nil, engine.ErrModelsUnavailable
	}

	start := time.Now()
	results, err := s.detector.Detect(ctx, observations)
	duration := time.Since(start)
	if err != nil {
		outcome := metrics.OutcomeError
		if errors.Is(err, engine.ErrModelsUnavailable) {
			outcome = metrics.OutcomeUnavailable
		}
		metrics.ObserveDetection(duration, outcome)
		return nil, err
	}

	s.latencies.Observe(duration)
	metrics.ObserveDetection(duration, metrics.OutcomeSuccess)
	for _, r := range results {
		if r.IsAnomaly() {
			metrics.ObserveAnomaly(string(r.Kind), string(r.Label()))
		}
	}
	if total := s.latencies.Total(); total%100 == 0 {
		s.logger.Info("detection latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Uint64("detections", total))
	}
	return results, nil
}

// Info summarises the registry behind the detector.
func (s *DetectionService) Info() models.ModelInfo {
	info := models.ModelInfo{
		Status: string(registry.StatusDegraded),
		Slots:  map[string]string{},
	}
	if s.detector == nil {
		return info
	}
	reg := s.detector.Registry()
	info.Status = string(reg.Status())
	info.Ready = reg.Ready()
	info.SeqLen = reg.SeqLen()
	info.ErrorThreshold = s.detector.Threshold()
	for slot, src := range reg.Sources() {
		info.Slots[slot] = string(src)
	}
	return info
}

// Detect implements the gRPC SelfHeal Detect method.
func (s *DetectionService) Detect(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	observations, err := api.FromStructDetectRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	results, err := s.Analyze(ctx, observations)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrModelsUnavailable):
			return nil, status.Error(codes.FailedPrecondition, err.Error())
		case errors.Is(err, engine.ErrInvalidObservation):
			return nil, status.Error(codes.InvalidArgument, err.Error())
		case errors.Is(err, context.Canceled):
			return nil, status.Error(codes.Canceled, err.Error())
		case errors.Is(err, context.DeadlineExceeded):
			return nil, status.Error(codes.DeadlineExceeded, err.Error())
		default:
			s.logger.Error("detection failed", slog.Any("error", err))
			return nil, status.Error(codes.Internal, "detection failed")
		}
	}

	resp, err := api.ToStructDetectResponse(results)
	if err != nil {
		s.logger.Error("encode detection response", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to encode results")
	}
	return resp, nil
}

// ModelInfo implements the gRPC SelfHeal ModelInfo method.
func (s *DetectionService) ModelInfo(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	resp, err := api.ToStructModelInfo(s.Info())
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode model info")
	}
	return resp, nil
}

// LatencyP95 returns the current p95 detection latency.
func (s *DetectionService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}
