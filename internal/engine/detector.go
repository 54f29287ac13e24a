package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/miradorstack/mirador-selfheal/internal/models"
	"github.com/miradorstack/mirador-selfheal/internal/registry"
)

var (
	// ErrModelsUnavailable is returned while the registry is degraded.
	ErrModelsUnavailable = errors.New("anomaly models unavailable: service started without training data")
	// ErrInvalidObservation is returned for negative or non-finite metrics.
	ErrInvalidObservation = errors.New("invalid observation")
)

const (
	// DefaultErrorThreshold is the forecast error (cpu milli + memory MiB) above which a trend is anomalous.
	DefaultErrorThreshold = 2000.0

	TrendAction   = "Investigate time-series trend anomaly (e.g., impending leak)"
	NoTrendAction = "No action needed"
)

// Detector fuses point classification with trailing-window forecasting.
type Detector struct {
	logger    *slog.Logger
	registry  *registry.Registry
	kb        *KnowledgeBase
	threshold float64
}

// NewDetector binds a frozen registry and knowledge base. A non-positive
// threshold selects DefaultErrorThreshold.
func NewDetector(logger *slog.Logger, reg *registry.Registry, kb *KnowledgeBase, threshold float64) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	if kb == nil {
		kb = DefaultKnowledgeBase()
	}
	if threshold <= 0 {
		threshold = DefaultErrorThreshold
	}
	return &Detector{
		logger:    logger.With("component", "detector"),
		registry:  reg,
		kb:        kb,
		threshold: threshold,
	}
}

// Threshold returns the sequence error threshold in use.
func (d *Detector) Threshold() float64 { return d.threshold }

// Registry exposes the registry for status reporting.
func (d *Detector) Registry() *registry.Registry { return d.registry }

// Detect returns one point result per observation in input order, followed by
// a single sequence result when at least SeqLen observations were supplied.
// No observations yield an empty, non-nil result list.
func (d *Detector) Detect(ctx context.Context, observations []models.Observation) ([]models.Result, error) {
	if !d.registry.Ready() {
		return nil, ErrModelsUnavailable
	}
	for i, obs := range observations {
		if err := validateObservation(obs); err != nil {
			return nil, fmt.Errorf("observation %d: %w", i, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]models.Result, 0, len(observations)+1)
	for _, obs := range observations {
		results = append(results, models.NewPointResult(d.classify(obs)))
	}

	seqLen := d.registry.SeqLen()
	if seqLen <= 0 || len(observations) < seqLen {
		return results, nil
	}
	seq, err := d.forecast(observations[len(observations)-seqLen:])
	if err != nil {
		return nil, fmt.Errorf("sequence forecast: %w", err)
	}
	return append(results, models.NewSequenceResult(seq)), nil
}

func (d *Detector) classify(obs models.Observation) models.PointResult {
	row := []float64{obs.CPU, obs.Memory}
	score, outlier := d.registry.OutlierScorer().Decision(row)
	raw, confidence := d.registry.LabelClassifier().Predict(row)
	label := models.AnomalyLabel(raw)
	if !label.IsKnown() {
		d.logger.Warn("classifier produced unknown label", slog.String("label", raw))
	}
	return models.PointResult{
		CPUMilli:   obs.CPU,
		MemoryMiB:  obs.Memory,
		Anomaly:    label != models.LabelNormal,
		ScoreISO:   score,
		Outlier:    outlier,
		Confidence: confidence,
		Type:       label,
		Action:     d.kb.Resolve(label),
	}
}

func (d *Detector) forecast(window []models.Observation) (models.SequenceResult, error) {
	history := make([][2]float64, len(window))
	for i, obs := range window {
		history[i] = obs.Point()
	}
	pred, err := d.registry.SequenceForecaster().Forecast(history)
	if err != nil {
		return models.SequenceResult{}, err
	}
	last := history[len(history)-1]
	errSum := math.Abs(pred[0]-last[0]) + math.Abs(pred[1]-last[1])
	anomaly := errSum > d.threshold
	action := NoTrendAction
	if anomaly {
		action = TrendAction
	}
	return models.SequenceResult{
		CPUMilliPredicted:  pred[0],
		MemoryMiBPredicted: pred[1],
		Anomaly:            anomaly,
		Error:              errSum,
		Type:               models.LabelSequencePrediction,
		Action:             action,
	}, nil
}

func validateObservation(obs models.Observation) error {
	for _, v := range []float64{obs.CPU, obs.Memory} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: metric is not finite", ErrInvalidObservation)
		}
		if v < 0 {
			return fmt.Errorf("%w: metric %v is negative", ErrInvalidObservation, v)
		}
	}
	return nil
}
