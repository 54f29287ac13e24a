package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/miradorstack/mirador-selfheal/internal/models"
	"github.com/miradorstack/mirador-selfheal/internal/registry"
)

type stubScorer struct{ outlierAbove float64 }

func (s stubScorer) Decision(row []float64) (float64, bool) {
	if s.outlierAbove > 0 && row[0] > s.outlierAbove {
		return -0.2, true
	}
	return 0.1, false
}

type stubClassifier struct{ label string }

func (s stubClassifier) Predict(row []float64) (string, float64) {
	if s.label != "" {
		return s.label, 0.6
	}
	if row[0] > 8000 {
		return string(models.LabelCPUContention), 0.9
	}
	return string(models.LabelNormal), 0.95
}

type stubForecaster struct {
	mu      sync.Mutex
	pred    [2]float64
	err     error
	history [][2]float64
}

func (s *stubForecaster) Forecast(history [][2]float64) ([2]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append([][2]float64(nil), history...)
	return s.pred, s.err
}

func newTestDetector(status registry.Status, scorer registry.OutlierScorer, classifier registry.LabelClassifier, forecaster registry.SequenceForecaster) *Detector {
	reg := registry.New(status, 10, registry.Models{
		OutlierScorer:      scorer,
		LabelClassifier:    classifier,
		SequenceForecaster: forecaster,
	}, nil)
	return NewDetector(slog.New(slog.NewTextHandler(io.Discard, nil)), reg, DefaultKnowledgeBase(), 0)
}

func flat(n int, cpu, mem float64) []models.Observation {
	out := make([]models.Observation, n)
	for i := range out {
		out[i] = models.Observation{CPU: cpu, Memory: mem}
	}
	return out
}

func TestDetectSingleNormalObservation(t *testing.T) {
	d := newTestDetector(registry.StatusReal, stubScorer{}, stubClassifier{}, &stubForecaster{})
	results, err := d.Detect(context.Background(), []models.Observation{{CPU: 500, Memory: 800}})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(results) != 1 || results[0].Kind != models.ResultKindPoint {
		t.Fatalf("expected a single point result, got %+v", results)
	}
	p := results[0].Point
	if p.Anomaly || p.Type != models.LabelNormal || p.Action != "No action needed" {
		t.Fatalf("unexpected point result %+v", p)
	}
	if p.CPUMilli != 500 || p.MemoryMiB != 800 {
		t.Fatalf("input values not echoed: %+v", p)
	}
}

func TestDetectCPUContention(t *testing.T) {
	d := newTestDetector(registry.StatusReal, stubScorer{}, stubClassifier{}, &stubForecaster{})
	results, err := d.Detect(context.Background(), []models.Observation{{CPU: 9500, Memory: 500}})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	p := results[0].Point
	if !p.Anomaly || p.Type != models.LabelCPUContention || p.Action != "Scale up CPU or increase service replicas" {
		t.Fatalf("unexpected point result %+v", p)
	}
}

func TestDetectFlatSequenceWithinThreshold(t *testing.T) {
	forecaster := &stubForecaster{pred: [2]float64{1005, 2010}}
	d := newTestDetector(registry.StatusReal, stubScorer{}, stubClassifier{}, forecaster)

	results, err := d.Detect(context.Background(), flat(10, 1000, 2000))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(results) != 11 {
		t.Fatalf("expected 10 point results and one sequence result, got %d", len(results))
	}
	for i, r := range results[:10] {
		if r.Kind != models.ResultKindPoint {
			t.Fatalf("result %d should be a point result", i)
		}
	}
	seq := results[10].Sequence
	if results[10].Kind != models.ResultKindSequence || seq == nil {
		t.Fatalf("last result should be the sequence result")
	}
	if seq.Error != 15 || seq.Anomaly || seq.Action != "No action needed" {
		t.Fatalf("unexpected sequence result %+v", seq)
	}
	if seq.Type != models.LabelSequencePrediction || seq.CPUMilliPredicted != 1005 || seq.MemoryMiBPredicted != 2010 {
		t.Fatalf("unexpected sequence prediction %+v", seq)
	}
}

func TestDetectSequenceAnomaly(t *testing.T) {
	forecaster := &stubForecaster{pred: [2]float64{2500, 3000}}
	d := newTestDetector(registry.StatusReal, stubScorer{}, stubClassifier{}, forecaster)

	results, err := d.Detect(context.Background(), flat(10, 1000, 2000))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	seq := results[len(results)-1].Sequence
	if seq.Error != 2500 || !seq.Anomaly || seq.Action != TrendAction {
		t.Fatalf("expected trend anomaly, got %+v", seq)
	}
}

func TestDetectErrorAtThresholdIsNotAnomalous(t *testing.T) {
	forecaster := &stubForecaster{pred: [2]float64{2000, 3000}}
	d := newTestDetector(registry.StatusReal, stubScorer{}, stubClassifier{}, forecaster)

	results, err := d.Detect(context.Background(), flat(10, 1000, 2000))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if seq := results[len(results)-1].Sequence; seq.Error != 2000 || seq.Anomaly {
		t.Fatalf("error equal to threshold must not be anomalous: %+v", seq)
	}
}

func TestDetectShortInputSkipsSequence(t *testing.T) {
	forecaster := &stubForecaster{}
	d := newTestDetector(registry.StatusReal, stubScorer{}, stubClassifier{}, forecaster)

	results, err := d.Detect(context.Background(), flat(9, 1000, 2000))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(results) != 9 {
		t.Fatalf("expected only point results, got %d", len(results))
	}
	if forecaster.history != nil {
		t.Fatalf("forecaster should not run for short input")
	}
}

func TestDetectUsesTrailingWindow(t *testing.T) {
	forecaster := &stubForecaster{pred: [2]float64{1011, 2000}}
	d := newTestDetector(registry.StatusReal, stubScorer{}, stubClassifier{}, forecaster)

	obs := make([]models.Observation, 12)
	for i := range obs {
		obs[i] = models.Observation{CPU: 1000 + float64(i), Memory: 2000}
	}
	results, err := d.Detect(context.Background(), obs)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(results) != 13 {
		t.Fatalf("expected 13 results, got %d", len(results))
	}
	if len(forecaster.history) != 10 || forecaster.history[0][0] != 1002 || forecaster.history[9][0] != 1011 {
		t.Fatalf("forecaster should see the last 10 observations, got %v", forecaster.history)
	}
	if seq := results[12].Sequence; seq.Error != 0 {
		t.Fatalf("error should be measured against the last observation, got %v", seq.Error)
	}
}

func TestDetectRefusesDegradedRegistry(t *testing.T) {
	d := newTestDetector(registry.StatusDegraded, stubScorer{}, stubClassifier{}, &stubForecaster{})
	if _, err := d.Detect(context.Background(), flat(1, 1, 1)); !errors.Is(err, ErrModelsUnavailable) {
		t.Fatalf("expected ErrModelsUnavailable, got %v", err)
	}

	nilReg := NewDetector(nil, nil, nil, 0)
	if _, err := nilReg.Detect(context.Background(), flat(1, 1, 1)); !errors.Is(err, ErrModelsUnavailable) {
		t.Fatalf("expected ErrModelsUnavailable for nil registry, got %v", err)
	}
}

func TestDetectEmptyInput(t *testing.T) {
	forecaster := &stubForecaster{}
	d := newTestDetector(registry.StatusReal, stubScorer{}, stubClassifier{}, forecaster)
	results, err := d.Detect(context.Background(), []models.Observation{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results == nil || len(results) != 0 {
		t.Fatalf("expected empty non-nil results, got %#v", results)
	}
	data, err := json.Marshal(results)
	if err != nil || string(data) != "[]" {
		t.Fatalf("expected [] encoding, got %s, %v", data, err)
	}
}

func TestDetectValidatesInput(t *testing.T) {
	d := newTestDetector(registry.StatusReal, stubScorer{}, stubClassifier{}, &stubForecaster{})
	if _, err := d.Detect(context.Background(), []models.Observation{{CPU: -1, Memory: 10}}); !errors.Is(err, ErrInvalidObservation) {
		t.Fatalf("expected ErrInvalidObservation, got %v", err)
	}
}

func TestDetectForecastFailure(t *testing.T) {
	d := newTestDetector(registry.StatusReal, stubScorer{}, stubClassifier{}, &stubForecaster{err: errors.New("boom")})
	if _, err := d.Detect(context.Background(), flat(10, 1, 1)); err == nil {
		t.Fatalf("expected forecast error to surface")
	}
}

func TestDetectOutlierIsAdvisory(t *testing.T) {
	d := newTestDetector(registry.StatusReal, stubScorer{outlierAbove: 100}, stubClassifier{}, &stubForecaster{})
	results, err := d.Detect(context.Background(), []models.Observation{{CPU: 500, Memory: 800}})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	p := results[0].Point
	if !p.Outlier || p.ScoreISO >= 0 {
		t.Fatalf("expected outlier diagnostics, got %+v", p)
	}
	if p.Anomaly || p.Action != "No action needed" {
		t.Fatalf("outlier flag must not change classification outcome: %+v", p)
	}
}

func TestDetectUnknownLabelFallsBack(t *testing.T) {
	d := newTestDetector(registry.StatusReal, stubScorer{}, stubClassifier{label: "Disk_Pressure"}, &stubForecaster{})
	results, err := d.Detect(context.Background(), flat(1, 1, 1))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if p := results[0].Point; !p.Anomaly || p.Action != FallbackAction {
		t.Fatalf("expected fallback action, got %+v", p)
	}
}

func TestDetectConcurrent(t *testing.T) {
	d := newTestDetector(registry.StatusReal, stubScorer{}, stubClassifier{}, &stubForecaster{pred: [2]float64{1000, 2000}})
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := d.Detect(context.Background(), flat(12, 1000, 2000))
			if err == nil && len(results) != 13 {
				err = errors.New("unexpected result count")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent detect: %v", err)
		}
	}
}

func TestResultJSONShape(t *testing.T) {
	d := newTestDetector(registry.StatusReal, stubScorer{}, stubClassifier{}, &stubForecaster{pred: [2]float64{1005, 2010}})
	results, err := d.Detect(context.Background(), flat(10, 1000, 2000))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	data, err := json.Marshal(results)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"cpu_milli", "memory_mib", "anomaly", "score_iso", "type", "action"} {
		if _, ok := decoded[0][key]; !ok {
			t.Fatalf("point result missing %q: %v", key, decoded[0])
		}
	}
	for _, key := range []string{"cpu_milli_predicted", "memory_mib_predicted", "anomaly", "error", "type", "action"} {
		if _, ok := decoded[10][key]; !ok {
			t.Fatalf("sequence result missing %q: %v", key, decoded[10])
		}
	}
	if decoded[10]["type"] != "LSTM_Prediction" {
		t.Fatalf("unexpected sequence type %v", decoded[10]["type"])
	}
}
