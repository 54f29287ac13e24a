package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/miradorstack/mirador-selfheal/internal/dataset"
	"github.com/miradorstack/mirador-selfheal/internal/metrics"
	"github.com/miradorstack/mirador-selfheal/internal/ml"
	"github.com/miradorstack/mirador-selfheal/internal/models"
	"github.com/miradorstack/mirador-selfheal/internal/store"
	"github.com/miradorstack/mirador-selfheal/internal/training"
	"github.com/miradorstack/mirador-selfheal/internal/utils"
)

// DatasetSource yields the historical samples models are trained on.
type DatasetSource interface {
	Load(ctx context.Context) ([]models.MetricSample, error)
}

// Config holds training parameters.
type Config struct {
	SeqLen        int
	Contamination float64
	Trees         int
	Seed          int64
	Ridge         float64
}

// DefaultConfig returns the production training parameters.
func DefaultConfig() Config {
	return Config{
		SeqLen:        10,
		Contamination: 0.01,
		Trees:         100,
		Seed:          42,
		Ridge:         ml.DefaultRidge,
	}
}

const (
	placeholderRows          = 10
	placeholderContamination = 0.1
)

// Manager builds a Registry once at startup.
type Manager struct {
	logger *slog.Logger
	source DatasetSource
	store  store.Store
	cfg    Config
	now    func() time.Time
}

// NewManager wires the dataset source and artifact store. Zero config fields
// fall back to DefaultConfig.
func NewManager(logger *slog.Logger, source DatasetSource, st store.Store, cfg Config) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if st == nil {
		st = store.NoopStore{}
	}
	def := DefaultConfig()
	if cfg.SeqLen <= 0 {
		cfg.SeqLen = def.SeqLen
	}
	if cfg.Contamination <= 0 {
		cfg.Contamination = def.Contamination
	}
	if cfg.Trees <= 0 {
		cfg.Trees = def.Trees
	}
	if cfg.Seed == 0 {
		cfg.Seed = def.Seed
	}
	if cfg.Ridge <= 0 {
		cfg.Ridge = def.Ridge
	}
	return &Manager{
		logger: logger.With("component", "registry"),
		source: source,
		store:  st,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Build makes every slot ready. A missing dataset yields a degraded registry
// backed by placeholder models; every other failure is returned as an
// *utils.AppError and must stop the process.
func (m *Manager) Build(ctx context.Context) (*Registry, error) {
	samples, err := m.source.Load(ctx)
	if err != nil {
		if errors.Is(err, dataset.ErrDatasetMissing) {
			m.logger.Error("training dataset missing, starting with placeholder models", slog.Any("error", err))
			return m.placeholder()
		}
		return nil, utils.NewAppError("registry.Build", "load training dataset", err)
	}

	corpus := training.Synthesize(samples)
	counts := corpus.LabelCounts()
	m.logger.Info("training corpus ready",
		slog.Int("samples", len(samples)),
		slog.Int("running", len(corpus.Outlier)),
		slog.Int("cpu_contention", counts[models.LabelCPUContention]),
		slog.Int("memory_contention", counts[models.LabelMemoryContention]),
		slog.Int("pod_crash_failure", counts[models.LabelPodCrashFailure]),
	)

	sources := make(map[string]Source, len(Slots))

	scorer, src, err := readySlot(ctx, m, SlotOutlierScorer, kindIsolationForest, func() (*ml.IsolationForest, error) {
		return ml.FitIsolationForest(corpus.Outlier, m.isolationConfig(m.cfg.Contamination))
	})
	if err != nil {
		return nil, err
	}
	sources[SlotOutlierScorer] = src

	classifier, src, err := readySlot(ctx, m, SlotLabelClassifier, kindRandomForest, func() (*ml.RandomForest, error) {
		return ml.FitRandomForest(corpus.Features, labelStrings(corpus.Labels), m.forestConfig())
	})
	if err != nil {
		return nil, err
	}
	sources[SlotLabelClassifier] = src

	sequence, src, err := readySlot(ctx, m, SlotSequenceForecaster, kindSequenceModel, func() (*ml.SequenceModel, error) {
		return m.trainSequence(training.RunningRuns(samples), corpus.Outlier)
	})
	if err != nil {
		return nil, err
	}
	if sequence.SeqLen != m.cfg.SeqLen {
		return nil, utils.NewAppError("registry.Build", "stored sequence forecaster does not match configuration",
			fmt.Errorf("artifact window %d, configured %d", sequence.SeqLen, m.cfg.SeqLen))
	}
	sources[SlotSequenceForecaster] = src

	metrics.SetDegraded(false)
	return New(StatusReal, m.cfg.SeqLen, Models{
		OutlierScorer:      scorer,
		LabelClassifier:    classifier,
		SequenceForecaster: sequence,
	}, sources), nil
}

// readySlot loads slot from the store or, on a miss, trains it and saves the
// artifact before returning.
func readySlot[T validator](ctx context.Context, m *Manager, slot, kind string, train func() (T, error)) (T, Source, error) {
	var zero T
	start := time.Now()
	logger := m.logger.With(slog.String("slot", slot))

	data, err := m.store.Load(ctx, slot)
	switch {
	case err == nil:
		model, err := decodeArtifact[T](data, kind)
		if err != nil {
			return zero, "", utils.NewAppError("registry.Build", "decode "+slot+" artifact", err)
		}
		logger.Info("model loaded from store")
		metrics.ObserveModelBuild(slot, string(SourceLoaded), time.Since(start))
		return model, SourceLoaded, nil
	case !errors.Is(err, store.ErrArtifactMiss):
		return zero, "", utils.NewAppError("registry.Build", "load "+slot+" artifact", err)
	}

	logger.Info("no stored artifact, training")
	model, err := train()
	if err != nil {
		return zero, "", utils.NewAppError("registry.Build", "train "+slot, err)
	}
	encoded, err := encodeArtifact(kind, model, m.now())
	if err != nil {
		return zero, "", utils.NewAppError("registry.Build", "encode "+slot, err)
	}
	if err := m.store.Save(ctx, slot, encoded); err != nil {
		return zero, "", utils.NewAppError("registry.Build", "save "+slot+" artifact", err)
	}
	logger.Info("model trained and saved", slog.Duration("elapsed", time.Since(start)), slog.Int("bytes", len(encoded)))
	metrics.ObserveModelBuild(slot, string(SourceTrained), time.Since(start))
	return model, SourceTrained, nil
}

// trainSequence fits the scaler on every Running sample, then windows each
// contiguous Running run separately in scaled space.
func (m *Manager) trainSequence(runs [][][2]float64, running [][]float64) (*ml.SequenceModel, error) {
	scaler, err := ml.FitMinMaxScaler(running)
	if err != nil {
		return nil, fmt.Errorf("fit scaler: %w", err)
	}

	scaledRuns := make([][][2]float64, len(runs))
	for i, run := range runs {
		scaled := make([][2]float64, len(run))
		for j, p := range run {
			s := scaler.Transform(p[:])
			scaled[j] = [2]float64{s[0], s[1]}
		}
		scaledRuns[i] = scaled
	}

	windows := training.RunWindows(scaledRuns, m.cfg.SeqLen)
	if len(windows) == 0 {
		return nil, fmt.Errorf("no Running run longer than %d samples: %w", m.cfg.SeqLen, ml.ErrNoData)
	}
	history := make([][][2]float64, len(windows))
	target := make([][2]float64, len(windows))
	for i, w := range windows {
		history[i] = w.History
		target[i] = w.Target
	}
	return ml.FitSequenceModel(scaler, m.cfg.SeqLen, history, target, m.cfg.Ridge)
}

// placeholder trains throwaway models on random rows so every slot is
// populated. Nothing is persisted.
func (m *Manager) placeholder() (*Registry, error) {
	rng := rand.New(rand.NewSource(m.cfg.Seed))
	rows := make([][]float64, placeholderRows+m.cfg.SeqLen)
	for i := range rows {
		rows[i] = []float64{rng.Float64(), rng.Float64()}
	}
	pointRows := rows[:placeholderRows]
	labels := make([]string, placeholderRows)
	for i := range labels {
		labels[i] = string(models.LabelNormal)
		if i%2 == 1 {
			labels[i] = string(models.LabelCPUContention)
		}
	}

	scorer, err := ml.FitIsolationForest(pointRows, m.isolationConfig(placeholderContamination))
	if err != nil {
		return nil, utils.NewAppError("registry.Build", "placeholder outlier scorer", err)
	}
	classifier, err := ml.FitRandomForest(pointRows, labels, m.forestConfig())
	if err != nil {
		return nil, utils.NewAppError("registry.Build", "placeholder label classifier", err)
	}
	series := make([][2]float64, len(rows))
	for i, r := range rows {
		series[i] = [2]float64{r[0], r[1]}
	}
	sequence, err := m.trainSequence([][][2]float64{series}, rows)
	if err != nil {
		return nil, utils.NewAppError("registry.Build", "placeholder sequence forecaster", err)
	}

	sources := make(map[string]Source, len(Slots))
	for _, slot := range Slots {
		sources[slot] = SourcePlaceholder
		metrics.ObserveModelBuild(slot, string(SourcePlaceholder), 0)
	}
	metrics.SetDegraded(true)
	return New(StatusDegraded, m.cfg.SeqLen, Models{
		OutlierScorer:      scorer,
		LabelClassifier:    classifier,
		SequenceForecaster: sequence,
	}, sources), nil
}

func (m *Manager) isolationConfig(contamination float64) ml.IsolationForestConfig {
	cfg := ml.DefaultIsolationForestConfig()
	cfg.Trees = m.cfg.Trees
	cfg.Seed = m.cfg.Seed
	cfg.Contamination = contamination
	return cfg
}

func (m *Manager) forestConfig() ml.RandomForestConfig {
	cfg := ml.DefaultRandomForestConfig()
	cfg.Trees = m.cfg.Trees
	cfg.Seed = m.cfg.Seed
	return cfg
}

func labelStrings(labels []models.AnomalyLabel) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = string(l)
	}
	return out
}
