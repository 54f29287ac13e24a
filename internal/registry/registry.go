// Package registry owns the startup lifecycle of the detection models: each
// slot is loaded from the artifact store or trained from the historical
// dataset and persisted, and the result is frozen into a Registry value.
package registry

// Slot names double as artifact store keys.
const (
	SlotOutlierScorer      = "outlier_scorer"
	SlotLabelClassifier    = "label_classifier"
	SlotSequenceForecaster = "sequence_forecaster"
)

// Slots lists the model slots in build order.
var Slots = []string{SlotOutlierScorer, SlotLabelClassifier, SlotSequenceForecaster}

// Status reports whether the registry holds models trained on real data.
type Status string

const (
	StatusReal     Status = "real"
	StatusDegraded Status = "degraded"
)

// Source records how a slot became ready.
type Source string

const (
	SourceTrained     Source = "trained"
	SourceLoaded      Source = "loaded"
	SourcePlaceholder Source = "placeholder"
)

// OutlierScorer returns a decision score (negative means outlier) and the outlier flag.
type OutlierScorer interface {
	Decision(row []float64) (float64, bool)
}

// LabelClassifier predicts an anomaly label and the vote share behind it.
type LabelClassifier interface {
	Predict(row []float64) (string, float64)
}

// SequenceForecaster predicts the raw point following a raw history window.
type SequenceForecaster interface {
	Forecast(history [][2]float64) ([2]float64, error)
}

// Models groups the three slots.
type Models struct {
	OutlierScorer      OutlierScorer
	LabelClassifier    LabelClassifier
	SequenceForecaster SequenceForecaster
}

// Registry is the immutable set of ready models shared by request handlers.
type Registry struct {
	status  Status
	seqLen  int
	models  Models
	sources map[string]Source
}

// New freezes models into a Registry. sources is copied.
func New(status Status, seqLen int, models Models, sources map[string]Source) *Registry {
	copied := make(map[string]Source, len(sources))
	for slot, src := range sources {
		copied[slot] = src
	}
	return &Registry{status: status, seqLen: seqLen, models: models, sources: copied}
}

// Status returns StatusDegraded for a nil registry.
func (r *Registry) Status() Status {
	if r == nil {
		return StatusDegraded
	}
	return r.status
}

// Ready reports whether the registry may serve predictions.
func (r *Registry) Ready() bool {
	return r.Status() == StatusReal &&
		r.models.OutlierScorer != nil &&
		r.models.LabelClassifier != nil &&
		r.models.SequenceForecaster != nil
}

// SeqLen is the forecaster window length.
func (r *Registry) SeqLen() int {
	if r == nil {
		return 0
	}
	return r.seqLen
}

// OutlierScorer returns the isolation-style scorer, or nil on a nil registry.
func (r *Registry) OutlierScorer() OutlierScorer {
	if r == nil {
		return nil
	}
	return r.models.OutlierScorer
}

// LabelClassifier returns the label classifier, or nil on a nil registry.
func (r *Registry) LabelClassifier() LabelClassifier {
	if r == nil {
		return nil
	}
	return r.models.LabelClassifier
}

// SequenceForecaster returns the forecaster, or nil on a nil registry.
func (r *Registry) SequenceForecaster() SequenceForecaster {
	if r == nil {
		return nil
	}
	return r.models.SequenceForecaster
}

// Sources returns a copy of the per-slot source map.
func (r *Registry) Sources() map[string]Source {
	out := make(map[string]Source, len(Slots))
	if r == nil {
		return out
	}
	for slot, src := range r.sources {
		out[slot] = src
	}
	return out
}
