// Package training turns the historical dataset into model training inputs.
package training

import "github.com/miradorstack/mirador-selfheal/internal/models"

// Thresholds used by the contention rules.
const (
	CPUContentionMilli  = 8000
	MemoryContentionMiB = 16000
)

// Rule assigns Label to any sample matched by Match.
type Rule struct {
	Name  string
	Match func(models.MetricSample) bool
	Label models.AnomalyLabel
}

// DefaultRules are evaluated in order; the last matching rule wins, so
// memory contention overrides CPU contention and crashes override both.
var DefaultRules = []Rule{
	{
		Name: "pending-high-cpu",
		Match: func(s models.MetricSample) bool {
			return s.Phase == models.PhasePending && s.CPUMilli > CPUContentionMilli
		},
		Label: models.LabelCPUContention,
	},
	{
		Name: "pending-high-memory",
		Match: func(s models.MetricSample) bool {
			return s.Phase == models.PhasePending && s.MemoryMiB > MemoryContentionMiB
		},
		Label: models.LabelMemoryContention,
	},
	{
		Name: "crashed",
		Match: func(s models.MetricSample) bool {
			return s.Phase == models.PhaseFailed || s.Phase == models.PhaseError
		},
		Label: models.LabelPodCrashFailure,
	},
}

// Label returns the label of the last rule matching sample, or Normal.
func Label(sample models.MetricSample, rules []Rule) models.AnomalyLabel {
	label := models.LabelNormal
	for _, rule := range rules {
		if rule.Match != nil && rule.Match(sample) {
			label = rule.Label
		}
	}
	return label
}

// Corpus is the derived training input for the point detectors.
type Corpus struct {
	// Outlier holds the features of Running samples only.
	Outlier [][]float64
	// Features and Labels cover every sample, index-aligned.
	Features [][]float64
	Labels   []models.AnomalyLabel
}

// Synthesize labels every sample with DefaultRules.
func Synthesize(samples []models.MetricSample) Corpus {
	return SynthesizeWith(samples, DefaultRules)
}

// SynthesizeWith labels every sample with the supplied rules.
func SynthesizeWith(samples []models.MetricSample, rules []Rule) Corpus {
	corpus := Corpus{
		Features: make([][]float64, 0, len(samples)),
		Labels:   make([]models.AnomalyLabel, 0, len(samples)),
	}
	for _, sample := range samples {
		if sample.Phase == models.PhaseRunning {
			corpus.Outlier = append(corpus.Outlier, sample.Features())
		}
		corpus.Features = append(corpus.Features, sample.Features())
		corpus.Labels = append(corpus.Labels, Label(sample, rules))
	}
	return corpus
}

// LabelCounts tallies labels, mostly for startup logging.
func (c Corpus) LabelCounts() map[models.AnomalyLabel]int {
	counts := make(map[models.AnomalyLabel]int, len(models.KnownLabels))
	for _, label := range c.Labels {
		counts[label]++
	}
	return counts
}
