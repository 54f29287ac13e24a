package models

// PodPhase mirrors the Kubernetes pod lifecycle phase recorded with each sample.
type PodPhase string

const (
	PhaseRunning   PodPhase = "Running"
	PhasePending   PodPhase = "Pending"
	PhaseSucceeded PodPhase = "Succeeded"
	PhaseFailed    PodPhase = "Failed"
	PhaseError     PodPhase = "Error"
	PhaseUnknown   PodPhase = "Unknown"
)

// MetricSample is a single historical resource reading read from the training dataset.
type MetricSample struct {
	CPUMilli  float64
	MemoryMiB float64
	Phase     PodPhase
}

// Features returns the (cpu, memory) feature pair used by every model.
func (s MetricSample) Features() []float64 {
	return []float64{s.CPUMilli, s.MemoryMiB}
}

// Observation is a sample submitted for detection. Requests carry no phase.
type Observation struct {
	CPU    float64
	Memory float64
}

// Point returns the observation as a fixed-size feature pair.
func (o Observation) Point() [2]float64 {
	return [2]float64{o.CPU, o.Memory}
}

// AnomalyLabel is the closed set of anomaly types the classifier is trained on.
type AnomalyLabel string

const (
	LabelNormal           AnomalyLabel = "Normal"
	LabelCPUContention    AnomalyLabel = "CPU_Contention"
	LabelMemoryContention AnomalyLabel = "Memory_Contention"
	LabelPodCrashFailure  AnomalyLabel = "Pod_Crash_Failure"

	// LabelSequencePrediction tags forecast results; it is never a classifier label.
	LabelSequencePrediction AnomalyLabel = "LSTM_Prediction"
)

// KnownLabels lists the classifier label set in a stable order.
var KnownLabels = []AnomalyLabel{
	LabelNormal,
	LabelCPUContention,
	LabelMemoryContention,
	LabelPodCrashFailure,
}

// IsKnown reports whether the label belongs to the classifier label set.
func (l AnomalyLabel) IsKnown() bool {
	for _, known := range KnownLabels {
		if l == known {
			return true
		}
	}
	return false
}
