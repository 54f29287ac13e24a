package models

import (
	"encoding/json"
	"fmt"
)

// ResultKind discriminates the two detection result shapes.
type ResultKind string

const (
	ResultKindPoint    ResultKind = "point"
	ResultKindSequence ResultKind = "sequence"
)

// PointResult is the per-sample classification outcome.
type PointResult struct {
	CPUMilli   float64      `json:"cpu_milli"`
	MemoryMiB  float64      `json:"memory_mib"`
	Anomaly    bool         `json:"anomaly"`
	ScoreISO   float64      `json:"score_iso"`
	Outlier    bool         `json:"outlier"`
	Confidence float64      `json:"confidence"`
	Type       AnomalyLabel `json:"type"`
	Action     string       `json:"action"`
}

// SequenceResult is the trailing-window forecast outcome.
type SequenceResult struct {
	CPUMilliPredicted  float64      `json:"cpu_milli_predicted"`
	MemoryMiBPredicted float64      `json:"memory_mib_predicted"`
	Anomaly            bool         `json:"anomaly"`
	Error              float64      `json:"error"`
	Type               AnomalyLabel `json:"type"`
	Action             string       `json:"action"`
}

// Result holds exactly one of Point or Sequence, selected by Kind.
type Result struct {
	Kind     ResultKind
	Point    *PointResult
	Sequence *SequenceResult
}

// NewPointResult wraps a point result.
func NewPointResult(p PointResult) Result {
	return Result{Kind: ResultKindPoint, Point: &p}
}

// NewSequenceResult wraps a sequence result.
func NewSequenceResult(s SequenceResult) Result {
	return Result{Kind: ResultKindSequence, Sequence: &s}
}

// IsAnomaly reports the anomaly flag of whichever shape is set.
func (r Result) IsAnomaly() bool {
	switch r.Kind {
	case ResultKindPoint:
		return r.Point != nil && r.Point.Anomaly
	case ResultKindSequence:
		return r.Sequence != nil && r.Sequence.Anomaly
	default:
		return false
	}
}

// Label returns the anomaly type of whichever shape is set.
func (r Result) Label() AnomalyLabel {
	switch {
	case r.Kind == ResultKindPoint && r.Point != nil:
		return r.Point.Type
	case r.Kind == ResultKindSequence && r.Sequence != nil:
		return r.Sequence.Type
	default:
		return ""
	}
}

// MarshalJSON flattens the union into the shape of the populated variant.
func (r Result) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case ResultKindPoint:
		if r.Point == nil {
			return nil, fmt.Errorf("point result is empty")
		}
		return json.Marshal(r.Point)
	case ResultKindSequence:
		if r.Sequence == nil {
			return nil, fmt.Errorf("sequence result is empty")
		}
		return json.Marshal(r.Sequence)
	default:
		return nil, fmt.Errorf("unknown result kind %q", r.Kind)
	}
}
