// Package ml holds the statistical models behind detection: an isolation
// forest outlier scorer, a random forest label classifier and a windowed
// linear forecaster with its min-max scaler. Models are plain structs with
// exported fields so they can be persisted as JSON and never change after Fit.
package ml

import (
	"errors"
	"fmt"
	"math"
)

// ErrNoData is returned when a model is fit on an empty matrix.
var ErrNoData = errors.New("no training data")

// MinMaxScaler maps every feature into [0,1] using the training min and max.
type MinMaxScaler struct {
	Min []float64 `json:"min"`
	Max []float64 `json:"max"`
}

// FitMinMaxScaler learns per-feature bounds from data.
func FitMinMaxScaler(data [][]float64) (*MinMaxScaler, error) {
	width, err := matrixWidth(data)
	if err != nil {
		return nil, err
	}
	s := &MinMaxScaler{
		Min: make([]float64, width),
		Max: make([]float64, width),
	}
	copy(s.Min, data[0])
	copy(s.Max, data[0])
	for _, row := range data[1:] {
		for j, v := range row {
			s.Min[j] = math.Min(s.Min[j], v)
			s.Max[j] = math.Max(s.Max[j], v)
		}
	}
	return s, nil
}

// Width returns the number of features the scaler was fit on.
func (s *MinMaxScaler) Width() int {
	return len(s.Min)
}

// Transform scales a single row. Constant features map to x-min.
func (s *MinMaxScaler) Transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Min[j]) / s.span(j)
	}
	return out
}

// Inverse maps a scaled row back to raw units.
func (s *MinMaxScaler) Inverse(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = v*s.span(j) + s.Min[j]
	}
	return out
}

// Validate checks a decoded scaler for structural consistency.
func (s *MinMaxScaler) Validate() error {
	if s == nil || len(s.Min) == 0 {
		return fmt.Errorf("scaler is empty")
	}
	if len(s.Min) != len(s.Max) {
		return fmt.Errorf("scaler bounds mismatch: %d min vs %d max", len(s.Min), len(s.Max))
	}
	for j := range s.Min {
		if s.Max[j] < s.Min[j] {
			return fmt.Errorf("scaler feature %d has max < min", j)
		}
	}
	return nil
}

func (s *MinMaxScaler) span(j int) float64 {
	r := s.Max[j] - s.Min[j]
	if r == 0 {
		return 1
	}
	return r
}

func matrixWidth(data [][]float64) (int, error) {
	if len(data) == 0 {
		return 0, ErrNoData
	}
	width := len(data[0])
	if width == 0 {
		return 0, fmt.Errorf("rows have no features")
	}
	for i, row := range data {
		if len(row) != width {
			return 0, fmt.Errorf("row %d has %d features, expected %d", i, len(row), width)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, fmt.Errorf("row %d feature %d is not finite", i, j)
			}
		}
	}
	return width, nil
}
