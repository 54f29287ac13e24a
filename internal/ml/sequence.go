package ml

import "fmt"

// SequenceModel bundles a forecaster with the scaler it was trained under so
// the pair is always persisted and restored together.
type SequenceModel struct {
	SeqLen     int               `json:"seq_len"`
	Scaler     *MinMaxScaler     `json:"scaler"`
	Forecaster *LinearForecaster `json:"forecaster"`
}

// FitSequenceModel trains a forecaster on already-scaled windows.
// history[i] holds seqLen scaled points and target[i] the scaled next point.
func FitSequenceModel(scaler *MinMaxScaler, seqLen int, history [][][2]float64, target [][2]float64, ridge float64) (*SequenceModel, error) {
	if scaler == nil {
		return nil, fmt.Errorf("scaler is required")
	}
	if seqLen <= 0 {
		return nil, fmt.Errorf("sequence length must be positive")
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("no training windows: %w", ErrNoData)
	}
	if len(history) != len(target) {
		return nil, fmt.Errorf("got %d targets for %d windows", len(target), len(history))
	}

	X := make([][]float64, len(history))
	Y := make([][]float64, len(target))
	for i, window := range history {
		if len(window) != seqLen {
			return nil, fmt.Errorf("window %d has %d points, expected %d", i, len(window), seqLen)
		}
		X[i] = flatten(window)
		Y[i] = []float64{target[i][0], target[i][1]}
	}

	forecaster, err := FitLinearForecaster(X, Y, ridge)
	if err != nil {
		return nil, fmt.Errorf("fit forecaster: %w", err)
	}
	return &SequenceModel{SeqLen: seqLen, Scaler: scaler, Forecaster: forecaster}, nil
}

// Forecast predicts the raw next point following a raw history of SeqLen points.
func (m *SequenceModel) Forecast(history [][2]float64) ([2]float64, error) {
	if len(history) != m.SeqLen {
		return [2]float64{}, fmt.Errorf("forecast needs %d points, got %d", m.SeqLen, len(history))
	}
	scaled := make([][2]float64, len(history))
	for i, point := range history {
		s := m.Scaler.Transform(point[:])
		scaled[i] = [2]float64{s[0], s[1]}
	}
	pred, err := m.Forecaster.Predict(flatten(scaled))
	if err != nil {
		return [2]float64{}, err
	}
	raw := m.Scaler.Inverse(pred)
	return [2]float64{raw[0], raw[1]}, nil
}

// Validate checks the composite and both of its parts.
func (m *SequenceModel) Validate() error {
	if m == nil || m.SeqLen <= 0 {
		return fmt.Errorf("sequence model has invalid window length")
	}
	if err := m.Scaler.Validate(); err != nil {
		return err
	}
	if m.Scaler.Width() != 2 {
		return fmt.Errorf("sequence scaler expects 2 features, has %d", m.Scaler.Width())
	}
	if err := m.Forecaster.Validate(); err != nil {
		return err
	}
	if m.Forecaster.Inputs != 2*m.SeqLen || m.Forecaster.Outputs != 2 {
		return fmt.Errorf("forecaster shape %dx%d does not match window length %d", m.Forecaster.Inputs, m.Forecaster.Outputs, m.SeqLen)
	}
	return nil
}

func flatten(window [][2]float64) []float64 {
	out := make([]float64, 0, 2*len(window))
	for _, p := range window {
		out = append(out, p[0], p[1])
	}
	return out
}
