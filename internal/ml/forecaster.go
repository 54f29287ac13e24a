package ml

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// DefaultRidge is the L2 penalty applied to forecaster weights (not the bias).
const DefaultRidge = 1e-3

// LinearForecaster predicts the next point as an affine function of the
// flattened history window, fit by ridge regression in closed form.
type LinearForecaster struct {
	Inputs  int `json:"inputs"`
	Outputs int `json:"outputs"`
	// Weights has one row per output; the final column is the bias.
	Weights [][]float64 `json:"weights"`
	Ridge   float64     `json:"ridge"`
}

// FitLinearForecaster solves (XᵀX + λI)w = Xᵀy for every output column.
func FitLinearForecaster(X, Y [][]float64, ridge float64) (*LinearForecaster, error) {
	inputs, err := matrixWidth(X)
	if err != nil {
		return nil, err
	}
	outputs, err := matrixWidth(Y)
	if err != nil {
		return nil, err
	}
	if len(X) != len(Y) {
		return nil, fmt.Errorf("got %d targets for %d inputs", len(Y), len(X))
	}
	if ridge < 0 {
		return nil, fmt.Errorf("ridge penalty must be non-negative")
	}

	p := inputs + 1
	design := mat.NewDense(len(X), p, nil)
	for n, row := range X {
		design.SetRow(n, row)
		design.Set(n, inputs, 1)
	}
	targets := mat.NewDense(len(Y), outputs, nil)
	for n, row := range Y {
		targets.SetRow(n, row)
	}

	var gram mat.SymDense
	gram.SymOuterK(1, design.T())
	for i := 0; i < inputs; i++ {
		gram.SetSym(i, i, gram.At(i, i)+ridge)
	}
	var rhs mat.Dense
	rhs.Mul(design.T(), targets)

	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); !ok {
		return nil, fmt.Errorf("normal equations are not positive definite")
	}
	var solution mat.Dense
	if err := chol.SolveTo(&solution, &rhs); err != nil {
		return nil, fmt.Errorf("solve normal equations: %w", err)
	}

	weights := make([][]float64, outputs)
	for k := range weights {
		weights[k] = make([]float64, p)
		for i := 0; i < p; i++ {
			weights[k][i] = solution.At(i, k)
		}
	}
	return &LinearForecaster{Inputs: inputs, Outputs: outputs, Weights: weights, Ridge: ridge}, nil
}

// Predict applies the fitted weights to a flattened window.
func (f *LinearForecaster) Predict(input []float64) ([]float64, error) {
	if len(input) != f.Inputs {
		return nil, fmt.Errorf("forecaster expects %d inputs, got %d", f.Inputs, len(input))
	}
	out := make([]float64, f.Outputs)
	for k, w := range f.Weights {
		sum := w[f.Inputs]
		for i, x := range input {
			sum += w[i] * x
		}
		out[k] = sum
	}
	return out, nil
}

// Validate checks a decoded forecaster for structural consistency.
func (f *LinearForecaster) Validate() error {
	if f == nil || f.Inputs <= 0 || f.Outputs <= 0 {
		return fmt.Errorf("forecaster has invalid shape")
	}
	if len(f.Weights) != f.Outputs {
		return fmt.Errorf("forecaster has %d weight rows, expected %d", len(f.Weights), f.Outputs)
	}
	for k, w := range f.Weights {
		if len(w) != f.Inputs+1 {
			return fmt.Errorf("forecaster weight row %d has %d columns, expected %d", k, len(w), f.Inputs+1)
		}
	}
	return nil
}
