package gcrf

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// CompatibilityMatrix builds the class-pair penalty table for numClasses
// classes, flattened row-major: entry (i, j) sits at i*numClasses+j and is 0
// when i == j and 1 otherwise. With a single class the table is all zero.
func CompatibilityMatrix(numClasses int) ([]float64, error) {
	if numClasses < 1 {
		return nil, fmt.Errorf("%w: numClasses must be >= 1, got %d", ErrInvalidConfiguration, numClasses)
	}
	ones := make([]float64, numClasses*numClasses)
	for i := range ones {
		ones[i] = 1
	}
	diag := make([]float64, numClasses)
	for i := range diag {
		diag[i] = 1
	}

	var m mat.Dense
	m.Sub(mat.NewDense(numClasses, numClasses, ones), mat.NewDiagDense(numClasses, diag))

	flat := make([]float64, 0, numClasses*numClasses)
	for i := 0; i < numClasses; i++ {
		flat = append(flat, mat.Row(nil, i, &m)...)
	}
	return flat, nil
}
