package gcrf

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCompatibilityMatrixThreeClasses(t *testing.T) {
	got, err := CompatibilityMatrix(3)
	if err != nil {
		t.Fatalf("CompatibilityMatrix(3) error: %v", err)
	}
	want := []float64{0, 1, 1, 1, 0, 1, 1, 1, 0}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("CompatibilityMatrix(3) mismatch (-want +got):\n%s", diff)
	}
}

func TestCompatibilityMatrixSingleClassIsZero(t *testing.T) {
	got, err := CompatibilityMatrix(1)
	if err != nil {
		t.Fatalf("CompatibilityMatrix(1) error: %v", err)
	}
	if diff := cmp.Diff([]float64{0}, got); diff != "" {
		t.Fatalf("CompatibilityMatrix(1) mismatch (-want +got):\n%s", diff)
	}
}

func TestCompatibilityMatrixSymmetric(t *testing.T) {
	const n = 5
	m, err := CompatibilityMatrix(n)
	if err != nil {
		t.Fatalf("CompatibilityMatrix(%d) error: %v", n, err)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if m[i*n+j] != m[j*n+i] {
				t.Fatalf("entry (%d,%d)=%v differs from (%d,%d)=%v", i, j, m[i*n+j], j, i, m[j*n+i])
			}
		}
	}
}

func TestCompatibilityMatrixRejectsZeroClasses(t *testing.T) {
	if _, err := CompatibilityMatrix(0); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
}
