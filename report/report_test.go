package report

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/Noofbiz/gatedcrf/gcrf"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "losses.csv")
	records := []Record{
		{Batch: 0, Classification: 0.5, Smoothness: 0.25, AnnotatedFraction: 0.75},
		{Batch: 1, Classification: math.NaN(), Smoothness: 1e-9, AnnotatedFraction: 1},
	}
	require.NoError(t, WriteCSV(path, records))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	want := [][]string{
		{"batch", "classification", "smoothness", "annotated_fraction"},
		{"0", "0.5", "0.25", "0.75"},
		{"1", "NaN", "1e-09", "1"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("csv mismatch (-want +got):\n%s", diff)
	}
}

func TestEnergyHeatmap(t *testing.T) {
	grid := gcrf.NewEnergyGrid(2, 1)
	for i := range grid.Values {
		grid.Values[i] = float64(i) / 10
	}
	grid.Values[0] = math.NaN()

	path := filepath.Join(t.TempDir(), "plots", "energy.png")
	require.NoError(t, EnergyHeatmap(grid, path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestEnergyHeatmapConstantGrid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "energy.svg")
	require.NoError(t, EnergyHeatmap(gcrf.NewEnergyGrid(1, 2), path))
	assert.FileExists(t, path)
}

func TestEnergyHeatmapEmpty(t *testing.T) {
	assert.ErrorIs(t, EnergyHeatmap(nil, filepath.Join(t.TempDir(), "x.png")), ErrNothingToPlot)
}

func TestLossCurve(t *testing.T) {
	records := []Record{
		{Batch: 0, Classification: 1.2, Smoothness: 0.3},
		{Batch: 1, Classification: math.NaN(), Smoothness: 0.2},
		{Batch: 2, Classification: 0.9, Smoothness: 0.1},
	}
	path := filepath.Join(t.TempDir(), "curve.png")
	require.NoError(t, LossCurve(records, 0.5, path))
	assert.FileExists(t, path)
}

func TestLossCurveAllUndefined(t *testing.T) {
	records := []Record{{Classification: math.NaN(), Smoothness: math.NaN()}}
	err := LossCurve(records, 1, filepath.Join(t.TempDir(), "curve.png"))
	assert.ErrorIs(t, err, ErrNothingToPlot)
}
