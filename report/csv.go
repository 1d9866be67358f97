// Package report writes per-batch loss summaries to CSV and renders energy
// heatmaps and loss curves with gonum/plot.
package report

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

// Record is the loss summary of one evaluated batch.
type Record struct {
	Batch             int
	Classification    float64
	Smoothness        float64
	AnnotatedFraction float64
}

// Header is the first CSV row written by WriteCSV.
var Header = []string{"batch", "classification", "smoothness", "annotated_fraction"}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteCSV writes records to path, creating parent directories as needed.
func WriteCSV(path string, records []Record) error {
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output CSV %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			strconv.Itoa(r.Batch),
			formatFloat(r.Classification),
			formatFloat(r.Smoothness),
			formatFloat(r.AnnotatedFraction),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0755)
}
