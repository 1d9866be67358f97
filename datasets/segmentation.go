package datasets

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/Noofbiz/gatedcrf/gcrf"
)

// DefaultIgnoreLabel is the label value of unannotated pixels.
const DefaultIgnoreLabel = 255

type manifestRow struct {
	image, depth, label, prediction string
}

// SegmentationDataset lazily loads image/depth/label triples listed in a CSV
// manifest. The manifest must carry "image", "depth" and "label" columns; a
// "prediction" column of predicted class maps is optional. Relative paths are
// resolved against the manifest's directory.
type SegmentationDataset struct {
	// Manifest is the path the dataset was built from.
	Manifest string

	// IgnoreLabel marks unannotated pixels in label maps.
	IgnoreLabel int32
	// FillLabel replaces IgnoreLabel in Batch.Labels so every id is a valid
	// class.
	FillLabel int32

	// ColorSpace of the appearance channels.
	ColorSpace ColorSpace
	// Mean and Std normalize appearance channels. A zero Std leaves the
	// channels untouched.
	Mean [3]float64
	Std  [3]float64

	rows          []manifestRow
	hasPrediction bool
}

// NewSegmentationDataset reads the manifest rows. Images are not opened
// until a sample is requested.
func NewSegmentationDataset(manifest string) (*SegmentationDataset, error) {
	file, err := os.Open(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest %s: %w", manifest, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("manifest %s is empty", manifest)
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.TrimSpace(strings.ToLower(col))] = i
	}
	for _, col := range []string{"image", "depth", "label"} {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("required column %q not found in manifest", col)
		}
	}
	predCol, hasPrediction := colIndex["prediction"]

	dir := filepath.Dir(manifest)
	field := func(rec []string, col int) string {
		if col >= len(rec) {
			return ""
		}
		return resolvePath(dir, strings.TrimSpace(rec[col]))
	}

	ds := &SegmentationDataset{
		Manifest:      manifest,
		IgnoreLabel:   DefaultIgnoreLabel,
		Std:           [3]float64{1, 1, 1},
		hasPrediction: hasPrediction,
	}
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest line %d: %w", line, err)
		}
		row := manifestRow{
			image: field(rec, colIndex["image"]),
			depth: field(rec, colIndex["depth"]),
			label: field(rec, colIndex["label"]),
		}
		if hasPrediction {
			row.prediction = field(rec, predCol)
		}
		if row.image == "" || row.depth == "" || row.label == "" {
			return nil, fmt.Errorf("manifest line %d: image, depth and label are required", line)
		}
		ds.rows = append(ds.rows, row)
	}
	if len(ds.rows) == 0 {
		return nil, fmt.Errorf("manifest %s lists no samples", manifest)
	}
	return ds, nil
}

// Len returns the number of manifest rows.
func (d *SegmentationDataset) Len() int {
	return len(d.rows)
}

// HasPredictions reports whether the manifest carries a prediction column.
func (d *SegmentationDataset) HasPredictions() bool {
	return d.hasPrediction
}

// Shuffle permutes the rows deterministically for a given seed.
func (d *SegmentationDataset) Shuffle(seed int64) {
	r := rand.New(rand.NewSource(seed))
	r.Shuffle(len(d.rows), func(i, j int) {
		d.rows[i], d.rows[j] = d.rows[j], d.rows[i]
	})
}

// Example decodes row i.
func (d *SegmentationDataset) Example(i int) (*Sample, error) {
	if i < 0 || i >= len(d.rows) {
		return nil, fmt.Errorf("index %d out of range [0, %d)", i, len(d.rows))
	}
	row := d.rows[i]

	img, err := decodeImage(row.image)
	if err != nil {
		return nil, err
	}
	std := d.Std
	for c := range std {
		if std[c] == 0 {
			std[c] = 1
		}
	}
	s := &Sample{Appearance: appearanceField(img, d.ColorSpace, d.Mean, std)}
	s.Height, s.Width = img.Bounds().Dy(), img.Bounds().Dx()

	depth, err := decodeImage(row.depth)
	if err != nil {
		return nil, err
	}
	if err := sameSize(row.depth, depth.Bounds().Dy(), depth.Bounds().Dx(), s.Height, s.Width); err != nil {
		return nil, err
	}
	s.Depth = depthField(depth)

	label, err := decodeImage(row.label)
	if err != nil {
		return nil, err
	}
	if err := sameSize(row.label, label.Bounds().Dy(), label.Bounds().Dx(), s.Height, s.Width); err != nil {
		return nil, err
	}
	s.Labels = classIDs(label)

	if row.prediction != "" {
		pred, err := decodeImage(row.prediction)
		if err != nil {
			return nil, err
		}
		if err := sameSize(row.prediction, pred.Bounds().Dy(), pred.Bounds().Dx(), s.Height, s.Width); err != nil {
			return nil, err
		}
		s.Prediction = classIDs(pred)
	}
	return s, nil
}

// Batch decodes the given rows and stacks them. All samples must share one
// size.
func (d *SegmentationDataset) Batch(indices []int) (*Batch, error) {
	if len(indices) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	samples := make([]*Sample, len(indices))
	for i, idx := range indices {
		s, err := d.Example(idx)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", idx, err)
		}
		samples[i] = s
	}
	return stack(samples, d.IgnoreLabel, d.FillLabel)
}

func sameSize(path string, h, w, wantH, wantW int) error {
	if h != wantH || w != wantW {
		return fmt.Errorf("%w: %s is %dx%d, want %dx%d", gcrf.ErrShapeMismatch, path, h, w, wantH, wantW)
	}
	return nil
}
