package datasets

import (
	"github.com/Noofbiz/gatedcrf/gcrf"
)

// This package loads semantic-segmentation samples described by a CSV
// manifest and turns batches of them into the fields the gated CRF loss
// consumes.
//
// Layout and intended usage:
//
// SegmentationDataset
//   - Stores the manifest rows (file paths only); images are decoded when a
//     sample or batch is requested.
//   - Manifest columns: image, depth, label and optionally prediction.
//   - Appearance: RGB (or CIE-Lab) scaled to [0,1], optionally normalized.
//   - Depth: grayscale image scaled to [0,1].
//   - Labels: grayscale or paletted class ids; IgnoreLabel marks pixels
//     without annotation.
//
// A Batch exposes gcrf fields, the two validity masks, per-batch class
// weights and gomlx tensors.
type Dataset interface {
	Len() int
	Example(i int) (*Sample, error)
	Batch(indices []int) (*Batch, error)
	Shuffle(seed int64)
}

// Sample is one decoded manifest row.
type Sample struct {
	// Appearance is (1, 3, H, W).
	Appearance *gcrf.Field
	// Depth is (1, 1, H, W).
	Depth *gcrf.Field
	// Labels holds raw class ids in (H, W) order, IgnoreLabel included.
	Labels []int32
	// Prediction holds predicted class ids, nil when the manifest has none.
	Prediction []int32
	Height     int
	Width      int
}
