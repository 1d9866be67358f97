package datasets

import (
	"fmt"

	"github.com/Noofbiz/gatedcrf/gcrf"
	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Batch is a stack of same-sized samples in the layout gcrf expects.
type Batch struct {
	// Appearance is (B, 3, H, W).
	Appearance *gcrf.Field
	// Depth is (B, 1, H, W).
	Depth *gcrf.Field
	// DestinationMask is 1 on unannotated pixels, (B, 1, H, W).
	DestinationMask *gcrf.Field
	// SourceMask is the complement of DestinationMask.
	SourceMask *gcrf.Field
	// Labels are class ids in (B, H, W) order with ignored pixels replaced
	// by the fill label.
	Labels []int32
	// Predictions are predicted class ids, nil unless every sample has one.
	Predictions []int32

	Size, Height, Width int
}

func stack(samples []*Sample, ignore, fill int32) (*Batch, error) {
	H, W := samples[0].Height, samples[0].Width
	B := len(samples)
	bt := &Batch{
		Appearance:      gcrf.NewField(B, 3, H, W),
		Depth:           gcrf.NewField(B, 1, H, W),
		DestinationMask: gcrf.NewField(B, 1, H, W),
		SourceMask:      gcrf.NewField(B, 1, H, W),
		Labels:          make([]int32, B*H*W),
		Size:            B,
		Height:          H,
		Width:           W,
	}
	withPred := true
	for _, s := range samples {
		withPred = withPred && s.Prediction != nil
	}
	if withPred {
		bt.Predictions = make([]int32, B*H*W)
	}

	n := H * W
	for b, s := range samples {
		if s.Height != H || s.Width != W {
			return nil, fmt.Errorf("%w: sample %d is %dx%d, batch is %dx%d",
				gcrf.ErrShapeMismatch, b, s.Height, s.Width, H, W)
		}
		for c := range 3 {
			copy(bt.Appearance.Plane(b, c), s.Appearance.Plane(0, c))
		}
		copy(bt.Depth.Plane(b, 0), s.Depth.Plane(0, 0))
		dst, src := bt.DestinationMask.Plane(b, 0), bt.SourceMask.Plane(b, 0)
		for p, id := range s.Labels {
			if id == ignore {
				dst[p] = 1
				bt.Labels[b*n+p] = fill
			} else {
				src[p] = 1
				bt.Labels[b*n+p] = id
			}
		}
		if withPred {
			copy(bt.Predictions[b*n:(b+1)*n], s.Prediction)
		}
	}
	return bt, nil
}

// Logits turns the predicted class maps into logits: confidence on the
// predicted class, zero elsewhere. Without predictions every logit is zero,
// i.e. a uniform distribution.
func (bt *Batch) Logits(numClasses int, confidence float32) (*gcrf.Field, error) {
	if numClasses < 1 {
		return nil, fmt.Errorf("%w: %d classes", gcrf.ErrInvalidConfiguration, numClasses)
	}
	logits := gcrf.NewField(bt.Size, numClasses, bt.Height, bt.Width)
	if bt.Predictions == nil {
		return logits, nil
	}
	n := bt.Height * bt.Width
	for b := range bt.Size {
		for p := range n {
			k := bt.Predictions[b*n+p]
			if k < 0 || int(k) >= numClasses {
				return nil, fmt.Errorf("%w: predicted class %d outside [0, %d)", gcrf.ErrShapeMismatch, k, numClasses)
			}
			logits.Plane(b, int(k))[p] = confidence
		}
	}
	return logits, nil
}

// ClassWeights balances classes over the annotated pixels of this batch.
func (bt *Batch) ClassWeights(numClasses int) []float64 {
	return ClassWeights(bt.Labels, bt.SourceMask.Data, numClasses)
}

// Inputs assembles the loss inputs. weights may be nil.
func (bt *Batch) Inputs(logits *gcrf.Field, weights []float64) gcrf.Inputs {
	return gcrf.Inputs{
		Logits:          logits,
		Labels:          bt.Labels,
		Appearance:      bt.Appearance,
		Depth:           bt.Depth,
		ClassWeights:    weights,
		SourceMask:      bt.SourceMask,
		DestinationMask: bt.DestinationMask,
	}
}

// ToGomlxTensors converts appearance, depth and labels to gomlx tensors.
// Labels come out as int32 [B, H, W].
func (bt *Batch) ToGomlxTensors() (appearance, depth, labels *tensors.Tensor) {
	lab := make([][][]int32, bt.Size)
	n := bt.Height * bt.Width
	for b := range bt.Size {
		lab[b] = make([][]int32, bt.Height)
		for h := range bt.Height {
			lab[b][h] = bt.Labels[b*n+h*bt.Width : b*n+(h+1)*bt.Width]
		}
	}
	return bt.Appearance.ToGomlxTensor(), bt.Depth.ToGomlxTensor(), tensors.FromAnyValue(lab)
}

// TensorInputs is Inputs as gomlx tensors for gcrf.Loss.ComputeLossesTensors.
func (bt *Batch) TensorInputs(logits *gcrf.Field, weights []float64) gcrf.TensorInputs {
	app, depth, labels := bt.ToGomlxTensors()
	return gcrf.TensorInputs{
		Logits:          logits.ToGomlxTensor(),
		Labels:          labels,
		Appearance:      app,
		Depth:           depth,
		SourceMask:      bt.SourceMask.ToGomlxTensor(),
		DestinationMask: bt.DestinationMask.ToGomlxTensor(),
		ClassWeights:    weights,
	}
}
