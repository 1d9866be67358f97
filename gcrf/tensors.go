package gcrf

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// ToGomlxTensor converts the field to a float32 gomlx tensor shaped
// [batch, channels, height, width].
func (f *Field) ToGomlxTensor() *tensors.Tensor {
	data := make([][][][]float32, f.Batch)
	for b := range f.Batch {
		data[b] = make([][][]float32, f.Channels)
		for c := range f.Channels {
			plane := f.Plane(b, c)
			rows := make([][]float32, f.Height)
			for h := range f.Height {
				rows[h] = plane[h*f.Width : (h+1)*f.Width]
			}
			data[b][c] = rows
		}
	}
	return tensors.FromAnyValue(data)
}

// FieldFromTensor copies a rank-4 float32, float64 or bool gomlx tensor into
// a Field. Booleans become 1 and 0.
func FieldFromTensor(t *tensors.Tensor) (*Field, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: tensor is nil", ErrShapeMismatch)
	}
	switch v := t.Value().(type) {
	case [][][][]float32:
		return fieldFromNested(v, func(x float32) float32 { return x })
	case [][][][]float64:
		return fieldFromNested(v, func(x float64) float32 { return float32(x) })
	case [][][][]bool:
		return fieldFromNested(v, func(x bool) float32 {
			if x {
				return 1
			}
			return 0
		})
	default:
		return nil, fmt.Errorf("%w: want a rank-4 float or bool tensor, got %T", ErrShapeMismatch, v)
	}
}

func fieldFromNested[T any](v [][][][]T, conv func(T) float32) (*Field, error) {
	B := len(v)
	var C, H, W int
	if B > 0 {
		C = len(v[0])
		if C > 0 {
			H = len(v[0][0])
			if H > 0 {
				W = len(v[0][0][0])
			}
		}
	}
	f := NewField(B, C, H, W)
	for b := range v {
		if len(v[b]) != C {
			return nil, fmt.Errorf("%w: ragged tensor at batch %d", ErrShapeMismatch, b)
		}
		for c := range v[b] {
			if len(v[b][c]) != H {
				return nil, fmt.Errorf("%w: ragged tensor at (%d, %d)", ErrShapeMismatch, b, c)
			}
			for h := range v[b][c] {
				if len(v[b][c][h]) != W {
					return nil, fmt.Errorf("%w: ragged tensor at (%d, %d, %d)", ErrShapeMismatch, b, c, h)
				}
				for w, x := range v[b][c][h] {
					f.Set(b, c, h, w, conv(x))
				}
			}
		}
	}
	return f, nil
}

// ToGomlxTensor converts the grid to a float64 tensor shaped
// [batch, 2*span+1, 2*span+1].
func (g *EnergyGrid) ToGomlxTensor() *tensors.Tensor {
	n := g.Size()
	data := make([][][]float64, g.Batch)
	for b := range g.Batch {
		data[b] = make([][]float64, n)
		for r := range n {
			start := (b*n + r) * n
			data[b][r] = g.Values[start : start+n]
		}
	}
	return tensors.FromAnyValue(data)
}

// labelsFromTensor flattens an int32 or int64 [B, H, W] tensor.
func labelsFromTensor(t *tensors.Tensor) (labels []int32, dims [3]int, err error) {
	if t == nil {
		return nil, dims, fmt.Errorf("%w: labels tensor is nil", ErrShapeMismatch)
	}
	switch v := t.Value().(type) {
	case [][][]int32:
		return labelsFromNested(v)
	case [][][]int64:
		return labelsFromNested(v)
	default:
		return nil, dims, fmt.Errorf("%w: want a rank-3 int32 or int64 labels tensor, got %T", ErrShapeMismatch, v)
	}
}

func labelsFromNested[T int32 | int64](v [][][]T) ([]int32, [3]int, error) {
	dims := [3]int{len(v), 0, 0}
	if len(v) > 0 {
		dims[1] = len(v[0])
		if dims[1] > 0 {
			dims[2] = len(v[0][0])
		}
	}
	labels := make([]int32, 0, dims[0]*dims[1]*dims[2])
	for b := range v {
		if len(v[b]) != dims[1] {
			return nil, dims, fmt.Errorf("%w: ragged labels at batch %d", ErrShapeMismatch, b)
		}
		for h := range v[b] {
			if len(v[b][h]) != dims[2] {
				return nil, dims, fmt.Errorf("%w: ragged labels at (%d, %d)", ErrShapeMismatch, b, h)
			}
			for _, y := range v[b][h] {
				labels = append(labels, int32(y))
			}
		}
	}
	return labels, dims, nil
}

// TensorInputs is Inputs as gomlx tensors, the form a network hands over.
type TensorInputs struct {
	// Logits is float32 or float64 [B, C, H, W].
	Logits *tensors.Tensor
	// Labels is int32 or int64 [B, H, W].
	Labels     *tensors.Tensor
	Appearance *tensors.Tensor
	Depth      *tensors.Tensor
	// Masks are float or bool [B, 1, H, W].
	SourceMask      *tensors.Tensor
	DestinationMask *tensors.Tensor
	ClassWeights    []float64
}

// TensorResult is a Result plus its energy grid as a float64
// [B, 2*span+1, 2*span+1] tensor.
type TensorResult struct {
	Result
	Energy *tensors.Tensor
}

// ComputeLossesTensors converts in to fields and runs ComputeLosses. Errors
// follow ComputeLosses: on ErrUndefinedReduction the result is still filled.
func (l *Loss) ComputeLossesTensors(in TensorInputs) (TensorResult, error) {
	var fin Inputs
	fields := []struct {
		name string
		t    *tensors.Tensor
		dst  **Field
	}{
		{"logits", in.Logits, &fin.Logits},
		{"appearance", in.Appearance, &fin.Appearance},
		{"depth", in.Depth, &fin.Depth},
		{"source mask", in.SourceMask, &fin.SourceMask},
		{"destination mask", in.DestinationMask, &fin.DestinationMask},
	}
	for _, f := range fields {
		field, err := FieldFromTensor(f.t)
		if err != nil {
			return TensorResult{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = field
	}

	labels, dims, err := labelsFromTensor(in.Labels)
	if err != nil {
		return TensorResult{}, err
	}
	lg := fin.Logits
	if dims != [3]int{lg.Batch, lg.Height, lg.Width} {
		return TensorResult{}, fmt.Errorf("%w: labels are %v, logits are %v", ErrShapeMismatch, dims, lg)
	}
	fin.Labels = labels
	fin.ClassWeights = in.ClassWeights

	res, err := l.ComputeLosses(fin)
	out := TensorResult{Result: res}
	if res.Grid != nil {
		out.Energy = res.Grid.ToGomlxTensor()
	}
	return out, err
}
