package gcrf

import "fmt"

// Field is a dense (batch, channels, height, width) float32 buffer stored
// row-major, the same NCHW layout the segmentation network produces.
type Field struct {
	Data     []float32
	Batch    int
	Channels int
	Height   int
	Width    int
}

// NewField allocates a zeroed field.
func NewField(batch, channels, height, width int) *Field {
	return &Field{
		Data:     make([]float32, batch*channels*height*width),
		Batch:    batch,
		Channels: channels,
		Height:   height,
		Width:    width,
	}
}

// FieldFromFlat wraps data without copying. len(data) must match the shape.
func FieldFromFlat(data []float32, batch, channels, height, width int) (*Field, error) {
	if batch < 0 || channels < 0 || height < 0 || width < 0 {
		return nil, fmt.Errorf("%w: negative dimension in (%d, %d, %d, %d)", ErrShapeMismatch, batch, channels, height, width)
	}
	if want := batch * channels * height * width; len(data) != want {
		return nil, fmt.Errorf("%w: %d values for shape (%d, %d, %d, %d), want %d",
			ErrShapeMismatch, len(data), batch, channels, height, width, want)
	}
	return &Field{Data: data, Batch: batch, Channels: channels, Height: height, Width: width}, nil
}

// Index returns the offset of (b, c, h, w) in Data.
func (f *Field) Index(b, c, h, w int) int {
	return ((b*f.Channels+c)*f.Height+h)*f.Width + w
}

func (f *Field) At(b, c, h, w int) float32 {
	return f.Data[f.Index(b, c, h, w)]
}

func (f *Field) Set(b, c, h, w int, v float32) {
	f.Data[f.Index(b, c, h, w)] = v
}

// Plane returns the height*width slice of channel c in batch element b.
// It aliases Data.
func (f *Field) Plane(b, c int) []float32 {
	n := f.Height * f.Width
	start := (b*f.Channels + c) * n
	return f.Data[start : start+n]
}

// Pixels is batch*height*width, the number of per-pixel entries of a
// single-channel field with this field's extent.
func (f *Field) Pixels() int {
	return f.Batch * f.Height * f.Width
}

// Shape returns the dimensions in NCHW order.
func (f *Field) Shape() [4]int {
	return [4]int{f.Batch, f.Channels, f.Height, f.Width}
}

// MaskFromBools builds a (batch, 1, height, width) mask with 1 where mask is
// true. len(mask) must be batch*height*width.
func MaskFromBools(mask []bool, batch, height, width int) (*Field, error) {
	if len(mask) != batch*height*width {
		return nil, fmt.Errorf("%w: %d mask values for %d pixels", ErrShapeMismatch, len(mask), batch*height*width)
	}
	f := NewField(batch, 1, height, width)
	for i, set := range mask {
		if set {
			f.Data[i] = 1
		}
	}
	return f, nil
}

// Mean is the arithmetic mean of all values.
func (f *Field) Mean() float64 {
	var sum float64
	for _, v := range f.Data {
		sum += float64(v)
	}
	return sum / float64(len(f.Data))
}

func (f *Field) String() string {
	return fmt.Sprintf("Field(%d, %d, %d, %d)", f.Batch, f.Channels, f.Height, f.Width)
}

// checkField verifies that f is present, spans the given batch and spatial
// extent and, when channels > 0, has exactly that many channels.
func checkField(name string, f *Field, batch, channels, height, width int) error {
	if f == nil {
		return fmt.Errorf("%w: %s is nil", ErrShapeMismatch, name)
	}
	if f.Batch != batch || f.Height != height || f.Width != width {
		return fmt.Errorf("%w: %s is %v, want batch %d and %dx%d pixels", ErrShapeMismatch, name, f, batch, height, width)
	}
	if channels > 0 && f.Channels != channels {
		return fmt.Errorf("%w: %s has %d channels, want %d", ErrShapeMismatch, name, f.Channels, channels)
	}
	if f.Channels < 1 {
		return fmt.Errorf("%w: %s has no channels", ErrShapeMismatch, name)
	}
	if len(f.Data) != f.Batch*f.Channels*f.Height*f.Width {
		return fmt.Errorf("%w: %s %v holds %d values", ErrShapeMismatch, name, f, len(f.Data))
	}
	return nil
}
