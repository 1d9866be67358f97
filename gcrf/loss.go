// Package gcrf implements the gated structured-smoothness loss used to train
// semantic segmentation networks on sparsely annotated images.
//
// A Loss pairs a per-pixel classification loss, split and re-blended by a
// destination validity mask, with a dense pairwise energy over a bounded
// neighbourhood that couples class predictions with colour, depth and pixel
// position. Both are returned to the caller, which decides how to combine
// them.
//
// Evaluation always runs on CPU goroutines. Config.Device is an opaque label:
// an accelerator request is validated and logged but selects no backend.
package gcrf

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// Inputs is one batch for ComputeLosses. Fields share batch, height and width.
type Inputs struct {
	// Logits are raw class scores, (B, C, H, W).
	Logits *Field
	// Labels are class ids in [0, C), one per pixel in (B, H, W) order.
	Labels []int32
	// Appearance is per-pixel colour, (B, A, H, W).
	Appearance *Field
	// Depth is (B, 1, H, W).
	Depth *Field
	// ClassWeights optionally scales the classification loss per class; nil
	// or length C.
	ClassWeights []float64
	// SourceMask is (B, 1, H, W). It is checked but does not gate the energy.
	SourceMask *Field
	// DestinationMask is (B, 1, H, W): pixels eligible to receive pairwise
	// energy, conventionally the unannotated ones.
	//
	// Masks are float32 fields; any nonzero value counts as set. Boolean
	// masks go through MaskFromBools.
	DestinationMask *Field
}

// Result carries the two losses of one batch.
type Result struct {
	// Classification is the gated cross entropy.
	Classification float64
	// Smoothness is the mean of Grid.
	Smoothness float64
	// AnnotatedFraction is the destination mask mean used by the blend.
	AnnotatedFraction float64
	// Grid holds the per-offset energies.
	Grid *EnergyGrid
}

// Combined is Classification + weight*Smoothness.
func (r Result) Combined(weight float64) float64 {
	return r.Classification + weight*r.Smoothness
}

// Loss is the gated structured-smoothness loss for a fixed number of
// classes. The compatibility table is built once in New; position grids are
// built on first use per image size and cached. A Loss is safe for
// concurrent use.
type Loss struct {
	cfg Config
	nb  *Neighborhood

	mu        sync.Mutex
	positions map[[2]int]*Field
}

// New builds a Loss. It fails with ErrInvalidConfiguration when
// cfg.NumClasses < 1 or cfg.Span < 1.
//
// With a single class the compatibility table is all zero, so every defined
// offset has zero energy. An offset whose target view holds no destination
// pixel is still 0/0: a span that is large for the image (or a sparse mask)
// makes Smoothness NaN even then.
func New(cfg Config) (*Loss, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	device, err := ParseDevice(string(cfg.Device))
	if err != nil {
		return nil, err
	}
	cfg.Device = device

	compat, err := CompatibilityMatrix(cfg.NumClasses)
	if err != nil {
		return nil, err
	}

	if device == DeviceAccelerator {
		Logf("gcrf: accelerator placement requested; evaluating on %d CPU workers", cfg.Workers)
	}
	Logf("gcrf: %d classes, span %d (%d offsets), kernel appearance=%v position=%v depth=%v",
		cfg.NumClasses, cfg.Span, len(Lattice(cfg.Span)), cfg.Kernel.Appearance, cfg.Kernel.Position, cfg.Kernel.Depth)

	return &Loss{
		cfg: cfg,
		nb: &Neighborhood{
			Span:    cfg.Span,
			Kernel:  cfg.Kernel,
			Compat:  compat,
			Workers: cfg.Workers,
		},
		positions: make(map[[2]int]*Field),
	}, nil
}

// Config returns the resolved configuration.
func (l *Loss) Config() Config {
	return l.cfg
}

// Compatibility returns a copy of the flattened compatibility table.
func (l *Loss) Compatibility() []float64 {
	out := make([]float64, len(l.nb.Compat))
	copy(out, l.nb.Compat)
	return out
}

// PositionGrid returns the cached (1, 2, height, width) position field. The
// returned field is shared and must not be modified.
func (l *Loss) PositionGrid(height, width int) *Field {
	key := [2]int{height, width}
	l.mu.Lock()
	defer l.mu.Unlock()
	if f, ok := l.positions[key]; ok {
		return f
	}
	f := PositionGrid(1, height, width)
	l.positions[key] = f
	return f
}

// ComputeLosses evaluates both losses for one batch.
//
// The logits are turned into probabilities with Softmax and fed, with the
// appearance, depth and masks, to the neighbourhood energy. The per-pixel
// cross entropy is split by the destination mask and blended by
// GatedClassification.
//
// Shape problems fail with ErrShapeMismatch before any computation. When a
// reduction is undefined (an empty classification pool or an offset without
// valid destination pixels) the Result is still returned, with NaN in the
// affected values, together with an error wrapping ErrUndefinedReduction.
func (l *Loss) ComputeLosses(in Inputs) (Result, error) {
	if err := l.check(in); err != nil {
		return Result{}, err
	}
	lg := in.Logits

	grid, err := l.nb.Energy(EnergyInputs{
		Prediction:      Softmax(lg),
		Appearance:      in.Appearance,
		Depth:           in.Depth,
		Position:        l.PositionGrid(lg.Height, lg.Width),
		SourceMask:      in.SourceMask,
		DestinationMask: in.DestinationMask,
	})
	if err != nil {
		return Result{}, err
	}

	losses := CrossEntropy(lg, in.Labels, in.ClassWeights)
	ce, frac := GatedClassification(losses, in.DestinationMask)

	res := Result{
		Classification:    ce,
		Smoothness:        grid.Mean(),
		AnnotatedFraction: frac,
		Grid:              grid,
	}

	var errs []error
	if math.IsNaN(res.Classification) {
		errs = append(errs, fmt.Errorf("%w: classification pool is empty (mask mean %v)", ErrUndefinedReduction, frac))
	}
	if undefined := grid.Undefined(); len(undefined) > 0 {
		errs = append(errs, fmt.Errorf("%w: %d offsets have no valid destination pixel, first %v",
			ErrUndefinedReduction, len(undefined), undefined[0]))
	}
	return res, errors.Join(errs...)
}

func (l *Loss) check(in Inputs) error {
	lg := in.Logits
	if lg == nil {
		return fmt.Errorf("%w: logits are nil", ErrShapeMismatch)
	}
	if err := checkField("logits", lg, lg.Batch, l.cfg.NumClasses, lg.Height, lg.Width); err != nil {
		return err
	}
	B, H, W := lg.Batch, lg.Height, lg.Width
	if err := checkField("appearance", in.Appearance, B, 0, H, W); err != nil {
		return err
	}
	if err := checkField("depth", in.Depth, B, 1, H, W); err != nil {
		return err
	}
	if err := checkField("source mask", in.SourceMask, B, 1, H, W); err != nil {
		return err
	}
	if err := checkField("destination mask", in.DestinationMask, B, 1, H, W); err != nil {
		return err
	}
	if len(in.Labels) != lg.Pixels() {
		return fmt.Errorf("%w: %d labels for %d pixels", ErrShapeMismatch, len(in.Labels), lg.Pixels())
	}
	for i, y := range in.Labels {
		if y < 0 || int(y) >= l.cfg.NumClasses {
			return fmt.Errorf("%w: label %d at pixel %d outside [0, %d)", ErrShapeMismatch, y, i, l.cfg.NumClasses)
		}
	}
	if in.ClassWeights != nil && len(in.ClassWeights) != l.cfg.NumClasses {
		return fmt.Errorf("%w: %d class weights for %d classes", ErrShapeMismatch, len(in.ClassWeights), l.cfg.NumClasses)
	}
	return nil
}
