package gcrf

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// Kernel holds the bandwidths of the Gaussian affinity. Differences are
// divided by the bandwidth before squaring, so +Inf removes a term.
type Kernel struct {
	Appearance float64 `json:"appearance"`
	Position   float64 `json:"position"`
	Depth      float64 `json:"depth"`
}

// DefaultKernel is the bandwidth set used when a Config leaves them zero.
var DefaultKernel = Kernel{Appearance: 0.1, Position: 6, Depth: 0.2}

// EnergyInputs are the fields one energy evaluation reads. All share batch,
// height and width, except Position which may have batch 1 and is then
// broadcast.
type EnergyInputs struct {
	// Prediction holds per-pixel class probabilities, (B, C, H, W).
	Prediction *Field
	// Appearance holds per-pixel colour, (B, A, H, W), usually A == 3.
	Appearance *Field
	// Depth is (B, 1, H, W).
	Depth *Field
	// Position is (B or 1, 2, H, W), see PositionGrid.
	Position *Field
	// SourceMask is (B, 1, H, W). It is validated but does not gate the energy.
	SourceMask *Field
	// DestinationMask is (B, 1, H, W); pairs whose target pixel is 0 contribute nothing.
	DestinationMask *Field
}

// EnergyGrid accumulates one normalized energy per lattice offset. Values is
// laid out (batch, 2*Span+1, 2*Span+1); cells of excluded offsets stay zero.
type EnergyGrid struct {
	Span   int
	Batch  int
	Values []float64
}

// NewEnergyGrid allocates a zeroed grid.
func NewEnergyGrid(batch, span int) *EnergyGrid {
	n := 2*span + 1
	return &EnergyGrid{Span: span, Batch: batch, Values: make([]float64, batch*n*n)}
}

// Size is the side length of the grid, 2*Span+1.
func (g *EnergyGrid) Size() int {
	return 2*g.Span + 1
}

// At returns the value for batch slot b and offset (dx, dy), dx and dy in
// [-Span, Span].
func (g *EnergyGrid) At(b, dx, dy int) float64 {
	n := g.Size()
	return g.Values[(b*n+dx+g.Span)*n+dy+g.Span]
}

// set writes v into every batch slot of the (dx, dy) cell.
func (g *EnergyGrid) set(dx, dy int, v float64) {
	n := g.Size()
	for b := 0; b < g.Batch; b++ {
		g.Values[(b*n+dx+g.Span)*n+dy+g.Span] = v
	}
}

// Mean averages the whole grid, zero cells included. Any undefined offset
// makes the mean NaN.
func (g *EnergyGrid) Mean() float64 {
	return floats.Sum(g.Values) / float64(len(g.Values))
}

// Undefined lists the lattice offsets whose energy is NaN.
func (g *EnergyGrid) Undefined() []Offset {
	var out []Offset
	if g.Batch == 0 {
		return out
	}
	for _, off := range Lattice(g.Span) {
		if math.IsNaN(g.At(0, off.DX, off.DY)) {
			out = append(out, off)
		}
	}
	return out
}

// Neighborhood evaluates the structured-smoothness energy over a lattice of
// offsets. It is safe for concurrent use once built; Compat must not be
// modified afterwards.
type Neighborhood struct {
	Span    int
	Kernel  Kernel
	Compat  []float64
	Workers int
}

// Energy computes the energy grid for one batch.
//
// For each offset the source and target views are aligned, each pixel pair
// gets an affinity exp(-0.5*(|da/σa|²+|dp/σp|²)) + exp(-0.5*|dd/σd|²) gated by
// the destination mask at the target pixel, and a disagreement score
// Σ_ij p_src[i]·p_tgt[j]·Compat[i,j]. The gated product is summed over the
// region and the batch and divided by the destination mask sum of the same
// region, giving one pooled value per offset that is written to every batch
// slot. An offset with a zero mask sum yields NaN.
//
// The result is a plain number computed from input values; nothing flows back
// into the prediction, appearance or depth fields.
func (nb *Neighborhood) Energy(in EnergyInputs) (*EnergyGrid, error) {
	if err := nb.check(in); err != nil {
		return nil, err
	}
	offsets := Lattice(nb.Span)
	grid := NewEnergyGrid(in.Prediction.Batch, nb.Span)
	values := make([]float64, len(offsets))

	workers := nb.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(offsets) {
		workers = len(offsets)
	}

	jobs := make(chan int, len(offsets))
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			// joint is the only per-offset scratch; it is reused across offsets.
			joint := make([]float64, len(nb.Compat))
			for i := range jobs {
				values[i] = nb.offsetEnergy(in, offsets[i], joint)
			}
		}()
	}
	for i := range offsets {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for i, off := range offsets {
		grid.set(off.DX, off.DY, values[i])
	}
	return grid, nil
}

func (nb *Neighborhood) check(in EnergyInputs) error {
	if nb.Span < 1 {
		return fmt.Errorf("%w: span must be >= 1, got %d", ErrInvalidConfiguration, nb.Span)
	}
	p := in.Prediction
	if p == nil {
		return fmt.Errorf("%w: prediction is nil", ErrShapeMismatch)
	}
	if p.Channels*p.Channels != len(nb.Compat) {
		return fmt.Errorf("%w: prediction has %d classes, compatibility table has %d entries",
			ErrShapeMismatch, p.Channels, len(nb.Compat))
	}
	B, H, W := p.Batch, p.Height, p.Width
	if err := checkField("prediction", p, B, 0, H, W); err != nil {
		return err
	}
	if err := checkField("appearance", in.Appearance, B, 0, H, W); err != nil {
		return err
	}
	if err := checkField("depth", in.Depth, B, 1, H, W); err != nil {
		return err
	}
	posBatch := B
	if in.Position != nil && in.Position.Batch == 1 {
		posBatch = 1
	}
	if err := checkField("position", in.Position, posBatch, 2, H, W); err != nil {
		return err
	}
	if err := checkField("source mask", in.SourceMask, B, 1, H, W); err != nil {
		return err
	}
	return checkField("destination mask", in.DestinationMask, B, 1, H, W)
}

// offsetEnergy returns the normalized energy of a single offset. Pixels are
// visited in a fixed order so the sum does not depend on scheduling.
func (nb *Neighborhood) offsetEnergy(in EnergyInputs, off Offset, joint []float64) float64 {
	pred, app, depth, pos, dst := in.Prediction, in.Appearance, in.Depth, in.Position, in.DestinationMask
	B, C, H, W := pred.Batch, pred.Channels, pred.Height, pred.Width
	plane := H * W

	srcRow, dstRow, rows := axisViews(off.DX, H)
	srcCol, dstCol, cols := axisViews(off.DY, W)

	var potential, mass float64
	if rows <= 0 || cols <= 0 {
		return potential / mass
	}

	k := nb.Kernel
	for b := 0; b < B; b++ {
		pb := b
		if pos.Batch == 1 {
			pb = 0
		}
		mask := dst.Plane(b, 0)
		for i := 0; i < rows; i++ {
			sr, tr := srcRow+i, dstRow+i
			for j := 0; j < cols; j++ {
				s := sr*W + srcCol + j
				t := tr*W + dstCol + j

				m := float64(mask[t])
				mass += m
				if m == 0 {
					continue
				}

				// class disagreement: outer product of the two probability
				// vectors dotted with the compatibility table
				pbase := b * C * plane
				for ci := 0; ci < C; ci++ {
					ps := float64(pred.Data[pbase+ci*plane+s])
					for cj := 0; cj < C; cj++ {
						joint[ci*C+cj] = ps * float64(pred.Data[pbase+cj*plane+t])
					}
				}
				r := floats.Dot(joint, nb.Compat)

				var dApp float64
				abase := b * app.Channels * plane
				for c := 0; c < app.Channels; c++ {
					d := (float64(app.Data[abase+c*plane+t]) - float64(app.Data[abase+c*plane+s])) / k.Appearance
					dApp += d * d
				}
				var dPos float64
				qbase := pb * 2 * plane
				for c := 0; c < 2; c++ {
					d := (float64(pos.Data[qbase+c*plane+t]) - float64(pos.Data[qbase+c*plane+s])) / k.Position
					dPos += d * d
				}
				dbase := b * plane
				dd := (float64(depth.Data[dbase+t]) - float64(depth.Data[dbase+s])) / k.Depth

				affinity := math.Exp(-0.5*(dApp+dPos)) + math.Exp(-0.5*dd*dd)
				potential += m * affinity * r
			}
		}
	}
	return potential / mass
}
