package report

import (
	"errors"
	"math"
	"path/filepath"

	"github.com/Noofbiz/gatedcrf/gcrf"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// ErrNothingToPlot is returned when every value of a plot is undefined.
var ErrNothingToPlot = errors.New("report: no finite values to plot")

// energySlice adapts one batch slot of an EnergyGrid to plotter.GridXYZ.
// Columns run over DY, rows over DX. Undefined offsets are drawn as zero.
type energySlice struct {
	grid  *gcrf.EnergyGrid
	batch int
}

func (e energySlice) Dims() (c, r int) {
	n := e.grid.Size()
	return n, n
}

func (e energySlice) Z(c, r int) float64 {
	v := e.grid.At(e.batch, r-e.grid.Span, c-e.grid.Span)
	if math.IsNaN(v) {
		return 0
	}
	return v
}

func (e energySlice) X(c int) float64 { return float64(c - e.grid.Span) }
func (e energySlice) Y(r int) float64 { return float64(r - e.grid.Span) }

// EnergyHeatmap renders the per-offset energies of batch slot 0 to path. The
// image format follows the file extension.
func EnergyHeatmap(grid *gcrf.EnergyGrid, path string) error {
	if grid == nil || grid.Batch == 0 {
		return ErrNothingToPlot
	}
	p := plot.New()
	p.Title.Text = "Pairwise energy per offset"
	p.X.Label.Text = "dy"
	p.Y.Label.Text = "dx"

	hm := plotter.NewHeatMap(energySlice{grid: grid}, palette.Heat(64, 1))
	if hm.Min == hm.Max {
		hm.Max = hm.Min + 1
	}
	p.Add(hm)

	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return p.Save(6*vg.Inch, 6*vg.Inch, path)
}

// LossCurve plots classification, smoothness and their combination (with
// smoothWeight) against the batch number. Undefined values are skipped.
func LossCurve(records []Record, smoothWeight float64, path string) error {
	var cls, smooth, combined plotter.XYs
	for _, r := range records {
		x := float64(r.Batch)
		if !math.IsNaN(r.Classification) {
			cls = append(cls, plotter.XY{X: x, Y: r.Classification})
		}
		if !math.IsNaN(r.Smoothness) {
			smooth = append(smooth, plotter.XY{X: x, Y: r.Smoothness})
		}
		if c := r.Classification + smoothWeight*r.Smoothness; !math.IsNaN(c) {
			combined = append(combined, plotter.XY{X: x, Y: c})
		}
	}
	if len(cls)+len(smooth) == 0 {
		return ErrNothingToPlot
	}

	p := plot.New()
	p.Title.Text = "Gated CRF losses"
	p.X.Label.Text = "batch"
	p.Y.Label.Text = "loss"
	p.Add(plotter.NewGrid())

	var lines []any
	for _, l := range []struct {
		name string
		xys  plotter.XYs
	}{
		{"classification", cls},
		{"smoothness", smooth},
		{"combined", combined},
	} {
		if len(l.xys) > 0 {
			lines = append(lines, l.name, l.xys)
		}
	}
	if err := plotutil.AddLines(p, lines...); err != nil {
		return err
	}

	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 6*vg.Inch, path)
}
