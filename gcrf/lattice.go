package gcrf

import "fmt"

// Offset is a neighbour displacement: DX along rows, DY along columns.
type Offset struct {
	DX int
	DY int
}

func (o Offset) String() string {
	return fmt.Sprintf("(%d,%d)", o.DX, o.DY)
}

// Lattice enumerates the offsets with DX and DY in [-span, span], skipping
// every offset where DX == 0 or DY == 0. Only strictly diagonal-type
// neighbours remain: for span 1 that is the four corners. Order is row-major
// over DX then DY.
func Lattice(span int) []Offset {
	if span < 1 {
		return nil
	}
	offsets := make([]Offset, 0, 4*span*span)
	for dx := -span; dx <= span; dx++ {
		if dx == 0 {
			continue
		}
		for dy := -span; dy <= span; dy++ {
			if dy == 0 {
				continue
			}
			offsets = append(offsets, Offset{DX: dx, DY: dy})
		}
	}
	return offsets
}

// alignStart returns where the source and target views begin along one axis
// for the offset component dz.
func alignStart(dz int) (src, dst int) {
	switch {
	case dz > 0:
		return dz, 0
	case dz < 0:
		return 0, -dz
	}
	return 0, 0
}

// alignEnd is the exclusive end bound of a view, counted back from the end of
// the axis. ok is false when there is no bound (dz == 0).
func alignEnd(dz int) (end int, ok bool) {
	if dz == 0 {
		return 0, false
	}
	return -dz, true
}

// axisViews aligns the source and target views of an axis of length size for
// the offset component dz. Both views have n elements; n <= 0 means the
// offset leaves no overlap.
func axisViews(dz, size int) (src, dst, n int) {
	src, dst = alignStart(dz)
	hi := size
	if end, ok := alignEnd(dst); ok {
		hi = size + end
	}
	return src, dst, hi - src
}
