package gcrf

// PositionGrid returns a (batch, 2, height, width) field holding each pixel's
// row index in channel 0 and its column index in channel 1. Every batch
// element is identical; callers that reuse the grid pass batch 1 and let the
// energy broadcast it.
func PositionGrid(batch, height, width int) *Field {
	f := NewField(batch, 2, height, width)
	for b := 0; b < batch; b++ {
		rows := f.Plane(b, 0)
		cols := f.Plane(b, 1)
		for h := 0; h < height; h++ {
			for w := 0; w < width; w++ {
				rows[h*width+w] = float32(h)
				cols[h*width+w] = float32(w)
			}
		}
	}
	return f
}
