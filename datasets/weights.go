package datasets

import "math"

// ClassWeights returns 1/ln(1.02 + freq) per class, freq being the share of
// masked-in pixels carrying that label. Labels outside [0, numClasses) are
// skipped. With no masked-in pixels every frequency is zero.
func ClassWeights(labels []int32, mask []float32, numClasses int) []float64 {
	counts := make([]float64, numClasses)
	var total float64
	for i, id := range labels {
		if i >= len(mask) || mask[i] == 0 || id < 0 || int(id) >= numClasses {
			continue
		}
		counts[id]++
		total++
	}
	weights := make([]float64, numClasses)
	for k := range weights {
		freq := 0.0
		if total > 0 {
			freq = counts[k] / total
		}
		weights[k] = 1 / math.Log(1.02+freq)
	}
	return weights
}
