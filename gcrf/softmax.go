package gcrf

import "math"

// Softmax normalizes logits along the class axis so each pixel's values sum
// to one. It is numerically stable for large logits.
func Softmax(logits *Field) *Field {
	out := NewField(logits.Batch, logits.Channels, logits.Height, logits.Width)
	plane := logits.Height * logits.Width
	C := logits.Channels
	for b := 0; b < logits.Batch; b++ {
		base := b * C * plane
		for px := 0; px < plane; px++ {
			maxZ := math.Inf(-1)
			for c := 0; c < C; c++ {
				maxZ = math.Max(maxZ, float64(logits.Data[base+c*plane+px]))
			}
			var sum float64
			for c := 0; c < C; c++ {
				sum += math.Exp(float64(logits.Data[base+c*plane+px]) - maxZ)
			}
			for c := 0; c < C; c++ {
				out.Data[base+c*plane+px] = float32(math.Exp(float64(logits.Data[base+c*plane+px])-maxZ) / sum)
			}
		}
	}
	return out
}

// CrossEntropy returns the unreduced per-pixel loss
// weights[y] * (logsumexp(z) - z[y]) in (batch, height, width) order. A nil
// weights slice weighs every class by one. Labels must already be validated.
func CrossEntropy(logits *Field, labels []int32, weights []float64) []float64 {
	plane := logits.Height * logits.Width
	C := logits.Channels
	losses := make([]float64, logits.Batch*plane)
	for b := 0; b < logits.Batch; b++ {
		base := b * C * plane
		for px := 0; px < plane; px++ {
			maxZ := math.Inf(-1)
			for c := 0; c < C; c++ {
				maxZ = math.Max(maxZ, float64(logits.Data[base+c*plane+px]))
			}
			var sum float64
			for c := 0; c < C; c++ {
				sum += math.Exp(float64(logits.Data[base+c*plane+px]) - maxZ)
			}
			y := int(labels[b*plane+px])
			nll := maxZ + math.Log(sum) - float64(logits.Data[base+y*plane+px])
			if weights != nil {
				nll *= weights[y]
			}
			losses[b*plane+px] = nll
		}
	}
	return losses
}

// GatedClassification blends per-pixel losses by the destination mask.
// Pixels where the mask is set form pool A, the rest pool B; with frac the
// mask mean, the result is meanA*(1-frac) + meanB*frac, so the rarer pool is
// weighted up. An empty pool makes the result NaN.
func GatedClassification(losses []float64, mask *Field) (loss, frac float64) {
	var sumA, sumB, nA, nB, maskSum float64
	for i, v := range losses {
		m := mask.Data[i]
		maskSum += float64(m)
		if m != 0 {
			sumA += v
			nA++
		} else {
			sumB += v
			nB++
		}
	}
	frac = maskSum / float64(len(losses))
	meanA := sumA / nA
	meanB := sumB / nB
	return meanA*(1-frac) + meanB*frac, frac
}
