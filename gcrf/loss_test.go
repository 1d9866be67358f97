package gcrf

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newLoss(t *testing.T, cfg Config) *Loss {
	t.Helper()
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New(%+v) error: %v", cfg, err)
	}
	return l
}

// batchInputs builds inputs of the given shape with zero logits, label 0
// everywhere, random appearance/depth and the provided destination mask.
func batchInputs(rng *rand.Rand, classes int, dst *Field) Inputs {
	B, H, W := dst.Batch, dst.Height, dst.Width
	src := NewField(B, 1, H, W)
	for i, v := range dst.Data {
		src.Data[i] = 1 - v
	}
	return Inputs{
		Logits:          NewField(B, classes, H, W),
		Labels:          make([]int32, B*H*W),
		Appearance:      randomField(rng, B, 3, H, W, 0, 1),
		Depth:           randomField(rng, B, 1, H, W, 0, 1),
		SourceMask:      src,
		DestinationMask: dst,
	}
}

func centerMask4x4() *Field {
	return gridField([][]float32{
		{0, 0, 0, 0},
		{0, 1, 1, 0},
		{0, 1, 1, 0},
		{0, 0, 0, 0},
	})
}

func TestNewInvalidConfiguration(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero classes", Config{NumClasses: 0}},
		{"negative classes", Config{NumClasses: -2}},
		{"zero span", Config{NumClasses: 2, Span: 0}},
		{"negative span", Config{NumClasses: 2, Span: -1}},
		{"negative bandwidth", Config{NumClasses: 2, Span: 1, Kernel: Kernel{Depth: -0.2}}},
		{"unknown device", Config{NumClasses: 2, Span: 1, Device: "tpu"}},
		{"negative workers", Config{NumClasses: 2, Span: 1, Workers: -1}},
	}
	for _, c := range cases {
		if _, err := New(c.cfg); !errors.Is(err, ErrInvalidConfiguration) {
			t.Errorf("%s: expected ErrInvalidConfiguration, got %v", c.name, err)
		}
	}
}

func TestNewDefaults(t *testing.T) {
	l := newLoss(t, Config{NumClasses: 3, Span: 4, Device: "CUDA"})
	cfg := l.Config()
	if cfg.Span != 4 {
		t.Errorf("span = %d, want 4", cfg.Span)
	}
	if cfg.Kernel != DefaultKernel {
		t.Errorf("kernel = %+v, want %+v", cfg.Kernel, DefaultKernel)
	}
	if cfg.Device != DeviceAccelerator {
		t.Errorf("device = %q, want %q", cfg.Device, DeviceAccelerator)
	}
	if cfg.Workers < 1 {
		t.Errorf("workers = %d, want >= 1", cfg.Workers)
	}
}

// TestGatedClassificationBlend: pool A (mask set) has loss ln2, pool B has
// ln4 and a quarter of the pixels are in pool A, so the blend is
// ln2*(1-0.25) + ln4*0.25 = 1.25*ln2.
func TestGatedClassificationBlend(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	l := newLoss(t, Config{NumClasses: 2, Span: 1})
	dst := centerMask4x4()
	in := batchInputs(rng, 2, dst)
	ln3 := float32(math.Log(3))
	for h := 0; h < 4; h++ {
		for w := 0; w < 4; w++ {
			if dst.At(0, 0, h, w) == 0 {
				in.Logits.Set(0, 1, h, w, ln3)
			}
		}
	}

	res, err := l.ComputeLosses(in)
	if err != nil {
		t.Fatalf("ComputeLosses error: %v", err)
	}
	if !approxEqual(res.AnnotatedFraction, 0.25, 1e-12) {
		t.Fatalf("annotated fraction = %v, want 0.25", res.AnnotatedFraction)
	}
	if want := 1.25 * math.Ln2; !approxEqual(res.Classification, want, 1e-6) {
		t.Fatalf("classification = %.9f, want %.9f", res.Classification, want)
	}
	plainMean := (4*math.Ln2 + 12*2*math.Ln2) / 16
	if approxEqual(res.Classification, plainMean, 1e-3) {
		t.Fatalf("classification %.6f equals the plain mean; blend not applied", res.Classification)
	}

	in.ClassWeights = []float64{2, 1}
	weighted, err := l.ComputeLosses(in)
	if err != nil {
		t.Fatalf("ComputeLosses (weighted) error: %v", err)
	}
	if want := 2.5 * math.Ln2; !approxEqual(weighted.Classification, want, 1e-6) {
		t.Fatalf("weighted classification = %.9f, want %.9f", weighted.Classification, want)
	}
}

func TestGatedClassificationHalfMaskUniformLoss(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	l := newLoss(t, Config{NumClasses: 2, Span: 1})
	dst := gridField([][]float32{
		{1, 1, 1, 1},
		{1, 1, 1, 1},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	})
	res, err := l.ComputeLosses(batchInputs(rng, 2, dst))
	if err != nil {
		t.Fatalf("ComputeLosses error: %v", err)
	}
	if !approxEqual(res.Classification, math.Ln2, 1e-9) {
		t.Fatalf("classification = %v, want ln2 = %v", res.Classification, math.Ln2)
	}
}

func TestSingleClassSmoothnessIsZero(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	l := newLoss(t, Config{NumClasses: 1, Span: 2})
	dst := randomMask(rng, 2, 7, 6)
	dst.Data[0], dst.Data[1] = 0, 1
	in := batchInputs(rng, 1, dst)
	in.Logits = randomField(rng, 2, 1, 7, 6, -5, 5)

	res, err := l.ComputeLosses(in)
	if err != nil {
		t.Fatalf("ComputeLosses error: %v", err)
	}
	if res.Smoothness != 0 {
		t.Fatalf("smoothness = %v, want exactly 0", res.Smoothness)
	}
	if diff := cmp.Diff([]float64{0}, l.Compatibility()); diff != "" {
		t.Fatalf("compatibility mismatch (-want +got):\n%s", diff)
	}
}

func TestConfidentUniformPredictionHasZeroSmoothness(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	l := newLoss(t, Config{NumClasses: 3, Span: 2})
	in := batchInputs(rng, 3, centerMask4x4())
	for h := 0; h < 4; h++ {
		for w := 0; w < 4; w++ {
			in.Logits.Set(0, 2, h, w, 1000)
		}
	}
	// every span-2 target view of the 4x4 image meets the centre block, so
	// all offsets are defined
	res, err := l.ComputeLosses(in)
	if err != nil {
		t.Fatalf("ComputeLosses error: %v", err)
	}
	if res.Smoothness != 0 {
		t.Fatalf("smoothness = %v, want exactly 0", res.Smoothness)
	}
	for _, off := range Lattice(2) {
		if v := res.Grid.At(0, off.DX, off.DY); v != 0 {
			t.Errorf("offset %v = %v, want 0", off, v)
		}
	}
}

func TestSingleClassLargeSpanIsUndefined(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	l := newLoss(t, Config{NumClasses: 1, Span: DefaultSpan})
	in := batchInputs(rng, 1, constField(1, 1, 8, 8, 1))

	res, err := l.ComputeLosses(in)
	if !errors.Is(err, ErrUndefinedReduction) {
		t.Fatalf("expected ErrUndefinedReduction, got %v", err)
	}
	if !math.IsNaN(res.Smoothness) {
		t.Fatalf("smoothness = %v, want NaN", res.Smoothness)
	}
	// offsets that still overlap the image carry zero energy
	if v := res.Grid.At(0, 1, 1); v != 0 {
		t.Fatalf("offset (1,1) = %v, want 0", v)
	}
}

func TestComputeLossesAllZeroMaskIsUndefined(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	l := newLoss(t, Config{NumClasses: 2, Span: 1})
	res, err := l.ComputeLosses(batchInputs(rng, 2, constField(1, 1, 4, 4, 0)))
	if !errors.Is(err, ErrUndefinedReduction) {
		t.Fatalf("expected ErrUndefinedReduction, got %v", err)
	}
	if !math.IsNaN(res.Classification) {
		t.Errorf("classification = %v, want NaN", res.Classification)
	}
	if !math.IsNaN(res.Smoothness) {
		t.Errorf("smoothness = %v, want NaN", res.Smoothness)
	}
	if got := len(res.Grid.Undefined()); got != 4 {
		t.Errorf("undefined offsets = %d, want 4", got)
	}
}

func TestComputeLossesAllOnesMaskEmptiesPoolB(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	l := newLoss(t, Config{NumClasses: 2, Span: 1})
	res, err := l.ComputeLosses(batchInputs(rng, 2, constField(1, 1, 4, 4, 1)))
	if !errors.Is(err, ErrUndefinedReduction) {
		t.Fatalf("expected ErrUndefinedReduction, got %v", err)
	}
	if !math.IsNaN(res.Classification) {
		t.Errorf("classification = %v, want NaN", res.Classification)
	}
	if math.IsNaN(res.Smoothness) {
		t.Errorf("smoothness should be defined with a full destination mask")
	}
}

func TestComputeLossesDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	l := newLoss(t, Config{NumClasses: 3, Span: 3})
	in := batchInputs(rng, 3, randomMask(rng, 2, 10, 9))
	in.Logits = randomField(rng, 2, 3, 10, 9, -4, 4)
	for i := range in.Labels {
		in.Labels[i] = int32(rng.Intn(3))
	}
	compatBefore := l.Compatibility()

	first, err := l.ComputeLosses(in)
	if err != nil {
		t.Fatalf("first ComputeLosses error: %v", err)
	}
	second, err := l.ComputeLosses(in)
	if err != nil {
		t.Fatalf("second ComputeLosses error: %v", err)
	}
	if first.Classification != second.Classification || first.Smoothness != second.Smoothness {
		t.Fatalf("results differ: %+v vs %+v", first, second)
	}
	if diff := cmp.Diff(first.Grid.Values, second.Grid.Values); diff != "" {
		t.Fatalf("grids differ (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(compatBefore, l.Compatibility()); diff != "" {
		t.Fatalf("compatibility changed (-before +after):\n%s", diff)
	}
	if l.PositionGrid(10, 9) != l.PositionGrid(10, 9) {
		t.Fatalf("position grid was not cached")
	}
}

func TestComputeLossesShapeMismatch(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	l := newLoss(t, Config{NumClasses: 2, Span: 1})

	cases := []struct {
		name   string
		mutate func(*Inputs)
	}{
		{"logit classes", func(in *Inputs) { in.Logits = NewField(1, 3, 4, 4) }},
		{"appearance width", func(in *Inputs) { in.Appearance = NewField(1, 3, 4, 5) }},
		{"depth batch", func(in *Inputs) { in.Depth = NewField(2, 1, 4, 4) }},
		{"destination channels", func(in *Inputs) { in.DestinationMask = NewField(1, 2, 4, 4) }},
		{"missing source mask", func(in *Inputs) { in.SourceMask = nil }},
		{"labels length", func(in *Inputs) { in.Labels = in.Labels[:15] }},
		{"label range", func(in *Inputs) { in.Labels[3] = 2 }},
		{"negative label", func(in *Inputs) { in.Labels[0] = -1 }},
		{"class weights", func(in *Inputs) { in.ClassWeights = []float64{1, 1, 1} }},
	}
	for _, c := range cases {
		in := batchInputs(rng, 2, centerMask4x4())
		c.mutate(&in)
		if _, err := l.ComputeLosses(in); !errors.Is(err, ErrShapeMismatch) {
			t.Errorf("%s: expected ErrShapeMismatch, got %v", c.name, err)
		}
	}
}

func TestResultCombined(t *testing.T) {
	r := Result{Classification: 1.5, Smoothness: 0.25}
	if got := r.Combined(2); got != 2 {
		t.Fatalf("Combined(2) = %v, want 2", got)
	}
}

func TestSoftmaxSumsToOne(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	p := Softmax(randomField(rng, 2, 4, 3, 3, -20, 20))
	for b := 0; b < 2; b++ {
		for h := 0; h < 3; h++ {
			for w := 0; w < 3; w++ {
				var sum float64
				for c := 0; c < 4; c++ {
					sum += float64(p.At(b, c, h, w))
				}
				if !approxEqual(sum, 1, 1e-6) {
					t.Fatalf("probabilities at (%d,%d,%d) sum to %v", b, h, w, sum)
				}
			}
		}
	}
}
