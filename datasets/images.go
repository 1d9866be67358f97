package datasets

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"github.com/Noofbiz/gatedcrf/gcrf"
	"github.com/lucasb-eyer/go-colorful"
)

// ColorSpace selects how decoded colours become appearance channels.
type ColorSpace int

const (
	// ColorRGB yields sRGB channels in [0,1].
	ColorRGB ColorSpace = iota
	// ColorLab yields CIE-L*a*b* channels (L in [0,1], a and b roughly [-1,1]).
	ColorLab
)

func (s ColorSpace) String() string {
	switch s {
	case ColorLab:
		return "lab"
	default:
		return "rgb"
	}
}

// ParseColorSpace accepts "rgb" and "lab".
func ParseColorSpace(s string) (ColorSpace, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rgb":
		return ColorRGB, nil
	case "lab":
		return ColorLab, nil
	}
	return ColorRGB, fmt.Errorf("unknown colour space %q", s)
}

func decodeImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

// appearanceField converts img to a (1, 3, H, W) field in the requested
// colour space, then applies (v - mean) / std per channel.
func appearanceField(img image.Image, space ColorSpace, mean, std [3]float64) *gcrf.Field {
	bounds := img.Bounds()
	H, W := bounds.Dy(), bounds.Dx()
	f := gcrf.NewField(1, 3, H, W)
	for y := 0; y < H; y++ {
		for x := 0; x < W; x++ {
			// fully transparent pixels come back as black
			col, _ := colorful.MakeColor(img.At(bounds.Min.X+x, bounds.Min.Y+y))
			var ch [3]float64
			switch space {
			case ColorLab:
				ch[0], ch[1], ch[2] = col.Lab()
			default:
				ch[0], ch[1], ch[2] = col.R, col.G, col.B
			}
			for c := 0; c < 3; c++ {
				f.Set(0, c, y, x, float32((ch[c]-mean[c])/std[c]))
			}
		}
	}
	return f
}

// depthField reads img as 16-bit grayscale and scales it to [0,1].
func depthField(img image.Image) *gcrf.Field {
	bounds := img.Bounds()
	H, W := bounds.Dy(), bounds.Dx()
	f := gcrf.NewField(1, 1, H, W)
	for y := 0; y < H; y++ {
		for x := 0; x < W; x++ {
			g := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
			f.Set(0, 0, y, x, float32(g.Y)/65535)
		}
	}
	return f
}

// classIDs reads a label map. Paletted images yield their palette indices,
// everything else its 8-bit gray level.
func classIDs(img image.Image) []int32 {
	bounds := img.Bounds()
	H, W := bounds.Dy(), bounds.Dx()
	ids := make([]int32, H*W)
	if p, ok := img.(*image.Paletted); ok {
		for y := 0; y < H; y++ {
			for x := 0; x < W; x++ {
				ids[y*W+x] = int32(p.ColorIndexAt(bounds.Min.X+x, bounds.Min.Y+y))
			}
		}
		return ids
	}
	for y := 0; y < H; y++ {
		for x := 0; x < W; x++ {
			g := color.GrayModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray)
			ids[y*W+x] = int32(g.Y)
		}
	}
	return ids
}
