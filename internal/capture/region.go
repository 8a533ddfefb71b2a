// Package capture turns a full screenshot into per-field sub-images ready
// for recognition. All functions are pure: identical input yields identical
// output.
package capture

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"heatvision-agent/internal/model"
)

// upscaleFactor trades OCR accuracy for CPU on small console fonts.
const upscaleFactor = 3

// contrastGain mirrors the gain the console's dim theme needs before
// thresholding.
const contrastGain = 3.0

// Prepare crops a field's bounding box out of the screenshot, converts it
// to grayscale and applies the field's preprocessing recipe in order.
func Prepare(img image.Image, def model.FieldDefinition) (*image.Gray, error) {
	g, err := Crop(img, def.Box)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", def.Name, err)
	}
	for _, step := range def.Preprocess {
		switch step {
		case model.PreprocessInvert:
			Invert(g)
		case model.PreprocessContrast:
			Contrast(g, contrastGain)
		case model.PreprocessThreshold:
			g = Threshold(g)
		case model.PreprocessUpscale:
			g = Upscale(g, upscaleFactor)
		default:
			return nil, fmt.Errorf("field %s: unknown preprocess step %q", def.Name, step)
		}
	}
	return g, nil
}

// Crop extracts the box as a grayscale image.
func Crop(img image.Image, box model.Box) (*image.Gray, error) {
	if box.Empty() {
		return nil, fmt.Errorf("empty region %+v", box)
	}
	bounds := img.Bounds()
	r := image.Rect(box.X0, box.Y0, box.X1, box.Y1).Intersect(bounds)
	if r.Empty() {
		return nil, fmt.Errorf("region %+v outside frame %v", box, bounds)
	}

	g := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			g.SetGray(x, y, color.GrayModel.Convert(img.At(r.Min.X+x, r.Min.Y+y)).(color.Gray))
		}
	}
	return g, nil
}

// Invert flips brightness in place. Used when the console prints bright
// text on a dark background.
func Invert(g *image.Gray) {
	for i := range g.Pix {
		g.Pix[i] = 255 - g.Pix[i]
	}
}

// Contrast multiplies pixel intensity by gain in place, clamping at white.
func Contrast(g *image.Gray, gain float64) {
	for i, p := range g.Pix {
		v := float64(p) * gain
		if v > 255 {
			v = 255
		}
		g.Pix[i] = uint8(v)
	}
}

// Threshold binarizes the image with Otsu's method.
func Threshold(g *image.Gray) *image.Gray {
	t := otsuThreshold(g)
	out := image.NewGray(g.Rect)
	for i, p := range g.Pix {
		if p > t {
			out.Pix[i] = 255
		}
	}
	return out
}

// otsuThreshold picks the split that maximizes between-class variance of
// the intensity histogram.
func otsuThreshold(g *image.Gray) uint8 {
	var hist [256]int
	for _, p := range g.Pix {
		hist[p]++
	}
	total := len(g.Pix)
	if total == 0 {
		return 127
	}

	var sum float64
	for i, n := range hist {
		sum += float64(i) * float64(n)
	}

	var (
		sumB, wB  float64
		best      float64
		threshold uint8
	)
	for i, n := range hist {
		wB += float64(n)
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(i) * float64(n)
		mB := sumB / wB
		mF := (sum - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = uint8(i)
		}
	}
	return threshold
}

// Upscale resizes by an integer factor with Catmull-Rom interpolation.
func Upscale(g *image.Gray, factor int) *image.Gray {
	if factor <= 1 {
		return g
	}
	dst := image.NewGray(image.Rect(0, 0, g.Rect.Dx()*factor, g.Rect.Dy()*factor))
	draw.CatmullRom.Scale(dst, dst.Bounds(), g, g.Bounds(), draw.Over, nil)
	return dst
}
