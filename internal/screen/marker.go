package screen

import (
	"image"

	"golang.org/x/image/draw"

	"heatvision-agent/internal/capture"
	"heatvision-agent/internal/model"
)

// lumaTolerance bounds how far the marker region's average brightness may
// drift from the recorded signature before the match is rejected. The hash
// alone cannot tell two flat regions of different color apart.
const lumaTolerance = 24

// Fingerprint is a cheap pixel signature of a marker region: an 8x8
// average-hash plus the region's mean luma. Comparing fingerprints costs a
// popcount, never OCR.
type Fingerprint struct {
	Hash     uint64
	MeanLuma uint8
}

// FingerprintRegion computes the fingerprint of the marker box inside a
// full screenshot.
func FingerprintRegion(img image.Image, box model.Box) (Fingerprint, error) {
	g, err := capture.Crop(img, box)
	if err != nil {
		return Fingerprint{}, err
	}

	small := image.NewGray(image.Rect(0, 0, 8, 8))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), g, g.Bounds(), draw.Over, nil)

	var sum int
	for _, p := range small.Pix {
		sum += int(p)
	}
	mean := sum / len(small.Pix)

	var hash uint64
	for i, p := range small.Pix {
		if int(p) > mean {
			hash |= 1 << uint(i)
		}
	}
	return Fingerprint{Hash: hash, MeanLuma: uint8(mean)}, nil
}

// Distance is the Hamming distance between the two hashes.
func (f Fingerprint) Distance(o Fingerprint) int {
	x := f.Hash ^ o.Hash
	n := 0
	for x != 0 {
		x &= x - 1
		n++
	}
	return n
}

// Matches reports whether the fingerprint is within tolerance of the
// recorded marker signature.
func (f Fingerprint) Matches(spec model.MarkerSpec) bool {
	expected := Fingerprint{Hash: spec.Hash, MeanLuma: spec.MeanLuma}
	if f.Distance(expected) > spec.Tolerance {
		return false
	}
	d := int(f.MeanLuma) - int(spec.MeanLuma)
	if d < 0 {
		d = -d
	}
	return d <= lumaTolerance
}
