package render

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// DemoHeight is the height of every panel in the demo strip.
const DemoHeight = 768

// Strip scales every panel to height, keeping its aspect with the width
// rounded down to even, and lays them out left to right.
func Strip(height int, panels ...image.Image) *image.NRGBA {
	resized := make([]*image.NRGBA, 0, len(panels))
	total := 0
	for _, p := range panels {
		if p == nil {
			continue
		}
		w := even(int(float64(height) * Aspect(p)))
		r := imaging.Resize(p, w, height, imaging.Lanczos)
		resized = append(resized, r)
		total += w
	}

	dst := imaging.New(total, height, color.Black)
	x := 0
	for _, r := range resized {
		dst = imaging.Paste(dst, r, image.Pt(x, 0))
		x += r.Bounds().Dx()
	}
	return dst
}

// Fit resizes img to exactly w x h.
func Fit(img image.Image, w, h int) *image.NRGBA {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return imaging.Clone(img)
	}
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

// DemoPanels holds the five panels of one demo frame.
type DemoPanels struct {
	RefImage  image.Image
	RefPose   image.Image
	Aligned   image.Image
	Frame     image.Image
	FramePose image.Image
}

// Demo composes [reference | reference pose | aligned pose | frame | frame pose].
func Demo(p DemoPanels) *image.NRGBA {
	return Strip(DemoHeight, p.RefImage, p.RefPose, p.Aligned, p.Frame, p.FramePose)
}
