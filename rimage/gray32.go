package rimage

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// Gray32 is a single precision grayscale image with intensities on the 0-255 scale. It is the
// working representation of templates and frames during alignment.
type Gray32 struct {
	Width, Height int
	Pix           []float32
}

// NewGray32 returns a zeroed w x h image.
func NewGray32(w, h int) *Gray32 {
	return &Gray32{Width: w, Height: h, Pix: make([]float32, w*h)}
}

// Get returns the intensity at (x, y).
func (g *Gray32) Get(x, y int) float32 {
	return g.Pix[y*g.Width+x]
}

// Set writes the intensity at (x, y).
func (g *Gray32) Set(x, y int, v float32) {
	g.Pix[y*g.Width+x] = v
}

// Empty reports whether the image has no pixels.
func (g *Gray32) Empty() bool {
	return g == nil || g.Width <= 0 || g.Height <= 0
}

// Bilinear samples the image at a sub-pixel position. The second return is false when (x, y)
// lies outside the pixel centers of the image or is not finite.
func (g *Gray32) Bilinear(x, y float64) (float64, bool) {
	if !(x >= 0 && y >= 0 && x <= float64(g.Width-1) && y <= float64(g.Height-1)) {
		return 0, false
	}
	x0 := int(x)
	y0 := int(y)
	x1 := x0 + 1
	y1 := y0 + 1
	if x1 >= g.Width {
		x1 = x0
	}
	if y1 >= g.Height {
		y1 = y0
	}
	fx := x - float64(x0)
	fy := y - float64(y0)

	top := float64(g.Get(x0, y0))*(1-fx) + float64(g.Get(x1, y0))*fx
	bottom := float64(g.Get(x0, y1))*(1-fx) + float64(g.Get(x1, y1))*fx
	return top*(1-fy) + bottom*fy, true
}

// ToImage converts back to an 8 bit grayscale image, clamping to [0, 255].
func (g *Gray32) ToImage() *image.Gray {
	out := image.NewGray(image.Rect(0, 0, g.Width, g.Height))
	for i, v := range g.Pix {
		out.Pix[i] = uint8(math.Round(math.Max(0, math.Min(255, float64(v)))))
	}
	return out
}

// ToGray32 converts any image to luminance with the 0.299/0.587/0.114 weighting.
func ToGray32(img image.Image) *Gray32 {
	b := img.Bounds()
	out := NewGray32(b.Dx(), b.Dy())
	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < out.Height; y++ {
			row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
			for x := 0; x < out.Width; x++ {
				out.Pix[y*out.Width+x] = float32(row[x])
			}
		}
	case *image.NRGBA:
		for y := 0; y < out.Height; y++ {
			row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
			for x := 0; x < out.Width; x++ {
				p := row[4*x : 4*x+3]
				out.Pix[y*out.Width+x] = float32(0.299*float64(p[0]) + 0.587*float64(p[1]) + 0.114*float64(p[2]))
			}
		}
	default:
		for y := 0; y < out.Height; y++ {
			for x := 0; x < out.Width; x++ {
				c := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
				out.Pix[y*out.Width+x] = float32(float64(c.Y) / 257)
			}
		}
	}
	return out
}

// PrepareGray blurs img with a Gaussian of the given sigma (skipped when sigma <= 0) and converts
// the result to a Gray32.
func PrepareGray(img image.Image, sigma float64) *Gray32 {
	if sigma > 0 {
		img = imaging.Blur(img, sigma)
	}
	return ToGray32(img)
}
