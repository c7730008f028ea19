package rimage

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/golang/geo/r2"
	"golang.org/x/image/font/gofont/goregular"
)

var font *truetype.Font

// init sets up the fonts we want to use.
func init() {
	var err error
	font, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Font returns the font we use for drawing.
func Font() *truetype.Font {
	return font
}

// DrawString writes a string to the given context at a particular point.
func DrawString(dc *gg.Context, text string, p image.Point, c color.Color, size float64) {
	dc.SetFontFace(truetype.NewFace(Font(), &truetype.Options{Size: size}))
	dc.SetColor(c)
	dc.DrawStringWrapped(text, float64(p.X), float64(p.Y), 0, 0, float64(dc.Width()), 1, 0)
}

// DrawRectangleEmpty draws the outline of the given rectangle into the context.
func DrawRectangleEmpty(dc *gg.Context, r image.Rectangle, c color.Color, width float64) {
	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.DrawRectangle(float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()))
	dc.Stroke()
}

// drawPlus strokes a "+" of the given arm length centered on the pixel p. Pixel centers sit at
// half-integer context coordinates.
func drawPlus(dc *gg.Context, p r2.Point, size float64, c color.Color, width float64) {
	cx := p.X + 0.5
	cy := p.Y + 0.5
	half := size / 2
	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.DrawLine(cx-half, cy, cx+half, cy)
	dc.DrawLine(cx, cy-half, cx, cy+half)
	dc.Stroke()
}

// DrawCross returns a copy of img with a cross at p spanning size pixels: a white stroke of width 4
// overdrawn by a black stroke of width 2, so the mark shows on any background. The copy keeps the
// channel count of img.
func DrawCross(img image.Image, p r2.Point, size float64) image.Image {
	dc := gg.NewContextForImage(img)
	drawPlus(dc, p, size, color.White, 4)
	drawPlus(dc, p, size, color.Black, 2)
	return ConvertChannels(dc.Image(), Channels(img))
}

// AnnotateFrame draws a tracked template's rectangle, reference cross and label onto a copy of frame.
func AnnotateFrame(frame image.Image, rect image.Rectangle, ref r2.Point, label string) image.Image {
	dc := gg.NewContextForImage(frame)
	DrawRectangleEmpty(dc, rect, color.NRGBA{0, 0xff, 0, 0xff}, 2)
	size := float64(max(rect.Dx(), rect.Dy()))
	drawPlus(dc, ref, size, color.White, 4)
	drawPlus(dc, ref, size, color.Black, 2)
	if label != "" {
		DrawString(dc, label, image.Point{rect.Min.X, rect.Max.Y + 2}, color.NRGBA{0xff, 0xff, 0, 0xff}, 14)
	}
	return dc.Image()
}
