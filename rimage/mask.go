package rimage

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"github.com/golang/geo/r2"
)

// Channels returns the number of color channels of an image: 1 for gray and alpha images and 3
// for color images. Alpha is carried along by color images but never counted or masked. Empty
// images have 0.
func Channels(img image.Image) int {
	if IsEmpty(img) {
		return 0
	}
	switch img.(type) {
	case *image.Gray, *image.Gray16, *image.Alpha, *image.Alpha16:
		return 1
	}
	return 3
}

// ConvertChannels returns a copy of img with the requested channel count, anchored at the origin:
// an *image.Gray for 1 and an *image.NRGBA otherwise.
func ConvertChannels(img image.Image, channels int) image.Image {
	if channels == 1 {
		b := img.Bounds()
		out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
		return out
	}
	return imaging.Clone(img)
}

// CloneImage returns a deep copy of img anchored at the origin, keeping gray images gray.
func CloneImage(img image.Image) image.Image {
	if IsEmpty(img) {
		return image.NewGray(image.Rectangle{})
	}
	if Channels(img) == 1 {
		return ConvertChannels(img, 1)
	}
	return imaging.Clone(img)
}

// Crop returns a copy of the rect region of img. rect is relative to the image origin.
func Crop(img image.Image, rect image.Rectangle) image.Image {
	rect = rect.Add(img.Bounds().Min)
	if Channels(img) == 1 {
		out := image.NewGray(image.Rect(0, 0, rect.Dx(), rect.Dy()))
		draw.Draw(out, out.Bounds(), img, rect.Min, draw.Src)
		return out
	}
	return imaging.Crop(img, rect)
}

// ApplyMask computes the element-wise AND of img and mask. The second return is false, and img is
// returned untouched, when the two differ in size or channel count.
func ApplyMask(img, mask image.Image) (image.Image, bool) {
	if IsEmpty(img) || IsEmpty(mask) {
		return img, false
	}
	if img.Bounds().Size() != mask.Bounds().Size() {
		return img, false
	}
	channels := Channels(img)
	if channels != Channels(mask) {
		return img, false
	}

	if channels == 1 {
		out := ConvertChannels(img, 1).(*image.Gray)
		m := ConvertChannels(mask, 1).(*image.Gray)
		for i := range out.Pix {
			out.Pix[i] &= m.Pix[i]
		}
		return out, true
	}
	out := ConvertChannels(img, channels).(*image.NRGBA)
	m := ConvertChannels(mask, channels).(*image.NRGBA)
	for i := range out.Pix {
		if i%4 == 3 {
			continue
		}
		out.Pix[i] &= m.Pix[i]
	}
	return out, true
}

// ResizeMask scales mask to w x h with cubic interpolation, keeping its channel count.
func ResizeMask(mask image.Image, w, h int) image.Image {
	channels := Channels(mask)
	resized := imaging.Resize(mask, w, h, imaging.CatmullRom)
	return ConvertChannels(resized, channels)
}

// CircleMask returns a w x h mask with the given channel count where pixels within radius of
// center are 255 and all others 0. A nil center uses (w/2, h/2); a non-positive radius uses
// min(w/2+1, h/2+1).
func CircleMask(w, h, channels int, center *r2.Point, radius float64) image.Image {
	c := r2.Point{X: float64(w / 2), Y: float64(h / 2)}
	if center != nil {
		c = *center
	}
	if radius <= 0 {
		radius = float64(min(w/2+1, h/2+1))
	}

	gray := image.NewGray(image.Rect(0, 0, w, h))
	r2sq := radius * radius
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx := float64(x) - c.X
			dy := float64(y) - c.Y
			if dx*dx+dy*dy <= r2sq {
				gray.SetGray(x, y, color.Gray{Y: 0xff})
			}
		}
	}
	if channels == 1 {
		return gray
	}
	return ConvertChannels(gray, channels)
}
