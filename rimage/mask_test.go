package rimage

import (
	"image"
	"image/color"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func filledGray(w, h int, v uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

func TestChannels(t *testing.T) {
	test.That(t, Channels(nil), test.ShouldEqual, 0)
	test.That(t, Channels(image.NewGray(image.Rectangle{})), test.ShouldEqual, 0)
	test.That(t, Channels(filledGray(2, 2, 1)), test.ShouldEqual, 1)
	test.That(t, Channels(image.NewNRGBA(image.Rect(0, 0, 2, 2))), test.ShouldEqual, 3)
	test.That(t, Channels(image.NewYCbCr(image.Rect(0, 0, 2, 2), image.YCbCrSubsampleRatio444)), test.ShouldEqual, 3)

	converted := ConvertChannels(filledGray(3, 2, 200), 3)
	test.That(t, Channels(converted), test.ShouldEqual, 3)
	r, g, b, _ := converted.At(1, 1).RGBA()
	test.That(t, []uint32{r >> 8, g >> 8, b >> 8}, test.ShouldResemble, []uint32{200, 200, 200})
	test.That(t, Channels(ConvertChannels(converted, 1)), test.ShouldEqual, 1)
}

func TestApplyMask(t *testing.T) {
	img := filledGray(4, 4, 0xf0)
	mask := filledGray(4, 4, 0)
	mask.SetGray(1, 2, color.Gray{Y: 0xff})
	mask.SetGray(2, 2, color.Gray{Y: 0x3c})

	masked, ok := ApplyMask(img, mask)
	test.That(t, ok, test.ShouldBeTrue)
	gray := masked.(*image.Gray)
	test.That(t, gray.GrayAt(1, 2).Y, test.ShouldEqual, uint8(0xf0))
	test.That(t, gray.GrayAt(2, 2).Y, test.ShouldEqual, uint8(0x30))
	test.That(t, gray.GrayAt(0, 0).Y, test.ShouldEqual, uint8(0))
	// the input is not modified
	test.That(t, img.GrayAt(0, 0).Y, test.ShouldEqual, uint8(0xf0))

	t.Run("size mismatch", func(t *testing.T) {
		out, ok := ApplyMask(img, filledGray(3, 4, 0))
		test.That(t, ok, test.ShouldBeFalse)
		test.That(t, out, test.ShouldEqual, img)
	})

	t.Run("channel mismatch", func(t *testing.T) {
		out, ok := ApplyMask(img, ConvertChannels(mask, 3))
		test.That(t, ok, test.ShouldBeFalse)
		test.That(t, out, test.ShouldEqual, img)
	})

	t.Run("color", func(t *testing.T) {
		colorImg := ConvertChannels(img, 3)
		out, ok := ApplyMask(colorImg, ConvertChannels(mask, 3))
		test.That(t, ok, test.ShouldBeTrue)
		nrgba := out.(*image.NRGBA)
		test.That(t, nrgba.NRGBAAt(2, 2), test.ShouldResemble, color.NRGBA{0x30, 0x30, 0x30, 0xff})
		test.That(t, nrgba.NRGBAAt(0, 0), test.ShouldResemble, color.NRGBA{0, 0, 0, 0xff})
	})
}

func TestCropAndResize(t *testing.T) {
	board := chessboard(40, 20, 4, 2)
	test.That(t, board.GrayAt(0, 0).Y, test.ShouldEqual, uint8(0xff))
	test.That(t, board.GrayAt(10, 0).Y, test.ShouldEqual, uint8(0))
	test.That(t, board.GrayAt(10, 10).Y, test.ShouldEqual, uint8(0xff))

	crop := Crop(board, image.Rect(5, 5, 15, 12))
	test.That(t, crop.Bounds(), test.ShouldResemble, image.Rect(0, 0, 10, 7))
	test.That(t, Channels(crop), test.ShouldEqual, 1)
	test.That(t, crop.(*image.Gray).GrayAt(0, 0).Y, test.ShouldEqual, uint8(0xff))
	test.That(t, crop.(*image.Gray).GrayAt(9, 6).Y, test.ShouldEqual, uint8(0xff))
	test.That(t, crop.(*image.Gray).GrayAt(6, 0).Y, test.ShouldEqual, uint8(0))

	colorCrop := Crop(ConvertChannels(board, 3), image.Rect(5, 5, 15, 12))
	test.That(t, colorCrop.Bounds(), test.ShouldResemble, image.Rect(0, 0, 10, 7))
	test.That(t, Channels(colorCrop), test.ShouldEqual, 3)

	resized := ResizeMask(filledGray(10, 10, 0xff), 25, 15)
	test.That(t, resized.Bounds().Size(), test.ShouldResemble, image.Point{25, 15})
	test.That(t, Channels(resized), test.ShouldEqual, 1)
	test.That(t, resized.(*image.Gray).GrayAt(12, 7).Y, test.ShouldEqual, uint8(0xff))
}

func TestCircleMask(t *testing.T) {
	mask := CircleMask(11, 9, 1, nil, 0).(*image.Gray)
	// default center (5, 4), radius min(6, 5) = 5
	test.That(t, mask.GrayAt(5, 4).Y, test.ShouldEqual, uint8(0xff))
	test.That(t, mask.GrayAt(10, 4).Y, test.ShouldEqual, uint8(0xff))
	test.That(t, mask.GrayAt(0, 4).Y, test.ShouldEqual, uint8(0xff))
	test.That(t, mask.GrayAt(0, 0).Y, test.ShouldEqual, uint8(0))
	test.That(t, mask.GrayAt(10, 8).Y, test.ShouldEqual, uint8(0))

	center := r2.Point{X: 2, Y: 2}
	small := CircleMask(11, 9, 3, &center, 1)
	test.That(t, Channels(small), test.ShouldEqual, 3)
	r, _, _, _ := small.At(2, 3).RGBA()
	test.That(t, r>>8, test.ShouldEqual, uint32(0xff))
	r, _, _, _ = small.At(4, 2).RGBA()
	test.That(t, r, test.ShouldEqual, uint32(0))
}
