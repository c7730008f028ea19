package rimage

import (
	"image"
	"image/color"
	"image/draw"
)

// chessboard returns a w x h gray image with cols x rows alternating squares, the top left one white.
func chessboard(w, h, cols, rows int) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, w, h))
	if cols <= 0 || rows <= 0 {
		return out
	}
	cw := w / cols
	ch := h / rows
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if (i+j)%2 != 0 {
				continue
			}
			square := image.Rect(j*cw, i*ch, (j+1)*cw, (i+1)*ch)
			draw.Draw(out, square, image.NewUniform(color.Gray{Y: 0xff}), image.Point{}, draw.Src)
		}
	}
	return out
}
