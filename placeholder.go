package tilecache

import (
	"image"
	"image/color"
)

// newLoadingImage builds the placeholder returned while a tile downloads:
// a light-gray dot pattern on a transparent tile.
func newLoadingImage(sizePx int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, sizePx, sizePx))
	gray := color.RGBA{R: 0xd3, G: 0xd3, B: 0xd3, A: 0xff}
	for y := 0; y < sizePx; y++ {
		for x := y % 2; x < sizePx; x += 2 {
			img.SetRGBA(x, y, gray)
		}
	}
	return img
}

// newEmptyImage builds the fully transparent placeholder returned for tiles
// that are known to have no data (e.g. out of bounds of an offline bundle).
func newEmptyImage(sizePx int) image.Image {
	return image.NewRGBA(image.Rect(0, 0, sizePx, sizePx))
}
