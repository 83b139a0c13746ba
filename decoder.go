package tilecache

import (
	"bytes"
	"errors"
	"image"

	// Register the tile formats served by common map sources.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// Decoder turns raw tile payloads into pixel images. Applications can install
// their own implementation (e.g. a libvips binding) via WithDecoder.
type Decoder interface {
	Decode(data []byte) (image.Image, error)
}

// StdDecoder decodes tiles with the codecs registered in the standard image
// package (PNG, JPEG, GIF).
type StdDecoder struct{}

func (StdDecoder) Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.New("empty tile payload")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}
