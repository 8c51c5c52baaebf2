// Package codec decodes downloaded bytes into raster images and re-encodes them as JPEG.
package codec

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
)

// MaxJPEGQuality is the highest quality accepted by the JPEG encoder.
const MaxJPEGQuality = 100

// Decoder turns raw bytes into a raster image.
type Decoder interface {
	Decode(data []byte) (image.Image, error)
}

// Encoder writes a raster image to w.
type Encoder interface {
	Encode(w io.Writer, img image.Image) error
}

// Codec is both a Decoder and an Encoder.
type Codec interface {
	Decoder
	Encoder
}

// ImagingCodec decodes any format supported by imaging (JPEG, PNG, GIF, BMP, TIFF)
// and encodes to JPEG.
type ImagingCodec struct {
	quality int
}

// NewImagingCodec returns a codec encoding JPEG at the given quality.
// Out-of-range values fall back to MaxJPEGQuality.
func NewImagingCodec(quality int) *ImagingCodec {
	if quality < 1 || quality > MaxJPEGQuality {
		quality = MaxJPEGQuality
	}
	return &ImagingCodec{quality: quality}
}

// Quality returns the JPEG quality used by Encode.
func (c *ImagingCodec) Quality() int {
	return c.quality
}

// Decode decodes data without applying EXIF orientation, so the result keeps
// the pixel dimensions stored in the source.
func (c *ImagingCodec) Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Encode writes img to w as JPEG.
func (c *ImagingCodec) Encode(w io.Writer, img image.Image) error {
	if img == nil {
		return fmt.Errorf("nil image")
	}
	if err := imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(c.quality)); err != nil {
		return fmt.Errorf("encode jpeg: %w", err)
	}
	return nil
}
