package relay

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// Encoder turns a frame into wire bytes for one multipart chunk body
type Encoder interface {
	Encode(frame image.Image) ([]byte, error)
}

// JPEGEncoder encodes frames with image/jpeg
type JPEGEncoder struct {
	Quality int
}

// NewJPEGEncoder creates an encoder with the given quality (1-100).
// Quality <= 0 falls back to the jpeg package default.
func NewJPEGEncoder(quality int) *JPEGEncoder {
	return &JPEGEncoder{Quality: quality}
}

// Encode returns the frame as JPEG bytes
func (e *JPEGEncoder) Encode(frame image.Image) ([]byte, error) {
	quality := e.Quality
	if quality <= 0 {
		quality = jpeg.DefaultQuality
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, frame, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}
