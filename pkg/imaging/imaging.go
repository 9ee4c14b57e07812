// Package imaging normalizes uploaded images before they are sent to a vision model.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	MaxWidth    = 1000
	JPEGQuality = 95

	// MaxPixels caps width*height read from the header before any pixel is decoded
	MaxPixels = 89_478_485
)

var ErrTooLarge = errors.New("image dimensions too large")

// Prepared is a re-encoded JPEG ready to embed in a provider request
type Prepared struct {
	Data   []byte
	Width  int
	Height int
}

// Base64 returns the JPEG bytes as standard base64
func (p *Prepared) Base64() string {
	return base64.StdEncoding.EncodeToString(p.Data)
}

// DataURL returns the JPEG as a data: URL
func (p *Prepared) DataURL() string {
	return "data:image/jpeg;base64," + p.Base64()
}

// Prepare decodes any supported image, flattens it onto a white RGB canvas,
// scales it down to MaxWidth keeping the aspect ratio and encodes it as JPEG.
// Images narrower than MaxWidth are never upscaled. Images whose header
// declares more than MaxPixels pixels are rejected with ErrTooLarge.
func Prepare(raw []byte) (*Prepared, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("decode image: empty image")
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("decode image: empty image")
	}

	if width > MaxWidth {
		height = max(1, height*MaxWidth/width)
		width = MaxWidth
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if width == bounds.Dx() {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	return &Prepared{Data: buf.Bytes(), Width: width, Height: height}, nil
}
