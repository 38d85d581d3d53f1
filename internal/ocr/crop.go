package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"

	"golang.org/x/image/draw"
)

// CropBottom returns the bottom fraction of img as a new image anchored at the origin.
func CropBottom(img image.Image, fraction float64) image.Image {
	b := img.Bounds()
	if fraction >= 1 || b.Empty() {
		return img
	}
	startY := b.Max.Y - int(math.Round(float64(b.Dy())*fraction))
	src := image.Rect(b.Min.X, startY, b.Max.X, b.Max.Y)

	dst := image.NewRGBA(image.Rect(0, 0, src.Dx(), src.Dy()))
	draw.Draw(dst, dst.Bounds(), img, src.Min, draw.Src)
	return dst
}

// Downscale shrinks img to maxWidth, keeping the aspect ratio. Narrower images are returned as-is.
func Downscale(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	height := b.Dy() * maxWidth / b.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// EncodePNG serialises a region for HTTP backends.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
