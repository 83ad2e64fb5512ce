package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"golang.org/x/image/draw"
)

// Cover center-crops src to the w:h aspect ratio and scales it to exactly w×h pixels.
func Cover(src image.Image, w, h int) *image.NRGBA {
	w, h = max(w, 1), max(h, 1)
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()

	crop := b
	target := float64(w) / float64(h)
	switch ratio := float64(sw) / float64(sh); {
	case ratio > target:
		cw := max(1, int(math.Round(float64(sh)*target)))
		x0 := b.Min.X + (sw-cw)/2
		crop = image.Rect(x0, b.Min.Y, x0+cw, b.Max.Y)
	case ratio < target:
		ch := max(1, int(math.Round(float64(sw)/target)))
		y0 := b.Min.Y + (sh-ch)/2
		crop = image.Rect(b.Min.X, y0, b.Max.X, y0+ch)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)
	return dst
}

// Grayscale converts img to luminance, keeping its alpha channel.
func Grayscale(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			l := uint8(math.Round(0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)))
			dst.SetNRGBA(x-b.Min.X, y-b.Min.Y, color.NRGBA{R: l, G: l, B: l, A: c.A})
		}
	}
	return dst
}

// Pixels converts a length in millimetres to a pixel count at dpi, at least 1.
func Pixels(mm float64, dpi int) int {
	return max(1, int(math.Round(mm/25.4*float64(dpi))))
}

// EncodePNG encodes img with default compression.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
