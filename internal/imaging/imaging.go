// Package imaging decodes uploaded images and prepares fixed-size RGB inputs
// for feature extractors.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder

	_ "golang.org/x/image/bmp" // register BMP decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/kailas-cloud/vecsight/internal/domain"
)

// MaxPixels bounds decoded image area (about 8k x 8k).
const MaxPixels = 64 << 20

// Decode parses image bytes in any registered format. Undecodable or
// oversized input yields domain.ErrUnsupportedFormat.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty body", domain.ErrUnsupportedFormat)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", domain.ErrUnsupportedFormat, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > MaxPixels {
		return nil, "", fmt.Errorf("%w: %s image of %dx%d pixels",
			domain.ErrUnsupportedFormat, format, cfg.Width, cfg.Height)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", domain.ErrUnsupportedFormat, err)
	}
	return img, format, nil
}

// ResizeShorter scales src so its shorter side equals size, keeping aspect ratio.
func ResizeShorter(src image.Image, size int) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	var dw, dh int
	if w <= h {
		dw = size
		dh = max(1, (h*size+w/2)/w)
	} else {
		dh = size
		dw = max(1, (w*size+h/2)/h)
	}
	return Resize(src, dw, dh)
}

// Resize scales src to exactly w x h with bilinear interpolation.
func Resize(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// CenterCrop cuts a w x h window from the centre of src. A source smaller
// than the window is scaled up first.
func CenterCrop(src image.Image, w, h int) *image.RGBA {
	b := src.Bounds()
	if b.Dx() < w || b.Dy() < h {
		src = Resize(src, max(w, b.Dx()), max(h, b.Dy()))
		b = src.Bounds()
	}
	x0 := b.Min.X + (b.Dx()-w)/2
	y0 := b.Min.Y + (b.Dy()-h)/2

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), src, image.Pt(x0, y0), draw.Src)
	return dst
}

// Prepare decodes data, resizes the shorter side to resize and centre-crops
// to crop x crop.
func Prepare(data []byte, resize, crop int) (*image.RGBA, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return CenterCrop(ResizeShorter(img, resize), crop, crop), nil
}
