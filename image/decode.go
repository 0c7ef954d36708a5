package image

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxPixels bounds the declared size of an input image before its
// pixels are decoded.
const DefaultMaxPixels = 40_000_000

// ErrDecode is matched by every error a decode can produce.
var ErrDecode = errors.New("image decode failed")

// DecodeError describes where decoding an encoded image failed.
type DecodeError struct {
	Stage string // base64, config, bounds or decode
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("image %s: %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// DecodeOptions controls Decode and DecodeBytes.
type DecodeOptions struct {
	// MaxWidth is the widest result; wider images are scaled down with
	// their aspect ratio kept. Zero disables scaling.
	MaxWidth int

	// MaxPixels rejects images declaring more pixels than this. Zero
	// means DefaultMaxPixels, negative disables the check.
	MaxPixels int

	// KeepAlpha skips flattening transparent images onto white.
	KeepAlpha bool
}

// DecodeResult is the outcome of a decode: either Image or Err is set.
type DecodeResult struct {
	Image  *image.NRGBA
	Format string
	Err    error
}

// OK reports whether the decode produced an image.
func (r DecodeResult) OK() bool {
	return r.Err == nil && r.Image != nil
}

func failed(stage string, err error) DecodeResult {
	return DecodeResult{Err: &DecodeError{Stage: stage, Err: err}}
}

// Decode decodes a base64 image, optionally carrying a data-URL prefix
// ("data:image/png;base64,..."). Everything up to the first comma is
// dropped.
func Decode(encoded string, opts DecodeOptions) DecodeResult {
	data, err := DecodeBase64(encoded)
	if err != nil {
		return failed("base64", err)
	}
	return DecodeBytes(data, opts)
}

// DecodeBase64 strips a data-URL prefix and decodes the base64 body.
func DecodeBase64(encoded string) ([]byte, error) {
	if i := strings.IndexByte(encoded, ','); i >= 0 {
		encoded = encoded[i+1:]
	}
	encoded = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, encoded)
	if encoded == "" {
		return nil, errors.New("empty payload")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		if raw, rawErr := base64.RawStdEncoding.DecodeString(encoded); rawErr == nil {
			return raw, nil
		}
		return nil, err
	}
	return data, nil
}

// DecodeBytes decodes container bytes (PNG, JPEG, GIF, BMP, TIFF, WebP)
// into an opaque NRGBA raster no wider than opts.MaxWidth.
func DecodeBytes(data []byte, opts DecodeOptions) (res DecodeResult) {
	defer func() {
		if r := recover(); r != nil {
			res = failed("decode", fmt.Errorf("decoder panic: %v", r))
		}
	}()

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return failed("config", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return failed("bounds", fmt.Errorf("empty image %dx%d", cfg.Width, cfg.Height))
	}
	maxPixels := opts.MaxPixels
	if maxPixels == 0 {
		maxPixels = DefaultMaxPixels
	}
	if maxPixels > 0 && cfg.Width*cfg.Height > maxPixels {
		return failed("bounds", fmt.Errorf("image %dx%d exceeds %d pixels", cfg.Width, cfg.Height, maxPixels))
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return failed("decode", err)
	}

	var out *image.NRGBA
	if !opts.KeepAlpha && HasAlpha(img) {
		out = Flatten(img)
	} else {
		out = imaging.Clone(img)
	}

	return DecodeResult{Image: FitWidth(out, opts.MaxWidth), Format: format}
}

// HasAlpha reports whether img has any non-opaque pixel. Paletted images
// only count if a transparent palette entry is in use.
func HasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return true
}

// Flatten composites img onto an opaque white canvas of the same size,
// using its alpha channel as the mask.
func Flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Point{}, 1.0)
}

// ScaledHeight returns the height of a w x h image scaled to maxWidth.
func ScaledHeight(w, h, maxWidth int) int {
	nh := int(math.Round(float64(h) * float64(maxWidth) / float64(w)))
	if nh < 1 {
		nh = 1
	}
	return nh
}

// FitWidth scales img down to maxWidth with a Lanczos-3 filter, keeping
// the aspect ratio. Images already narrow enough are never upscaled.
func FitWidth(img image.Image, maxWidth int) *image.NRGBA {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		if n, ok := img.(*image.NRGBA); ok && b.Min == (image.Point{}) {
			return n
		}
		return imaging.Clone(img)
	}

	h := ScaledHeight(b.Dx(), b.Dy(), maxWidth)
	return imaging.Clone(resize.Resize(uint(maxWidth), uint(h), img, resize.Lanczos3))
}
