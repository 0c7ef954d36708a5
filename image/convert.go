package image

import (
	"image"
	"image/color"
)

// DefaultThreshold is the gray level at and below which a sample prints.
const DefaultThreshold = 190

// Converter turns images into 1-bit bitmaps.
type Converter struct {
	// The threshold between white and black dots, 0..255. A sample is
	// white when its gray value is strictly greater.
	Threshold int
}

// NewConverter returns a Converter using threshold, or DefaultThreshold
// when threshold is out of range.
func NewConverter(threshold int) *Converter {
	if threshold < 0 || threshold > 255 {
		threshold = DefaultThreshold
	}
	return &Converter{Threshold: threshold}
}

// ToBitmap classifies every pixel of img as black or white and packs the
// result. An empty image yields the empty Bitmap.
func (c *Converter) ToBitmap(img image.Image) Bitmap {
	b := img.Bounds()
	bmp := NewBitmap(b.Dx(), b.Dy())
	if bmp.Empty() {
		return Bitmap{}
	}

	if n, ok := img.(*image.NRGBA); ok {
		c.packNRGBA(n, bmp)
		return bmp
	}

	for y := 0; y < bmp.Height; y++ {
		for x := 0; x < bmp.Width; x++ {
			if Lightness(img.At(b.Min.X+x, b.Min.Y+y)) > c.Threshold {
				bmp.SetWhite(x, y, true)
			}
		}
	}
	return bmp
}

func (c *Converter) packNRGBA(img *image.NRGBA, bmp Bitmap) {
	b := img.Bounds()
	for y := 0; y < bmp.Height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+bmp.Width*4]
		for x := 0; x < bmp.Width; x++ {
			p := row[x*4 : x*4+4]
			if p[3] != 0xff {
				// translucent, let the generic path blend it onto white
				if Lightness(img.At(b.Min.X+x, b.Min.Y+y)) > c.Threshold {
					bmp.SetWhite(x, y, true)
				}
				continue
			}
			if gray(uint32(p[0]), uint32(p[1]), uint32(p[2])) > c.Threshold {
				bmp.SetWhite(x, y, true)
			}
		}
	}
}

// Rasterize converts img to a bitmap and encodes it as a GS v 0 block.
func (c *Converter) Rasterize(img image.Image) []byte {
	return Encode(c.ToBitmap(img))
}

// ITU-R 601 luma weights, per mille.
const (
	lumR, lumG, lumB = 299, 587, 114
)

// Lightness returns the 0..255 gray value of c as seen on white paper.
func Lightness(c color.Color) int {
	r, g, b, a := c.RGBA()
	bg := 0xffff - a
	return gray((r+bg)>>8, (g+bg)>>8, (b+bg)>>8)
}

func gray(r, g, b uint32) int {
	return int((lumR*r + lumG*g + lumB*b) / (lumR + lumG + lumB))
}
