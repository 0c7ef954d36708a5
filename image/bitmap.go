package image

import "fmt"

// Bitmap is a 1-bit image packed 8 pixels per byte, MSB first, each row
// padded to a whole byte. A set bit is a white sample and a cleared bit a
// black one; padding bits are white. The zero Bitmap is the empty result
// of a failed conversion.
type Bitmap struct {
	Width  int
	Height int
	// Stride is the number of bytes per row, ceil(Width/8).
	Stride int
	Pix    []byte
}

// WidthBytes returns the packed row length for a bitmap w pixels wide.
func WidthBytes(w int) int {
	return (w + 7) >> 3
}

// NewBitmap returns an all-black w x h bitmap with white row padding.
func NewBitmap(w, h int) Bitmap {
	if w <= 0 || h <= 0 {
		return Bitmap{}
	}
	stride := WidthBytes(w)
	bmp := Bitmap{
		Width:  w,
		Height: h,
		Stride: stride,
		Pix:    make([]byte, stride*h),
	}

	if pad := stride*8 - w; pad > 0 {
		mask := byte(1<<uint(pad) - 1)
		for y := 0; y < h; y++ {
			bmp.Pix[y*stride+stride-1] = mask
		}
	}
	return bmp
}

// Empty reports whether b is the empty sentinel (or otherwise unusable).
func (b Bitmap) Empty() bool {
	return b.Width <= 0 || b.Height <= 0 || b.Stride < WidthBytes(b.Width) || len(b.Pix) != b.Stride*b.Height
}

// White reports whether the sample at (x, y) is white.
func (b Bitmap) White(x, y int) bool {
	return b.Pix[y*b.Stride+x/8]&(0x80>>uint(x%8)) != 0
}

// SetWhite sets the sample at (x, y).
func (b Bitmap) SetWhite(x, y int, white bool) {
	i := y*b.Stride + x/8
	bit := byte(0x80 >> uint(x%8))
	if white {
		b.Pix[i] |= bit
	} else {
		b.Pix[i] &^= bit
	}
}

func (b Bitmap) String() string {
	return fmt.Sprintf("Bitmap(%dx%d, stride %d)", b.Width, b.Height, b.Stride)
}
