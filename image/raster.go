package image

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/AlexStarov/escpos-print-agent/util"
)

// HeaderLen is the size of the GS v 0 header: opcode, xL xH, yL yH.
const HeaderLen = 8

// Encode frames bmp as a GS v 0 raster block:
//
//	1D 76 30 00 xL xH yL yH d1...dk
//
// x is the row length in bytes, y the height in dots. The printer prints
// a dot for every set bit, so each payload byte is the inverse of the
// bitmap byte. The empty Bitmap, and bitmaps too large for the 16-bit
// header, encode to nothing.
func Encode(bmp Bitmap) []byte {
	if bmp.Empty() {
		return nil
	}
	xw, err := util.IntLowHigh(bmp.Stride, 2)
	if err != nil {
		return nil
	}
	yh, err := util.IntLowHigh(bmp.Height, 2)
	if err != nil {
		return nil
	}

	out := make([]byte, 0, HeaderLen+len(bmp.Pix))
	out = append(out, util.RasterNormal...)
	out = append(out, xw...)
	out = append(out, yh...)
	for _, b := range bmp.Pix {
		out = append(out, b^0xff)
	}
	return out
}

// DecodeRaster parses a block produced by Encode back into a Bitmap. The
// header only carries whole bytes, so Width is Stride*8.
func DecodeRaster(data []byte) (Bitmap, error) {
	if len(data) < HeaderLen {
		return Bitmap{}, errors.New("raster block too short")
	}
	if !bytes.Equal(data[:4], util.RasterNormal) {
		return Bitmap{}, fmt.Errorf("not a GS v 0 block: % x", data[:4])
	}
	stride := int(data[4]) | int(data[5])<<8
	height := int(data[6]) | int(data[7])<<8
	payload := data[HeaderLen:]
	if len(payload) != stride*height {
		return Bitmap{}, fmt.Errorf("raster payload is %d bytes, header says %dx%d", len(payload), stride, height)
	}

	pix := make([]byte, len(payload))
	for i, b := range payload {
		pix[i] = b ^ 0xff
	}
	return Bitmap{Width: stride * 8, Height: height, Stride: stride, Pix: pix}, nil
}
