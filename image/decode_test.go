package image

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func solid(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestDecodeBareAndDataURL(t *testing.T) {
	b64 := encodePNG(t, solid(4, 2, color.Black))

	testCases := map[string]string{
		"bare":      b64,
		"data url":  "data:image/png;base64," + b64,
		"wrapped":   b64[:4] + "\n" + b64[4:] + "\n",
		"no header": "," + b64,
	}

	for name, in := range testCases {
		t.Run(name, func(t *testing.T) {
			res := Decode(in, DecodeOptions{})
			require.True(t, res.OK(), "err: %v", res.Err)
			assert.Equal(t, "png", res.Format)
			assert.Equal(t, 4, res.Image.Bounds().Dx())
			assert.Equal(t, 2, res.Image.Bounds().Dy())
		})
	}
}

func TestDecodeOnlyFirstCommaSplits(t *testing.T) {
	b64 := encodePNG(t, solid(4, 2, color.Black))

	res := Decode("data:a,b,"+b64, DecodeOptions{})
	assert.False(t, res.OK())
}

func TestDecodeFailures(t *testing.T) {
	testCases := []struct {
		name  string
		in    string
		stage string
	}{
		{"not base64", "!!!not base64!!!", "base64"},
		{"empty", "", "base64"},
		{"data url without body", "data:image/png;base64,", "base64"},
		{"not an image", base64.StdEncoding.EncodeToString([]byte("hello, printer")), "config"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := Decode(tc.in, DecodeOptions{})
			assert.False(t, res.OK())
			assert.Nil(t, res.Image)
			assert.True(t, errors.Is(res.Err, ErrDecode))

			var de *DecodeError
			require.True(t, errors.As(res.Err, &de))
			assert.Equal(t, tc.stage, de.Stage)
		})
	}
}

func TestDecodeTruncatedPNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(64, 64, color.Black)))
	truncated := buf.Bytes()[:buf.Len()/2]

	res := DecodeBytes(truncated, DecodeOptions{})
	assert.False(t, res.OK())
	assert.ErrorIs(t, res.Err, ErrDecode)
}

func TestDecodeMaxPixels(t *testing.T) {
	b64 := encodePNG(t, solid(100, 100, color.White))

	res := Decode(b64, DecodeOptions{MaxPixels: 5000})
	assert.False(t, res.OK())
	var de *DecodeError
	require.ErrorAs(t, res.Err, &de)
	assert.Equal(t, "bounds", de.Stage)

	res = Decode(b64, DecodeOptions{MaxPixels: -1})
	assert.True(t, res.OK())
}

func TestDecodeFlattensAlphaOntoWhite(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.NRGBA{0, 0, 0, 0})    // transparent black
	img.Set(1, 0, color.NRGBA{0, 0, 0, 0xff}) // opaque black

	res := Decode(encodePNG(t, img), DecodeOptions{})
	require.True(t, res.OK())

	assert.Equal(t, color.NRGBA{0xff, 0xff, 0xff, 0xff}, res.Image.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{0, 0, 0, 0xff}, res.Image.NRGBAAt(1, 0))
}

func TestDecodeFlattensPalettedTransparency(t *testing.T) {
	pal := color.Palette{color.NRGBA{0, 0, 0, 0xff}, color.NRGBA{0, 0, 0, 0}}
	img := image.NewPaletted(image.Rect(0, 0, 2, 1), pal)
	img.SetColorIndex(0, 0, 0)
	img.SetColorIndex(1, 0, 1)
	assert.True(t, HasAlpha(img))

	res := Decode(encodePNG(t, img), DecodeOptions{})
	require.True(t, res.OK())
	assert.Equal(t, color.NRGBA{0, 0, 0, 0xff}, res.Image.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{0xff, 0xff, 0xff, 0xff}, res.Image.NRGBAAt(1, 0))
}

func TestDecodeKeepAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.NRGBA{0, 0, 0, 0})

	res := Decode(encodePNG(t, img), DecodeOptions{KeepAlpha: true})
	require.True(t, res.OK())
	assert.Equal(t, uint8(0), res.Image.NRGBAAt(0, 0).A)
}

func TestHasAlpha(t *testing.T) {
	assert.False(t, HasAlpha(image.NewGray(image.Rect(0, 0, 2, 2))))
	assert.False(t, HasAlpha(solid(2, 2, color.White)))
	assert.True(t, HasAlpha(solid(2, 2, color.NRGBA{0xff, 0, 0, 0x80})))
}

func TestDecodeResizesPreservingAspect(t *testing.T) {
	res := Decode(encodePNG(t, solid(800, 400, color.Black)), DecodeOptions{MaxWidth: 384})
	require.True(t, res.OK())
	assert.Equal(t, 384, res.Image.Bounds().Dx())
	assert.Equal(t, 192, res.Image.Bounds().Dy())
}

func TestDecodeNeverUpscales(t *testing.T) {
	for _, w := range []int{200, 384} {
		res := Decode(encodePNG(t, solid(w, 100, color.Black)), DecodeOptions{MaxWidth: 384})
		require.True(t, res.OK())
		assert.Equal(t, w, res.Image.Bounds().Dx())
		assert.Equal(t, 100, res.Image.Bounds().Dy())
	}
}

func TestScaledHeight(t *testing.T) {
	assert.Equal(t, 192, ScaledHeight(800, 400, 384))
	assert.Equal(t, 128, ScaledHeight(1000, 333, 384)) // 127.87
	assert.Equal(t, 1, ScaledHeight(5000, 1, 384))
}

func TestFitWidthKeepsTone(t *testing.T) {
	out := FitWidth(solid(768, 10, color.Black), 384)
	require.Equal(t, image.Rect(0, 0, 384, 5), out.Bounds())

	c := out.NRGBAAt(100, 2)
	assert.Less(t, int(c.R), 8)
}
