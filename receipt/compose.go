package receipt

import (
	"fmt"
	"image"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	imgInternal "github.com/AlexStarov/escpos-print-agent/image"
	logInternal "github.com/AlexStarov/escpos-print-agent/log"
)

// Layout holds page geometry in printer dots.
type Layout struct {
	PageWidth     int
	LogoMaxWidth  int
	LineHeight    int
	PaddingTop    int
	PaddingBottom int
	LogoSpacing   int
	MarginLeft    int
}

// DefaultLayout fits a 58 mm roll at 203 dpi.
func DefaultLayout() Layout {
	return Layout{
		PageWidth:     384,
		LogoMaxWidth:  256,
		LineHeight:    18,
		PaddingTop:    20,
		PaddingBottom: 20,
		LogoSpacing:   20,
		MarginLeft:    4,
	}
}

// Height is the page height for lineCount text rows under a logo logoH
// dots tall. A page always reserves at least one row.
func (l Layout) Height(lineCount, logoH int) int {
	h := l.PaddingTop + l.LineHeight*max(lineCount, 1) + l.PaddingBottom
	if logoH > 0 {
		h += logoH + l.LogoSpacing
	}
	return h
}

// LogoWidth is the widest a logo may be drawn.
func (l Layout) LogoWidth() int {
	if l.LogoMaxWidth <= 0 || l.LogoMaxWidth > l.PageWidth {
		return l.PageWidth
	}
	return l.LogoMaxWidth
}

// Compositor draws receipts onto page images. It is safe for concurrent
// use: each Compose gets its own font face.
type Compositor struct {
	Layout

	font     *opentype.Font
	fontSize float64
}

// NewCompositor loads the TrueType or OpenType font at fontPath. Without
// a usable font the compositor draws with a built-in 7x13 face.
func NewCompositor(layout Layout, fontPath string, fontSize float64) *Compositor {
	c := &Compositor{Layout: layout, fontSize: fontSize}
	if fontPath == "" {
		return c
	}
	f, err := loadFont(fontPath)
	if err != nil {
		logInternal.Warn("using built-in font", zap.String("font", fontPath), zap.Error(err))
		return c
	}
	c.font = f
	return c
}

func loadFont(path string) (*opentype.Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	return f, nil
}

func (c *Compositor) newFace() font.Face {
	if c.font != nil && c.fontSize > 0 {
		face, err := opentype.NewFace(c.font, &opentype.FaceOptions{
			Size:    c.fontSize,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err == nil {
			return face
		}
		logInternal.Warn("font face", zap.Error(err))
	}
	return basicfont.Face7x13
}

// Compose draws logo, if any, centred at the top and lines below it,
// left-aligned, one per row. The result is opaque.
func (c *Compositor) Compose(lines []string, logo image.Image) *image.RGBA {
	var logoH int
	if logo != nil && !logo.Bounds().Empty() {
		if logo.Bounds().Dx() > c.LogoWidth() {
			logo = imgInternal.FitWidth(logo, c.LogoWidth())
		}
		logoH = logo.Bounds().Dy()
	} else {
		logo = nil
	}

	page := image.NewRGBA(image.Rect(0, 0, c.PageWidth, c.Height(len(lines), logoH)))
	draw.Draw(page, page.Bounds(), image.White, image.Point{}, draw.Src)

	top := c.PaddingTop
	if logo != nil {
		lb := logo.Bounds()
		x := (c.PageWidth - lb.Dx()) / 2
		draw.Draw(page, image.Rect(x, top, x+lb.Dx(), top+lb.Dy()), logo, lb.Min, draw.Over)
		top += logoH + c.LogoSpacing
	}

	face := c.newFace()
	if closer, ok := face.(interface{ Close() error }); ok {
		defer closer.Close()
	}
	ascent := face.Metrics().Ascent.Ceil()

	d := &font.Drawer{Dst: page, Src: image.Black, Face: face}
	for i, line := range lines {
		d.Dot = fixed.P(c.MarginLeft, top+i*c.LineHeight+ascent)
		d.DrawString(printable(line))
	}
	return page
}

// printable drops C0 controls and DEL; a tab becomes a space.
func printable(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t':
			return ' '
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, s)
}
