package printer

import (
	"fmt"
	"io"

	imgInternal "github.com/AlexStarov/escpos-print-agent/image"
	logInternal "github.com/AlexStarov/escpos-print-agent/log"
	utilInternal "github.com/AlexStarov/escpos-print-agent/util"
	"go.uber.org/zap"
)

// Printer writes ESC/POS commands to an io.Writer. After the first
// failed write every later command is a no-op; Err reports that failure.
type Printer struct {
	w   io.Writer
	err error
}

// NewPrinter creates a new printer using the specified writer.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Err returns the first write error, if any.
func (p *Printer) Err() error {
	return p.err
}

// Write writes buf to printer.
func (p *Printer) Write(buf []byte) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	n, err := p.w.Write(buf)
	if err != nil {
		p.err = err
	}
	return n, err
}

func (p *Printer) send(buf []byte) {
	_, _ = p.Write(buf)
}

// Init writes the initialize code (ESC @).
func (p *Printer) Init() {
	p.send([]byte("\x1B@"))
}

// Cut writes the cut code to the printer.
func (p *Printer) Cut() {
	p.send([]byte("\x1DVA0"))
}

// Cash pulses the cash drawer.
func (p *Printer) Cash() {
	p.send(utilInternal.DrawerKick)
}

// Linefeed writes a line end to the printer.
func (p *Printer) Linefeed() {
	p.send([]byte("\n"))
}

// FormfeedN feeds n lines (ESC d n).
func (p *Printer) FormfeedN(n int) {
	if n < 0 || n > 255 {
		logInternal.Warn("invalid feed line count", zap.Int("lines", n))
		return
	}
	p.send([]byte{0x1b, 'd', byte(n)})
}

// SetAlign sets the alignment: "left", "center" or "right".
func (p *Printer) SetAlign(align string) {
	switch align {
	case "left":
		p.send(utilInternal.AlignLeft)
	case "center":
		p.send(utilInternal.AlignCenter)
	case "right":
		p.send(utilInternal.AlignRight)
	default:
		logInternal.Warn("invalid alignment", zap.String("align", align))
		p.send(utilInternal.AlignLeft)
	}
}

// Raster writes bmp as a GS v 0 block. An empty bitmap writes nothing.
func (p *Printer) Raster(bmp imgInternal.Bitmap) {
	p.send(imgInternal.Encode(bmp))
}

// Page prints a full-width rendered page: initialise, centre the raster,
// feed past the tear bar and cut.
func (p *Printer) Page(bmp imgInternal.Bitmap) error {
	if bmp.Empty() {
		return fmt.Errorf("empty page")
	}
	p.Init()
	p.SetAlign("center")
	p.Raster(bmp)
	p.SetAlign("left")
	p.FormfeedN(4)
	p.Cut()
	return p.Err()
}
