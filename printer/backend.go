package printer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"os/exec"
	"runtime"

	imgInternal "github.com/AlexStarov/escpos-print-agent/image"
)

var (
	// ErrUnsupported is returned by backends that cannot run on this platform.
	ErrUnsupported = errors.New("printer backend not supported on this platform")
	// ErrNotFound is returned when the named printer does not exist.
	ErrNotFound = errors.New("printer not found")
)

// Backend is the capability set the agent needs from a printing system.
// Printer names are backend specific: a queue name for lp and LPD, a
// Windows printer name, a vvvv:pppp USB id or a serial port path.
type Backend interface {
	Name() string
	Printers(ctx context.Context) ([]string, error)
	Available(ctx context.Context, name string) bool
	// SubmitRaw sends data to the printer unmodified, as one job.
	SubmitRaw(ctx context.Context, name string, data []byte) error
	// SubmitPage prints the PNG page at path.
	SubmitPage(ctx context.Context, name, path string) error
}

// Backend kinds accepted by Select.
const (
	KindAuto    = "auto"
	KindCommand = "command"
	KindSpooler = "spooler"
	KindLPD     = "lpd"
	KindUSB     = "usb"
	KindSerial  = "serial"
)

// Options configures Select.
type Options struct {
	Kind         string
	LPDAddr      string
	LPDQueue     string
	SerialBaud   int
	PaperWidthMM int
}

var (
	lookPath = exec.LookPath
	goos     = runtime.GOOS
)

// Select builds the backend named by opts.Kind. "auto" picks the Windows
// spooler on Windows and lp elsewhere, when lp is installed.
func Select(opts Options) (Backend, error) {
	switch opts.Kind {
	case "", KindAuto:
		if goos == "windows" {
			return NewSpoolerBackend(), nil
		}
		if _, err := lookPath("lp"); err == nil {
			return NewCommandBackend(opts.PaperWidthMM, nil), nil
		}
		return nil, fmt.Errorf("no printing system found: lp is not on PATH")
	case KindCommand:
		return NewCommandBackend(opts.PaperWidthMM, nil), nil
	case KindSpooler:
		return NewSpoolerBackend(), nil
	case KindLPD:
		if opts.LPDAddr == "" {
			return nil, fmt.Errorf("lpd backend needs an address")
		}
		return NewLPDBackend(opts.LPDAddr, opts.LPDQueue), nil
	case KindUSB:
		return NewUSBBackend(), nil
	case KindSerial:
		return NewSerialBackend(opts.SerialBaud), nil
	default:
		return nil, fmt.Errorf("unknown printer backend %q", opts.Kind)
	}
}

// rasterPage turns the PNG page at path into a ready-to-send ESC/POS job
// for backends that only accept raw data.
func rasterPage(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}

	bmp := imgInternal.NewConverter(imgInternal.DefaultThreshold).ToBitmap(img)
	var buf bytes.Buffer
	if err := NewPrinter(&buf).Page(bmp); err != nil {
		return nil, fmt.Errorf("rasterize page: %w", err)
	}
	return buf.Bytes(), nil
}
