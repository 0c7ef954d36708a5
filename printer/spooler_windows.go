//go:build windows

package printer

import (
	"context"
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	printerEnumLocal       = 0x00000002
	printerEnumConnections = 0x00000004
)

var (
	modwinspool          = windows.NewLazySystemDLL("winspool.drv")
	procEnumPrinters     = modwinspool.NewProc("EnumPrintersW")
	procOpenPrinter      = modwinspool.NewProc("OpenPrinterW")
	procClosePrinter     = modwinspool.NewProc("ClosePrinter")
	procStartDocPrinter  = modwinspool.NewProc("StartDocPrinterW")
	procEndDocPrinter    = modwinspool.NewProc("EndDocPrinter")
	procStartPagePrinter = modwinspool.NewProc("StartPagePrinter")
	procEndPagePrinter   = modwinspool.NewProc("EndPagePrinter")
	procWritePrinter     = modwinspool.NewProc("WritePrinter")
)

type docInfo1 struct {
	pDocName    *uint16
	pOutputFile *uint16
	pDatatype   *uint16
}

type printerInfo4 struct {
	pPrinterName *uint16
	pServerName  *uint16
	attributes   uint32
}

// SpoolerBackend prints through the Windows print spooler, sending every
// job with the RAW datatype so ESC/POS bytes reach the printer untouched.
type SpoolerBackend struct{}

func NewSpoolerBackend() *SpoolerBackend {
	return &SpoolerBackend{}
}

func (b *SpoolerBackend) Name() string { return KindSpooler }

// Printers lists local printers and printer connections.
func (b *SpoolerBackend) Printers(ctx context.Context) ([]string, error) {
	flags := uintptr(printerEnumLocal | printerEnumConnections)

	var needed, returned uint32
	r1, _, err := procEnumPrinters.Call(flags, 0, 4, 0, 0,
		uintptr(unsafe.Pointer(&needed)), uintptr(unsafe.Pointer(&returned)))
	if r1 == 0 && !errors.Is(err, windows.ERROR_INSUFFICIENT_BUFFER) {
		return nil, fmt.Errorf("EnumPrinters: %w", err)
	}
	if needed == 0 {
		return []string{}, nil
	}

	buf := make([]byte, needed)
	r1, _, err = procEnumPrinters.Call(flags, 0, 4,
		uintptr(unsafe.Pointer(&buf[0])), uintptr(needed),
		uintptr(unsafe.Pointer(&needed)), uintptr(unsafe.Pointer(&returned)))
	if r1 == 0 {
		return nil, fmt.Errorf("EnumPrinters: %w", err)
	}

	infos := unsafe.Slice((*printerInfo4)(unsafe.Pointer(&buf[0])), returned)
	names := make([]string, 0, returned)
	for _, info := range infos {
		names = append(names, windows.UTF16PtrToString(info.pPrinterName))
	}
	return names, nil
}

func openPrinter(name string) (windows.Handle, error) {
	pname, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return 0, err
	}
	var h windows.Handle
	r1, _, err := procOpenPrinter.Call(uintptr(unsafe.Pointer(pname)), uintptr(unsafe.Pointer(&h)), 0)
	if r1 == 0 {
		return 0, fmt.Errorf("OpenPrinter %q: %w", name, err)
	}
	return h, nil
}

func closePrinter(h windows.Handle) {
	procClosePrinter.Call(uintptr(h))
}

// Available reports whether the spooler can open name.
func (b *SpoolerBackend) Available(ctx context.Context, name string) bool {
	h, err := openPrinter(name)
	if err != nil {
		return false
	}
	closePrinter(h)
	return true
}

// SubmitRaw sends data as one RAW document with a single page.
func (b *SpoolerBackend) SubmitRaw(ctx context.Context, name string, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	h, err := openPrinter(name)
	if err != nil {
		return err
	}
	defer closePrinter(h)

	docName, _ := windows.UTF16PtrFromString("Receipt")
	dataType, _ := windows.UTF16PtrFromString("RAW")
	di := docInfo1{pDocName: docName, pDatatype: dataType}

	r1, _, err := procStartDocPrinter.Call(uintptr(h), 1, uintptr(unsafe.Pointer(&di)))
	if r1 == 0 {
		return fmt.Errorf("StartDocPrinter: %w", err)
	}
	defer procEndDocPrinter.Call(uintptr(h))

	r1, _, err = procStartPagePrinter.Call(uintptr(h))
	if r1 == 0 {
		return fmt.Errorf("StartPagePrinter: %w", err)
	}
	defer procEndPagePrinter.Call(uintptr(h))

	for sent := 0; sent < len(data); {
		var written uint32
		r1, _, err = procWritePrinter.Call(uintptr(h),
			uintptr(unsafe.Pointer(&data[sent])), uintptr(len(data)-sent),
			uintptr(unsafe.Pointer(&written)))
		if r1 == 0 {
			return fmt.Errorf("WritePrinter: %w", err)
		}
		if written == 0 {
			return errors.New("WritePrinter: no progress")
		}
		sent += int(written)
	}
	return nil
}

func (b *SpoolerBackend) SubmitPage(ctx context.Context, name, path string) error {
	data, err := rasterPage(path)
	if err != nil {
		return err
	}
	return b.SubmitRaw(ctx, name, data)
}
