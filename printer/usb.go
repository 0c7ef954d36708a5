package printer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/gousb"
	"go.uber.org/zap"

	logInternal "github.com/AlexStarov/escpos-print-agent/log"
)

// USBBackend talks to USB printer-class devices directly through libusb.
// Printers are named by "vvvv:pppp", vendor and product id in hex.
type USBBackend struct {
	mu sync.Mutex
}

func NewUSBBackend() *USBBackend {
	return &USBBackend{}
}

func (b *USBBackend) Name() string { return KindUSB }

// ParseUSBName splits a "vvvv:pppp" printer name into its ids.
func ParseUSBName(name string) (vid, pid gousb.ID, err error) {
	v, p, ok := strings.Cut(name, ":")
	if !ok {
		return 0, 0, fmt.Errorf("usb printer %q: want vvvv:pppp", name)
	}
	vv, err := strconv.ParseUint(v, 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("usb printer %q: vendor id: %w", name, err)
	}
	pp, err := strconv.ParseUint(p, 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("usb printer %q: product id: %w", name, err)
	}
	return gousb.ID(vv), gousb.ID(pp), nil
}

func usbName(desc *gousb.DeviceDesc) string {
	return fmt.Sprintf("%s:%s", desc.Vendor, desc.Product)
}

// isPrinter reports whether any configuration of desc has a printer-class
// interface.
func isPrinter(desc *gousb.DeviceDesc) bool {
	for _, cfg := range desc.Configs {
		for _, iface := range cfg.Interfaces {
			for _, alt := range iface.AltSettings {
				if alt.Class == gousb.ClassPrinter {
					return true
				}
			}
		}
	}
	return false
}

// Printers lists attached printer-class devices without opening them.
func (b *USBBackend) Printers(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	usb := gousb.NewContext()
	defer usb.Close()

	names := []string{}
	_, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if isPrinter(desc) {
			names = append(names, usbName(desc))
		}
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("usb enumerate: %w", err)
	}
	return names, nil
}

func (b *USBBackend) Available(ctx context.Context, name string) bool {
	if _, _, err := ParseUSBName(name); err != nil {
		return false
	}
	names, err := b.Printers(ctx)
	if err != nil {
		return false
	}
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func (b *USBBackend) SubmitRaw(ctx context.Context, name string, data []byte) error {
	vid, pid, err := ParseUSBName(name)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	usb := gousb.NewContext()
	defer usb.Close()

	dev, err := usb.OpenDeviceWithVIDPID(vid, pid)
	if err != nil {
		return fmt.Errorf("usb open %s: %w", name, err)
	}
	if dev == nil {
		return fmt.Errorf("usb %s: %w", name, ErrNotFound)
	}
	defer dev.Close()

	if err := dev.SetAutoDetach(true); err != nil {
		logInternal.Debug("usb auto detach unavailable", zap.Error(err))
	}

	out, done, err := openPrinterOut(dev)
	if err != nil {
		return fmt.Errorf("usb %s: %w", name, err)
	}
	defer done()

	for sent := 0; sent < len(data); {
		n, err := out.WriteContext(ctx, data[sent:])
		if err != nil {
			return fmt.Errorf("usb write %s: %w", name, err)
		}
		sent += n
	}
	return nil
}

func (b *USBBackend) SubmitPage(ctx context.Context, name, path string) error {
	data, err := rasterPage(path)
	if err != nil {
		return err
	}
	return b.SubmitRaw(ctx, name, data)
}

// openPrinterOut claims the printer interface of dev and returns its bulk
// OUT endpoint with a func releasing the interface and config.
func openPrinterOut(dev *gousb.Device) (*gousb.OutEndpoint, func(), error) {
	cfgNum, err := dev.ActiveConfigNum()
	if err != nil {
		return nil, nil, fmt.Errorf("active config: %w", err)
	}
	cfg, err := dev.Config(cfgNum)
	if err != nil {
		return nil, nil, fmt.Errorf("config %d: %w", cfgNum, err)
	}

	for _, ifDesc := range cfg.Desc.Interfaces {
		for _, alt := range ifDesc.AltSettings {
			if alt.Class != gousb.ClassPrinter {
				continue
			}
			iface, err := cfg.Interface(ifDesc.Number, alt.Alternate)
			if err != nil {
				cfg.Close()
				return nil, nil, fmt.Errorf("claim interface: %w", err)
			}
			for _, ep := range alt.Endpoints {
				if ep.Direction != gousb.EndpointDirectionOut {
					continue
				}
				out, err := iface.OutEndpoint(ep.Number)
				if err != nil {
					continue
				}
				return out, func() { iface.Close(); cfg.Close() }, nil
			}
			iface.Close()
		}
	}
	cfg.Close()
	return nil, nil, errors.New("no printer OUT endpoint")
}
