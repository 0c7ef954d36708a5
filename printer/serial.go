package printer

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	logInternal "github.com/AlexStarov/escpos-print-agent/log"
)

const DefaultSerialBaud = 9600

// SerialBackend writes to printers on a serial port (COMx, /dev/ttyUSB*,
// /dev/cu.usbmodem*) at 8N1.
type SerialBackend struct {
	baud int

	mu    sync.Mutex
	ports func() ([]string, error)
	open  func(name string, mode *serial.Mode) (serial.Port, error)
}

func NewSerialBackend(baud int) *SerialBackend {
	if baud <= 0 {
		baud = DefaultSerialBaud
	}
	return &SerialBackend{baud: baud, ports: serial.GetPortsList, open: serial.Open}
}

func (b *SerialBackend) Name() string { return KindSerial }

func (b *SerialBackend) Printers(ctx context.Context) ([]string, error) {
	ports, err := b.ports()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	if ports == nil {
		ports = []string{}
	}
	return ports, nil
}

func (b *SerialBackend) Available(ctx context.Context, name string) bool {
	ports, err := b.ports()
	return err == nil && slices.Contains(ports, name)
}

func (b *SerialBackend) SubmitRaw(ctx context.Context, name string, data []byte) error {
	if !b.Available(ctx, name) {
		return fmt.Errorf("serial port %s: %w", name, ErrNotFound)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	mode := &serial.Mode{
		BaudRate: b.baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	port, err := b.open(name, mode)
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", name, err)
	}
	defer func() {
		closeErr := port.Close()
		logInternal.PrintIfErr("serial close", &closeErr)
	}()
	logInternal.Debug("serial port open", zap.String("port", name), zap.Int("baud", b.baud))

	for sent := 0; sent < len(data); {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := port.Write(data[sent:])
		if err != nil {
			return fmt.Errorf("serial write %s: %w", name, err)
		}
		sent += n
	}
	// Close does not wait for the UART to drain.
	if err := port.Drain(); err != nil {
		logInternal.Debug("serial drain", zap.Error(err))
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

func (b *SerialBackend) SubmitPage(ctx context.Context, name, path string) error {
	data, err := rasterPage(path)
	if err != nil {
		return err
	}
	return b.SubmitRaw(ctx, name, data)
}
