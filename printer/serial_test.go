package printer

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

type fakePort struct {
	serial.Port
	buf    bytes.Buffer
	closed bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	// short writes exercise the send loop
	if len(b) > 3 {
		b = b[:3]
	}
	return p.buf.Write(b)
}

func (p *fakePort) Drain() error { return nil }

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func newFakeSerial(ports []string) (*SerialBackend, *fakePort, *serial.Mode) {
	port := &fakePort{}
	var opened serial.Mode
	b := NewSerialBackend(0)
	b.ports = func() ([]string, error) { return ports, nil }
	b.open = func(name string, mode *serial.Mode) (serial.Port, error) {
		opened = *mode
		return port, nil
	}
	return b, port, &opened
}

func TestSerialSubmitRaw(t *testing.T) {
	b, port, mode := newFakeSerial([]string{"/dev/ttyUSB0"})

	data := []byte("\x1b\x70\x00\x19\xfaTotal: 10\n")
	require.NoError(t, b.SubmitRaw(context.Background(), "/dev/ttyUSB0", data))

	assert.Equal(t, data, port.buf.Bytes())
	assert.True(t, port.closed)
	assert.Equal(t, DefaultSerialBaud, mode.BaudRate)
	assert.Equal(t, 8, mode.DataBits)
	assert.Equal(t, serial.NoParity, mode.Parity)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)
}

func TestSerialUnknownPort(t *testing.T) {
	b, _, _ := newFakeSerial([]string{"COM1"})

	assert.ErrorIs(t, b.SubmitRaw(context.Background(), "COM7", []byte("x")), ErrNotFound)
	assert.False(t, b.Available(context.Background(), "COM7"))
	assert.True(t, b.Available(context.Background(), "COM1"))
}

func TestSerialPrinters(t *testing.T) {
	b, _, _ := newFakeSerial(nil)
	names, err := b.Printers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{}, names)

	b.ports = func() ([]string, error) { return nil, errors.New("no access") }
	_, err = b.Printers(context.Background())
	assert.Error(t, err)
}

func TestSerialCancelled(t *testing.T) {
	b, port, _ := newFakeSerial([]string{"COM1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, b.SubmitRaw(ctx, "COM1", []byte("abc")), context.Canceled)
	assert.Zero(t, port.buf.Len())
}
