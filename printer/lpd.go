package printer

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	logInternal "github.com/AlexStarov/escpos-print-agent/log"
)

const (
	defaultLPDQueue = "lp"
	lpdAckTimeout   = 5 * time.Second
)

// LPDBackend submits jobs to a network print queue over RFC 1179. The
// one queue it talks to is its only printer.
type LPDBackend struct {
	addr  string
	queue string

	dialer     net.Dialer
	ackTimeout time.Duration
}

func NewLPDBackend(addr, queue string) *LPDBackend {
	if queue == "" {
		queue = defaultLPDQueue
	}
	return &LPDBackend{
		addr:       addr,
		queue:      queue,
		dialer:     net.Dialer{Timeout: 5 * time.Second},
		ackTimeout: lpdAckTimeout,
	}
}

func (b *LPDBackend) Name() string { return KindLPD }

func (b *LPDBackend) Printers(ctx context.Context) ([]string, error) {
	return []string{b.queue}, nil
}

// Available reports whether name is the configured queue and its daemon
// accepts connections.
func (b *LPDBackend) Available(ctx context.Context, name string) bool {
	if name != b.queue {
		return false
	}
	conn, err := b.dialer.DialContext(ctx, "tcp", b.addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (b *LPDBackend) SubmitRaw(ctx context.Context, name string, data []byte) error {
	if name != b.queue {
		return fmt.Errorf("lpd queue %q: %w", name, ErrNotFound)
	}

	conn, err := b.dialer.DialContext(ctx, "tcp", b.addr)
	if err != nil {
		return fmt.Errorf("lpd dial %s: %w", b.addr, err)
	}
	defer func() {
		closeErr := conn.Close()
		logInternal.PrintIfErr("lpd close", &closeErr)
	}()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	return b.sendJob(conn, data)
}

func (b *LPDBackend) SubmitPage(ctx context.Context, name, path string) error {
	data, err := rasterPage(path)
	if err != nil {
		return err
	}
	return b.SubmitRaw(ctx, name, data)
}

func (b *LPDBackend) sendJob(conn net.Conn, data []byte) error {
	host, _ := os.Hostname()
	if host == "" {
		host = "localhost"
	}
	if i := strings.IndexByte(host, '.'); i > 0 {
		host = host[:i]
	}
	user := os.Getenv("USER")
	if user == "" {
		user = "print-agent"
	}

	jobID := int(time.Now().UnixNano() % 1000)
	jobName := fmt.Sprintf("receipt-%03d", jobID)
	cfName := fmt.Sprintf("cfA%03d%s", jobID, host)
	dfName := fmt.Sprintf("dfA%03d%s", jobID, host)

	// H host, P user, J job name, N source name, l print literally, U unlink
	control := fmt.Sprintf("H%s\nP%s\nJ%s\nN%s\nl%s\nU%s\n",
		host, user, jobName, jobName, dfName, dfName)

	logInternal.Debug("lpd job", zap.String("queue", b.queue), zap.String("job", jobName), zap.Int("bytes", len(data)))

	if err := b.requestPrintJob(conn); err != nil {
		return fmt.Errorf("lpd receive job: %w", err)
	}
	if err := b.sendFile(conn, 0x02, cfName, []byte(control)); err != nil {
		return fmt.Errorf("lpd control file: %w", err)
	}
	if err := b.sendFile(conn, 0x03, dfName, data); err != nil {
		return fmt.Errorf("lpd data file: %w", err)
	}
	return nil
}

// requestPrintJob sends "\x02<queue>\n".
func (b *LPDBackend) requestPrintJob(conn net.Conn) error {
	if err := writeAll(conn, []byte("\x02"+b.queue+"\n")); err != nil {
		return err
	}
	return b.readAck(conn)
}

// sendFile sends "<cmd><size> <name>\n", the file and a zero byte.
func (b *LPDBackend) sendFile(conn net.Conn, cmd byte, name string, body []byte) error {
	header := append([]byte{cmd}, strconv.Itoa(len(body))+" "+name+"\n"...)
	if err := writeAll(conn, header); err != nil {
		return err
	}
	if err := b.readAck(conn); err != nil {
		return err
	}
	if err := writeAll(conn, body); err != nil {
		return err
	}
	if err := writeAll(conn, []byte{0x00}); err != nil {
		return err
	}
	return b.readAck(conn)
}

func (b *LPDBackend) readAck(conn net.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(b.ackTimeout))

	ack := make([]byte, 1)
	n, err := conn.Read(ack)
	if err != nil {
		return fmt.Errorf("read ack: %w", err)
	}
	if n != 1 || ack[0] != 0x00 {
		return fmt.Errorf("not acknowledged (0x%02x)", ack[0])
	}
	return nil
}

func writeAll(conn net.Conn, b []byte) error {
	sent := 0
	for sent < len(b) {
		n, err := conn.Write(b[sent:])
		if err != nil {
			return err
		}
		sent += n
	}
	return nil
}
