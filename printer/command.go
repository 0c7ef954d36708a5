package printer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"os/exec"
	"strings"

	logInternal "github.com/AlexStarov/escpos-print-agent/log"
	"go.uber.org/zap"
)

// DefaultPaperWidthMM is the width of a 58 mm roll.
const DefaultPaperWidthMM = 58

// Runner runs an external command with stdin and returns its combined
// output.
type Runner func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	return cmd.CombinedOutput()
}

// CommandBackend prints through the CUPS/System V command line tools
// lp and lpstat.
type CommandBackend struct {
	run          Runner
	paperWidthMM int
}

// NewCommandBackend returns a backend that shells out through run, or
// through os/exec when run is nil.
func NewCommandBackend(paperWidthMM int, run Runner) *CommandBackend {
	if paperWidthMM <= 0 {
		paperWidthMM = DefaultPaperWidthMM
	}
	if run == nil {
		run = execRunner
	}
	return &CommandBackend{run: run, paperWidthMM: paperWidthMM}
}

func (b *CommandBackend) Name() string { return KindCommand }

// Printers parses `lpstat -p`, whose lines read "printer NAME is idle...".
func (b *CommandBackend) Printers(ctx context.Context) ([]string, error) {
	out, err := b.run(ctx, nil, "lpstat", "-p")
	if err != nil {
		return nil, fmt.Errorf("lpstat: %w: %s", err, bytes.TrimSpace(out))
	}

	names := []string{}
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "printer ") {
			continue
		}
		if fields := strings.Fields(line); len(fields) >= 2 {
			names = append(names, fields[1])
		}
	}
	return names, sc.Err()
}

func (b *CommandBackend) Available(ctx context.Context, name string) bool {
	if name == "" {
		return false
	}
	_, err := b.run(ctx, nil, "lpstat", "-p", name)
	return err == nil
}

func (b *CommandBackend) SubmitRaw(ctx context.Context, name string, data []byte) error {
	out, err := b.run(ctx, data, "lp", "-d", name, "-o", "raw")
	if err != nil {
		return fmt.Errorf("lp: %w: %s", err, bytes.TrimSpace(out))
	}
	logInternal.Debug("lp accepted raw job", zap.String("printer", name), zap.ByteString("lp", bytes.TrimSpace(out)))
	return nil
}

// SubmitPage prints the page at its natural aspect on a custom media size
// as wide as the roll.
func (b *CommandBackend) SubmitPage(ctx context.Context, name, path string) error {
	media, err := b.media(path)
	if err != nil {
		return err
	}
	out, err := b.run(ctx, nil, "lp", "-d", name, "-o", media, path)
	if err != nil {
		return fmt.Errorf("lp: %w: %s", err, bytes.TrimSpace(out))
	}
	return nil
}

func (b *CommandBackend) media(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return "", fmt.Errorf("read page size: %w", err)
	}
	if cfg.Width <= 0 {
		return "", fmt.Errorf("page has no width")
	}
	heightMM := int(math.Ceil(float64(b.paperWidthMM) * float64(cfg.Height) / float64(cfg.Width)))
	return fmt.Sprintf("media=Custom.%dx%dmm", b.paperWidthMM, heightMM), nil
}
