//go:build !windows

package printer

import "context"

// SpoolerBackend is only functional on Windows.
type SpoolerBackend struct{}

func NewSpoolerBackend() *SpoolerBackend {
	return &SpoolerBackend{}
}

func (b *SpoolerBackend) Name() string { return KindSpooler }

func (b *SpoolerBackend) Printers(ctx context.Context) ([]string, error) {
	return nil, ErrUnsupported
}

func (b *SpoolerBackend) Available(ctx context.Context, name string) bool { return false }

func (b *SpoolerBackend) SubmitRaw(ctx context.Context, name string, data []byte) error {
	return ErrUnsupported
}

func (b *SpoolerBackend) SubmitPage(ctx context.Context, name, path string) error {
	return ErrUnsupported
}
