package receipt

import (
	"context"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"

	logInternal "github.com/AlexStarov/escpos-print-agent/log"
	"github.com/AlexStarov/escpos-print-agent/printer"
	utilInternal "github.com/AlexStarov/escpos-print-agent/util"
)

var (
	// ErrTransport wraps every failure reported by the printer backend.
	ErrTransport = errors.New("print transport failed")
	// ErrNoPrinter is returned when no printer has been selected.
	ErrNoPrinter = errors.New("no printer selected")
)

// TestPage is what TestPrint sends.
const TestPage = "Success\n"

// Service runs jobs through the pipeline and submits them to a backend.
// Jobs are not retried.
type Service struct {
	backend  printer.Backend
	pipeline *Pipeline
	spool    *Spool
}

func NewService(backend printer.Backend, pipeline *Pipeline, spool *Spool) *Service {
	return &Service{backend: backend, pipeline: pipeline, spool: spool}
}

// Backend returns the backend jobs are submitted to.
func (s *Service) Backend() printer.Backend {
	return s.backend
}

// Print renders job and submits it to printerName. It returns the job id.
func (s *Service) Print(ctx context.Context, printerName string, job Job) (string, error) {
	if printerName == "" {
		return "", ErrNoPrinter
	}
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("job id: %w", err)
	}
	job.ID = id

	log := logInternal.L().With(zap.String("job", id), zap.String("printer", printerName), zap.String("mode", string(job.Mode)))
	start := time.Now()

	out := s.pipeline.Render(job)
	switch out.Mode {
	case ModeRendered:
		err = s.spool.Submit(out.Page, func(path string) error {
			if err := s.backend.SubmitPage(ctx, printerName, path); err != nil {
				return fmt.Errorf("%w: %w", ErrTransport, err)
			}
			return nil
		})
	default:
		err = s.submitRaw(ctx, printerName, out.Raw)
	}
	if err != nil {
		log.Error("print failed", zap.Error(err))
		return id, err
	}

	log.Info("printed", zap.Duration("took", time.Since(start)), zap.Int("lines", len(job.Lines())))
	return id, nil
}

// OpenDrawer kicks the cash drawer attached to printerName.
func (s *Service) OpenDrawer(ctx context.Context, printerName string) error {
	if printerName == "" {
		return ErrNoPrinter
	}
	return s.submitRaw(ctx, printerName, utilInternal.DrawerKick)
}

// TestPrint prints TestPage on printerName.
func (s *Service) TestPrint(ctx context.Context, printerName string) error {
	if printerName == "" {
		return ErrNoPrinter
	}
	return s.submitRaw(ctx, printerName, []byte(TestPage))
}

func (s *Service) submitRaw(ctx context.Context, printerName string, data []byte) error {
	if err := s.backend.SubmitRaw(ctx, printerName, data); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return nil
}
