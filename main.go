package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/AlexStarov/escpos-print-agent/config"
	logInternal "github.com/AlexStarov/escpos-print-agent/log"
	"github.com/AlexStarov/escpos-print-agent/printer"
	"github.com/AlexStarov/escpos-print-agent/receipt"
	"github.com/AlexStarov/escpos-print-agent/server"
	"github.com/AlexStarov/escpos-print-agent/store"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "print-agent:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	if err := logInternal.Init(logInternal.Options{Dir: cfg.Log.Dir, Debug: cfg.Log.Debug}); err != nil {
		return err
	}
	defer logInternal.Sync()

	if !cfg.Log.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	backend, err := printer.Select(printer.Options{
		Kind:         cfg.Printer.Backend,
		LPDAddr:      cfg.Printer.LPDAddr,
		LPDQueue:     cfg.Printer.LPDQueue,
		SerialBaud:   cfg.Printer.SerialBaud,
		PaperWidthMM: cfg.Printer.PaperWidthMM,
	})
	if err != nil {
		logInternal.Error("select printer backend", zap.Error(err))
		return err
	}

	mode, err := receipt.ParseMode(cfg.Render.Mode)
	if err != nil {
		return err
	}

	layout := receipt.Layout{
		PageWidth:     cfg.Render.PageWidth,
		LogoMaxWidth:  cfg.Render.LogoMaxWidth,
		LineHeight:    cfg.Render.LineHeight,
		PaddingTop:    cfg.Render.PaddingTop,
		PaddingBottom: cfg.Render.PaddingBottom,
		LogoSpacing:   cfg.Render.LogoSpacing,
		MarginLeft:    cfg.Render.MarginLeft,
	}
	pipeline := receipt.NewPipeline(receipt.PipelineOptions{
		RawLogoMaxWidth: cfg.Image.MaxWidth,
		Threshold:       cfg.Image.Threshold,
		MaxPixels:       cfg.Image.MaxPixels,
	}, receipt.NewCompositor(layout, cfg.Render.FontPath, cfg.Render.FontSize))
	spool := &receipt.Spool{Dir: cfg.Render.SpoolDir, Retain: cfg.Render.RetainPages}

	svc := receipt.NewService(backend, pipeline, spool)
	srv := server.New(svc, store.NewFileStore(cfg.DataDir), server.Options{
		Address:     cfg.HTTP.Addr,
		DefaultMode: mode,
	})

	logInternal.Info("starting print agent",
		zap.String("backend", backend.Name()),
		zap.String("mode", string(mode)),
		zap.String("data_dir", cfg.DataDir))

	if err := srv.StartAsync(); err != nil {
		logInternal.Error("start server", zap.Error(err))
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	s := <-sig
	logInternal.Info("shutting down", zap.String("signal", s.String()))

	return srv.Stop()
}
