// Package server exposes the print agent over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	logInternal "github.com/AlexStarov/escpos-print-agent/log"
	"github.com/AlexStarov/escpos-print-agent/receipt"
)

// MaxBodyBytes bounds request bodies; logos arrive inline as base64.
const MaxBodyBytes = 16 << 20

const shutdownTimeout = 5 * time.Second

// Selection persists the selected printer.
type Selection interface {
	Load() (string, error)
	Save(name string) error
	Clear() error
}

// Options configures New.
type Options struct {
	Address     string
	DefaultMode receipt.Mode
}

// Server is the HTTP front end of the agent.
type Server struct {
	service     *receipt.Service
	selection   Selection
	defaultMode receipt.Mode

	address  string
	engine   *gin.Engine
	httpSrv  *http.Server
	listener net.Listener
	mu       sync.Mutex
	running  bool
	wg       sync.WaitGroup
}

// New creates a new server instance
func New(service *receipt.Service, selection Selection, opts Options) *Server {
	if opts.DefaultMode == "" {
		opts.DefaultMode = receipt.ModeRaw
	}
	s := &Server{
		service:     service,
		selection:   selection,
		defaultMode: opts.DefaultMode,
		address:     opts.Address,
	}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), limitBody(MaxBodyBytes))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		MaxAge:          12 * time.Hour,
	}))

	r.GET("/printers", s.listPrinters)
	r.GET("/selected", s.getSelected)
	r.POST("/select-printer", s.selectPrinter)
	r.GET("/status", s.status)
	r.POST("/print/drawer", s.openDrawer)
	r.POST("/print/test", s.testPrint)
	r.POST("/print", s.print(""))
	r.POST("/print/raw", s.print(receipt.ModeRaw))
	r.POST("/print/rendered", s.print(receipt.ModeRendered))
	r.POST("/initialize", s.initialize)
	return r
}

func (s *Server) listen() error {
	if s.running {
		return fmt.Errorf("server already running")
	}
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener
	s.httpSrv = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.running = true
	logInternal.Info("server listening", zap.String("addr", listener.Addr().String()),
		zap.String("backend", s.service.Backend().Name()))
	return nil
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if err := s.listen(); err != nil {
		s.mu.Unlock()
		return err
	}
	srv, ln := s.httpSrv, s.listener
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	}
	return nil
}

// StartAsync starts serving in a goroutine.
func (s *Server) StartAsync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.listen(); err != nil {
		return err
	}
	srv, ln := s.httpSrv, s.listener
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logInternal.Error("server stopped", zap.Error(err))
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}
	}()
	return nil
}

// Stop drains in-flight requests and stops the server.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	srv := s.httpSrv
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(ctx)
	s.wg.Wait()

	logInternal.Info("server stopped")
	return err
}

// IsRunning returns whether the server is running
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Address returns the bound address while running, else the configured one.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.address
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logInternal.Info("http",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("client", c.ClientIP()),
		)
	}
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
