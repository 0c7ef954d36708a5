package server

import (
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	logInternal "github.com/AlexStarov/escpos-print-agent/log"
	"github.com/AlexStarov/escpos-print-agent/receipt"
)

func errorJSON(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"error": msg})
}

// selected returns the saved printer name, "" when none or unreadable.
func (s *Server) selected() string {
	name, err := s.selection.Load()
	if err != nil {
		logInternal.Error("load selected printer", zap.Error(err))
		return ""
	}
	return name
}

func nullable(name string) any {
	if name == "" {
		return nil
	}
	return name
}

func (s *Server) listPrinters(c *gin.Context) {
	names, err := s.service.Backend().Printers(c.Request.Context())
	if err != nil {
		logInternal.Error("enumerate printers", zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, "Failed to enumerate printers")
		return
	}
	c.JSON(http.StatusOK, gin.H{"printers": names})
}

func (s *Server) getSelected(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"selected": nullable(s.selected())})
}

type selectRequest struct {
	Name string `json:"name"`
}

func (s *Server) selectPrinter(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		errorJSON(c, http.StatusBadRequest, "Printer name required")
		return
	}

	names, err := s.service.Backend().Printers(c.Request.Context())
	if err != nil {
		logInternal.Error("enumerate printers", zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, "Failed to enumerate printers")
		return
	}
	if !slices.Contains(names, req.Name) {
		errorJSON(c, http.StatusNotFound, fmt.Sprintf("Printer '%s' not found", req.Name))
		return
	}

	if err := s.selection.Save(req.Name); err != nil {
		logInternal.Error("save selected printer", zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, "Failed to save selection")
		return
	}
	logInternal.Info("printer selected", zap.String("printer", req.Name))
	c.JSON(http.StatusOK, gin.H{"selected": req.Name})
}

func (s *Server) status(c *gin.Context) {
	name := s.selected()
	connected := name != "" && s.service.Backend().Available(c.Request.Context(), name)
	c.JSON(http.StatusOK, gin.H{"selected": nullable(name), "connected": connected})
}

func (s *Server) openDrawer(c *gin.Context) {
	err := s.service.OpenDrawer(c.Request.Context(), s.selected())
	if s.fail(c, err, "Failed to open drawer") {
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": "drawer opened"})
}

func (s *Server) testPrint(c *gin.Context) {
	err := s.service.TestPrint(c.Request.Context(), s.selected())
	if s.fail(c, err, "Failed to test print") {
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": "test printed"})
}

// print handles a receipt job. A non-empty mode overrides the request
// and the configured default.
func (s *Server) print(mode receipt.Mode) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := s.selected()
		if name == "" {
			errorJSON(c, http.StatusNotFound, "No printer selected")
			return
		}

		var req receipt.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				errorJSON(c, http.StatusRequestEntityTooLarge, "Request body too large")
				return
			}
			errorJSON(c, http.StatusBadRequest, "Invalid JSON body")
			return
		}

		defaultMode := s.defaultMode
		if mode != "" {
			req.Mode = ""
			defaultMode = mode
		}
		job, err := receipt.ResolveJob(req, defaultMode)
		if err != nil {
			errorJSON(c, http.StatusBadRequest, err.Error())
			return
		}

		id, err := s.service.Print(c.Request.Context(), name, job)
		if s.fail(c, err, "Failed to print") {
			return
		}
		c.JSON(http.StatusOK, gin.H{"result": "success", "job": id, "mode": job.Mode})
	}
}

func (s *Server) initialize(c *gin.Context) {
	if err := s.selection.Clear(); err != nil {
		logInternal.Error("clear selection", zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, "Failed to initialize")
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": "initialized"})
}

// fail writes the error response for err and reports whether it did.
func (s *Server) fail(c *gin.Context, err error, msg string) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, receipt.ErrNoPrinter):
		errorJSON(c, http.StatusNotFound, "No printer selected")
	default:
		logInternal.Error(msg, zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, msg)
	}
	return true
}
