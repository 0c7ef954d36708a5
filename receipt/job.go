// Package receipt turns print requests into printer jobs: raw ESC/POS
// byte streams or rendered page images.
package receipt

import (
	"errors"
	"fmt"
	"strings"

	imgInternal "github.com/AlexStarov/escpos-print-agent/image"
)

// Mode selects how a job reaches the printer.
type Mode string

const (
	// ModeRaw sends ESC/POS bytes straight to the printer.
	ModeRaw Mode = "raw"
	// ModeRendered draws the receipt onto a page image and prints that.
	ModeRendered Mode = "rendered"
)

// ParseMode accepts "raw" or "rendered", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeRaw, ModeRendered:
		return m, nil
	}
	return "", fmt.Errorf("unknown print mode %q", s)
}

// ErrValidation is matched by every ValidationError.
var ErrValidation = errors.New("invalid print request")

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid print request: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Request is the JSON body of a print call.
type Request struct {
	PlainTextReceipt string `json:"plainTextReceipt"`
	// Data is the legacy base64 receipt, sent to the printer verbatim.
	Data      string `json:"data"`
	Logo      string `json:"logo"`
	PrintLogo bool   `json:"printLogo"`
	Mode      string `json:"mode"`
}

// Job is one validated receipt.
type Job struct {
	ID string
	// Text is the receipt as valid UTF-8, for drawing.
	Text string
	// Payload is emitted as-is on the raw path.
	Payload     []byte
	Logo        string
	IncludeLogo bool
	Mode        Mode
}

// Lines splits the receipt text into rows.
func (j Job) Lines() []string {
	return SplitLines(j.Text)
}

// ResolveJob validates req and builds its Job. An empty req.Mode selects
// defaultMode.
func ResolveJob(req Request, defaultMode Mode) (Job, error) {
	job := Job{
		Mode:        defaultMode,
		Logo:        req.Logo,
		IncludeLogo: req.PrintLogo && req.Logo != "",
	}

	if req.Mode != "" {
		m, err := ParseMode(req.Mode)
		if err != nil {
			return Job{}, &ValidationError{Field: "mode", Reason: err.Error()}
		}
		job.Mode = m
	}

	switch {
	case req.PlainTextReceipt != "":
		job.Payload = []byte(req.PlainTextReceipt)
	case req.Data != "":
		data, err := imgInternal.DecodeBase64(req.Data)
		if err != nil {
			return Job{}, &ValidationError{Field: "data", Reason: "not base64"}
		}
		job.Payload = data
	default:
		return Job{}, &ValidationError{Field: "plainTextReceipt", Reason: "no receipt text provided"}
	}

	job.Text = strings.ToValidUTF8(string(job.Payload), "")
	if strings.TrimSpace(job.Text) == "" {
		return Job{}, &ValidationError{Field: "plainTextReceipt", Reason: "receipt text is empty"}
	}
	return job, nil
}

// SplitLines splits text into lines. CRLF and CR count as LF, and a
// final line break does not start another line.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	if text == "" {
		return []string{}
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}
