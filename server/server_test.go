package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	imgInternal "github.com/AlexStarov/escpos-print-agent/image"
	"github.com/AlexStarov/escpos-print-agent/receipt"
	"github.com/AlexStarov/escpos-print-agent/store"
	utilInternal "github.com/AlexStarov/escpos-print-agent/util"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type MockBackend struct {
	mu       sync.Mutex
	printers []string
	raw      [][]byte
	pages    []string
	err      error
	listErr  error
}

func (m *MockBackend) Name() string { return "mock" }

func (m *MockBackend) Printers(ctx context.Context) ([]string, error) {
	return m.printers, m.listErr
}

func (m *MockBackend) Available(ctx context.Context, name string) bool {
	for _, p := range m.printers {
		if p == name {
			return true
		}
	}
	return false
}

func (m *MockBackend) SubmitRaw(ctx context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw = append(m.raw, append([]byte(nil), data...))
	return m.err
}

func (m *MockBackend) SubmitPage(ctx context.Context, name, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages = append(m.pages, path)
	return m.err
}

type fixture struct {
	backend *MockBackend
	store   *store.FileStore
	server  *Server
}

func newFixture(t *testing.T, mode receipt.Mode) *fixture {
	backend := &MockBackend{printers: []string{"TM_T20", "Kitchen"}}
	pipeline := receipt.NewPipeline(receipt.PipelineOptions{Threshold: imgInternal.DefaultThreshold},
		receipt.NewCompositor(receipt.DefaultLayout(), "", 0))
	svc := receipt.NewService(backend, pipeline, &receipt.Spool{Dir: t.TempDir()})
	st := store.NewFileStore(t.TempDir())
	return &fixture{
		backend: backend,
		store:   st,
		server:  New(svc, st, Options{Address: "127.0.0.1:0", DefaultMode: mode}),
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func (f *fixture) selectPrinter(t *testing.T, name string) {
	t.Helper()
	require.NoError(t, f.store.Save(name))
}

func TestNewServer(t *testing.T) {
	f := newFixture(t, "")
	assert.Equal(t, "127.0.0.1:0", f.server.Address())
	assert.False(t, f.server.IsRunning())
	assert.Equal(t, receipt.ModeRaw, f.server.defaultMode)
}

func TestListPrinters(t *testing.T) {
	f := newFixture(t, receipt.ModeRaw)

	code, body := f.do(t, http.MethodGet, "/printers", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"TM_T20", "Kitchen"}, body["printers"])

	f.backend.listErr = errors.New("lpstat missing")
	code, body = f.do(t, http.MethodGet, "/printers", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Failed to enumerate printers", body["error"])
}

func TestSelectPrinter(t *testing.T) {
	f := newFixture(t, receipt.ModeRaw)

	code, body := f.do(t, http.MethodGet, "/selected", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["selected"])

	code, body = f.do(t, http.MethodPost, "/select-printer", `{"name":"Kitchen"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Kitchen", body["selected"])

	name, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, "Kitchen", name)

	code, body = f.do(t, http.MethodGet, "/selected", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Kitchen", body["selected"])
}

func TestSelectPrinterErrors(t *testing.T) {
	f := newFixture(t, receipt.ModeRaw)

	testCases := []struct {
		name string
		body string
		code int
	}{
		{"empty body", "", http.StatusBadRequest},
		{"no name", `{}`, http.StatusBadRequest},
		{"bad json", `{"name":`, http.StatusBadRequest},
		{"unknown printer", `{"name":"Bar"}`, http.StatusNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := f.do(t, http.MethodPost, "/select-printer", tc.body)
			assert.Equal(t, tc.code, code)
			assert.NotEmpty(t, body["error"])
		})
	}

	name, err := f.store.Load()
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, receipt.ModeRaw)

	code, body := f.do(t, http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["selected"])
	assert.Equal(t, false, body["connected"])

	f.selectPrinter(t, "TM_T20")
	_, body = f.do(t, http.MethodGet, "/status", "")
	assert.Equal(t, "TM_T20", body["selected"])
	assert.Equal(t, true, body["connected"])

	f.selectPrinter(t, "Unplugged")
	_, body = f.do(t, http.MethodGet, "/status", "")
	assert.Equal(t, "Unplugged", body["selected"])
	assert.Equal(t, false, body["connected"])
}

func TestPrintRequiresSelection(t *testing.T) {
	f := newFixture(t, receipt.ModeRaw)

	for _, path := range []string{"/print", "/print/raw", "/print/rendered", "/print/drawer", "/print/test"} {
		code, body := f.do(t, http.MethodPost, path, `{"plainTextReceipt":"x"}`)
		assert.Equal(t, http.StatusNotFound, code, path)
		assert.Equal(t, "No printer selected", body["error"], path)
	}
	assert.Empty(t, f.backend.raw)
	assert.Empty(t, f.backend.pages)
}

func TestPrintRaw(t *testing.T) {
	f := newFixture(t, receipt.ModeRaw)
	f.selectPrinter(t, "TM_T20")

	code, body := f.do(t, http.MethodPost, "/print", `{"plainTextReceipt":"Total: 10\n"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "success", body["result"])
	assert.Equal(t, "raw", body["mode"])
	assert.Len(t, body["job"], 21)

	require.Len(t, f.backend.raw, 1)
	assert.Equal(t, append(append([]byte{}, utilInternal.DrawerKick...), "Total: 10\n"...), f.backend.raw[0])
}

func TestPrintModes(t *testing.T) {
	testCases := []struct {
		name        string
		defaultMode receipt.Mode
		path        string
		body        string
		wantMode    string
	}{
		{"default raw", receipt.ModeRaw, "/print", `{"plainTextReceipt":"a"}`, "raw"},
		{"default rendered", receipt.ModeRendered, "/print", `{"plainTextReceipt":"a"}`, "rendered"},
		{"request mode", receipt.ModeRaw, "/print", `{"plainTextReceipt":"a","mode":"rendered"}`, "rendered"},
		{"forced raw", receipt.ModeRendered, "/print/raw", `{"plainTextReceipt":"a","mode":"rendered"}`, "raw"},
		{"forced rendered", receipt.ModeRaw, "/print/rendered", `{"plainTextReceipt":"a","mode":"raw"}`, "rendered"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.defaultMode)
			f.selectPrinter(t, "TM_T20")

			code, body := f.do(t, http.MethodPost, tc.path, tc.body)
			require.Equal(t, http.StatusOK, code, body)
			assert.Equal(t, tc.wantMode, body["mode"])
			if tc.wantMode == "rendered" {
				assert.Len(t, f.backend.pages, 1)
				assert.Empty(t, f.backend.raw)
			} else {
				assert.Len(t, f.backend.raw, 1)
				assert.Empty(t, f.backend.pages)
			}
		})
	}
}

func TestPrintValidation(t *testing.T) {
	f := newFixture(t, receipt.ModeRaw)
	f.selectPrinter(t, "TM_T20")

	for name, body := range map[string]string{
		"bad json":     `{"plainTextReceipt":`,
		"no text":      `{}`,
		"blank text":   `{"plainTextReceipt":"  \n "}`,
		"bad base64":   `{"data":"%%%"}`,
		"unknown mode": `{"plainTextReceipt":"a","mode":"hybrid"}`,
	} {
		t.Run(name, func(t *testing.T) {
			code, out := f.do(t, http.MethodPost, "/print", body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.NotEmpty(t, out["error"])
		})
	}
	assert.Empty(t, f.backend.raw)
}

func TestPrintTransportFailure(t *testing.T) {
	f := newFixture(t, receipt.ModeRaw)
	f.selectPrinter(t, "TM_T20")
	f.backend.err = errors.New("printer offline")

	code, body := f.do(t, http.MethodPost, "/print", `{"plainTextReceipt":"a"}`)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Failed to print", body["error"])

	code, body = f.do(t, http.MethodPost, "/print/drawer", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Failed to open drawer", body["error"])

	code, body = f.do(t, http.MethodPost, "/print/test", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Failed to test print", body["error"])
}

func TestPrintBodyTooLarge(t *testing.T) {
	f := newFixture(t, receipt.ModeRaw)
	f.selectPrinter(t, "TM_T20")

	big := `{"plainTextReceipt":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	code, body := f.do(t, http.MethodPost, "/print", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, code)
	assert.NotEmpty(t, body["error"])
	assert.Empty(t, f.backend.raw)
}

func TestDrawerAndTestPrint(t *testing.T) {
	f := newFixture(t, receipt.ModeRaw)
	f.selectPrinter(t, "TM_T20")

	code, body := f.do(t, http.MethodPost, "/print/drawer", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "drawer opened", body["result"])

	code, body = f.do(t, http.MethodPost, "/print/test", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "test printed", body["result"])

	require.Len(t, f.backend.raw, 2)
	assert.Equal(t, utilInternal.DrawerKick, f.backend.raw[0])
	assert.Equal(t, []byte(receipt.TestPage), f.backend.raw[1])
}

func TestInitialize(t *testing.T) {
	f := newFixture(t, receipt.ModeRaw)
	f.selectPrinter(t, "TM_T20")

	code, body := f.do(t, http.MethodPost, "/initialize", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "initialized", body["result"])

	name, err := f.store.Load()
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestCORS(t *testing.T) {
	f := newFixture(t, receipt.ModeRaw)

	req := httptest.NewRequest(http.MethodOptions, "/print", nil)
	req.Header.Set("Origin", "http://pos.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	assert.Less(t, w.Code, 300)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestLifecycle(t *testing.T) {
	f := newFixture(t, receipt.ModeRaw)

	require.NoError(t, f.server.StartAsync())
	assert.True(t, f.server.IsRunning())
	assert.Error(t, f.server.StartAsync(), "already running")

	addr := f.server.Address()
	assert.NotEqual(t, "127.0.0.1:0", addr)

	resp, err := http.Post("http://"+addr+"/select-printer", "application/json",
		bytes.NewBufferString(`{"name":"TM_T20"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, f.server.Stop())
	assert.False(t, f.server.IsRunning())
	assert.NoError(t, f.server.Stop())
}
