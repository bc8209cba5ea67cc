package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/sealos/tty-agent/internal/ticket"
)

func newTestSurface(t *testing.T) (*gin.Engine, *ticket.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	tickets := ticket.New(time.Minute)
	surface := New(tickets, logger, 1024, nil, nil)

	engine := gin.New()
	surface.Register(engine)
	return engine, tickets
}

func TestHandleHealth(t *testing.T) {
	engine, _ := newTestSurface(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body["ok"] != true {
		t.Errorf(`body["ok"] = %v, want true`, body["ok"])
	}
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	engine, _ := newTestSurface(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/ws-ticket", nil)
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing Access-Control-Allow-Origin on preflight response")
	}
}

func TestHandleIssueTicketSuccess(t *testing.T) {
	engine, tickets := newTestSurface(t)

	body := `{"kubeconfig":"kc-bytes","namespace":"default","pod":"pod-a"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ws-ticket", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	id, ok := resp["ticket"].(string)
	if !ok || id == "" {
		t.Fatalf("resp[ticket] = %v, want a non-empty string", resp["ticket"])
	}
	if tickets.Len() != 1 {
		t.Errorf("tickets.Len() = %d, want 1", tickets.Len())
	}
}

func TestHandleIssueTicketRejectsUnknownField(t *testing.T) {
	engine, _ := newTestSurface(t)

	body := `{"kubeconfig":"kc","namespace":"default","pod":"pod-a","admin":true}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ws-ticket", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", rec.Code, rec.Body.String())
	}
}

func TestHandleIssueTicketRejectsOversizedKubeconfig(t *testing.T) {
	engine, _ := newTestSurface(t)

	hugeKubeconfig := strings.Repeat("x", 4096)
	body := `{"kubeconfig":"` + hugeKubeconfig + `","namespace":"default","pod":"pod-a"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ws-ticket", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413, body=%s", rec.Code, rec.Body.String())
	}
}

func TestNoRouteReturns404JSON(t *testing.T) {
	engine, _ := newTestSurface(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
