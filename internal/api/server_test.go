package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/mattjoyce/courier/internal/events"
	"github.com/mattjoyce/courier/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json")
	os.Exit(m.Run())
}

type fixedDepth struct {
	depth int
	err   error
}

func (f fixedDepth) Depth(context.Context) (int, error) { return f.depth, f.err }

func newTestServer(ch DepthReporter, hub *events.Hub) *Server {
	return New(Config{Listen: "127.0.0.1:0", ChannelName: "main"}, ch, hub, []string{"pinger"})
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	s := newTestServer(fixedDepth{depth: 3}, events.NewHub(8))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body HealthzResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "ok" || body.ChannelDepth != 3 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestHealthzDepthFailure(t *testing.T) {
	t.Parallel()

	s := newTestServer(fixedDepth{err: fmt.Errorf("db gone")}, events.NewHub(8))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	s := newTestServer(fixedDepth{depth: 1}, events.NewHub(8))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Channel != "main" || body.ChannelDepth != 1 {
		t.Fatalf("unexpected body: %+v", body)
	}
	if len(body.Workers) != 1 || body.Workers[0] != "pinger" {
		t.Fatalf("unexpected workers: %v", body.Workers)
	}
}

func TestEventsSince(t *testing.T) {
	t.Parallel()

	hub := events.NewHub(8)
	hub.Publish(events.KindWorkerStarted, nil)
	hub.Publish(events.KindDrain, map[string]int{"handled": 2})

	s := newTestServer(fixedDepth{}, hub)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events?since=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body EventsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Events) != 1 || body.Events[0].Kind != events.KindDrain {
		t.Fatalf("unexpected events: %+v", body.Events)
	}
}

func TestEventsBadSince(t *testing.T) {
	t.Parallel()

	s := newTestServer(fixedDepth{}, events.NewHub(8))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events?since=-2", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
