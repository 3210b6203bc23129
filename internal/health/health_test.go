package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestServer_Endpoints(t *testing.T) {
	tests := []struct {
		name       string
		streamOK   bool
		path       string
		wantStatus int
	}{
		{name: "health_ok", streamOK: true, path: "/health", wantStatus: http.StatusOK},
		{name: "health_degraded", streamOK: false, path: "/health", wantStatus: http.StatusServiceUnavailable},
		{name: "ready_ok", streamOK: true, path: "/ready", wantStatus: http.StatusOK},
		{name: "not_ready", streamOK: false, path: "/ready", wantStatus: http.StatusServiceUnavailable},
		{name: "live_always", streamOK: false, path: "/live", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(0, "test")
			s.RegisterCheck("node", func(context.Context) (bool, string) { return true, "" })
			s.RegisterCheck("stream", func(context.Context) (bool, string) { return tt.streamOK, "state" })

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestServer_HealthBody(t *testing.T) {
	s := NewServer(0, "v1.2.3")
	s.RegisterCheck("stream", func(context.Context) (bool, string) { return false, "aborted" })

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var status Status
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Status != "degraded" || status.Version != "v1.2.3" {
		t.Errorf("status = %+v", status)
	}
	if c := status.Checks["stream"]; c.Healthy || c.Message != "aborted" {
		t.Errorf("stream check = %+v", c)
	}
}

func TestServer_StartStop(t *testing.T) {
	s := NewServer(0, "test")
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp, err := http.Get("http://" + s.Addr() + "/live")
	if err != nil {
		t.Fatalf("GET /live: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Errorf("Stop: %v", err)
	}
}
