package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNew_AddsDefaultHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client, err := New(
		WithName("test-node"),
		WithHeaders(map[string]string{"X-Api-Key": "secret", "User-Agent": "default"}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL, nil)
	req.Header.Set("User-Agent", "explicit")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if got.Get("X-Api-Key") != "secret" {
		t.Errorf("X-Api-Key = %q", got.Get("X-Api-Key"))
	}
	if got.Get("User-Agent") != "explicit" {
		t.Errorf("User-Agent = %q, request header must win", got.Get("User-Agent"))
	}
	if req.Header.Get("X-Api-Key") != "" {
		t.Error("caller's request was mutated")
	}
}

func TestNew_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client, err := New(WithTimeout(50 * time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := client.Get(srv.URL)
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected timeout error")
	}
}
