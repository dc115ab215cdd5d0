package appdaemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/TheTarry/ha-harness/pkg/retry"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Config{
		BaseURL: srv.URL,
		Retry:   &retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() without base URL succeeded")
	}
}

func TestPing(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestPing_ServerError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	if err := client.Ping(context.Background()); err == nil {
		t.Error("Ping() against failing server succeeded")
	}
}

func TestCallApp(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/appdaemon/heating_control" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		w.Write([]byte(`{"ok":true}`))
	}))

	data, err := client.CallApp(context.Background(), "heating_control", map[string]any{"mode": "eco"})
	if err != nil {
		t.Fatalf("CallApp() error = %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("CallApp() = %s", data)
	}
}

func TestCallApp_ErrorStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such app", http.StatusNotFound)
	}))

	if _, err := client.CallApp(context.Background(), "ghost", nil); err == nil {
		t.Error("CallApp() against missing app succeeded")
	}
}
