package hass

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TheTarry/ha-harness/pkg/retry"
)

// fastRetry keeps transport retries out of test runtime.
func fastRetry() *retry.Config {
	return &retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond}
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Config{
		BaseURL: srv.URL,
		Auth:    NewStaticAuthManager("long-lived-token"),
		Retry:   fastRetry(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client, srv
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Auth: NewStaticAuthManager("t")}); err == nil {
		t.Error("New() without base URL succeeded")
	}
	if _, err := New(Config{BaseURL: "http://localhost:8123"}); err == nil {
		t.Error("New() without auth succeeded")
	}
}

func TestSetState(t *testing.T) {
	var gotBody map[string]any
	var gotAuth string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/states/light.living_room" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))

	err := client.SetState(context.Background(), "light.living_room", "on", map[string]any{"brightness": 200})
	if err != nil {
		t.Fatalf("SetState() error = %v", err)
	}
	if gotAuth != "Bearer long-lived-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody["state"] != "on" {
		t.Errorf("body state = %v", gotBody["state"])
	}
	attrs, _ := gotBody["attributes"].(map[string]any)
	if attrs["brightness"] != float64(200) {
		t.Errorf("body attributes = %v", gotBody["attributes"])
	}
}

func TestGetState(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/states/sun.sun":
			json.NewEncoder(w).Encode(map[string]any{
				"entity_id":  "sun.sun",
				"state":      "above_horizon",
				"attributes": map[string]any{"next_setting": "2026-06-21T21:30:00+00:00"},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	ctx := context.Background()

	state, err := client.GetState(ctx, "sun.sun")
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.State != "above_horizon" {
		t.Errorf("State = %q", state.State)
	}
	if state.Attributes["next_setting"] != "2026-06-21T21:30:00+00:00" {
		t.Errorf("Attributes = %v", state.Attributes)
	}

	missing, err := client.GetState(ctx, "light.gone")
	if err != nil {
		t.Fatalf("GetState(missing) error = %v", err)
	}
	if missing != nil {
		t.Errorf("GetState(missing) = %+v, want nil", missing)
	}
}

func TestEntityState_OracleAdapter(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/states/sun.sun" {
			json.NewEncoder(w).Encode(map[string]any{
				"entity_id": "sun.sun", "state": "below_horizon",
				"attributes": map[string]any{"next_rising": "2026-06-22T04:45:00+00:00"},
			})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	ctx := context.Background()

	es, err := client.EntityState(ctx, "sun.sun")
	if err != nil {
		t.Fatalf("EntityState() error = %v", err)
	}
	if es.State != "below_horizon" || es.Attributes["next_rising"] != "2026-06-22T04:45:00+00:00" {
		t.Errorf("EntityState() = %+v", es)
	}

	missing, err := client.EntityState(ctx, "sun.moon")
	if err != nil || missing != nil {
		t.Errorf("EntityState(unknown) = %+v, %v; want nil, nil", missing, err)
	}
}

func TestRemoveEntity_NotFoundIsSuccess(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s, want DELETE", r.Method)
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	if err := client.RemoveEntity(context.Background(), "light.gone"); err != nil {
		t.Errorf("RemoveEntity() on missing entity error = %v", err)
	}
	if calls != 1 {
		t.Errorf("server saw %d calls, want 1", calls)
	}
}

func TestCallService(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/services/light/turn_on" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))

	err := client.CallService(context.Background(), "light", "turn_on", map[string]any{"entity_id": "light.kitchen"})
	if err != nil {
		t.Errorf("CallService() error = %v", err)
	}
}

func TestDo_RegeneratesTokenOn401(t *testing.T) {
	var tokens int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if got := r.Form.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.Form.Get("refresh_token"); got != "refresh-abc" {
			t.Errorf("refresh_token = %q", got)
		}
		n := atomic.AddInt32(&tokens, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"Bearer","expires_in":1800}`, n)
	})
	mux.HandleFunc("/api/states/light.kitchen", func(w http.ResponseWriter, r *http.Request) {
		// The first minted token is expired from the server's point of view.
		if r.Header.Get("Authorization") == "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"entity_id": "light.kitchen", "state": "on"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := New(Config{
		BaseURL: srv.URL,
		Auth:    NewAuthManager(srv.URL, "refresh-abc"),
		Retry:   fastRetry(),
	})
	if err != nil {
		t.Fatal(err)
	}

	state, err := client.GetState(context.Background(), "light.kitchen")
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state == nil || state.State != "on" {
		t.Errorf("GetState() = %+v", state)
	}
	if tokens != 2 {
		t.Errorf("token endpoint hit %d times, want 2", tokens)
	}
}

func TestDo_RetriesTransportErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			// Drop the first connection mid-request.
			hj, _ := w.(http.Hijacker)
			conn, _, _ := hj.Hijack()
			conn.Close()
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"entity_id": "a.b", "state": "ok"})
	}))
	srv.Start()
	t.Cleanup(srv.Close)

	client, err := New(Config{
		BaseURL: srv.URL,
		Auth:    NewStaticAuthManager("tok"),
		Retry:   &retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond},
	})
	if err != nil {
		t.Fatal(err)
	}

	state, err := client.GetState(context.Background(), "a.b")
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.State != "ok" {
		t.Errorf("State = %q", state.State)
	}
	if calls < 2 {
		t.Errorf("server saw %d calls, want at least 2", calls)
	}
}

func TestWaitForState(t *testing.T) {
	var polls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := "off"
		if atomic.AddInt32(&polls, 1) >= 1 {
			state = "on"
		}
		json.NewEncoder(w).Encode(map[string]any{"entity_id": "light.x", "state": state})
	}))

	if err := client.WaitForState(context.Background(), "light.x", "on", 5*time.Second); err != nil {
		t.Errorf("WaitForState() error = %v", err)
	}
}

func TestWaitForState_Timeout(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"entity_id": "light.x", "state": "off"})
	}))

	// Zero timeout: one poll, then immediate failure.
	err := client.WaitForState(context.Background(), "light.x", "on", 0)
	if err == nil {
		t.Fatal("WaitForState() succeeded, want timeout error")
	}
}

func TestWaitForCondition(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"entity_id":  "light.x",
			"state":      "on",
			"attributes": map[string]any{"brightness": 200},
		})
	}))

	err := client.WaitForCondition(context.Background(), "light.x",
		`state == "on" && attributes.brightness >= 128`, 5*time.Second)
	if err != nil {
		t.Errorf("WaitForCondition() error = %v", err)
	}
}

func TestWaitForCondition_InvalidExpression(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be hit for an uncompilable condition")
	}))

	if err := client.WaitForCondition(context.Background(), "light.x", `state ==`, time.Second); err == nil {
		t.Error("WaitForCondition() with invalid CEL succeeded")
	}
}

func TestStaticAuthManager(t *testing.T) {
	a := NewStaticAuthManager("fixed")
	ctx := context.Background()

	tok, err := a.AccessToken(ctx)
	if err != nil || tok != "fixed" {
		t.Errorf("AccessToken() = %q, %v", tok, err)
	}
	tok, err = a.Regenerate(ctx)
	if err != nil || tok != "fixed" {
		t.Errorf("Regenerate() = %q, %v", tok, err)
	}
}
