package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/api", Token: "secret"})
}

func TestListDecodesEnvelope(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" || r.URL.Path != "/api/processes" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("missing bearer header: %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": []map[string]any{
				{"name": "web", "status": "running", "pid": 42},
			},
		})
	})

	recs, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 1 || recs[0].Name != "web" || recs[0].PID != 42 {
		t.Fatalf("unexpected records: %+v", recs)
	}
}

func TestErrorEnvelope(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   "process 'ghost' not found",
		})
	})

	_, err := c.Status(context.Background(), "ghost")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", apiErr.StatusCode)
	}
	if apiErr.Message != "process 'ghost' not found" {
		t.Fatalf("unexpected message: %q", apiErr.Message)
	}
}

func TestStartSendsBody(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req StartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if req.Name != "web" || req.Command != "sleep" {
			t.Fatalf("unexpected body: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"name": "web", "status": "running"},
		})
	})

	rec, err := c.Start(context.Background(), StartRequest{Name: "web", Command: "sleep", Args: []string{"30"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if rec.Status != "running" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestNonJSONResponse(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("bad gateway"))
	})

	err := c.Stop(context.Background(), "web")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("unexpected status: %d", apiErr.StatusCode)
	}
}

func TestQueryParameters(t *testing.T) {
	var gotPath string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.String()
		var data any = "ok"
		if r.Method == "DELETE" {
			data = map[string]any{"cleared_count": 0}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
	})

	if _, err := c.Logs(context.Background(), "web", 50); err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if gotPath != "/api/processes/web/logs?lines=50" {
		t.Fatalf("unexpected path: %s", gotPath)
	}

	if _, err := c.Clear(context.Background(), true); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if gotPath != "/api/processes?all=true" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
}
