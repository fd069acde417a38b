package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	g, err := New(Config{BaseURL: srv.URL, Timeout: timeout})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestNewValidatesBaseURL(t *testing.T) {
	for _, bad := range []string{"", "   ", "not-a-url", "/relative/only"} {
		if _, err := New(Config{BaseURL: bad}); err == nil {
			t.Errorf("New(%q) should fail", bad)
		}
	}
	if _, err := New(Config{BaseURL: "http://localhost:8097"}); err != nil {
		t.Fatalf("New(valid) = %v", err)
	}
}

func TestCallDecodesJSONBody(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q", got)
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"id": 3}`))
	}, 0)

	resp, err := g.Call(context.Background(), http.MethodGet, "/api/functions/3", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !resp.IsJSON() {
		t.Fatal("JSON content type must decode as JSON")
	}
	var out struct {
		ID int64 `json:"id"`
	}
	if err := resp.Decode(&out); err != nil || out.ID != 3 {
		t.Fatalf("Decode = %+v, %v", out, err)
	}
}

func TestCallKeepsNonJSONAsText(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("pong"))
	}, 0)

	resp, err := g.Call(context.Background(), http.MethodGet, "/health", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.IsJSON() || resp.Text != "pong" {
		t.Fatalf("resp = %+v, want plain text body", resp)
	}
}

func TestCallTimesOut(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}, 30*time.Millisecond)

	_, err := g.Call(context.Background(), http.MethodGet, "/slow", nil)
	if !IsTimeout(err) {
		t.Fatalf("err = %v, want a timeout", err)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestCallTransportFailure(t *testing.T) {
	g, err := New(Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	_, err = g.Call(context.Background(), http.MethodGet, "/anything", nil)
	var gerr *Error
	if !errors.As(err, &gerr) || gerr.Kind != KindTransport {
		t.Fatalf("err = %v, want transport failure", err)
	}
}

func TestFailureMessageExtraction(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		status      int
		wantMsg     string
	}{
		{
			"json with message field",
			"application/json", `{"message":"function 9 not found","code":"NOT_FOUND"}`,
			http.StatusNotFound, "function 9 not found",
		},
		{
			"json without message field serializes",
			"application/json", `{"code":"BROKEN"}`,
			http.StatusBadRequest, `{"code":"BROKEN"}`,
		},
		{
			"plain text passes through",
			"text/plain", "upstream exploded",
			http.StatusBadGateway, "upstream exploded",
		},
		{
			"empty body gets generic fallback",
			"text/plain", "",
			http.StatusServiceUnavailable, "request failed with status 503",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, 0)

			_, err := g.Call(context.Background(), http.MethodGet, "/x", nil)
			var gerr *Error
			if !errors.As(err, &gerr) {
				t.Fatalf("err = %v, want *Error", err)
			}
			if gerr.Kind != KindRequestFailed || gerr.HTTPStatus != tt.status {
				t.Fatalf("error = %+v", gerr)
			}
			if gerr.Message != tt.wantMsg {
				t.Fatalf("message = %q, want %q", gerr.Message, tt.wantMsg)
			}
		})
	}
}

func TestCallPreservesQueryString(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("limit query = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}, 0)

	if _, err := g.Call(context.Background(), http.MethodGet, "/api/functions/1/invocations?limit=5", nil); err != nil {
		t.Fatalf("Call: %v", err)
	}
}

func TestCallSendsJSONBody(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}, 0)

	_, err := g.Call(context.Background(), http.MethodPost, "/api/functions", map[string]any{"name": "fn"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
}
