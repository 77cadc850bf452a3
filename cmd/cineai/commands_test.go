package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"success":false,"error":"Endpoint not found"}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestRecommendRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/recommend": `{"success":true,"session_id":"s-1","recommendation_id":7,"movies":[{"title":"Heat","year":1995,"genre":"Crime","description":"d","rating":8.3}]}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/api/recommend", map[string]any{
		"query":      "crime thrillers",
		"session_id": "s-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		SessionID string `json:"session_id"`
		Movies    []struct {
			Title string `json:"title"`
		} `json:"movies"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if result.SessionID != "s-1" {
		t.Errorf("session_id = %q, want s-1", result.SessionID)
	}
	if len(result.Movies) != 1 || result.Movies[0].Title != "Heat" {
		t.Errorf("movies = %+v, want Heat", result.Movies)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("got %d requests, want 1", len(ts.requests))
	}
	if !strings.Contains(ts.requests[0].Body, `"crime thrillers"`) {
		t.Errorf("request body = %q, want query included", ts.requests[0].Body)
	}
}

func TestHistoryRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/history/s-1": `{"success":true,"recommendations":[]}`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/api/history/s-1?limit=5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Success bool `json:"success"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !result.Success {
		t.Error("success = false, want true")
	}

	if ts.requests[0].Path != "/api/history/s-1?limit=5" {
		t.Errorf("path = %q, want limit query param preserved", ts.requests[0].Path)
	}
}

func TestClearRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"DELETE /api/clear-history/s-1": `{"success":true,"message":"History cleared successfully (2 items removed)"}`,
	})

	client := ts.client()
	resp, err := client.delete(ctx, "/api/clear-history/s-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !strings.Contains(result.Message, "2 items removed") {
		t.Errorf("message = %q, want removal count", result.Message)
	}
	if ts.requests[0].Method != "DELETE" {
		t.Errorf("method = %q, want DELETE", ts.requests[0].Method)
	}
}

func TestDecodeJSON_ErrorEnvelope(t *testing.T) {
	ts := newTestServer(t, map[string]string{})

	client := ts.client()
	resp, err := client.get(ctx, "/api/nope")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result map[string]any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error from 404 response")
	}
	if !strings.Contains(err.Error(), "Endpoint not found") {
		t.Errorf("error = %q, want server error message surfaced", err.Error())
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %q, want status code included", err.Error())
	}
}

func TestServerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := &apiClient{baseURL: srv.URL, httpClient: http.DefaultClient}
	_, err := client.get(ctx, "/api/health")
	if err == nil {
		t.Fatal("expected error for closed server")
	}
	if !strings.Contains(err.Error(), "is cineai running") {
		t.Errorf("error = %q, want hint about server not running", err.Error())
	}
}

func TestColorize_NoColor(t *testing.T) {
	orig := noColor
	defer func() { noColor = orig }()

	noColor = true
	if got := colorize(colorGreen, "plain"); got != "plain" {
		t.Errorf("colorize with noColor = %q, want unmodified text", got)
	}

	noColor = false
	got := colorize(colorGreen, "tinted")
	if !strings.HasPrefix(got, colorGreen) || !strings.HasSuffix(got, colorReset) {
		t.Errorf("colorize = %q, want wrapped in escape codes", got)
	}
}

func TestProviderName(t *testing.T) {
	if got := providerName("llama-3.3-70b-versatile"); got != "Groq (llama-3.3-70b-versatile)" {
		t.Errorf("providerName = %q", got)
	}
}
