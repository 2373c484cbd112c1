package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/dashd/dashd/internal/config"
	"github.com/dashd/dashd/internal/storage"
)

type recordedRequest struct {
	Method      string
	Path        string
	Body        string
	ContentType string
}

type testServer struct {
	server *httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.mu.Lock()
		ts.requests = append(ts.requests, recordedRequest{
			Method:      r.Method,
			Path:        r.URL.RequestURI(),
			Body:        body.String(),
			ContentType: r.Header.Get("Content-Type"),
		})
		ts.mu.Unlock()

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"todo not found","type":"not_found"}}`))
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

func (ts *testServer) lastRequest(t *testing.T) recordedRequest {
	t.Helper()
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if len(ts.requests) == 0 {
		t.Fatal("no requests recorded")
	}
	return ts.requests[len(ts.requests)-1]
}

// runCLI executes the root command against ts and returns stdout.
func runCLI(t *testing.T, ts *testServer, args ...string) (string, error) {
	t.Helper()

	oldClient := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	oldColor := noColor
	t.Cleanup(func() {
		newAPIClient = oldClient
		noColor = oldColor
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append([]string{"--no-color"}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

var ctx = context.Background()

func TestTodoList(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/todos": `[
			{"id":"t-1","task":"buy milk","is_completed":false,"created_at":"2024-01-01T00:00:00Z"},
			{"id":"t-2","task":"call mom","is_completed":true,"created_at":"2024-01-01T00:00:00Z"}
		]`,
	})

	out, err := runCLI(t, ts, "todo", "list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "[ ] t-1  buy milk") {
		t.Errorf("missing open todo in output:\n%s", out)
	}
	if !strings.Contains(out, "[x] t-2  call mom") {
		t.Errorf("missing completed todo in output:\n%s", out)
	}
}

func TestTodoAdd(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/todos": `{"id":"t-9","task":"water plants","is_completed":false}`,
	})

	if _, err := runCLI(t, ts, "todo", "add", "water", "plants"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := ts.lastRequest(t)
	var body map[string]string
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["task"] != "water plants" {
		t.Errorf("task = %q", body["task"])
	}
}

func TestTodoDone_UsesFlip(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/todos/t-1/flip": `{"id":"t-1","task":"buy milk","is_completed":true}`,
	})

	if _, err := runCLI(t, ts, "todo", "done", "t-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r := ts.lastRequest(t); r.Method != "POST" || r.Path != "/api/todos/t-1/flip" {
		t.Errorf("request = %s %s", r.Method, r.Path)
	}
}

func TestTodoDone_NotFound(t *testing.T) {
	ts := newTestServer(t, map[string]string{})

	_, err := runCLI(t, ts, "todo", "done", "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "todo not found") {
		t.Errorf("error = %q, want the server message", err.Error())
	}
}

func TestNoteAdd_JSON(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/notes": `{"id":"n-1","content":"a good day"}`,
	})

	if _, err := runCLI(t, ts, "note", "add", "a", "good", "day"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := ts.lastRequest(t)
	if r.ContentType != "application/json" {
		t.Errorf("content type = %q", r.ContentType)
	}
	if !strings.Contains(r.Body, `"content":"a good day"`) {
		t.Errorf("body = %s", r.Body)
	}
}

func TestNoteAdd_WithImage(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/notes": `{"id":"n-2","content":"sunset","image_url":"/images/1-sunset.png"}`,
	})

	img := filepath.Join(t.TempDir(), "sunset.png")
	if err := os.WriteFile(img, []byte("\x89PNG\r\n\x1a\nfake"), 0o644); err != nil {
		t.Fatal(err)
	}

	client := ts.client()
	resp, err := client.postNoteWithImage(ctx, "sunset", img)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var n storage.Note
	if err := decodeJSON(resp, &n); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	r := ts.lastRequest(t)
	if !strings.HasPrefix(r.ContentType, "multipart/form-data") {
		t.Errorf("content type = %q", r.ContentType)
	}
	if !strings.Contains(r.Body, `filename="sunset.png"`) || !strings.Contains(r.Body, "sunset") {
		t.Errorf("multipart body missing parts:\n%s", r.Body)
	}
}

func TestNoteEdit(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"PATCH /api/notes/n-1": `{"id":"n-1","content":"revised"}`,
	})

	if _, err := runCLI(t, ts, "note", "edit", "n-1", "revised"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r := ts.lastRequest(t); r.Method != "PATCH" {
		t.Errorf("method = %s", r.Method)
	}
}

func TestAssetAdd(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/assets": `{"id":"a-1","record_date":"2024-01-02T00:00:00Z","amount":1500}`,
	})

	if _, err := runCLI(t, ts, "asset", "add", "1500", "2024-01-02"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(ts.lastRequest(t).Body), &body); err != nil {
		t.Fatal(err)
	}
	if body["date"] != "2024-01-02" || body["amount"] != 1500.0 {
		t.Errorf("body = %v", body)
	}
}

func TestAssetAdd_InvalidInput(t *testing.T) {
	ts := newTestServer(t, map[string]string{})

	if _, err := runCLI(t, ts, "asset", "add", "lots"); err == nil {
		t.Error("expected error for non-numeric amount")
	}
	if _, err := runCLI(t, ts, "asset", "add", "10", "yesterday"); err == nil {
		t.Error("expected error for bad date")
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if len(ts.requests) != 0 {
		t.Errorf("invalid input reached the server %d times", len(ts.requests))
	}
}

func TestNews_QueryEncoding(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/headlines": `[{"text":"Rates held","title":"Rates held - Post","link":"https://x","source":"Post"}]`,
	})

	out, err := runCLI(t, ts, "news", "rates & bonds")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "• Rates held") {
		t.Errorf("output = %q", out)
	}
	path := ts.lastRequest(t).Path
	if !strings.Contains(path, "q=rates+%26+bonds") {
		t.Errorf("query not URL-encoded: %q", path)
	}
}

func TestAsk(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/chat": `{"response":"forty-two","kind":"ok"}`,
	})

	out, err := runCLI(t, ts, "ask", "meaning", "of", "life")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "forty-two" {
		t.Errorf("output = %q", out)
	}
}

func TestAsk_ProviderFailure(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/chat": `{"response":"The generative API key is not configured.","kind":"missing_credential"}`,
	})

	_, err := runCLI(t, ts, "ask", "hello")
	if err == nil || !strings.Contains(err.Error(), "missing_credential") {
		t.Fatalf("err = %v, want missing_credential", err)
	}
}

func TestAPIClient_ServerStopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	_, err := ts.client().get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.WriteHeader(http.StatusBadRequest)
	rec.WriteString(`{"error":{"message":"invalid task: must not be empty","type":"invalid_request_error"}}`)

	err := decodeJSON(rec.Result(), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "server returned 400: invalid task: must not be empty" {
		t.Errorf("error = %q", err.Error())
	}

	rec = httptest.NewRecorder()
	rec.WriteHeader(http.StatusBadGateway)
	rec.WriteString("upstream down")
	if err := decodeJSON(rec.Result(), nil); err == nil || !strings.Contains(err.Error(), "upstream down") {
		t.Errorf("error = %v, want raw body", err)
	}
}

func TestServerURL(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"127.0.0.1", "http://127.0.0.1:4000"},
		{"0.0.0.0", "http://127.0.0.1:4000"},
		{"", "http://127.0.0.1:4000"},
		{"::1", "http://[::1]:4000"},
	}
	for _, tt := range tests {
		cfg := config.Config{Server: config.ServerConfig{Host: tt.host, Port: 4000}}
		if got := serverURL(cfg); got != tt.want {
			t.Errorf("serverURL(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestPIDFile(t *testing.T) {
	path := pidFilePath(filepath.Join(t.TempDir(), "nested"))
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writing PID file: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("reading PID file: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}
	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("PID file still present after remove")
	}
}

func TestCountLabel(t *testing.T) {
	tests := []struct {
		count, limit int
		want         string
	}{
		{0, 100, "0"},
		{42, 100, "42"},
		{100, 100, "100+"},
	}
	for _, tt := range tests {
		if got := countLabel(tt.count, tt.limit); got != tt.want {
			t.Errorf("countLabel(%d, %d) = %q, want %q", tt.count, tt.limit, got, tt.want)
		}
	}
}
