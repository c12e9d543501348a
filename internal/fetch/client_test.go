package fetch

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andybalholm/brotli"

	"github.com/PentesterFlow/ScriptSentry/internal/errors"
)

func TestFetch_Plain(t *testing.T) {
	body := `console.log("hello");`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer server.Close()

	c := New(DefaultConfig(), nil)
	got, err := c.Fetch(context.Background(), server.URL+"/app.js")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(got) != body {
		t.Errorf("Fetch() = %q, want %q", got, body)
	}
}

func TestFetch_Gzip(t *testing.T) {
	body := `var compressed = true;`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		gz.Write([]byte(body))
		gz.Close()
	}))
	defer server.Close()

	c := New(DefaultConfig(), nil)
	got, err := c.Fetch(context.Background(), server.URL+"/app.js")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(got) != body {
		t.Errorf("Fetch() = %q, want %q", got, body)
	}
}

func TestFetch_Brotli(t *testing.T) {
	body := `var brotli = true;`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		bw.Write([]byte(body))
		bw.Close()
		w.Write(buf.Bytes())
	}))
	defer server.Close()

	c := New(DefaultConfig(), nil)
	got, err := c.Fetch(context.Background(), server.URL+"/app.js")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(got) != body {
		t.Errorf("Fetch() = %q, want %q", got, body)
	}
}

func TestFetch_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	c := New(DefaultConfig(), nil)
	_, err := c.Fetch(context.Background(), server.URL+"/missing.js")
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if errors.GetStatusCode(err) != 404 {
		t.Errorf("status code = %d, want 404", errors.GetStatusCode(err))
	}
}

func TestFetch_CustomHeaders(t *testing.T) {
	var gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Api-Key")
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Headers = map[string]string{"X-Api-Key": "secret"}
	c := New(cfg, nil)

	if _, err := c.Fetch(context.Background(), server.URL); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if gotHeader != "secret" {
		t.Errorf("custom header = %q, want secret", gotHeader)
	}
}

func TestFetch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(DefaultConfig(), nil)
	_, err := c.Fetch(ctx, "http://127.0.0.1:1/never.js")
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
