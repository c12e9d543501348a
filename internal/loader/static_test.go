package loader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/PentesterFlow/ScriptSentry/internal/fetch"
)

func urlMustParse(raw string) (*url.URL, error) {
	return url.Parse(raw)
}

func TestStaticLoader_Load(t *testing.T) {
	page := `<!doctype html>
<html>
<head>
	<script src="/static/app.js"></script>
	<script src="https://cdn.example.com/lib.js"></script>
	<script>inline();</script>
</head>
<body>
	<script src="vendor/chunk.js"></script>
</body>
</html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	}))
	defer server.Close()

	l := NewStaticLoader(fetch.New(fetch.DefaultConfig(), nil), nil)
	session, err := l.Load(context.Background(), server.URL+"/index.html")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer session.Close()

	scripts := session.Scripts()
	want := map[string]bool{
		server.URL + "/static/app.js":    false,
		"https://cdn.example.com/lib.js": false,
		server.URL + "/vendor/chunk.js":  false,
	}

	for _, s := range scripts {
		if _, ok := want[s]; ok {
			want[s] = true
		}
	}
	for u, found := range want {
		if !found {
			t.Errorf("script %s missing from %v", u, scripts)
		}
	}
	if len(scripts) != len(want) {
		t.Errorf("Scripts() = %v, want exactly %d entries", scripts, len(want))
	}
}

func TestStaticSession_FetchScriptUnsupported(t *testing.T) {
	s := &staticSession{}
	if _, err := s.FetchScript(context.Background(), "https://example.com/a.js"); err == nil {
		t.Error("static session should refuse in-page fetches")
	}
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		ref  string
		want string
	}{
		{"absolute", "https://example.com/", "https://cdn.example.com/a.js", "https://cdn.example.com/a.js"},
		{"root relative", "https://example.com/app/", "/static/a.js", "https://example.com/static/a.js"},
		{"relative", "https://example.com/app/", "chunk.js", "https://example.com/app/chunk.js"},
		{"non-http dropped", "https://example.com/", "data:text/javascript,1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, err := urlMustParse(tt.base)
			if err != nil {
				t.Fatal(err)
			}
			if got := resolveURL(base, tt.ref); got != tt.want {
				t.Errorf("resolveURL(%q, %q) = %q, want %q", tt.base, tt.ref, got, tt.want)
			}
		})
	}
}
