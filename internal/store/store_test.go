package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestObserve_NewThenUnchanged(t *testing.T) {
	s := newTestStore(t)
	url := "https://example.com/app.js"
	content := []byte(`fetch("/api/v1/users");`)
	hash := ContentHash(content)

	status, record, err := s.Observe(url, content, hash)
	if err != nil {
		t.Fatalf("first Observe() error = %v", err)
	}
	if status != StatusNew {
		t.Fatalf("first observation status = %v, want NEW", status)
	}
	if record.Size != len(content) {
		t.Errorf("record size = %d, want %d", record.Size, len(content))
	}

	for i := 0; i < 2; i++ {
		status, _, err = s.Observe(url, content, hash)
		if err != nil {
			t.Fatalf("repeat Observe() error = %v", err)
		}
		if status != StatusUnchanged {
			t.Fatalf("repeat observation %d status = %v, want UNCHANGED", i+2, status)
		}
	}
}

func TestObserve_Modified(t *testing.T) {
	s := newTestStore(t)
	url := "https://example.com/app.js"

	v1 := []byte("function alpha() {\n    return 1;\n}\n")
	v2 := []byte("function alpha() {\n    return 1;\n}\nfunction beta() {\n    return 2;\n}\n")

	if _, _, err := s.Observe(url, v1, ContentHash(v1)); err != nil {
		t.Fatalf("Observe(v1) error = %v", err)
	}

	status, record, err := s.Observe(url, v2, ContentHash(v2))
	if err != nil {
		t.Fatalf("Observe(v2) error = %v", err)
	}
	if status != StatusModified {
		t.Fatalf("status = %v, want MODIFIED", status)
	}
	if record.Added < 1 {
		t.Errorf("added = %d, want >= 1", record.Added)
	}
	if record.Removed != 0 {
		t.Errorf("removed = %d, want 0", record.Removed)
	}
	if !strings.Contains(record.Diff, "beta") {
		t.Errorf("diff should mention the added function:\n%s", record.Diff)
	}
}

func TestObserve_EmptyContent(t *testing.T) {
	s := newTestStore(t)

	status, _, err := s.Observe("https://example.com/a.js", nil, "x")
	if status != StatusError {
		t.Errorf("status = %v, want ERROR", status)
	}
	if err == nil {
		t.Error("expected error for empty content")
	}
}

func TestObserve_InvalidURL(t *testing.T) {
	s := newTestStore(t)

	status, _, err := s.Observe("not-a-url", []byte("x"), "h")
	if status != StatusError {
		t.Errorf("status = %v, want ERROR", status)
	}
	if err == nil {
		t.Error("expected error for URL without host")
	}
}

func TestObserve_ErrorMutatesNothing(t *testing.T) {
	s := newTestStore(t)

	_, _, _ = s.Observe("https://example.com:8443/a.js", nil, "h")

	if _, err := os.Stat(filepath.Join(s.BaseDir(), "example.com_8443")); !os.IsNotExist(err) {
		t.Error("failed observation should not create a domain partition")
	}
}

func TestDomainPartitionSanitizing(t *testing.T) {
	s := newTestStore(t)
	url := "https://example.com:8443/app.js"
	content := []byte("var x = 1;")

	if _, _, err := s.Observe(url, content, ContentHash(content)); err != nil {
		t.Fatalf("Observe() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(s.BaseDir(), "example.com_8443")); err != nil {
		t.Errorf("sanitized partition missing: %v", err)
	}
}

func TestStorageKey(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string // slug prefix
	}{
		{"plain", "https://example.com/static/app.js", "app_"},
		{"query stripped", "https://example.com/bundle.js?v=3", "bundle_"},
		{"no path", "https://example.com/", "index_"},
		{"long segment", "https://example.com/" + strings.Repeat("a", 80) + ".js", strings.Repeat("a", 50) + "_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := StorageKey(tt.url)
			if !strings.HasPrefix(key, tt.want) {
				t.Errorf("StorageKey(%q) = %q, want prefix %q", tt.url, key, tt.want)
			}
			if len(key) != len(tt.want)+16 {
				t.Errorf("StorageKey(%q) = %q, hash suffix should be 16 hex chars", tt.url, key)
			}
		})
	}
}

func TestStorageKey_Stable(t *testing.T) {
	a := StorageKey("https://example.com/app.js")
	b := StorageKey("https://example.com/app.js")
	c := StorageKey("https://example.com/other/app.js")

	if a != b {
		t.Error("storage key should be deterministic")
	}
	if a == c {
		t.Error("distinct URLs with the same filename should get distinct keys")
	}
}

func TestGenerateDiff_Counts(t *testing.T) {
	oldText := "line one\nline two\nline three\n"
	newText := "line one\nline 2\nline three\nline four\n"

	_, added, removed, err := generateDiff(oldText, newText)
	if err != nil {
		t.Fatalf("generateDiff() error = %v", err)
	}
	if added != 2 {
		t.Errorf("added = %d, want 2", added)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
}

func TestObserve_CorruptHashMapFailsOpen(t *testing.T) {
	s := newTestStore(t)
	url := "https://example.com/app.js"
	content := []byte("var a = 1;")
	hash := ContentHash(content)

	domainDir := filepath.Join(s.BaseDir(), "example.com")
	if err := os.MkdirAll(domainDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(domainDir, "hashes.json"), []byte("{corrupt"), 0o644); err != nil {
		t.Fatal(err)
	}

	status, _, err := s.Observe(url, content, hash)
	if err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	if status != StatusNew {
		t.Fatalf("status = %v, want NEW (corrupt hash map counts as empty)", status)
	}

	// The rewritten map is valid again.
	status, _, err = s.Observe(url, content, hash)
	if err != nil {
		t.Fatalf("repeat Observe() error = %v", err)
	}
	if status != StatusUnchanged {
		t.Errorf("repeat status = %v, want UNCHANGED", status)
	}
}

func TestObserve_FailedWriteLeavesNoPartialCommit(t *testing.T) {
	s := newTestStore(t)
	url := "https://example.com/app.js"

	v1 := []byte("var a = 1;")
	_, record, err := s.Observe(url, v1, ContentHash(v1))
	if err != nil {
		t.Fatalf("Observe(v1) error = %v", err)
	}

	// A directory squatting on the normalized staging path makes the
	// second write fail after the raw write succeeded.
	if err := os.Mkdir(record.NormalizedPath+".tmp", 0o755); err != nil {
		t.Fatal(err)
	}

	v2 := []byte("var a = 2;")
	status, _, err := s.Observe(url, v2, ContentHash(v2))
	if status != StatusError {
		t.Fatalf("status = %v, want ERROR", status)
	}
	if err == nil {
		t.Fatal("expected write failure")
	}

	rawData, err := os.ReadFile(record.RawPath)
	if err != nil {
		t.Fatalf("read raw: %v", err)
	}
	if string(rawData) != string(v1) {
		t.Errorf("raw file = %q, want the prior content %q", rawData, v1)
	}

	// The hash map still points at the old version, so the next healthy
	// observation reports MODIFIED rather than UNCHANGED.
	if err := os.Remove(record.NormalizedPath + ".tmp"); err != nil {
		t.Fatal(err)
	}
	status, _, err = s.Observe(url, v2, ContentHash(v2))
	if err != nil {
		t.Fatalf("recovery Observe() error = %v", err)
	}
	if status != StatusModified {
		t.Errorf("recovery status = %v, want MODIFIED", status)
	}
}

func TestHashMapPersistence(t *testing.T) {
	dir := t.TempDir()
	url := "https://example.com/app.js"
	content := []byte("var a = 1;")
	hash := ContentHash(content)

	s1, err := New(dir, nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, _, err := s1.Observe(url, content, hash); err != nil {
		t.Fatalf("Observe() error = %v", err)
	}

	// Fresh store over the same directory sees the prior observation.
	s2, err := New(dir, nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	status, _, err := s2.Observe(url, content, hash)
	if err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	if status != StatusUnchanged {
		t.Errorf("status across restart = %v, want UNCHANGED", status)
	}
}
