package history

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestAppendAndRead(t *testing.T) {
	j := openTestJournal(t)

	recs := []Record{
		{Domain: "example.com", Timestamp: time.Now().Add(-time.Hour), Processed: 4, Changes: 1},
		{Domain: "example.com", Timestamp: time.Now(), Processed: 5, Changes: 0, NewEndpoints: 2},
		{Domain: "other.com", Timestamp: time.Now(), Processed: 1},
	}
	for _, rec := range recs {
		if err := j.Append(rec); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	got, err := j.Domain("example.com")
	if err != nil {
		t.Fatalf("Domain() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("records = %d, want 2", len(got))
	}
	if !got[0].Timestamp.Before(got[1].Timestamp) {
		t.Error("records should come back in chronological order")
	}
	if got[1].NewEndpoints != 2 {
		t.Errorf("NewEndpoints = %d, want 2", got[1].NewEndpoints)
	}
}

func TestDomain_Unknown(t *testing.T) {
	j := openTestJournal(t)

	got, err := j.Domain("never-scanned.com")
	if err != nil {
		t.Fatalf("Domain() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("unknown domain should have no records, got %v", got)
	}
}

func TestDomains(t *testing.T) {
	j := openTestJournal(t)

	j.Append(Record{Domain: "a.com"})
	j.Append(Record{Domain: "b.com"})

	domains, err := j.Domains()
	if err != nil {
		t.Fatalf("Domains() error = %v", err)
	}
	if len(domains) != 2 {
		t.Errorf("domains = %v, want two entries", domains)
	}
}
