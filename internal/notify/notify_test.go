package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSendSummary_PayloadShape(t *testing.T) {
	var captured []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := New(server.URL, nil)
	results := []DomainResult{
		{
			Domain: "example.com",
			Changes: []Change{
				{Status: "NEW", URL: "https://example.com/app.js", Size: 2048},
				{Status: "MODIFIED", URL: "https://example.com/vendor.js", Added: 3, Removed: 1},
			},
			NewEndpoints: []string{"/api/v1/orders", "/api/v1/users"},
		},
		{Domain: "quiet.example.org"},
	}

	n.SendSummary(context.Background(), results, 12*time.Second)

	if captured == nil {
		t.Fatal("no payload delivered")
	}

	var p payload
	if err := json.Unmarshal(captured, &p); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if len(p.Embeds) != 1 {
		t.Fatalf("embeds = %d, want 1", len(p.Embeds))
	}

	summary := p.Embeds[0]
	if !strings.Contains(summary.Description, "**2** changes") {
		t.Errorf("description should count changes: %s", summary.Description)
	}
	if !strings.Contains(summary.Description, "**2** new endpoints") {
		t.Errorf("description should count endpoints: %s", summary.Description)
	}

	// Only the domain with activity gets a field.
	if len(summary.Fields) != 1 {
		t.Fatalf("fields = %d, want 1", len(summary.Fields))
	}
	field := summary.Fields[0]
	if field.Name != "example.com" {
		t.Errorf("field name = %s, want example.com", field.Name)
	}
	if !strings.Contains(field.Value, "/vendor.js") || !strings.Contains(field.Value, "+3 / -1") {
		t.Errorf("field should list the modified asset with counts: %s", field.Value)
	}
	if !strings.Contains(field.Value, "/api/v1/orders") {
		t.Errorf("field should list new endpoints: %s", field.Value)
	}
}

func TestSendSummary_TruncatesLongLists(t *testing.T) {
	res := DomainResult{Domain: "example.com"}
	for i := 0; i < 8; i++ {
		res.NewEndpoints = append(res.NewEndpoints, "/api/v1/item")
	}

	value := domainFieldValue(res)
	if !strings.Contains(value, "...and 3 more.") {
		t.Errorf("long endpoint list should be truncated: %s", value)
	}
}

func TestSendSummary_DisabledWithoutWebhook(t *testing.T) {
	n := New("", nil)
	if n.Enabled() {
		t.Error("empty webhook URL should disable the notifier")
	}
	// Must not panic or attempt delivery.
	n.SendSummary(context.Background(), nil, time.Second)
}

func TestSendTest_ReportsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad webhook", http.StatusUnauthorized)
	}))
	defer server.Close()

	n := New(server.URL, nil)
	if err := n.SendTest(context.Background()); err == nil {
		t.Error("SendTest should surface webhook failures")
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		size int
		want string
	}{
		{512, "512 B"},
		{2048, "2.00 KB"},
		{3 * 1024 * 1024, "3.00 MB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatSize(tt.size); got != tt.want {
				t.Errorf("FormatSize(%d) = %q, want %q", tt.size, got, tt.want)
			}
		})
	}
}
