package observability

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"bilingdash/internal/auth"
)

const paperID = "3f1c9a52-7d0e-4b7a-9a55-0d1f4c2b8e61"

func TestNormalizedPath(t *testing.T) {
	got := normalizedPath("/api/v1/papers/" + paperID + "/review")
	want := "/api/v1/papers/{id}/review"
	if got != want {
		t.Fatalf("normalizedPath mismatch got=%s want=%s", got, want)
	}
	if got := normalizedPath("/api/v1/links/42/save"); got != "/api/v1/links/{id}/save" {
		t.Fatalf("unexpected numeric normalization %s", got)
	}
}

func TestExtractIDs(t *testing.T) {
	if id := extractPaperID("/api/v1/papers/" + paperID + "/bulk-complete"); id != paperID {
		t.Fatalf("expected paper id, got %q", id)
	}
	if id := extractPaperID("/api/v1/papers/not-a-uuid/review"); id != "" {
		t.Fatalf("expected empty paper id, got %q", id)
	}
	if id := extractLinkID("/api/v1/links/456/save"); id != 456 {
		t.Fatalf("expected 456, got %d", id)
	}
	if id := extractLinkID("/api/v1/me/assignments"); id != 0 {
		t.Fatalf("expected 0 for non-link path, got %d", id)
	}
}

func TestMetricsHandlerCountsRequests(t *testing.T) {
	c := NewCollector(nil)
	h := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	for i := 0; i < 2; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/papers/"+paperID+"/progress", nil))
	}

	w := httptest.NewRecorder()
	c.MetricsHandler(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	want := `bilingdash_http_requests_total{method="GET",path="/api/v1/papers/{id}/progress",status="202"} 2`
	if !strings.Contains(w.Body.String(), want) {
		t.Fatalf("metrics missing %q:\n%s", want, w.Body.String())
	}
}

func TestTagReviewerReachesOuterLogLine(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetFlags(log.LstdFlags)
	})

	c := NewCollector(nil)
	inner := c.TagReviewer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	withUser := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.ContextWithUser(r.Context(), &auth.User{ID: 42, Role: auth.RoleReviewer})
		inner.ServeHTTP(w, r.WithContext(ctx))
	})
	c.Middleware(withUser).ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodGet, "/api/v1/papers/"+paperID+"/review", nil))

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["reviewer_id"] != float64(42) {
		t.Fatalf("expected reviewer_id 42, got %v", entry["reviewer_id"])
	}
	if entry["paper_id"] != paperID {
		t.Fatalf("expected paper_id %s, got %v", paperID, entry["paper_id"])
	}
}
