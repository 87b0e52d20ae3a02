package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"bilingdash/internal/auth"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type key struct {
	Method string
	Path   string
	Status int
}

type stat struct {
	Count     int64
	LatencyMS float64
}

type Collector struct {
	db *sql.DB

	mu           sync.RWMutex
	requestStats map[key]stat
	startedAt    time.Time
}

func NewCollector(db *sql.DB) *Collector {
	return &Collector{
		db:           db,
		requestStats: make(map[key]stat),
		startedAt:    time.Now(),
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

type tagsContextKey struct{}

// requestTags carries values learned deeper in the chain back out to the
// request log line.
type requestTags struct {
	reviewerID int64
}

// Middleware records per-route counters and logs one JSON line per request.
// Mount it ahead of authentication so rejected requests are counted too, and
// mount TagReviewer behind auth.RequireAuth to fill in reviewer_id.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		tags := &requestTags{}
		r = r.WithContext(context.WithValue(r.Context(), tagsContextKey{}, tags))
		next.ServeHTTP(rec, r)

		latencyMS := float64(time.Since(start).Microseconds()) / 1000.0
		path := normalizedPath(r.URL.Path)

		c.mu.Lock()
		k := key{Method: r.Method, Path: path, Status: rec.status}
		s := c.requestStats[k]
		s.Count++
		s.LatencyMS += latencyMS
		c.requestStats[k] = s
		c.mu.Unlock()

		reviewerID := tags.reviewerID
		if u, ok := auth.CurrentUser(r.Context()); ok {
			reviewerID = u.ID
		}

		entry := map[string]any{
			"request_id":  middleware.GetReqID(r.Context()),
			"reviewer_id": reviewerID,
			"paper_id":    extractPaperID(r.URL.Path),
			"link_id":     extractLinkID(r.URL.Path),
			"method":      r.Method,
			"path":        path,
			"status":      rec.status,
			"latency_ms":  latencyMS,
			"remote_ip":   strings.TrimSpace(r.RemoteAddr),
		}
		b, _ := json.Marshal(entry)
		log.Printf("%s", string(b))
	})
}

// TagReviewer records the authenticated reviewer for the enclosing Middleware.
func (c *Collector) TagReviewer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tags, ok := r.Context().Value(tagsContextKey{}).(*requestTags); ok {
			if u, ok := auth.CurrentUser(r.Context()); ok {
				tags.reviewerID = u.ID
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (c *Collector) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	statsCopy := make(map[key]stat, len(c.requestStats))
	for k, v := range c.requestStats {
		statsCopy[k] = v
	}
	startedAt := c.startedAt
	c.mu.RUnlock()

	keys := make([]key, 0, len(statsCopy))
	for k := range statsCopy {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Method != keys[j].Method {
			return keys[i].Method < keys[j].Method
		}
		if keys[i].Path != keys[j].Path {
			return keys[i].Path < keys[j].Path
		}
		return keys[i].Status < keys[j].Status
	})

	var sb strings.Builder
	sb.WriteString("# bilingdash observability metrics\n")
	sb.WriteString("# TYPE bilingdash_uptime_seconds gauge\n")
	fmt.Fprintf(&sb, "bilingdash_uptime_seconds %.0f\n", time.Since(startedAt).Seconds())

	sb.WriteString("# TYPE bilingdash_http_requests_total counter\n")
	sb.WriteString("# TYPE bilingdash_http_request_latency_ms_sum counter\n")
	sb.WriteString("# TYPE bilingdash_http_request_latency_ms_avg gauge\n")
	for _, k := range keys {
		s := statsCopy[k]
		labels := fmt.Sprintf("method=%q,path=%q,status=\"%d\"", k.Method, k.Path, k.Status)
		fmt.Fprintf(&sb, "bilingdash_http_requests_total{%s} %d\n", labels, s.Count)
		fmt.Fprintf(&sb, "bilingdash_http_request_latency_ms_sum{%s} %.3f\n", labels, s.LatencyMS)
		avg := 0.0
		if s.Count > 0 {
			avg = s.LatencyMS / float64(s.Count)
		}
		fmt.Fprintf(&sb, "bilingdash_http_request_latency_ms_avg{%s} %.3f\n", labels, avg)
	}

	if c.db != nil {
		dbs := c.db.Stats()
		sb.WriteString("# TYPE bilingdash_db_open_connections gauge\n")
		fmt.Fprintf(&sb, "bilingdash_db_open_connections %d\n", dbs.OpenConnections)
		sb.WriteString("# TYPE bilingdash_db_in_use_connections gauge\n")
		fmt.Fprintf(&sb, "bilingdash_db_in_use_connections %d\n", dbs.InUse)
		sb.WriteString("# TYPE bilingdash_db_wait_count counter\n")
		fmt.Fprintf(&sb, "bilingdash_db_wait_count %d\n", dbs.WaitCount)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sb.String()))
}

// normalizedPath folds numeric and UUID segments into {id} so metrics keep a
// bounded label set.
func normalizedPath(path string) string {
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == "" {
			continue
		}
		if _, err := strconv.ParseInt(p, 10, 64); err == nil {
			parts[i] = "{id}"
			continue
		}
		if _, err := uuid.Parse(p); err == nil {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

func extractPaperID(path string) string {
	seg := segmentAfter(path, "papers")
	if _, err := uuid.Parse(seg); err != nil {
		return ""
	}
	return seg
}

func extractLinkID(path string) int64 {
	id, err := strconv.ParseInt(segmentAfter(path, "links"), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func segmentAfter(path, name string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == name {
			return parts[i+1]
		}
	}
	return ""
}
