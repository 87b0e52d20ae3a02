package assignment

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bilingdash/internal/auth"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type mockAssignmentService struct {
	assignFn  func(ctx context.Context, in AssignInput) (*AssignReport, error)
	bulkFn    func(ctx context.Context, paperID uuid.UUID) (*BulkResult, error)
	listFn    func(ctx context.Context, reviewerID int64) ([]ReviewerAssignment, error)
	summaryFn func(ctx context.Context) ([]ReviewerStat, error)
	exportFn  func(ctx context.Context) ([]byte, error)
}

func (m *mockAssignmentService) Assign(ctx context.Context, in AssignInput) (*AssignReport, error) {
	if m.assignFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.assignFn(ctx, in)
}

func (m *mockAssignmentService) BulkComplete(ctx context.Context, paperID uuid.UUID) (*BulkResult, error) {
	if m.bulkFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.bulkFn(ctx, paperID)
}

func (m *mockAssignmentService) ListReviewerAssignments(ctx context.Context, reviewerID int64) ([]ReviewerAssignment, error) {
	if m.listFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listFn(ctx, reviewerID)
}

func (m *mockAssignmentService) ReviewerSummary(ctx context.Context) ([]ReviewerStat, error) {
	if m.summaryFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.summaryFn(ctx)
}

func (m *mockAssignmentService) ExportProgressExcel(ctx context.Context) ([]byte, error) {
	if m.exportFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.exportFn(ctx)
}

func withParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestAssignEmptyBodyUsesDefaults(t *testing.T) {
	h := &Handler{svc: &mockAssignmentService{
		assignFn: func(ctx context.Context, in AssignInput) (*AssignReport, error) {
			if in.ExamName != "" || len(in.ReviewerEmails) != 0 {
				t.Fatalf("expected empty input, got %+v", in)
			}
			return &AssignReport{Pairs: 2, Reviewers: 1, Assigned: 4}, nil
		},
	}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/assignments", http.NoBody)
	w := httptest.NewRecorder()

	h.Assign(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAssignRejectsBadEmail(t *testing.T) {
	h := &Handler{svc: &mockAssignmentService{}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/assignments",
		bytes.NewReader([]byte(`{"reviewer_emails":["ok@example.com","nope"]}`)))
	w := httptest.NewRecorder()

	h.Assign(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestAssignNoReviewersIs422(t *testing.T) {
	h := &Handler{svc: &mockAssignmentService{
		assignFn: func(ctx context.Context, in AssignInput) (*AssignReport, error) {
			return nil, ErrNoReviewers
		},
	}}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{"exam":"SSC CGL"}`)))
	w := httptest.NewRecorder()

	h.Assign(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
}

func TestBulkCompleteErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "not found", err: ErrPaperNotFound, want: http.StatusNotFound},
		{name: "not linked", err: ErrPairNotLinked, want: http.StatusUnprocessableEntity},
		{name: "timeout", err: context.DeadlineExceeded, want: http.StatusServiceUnavailable},
		{name: "db failure", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &Handler{svc: &mockAssignmentService{
				bulkFn: func(ctx context.Context, paperID uuid.UUID) (*BulkResult, error) {
					return nil, tc.err
				},
			}}
			req := withParam(httptest.NewRequest(http.MethodPost, "/", nil), "paperID", uuid.NewString())
			w := httptest.NewRecorder()
			h.BulkComplete(w, req)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}

func TestBulkCompleteInvalidPaperID(t *testing.T) {
	h := &Handler{svc: &mockAssignmentService{}}
	req := withParam(httptest.NewRequest(http.MethodPost, "/", nil), "paperID", "12")
	w := httptest.NewRecorder()

	h.BulkComplete(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestMyAssignmentsUsesCurrentUser(t *testing.T) {
	h := &Handler{svc: &mockAssignmentService{
		listFn: func(ctx context.Context, reviewerID int64) ([]ReviewerAssignment, error) {
			if reviewerID != 33 {
				t.Fatalf("expected reviewer 33, got %d", reviewerID)
			}
			return []ReviewerAssignment{}, nil
		},
	}}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/assignments", nil)
	req = req.WithContext(auth.ContextWithUser(req.Context(), &auth.User{ID: 33, Role: auth.RoleReviewer}))
	w := httptest.NewRecorder()

	h.MyAssignments(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestExportProgressWritesWorkbook(t *testing.T) {
	h := &Handler{svc: &mockAssignmentService{
		exportFn: func(ctx context.Context) ([]byte, error) {
			return []byte("PK\x03\x04"), nil
		},
	}}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/reports/progress.xlsx", nil)
	w := httptest.NewRecorder()

	h.ExportProgress(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), ".xlsx") {
		t.Fatalf("unexpected disposition %q", w.Header().Get("Content-Disposition"))
	}
	if !strings.HasPrefix(w.Body.String(), "PK") {
		t.Fatalf("expected xlsx payload")
	}
}
