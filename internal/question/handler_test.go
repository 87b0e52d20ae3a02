package question

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"bilingdash/internal/auth"
	"bilingdash/internal/model"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type mockQuestionService struct {
	loadPaperFn     func(ctx context.Context, paperID uuid.UUID) (*model.Paper, error)
	listSectionsFn  func(ctx context.Context, examID uuid.UUID) ([]Section, error)
	createFn        func(ctx context.Context, in CreateQuestionInput) (*model.Question, error)
	deleteFn        func(ctx context.Context, questionID uuid.UUID, actorID int64) error
	updateSectionFn func(ctx context.Context, questionID, sectionID uuid.UUID, actorID int64) error
	bulkSectionFn   func(ctx context.Context, questionIDs []uuid.UUID, sectionID uuid.UUID, actorID int64) (int, error)
	historyFn       func(ctx context.Context, questionID uuid.UUID, limit int) ([]AuditEntry, error)
	cleanFn         func(ctx context.Context, paperID uuid.UUID, actorID int64) (*CleanReport, error)
}

func (m *mockQuestionService) LoadPaper(ctx context.Context, paperID uuid.UUID) (*model.Paper, error) {
	if m.loadPaperFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.loadPaperFn(ctx, paperID)
}

func (m *mockQuestionService) ListSectionsByExam(ctx context.Context, examID uuid.UUID) ([]Section, error) {
	if m.listSectionsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listSectionsFn(ctx, examID)
}

func (m *mockQuestionService) CreateQuestion(ctx context.Context, in CreateQuestionInput) (*model.Question, error) {
	if m.createFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.createFn(ctx, in)
}

func (m *mockQuestionService) DeleteQuestion(ctx context.Context, questionID uuid.UUID, actorID int64) error {
	if m.deleteFn == nil {
		return errors.New("not implemented")
	}
	return m.deleteFn(ctx, questionID, actorID)
}

func (m *mockQuestionService) UpdateQuestionSection(ctx context.Context, questionID, sectionID uuid.UUID, actorID int64) error {
	if m.updateSectionFn == nil {
		return errors.New("not implemented")
	}
	return m.updateSectionFn(ctx, questionID, sectionID, actorID)
}

func (m *mockQuestionService) BulkUpdateSection(ctx context.Context, questionIDs []uuid.UUID, sectionID uuid.UUID, actorID int64) (int, error) {
	if m.bulkSectionFn == nil {
		return 0, errors.New("not implemented")
	}
	return m.bulkSectionFn(ctx, questionIDs, sectionID, actorID)
}

func (m *mockQuestionService) History(ctx context.Context, questionID uuid.UUID, limit int) ([]AuditEntry, error) {
	if m.historyFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.historyFn(ctx, questionID, limit)
}

func (m *mockQuestionService) CleanPaperText(ctx context.Context, paperID uuid.UUID, actorID int64) (*CleanReport, error) {
	if m.cleanFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.cleanFn(ctx, paperID, actorID)
}

func decodeMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func withParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func asReviewer(r *http.Request) *http.Request {
	return r.WithContext(auth.ContextWithUser(r.Context(), &auth.User{ID: 5, Role: auth.RoleReviewer}))
}

func TestListSectionsRejectsBadExamID(t *testing.T) {
	h := &Handler{svc: &mockQuestionService{}}
	req := withParam(httptest.NewRequest(http.MethodGet, "/api/v1/exams/x/sections", nil), "examID", "not-a-uuid")
	w := httptest.NewRecorder()

	h.ListSections(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	body := decodeMap(t, w)
	if body["ok"] != false {
		t.Fatalf("expected ok=false, got %v", body["ok"])
	}
}

func TestListSectionsOK(t *testing.T) {
	examID := uuid.New()
	h := &Handler{svc: &mockQuestionService{
		listSectionsFn: func(ctx context.Context, id uuid.UUID) ([]Section, error) {
			if id != examID {
				t.Fatalf("unexpected exam id %s", id)
			}
			return []Section{{ID: uuid.New(), ExamID: id, Name: "Reasoning"}}, nil
		},
	}}
	req := withParam(httptest.NewRequest(http.MethodGet, "/", nil), "examID", examID.String())
	w := httptest.NewRecorder()

	h.ListSections(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	data, ok := decodeMap(t, w)["data"].([]any)
	if !ok || len(data) != 1 {
		t.Fatalf("expected one section, got %v", data)
	}
}

func TestCreateQuestionPassesActorAndSection(t *testing.T) {
	paperID := uuid.New()
	sectionID := uuid.New()
	h := &Handler{svc: &mockQuestionService{
		createFn: func(ctx context.Context, in CreateQuestionInput) (*model.Question, error) {
			if in.PaperID != paperID || in.SectionID == nil || *in.SectionID != sectionID {
				t.Fatalf("unexpected input %+v", in)
			}
			if in.CreatedBy != 5 {
				t.Fatalf("expected actor 5, got %d", in.CreatedBy)
			}
			return &model.Question{ID: uuid.New(), Version: 1, PaperID: paperID, SourceNo: in.SourceNo}, nil
		},
	}}

	payload, _ := json.Marshal(map[string]any{
		"paper_id":   paperID.String(),
		"section_id": sectionID.String(),
		"source_no":  "Q.101",
		"body":       "New question",
		"options":    []string{"1", "2", "3", "4"},
	})
	req := asReviewer(httptest.NewRequest(http.MethodPost, "/api/v1/questions", bytes.NewReader(payload)))
	w := httptest.NewRecorder()

	h.CreateQuestion(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateQuestionRejectsTooManyOptions(t *testing.T) {
	h := &Handler{svc: &mockQuestionService{}}
	payload, _ := json.Marshal(map[string]any{
		"paper_id":  uuid.NewString(),
		"source_no": "Q.1",
		"options":   []string{"1", "2", "3", "4", "5"},
	})
	req := asReviewer(httptest.NewRequest(http.MethodPost, "/api/v1/questions", bytes.NewReader(payload)))
	w := httptest.NewRecorder()

	h.CreateQuestion(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCreateQuestionUnauthorized(t *testing.T) {
	h := &Handler{svc: &mockQuestionService{}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/questions", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()

	h.CreateQuestion(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestDeleteQuestionNotFound(t *testing.T) {
	h := &Handler{svc: &mockQuestionService{
		deleteFn: func(ctx context.Context, questionID uuid.UUID, actorID int64) error {
			return ErrQuestionNotFound
		},
	}}
	req := asReviewer(withParam(httptest.NewRequest(http.MethodDelete, "/", nil), "questionID", uuid.NewString()))
	w := httptest.NewRecorder()

	h.DeleteQuestion(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestUpdateSectionMismatchIs422(t *testing.T) {
	h := &Handler{svc: &mockQuestionService{
		updateSectionFn: func(ctx context.Context, questionID, sectionID uuid.UUID, actorID int64) error {
			return ErrSectionPaperMismatch
		},
	}}
	payload, _ := json.Marshal(map[string]string{"section_id": uuid.NewString()})
	req := httptest.NewRequest(http.MethodPut, "/", bytes.NewReader(payload))
	req = asReviewer(withParam(req, "questionID", uuid.NewString()))
	w := httptest.NewRecorder()

	h.UpdateSection(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
}

func TestBulkUpdateSectionPassesIDs(t *testing.T) {
	sectionID := uuid.New()
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	h := &Handler{svc: &mockQuestionService{
		bulkSectionFn: func(ctx context.Context, questionIDs []uuid.UUID, sid uuid.UUID, actorID int64) (int, error) {
			if sid != sectionID || len(questionIDs) != 2 || questionIDs[0] != ids[0] || questionIDs[1] != ids[1] {
				t.Fatalf("unexpected input: %v %v", questionIDs, sid)
			}
			if actorID != 5 {
				t.Fatalf("expected actor 5, got %d", actorID)
			}
			return 2, nil
		},
	}}
	payload, _ := json.Marshal(map[string]any{
		"question_ids": []string{ids[0].String(), ids[1].String()},
		"section_id":   sectionID.String(),
	})
	req := asReviewer(httptest.NewRequest(http.MethodPut, "/", bytes.NewReader(payload)))
	w := httptest.NewRecorder()

	h.BulkUpdateSection(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	data, _ := decodeMap(t, w)["data"].(map[string]any)
	if data["moved"] != float64(2) {
		t.Fatalf("expected moved=2, got %v", data)
	}
}

func TestBulkUpdateSectionValidation(t *testing.T) {
	h := &Handler{svc: &mockQuestionService{}}
	cases := []map[string]any{
		{"question_ids": []string{}, "section_id": uuid.NewString()},
		{"question_ids": []string{"not-a-uuid"}, "section_id": uuid.NewString()},
		{"question_ids": []string{uuid.NewString()}},
	}
	for _, c := range cases {
		payload, _ := json.Marshal(c)
		req := asReviewer(httptest.NewRequest(http.MethodPut, "/", bytes.NewReader(payload)))
		w := httptest.NewRecorder()

		h.BulkUpdateSection(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %v, got %d", c, w.Code)
		}
	}
}

func TestBulkUpdateSectionMismatchIs422(t *testing.T) {
	h := &Handler{svc: &mockQuestionService{
		bulkSectionFn: func(ctx context.Context, questionIDs []uuid.UUID, sectionID uuid.UUID, actorID int64) (int, error) {
			return 0, ErrSectionPaperMismatch
		},
	}}
	payload, _ := json.Marshal(map[string]any{
		"question_ids": []string{uuid.NewString()},
		"section_id":   uuid.NewString(),
	})
	req := asReviewer(httptest.NewRequest(http.MethodPut, "/", bytes.NewReader(payload)))
	w := httptest.NewRecorder()

	h.BulkUpdateSection(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
}

func TestCleanPaperInternalErrorIsGeneric(t *testing.T) {
	h := &Handler{svc: &mockQuestionService{
		cleanFn: func(ctx context.Context, paperID uuid.UUID, actorID int64) (*CleanReport, error) {
			return nil, errors.New("pq: connection reset")
		},
	}}
	req := asReviewer(withParam(httptest.NewRequest(http.MethodPost, "/", nil), "paperID", uuid.NewString()))
	w := httptest.NewRecorder()

	h.CleanPaper(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	errObj, _ := decodeMap(t, w)["error"].(map[string]any)
	if errObj["message"] != "internal error" {
		t.Fatalf("expected generic message, got %v", errObj["message"])
	}
}
