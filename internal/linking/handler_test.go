package linking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

type mockLinkingService struct {
	linkPairFn  func(ctx context.Context, englishID, hindiID uuid.UUID) (*LinkReport, error)
	linkPaperFn func(ctx context.Context, paperID uuid.UUID) (*LinkReport, error)
}

func (m *mockLinkingService) LinkPair(ctx context.Context, englishID, hindiID uuid.UUID) (*LinkReport, error) {
	if m.linkPairFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.linkPairFn(ctx, englishID, hindiID)
}

func (m *mockLinkingService) LinkPaper(ctx context.Context, paperID uuid.UUID) (*LinkReport, error) {
	if m.linkPaperFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.linkPaperFn(ctx, paperID)
}

func postLink(t *testing.T, h *Handler, body map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/pairs/link", bytes.NewReader(raw))
	w := httptest.NewRecorder()
	h.Link(w, req)
	return w
}

func TestLinkByPairIDs(t *testing.T) {
	en, hi := uuid.New(), uuid.New()
	h := &Handler{svc: &mockLinkingService{
		linkPairFn: func(ctx context.Context, englishID, hindiID uuid.UUID) (*LinkReport, error) {
			if englishID != en || hindiID != hi {
				t.Fatalf("unexpected ids %s %s", englishID, hindiID)
			}
			return &LinkReport{EnglishPaperID: en, HindiPaperID: hi, Created: 3}, nil
		},
	}}

	w := postLink(t, h, map[string]string{"english_paper_id": en.String(), "hindi_paper_id": hi.String()})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestLinkBySinglePaper(t *testing.T) {
	id := uuid.New()
	h := &Handler{svc: &mockLinkingService{
		linkPaperFn: func(ctx context.Context, paperID uuid.UUID) (*LinkReport, error) {
			if paperID != id {
				t.Fatalf("unexpected id %s", paperID)
			}
			return &LinkReport{}, nil
		},
	}}

	w := postLink(t, h, map[string]string{"paper_id": id.String()})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestLinkRequiresBothSides(t *testing.T) {
	h := &Handler{svc: &mockLinkingService{}}

	cases := []map[string]string{
		{},
		{"english_paper_id": uuid.NewString()},
		{"paper_id": "nope"},
	}
	for _, body := range cases {
		if w := postLink(t, h, body); w.Code != http.StatusBadRequest {
			t.Fatalf("body %v: expected 400, got %d", body, w.Code)
		}
	}
}

func TestLinkNotBilingualPairIs422(t *testing.T) {
	h := &Handler{svc: &mockLinkingService{
		linkPairFn: func(ctx context.Context, englishID, hindiID uuid.UUID) (*LinkReport, error) {
			return nil, ErrNotBilingualPair
		},
	}}

	w := postLink(t, h, map[string]string{"english_paper_id": uuid.NewString(), "hindi_paper_id": uuid.NewString()})

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
}
