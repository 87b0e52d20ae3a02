package question

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"bilingdash/internal/app/apiresp"
	"bilingdash/internal/auth"
	"bilingdash/internal/model"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

type Handler struct {
	svc questionService
}

type questionService interface {
	LoadPaper(ctx context.Context, paperID uuid.UUID) (*model.Paper, error)
	ListSectionsByExam(ctx context.Context, examID uuid.UUID) ([]Section, error)
	CreateQuestion(ctx context.Context, in CreateQuestionInput) (*model.Question, error)
	DeleteQuestion(ctx context.Context, questionID uuid.UUID, actorID int64) error
	UpdateQuestionSection(ctx context.Context, questionID, sectionID uuid.UUID, actorID int64) error
	BulkUpdateSection(ctx context.Context, questionIDs []uuid.UUID, sectionID uuid.UUID, actorID int64) (int, error)
	History(ctx context.Context, questionID uuid.UUID, limit int) ([]AuditEntry, error)
	CleanPaperText(ctx context.Context, paperID uuid.UUID, actorID int64) (*CleanReport, error)
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type createQuestionRequest struct {
	PaperID   string   `json:"paper_id" validate:"required,uuid"`
	SectionID string   `json:"section_id" validate:"omitempty,uuid"`
	SourceNo  string   `json:"source_no" validate:"required"`
	Body      string   `json:"body"`
	Options   []string `json:"options" validate:"max=4"`
}

type updateSectionRequest struct {
	SectionID string `json:"section_id" validate:"required,uuid"`
}

type bulkUpdateSectionRequest struct {
	QuestionIDs []string `json:"question_ids" validate:"required,min=1,max=500,dive,uuid"`
	SectionID   string   `json:"section_id" validate:"required,uuid"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) GetPaper(w http.ResponseWriter, r *http.Request) {
	paperID, ok := uuidParam(w, r, "paperID")
	if !ok {
		return
	}
	paper, err := h.svc.LoadPaper(r.Context(), paperID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: paper})
}

func (h *Handler) ListSections(w http.ResponseWriter, r *http.Request) {
	examID, ok := uuidParam(w, r, "examID")
	if !ok {
		return
	}
	items, err := h.svc.ListSectionsByExam(r.Context(), examID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}

	var req createQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
		return
	}

	in := CreateQuestionInput{
		PaperID:   uuid.MustParse(req.PaperID),
		SourceNo:  req.SourceNo,
		Body:      req.Body,
		Options:   req.Options,
		CreatedBy: user.ID,
	}
	if req.SectionID != "" {
		sid := uuid.MustParse(req.SectionID)
		in.SectionID = &sid
	}

	item, err := h.svc.CreateQuestion(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: item})
}

func (h *Handler) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}
	questionID, ok := uuidParam(w, r, "questionID")
	if !ok {
		return
	}
	if err := h.svc.DeleteQuestion(r.Context(), questionID, user.ID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: map[string]string{"status": "deleted"}})
}

func (h *Handler) UpdateSection(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}
	questionID, ok := uuidParam(w, r, "questionID")
	if !ok {
		return
	}

	var req updateSectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
		return
	}

	if err := h.svc.UpdateQuestionSection(r.Context(), questionID, uuid.MustParse(req.SectionID), user.ID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: map[string]string{"status": "updated"}})
}

func (h *Handler) BulkUpdateSection(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}

	var req bulkUpdateSectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
		return
	}

	ids := make([]uuid.UUID, 0, len(req.QuestionIDs))
	for _, v := range req.QuestionIDs {
		ids = append(ids, uuid.MustParse(v))
	}
	moved, err := h.svc.BulkUpdateSection(r.Context(), ids, uuid.MustParse(req.SectionID), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: map[string]int{"moved": moved}})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	questionID, ok := uuidParam(w, r, "questionID")
	if !ok {
		return
	}
	limit := 50
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	items, err := h.svc.History(r.Context(), questionID, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) CleanPaper(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}
	paperID, ok := uuidParam(w, r, "paperID")
	if !ok {
		return
	}
	report, err := h.svc.CleanPaperText(r.Context(), paperID, user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: report})
}

func uuidParam(w http.ResponseWriter, r *http.Request, key string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, key)))
	if err != nil || id == uuid.Nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid " + strings.TrimSuffix(key, "ID") + " id"})
		return uuid.Nil, false
	}
	return id, true
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrOptionLabelOutOfRange):
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrPaperNotFound), errors.Is(err, ErrQuestionNotFound), errors.Is(err, ErrSectionNotFound):
		writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrSectionPaperMismatch):
		writeJSON(w, r, http.StatusUnprocessableEntity, apiResponse{OK: false, Error: err.Error()})
	default:
		log.Printf("question request failed: %v", err)
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload apiResponse) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
