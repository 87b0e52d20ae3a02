package review

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
	"bilingdash/internal/question"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

type Handler struct {
	svc reviewService
}

type reviewService interface {
	GetReviewPage(ctx context.Context, paperID uuid.UUID, page int) (*Page, error)
	Progress(ctx context.Context, paperID uuid.UUID) (*Progress, error)
	Save(ctx context.Context, in SaveInput) (*SaveResult, error)
	ListPairs(ctx context.Context, examName string) ([]PairSummary, error)
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type sideRequest struct {
	QuestionID string   `json:"question_id" validate:"required,uuid"`
	Version    int      `json:"version" validate:"required,min=1"`
	Body       *string  `json:"body" validate:"required"`
	Options    []string `json:"options" validate:"len=4"`
}

type saveRequest struct {
	Status  string       `json:"status" validate:"required,oneof=MANUALLY_CORRECTED FLAGGED"`
	English *sideRequest `json:"english" validate:"required_without=Hindi"`
	Hindi   *sideRequest `json:"hindi" validate:"required_without=English"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) GetReviewPage(w http.ResponseWriter, r *http.Request) {
	paperID, ok := paperParam(w, r)
	if !ok {
		return
	}
	page := 1
	if v := strings.TrimSpace(r.URL.Query().Get("page")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "page must be a positive integer"})
			return
		}
		page = n
	}

	out, err := h.svc.GetReviewPage(r.Context(), paperID, page)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: out})
}

func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	paperID, ok := paperParam(w, r)
	if !ok {
		return
	}
	out, err := h.svc.Progress(r.Context(), paperID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: out})
}

func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}

	linkID, err := strconv.ParseInt(chi.URLParam(r, "linkID"), 10, 64)
	if err != nil || linkID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid link id"})
		return
	}

	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
		return
	}

	status, _ := model.ParseLinkStatus(req.Status)
	out, err := h.svc.Save(r.Context(), SaveInput{
		LinkID:     linkID,
		ReviewerID: user.ID,
		Status:     status,
		English:    req.English.edit(),
		Hindi:      req.Hindi.edit(),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: out})
}

func (h *Handler) ListPairs(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListPairs(r.Context(), strings.TrimSpace(r.URL.Query().Get("exam")))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (s *sideRequest) edit() *SideEdit {
	if s == nil {
		return nil
	}
	opts := make([]model.Option, 0, model.OptionCount)
	for i, text := range s.Options {
		opts = append(opts, model.Option{Label: model.OptionLabels[i], Text: text})
	}
	return &SideEdit{
		QuestionID: uuid.MustParse(s.QuestionID),
		Version:    s.Version,
		Body:       *s.Body,
		Options:    opts,
	}
}

func paperParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "paperID")))
	if err != nil || id == uuid.Nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid paper id"})
		return uuid.Nil, false
	}
	return id, true
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrSideMismatch), errors.Is(err, question.ErrOptionLabelOutOfRange):
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrPaperNotFound), errors.Is(err, ErrLinkNotFound), errors.Is(err, question.ErrQuestionNotFound):
		writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrInvalidTransition):
		writeJSON(w, r, http.StatusConflict, apiResponse{OK: false, Error: err.Error()})
	default:
		log.Printf("review request failed: %v", err)
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
