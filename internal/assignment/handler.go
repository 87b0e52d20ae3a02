package assignment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"bilingdash/internal/app/apiresp"
	"bilingdash/internal/auth"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

type Handler struct {
	svc assignmentService
}

type assignmentService interface {
	Assign(ctx context.Context, in AssignInput) (*AssignReport, error)
	BulkComplete(ctx context.Context, paperID uuid.UUID) (*BulkResult, error)
	ListReviewerAssignments(ctx context.Context, reviewerID int64) ([]ReviewerAssignment, error)
	ReviewerSummary(ctx context.Context) ([]ReviewerStat, error)
	ExportProgressExcel(ctx context.Context) ([]byte, error)
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type assignRequest struct {
	Exam           string   `json:"exam"`
	ReviewerEmails []string `json:"reviewer_emails" validate:"omitempty,dive,email"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
		return
	}

	rep, err := h.svc.Assign(r.Context(), AssignInput{ExamName: req.Exam, ReviewerEmails: req.ReviewerEmails})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: rep})
}

func (h *Handler) BulkComplete(w http.ResponseWriter, r *http.Request) {
	paperID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "paperID")))
	if err != nil || paperID == uuid.Nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid paper id"})
		return
	}

	res, err := h.svc.BulkComplete(r.Context(), paperID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: res})
}

func (h *Handler) MyAssignments(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}
	items, err := h.svc.ListReviewerAssignments(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ReviewerSummary(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) ExportProgress(w http.ResponseWriter, r *http.Request) {
	raw, err := h.svc.ExportProgressExcel(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	filename := "review-progress-" + time.Now().Format("20060102") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrPaperNotFound):
		writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrPairNotLinked), errors.Is(err, ErrNoReviewers), errors.Is(err, ErrUnknownReviewers), errors.Is(err, ErrNoPairs):
		writeJSON(w, r, http.StatusUnprocessableEntity, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		log.Printf("assignment request timed out: %v", err)
		writeJSON(w, r, http.StatusServiceUnavailable, apiResponse{OK: false, Error: "operation timed out, safe to retry"})
	default:
		log.Printf("assignment request failed: %v", err)
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
