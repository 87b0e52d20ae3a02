package linking

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"bilingdash/internal/app/apiresp"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

type Handler struct {
	svc linkingService
}

type linkingService interface {
	LinkPair(ctx context.Context, englishID, hindiID uuid.UUID) (*LinkReport, error)
	LinkPaper(ctx context.Context, paperID uuid.UUID) (*LinkReport, error)
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type linkRequest struct {
	PaperID        string `json:"paper_id" validate:"required_without_all=EnglishPaperID HindiPaperID,omitempty,uuid"`
	EnglishPaperID string `json:"english_paper_id" validate:"required_with=HindiPaperID,omitempty,uuid"`
	HindiPaperID   string `json:"hindi_paper_id" validate:"required_with=EnglishPaperID,omitempty,uuid"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Link(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
		return
	}

	var (
		rep *LinkReport
		err error
	)
	if req.EnglishPaperID != "" {
		rep, err = h.svc.LinkPair(r.Context(), uuid.MustParse(req.EnglishPaperID), uuid.MustParse(req.HindiPaperID))
	} else {
		rep, err = h.svc.LinkPaper(r.Context(), uuid.MustParse(req.PaperID))
	}
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
		case errors.Is(err, ErrPaperNotFound):
			writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
		case errors.Is(err, ErrNotBilingualPair):
			writeJSON(w, r, http.StatusUnprocessableEntity, apiResponse{OK: false, Error: err.Error()})
		default:
			log.Printf("link pair failed: %v", err)
			writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: rep})
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload apiResponse) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
