package repair

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"bilingdash/internal/app/apiresp"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type Handler struct {
	svc repairService
}

type repairService interface {
	FixLatex(ctx context.Context, text string) (*Result, error)
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type fixLatexRequest struct {
	Text *string `json:"text" validate:"required"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) FixLatex(w http.ResponseWriter, r *http.Request) {
	var req fixLatexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "text is required"})
		return
	}

	res, err := h.svc.FixLatex(r.Context(), *req.Text)
	if err != nil {
		switch {
		case errors.Is(err, ErrDisabled):
			writeJSON(w, r, http.StatusServiceUnavailable, apiResponse{OK: false, Error: err.Error()})
		case errors.Is(err, ErrInvalidInput):
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
		default:
			log.Printf("fix latex failed: %v", err)
			writeJSON(w, r, http.StatusBadGateway, apiResponse{OK: false, Error: "repair service unavailable"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: res})
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload apiResponse) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
