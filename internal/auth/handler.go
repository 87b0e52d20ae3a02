package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"bilingdash/internal/app/apiresp"

	"github.com/go-playground/validator/v10"
)

type contextKey string

const userContextKey contextKey = "auth_user"

const basicRealm = `Basic realm="bilingdash", charset="UTF-8"`

const maxImportBytes = 10 << 20

var validate = validator.New()

type Handler struct {
	svc authService
}

type authService interface {
	Authenticate(ctx context.Context, email, password string) (*User, error)
	CreateReviewer(ctx context.Context, in CreateReviewerInput) (*User, error)
	ListReviewers(ctx context.Context, role string, activeOnly bool) ([]User, error)
	ImportReviewersExcel(ctx context.Context, r io.Reader) (*ReviewerImportReport, error)
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type createReviewerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"omitempty,oneof=admin reviewer"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: user})
}

func (h *Handler) CreateReviewer(w http.ResponseWriter, r *http.Request) {
	var req createReviewerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
		return
	}

	user, err := h.svc.CreateReviewer(r.Context(), CreateReviewerInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
		case errors.Is(err, ErrEmailTaken):
			writeJSON(w, r, http.StatusConflict, apiResponse{OK: false, Error: err.Error()})
		default:
			log.Printf("create reviewer failed: %v", err)
			writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: user})
}

func (h *Handler) ListReviewers(w http.ResponseWriter, r *http.Request) {
	role := strings.TrimSpace(r.URL.Query().Get("role"))
	activeOnly := strings.TrimSpace(r.URL.Query().Get("active")) == "true"

	items, err := h.svc.ListReviewers(r.Context(), role, activeOnly)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid role"})
			return
		}
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) ImportReviewers(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "file is required"})
		return
	}
	defer func() { _ = file.Close() }()

	report, err := h.svc.ImportReviewersExcel(r.Context(), file)
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: report})
}

// RequireAuth resolves the reviewer from HTTP Basic credentials.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email, password, ok := r.BasicAuth()
		if !ok {
			challenge(w, r)
			return
		}
		user, err := h.svc.Authenticate(r.Context(), email, password)
		if err != nil {
			switch {
			case errors.Is(err, ErrForbidden):
				writeJSON(w, r, http.StatusForbidden, apiResponse{OK: false, Error: "account is not active"})
			case errors.Is(err, ErrInvalidCredentials):
				challenge(w, r)
			default:
				log.Printf("authenticate failed: %v", err)
				writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
			}
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
	})
}

func (h *Handler) RequireRoles(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := CurrentUser(r.Context())
			if !ok {
				writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
				return
			}
			if _, exists := allowed[user.Role]; !exists {
				writeJSON(w, r, http.StatusForbidden, apiResponse{OK: false, Error: "forbidden"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func CurrentUser(ctx context.Context) (*User, bool) {
	v := ctx.Value(userContextKey)
	if v == nil {
		return nil, false
	}
	u, ok := v.(*User)
	return u, ok
}

// ContextWithUser injects an authenticated user into context.
// Useful for tests and internal handlers.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func challenge(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", basicRealm)
	writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload apiResponse) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
