package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidInput       = errors.New("invalid input")
	ErrEmailTaken         = errors.New("email already registered")
)

const (
	RoleAdmin    = "admin"
	RoleReviewer = "reviewer"
)

const minPasswordLen = 8

type Service struct {
	db         *sql.DB
	bcryptCost int
}

type ServiceConfig struct {
	BcryptCost int
}

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateReviewerInput struct {
	Email    string
	Name     string
	Password string
	Role     string
}

func NewService(db *sql.DB, cfg ServiceConfig) *Service {
	if cfg.BcryptCost <= 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{db: db, bcryptCost: cfg.BcryptCost}
}

func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	var u User
	var passwordHash string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, role, is_active, created_at, password_hash
		FROM users
		WHERE email = $1
	`, email).Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.IsActive, &u.CreatedAt, &passwordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrForbidden
	}
	return &u, nil
}

func (s *Service) CreateReviewer(ctx context.Context, in CreateReviewerInput) (*User, error) {
	email := normalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	role := strings.ToLower(strings.TrimSpace(in.Role))
	if role == "" {
		role = RoleReviewer
	}
	if email == "" || name == "" || !isValidRole(role) || len(strings.TrimSpace(in.Password)) < minPasswordLen {
		return nil, fmt.Errorf("%w: email, name, role and password(>=%d) are required", ErrInvalidInput, minPasswordLen)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var out User
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, name, password_hash, role, is_active, created_at)
		VALUES ($1, $2, $3, $4, TRUE, now())
		ON CONFLICT (email) DO NOTHING
		RETURNING id, email, name, role, is_active, created_at
	`, email, name, string(hash), role).Scan(&out.ID, &out.Email, &out.Name, &out.Role, &out.IsActive, &out.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create reviewer: %w", err)
	}
	return &out, nil
}

// ListReviewers returns the roster ordered by email. An empty role lists
// every account.
func (s *Service) ListReviewers(ctx context.Context, role string, activeOnly bool) ([]User, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role != "" && !isValidRole(role) {
		return nil, ErrInvalidInput
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, name, role, is_active, created_at
		FROM users
		WHERE ($1 = '' OR role = $1)
			AND ($2 = FALSE OR is_active = TRUE)
		ORDER BY email ASC
	`, role, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.IsActive, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return items, nil
}

func isValidRole(role string) bool {
	return role == RoleAdmin || role == RoleReviewer
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
