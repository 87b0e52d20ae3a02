package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

type ReviewerImportRowError struct {
	Row   int    `json:"row"`
	Email string `json:"email,omitempty"`
	Error string `json:"error"`
}

type ReviewerImportReport struct {
	TotalRows   int                      `json:"total_rows"`
	SuccessRows int                      `json:"success_rows"`
	SkippedRows int                      `json:"skipped_rows"`
	FailedRows  int                      `json:"failed_rows"`
	Errors      []ReviewerImportRowError `json:"errors"`
}

// ImportReviewersExcel creates one account per data row of the first sheet.
// Columns: email, name, password and an optional role. Existing emails are
// skipped.
func (s *Service) ImportReviewersExcel(ctx context.Context, r io.Reader) (*ReviewerImportReport, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open excel: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: excel sheet is empty", ErrInvalidInput)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: no data rows found", ErrInvalidInput)
	}

	header := map[string]int{}
	for i, h := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range []string{"email", "name", "password"} {
		if _, ok := header[col]; !ok {
			return nil, fmt.Errorf("%w: missing required column: %s", ErrInvalidInput, col)
		}
	}

	report := &ReviewerImportReport{Errors: make([]ReviewerImportRowError, 0)}
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		get := func(key string) string {
			idx, ok := header[key]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		email := normalizeEmail(get("email"))
		if email == "" && get("name") == "" {
			continue
		}
		report.TotalRows++

		_, err := s.CreateReviewer(ctx, CreateReviewerInput{
			Email:    email,
			Name:     get("name"),
			Password: get("password"),
			Role:     get("role"),
		})
		switch {
		case err == nil:
			report.SuccessRows++
		case errors.Is(err, ErrEmailTaken):
			report.SkippedRows++
		default:
			report.FailedRows++
			msg := err.Error()
			if !errors.Is(err, ErrInvalidInput) {
				msg = "cannot create account"
			}
			report.Errors = append(report.Errors, ReviewerImportRowError{Row: i + 1, Email: email, Error: msg})
		}
	}
	return report, nil
}
