package assignment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	internaldb "bilingdash/internal/db"
	"bilingdash/internal/model"
	"bilingdash/internal/review"

	"github.com/google/uuid"
)

const DefaultBulkTimeout = 2 * time.Minute

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrPaperNotFound    = errors.New("paper not found")
	ErrPairNotLinked    = errors.New("paper has no links yet")
	ErrNoReviewers      = errors.New("no reviewers available")
	ErrUnknownReviewers = errors.New("unknown reviewer emails")
	ErrNoPairs          = errors.New("no linked pairs to assign")
)

type pairLister interface {
	ListPairs(ctx context.Context, examName string) ([]review.PairSummary, error)
}

type Service struct {
	db             *sql.DB
	pairs          pairLister
	reviewerEmails []string
	examFilter     string
	bulkTimeout    time.Duration
}

type Config struct {
	ReviewerEmails []string
	ExamFilter     string
	BulkTimeout    time.Duration
}

type AssignInput struct {
	ExamName       string
	ReviewerEmails []string
}

type AssignReport struct {
	Pairs       int            `json:"pairs"`
	Reviewers   int            `json:"reviewers"`
	Cleared     int            `json:"cleared"`
	Assigned    int            `json:"assigned"`
	PerReviewer map[string]int `json:"per_reviewer"`
	Plan        []Planned      `json:"plan"`
}

type BulkResult struct {
	PaperID              uuid.UUID       `json:"paper_id"`
	Pair                 model.PaperPair `json:"pair"`
	LinksUpdated         int             `json:"links_updated"`
	AssignmentsCompleted int             `json:"assignments_completed"`
}

type ReviewerAssignment struct {
	model.Assignment
	ReviewerEmail  string         `json:"reviewer_email"`
	ExamName       string         `json:"exam_name"`
	PaperDate      time.Time      `json:"paper_date"`
	ShiftNumber    int            `json:"shift_number"`
	Language       model.Language `json:"language"`
	Caption        string         `json:"caption"`
	TotalLinks     int            `json:"total_links"`
	CorrectedLinks int            `json:"corrected_links"`
}

type ReviewerStat struct {
	ReviewerID     int64   `json:"reviewer_id"`
	Email          string  `json:"email"`
	Name           string  `json:"name"`
	Assigned       int     `json:"assigned"`
	Completed      int     `json:"completed"`
	Pending        int     `json:"pending"`
	TotalLinks     int     `json:"total_links"`
	CorrectedLinks int     `json:"corrected_links"`
	ProgressPct    float64 `json:"progress_pct"`
}

func NewService(db *sql.DB, pairs pairLister, cfg Config) *Service {
	if cfg.BulkTimeout <= 0 {
		cfg.BulkTimeout = DefaultBulkTimeout
	}
	return &Service{
		db:             db,
		pairs:          pairs,
		reviewerEmails: normalizeEmails(cfg.ReviewerEmails),
		examFilter:     strings.TrimSpace(cfg.ExamFilter),
		bulkTimeout:    cfg.BulkTimeout,
	}
}

// Assign replaces every assignment of the selected pairs with a fresh round
// robin plan. Re-running with the same inputs yields the same end state.
func (s *Service) Assign(ctx context.Context, in AssignInput) (*AssignReport, error) {
	exam := strings.TrimSpace(in.ExamName)
	if exam == "" {
		exam = s.examFilter
	}
	emails := normalizeEmails(in.ReviewerEmails)
	if len(emails) == 0 {
		emails = s.reviewerEmails
	}

	summaries, err := s.pairs.ListPairs(ctx, exam)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, ErrNoPairs
	}
	pairs := make([]model.PaperPair, 0, len(summaries))
	for _, p := range summaries {
		pairs = append(pairs, model.PaperPair{English: p.EnglishPaperID, Hindi: p.HindiPaperID})
	}

	reviewers, err := s.loadReviewers(ctx, emails)
	if err != nil {
		return nil, err
	}
	if len(reviewers) == 0 {
		return nil, ErrNoReviewers
	}

	plan := Plan(pairs, reviewers)
	paperIDs := make([]string, 0, len(plan))
	for _, a := range plan {
		paperIDs = append(paperIDs, a.PaperID.String())
	}

	rep := &AssignReport{
		Pairs:       len(pairs),
		Reviewers:   len(reviewers),
		PerReviewer: make(map[string]int, len(reviewers)),
		Plan:        plan,
	}
	emailByID := make(map[int64]string, len(reviewers))
	for _, r := range reviewers {
		emailByID[r.ID] = r.Email
	}

	err = internaldb.InTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM review_assignments WHERE paper_id = ANY($1::uuid[])`, paperIDs)
		if err != nil {
			return fmt.Errorf("clear assignments: %w", err)
		}
		n, err := internaldb.RowsAffected(res, "clear assignments")
		if err != nil {
			return err
		}
		rep.Cleared = int(n)

		for _, a := range plan {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO review_assignments (paper_id, reviewer_id, status, assigned_at)
				VALUES ($1, $2, 'PENDING', now())
			`, a.PaperID, a.ReviewerID); err != nil {
				return fmt.Errorf("insert assignment: %w", err)
			}
			rep.Assigned++
			if a.Language == model.LanguageEnglish {
				rep.PerReviewer[emailByID[a.ReviewerID]]++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("assignments replaced pairs=%d reviewers=%d cleared=%d assigned=%d exam=%q",
		rep.Pairs, rep.Reviewers, rep.Cleared, rep.Assigned, exam)
	return rep, nil
}

// BulkComplete marks every link of the paper's pair corrected and closes both
// assignments in one transaction. Rows already corrected are not counted.
func (s *Service) BulkComplete(ctx context.Context, paperID uuid.UUID) (*BulkResult, error) {
	if paperID == uuid.Nil {
		return nil, ErrInvalidInput
	}
	ctx, cancel := context.WithTimeout(ctx, s.bulkTimeout)
	defer cancel()

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM papers WHERE paper_id = $1)`, paperID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check paper: %w", err)
	}
	if !exists {
		return nil, ErrPaperNotFound
	}

	pair, err := review.ResolvePair(ctx, s.db, paperID)
	if err != nil {
		return nil, err
	}
	if pair == nil {
		return nil, ErrPairNotLinked
	}

	out := &BulkResult{PaperID: paperID, Pair: *pair}
	err = internaldb.InTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE question_links
			SET status = 'MANUALLY_CORRECTED', updated_score = 1.0, updated_at = now()
			WHERE (paper_id_english IN ($1, $2) OR paper_id_hindi IN ($1, $2))
				AND (status <> 'MANUALLY_CORRECTED' OR updated_score IS DISTINCT FROM 1.0)
		`, pair.English, pair.Hindi)
		if err != nil {
			return fmt.Errorf("update links: %w", err)
		}
		n, err := internaldb.RowsAffected(res, "update links")
		if err != nil {
			return err
		}
		out.LinksUpdated = int(n)

		res, err = tx.ExecContext(ctx, `
			UPDATE review_assignments
			SET status = 'COMPLETED', completed_at = now()
			WHERE paper_id IN ($1, $2) AND status <> 'COMPLETED'
		`, pair.English, pair.Hindi)
		if err != nil {
			return fmt.Errorf("complete assignments: %w", err)
		}
		n, err = internaldb.RowsAffected(res, "complete assignments")
		if err != nil {
			return err
		}
		out.AssignmentsCompleted = int(n)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("bulk complete paper=%s en=%s hi=%s links_updated=%d assignments_completed=%d",
		paperID, pair.English, pair.Hindi, out.LinksUpdated, out.AssignmentsCompleted)
	return out, nil
}

func (s *Service) ListReviewerAssignments(ctx context.Context, reviewerID int64) ([]ReviewerAssignment, error) {
	if reviewerID <= 0 {
		return nil, ErrInvalidInput
	}
	return s.listAssignments(ctx, reviewerID)
}

func (s *Service) ReviewerSummary(ctx context.Context) ([]ReviewerStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.email, u.name,
			COUNT(ra.id),
			COUNT(ra.id) FILTER (WHERE ra.status = 'COMPLETED'),
			COALESCE(SUM(lc.total), 0),
			COALESCE(SUM(lc.corrected), 0)
		FROM users u
		LEFT JOIN review_assignments ra ON ra.reviewer_id = u.id
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS total,
				COUNT(*) FILTER (WHERE ql.status = 'MANUALLY_CORRECTED') AS corrected
			FROM question_links ql
			WHERE ql.paper_id_english = ra.paper_id
		) lc ON TRUE
		WHERE u.role = 'reviewer' OR ra.id IS NOT NULL
		GROUP BY u.id, u.email, u.name
		ORDER BY u.email
	`)
	if err != nil {
		return nil, fmt.Errorf("query reviewer summary: %w", err)
	}
	defer rows.Close()

	items := make([]ReviewerStat, 0)
	for rows.Next() {
		var it ReviewerStat
		if err := rows.Scan(&it.ReviewerID, &it.Email, &it.Name, &it.Assigned, &it.Completed, &it.TotalLinks, &it.CorrectedLinks); err != nil {
			return nil, fmt.Errorf("scan reviewer summary: %w", err)
		}
		it.Pending = it.Assigned - it.Completed
		if it.TotalLinks > 0 {
			it.ProgressPct = float64(it.CorrectedLinks) * 100 / float64(it.TotalLinks)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviewer summary: %w", err)
	}
	return items, nil
}

// listAssignments returns assignments of one reviewer, or of everyone when
// reviewerID is 0.
func (s *Service) listAssignments(ctx context.Context, reviewerID int64) ([]ReviewerAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ra.id, ra.paper_id, ra.reviewer_id, ra.status, ra.assigned_at, ra.completed_at,
			u.email, e.name, p.paper_date, p.shift_number, p.language, p.caption,
			lc.total, lc.corrected
		FROM review_assignments ra
		JOIN users u ON u.id = ra.reviewer_id
		JOIN papers p ON p.paper_id = ra.paper_id
		JOIN exams e ON e.exam_id = p.exam_id
		CROSS JOIN LATERAL (
			SELECT COUNT(*) AS total,
				COUNT(*) FILTER (WHERE ql.status = 'MANUALLY_CORRECTED') AS corrected
			FROM question_links ql
			WHERE ql.paper_id_english = ra.paper_id OR ql.paper_id_hindi = ra.paper_id
		) lc
		WHERE ($1::bigint = 0 OR ra.reviewer_id = $1)
		ORDER BY u.email, e.name, p.paper_date, p.shift_number, p.language
	`, reviewerID)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()

	items := make([]ReviewerAssignment, 0)
	for rows.Next() {
		var (
			it          ReviewerAssignment
			status      string
			lang        string
			completedAt sql.NullTime
		)
		if err := rows.Scan(
			&it.ID, &it.PaperID, &it.ReviewerID, &status, &it.AssignedAt, &completedAt,
			&it.ReviewerEmail, &it.ExamName, &it.PaperDate, &it.ShiftNumber, &lang, &it.Caption,
			&it.TotalLinks, &it.CorrectedLinks,
		); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		it.Status = model.AssignmentStatus(status)
		it.Language = model.Language(lang)
		if completedAt.Valid {
			v := completedAt.Time
			it.CompletedAt = &v
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}
	return items, nil
}

// loadReviewers resolves the roster ordered by email. With no configured
// emails every active reviewer account takes part.
func (s *Service) loadReviewers(ctx context.Context, emails []string) ([]Reviewer, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if len(emails) > 0 {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, email, name FROM users
			WHERE email = ANY($1::text[]) AND is_active = TRUE
			ORDER BY email
		`, emails)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, email, name FROM users
			WHERE role = 'reviewer' AND is_active = TRUE
			ORDER BY email
		`)
	}
	if err != nil {
		return nil, fmt.Errorf("query reviewers: %w", err)
	}
	defer rows.Close()

	out := make([]Reviewer, 0)
	for rows.Next() {
		var r Reviewer
		if err := rows.Scan(&r.ID, &r.Email, &r.Name); err != nil {
			return nil, fmt.Errorf("scan reviewer: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviewers: %w", err)
	}

	if len(emails) > 0 && len(out) != len(emails) {
		found := make(map[string]bool, len(out))
		for _, r := range out {
			found[r.Email] = true
		}
		missing := make([]string, 0)
		for _, e := range emails {
			if !found[e] {
				missing = append(missing, e)
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownReviewers, strings.Join(missing, ", "))
	}
	return out, nil
}

func normalizeEmails(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, e := range in {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}
