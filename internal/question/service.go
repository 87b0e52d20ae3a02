package question

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	internaldb "bilingdash/internal/db"
	"bilingdash/internal/model"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrPaperNotFound         = errors.New("paper not found")
	ErrCounterpartNotFound   = errors.New("counterpart paper not found")
	ErrQuestionNotFound      = errors.New("question not found")
	ErrSectionNotFound       = errors.New("section not found")
	ErrSectionPaperMismatch  = errors.New("section belongs to another paper")
	ErrOptionLabelOutOfRange = errors.New("option label must be A-D")
)

const maxBulkSectionMove = 500

type Service struct {
	db *sql.DB
}

type Section struct {
	ID        uuid.UUID `json:"id"`
	ExamID    uuid.UUID `json:"exam_id"`
	PaperID   uuid.UUID `json:"paper_id"`
	Name      string    `json:"name"`
	SortOrder *int      `json:"sort_order,omitempty"`
	Language  string    `json:"language"`
}

type CreateQuestionInput struct {
	PaperID   uuid.UUID
	SectionID *uuid.UUID
	SourceNo  string
	Body      string
	Options   []string
	CreatedBy int64
}

type AuditEntry struct {
	ID         int64           `json:"id"`
	UserID     *int64          `json:"user_id,omitempty"`
	UserName   string          `json:"user_name,omitempty"`
	UserEmail  string          `json:"user_email,omitempty"`
	QuestionID uuid.UUID       `json:"question_id"`
	Action     string          `json:"action"`
	Changes    json.RawMessage `json:"changes"`
	CreatedAt  time.Time       `json:"created_at"`
}

type CleanReport struct {
	PaperID          uuid.UUID `json:"paper_id"`
	QuestionsScanned int       `json:"questions_scanned"`
	BodiesChanged    int       `json:"bodies_changed"`
	OptionsChanged   int       `json:"options_changed"`
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

func (s *Service) GetPaper(ctx context.Context, paperID uuid.UUID) (*model.Paper, error) {
	if paperID == uuid.Nil {
		return nil, ErrInvalidInput
	}
	p, err := scanPaper(s.db.QueryRowContext(ctx, paperSelect+` WHERE p.paper_id = $1`, paperID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaperNotFound
		}
		return nil, fmt.Errorf("load paper: %w", err)
	}
	return p, nil
}

// FindCounterpart returns the paper of the same exam, date and shift in the
// opposite language.
func (s *Service) FindCounterpart(ctx context.Context, p model.Paper) (*model.Paper, error) {
	out, err := scanPaper(s.db.QueryRowContext(ctx, paperSelect+`
		WHERE p.exam_id = $1 AND p.paper_date = $2 AND p.shift_number = $3 AND p.language = $4
	`, p.ExamID, p.PaperDate, p.ShiftNumber, string(p.Language.Opposite())))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCounterpartNotFound
		}
		return nil, fmt.Errorf("load counterpart paper: %w", err)
	}
	return out, nil
}

// LoadPaper returns the paper with its current question versions and options.
func (s *Service) LoadPaper(ctx context.Context, paperID uuid.UUID) (*model.Paper, error) {
	p, err := s.GetPaper(ctx, paperID)
	if err != nil {
		return nil, err
	}
	qs, err := s.ListPaperQuestions(ctx, paperID)
	if err != nil {
		return nil, err
	}
	p.Questions = qs
	return p, nil
}

func (s *Service) ListPaperQuestions(ctx context.Context, paperID uuid.UUID) ([]model.Question, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ON (qv.question_id)
			qv.question_id, qv.version_no, qv.paper_id, qv.language,
			qv.section_id, COALESCE(es.name, ''), es.sort_order,
			qv.source_question_no, qv.body_text
		FROM question_versions qv
		LEFT JOIN exam_sections es ON es.section_id = qv.section_id
		WHERE qv.paper_id = $1
		ORDER BY qv.question_id, qv.version_no DESC
	`, paperID)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	items := make([]model.Question, 0)
	for rows.Next() {
		var (
			q         model.Question
			lang      string
			sectionID uuid.NullUUID
			sortOrder sql.NullInt64
		)
		if err := rows.Scan(
			&q.ID, &q.Version, &q.PaperID, &lang,
			&sectionID, &q.SectionName, &sortOrder,
			&q.SourceNo, &q.Body,
		); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Language = model.Language(lang)
		if sectionID.Valid {
			id := sectionID.UUID
			q.SectionID = &id
		}
		if sortOrder.Valid {
			v := int(sortOrder.Int64)
			q.SectionSortOrder = &v
		}
		items = append(items, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}

	refs := make([]model.QuestionRef, 0, len(items))
	for _, q := range items {
		refs = append(refs, q.Ref())
	}
	opts, err := LoadOptions(ctx, s.db, refs)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Options = opts[items[i].Ref()]
	}
	return items, nil
}

func (s *Service) ListSectionsByExam(ctx context.Context, examID uuid.UUID) ([]Section, error) {
	if examID == uuid.Nil {
		return nil, ErrInvalidInput
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT es.section_id, es.exam_id, es.paper_id, es.name, es.sort_order, p.language
		FROM exam_sections es
		JOIN papers p ON p.paper_id = es.paper_id
		WHERE es.exam_id = $1
		ORDER BY p.language, es.sort_order ASC NULLS LAST, es.name
	`, examID)
	if err != nil {
		return nil, fmt.Errorf("query sections: %w", err)
	}
	defer rows.Close()

	items := make([]Section, 0)
	for rows.Next() {
		var it Section
		var sortOrder sql.NullInt64
		if err := rows.Scan(&it.ID, &it.ExamID, &it.PaperID, &it.Name, &sortOrder, &it.Language); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		if sortOrder.Valid {
			v := int(sortOrder.Int64)
			it.SortOrder = &v
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sections: %w", err)
	}
	return items, nil
}

func (s *Service) CreateQuestion(ctx context.Context, in CreateQuestionInput) (*model.Question, error) {
	in.SourceNo = strings.TrimSpace(in.SourceNo)
	if in.PaperID == uuid.Nil || in.SourceNo == "" || len(in.Options) > model.OptionCount {
		return nil, ErrInvalidInput
	}

	paper, err := s.GetPaper(ctx, in.PaperID)
	if err != nil {
		return nil, err
	}

	out := &model.Question{
		ID:       uuid.New(),
		Version:  1,
		PaperID:  paper.ID,
		Language: paper.Language,
		SourceNo: in.SourceNo,
		Body:     in.Body,
		Options:  padOptions(in.Options),
	}

	err = internaldb.InTx(ctx, s.db, func(tx *sql.Tx) error {
		if in.SectionID != nil {
			if err := ensureSectionInPaper(ctx, tx, *in.SectionID, paper.ID); err != nil {
				return err
			}
			out.SectionID = in.SectionID
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO question_versions (
				question_id, version_no, paper_id, section_id, language,
				source_question_no, body_text, created_at, updated_at
			) VALUES ($1, 1, $2, $3, $4, $5, $6, now(), now())
		`, out.ID, out.PaperID, nullUUIDPtr(out.SectionID), string(out.Language), out.SourceNo, out.Body); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
		if err := UpsertOptionsTx(ctx, tx, out.Ref(), out.Options); err != nil {
			return err
		}
		return RecordEditTx(ctx, tx, in.CreatedBy, out.ID, "create", map[string]any{
			"paper_id":  out.PaperID,
			"source_no": out.SourceNo,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteQuestion removes every version of a question. Options and links
// referencing it go with it through foreign-key cascades.
func (s *Service) DeleteQuestion(ctx context.Context, questionID uuid.UUID, actorID int64) error {
	if questionID == uuid.Nil {
		return ErrInvalidInput
	}
	return internaldb.InTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM question_versions WHERE question_id = $1`, questionID)
		if err != nil {
			return fmt.Errorf("delete question: %w", err)
		}
		n, err := internaldb.RowsAffected(res, "delete question")
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrQuestionNotFound
		}
		return RecordEditTx(ctx, tx, actorID, questionID, "delete", map[string]any{"versions": n})
	})
}

// UpdateQuestionSection moves the current version of a question into another
// section of the same paper.
func (s *Service) UpdateQuestionSection(ctx context.Context, questionID, sectionID uuid.UUID, actorID int64) error {
	if questionID == uuid.Nil || sectionID == uuid.Nil {
		return ErrInvalidInput
	}
	return internaldb.InTx(ctx, s.db, func(tx *sql.Tx) error {
		return moveSectionTx(ctx, tx, questionID, sectionID, actorID, "update_section")
	})
}

// BulkUpdateSection moves several questions into one section. Either every
// question moves or none does. Duplicate ids are moved once.
func (s *Service) BulkUpdateSection(ctx context.Context, questionIDs []uuid.UUID, sectionID uuid.UUID, actorID int64) (int, error) {
	if sectionID == uuid.Nil || len(questionIDs) == 0 || len(questionIDs) > maxBulkSectionMove {
		return 0, ErrInvalidInput
	}
	seen := make(map[uuid.UUID]bool, len(questionIDs))
	ids := make([]uuid.UUID, 0, len(questionIDs))
	for _, id := range questionIDs {
		if id == uuid.Nil {
			return 0, ErrInvalidInput
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	err := internaldb.InTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, id := range ids {
			if err := moveSectionTx(ctx, tx, id, sectionID, actorID, "bulk_update_section"); err != nil {
				return fmt.Errorf("question %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

func moveSectionTx(ctx context.Context, tx *sql.Tx, questionID, sectionID uuid.UUID, actorID int64, action string) error {
	var paperID uuid.UUID
	var versionNo int
	err := tx.QueryRowContext(ctx, `
		SELECT paper_id, version_no
		FROM question_versions
		WHERE question_id = $1
		ORDER BY version_no DESC
		LIMIT 1
		FOR UPDATE
	`, questionID).Scan(&paperID, &versionNo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrQuestionNotFound
		}
		return fmt.Errorf("load question: %w", err)
	}
	if err := ensureSectionInPaper(ctx, tx, sectionID, paperID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE question_versions
		SET section_id = $1, updated_at = now()
		WHERE question_id = $2 AND version_no = $3
	`, sectionID, questionID, versionNo); err != nil {
		return fmt.Errorf("update question section: %w", err)
	}
	return RecordEditTx(ctx, tx, actorID, questionID, action, map[string]any{
		"version_no": versionNo,
		"section_id": sectionID,
	})
}

func (s *Service) History(ctx context.Context, questionID uuid.UUID, limit int) ([]AuditEntry, error) {
	if questionID == uuid.Nil {
		return nil, ErrInvalidInput
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.user_id, COALESCE(u.name, ''), COALESCE(u.email, ''),
			a.question_id, a.action, a.changes::text, a.created_at
		FROM audit_log a
		LEFT JOIN users u ON u.id = a.user_id
		WHERE a.question_id = $1
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT $2
	`, questionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	items := make([]AuditEntry, 0)
	for rows.Next() {
		var (
			it      AuditEntry
			userID  sql.NullInt64
			changes string
		)
		if err := rows.Scan(&it.ID, &userID, &it.UserName, &it.UserEmail, &it.QuestionID, &it.Action, &changes, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		it.Changes = json.RawMessage(changes)
		if userID.Valid {
			v := userID.Int64
			it.UserID = &v
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit log: %w", err)
	}
	return items, nil
}

// CleanPaperText strips promotional and answer-sheet boilerplate from every
// current question body and option of a paper.
func (s *Service) CleanPaperText(ctx context.Context, paperID uuid.UUID, actorID int64) (*CleanReport, error) {
	qs, err := s.ListPaperQuestions(ctx, paperID)
	if err != nil {
		return nil, err
	}
	if len(qs) == 0 {
		if _, err := s.GetPaper(ctx, paperID); err != nil {
			return nil, err
		}
	}

	rep := &CleanReport{PaperID: paperID, QuestionsScanned: len(qs)}
	err = internaldb.InTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, q := range qs {
			body := CleanText(q.Body)
			opts := make([]model.Option, 0, len(q.Options))
			optsChanged := 0
			for _, o := range q.Options {
				cleaned := CleanText(o.Text)
				if cleaned != o.Text {
					optsChanged++
				}
				opts = append(opts, model.Option{Label: o.Label, Text: cleaned})
			}
			if body == q.Body && optsChanged == 0 {
				continue
			}
			if err := UpdateContentTx(ctx, tx, q.Ref(), body, opts); err != nil {
				return err
			}
			if body != q.Body {
				rep.BodiesChanged++
			}
			rep.OptionsChanged += optsChanged
			if err := RecordEditTx(ctx, tx, actorID, q.ID, "clean", map[string]any{
				"version_no":      q.Version,
				"body_changed":    body != q.Body,
				"options_changed": optsChanged,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rep, nil
}

// LoadOptions fetches options for the given question versions, ordered A-D.
func LoadOptions(ctx context.Context, db interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}, refs []model.QuestionRef) (map[model.QuestionRef][]model.Option, error) {
	out := make(map[model.QuestionRef][]model.Option, len(refs))
	if len(refs) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(refs))
	seen := make(map[uuid.UUID]bool, len(refs))
	for _, r := range refs {
		if !seen[r.ID] {
			seen[r.ID] = true
			ids = append(ids, r.ID.String())
		}
	}

	want := make(map[model.QuestionRef]bool, len(refs))
	for _, r := range refs {
		want[r] = true
	}

	rows, err := db.QueryContext(ctx, `
		SELECT question_id, version_no, option_key, option_text
		FROM question_options
		WHERE question_id = ANY($1::uuid[])
		ORDER BY question_id, version_no, option_key
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("query options: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ref model.QuestionRef
		var opt model.Option
		if err := rows.Scan(&ref.ID, &ref.Version, &opt.Label, &opt.Text); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		if want[ref] {
			out[ref] = append(out[ref], opt)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate options: %w", err)
	}
	return out, nil
}

// UpdateContentTx replaces the body and upserts the options of one question
// version inside the caller's transaction.
func UpdateContentTx(ctx context.Context, tx *sql.Tx, ref model.QuestionRef, body string, options []model.Option) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE question_versions
		SET body_text = $1, updated_at = now()
		WHERE question_id = $2 AND version_no = $3
	`, body, ref.ID, ref.Version)
	if err != nil {
		return fmt.Errorf("update question body: %w", err)
	}
	n, err := internaldb.RowsAffected(res, "update question body")
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrQuestionNotFound
	}
	return UpsertOptionsTx(ctx, tx, ref, options)
}

func UpsertOptionsTx(ctx context.Context, tx *sql.Tx, ref model.QuestionRef, options []model.Option) error {
	for _, opt := range options {
		label := strings.ToUpper(strings.TrimSpace(opt.Label))
		if !validOptionLabel(label) {
			return ErrOptionLabelOutOfRange
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO question_options (question_id, version_no, option_key, option_text)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (question_id, version_no, option_key)
			DO UPDATE SET option_text = EXCLUDED.option_text
		`, ref.ID, ref.Version, label, opt.Text); err != nil {
			return fmt.Errorf("upsert option %s: %w", label, err)
		}
	}
	return nil
}

// RecordEditTx appends an audit row. actorID 0 records a system action.
func RecordEditTx(ctx context.Context, tx *sql.Tx, actorID int64, questionID uuid.UUID, action string, changes any) error {
	raw, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("marshal audit changes: %w", err)
	}
	var user any
	if actorID > 0 {
		user = actorID
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO audit_log (user_id, question_id, action, changes, created_at)
		VALUES ($1, $2, $3, $4::jsonb, now())
	`, user, questionID, action, string(raw)); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

const paperSelect = `
	SELECT p.paper_id, p.exam_id, e.name, p.paper_date, p.shift_number, p.language,
		p.caption, p.source_pdf_path, p.mmd_path
	FROM papers p
	JOIN exams e ON e.exam_id = p.exam_id
`

func scanPaper(scanner interface{ Scan(dest ...any) error }) (*model.Paper, error) {
	var p model.Paper
	var lang string
	if err := scanner.Scan(
		&p.ID, &p.ExamID, &p.ExamName, &p.PaperDate, &p.ShiftNumber, &lang,
		&p.Caption, &p.SourcePDFPath, &p.MMDPath,
	); err != nil {
		return nil, err
	}
	p.Language = model.Language(lang)
	return &p, nil
}

func ensureSectionInPaper(ctx context.Context, tx *sql.Tx, sectionID, paperID uuid.UUID) error {
	var owner uuid.UUID
	err := tx.QueryRowContext(ctx, `SELECT paper_id FROM exam_sections WHERE section_id = $1`, sectionID).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrSectionNotFound
		}
		return fmt.Errorf("load section: %w", err)
	}
	if owner != paperID {
		return ErrSectionPaperMismatch
	}
	return nil
}

func padOptions(texts []string) []model.Option {
	out := make([]model.Option, 0, model.OptionCount)
	for i := 0; i < model.OptionCount; i++ {
		text := ""
		if i < len(texts) {
			text = texts[i]
		}
		out = append(out, model.Option{Label: model.OptionLabels[i], Text: text})
	}
	return out
}

func validOptionLabel(label string) bool {
	for _, l := range model.OptionLabels {
		if l == label {
			return true
		}
	}
	return false
}

func nullUUIDPtr(v *uuid.UUID) any {
	if v == nil {
		return nil
	}
	return *v
}
