package review

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"bilingdash/internal/consistency"
	internaldb "bilingdash/internal/db"
	"bilingdash/internal/model"
	"bilingdash/internal/question"

	"github.com/google/uuid"
)

const DefaultPageSize = 100

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrPaperNotFound     = errors.New("paper not found")
	ErrLinkNotFound      = errors.New("link not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrSideMismatch      = errors.New("edited question does not belong to link")
)

type Service struct {
	db       *sql.DB
	pageSize int
}

type Config struct {
	PageSize int
}

type Side struct {
	QuestionID    uuid.UUID      `json:"question_id"`
	Version       int            `json:"version"`
	SourceNo      string         `json:"source_no"`
	DisplayNumber *int           `json:"display_number,omitempty"`
	SectionName   string         `json:"section_name"`
	Body          string         `json:"body"`
	Options       []model.Option `json:"options"`
}

func (s *Side) ref() model.QuestionRef {
	return model.QuestionRef{ID: s.QuestionID, Version: s.Version}
}

type Row struct {
	LinkID           int64               `json:"link_id"`
	Status           model.LinkStatus    `json:"status"`
	SimilarityScore  float64             `json:"similarity_score"`
	UpdatedScore     *float64            `json:"updated_score,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	SectionSortOrder *int                `json:"section_sort_order,omitempty"`
	English          *Side               `json:"english,omitempty"`
	Hindi            *Side               `json:"hindi,omitempty"`
	Unlinked         bool                `json:"unlinked"`
	Validation       *consistency.Report `json:"validation,omitempty"`
}

func (r Row) englishNumber() *int {
	if r.English == nil {
		return nil
	}
	return r.English.DisplayNumber
}

type DocumentInfo struct {
	PaperID       uuid.UUID      `json:"paper_id"`
	Language      model.Language `json:"language"`
	Caption       string         `json:"caption"`
	SourcePDFPath string         `json:"source_pdf_path,omitempty"`
	MMDPath       string         `json:"mmd_path,omitempty"`
}

type Page struct {
	PaperID    uuid.UUID     `json:"paper_id"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalCount int           `json:"total_count"`
	TotalPages int           `json:"total_pages"`
	English    *DocumentInfo `json:"english,omitempty"`
	Hindi      *DocumentInfo `json:"hindi,omitempty"`
	Rows       []Row         `json:"rows"`
}

type Progress struct {
	PaperID   uuid.UUID        `json:"paper_id"`
	Pair      *model.PaperPair `json:"pair,omitempty"`
	Total     int              `json:"total"`
	Corrected int              `json:"corrected"`
	Ratio     float64          `json:"ratio"`
	ByStatus  map[string]int   `json:"by_status"`
}

type SideEdit struct {
	QuestionID uuid.UUID
	Version    int
	Body       string
	Options    []model.Option
}

type SaveInput struct {
	LinkID     int64
	ReviewerID int64
	Status     model.LinkStatus
	English    *SideEdit
	Hindi      *SideEdit
}

type SaveResult struct {
	LinkID               int64               `json:"link_id"`
	Status               model.LinkStatus    `json:"status"`
	UpdatedScore         *float64            `json:"updated_score,omitempty"`
	AssignmentsCompleted bool                `json:"assignments_completed"`
	Validation           *consistency.Report `json:"validation,omitempty"`
}

type PairSummary struct {
	EnglishPaperID  uuid.UUID `json:"english_paper_id"`
	HindiPaperID    uuid.UUID `json:"hindi_paper_id"`
	ExamName        string    `json:"exam_name"`
	PaperDate       time.Time `json:"paper_date"`
	ShiftNumber     int       `json:"shift_number"`
	EnglishCaption  string    `json:"english_caption"`
	HindiCaption    string    `json:"hindi_caption"`
	TotalLinks      int       `json:"total_links"`
	MatchedLinks    int       `json:"matched_links"`
	CorrectedLinks  int       `json:"corrected_links"`
	AvgSimilarity   float64   `json:"avg_similarity"`
	ProgressPercent float64   `json:"progress_percent"`
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func NewService(db *sql.DB, cfg Config) *Service {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	return &Service{db: db, pageSize: cfg.PageSize}
}

func (s *Service) GetReviewPage(ctx context.Context, paperID uuid.UUID, page int) (*Page, error) {
	if paperID == uuid.Nil {
		return nil, ErrInvalidInput
	}
	if page < 1 {
		page = 1
	}

	doc, err := loadDocument(ctx, s.db, paperID)
	if err != nil {
		return nil, err
	}

	out := &Page{PaperID: paperID, Page: page, PageSize: s.pageSize, Rows: []Row{}}
	pair, err := ResolvePair(ctx, s.db, paperID)
	if err != nil {
		return nil, err
	}
	if pair == nil {
		if doc.Language == model.LanguageHindi {
			out.Hindi = doc
		} else {
			out.English = doc
		}
		return out, nil
	}

	if out.English, err = loadDocument(ctx, s.db, pair.English); err != nil {
		return nil, err
	}
	if out.Hindi, err = loadDocument(ctx, s.db, pair.Hindi); err != nil {
		return nil, err
	}

	rows, err := s.loadPairRows(ctx, *pair)
	if err != nil {
		return nil, err
	}
	SortRows(rows)

	out.TotalCount = len(rows)
	pageRows, totalPages := paginate(rows, page, s.pageSize)
	out.TotalPages = totalPages

	refs := make([]model.QuestionRef, 0, len(pageRows)*2)
	for _, r := range pageRows {
		if r.English != nil {
			refs = append(refs, r.English.ref())
		}
		if r.Hindi != nil {
			refs = append(refs, r.Hindi.ref())
		}
	}
	opts, err := question.LoadOptions(ctx, s.db, refs)
	if err != nil {
		return nil, err
	}

	for i := range pageRows {
		r := &pageRows[i]
		if r.English != nil {
			r.English.Options = opts[r.English.ref()]
		}
		if r.Hindi != nil {
			r.Hindi.Options = opts[r.Hindi.ref()]
		}
		r.Unlinked = r.English == nil || r.Hindi == nil
		if !r.Unlinked {
			rep := consistency.Validate(snapshotOf(r.English, r.Hindi))
			r.Validation = &rep
		}
	}
	out.Rows = pageRows
	return out, nil
}

func (s *Service) Progress(ctx context.Context, paperID uuid.UUID) (*Progress, error) {
	if paperID == uuid.Nil {
		return nil, ErrInvalidInput
	}
	if _, err := loadDocument(ctx, s.db, paperID); err != nil {
		return nil, err
	}

	out := &Progress{PaperID: paperID, ByStatus: map[string]int{}}
	pair, err := ResolvePair(ctx, s.db, paperID)
	if err != nil {
		return nil, err
	}
	if pair == nil {
		return out, nil
	}
	out.Pair = pair

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM question_links
		WHERE paper_id_english IN ($1, $2) OR paper_id_hindi IN ($1, $2)
		GROUP BY status
	`, pair.English, pair.Hindi)
	if err != nil {
		return nil, fmt.Errorf("query progress: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		out.ByStatus[status] = n
		out.Total += n
		if model.LinkStatus(status) == model.StatusManuallyCorrected {
			out.Corrected += n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress: %w", err)
	}
	if out.Total > 0 {
		out.Ratio = float64(out.Corrected) / float64(out.Total)
	}
	return out, nil
}

// Save persists a reviewer's edits and moves the link to the requested
// status. Validation findings are reported but never block the write.
func (s *Service) Save(ctx context.Context, in SaveInput) (*SaveResult, error) {
	if in.LinkID <= 0 || (in.English == nil && in.Hindi == nil) {
		return nil, ErrInvalidInput
	}
	if in.Status != model.StatusManuallyCorrected && in.Status != model.StatusFlagged {
		return nil, fmt.Errorf("%w: status must be %s or %s", ErrInvalidInput, model.StatusManuallyCorrected, model.StatusFlagged)
	}
	for _, e := range []*SideEdit{in.English, in.Hindi} {
		if e != nil && len(e.Options) != model.OptionCount {
			return nil, fmt.Errorf("%w: exactly %d options are required", ErrInvalidInput, model.OptionCount)
		}
	}

	out := &SaveResult{LinkID: in.LinkID, Status: in.Status}
	err := internaldb.InTx(ctx, s.db, func(tx *sql.Tx) error {
		link, err := lockLinkTx(ctx, tx, in.LinkID)
		if err != nil {
			return err
		}
		if !model.CanTransition(link.Status, in.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, link.Status, in.Status)
		}
		if err := checkSide(link.English, in.English); err != nil {
			return err
		}
		if err := checkSide(link.Hindi, in.Hindi); err != nil {
			return err
		}

		for _, e := range []*SideEdit{in.English, in.Hindi} {
			if e == nil {
				continue
			}
			ref := model.QuestionRef{ID: e.QuestionID, Version: e.Version}
			if err := question.UpdateContentTx(ctx, tx, ref, e.Body, e.Options); err != nil {
				return err
			}
			if err := question.RecordEditTx(ctx, tx, in.ReviewerID, e.QuestionID, "review_save", map[string]any{
				"link_id":    link.ID,
				"version_no": e.Version,
				"status":     in.Status,
				"body":       e.Body,
				"options":    e.Options,
			}); err != nil {
				return err
			}
		}

		var score sql.NullFloat64
		if err := tx.QueryRowContext(ctx, `
			UPDATE question_links
			SET status = $1::text,
				updated_score = CASE WHEN $1::text = 'MANUALLY_CORRECTED' THEN 1.0 ELSE updated_score END,
				updated_at = now()
			WHERE id = $2
			RETURNING updated_score
		`, string(in.Status), link.ID).Scan(&score); err != nil {
			return fmt.Errorf("update link: %w", err)
		}
		if score.Valid {
			v := score.Float64
			out.UpdatedScore = &v
		}

		done, err := completeAssignmentsIfDoneTx(ctx, tx, link.EnglishPaperID, link.HindiPaperID)
		if err != nil {
			return err
		}
		out.AssignmentsCompleted = done

		if link.English != nil && link.Hindi != nil {
			en, err := loadSideTx(ctx, tx, *link.English)
			if err != nil {
				return err
			}
			hi, err := loadSideTx(ctx, tx, *link.Hindi)
			if err != nil {
				return err
			}
			rep := consistency.Validate(snapshotOf(en, hi))
			out.Validation = &rep
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("link saved link_id=%d reviewer_id=%d status=%s assignments_completed=%t",
		in.LinkID, in.ReviewerID, in.Status, out.AssignmentsCompleted)
	return out, nil
}

// ListPairs summarises every linked bilingual pair.
func (s *Service) ListPairs(ctx context.Context, examName string) ([]PairSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			ql.paper_id_english, ql.paper_id_hindi, e.name, pe.paper_date, pe.shift_number,
			pe.caption, ph.caption,
			COUNT(*),
			COUNT(*) FILTER (WHERE ql.english_question_id IS NOT NULL AND ql.hindi_question_id IS NOT NULL),
			COUNT(*) FILTER (WHERE ql.status = 'MANUALLY_CORRECTED'),
			COALESCE(AVG(ql.similarity_score) FILTER (WHERE ql.english_question_id IS NOT NULL AND ql.hindi_question_id IS NOT NULL), 0)
		FROM question_links ql
		JOIN papers pe ON pe.paper_id = ql.paper_id_english
		JOIN papers ph ON ph.paper_id = ql.paper_id_hindi
		JOIN exams e ON e.exam_id = pe.exam_id
		WHERE ($1::text = '' OR e.name ILIKE '%' || $1::text || '%')
		GROUP BY ql.paper_id_english, ql.paper_id_hindi, e.name, pe.paper_date, pe.shift_number, pe.caption, ph.caption
		ORDER BY e.name, pe.paper_date, pe.shift_number, ql.paper_id_english
	`, examName)
	if err != nil {
		return nil, fmt.Errorf("query pairs: %w", err)
	}
	defer rows.Close()

	items := make([]PairSummary, 0)
	for rows.Next() {
		var it PairSummary
		if err := rows.Scan(
			&it.EnglishPaperID, &it.HindiPaperID, &it.ExamName, &it.PaperDate, &it.ShiftNumber,
			&it.EnglishCaption, &it.HindiCaption,
			&it.TotalLinks, &it.MatchedLinks, &it.CorrectedLinks, &it.AvgSimilarity,
		); err != nil {
			return nil, fmt.Errorf("scan pair: %w", err)
		}
		if it.TotalLinks > 0 {
			it.ProgressPercent = float64(it.CorrectedLinks) * 100 / float64(it.TotalLinks)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pairs: %w", err)
	}
	return items, nil
}

// ResolvePair finds the bilingual pair of paperID through its existing links.
// It returns nil when the paper has not been linked yet.
func ResolvePair(ctx context.Context, q querier, paperID uuid.UUID) (*model.PaperPair, error) {
	var pair model.PaperPair
	err := q.QueryRowContext(ctx, `
		SELECT paper_id_english, paper_id_hindi
		FROM question_links
		WHERE paper_id_english = $1 OR paper_id_hindi = $1
		ORDER BY id
		LIMIT 1
	`, paperID).Scan(&pair.English, &pair.Hindi)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve pair: %w", err)
	}
	return &pair, nil
}

func loadDocument(ctx context.Context, q querier, paperID uuid.UUID) (*DocumentInfo, error) {
	var d DocumentInfo
	var lang string
	err := q.QueryRowContext(ctx, `
		SELECT paper_id, language, caption, source_pdf_path, mmd_path
		FROM papers
		WHERE paper_id = $1
	`, paperID).Scan(&d.PaperID, &lang, &d.Caption, &d.SourcePDFPath, &d.MMDPath)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaperNotFound
		}
		return nil, fmt.Errorf("load paper: %w", err)
	}
	d.Language = model.Language(lang)
	return &d, nil
}

func (s *Service) loadPairRows(ctx context.Context, pair model.PaperPair) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			ql.id, ql.status, ql.similarity_score, ql.updated_score, ql.created_at,
			ql.english_question_id, ql.english_version_no, eq.source_question_no, eq.body_text, es.name, es.sort_order,
			ql.hindi_question_id, ql.hindi_version_no, hq.source_question_no, hq.body_text, hs.name, hs.sort_order
		FROM question_links ql
		LEFT JOIN question_versions eq
			ON eq.question_id = ql.english_question_id AND eq.version_no = ql.english_version_no
		LEFT JOIN exam_sections es ON es.section_id = eq.section_id
		LEFT JOIN question_versions hq
			ON hq.question_id = ql.hindi_question_id AND hq.version_no = ql.hindi_version_no
		LEFT JOIN exam_sections hs ON hs.section_id = hq.section_id
		WHERE ql.paper_id_english = $1 AND ql.paper_id_hindi = $2
	`, pair.English, pair.Hindi)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	out := make([]Row, 0)
	for rows.Next() {
		var (
			r            Row
			status       string
			updatedScore sql.NullFloat64
			en, hi       sideColumns
		)
		if err := rows.Scan(
			&r.LinkID, &status, &r.SimilarityScore, &updatedScore, &r.CreatedAt,
			&en.id, &en.version, &en.sourceNo, &en.body, &en.section, &en.sortOrder,
			&hi.id, &hi.version, &hi.sourceNo, &hi.body, &hi.section, &hi.sortOrder,
		); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		r.Status = model.LinkStatus(status)
		if updatedScore.Valid {
			v := updatedScore.Float64
			r.UpdatedScore = &v
		}
		r.English = en.side()
		r.Hindi = hi.side()
		r.SectionSortOrder = en.sortOrderPtr()
		if r.SectionSortOrder == nil {
			r.SectionSortOrder = hi.sortOrderPtr()
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return out, nil
}

type sideColumns struct {
	id        uuid.NullUUID
	version   sql.NullInt64
	sourceNo  sql.NullString
	body      sql.NullString
	section   sql.NullString
	sortOrder sql.NullInt64
}

func (c sideColumns) side() *Side {
	if !c.id.Valid {
		return nil
	}
	s := &Side{
		QuestionID:  c.id.UUID,
		Version:     int(c.version.Int64),
		SourceNo:    c.sourceNo.String,
		SectionName: c.section.String,
		Body:        c.body.String,
	}
	if n, ok := model.DisplayNumber(s.SourceNo); ok {
		s.DisplayNumber = &n
	}
	return s
}

func (c sideColumns) sortOrderPtr() *int {
	if !c.id.Valid || !c.sortOrder.Valid {
		return nil
	}
	v := int(c.sortOrder.Int64)
	return &v
}

type lockedLink struct {
	ID             int64
	EnglishPaperID uuid.UUID
	HindiPaperID   uuid.UUID
	English        *model.QuestionRef
	Hindi          *model.QuestionRef
	Status         model.LinkStatus
}

func lockLinkTx(ctx context.Context, tx *sql.Tx, linkID int64) (*lockedLink, error) {
	var (
		l            lockedLink
		status       string
		enID, hiID   uuid.NullUUID
		enVer, hiVer sql.NullInt64
	)
	err := tx.QueryRowContext(ctx, `
		SELECT id, paper_id_english, paper_id_hindi,
			english_question_id, english_version_no, hindi_question_id, hindi_version_no, status
		FROM question_links
		WHERE id = $1
		FOR UPDATE
	`, linkID).Scan(&l.ID, &l.EnglishPaperID, &l.HindiPaperID, &enID, &enVer, &hiID, &hiVer, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("load link: %w", err)
	}
	l.Status = model.LinkStatus(status)
	if enID.Valid {
		l.English = &model.QuestionRef{ID: enID.UUID, Version: int(enVer.Int64)}
	}
	if hiID.Valid {
		l.Hindi = &model.QuestionRef{ID: hiID.UUID, Version: int(hiVer.Int64)}
	}
	return &l, nil
}

func checkSide(ref *model.QuestionRef, edit *SideEdit) error {
	if edit == nil {
		return nil
	}
	if ref == nil || ref.ID != edit.QuestionID || ref.Version != edit.Version {
		return ErrSideMismatch
	}
	return nil
}

func completeAssignmentsIfDoneTx(ctx context.Context, tx *sql.Tx, englishID, hindiID uuid.UUID) (bool, error) {
	var open int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM question_links
		WHERE (paper_id_english IN ($1, $2) OR paper_id_hindi IN ($1, $2))
			AND status <> 'MANUALLY_CORRECTED'
	`, englishID, hindiID).Scan(&open); err != nil {
		return false, fmt.Errorf("count open links: %w", err)
	}
	if open > 0 {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE review_assignments
		SET status = 'COMPLETED', completed_at = now()
		WHERE paper_id IN ($1, $2) AND status <> 'COMPLETED'
	`, englishID, hindiID); err != nil {
		return false, fmt.Errorf("complete assignments: %w", err)
	}
	return true, nil
}

func loadSideTx(ctx context.Context, tx *sql.Tx, ref model.QuestionRef) (*Side, error) {
	s := &Side{QuestionID: ref.ID, Version: ref.Version}
	err := tx.QueryRowContext(ctx, `
		SELECT source_question_no, body_text
		FROM question_versions
		WHERE question_id = $1 AND version_no = $2
	`, ref.ID, ref.Version).Scan(&s.SourceNo, &s.Body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, question.ErrQuestionNotFound
		}
		return nil, fmt.Errorf("load question: %w", err)
	}
	opts, err := question.LoadOptions(ctx, tx, []model.QuestionRef{ref})
	if err != nil {
		return nil, err
	}
	s.Options = opts[ref]
	return s, nil
}

func snapshotOf(en, hi *Side) consistency.Snapshot {
	return consistency.Snapshot{
		English: consistency.Side{Text: en.Body, Options: en.Options},
		Hindi:   consistency.Side{Text: hi.Body, Options: hi.Options},
	}
}
