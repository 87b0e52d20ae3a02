package linking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	internaldb "bilingdash/internal/db"
	"bilingdash/internal/model"
	"bilingdash/internal/question"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrPaperNotFound    = errors.New("paper not found")
	ErrNotBilingualPair = errors.New("papers are not a bilingual pair")
)

type paperStore interface {
	LoadPaper(ctx context.Context, paperID uuid.UUID) (*model.Paper, error)
	GetPaper(ctx context.Context, paperID uuid.UUID) (*model.Paper, error)
	FindCounterpart(ctx context.Context, p model.Paper) (*model.Paper, error)
}

type Service struct {
	db        *sql.DB
	papers    paperStore
	overrides []SectionOverride
}

// LinkReport summarises one linking run over a pair.
type LinkReport struct {
	EnglishPaperID          uuid.UUID         `json:"english_paper_id"`
	HindiPaperID            uuid.UUID         `json:"hindi_paper_id"`
	Created                 int               `json:"created"`
	Existing                int               `json:"existing"`
	Matched                 int               `json:"matched"`
	EnglishOnly             int               `json:"english_only"`
	HindiOnly               int               `json:"hindi_only"`
	SectionMap              map[string]string `json:"section_map"`
	UnmappedEnglishSections []string          `json:"unmapped_english_sections"`
	UnmappedHindiSections   []string          `json:"unmapped_hindi_sections"`
}

func NewService(db *sql.DB, papers paperStore, overrides []SectionOverride) *Service {
	return &Service{db: db, papers: papers, overrides: overrides}
}

// LinkPaper resolves the counterpart of paperID and links the pair.
func (s *Service) LinkPaper(ctx context.Context, paperID uuid.UUID) (*LinkReport, error) {
	if paperID == uuid.Nil {
		return nil, ErrInvalidInput
	}
	p, err := s.papers.GetPaper(ctx, paperID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	other, err := s.papers.FindCounterpart(ctx, *p)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if p.Language == model.LanguageEnglish {
		return s.LinkPair(ctx, p.ID, other.ID)
	}
	return s.LinkPair(ctx, other.ID, p.ID)
}

// LinkPair pairs the current questions of both papers and persists the links.
// Questions that already belong to a link are left untouched, so the call can
// be repeated safely and every question stays in exactly one link.
func (s *Service) LinkPair(ctx context.Context, englishID, hindiID uuid.UUID) (*LinkReport, error) {
	if englishID == uuid.Nil || hindiID == uuid.Nil || englishID == hindiID {
		return nil, ErrInvalidInput
	}

	en, err := s.papers.LoadPaper(ctx, englishID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	hi, err := s.papers.LoadPaper(ctx, hindiID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if en.Language != model.LanguageEnglish || hi.Language != model.LanguageHindi || !en.IsCounterpartOf(*hi) {
		return nil, ErrNotBilingualPair
	}

	res := Pair(*en, *hi, s.overrides)
	rep := &LinkReport{
		EnglishPaperID:          en.ID,
		HindiPaperID:            hi.ID,
		Matched:                 res.Matched,
		EnglishOnly:             res.EnglishOnly,
		HindiOnly:               res.HindiOnly,
		SectionMap:              res.SectionMap,
		UnmappedEnglishSections: res.UnmappedEnglishSections,
		UnmappedHindiSections:   res.UnmappedHindiSections,
	}

	err = internaldb.InTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, d := range res.Drafts {
			created, err := insertLinkTx(ctx, tx, en.ID, hi.ID, d)
			if err != nil {
				return err
			}
			if created {
				rep.Created++
			} else {
				rep.Existing++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("linked pair en=%s hi=%s created=%d existing=%d matched=%d en_only=%d hi_only=%d",
		en.ID, hi.ID, rep.Created, rep.Existing, rep.Matched, rep.EnglishOnly, rep.HindiOnly)
	if len(rep.UnmappedEnglishSections) > 0 || len(rep.UnmappedHindiSections) > 0 {
		log.Printf("linked pair en=%s hi=%s unmapped sections en=%v hi=%v",
			en.ID, hi.ID, rep.UnmappedEnglishSections, rep.UnmappedHindiSections)
	}
	return rep, nil
}

// insertLinkTx stores one draft. A question already referenced by any link is
// never linked again. A matched draft first absorbs PENDING one-sided links of
// either of its questions, so a counterpart added after the first run is
// paired instead of duplicated. When only one side is still held by a
// reviewed link, the other side is stored one-sided.
func insertLinkTx(ctx context.Context, tx *sql.Tx, englishPaperID, hindiPaperID uuid.UUID, d Draft) (bool, error) {
	if d.Matched() {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM question_links
			WHERE status = $3
				AND (
					(english_question_id = $1 AND hindi_question_id IS NULL)
					OR (hindi_question_id = $2 AND english_question_id IS NULL)
				)
		`, d.English.ID, d.Hindi.ID, string(model.StatusPending)); err != nil {
			return false, fmt.Errorf("absorb one-sided links: %w", err)
		}
	}

	engLinked, err := questionLinkedTx(ctx, tx, "english_question_id", d.English)
	if err != nil {
		return false, err
	}
	hinLinked, err := questionLinkedTx(ctx, tx, "hindi_question_id", d.Hindi)
	if err != nil {
		return false, err
	}
	if engLinked {
		d.English = nil
	}
	if hinLinked {
		d.Hindi = nil
	}
	if d.English == nil && d.Hindi == nil {
		return false, nil
	}
	if !d.Matched() {
		d.Score, d.Status = 0, model.StatusPending
	}
	engID, engVer := refArgs(d.English)
	hinID, hinVer := refArgs(d.Hindi)

	res, err := tx.ExecContext(ctx, `
		INSERT INTO question_links (
			paper_id_english, paper_id_hindi,
			english_question_id, english_version_no,
			hindi_question_id, hindi_version_no,
			similarity_score, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT ON CONSTRAINT question_links_refs_key DO NOTHING
	`, englishPaperID, hindiPaperID, engID, engVer, hinID, hinVer, d.Score, string(d.Status))
	if err != nil {
		return false, fmt.Errorf("insert link: %w", err)
	}
	n, err := internaldb.RowsAffected(res, "insert link")
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func questionLinkedTx(ctx context.Context, tx *sql.Tx, column string, ref *model.QuestionRef) (bool, error) {
	if ref == nil {
		return false, nil
	}
	var linked bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM question_links WHERE `+column+` = $1)`, ref.ID,
	).Scan(&linked); err != nil {
		return false, fmt.Errorf("check existing link: %w", err)
	}
	return linked, nil
}

func refArgs(ref *model.QuestionRef) (any, any) {
	if ref == nil {
		return nil, nil
	}
	return ref.ID, ref.Version
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, question.ErrPaperNotFound):
		return fmt.Errorf("%w: %v", ErrPaperNotFound, err)
	case errors.Is(err, question.ErrCounterpartNotFound):
		return fmt.Errorf("%w: %v", ErrNotBilingualPair, err)
	case errors.Is(err, question.ErrInvalidInput):
		return ErrInvalidInput
	default:
		return err
	}
}
