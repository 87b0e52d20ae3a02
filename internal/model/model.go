package model

import (
	"time"

	"github.com/google/uuid"
)

type Language string

const (
	LanguageEnglish Language = "EN"
	LanguageHindi   Language = "HI"
)

func (l Language) Valid() bool {
	return l == LanguageEnglish || l == LanguageHindi
}

func (l Language) Opposite() Language {
	if l == LanguageEnglish {
		return LanguageHindi
	}
	return LanguageEnglish
}

// Label is the human-readable side name used in reviewer-facing messages.
func (l Language) Label() string {
	if l == LanguageHindi {
		return "Hindi"
	}
	return "English"
}

type LinkStatus string

const (
	StatusPending           LinkStatus = "PENDING"
	StatusManuallyCorrected LinkStatus = "MANUALLY_CORRECTED"
	StatusFlagged           LinkStatus = "FLAGGED"
	StatusCompleted         LinkStatus = "COMPLETED"
)

func ParseLinkStatus(v string) (LinkStatus, bool) {
	switch s := LinkStatus(v); s {
	case StatusPending, StatusManuallyCorrected, StatusFlagged, StatusCompleted:
		return s, true
	default:
		return "", false
	}
}

type AssignmentStatus string

const (
	AssignmentPending   AssignmentStatus = "PENDING"
	AssignmentCompleted AssignmentStatus = "COMPLETED"
)

// OptionCount is the fixed number of options every question carries.
const OptionCount = 4

var OptionLabels = [OptionCount]string{"A", "B", "C", "D"}

type Option struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

type Paper struct {
	ID            uuid.UUID  `json:"id"`
	ExamID        uuid.UUID  `json:"exam_id"`
	ExamName      string     `json:"exam_name"`
	PaperDate     time.Time  `json:"paper_date"`
	ShiftNumber   int        `json:"shift_number"`
	Language      Language   `json:"language"`
	Caption       string     `json:"caption"`
	SourcePDFPath string     `json:"source_pdf_path,omitempty"`
	MMDPath       string     `json:"mmd_path,omitempty"`
	Questions     []Question `json:"questions,omitempty"`
}

// IsCounterpartOf reports whether p and o form a bilingual pair: same exam,
// date and shift in opposite languages.
func (p Paper) IsCounterpartOf(o Paper) bool {
	return p.ExamID == o.ExamID &&
		p.PaperDate.Equal(o.PaperDate) &&
		p.ShiftNumber == o.ShiftNumber &&
		p.Language.Valid() && o.Language.Valid() &&
		p.Language != o.Language
}

type Question struct {
	ID               uuid.UUID  `json:"id"`
	Version          int        `json:"version"`
	PaperID          uuid.UUID  `json:"paper_id"`
	Language         Language   `json:"language"`
	SectionID        *uuid.UUID `json:"section_id,omitempty"`
	SectionName      string     `json:"section_name"`
	SectionSortOrder *int       `json:"section_sort_order,omitempty"`
	SourceNo         string     `json:"source_no"`
	Body             string     `json:"body"`
	Options          []Option   `json:"options"`
}

func (q Question) Ref() QuestionRef {
	return QuestionRef{ID: q.ID, Version: q.Version}
}

type QuestionRef struct {
	ID      uuid.UUID `json:"id"`
	Version int       `json:"version"`
}

type Link struct {
	ID              int64        `json:"id"`
	EnglishPaperID  uuid.UUID    `json:"english_paper_id"`
	HindiPaperID    uuid.UUID    `json:"hindi_paper_id"`
	English         *QuestionRef `json:"english,omitempty"`
	Hindi           *QuestionRef `json:"hindi,omitempty"`
	SimilarityScore float64      `json:"similarity_score"`
	UpdatedScore    *float64     `json:"updated_score,omitempty"`
	Status          LinkStatus   `json:"status"`
	CreatedAt       time.Time    `json:"created_at"`
}

func (l Link) OneSided() bool {
	return l.English == nil || l.Hindi == nil
}

type PaperPair struct {
	English uuid.UUID `json:"english_paper_id"`
	Hindi   uuid.UUID `json:"hindi_paper_id"`
}

func (p PaperPair) PaperIDs() []uuid.UUID {
	return []uuid.UUID{p.English, p.Hindi}
}

type Assignment struct {
	ID          int64            `json:"id"`
	PaperID     uuid.UUID        `json:"paper_id"`
	ReviewerID  int64            `json:"reviewer_id"`
	Status      AssignmentStatus `json:"status"`
	AssignedAt  time.Time        `json:"assigned_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}
