package assignment

import (
	"bilingdash/internal/model"

	"github.com/google/uuid"
)

type Reviewer struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type Planned struct {
	PairIndex  int            `json:"pair_index"`
	PaperID    uuid.UUID      `json:"paper_id"`
	Language   model.Language `json:"language"`
	ReviewerID int64          `json:"reviewer_id"`
}

// Plan distributes pairs round robin over the roster. Both papers of a pair
// always go to the same reviewer. An empty roster yields no assignments.
func Plan(pairs []model.PaperPair, reviewers []Reviewer) []Planned {
	if len(reviewers) == 0 {
		return nil
	}
	out := make([]Planned, 0, len(pairs)*2)
	for i, p := range pairs {
		r := reviewers[i%len(reviewers)]
		out = append(out,
			Planned{PairIndex: i, PaperID: p.English, Language: model.LanguageEnglish, ReviewerID: r.ID},
			Planned{PairIndex: i, PaperID: p.Hindi, Language: model.LanguageHindi, ReviewerID: r.ID},
		)
	}
	return out
}
