package linking

import (
	"sort"

	"bilingdash/internal/model"

	"github.com/google/uuid"
)

// SectionOverride forces an English section onto a Hindi section when the
// two papers label their sections differently.
type SectionOverride struct {
	From string `json:"from" mapstructure:"from"`
	To   string `json:"to" mapstructure:"to"`
}

type Draft struct {
	English *model.QuestionRef `json:"english,omitempty"`
	Hindi   *model.QuestionRef `json:"hindi,omitempty"`
	Score   float64            `json:"score"`
	Status  model.LinkStatus   `json:"status"`
}

func (d Draft) Matched() bool {
	return d.English != nil && d.Hindi != nil
}

type Result struct {
	Drafts                  []Draft           `json:"drafts"`
	SectionMap              map[string]string `json:"section_map"`
	UnmappedEnglishSections []string          `json:"unmapped_english_sections"`
	UnmappedHindiSections   []string          `json:"unmapped_hindi_sections"`
	Matched                 int               `json:"matched"`
	EnglishOnly             int               `json:"english_only"`
	HindiOnly               int               `json:"hindi_only"`
}

// Pair computes the link set for a bilingual pair. It never fails: questions
// that cannot be placed come back as one-sided drafts.
func Pair(english, hindi model.Paper, overrides []SectionOverride) Result {
	engQs := CurrentVersions(english.Questions)
	hinQs := CurrentVersions(hindi.Questions)

	engSecs := sectionNames(engQs)
	hinSecs := sectionNames(hinQs)
	secMap := MapSections(engSecs, hinSecs, overrides)

	res := Result{
		Drafts:     make([]Draft, 0, len(engQs)+len(hinQs)),
		SectionMap: secMap,
	}

	targeted := make(map[string]bool, len(secMap))
	for _, es := range engSecs {
		if hs, ok := secMap[es]; ok {
			targeted[hs] = true
		} else {
			res.UnmappedEnglishSections = append(res.UnmappedEnglishSections, es)
		}
	}
	for _, hs := range hinSecs {
		if !targeted[hs] {
			res.UnmappedHindiSections = append(res.UnmappedHindiSections, hs)
		}
	}

	type numbered struct {
		q      model.Question
		num    int
		parsed bool
	}
	bySection := make(map[string][]numbered)
	for _, q := range hinQs {
		n, ok := model.DisplayNumber(q.SourceNo)
		bySection[q.SectionName] = append(bySection[q.SectionName], numbered{q: q, num: n, parsed: ok})
	}

	used := make(map[model.QuestionRef]bool, len(hinQs))
	for _, eq := range engQs {
		engNo, ok := model.DisplayNumber(eq.SourceNo)
		target, mapped := secMap[eq.SectionName]

		var partner *model.Question
		if ok && mapped {
			for i := range bySection[target] {
				cand := bySection[target][i]
				if cand.parsed && cand.num == engNo && !used[cand.q.Ref()] {
					partner = &bySection[target][i].q
					break
				}
			}
		}

		engRef := eq.Ref()
		if partner == nil {
			res.Drafts = append(res.Drafts, Draft{English: &engRef, Status: model.StatusPending})
			res.EnglishOnly++
			continue
		}
		hinRef := partner.Ref()
		used[hinRef] = true
		res.Drafts = append(res.Drafts, Draft{English: &engRef, Hindi: &hinRef, Status: model.StatusPending})
		res.Matched++
	}

	for _, hq := range hinQs {
		if used[hq.Ref()] {
			continue
		}
		hinRef := hq.Ref()
		res.Drafts = append(res.Drafts, Draft{Hindi: &hinRef, Status: model.StatusPending})
		res.HindiOnly++
	}
	return res
}

// MapSections aligns the sorted English and Hindi section names by position
// and then applies overrides whose both ends exist.
func MapSections(engSecs, hinSecs []string, overrides []SectionOverride) map[string]string {
	out := make(map[string]string, len(engSecs))
	for i, es := range engSecs {
		if i < len(hinSecs) {
			out[es] = hinSecs[i]
		}
	}

	hasEng := toSet(engSecs)
	hasHin := toSet(hinSecs)
	for _, o := range overrides {
		if hasEng[o.From] && hasHin[o.To] {
			out[o.From] = o.To
		}
	}
	return out
}

// CurrentVersions keeps the highest version of each question and returns
// them ordered by section name, display number (unparseable last), source
// number and id.
func CurrentVersions(qs []model.Question) []model.Question {
	latest := make(map[uuid.UUID]model.Question, len(qs))
	for _, q := range qs {
		cur, ok := latest[q.ID]
		if !ok || q.Version > cur.Version {
			latest[q.ID] = q
		}
	}

	out := make([]model.Question, 0, len(latest))
	for _, q := range latest {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.SectionName != b.SectionName {
			return a.SectionName < b.SectionName
		}
		an, aok := model.DisplayNumber(a.SourceNo)
		bn, bok := model.DisplayNumber(b.SourceNo)
		if aok != bok {
			return aok
		}
		if aok && an != bn {
			return an < bn
		}
		if a.SourceNo != b.SourceNo {
			return a.SourceNo < b.SourceNo
		}
		return a.ID.String() < b.ID.String()
	})
	return out
}

func sectionNames(qs []model.Question) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, q := range qs {
		if seen[q.SectionName] {
			continue
		}
		seen[q.SectionName] = true
		out = append(out, q.SectionName)
	}
	sort.Strings(out)
	return out
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, it := range items {
		out[it] = true
	}
	return out
}
