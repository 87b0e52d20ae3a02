package consistency

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"bilingdash/internal/model"
)

// LanguageSectionPrefixLen is the number of leading runes compared to decide
// whether a pair belongs to an English-language test section.
const LanguageSectionPrefixLen = 10

// MaxOptionRunes is the longest option text accepted before suggesting the
// option should be an image.
const MaxOptionRunes = 15

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

const (
	CodeImageMismatch        = "image_mismatch"
	CodeOptionsIncomplete    = "options_incomplete"
	CodeOptionTooLong        = "option_too_long"
	CodeLanguageTextMismatch = "language_text_mismatch"
	CodeLanguageOptMismatch  = "language_options_mismatch"
	CodeUnderlinedKeyword    = "underlined_keyword"
)

var imageTokenRe = regexp.MustCompile(`\\includegraphics|!\[[^\]]*\]\([^)]*\)`)

type Side struct {
	Text    string         `json:"text"`
	Options []model.Option `json:"options"`
}

type Snapshot struct {
	English Side `json:"english"`
	Hindi   Side `json:"hindi"`
}

type Finding struct {
	Severity Severity       `json:"severity"`
	Code     string         `json:"code"`
	Side     model.Language `json:"side,omitempty"`
	Message  string         `json:"message"`
}

type Report struct {
	LanguageSection bool      `json:"language_section"`
	Findings        []Finding `json:"findings"`
}

func (r Report) HasBlockingErrors() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

func (r Report) Errors() []Finding {
	return r.filter(SeverityError)
}

func (r Report) Warnings() []Finding {
	return r.filter(SeverityWarning)
}

func (r Report) filter(sev Severity) []Finding {
	out := make([]Finding, 0, len(r.Findings))
	for _, f := range r.Findings {
		if f.Severity == sev {
			out = append(out, f)
		}
	}
	return out
}

// HasImage reports whether text embeds a markdown image or an
// \includegraphics command.
func HasImage(text string) bool {
	return imageTokenRe.MatchString(text)
}

// IsLanguageSection reports whether both bodies share the same leading
// LanguageSectionPrefixLen runes, ignoring case. Empty bodies never match.
func IsLanguageSection(english, hindi string) bool {
	if english == "" || hindi == "" {
		return false
	}
	return strings.ToLower(prefixRunes(english, LanguageSectionPrefixLen)) ==
		strings.ToLower(prefixRunes(hindi, LanguageSectionPrefixLen))
}

func Validate(s Snapshot) Report {
	rep := Report{
		LanguageSection: IsLanguageSection(s.English.Text, s.Hindi.Text),
		Findings:        make([]Finding, 0),
	}

	engImg := sideHasImage(s.English)
	hinImg := sideHasImage(s.Hindi)
	if engImg != hinImg {
		has, missing := model.LanguageEnglish, model.LanguageHindi
		if hinImg {
			has, missing = model.LanguageHindi, model.LanguageEnglish
		}
		rep.Findings = append(rep.Findings, Finding{
			Severity: SeverityError,
			Code:     CodeImageMismatch,
			Side:     missing,
			Message:  "Image mismatch: " + has.Label() + " has images, but " + missing.Label() + " does not",
		})
	}

	for _, side := range []struct {
		lang model.Language
		data Side
	}{
		{lang: model.LanguageEnglish, data: s.English},
		{lang: model.LanguageHindi, data: s.Hindi},
	} {
		if !optionsComplete(side.data.Options) {
			rep.Findings = append(rep.Findings, Finding{
				Severity: SeverityError,
				Code:     CodeOptionsIncomplete,
				Side:     side.lang,
				Message:  side.lang.Label() + " options are incomplete or blank",
			})
		}
	}

	if !rep.LanguageSection {
		for _, side := range []struct {
			lang model.Language
			data Side
		}{
			{lang: model.LanguageEnglish, data: s.English},
			{lang: model.LanguageHindi, data: s.Hindi},
		} {
			if hasLongTextOption(side.data.Options) {
				rep.Findings = append(rep.Findings, Finding{
					Severity: SeverityWarning,
					Code:     CodeOptionTooLong,
					Side:     side.lang,
					Message:  side.lang.Label() + " options are longer than 15 characters; check whether they should be images",
				})
			}
		}
		return rep
	}

	if strings.TrimSpace(s.English.Text) != strings.TrimSpace(s.Hindi.Text) {
		rep.Findings = append(rep.Findings, Finding{
			Severity: SeverityError,
			Code:     CodeLanguageTextMismatch,
			Message:  "English section: English and Hindi text must be identical",
		})
	}
	if !sameOptionSet(s.English.Options, s.Hindi.Options) {
		rep.Findings = append(rep.Findings, Finding{
			Severity: SeverityError,
			Code:     CodeLanguageOptMismatch,
			Message:  "English section: option sets do not match between English and Hindi",
		})
	}
	if strings.Contains(strings.ToLower(s.English.Text), "underlined") {
		rep.Findings = append(rep.Findings, Finding{
			Severity: SeverityError,
			Code:     CodeUnderlinedKeyword,
			Side:     model.LanguageEnglish,
			Message:  "English section: question contains the 'underlined' keyword",
		})
	}
	return rep
}

func sideHasImage(s Side) bool {
	if HasImage(s.Text) {
		return true
	}
	for _, o := range s.Options {
		if HasImage(o.Text) {
			return true
		}
	}
	return false
}

func optionsComplete(opts []model.Option) bool {
	if len(opts) != model.OptionCount {
		return false
	}
	for _, o := range opts {
		if strings.TrimSpace(o.Text) == "" {
			return false
		}
	}
	return true
}

func hasLongTextOption(opts []model.Option) bool {
	for _, o := range opts {
		t := strings.TrimSpace(o.Text)
		if utf8.RuneCountInString(t) > MaxOptionRunes && !HasImage(t) {
			return true
		}
	}
	return false
}

func sameOptionSet(a, b []model.Option) bool {
	if len(a) != len(b) {
		return false
	}
	at, bt := trimmedTexts(a), trimmedTexts(b)
	sort.Strings(at)
	sort.Strings(bt)
	for i := range at {
		if at[i] != bt[i] {
			return false
		}
	}
	return true
}

func trimmedTexts(opts []model.Option) []string {
	out := make([]string, 0, len(opts))
	for _, o := range opts {
		out = append(out, strings.TrimSpace(o.Text))
	}
	return out
}

func prefixRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
