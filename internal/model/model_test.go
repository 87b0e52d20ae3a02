package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestDisplayNumber(t *testing.T) {
	tests := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{in: "Q.14", want: 14, wantOK: true},
		{in: "Q.014", want: 14, wantOK: true},
		{in: "प्र.3", want: 3, wantOK: true},
		{in: "प्र.१४", want: 14, wantOK: true},
		{in: "Q.12a3", want: 12, wantOK: true},
		{in: "Q.", want: 0, wantOK: false},
		{in: "", want: 0, wantOK: false},
		{in: "Q.12345678901", want: 0, wantOK: false},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := DisplayNumber(tc.in)
			if ok != tc.wantOK || got != tc.want {
				t.Fatalf("DisplayNumber(%q) = %d,%v want %d,%v", tc.in, got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from LinkStatus
		to   LinkStatus
		want bool
	}{
		{from: StatusPending, to: StatusManuallyCorrected, want: true},
		{from: StatusPending, to: StatusFlagged, want: true},
		{from: StatusManuallyCorrected, to: StatusFlagged, want: true},
		{from: StatusFlagged, to: StatusManuallyCorrected, want: true},
		{from: StatusManuallyCorrected, to: StatusManuallyCorrected, want: true},
		{from: StatusPending, to: StatusCompleted, want: false},
		{from: StatusPending, to: StatusPending, want: false},
		{from: StatusCompleted, to: StatusManuallyCorrected, want: false},
		{from: StatusCompleted, to: StatusFlagged, want: false},
	}

	for _, tc := range tests {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s,%s)=%v want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestPaperIsCounterpartOf(t *testing.T) {
	exam := uuid.New()
	day := time.Date(2024, 9, 9, 0, 0, 0, 0, time.UTC)
	en := Paper{ID: uuid.New(), ExamID: exam, PaperDate: day, ShiftNumber: 1, Language: LanguageEnglish}
	hi := Paper{ID: uuid.New(), ExamID: exam, PaperDate: day, ShiftNumber: 1, Language: LanguageHindi}

	if !en.IsCounterpartOf(hi) || !hi.IsCounterpartOf(en) {
		t.Fatalf("expected EN/HI papers of the same sitting to pair")
	}

	otherShift := hi
	otherShift.ShiftNumber = 2
	if en.IsCounterpartOf(otherShift) {
		t.Fatalf("different shift must not pair")
	}

	sameLang := en
	sameLang.ID = uuid.New()
	if en.IsCounterpartOf(sameLang) {
		t.Fatalf("same language must not pair")
	}
}
