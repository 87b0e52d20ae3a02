package assignment

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet     = "Summary"
	assignmentsSheet = "Assignments"
)

// ExportProgressExcel renders reviewer totals and every assignment with its
// link progress into a workbook.
func (s *Service) ExportProgressExcel(ctx context.Context) ([]byte, error) {
	stats, err := s.ReviewerSummary(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.listAssignments(ctx, 0)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), summarySheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	writeRow(f, summarySheet, 1, []any{"email", "name", "assigned", "completed", "pending", "total_links", "corrected_links", "progress_pct"})
	for i, it := range stats {
		writeRow(f, summarySheet, i+2, []any{
			it.Email, it.Name, it.Assigned, it.Completed, it.Pending,
			it.TotalLinks, it.CorrectedLinks, fmt.Sprintf("%.1f", it.ProgressPct),
		})
	}
	_ = f.SetColWidth(summarySheet, "A", "H", 20)

	if _, err := f.NewSheet(assignmentsSheet); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	writeRow(f, assignmentsSheet, 1, []any{
		"reviewer_email", "exam", "paper_date", "shift", "language", "caption",
		"status", "assigned_at", "completed_at", "total_links", "corrected_links",
	})
	for i, it := range items {
		completedAt := ""
		if it.CompletedAt != nil {
			completedAt = it.CompletedAt.Format("2006-01-02 15:04:05")
		}
		writeRow(f, assignmentsSheet, i+2, []any{
			it.ReviewerEmail,
			it.ExamName,
			it.PaperDate.Format("2006-01-02"),
			it.ShiftNumber,
			string(it.Language),
			it.Caption,
			string(it.Status),
			it.AssignedAt.Format("2006-01-02 15:04:05"),
			completedAt,
			it.TotalLinks,
			it.CorrectedLinks,
		})
	}
	_ = f.SetColWidth(assignmentsSheet, "A", "K", 22)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	for col, v := range values {
		cell, _ := excelize.CoordinatesToCellName(col+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}
