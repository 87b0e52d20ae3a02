package review

import "sort"

// SortRows orders rows by section sort order, then English display number,
// then link creation time and id. Missing keys sort last.
func SortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		return lessRow(rows[i], rows[j])
	})
}

func lessRow(a, b Row) bool {
	if c := compareNullableInt(a.SectionSortOrder, b.SectionSortOrder); c != 0 {
		return c < 0
	}
	if c := compareNullableInt(a.englishNumber(), b.englishNumber()); c != 0 {
		return c < 0
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.LinkID < b.LinkID
}

func compareNullableInt(a, b *int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	default:
		return 0
	}
}

// paginate returns the 1-based page of rows and the total page count.
func paginate(rows []Row, page, size int) ([]Row, int) {
	if size <= 0 {
		size = DefaultPageSize
	}
	totalPages := (len(rows) + size - 1) / size
	if page < 1 {
		page = 1
	}
	start := (page - 1) * size
	if start >= len(rows) {
		return []Row{}, totalPages
	}
	end := start + size
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end], totalPages
}
