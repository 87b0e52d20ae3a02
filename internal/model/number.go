package model

const maxDisplayDigits = 9

// DisplayNumber extracts the first run of digits from a source display
// number ("Q.14" -> 14, "प्र.१४" -> 14). ASCII and Devanagari digits are
// accepted and may not be mixed inside a run.
func DisplayNumber(raw string) (int, bool) {
	n, digits := 0, 0
	var base rune = -1
	for _, r := range raw {
		b := digitBase(r)
		if b < 0 || (base >= 0 && b != base) {
			if digits > 0 {
				break
			}
			continue
		}
		base = b
		digits++
		if digits > maxDisplayDigits {
			return 0, false
		}
		n = n*10 + int(r-b)
	}
	if digits == 0 {
		return 0, false
	}
	return n, true
}

func digitBase(r rune) rune {
	switch {
	case r >= '0' && r <= '9':
		return '0'
	case r >= '०' && r <= '९':
		return '०'
	default:
		return -1
	}
}
