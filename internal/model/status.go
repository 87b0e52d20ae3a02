package model

// CanTransition reports whether a reviewer save may move a link from one
// status to another. Bulk completion bypasses this check.
func CanTransition(from, to LinkStatus) bool {
	switch to {
	case StatusManuallyCorrected:
		return from == StatusPending || from == StatusManuallyCorrected || from == StatusFlagged
	case StatusFlagged:
		return from == StatusPending || from == StatusManuallyCorrected || from == StatusFlagged
	default:
		return false
	}
}
