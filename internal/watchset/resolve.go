package watchset

import "strconv"

// Set is an immutable membership view of watched conversation ids.
type Set interface {
	Contains(id string) bool
}

// IsWatched reports whether raw matches set under any of its encodings:
// the decimal id, its negation, and for positive ids the -100 supergroup
// prefix.
func IsWatched(set Set, raw int64) bool {
	if set == nil {
		return false
	}
	if set.Contains(strconv.FormatInt(raw, 10)) {
		return true
	}
	if set.Contains(strconv.FormatInt(-raw, 10)) {
		return true
	}
	if raw > 0 && set.Contains("-100"+strconv.FormatInt(raw, 10)) {
		return true
	}
	return false
}
