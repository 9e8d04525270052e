package components

import (
	"github.com/alexisbeaulieu97/toolweave/internal/model"
)

// LineEntry is one control line and its latest result.
type LineEntry struct {
	Offset int64
	Result model.LineResult
}

// LineList keeps the most recently active lines of a run.
type LineList struct {
	entries []LineEntry
}

// NewLineList selects at most limit entries from order, preferring lines
// that are running or failed, then the most recently finished. Input order is
// preserved. A non-positive limit keeps every line.
func NewLineList(order []int64, lines map[int64]model.LineResult, limit int) LineList {
	if limit <= 0 || limit > len(order) {
		limit = len(order)
	}

	keep := make(map[int64]bool, limit)
	for _, status := range []string{model.StatusRunning, model.StatusFailed, model.StatusSuccess} {
		for i := len(order) - 1; i >= 0 && len(keep) < limit; i-- {
			off := order[i]
			if lines[off].Status == status {
				keep[off] = true
			}
		}
	}

	entries := make([]LineEntry, 0, len(keep))
	for _, off := range order {
		if keep[off] {
			entries = append(entries, LineEntry{Offset: off, Result: lines[off]})
		}
	}
	return LineList{entries: entries}
}

// Entries returns the selected entries in input order.
func (l LineList) Entries() []LineEntry {
	clone := make([]LineEntry, len(l.entries))
	copy(clone, l.entries)
	return clone
}
