// Package partition rearranges a control file so that lines whose inputs live
// on the same storage host are contiguous, and cuts the result into splits
// carrying host hints for the scheduler.
package partition

import "sort"

// Histogram counts blocks per host. Hosts remember the order they were first
// added, which breaks ranking ties.
type Histogram struct {
	counts map[string]int
	order  []string
}

// NewHistogram returns an empty histogram.
func NewHistogram() *Histogram {
	return &Histogram{counts: make(map[string]int)}
}

// Add records one block replica on host.
func (h *Histogram) Add(host string) {
	if _, ok := h.counts[host]; !ok {
		h.order = append(h.order, host)
	}
	h.counts[host]++
}

// Count returns the number of blocks recorded for host.
func (h *Histogram) Count(host string) int {
	return h.counts[host]
}

// Len returns the number of distinct hosts.
func (h *Histogram) Len() int {
	return len(h.order)
}

// Hosts returns hosts in first-seen order.
func (h *Histogram) Hosts() []string {
	return append([]string(nil), h.order...)
}

// Ranking returns hosts by descending block count, ties in first-seen order.
func (h *Histogram) Ranking() []string {
	ranked := h.Hosts()
	sort.SliceStable(ranked, func(i, j int) bool {
		return h.counts[ranked[i]] > h.counts[ranked[j]]
	})
	return ranked
}
