package partition

// Unlocated is the bucket for lines placed before any host is known.
const Unlocated = ""

// LocationMap collects line texts per host. Hosts iterate in the order they
// first received a line.
type LocationMap struct {
	order []string
	lines map[string][]string
}

// NewLocationMap returns an empty map.
func NewLocationMap() *LocationMap {
	return &LocationMap{lines: make(map[string][]string)}
}

// Assign appends text to host's sequence.
func (m *LocationMap) Assign(host, text string) {
	if _, ok := m.lines[host]; !ok {
		m.order = append(m.order, host)
	}
	m.lines[host] = append(m.lines[host], text)
}

// Count returns the number of lines assigned to host.
func (m *LocationMap) Count(host string) int {
	return len(m.lines[host])
}

// Hosts returns hosts in first-assignment order.
func (m *LocationMap) Hosts() []string {
	return append([]string(nil), m.order...)
}

// Lines returns the texts assigned to host, in assignment order.
func (m *LocationMap) Lines(host string) []string {
	return m.lines[host]
}

// Total returns the number of assigned lines.
func (m *LocationMap) Total() int {
	n := 0
	for _, lines := range m.lines {
		n += len(lines)
	}
	return n
}

// planner applies the greedy fair-share rule line by line.
type planner struct {
	seen      []string
	seenSet   map[string]struct{}
	locations *LocationMap
	placed    int
}

func newPlanner() *planner {
	return &planner{seenSet: make(map[string]struct{}), locations: NewLocationMap()}
}

// extend returns the line's ranking followed by every previously seen host
// missing from it, in discovery order.
func (p *planner) extend(ranking []string) []string {
	extended := append([]string(nil), ranking...)
	in := make(map[string]struct{}, len(ranking))
	for _, h := range ranking {
		in[h] = struct{}{}
	}
	for _, h := range p.seen {
		if _, ok := in[h]; !ok {
			extended = append(extended, h)
		}
	}
	return extended
}

// place assigns text to the first host of the extended ranking still below
// its fair share l/|extended|, where l is the 1-based line counter.
func (p *planner) place(hist *Histogram, text string) string {
	p.placed++
	l := float64(p.placed)

	ranking := hist.Ranking()
	extended := p.extend(ranking)
	// several new hosts from one line join in ranked order
	for _, h := range ranking {
		if _, ok := p.seenSet[h]; !ok {
			p.seenSet[h] = struct{}{}
			p.seen = append(p.seen, h)
		}
	}

	if len(extended) == 0 {
		p.locations.Assign(Unlocated, text)
		return Unlocated
	}

	share := l / float64(len(extended))
	for _, h := range extended {
		if float64(p.locations.Count(h)) < share {
			p.locations.Assign(h, text)
			return h
		}
	}

	// unreachable: the extended hosts hold at most l-1 lines between them
	p.locations.Assign(extended[0], text)
	return extended[0]
}
