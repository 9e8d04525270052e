package partition

import (
	"fmt"
	"io"
)

// Policy selects how a host's lines are cut into splits.
type Policy string

const (
	// PolicyFill emits ceil(k/N) splits of N lines; the last one holds the remainder.
	PolicyFill Policy = "fill"
	// PolicySpread emits floor(k/N) splits and spreads the remainder so that
	// split sizes differ by at most one line.
	PolicySpread Policy = "spread"
)

// ParsePolicy validates a policy name; empty means PolicyFill.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyFill:
		return PolicyFill, nil
	case PolicySpread:
		return PolicySpread, nil
	}
	return "", fmt.Errorf("unknown split policy %q", s)
}

// Split is a byte range of the rearranged control file and the hosts that
// should preferably process it.
type Split struct {
	File   string   `yaml:"file" json:"file"`
	Start  int64    `yaml:"start" json:"start"`
	Length int64    `yaml:"length" json:"length"`
	Hosts  []string `yaml:"hosts,omitempty" json:"hosts,omitempty"`
	Lines  int      `yaml:"lines" json:"lines"`
}

func (s Split) String() string {
	return fmt.Sprintf("%s:%d+%d", s.File, s.Start, s.Length)
}

// ChunkSizes returns the line counts of the splits for k lines with target n.
func ChunkSizes(k, n int, policy Policy) []int {
	if k <= 0 {
		return nil
	}
	if n <= 0 || k <= n {
		return []int{k}
	}

	if policy == PolicySpread {
		chunks := k / n
		rem := k % n
		sizes := make([]int, chunks)
		for i := range sizes {
			sizes[i] = n + rem/chunks
			if i < rem%chunks {
				sizes[i]++
			}
		}
		return sizes
	}

	sizes := make([]int, 0, (k+n-1)/n)
	for left := k; left > 0; left -= n {
		sizes = append(sizes, min(n, left))
	}
	return sizes
}

// writeGrouped writes every host's lines, newline-terminated, in host order
// and returns the splits of each host's byte range.
func writeGrouped(w io.Writer, file string, locations *LocationMap, n int, policy Policy) ([]Split, int64, error) {
	var (
		splits []Split
		offset int64
	)

	for _, host := range locations.Hosts() {
		lines := locations.Lines(host)
		var hints []string
		if host != Unlocated {
			hints = []string{host}
		}

		next := 0
		for _, size := range ChunkSizes(len(lines), n, policy) {
			split := Split{File: file, Start: offset, Hosts: hints, Lines: size}
			for _, text := range lines[next : next+size] {
				written, err := io.WriteString(w, text+"\n")
				if err != nil {
					return nil, offset, err
				}
				offset += int64(written)
			}
			split.Length = offset - split.Start
			splits = append(splits, split)
			next += size
		}
	}

	return splits, offset, nil
}
