package components

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewProgress(t *testing.T) {
	t.Parallel()

	p := NewProgress(10)
	require.NotNil(t, p.bar)
	require.Equal(t, 10, p.total)
}

func TestProgressView(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		total     int
		completed int
		failed    int
		contains  []string
		excludes  []string
	}{
		{"zero total", 0, 0, 0, []string{"0/0"}, []string{"failed"}},
		{"partial", 10, 5, 0, []string{"5/10"}, []string{"failed"}},
		{"over-complete clamps the bar", 10, 12, 0, []string{"12/10"}, nil},
		{"failures are noted", 10, 10, 2, []string{"10/10", "2 failed"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			view := NewProgress(tt.total).View(tt.completed, tt.failed)
			for _, s := range tt.contains {
				require.Contains(t, view, s)
			}
			for _, s := range tt.excludes {
				require.NotContains(t, view, s)
			}
		})
	}
}
