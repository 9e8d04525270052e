package components

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/toolweave/internal/model"
)

func TestLineListKeepsEverythingWithoutLimit(t *testing.T) {
	t.Parallel()

	order := []int64{0, 10, 20}
	lines := map[int64]model.LineResult{
		0:  {Offset: 0, Status: model.StatusSuccess},
		10: {Offset: 10, Status: model.StatusPending},
		20: {Offset: 20, Status: model.StatusRunning},
	}

	entries := NewLineList(order, lines, 0).Entries()
	require.Len(t, entries, 2, "pending lines are not listed")
	require.Equal(t, int64(0), entries[0].Offset)
	require.Equal(t, int64(20), entries[1].Offset)
}

func TestLineListPrefersActiveLines(t *testing.T) {
	t.Parallel()

	order := []int64{0, 10, 20, 30, 40}
	lines := map[int64]model.LineResult{
		0:  {Status: model.StatusFailed},
		10: {Status: model.StatusSuccess},
		20: {Status: model.StatusSuccess},
		30: {Status: model.StatusRunning},
		40: {Status: model.StatusSuccess},
	}

	entries := NewLineList(order, lines, 3).Entries()
	require.Len(t, entries, 3)
	require.Equal(t, []int64{0, 30, 40}, []int64{entries[0].Offset, entries[1].Offset, entries[2].Offset})
}
