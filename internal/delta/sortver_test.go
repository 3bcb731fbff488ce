package delta

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// pairDiff builds a symmetric diff-size function from a pair table.
func pairDiff(sizes map[[2]string]int) func(a, b string) int {
	return func(a, b string) int {
		if n, ok := sizes[[2]string{a, b}]; ok {
			return n
		}
		return sizes[[2]string{b, a}]
	}
}

func TestSortVersionsWeightedInsertion(t *testing.T) {
	// X diffs cheaply against A and B; everything else is expensive.
	// With the linear recency weight the best slot is between A and B:
	// scores are 33 / 15 / 42 / 60 for positions 0..3.
	diffLen := pairDiff(map[[2]string]int{
		{"A", "X"}: 3,
		{"X", "B"}: 3,
		{"X", "C"}: 30,
		{"A", "B"}: 30,
		{"B", "C"}: 30,
		{"A", "C"}: 30,
	})

	got := SortVersions([]string{"A", "B", "C", "X"}, []string{"X"}, diffLen)
	assert.Equal(t, []string{"A", "X", "B", "C"}, got)
}

func TestSortVersionsIdempotent(t *testing.T) {
	diffLen := pairDiff(map[[2]string]int{
		{"A", "X"}: 3,
		{"X", "B"}: 3,
		{"X", "C"}: 30,
		{"A", "B"}: 30,
		{"B", "C"}: 30,
		{"A", "C"}: 30,
	})

	once := SortVersions([]string{"A", "B", "C", "X"}, []string{"X"}, diffLen)
	twice := SortVersions(once, []string{"X"}, diffLen)
	assert.Equal(t, once, twice)
}

func TestSortVersionsTieBreaksEarliest(t *testing.T) {
	// All candidate positions score the same, so the lowest index wins.
	uniform := func(a, b string) int { return 10 }

	got := SortVersions([]string{"A", "B", "X"}, []string{"X"}, uniform)
	assert.Equal(t, []string{"X", "A", "B"}, got)
}

func TestSortVersionsInsertionOrder(t *testing.T) {
	// Nonlinear versions are inserted last listed first.
	uniform := func(a, b string) int { return 10 }

	got := SortVersions([]string{"A", "X", "Y"}, []string{"X", "Y"}, uniform)
	// Y inserts first into [A] at position 0, then X at position 0.
	assert.Equal(t, []string{"X", "Y", "A"}, got)
}

func TestSortVersionsNoNonlinear(t *testing.T) {
	// The given order is preserved and no diffs are computed.
	got := SortVersions([]string{"C", "B", "A"}, nil, func(a, b string) int {
		t.Fatal("no diffs needed")
		return 0
	})
	assert.Equal(t, []string{"C", "B", "A"}, got)
}
