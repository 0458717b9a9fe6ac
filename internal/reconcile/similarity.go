package reconcile

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

// TokenSetRatio returns a similarity score in [0, 1] between two normalized
// strings, robust to word reordering and subset/superset token overlaps.
// It compares the sorted token intersection against each side's remainder
// and takes the best edit-distance ratio of the three pairings, so
// "work opportunity tax credit" scores 1.0 against "work opportunity tax
// credit for veterans".
func TokenSetRatio(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	inter, onlyA, onlyB := partition(ta, tb)
	if len(inter) > 0 && (len(onlyA) == 0 || len(onlyB) == 0) {
		// One side's tokens are a subset of the other's.
		return 1
	}

	base := strings.Join(inter, " ")
	full1 := joinNonEmpty(base, strings.Join(onlyA, " "))
	full2 := joinNonEmpty(base, strings.Join(onlyB, " "))

	s1 := levenshtein.Match(base, full1, nil)
	s2 := levenshtein.Match(base, full2, nil)
	s3 := levenshtein.Match(full1, full2, nil)
	return max3(s1, s2, s3)
}

// tokenSet splits s into its unique tokens, sorted.
func tokenSet(s string) []string {
	fields := strings.Fields(s)
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

// partition splits two sorted token sets into intersection and the tokens
// unique to each side.
func partition(a, b []string) (inter, onlyA, onlyB []string) {
	inB := make(map[string]bool, len(b))
	for _, t := range b {
		inB[t] = true
	}
	inA := make(map[string]bool, len(a))
	for _, t := range a {
		inA[t] = true
	}
	for _, t := range a {
		if inB[t] {
			inter = append(inter, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for _, t := range b {
		if !inA[t] {
			onlyB = append(onlyB, t)
		}
	}
	return inter, onlyA, onlyB
}

func joinNonEmpty(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + " " + b
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}
