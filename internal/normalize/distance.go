package normalize

import "sort"

// MaxEditDistance is the largest edit distance accepted by fuzzy lookups.
const MaxEditDistance = 2

// Levenshtein computes the edit distance between two strings.
func Levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(curr[j-1]+1, min(prev[j]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}

// Closest returns the candidate nearest to s within maxDist. Ties resolve to
// the lexicographically first candidate. candidates need not be sorted.
func Closest(s string, candidates []string, maxDist int) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	sorted := candidates
	if !sort.StringsAreSorted(candidates) {
		sorted = append([]string(nil), candidates...)
		sort.Strings(sorted)
	}

	best := ""
	bestDist := maxDist + 1
	for _, c := range sorted {
		d := Levenshtein(s, c)
		if d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best, best != ""
}
