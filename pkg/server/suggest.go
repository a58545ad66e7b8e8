package server

import "strings"

// maxSuggestDistance is the largest edit distance still offered as a
// "did you mean" hint.
const maxSuggestDistance = 3

// editDistance computes the Levenshtein distance between two strings,
// case-insensitively, using two rolling rows.
func editDistance(a, b string) int {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
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
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			curr[j] = m
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}

// Suggest searches every registered name and alias for the nearest
// match to a mistyped token. Direction tokens are skipped: one- and
// two-letter movement shortcuts sit within trivial edit distance of
// almost anything and would drown out useful hints. Ties go to the
// earliest registered candidate, so output is stable across runs.
func (r *Registry) Suggest(token string) (string, bool) {
	best := ""
	bestDist := maxSuggestDistance + 1
	for _, cand := range r.order {
		if IsDirectionToken(cand) {
			continue
		}
		if d := editDistance(token, cand); d < bestDist {
			best = cand
			bestDist = d
		}
	}
	if bestDist > maxSuggestDistance || best == "" || best == token {
		return "", false
	}
	return best, true
}
