package server

import "strings"

// historyCap bounds how many input lines a session retains.
const historyCap = 30

// History is the bounded input history owned by one session. It holds
// raw lines oldest-first, a recall cursor, and the draft line saved
// when recall browsing begins. Lines whose lowercased form contains
// "password" are never recorded.
//
// All mutation goes through Push, Prev, Next and ResetCursor; the
// dispatch layer never reaches into the fields.
type History struct {
	entries []string
	cursor  int // index into entries while browsing; -1 = not browsing
	draft   string
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{cursor: -1}
}

// Push records a line, evicting the oldest entry once the cap is
// reached. Recording resets any recall browsing in progress. Returns
// false if the privacy guard suppressed the line.
func (h *History) Push(line string) bool {
	h.ResetCursor()
	if strings.Contains(strings.ToLower(line), "password") {
		return false
	}
	h.entries = append(h.entries, line)
	if len(h.entries) > historyCap {
		h.entries = h.entries[1:]
	}
	return true
}

// Last returns the most recent entry.
func (h *History) Last() (string, bool) {
	if len(h.entries) == 0 {
		return "", false
	}
	return h.entries[len(h.entries)-1], true
}

// Len returns the number of recorded entries.
func (h *History) Len() int {
	return len(h.entries)
}

// At returns the i-th entry, oldest first.
func (h *History) At(i int) string {
	return h.entries[i]
}

// Entries returns a copy of the recorded lines, oldest first.
func (h *History) Entries() []string {
	out := make([]string, len(h.entries))
	copy(out, h.entries)
	return out
}

// ResetCursor abandons recall browsing and clears the saved draft.
func (h *History) ResetCursor() {
	h.cursor = -1
	h.draft = ""
}

// Prev steps the recall cursor toward older entries. On the first call
// of a browse it saves the caller's in-progress line as the draft.
// Returns the entry under the cursor, or ok=false if there is nothing
// older to recall.
func (h *History) Prev(current string) (string, bool) {
	if len(h.entries) == 0 {
		return "", false
	}
	if h.cursor == -1 {
		h.draft = current
		h.cursor = len(h.entries) - 1
	} else if h.cursor > 0 {
		h.cursor--
	}
	return h.entries[h.cursor], true
}

// Next steps the recall cursor back toward the newest entry. Stepping
// past the newest ends the browse and returns the saved draft.
func (h *History) Next() (string, bool) {
	if h.cursor == -1 {
		return "", false
	}
	h.cursor++
	if h.cursor >= len(h.entries) {
		draft := h.draft
		h.ResetCursor()
		return draft, true
	}
	return h.entries[h.cursor], true
}

// Browsing reports whether a recall browse is in progress.
func (h *History) Browsing() bool {
	return h.cursor != -1
}
