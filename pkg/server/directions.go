package server

// CanonicalDirections lists the ten long-form movement directions in
// registration order: four cardinals, two verticals, four diagonals.
var CanonicalDirections = []string{
	"north", "south", "east", "west",
	"up", "down",
	"northeast", "northwest", "southeast", "southwest",
}

// ShortDirections lists the short movement tokens, index-aligned with
// CanonicalDirections.
var ShortDirections = []string{
	"n", "s", "e", "w",
	"u", "d",
	"ne", "nw", "se", "sw",
}

// shortDirections maps each short movement token to its canonical
// long form.
var shortDirections = func() map[string]string {
	m := make(map[string]string, len(ShortDirections))
	for i, short := range ShortDirections {
		m[short] = CanonicalDirections[i]
	}
	return m
}()

// longDirections is the canonical set, for O(1) membership tests.
var longDirections = func() map[string]bool {
	m := make(map[string]bool, len(CanonicalDirections))
	for _, dir := range CanonicalDirections {
		m[dir] = true
	}
	return m
}()

// NormalizeDirection maps a movement token (long or short form, already
// lowercased) to its canonical long form. Returns ok=false for anything
// that is not a direction.
func NormalizeDirection(token string) (string, bool) {
	if longDirections[token] {
		return token, true
	}
	if long, ok := shortDirections[token]; ok {
		return long, true
	}
	return "", false
}

// IsDirectionToken reports whether the lowercased token is a direction
// in either form. Used to exclude directions from suggestion matching
// and to apply the unconscious movement gate to every spelling.
func IsDirectionToken(token string) bool {
	_, ok := NormalizeDirection(token)
	return ok
}
