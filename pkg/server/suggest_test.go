package server

import (
	"testing"

	"github.com/emberwake-mud/emberwake/pkg/world"
)

func TestEditDistance(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"look", "look", 0},
		{"LOOK", "look", 0},
		{"lok", "look", 1},
		{"loko", "look", 2},
		{"kitten", "sitting", 3},
		{"abc", "", 3},
		{"", "abc", 3},
	}
	for _, c := range cases {
		if got := editDistance(c.a, c.b); got != c.want {
			t.Errorf("editDistance(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestSuggest(t *testing.T) {
	g := NewGame(world.New(), nil)

	cases := []struct {
		token string
		want  string
	}{
		{"lok", "look"},
		{"sy", "say"},
		{"inventry", "inventory"},
		{"glan", "glance"},
	}
	for _, c := range cases {
		got, ok := g.Commands.Suggest(c.token)
		if !ok || got != c.want {
			t.Errorf("Suggest(%q) = %q ok=%v, want %q", c.token, got, ok, c.want)
		}
	}
}

func TestSuggestNothingPastThreshold(t *testing.T) {
	g := NewGame(world.New(), nil)

	for _, token := range []string{"qqqqqqqqqqqq", "zzzzzzzz", "xylophonist"} {
		if got, ok := g.Commands.Suggest(token); ok {
			t.Errorf("Suggest(%q) = %q, want no suggestion", token, got)
		}
	}
}

func TestSuggestSkipsDirections(t *testing.T) {
	g := NewGame(world.New(), nil)

	// "norh" is one edit from "north", but movement tokens are excluded
	// from fuzzy matching; whatever comes back must not be a direction.
	if got, ok := g.Commands.Suggest("norh"); ok && IsDirectionToken(got) {
		t.Errorf("Suggest(norh) = %q, directions must be skipped", got)
	}
}

func TestSuggestNeverEchoesTheToken(t *testing.T) {
	g := NewGame(world.New(), nil)

	if got, ok := g.Commands.Suggest("look"); ok {
		t.Errorf("Suggest(look) = %q, an exact name is not a typo", got)
	}
}

func TestSuggestStableOnTies(t *testing.T) {
	r := NewRegistry()
	nop := func(g *Game, d *Descriptor, args string) {}
	// Both candidates sit one edit from "brew"; the earlier
	// registration wins.
	r.Register(&Command{Name: "crew", Handler: nop})
	r.Register(&Command{Name: "braw", Handler: nop})

	got, ok := r.Suggest("brew")
	if !ok || got != "crew" {
		t.Errorf("Suggest(brew) = %q ok=%v, want crew (first registered)", got, ok)
	}
}
